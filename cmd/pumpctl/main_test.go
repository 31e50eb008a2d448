package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/afroash/pump-controller/internal/models"
	"github.com/afroash/pump-controller/internal/pump"
)

// stubStopper delivers the final tick when the timer is stopped
type stubStopper struct {
	err  error
	done chan struct{}
}

func (s *stubStopper) TimerStop() error {
	if s.err == nil || errors.Is(s.err, pump.ErrTimerNotActive) {
		close(s.done)
	}
	return s.err
}

func TestRun_NoCommand(t *testing.T) {
	var out bytes.Buffer
	if err := run(nil, &out); err == nil {
		t.Fatal("expected error for missing command")
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Errorf("usage not printed: %q", out.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"flood"}, &out)
	if err == nil || !strings.Contains(err.Error(), "flood") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"help"}, &out); err != nil {
		t.Fatalf("help: %v", err)
	}
	if !strings.Contains(out.String(), "pumpctl run") {
		t.Errorf("usage missing run command: %q", out.String())
	}
}

func TestStatus_Simulated(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"status", "-simulate"}, &out); err != nil {
		t.Fatalf("status: %v", err)
	}

	var status models.Status
	if err := json.Unmarshal(out.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out.String())
	}
	if status.PumpRunning {
		t.Error("pump should be idle")
	}
	if status.TimerRunning {
		t.Error("timer should be idle")
	}
}

func TestStatus_MissingConfig(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"status", "-config", t.TempDir() + "/missing.yaml"}, &out)
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestRunCommand_CountsDown(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"run", "-simulate", "-speed", "40", "-seconds", "1"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()
	for _, want := range []string{"remaining   1s at 40%", "remaining   0s at 40%", "done"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunCommand_InvalidSpeed(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"run", "-simulate", "-speed", "150"}, &out); err == nil {
		t.Fatal("expected invalid speed error")
	}
}

func TestAwaitRun(t *testing.T) {
	tests := []struct {
		name    string
		stopErr error
		want    string
		wantErr bool
	}{
		{name: "signal cancels run", want: "cancelled"},
		{name: "signal after natural finish", stopErr: pump.ErrTimerNotActive, want: "done"},
		{name: "controller closed", stopErr: pump.ErrClosed, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := &stubStopper{err: tt.stopErr, done: make(chan struct{})}
			sig := make(chan os.Signal, 1)
			sig <- syscall.SIGINT

			var out bytes.Buffer
			err := awaitRun(ts, ts.done, sig, &out)

			if tt.wantErr {
				if !errors.Is(err, tt.stopErr) {
					t.Fatalf("err = %v, want %v", err, tt.stopErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("awaitRun: %v", err)
			}
			if got := strings.TrimSpace(out.String()); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAwaitRun_FinishedWithoutSignal(t *testing.T) {
	ts := &stubStopper{done: make(chan struct{})}
	close(ts.done)

	var out bytes.Buffer
	if err := awaitRun(ts, ts.done, make(chan os.Signal), &out); err != nil {
		t.Fatalf("awaitRun: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "done" {
		t.Errorf("output = %q, want done", got)
	}
}
