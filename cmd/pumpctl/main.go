// Command pumpctl drives the pump from a shell for bench testing.
//
//	pumpctl status
//	pumpctl run -speed 80 -seconds 30
//	pumpctl watch -url ws://raspberrypi:5000/api/stream
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/afroash/pump-controller/internal/app"
	"github.com/afroash/pump-controller/internal/client"
	"github.com/afroash/pump-controller/internal/config"
	"github.com/afroash/pump-controller/internal/hardware"
	"github.com/afroash/pump-controller/internal/models"
	"github.com/afroash/pump-controller/internal/pump"
)

const version = "v0.3.0"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "pumpctl:", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "pumpctl %s\n\nUsage:\n", version)
	fmt.Fprintln(w, "  pumpctl status [-config file] [-simulate]")
	fmt.Fprintln(w, "  pumpctl run    [-config file] [-simulate] -speed N -seconds N")
	fmt.Fprintln(w, "  pumpctl watch  -url ws://host:port/api/stream")
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return errors.New("missing command")
	}

	switch args[0] {
	case "status":
		return cmdStatus(args[1:], out)
	case "run":
		return cmdRun(args[1:], out)
	case "watch":
		return cmdWatch(args[1:], out)
	case "help", "-h", "--help":
		usage(out)
		return nil
	}
	usage(out)
	return fmt.Errorf("unknown command %q", args[0])
}

// hardwareFlags are shared by commands that open the backend locally
type hardwareFlags struct {
	configPath string
	simulate   bool
}

func (hf *hardwareFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&hf.configPath, "config", "", "path to config file (defaults apply when empty)")
	fs.BoolVar(&hf.simulate, "simulate", false, "force the simulated backend")
}

// open builds an App on the configured backend. Without a config file the
// simulated backend is used.
func (hf *hardwareFlags) open(logger zerolog.Logger, b app.Broadcaster) (*app.App, error) {
	cfg := &config.AppConfig{Hardware: config.HardwareSettings{Simulate: true}}
	if hf.configPath != "" {
		loaded, err := config.LoadAppConfig(hf.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg.ApplyDefaults()
	}
	if hf.simulate {
		cfg.Hardware.Simulate = true
	}

	return app.New(app.Deps{
		Backend:     hardware.Open(cfg.Hardware, logger),
		Calibration: models.CalibrationBounds{Dry: cfg.Calibration.Dry, Wet: cfg.Calibration.Wet},
		Broadcaster: b,
		Logger:      logger,
	}), nil
}

func cliLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().
		Level(zerolog.WarnLevel)
}

func cmdStatus(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	var hf hardwareFlags
	hf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := hf.open(cliLogger(), nil)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(a.Status())
}

// printer writes countdown progress and signals the final tick
type printer struct {
	out  io.Writer
	done chan struct{}
}

func (p *printer) Broadcast(msg *models.Message) {
	if msg.Type != models.MessageTypeProgress {
		return
	}
	var pm models.ProgressMessage
	if err := msg.UnmarshalPayload(&pm); err != nil {
		return
	}
	fmt.Fprintf(p.out, "remaining %3ds at %d%%\n", pm.Remaining, pm.TargetSpeed)
	if pm.Remaining == 0 {
		close(p.done)
	}
}

func cmdRun(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var hf hardwareFlags
	hf.register(fs)
	speed := fs.Int("speed", 100, "duty cycle in percent")
	seconds := fs.Int("seconds", 30, "run length in seconds")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p := &printer{out: out, done: make(chan struct{})}
	a, err := hf.open(cliLogger(), p)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	if err := a.TimerStart(*seconds, *speed); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	return awaitRun(a, p.done, sig, out)
}

type timerStopper interface {
	TimerStop() error
}

// awaitRun waits for the final progress tick. A signal stops the timer; if
// the run already finished on its own the result is reported as done.
func awaitRun(ts timerStopper, done <-chan struct{}, sig <-chan os.Signal, out io.Writer) error {
	select {
	case <-done:
		fmt.Fprintln(out, "done")
		return nil
	case <-sig:
	}

	err := ts.TimerStop()
	switch {
	case err == nil:
		<-done
		fmt.Fprintln(out, "cancelled")
	case errors.Is(err, pump.ErrTimerNotActive):
		<-done
		fmt.Fprintln(out, "done")
	default:
		return err
	}
	return nil
}

func cmdWatch(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	url := fs.String("url", "ws://localhost:5000/api/stream", "controller stream URL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(out)
	w := client.NewWatcher(client.WatcherConfig{URL: *url}, func(msg *models.Message) {
		enc.Encode(msg)
	}, cliLogger())

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
