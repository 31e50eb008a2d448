package hardware

import (
	"math/rand"
	"sync"
	"time"

	"github.com/afroash/pump-controller/internal/models"
)

const (
	simMoistureMin = 400
	simMoistureMax = 800
	simTempBase    = 20.0
	simTempJitter  = 2.0
)

// Op identifies a recorded backend write.
type Op string

const (
	OpSetEnabled   Op = "set_enabled"
	OpSetDutyCycle Op = "set_duty_cycle"
)

// Call is one write recorded by the Simulated backend.
type Call struct {
	Op    Op
	Value int
}

// Simulated is a Backend with no devices behind it. Writes are recorded,
// reads return plausible random values.
type Simulated struct {
	mu      sync.Mutex
	rng     *rand.Rand
	calls   []Call
	enabled bool
	duty    int
	closed  bool
}

// NewSimulated creates a Simulated backend. A zero seed uses the clock.
func NewSimulated(seed int64) *Simulated {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulated{
		rng: rand.New(rand.NewSource(seed)),
	}
}

func (s *Simulated) SetEnabled(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := 0
	if on {
		v = 1
	}
	s.enabled = on
	s.calls = append(s.calls, Call{Op: OpSetEnabled, Value: v})
	return nil
}

func (s *Simulated) SetDutyCycle(percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	percent = clampPercent(percent)
	s.duty = percent
	s.calls = append(s.calls, Call{Op: OpSetDutyCycle, Value: percent})
	return nil
}

// ReadMoistureChannels returns independent uniform values in [400, 800].
func (s *Simulated) ReadMoistureChannels() models.MoistureReading {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reading models.MoistureReading
	for i := range reading {
		reading[i] = simMoistureMin + s.rng.Intn(simMoistureMax-simMoistureMin+1)
	}
	return reading
}

// ReadTemperature returns 20°C ± 2°C.
func (s *Simulated) ReadTemperature() models.TemperatureReading {
	s.mu.Lock()
	defer s.mu.Unlock()

	jitter := (s.rng.Float64()*2 - 1) * simTempJitter
	return models.RoundTemperature(simTempBase + jitter)
}

func (s *Simulated) Kind() Kind { return KindSimulated }

func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Calls returns a copy of every recorded write in order.
func (s *Simulated) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Enabled reports the last value written to the enable lines.
func (s *Simulated) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// DutyCycle reports the last duty cycle written.
func (s *Simulated) DutyCycle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duty
}

// Closed reports whether Close has been called.
func (s *Simulated) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Reset clears the recorded calls.
func (s *Simulated) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}
