package pump

import "errors"

var (
	ErrAlreadyRunning     = errors.New("pump already running")
	ErrNotRunning         = errors.New("pump not running")
	ErrTimerAlreadyActive = errors.New("timer already active")
	ErrTimerNotActive     = errors.New("timer not active")
	ErrInvalidDuration    = errors.New("timer duration must be greater than 0")
	ErrClosed             = errors.New("controller closed")
)
