//go:build !linux

package hardware

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/afroash/pump-controller/internal/config"
)

func openReal(cfg config.HardwareSettings, logger zerolog.Logger) (Backend, error) {
	return nil, fmt.Errorf("%w: no GPIO support on %s", ErrHardwareUnavailable, runtime.GOOS)
}
