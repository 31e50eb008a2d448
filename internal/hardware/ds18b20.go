package hardware

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const w1DevicesDir = "/sys/bus/w1/devices"

// DS18B20 reads a 1-wire DS18B20 through the w1_therm sysfs interface.
type DS18B20 struct {
	path string
}

// NewDS18B20 opens the probe with the given device ID (e.g. 28-0316a2798cff).
// An empty ID picks the first 28-* device found.
func NewDS18B20(deviceID string) (*DS18B20, error) {
	return newDS18B20In(w1DevicesDir, deviceID)
}

func newDS18B20In(dir, deviceID string) (*DS18B20, error) {
	if deviceID == "" {
		matches, err := filepath.Glob(filepath.Join(dir, "28-*"))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no DS18B20 found under %s", dir)
		}
		deviceID = filepath.Base(matches[0])
	}

	path := filepath.Join(dir, deviceID, "w1_slave")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("ds18b20 %s: %w", deviceID, err)
	}
	return &DS18B20{path: path}, nil
}

// ReadCelsius parses the two-line w1_slave output:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func (d *DS18B20) ReadCelsius() (float64, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return 0, fmt.Errorf("ds18b20: %w", err)
	}
	return parseW1Slave(data)
}

func (d *DS18B20) Close() error { return nil }

func parseW1Slave(data []byte) (float64, error) {
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) < 2 {
		return 0, fmt.Errorf("ds18b20: short read (%d lines)", len(lines))
	}
	if !bytes.HasSuffix(bytes.TrimSpace(lines[0]), []byte("YES")) {
		return 0, fmt.Errorf("ds18b20: crc check failed")
	}
	idx := bytes.LastIndex(lines[1], []byte("t="))
	if idx < 0 {
		return 0, fmt.Errorf("ds18b20: no temperature field")
	}
	milli, err := strconv.Atoi(string(bytes.TrimSpace(lines[1][idx+2:])))
	if err != nil {
		return 0, fmt.Errorf("ds18b20: %w", err)
	}
	return float64(milli) / 1000.0, nil
}
