//go:build linux

package hardware

import (
	"fmt"

	"github.com/afroash/dht"
)

// DHT11Probe uses the temperature half of a DHT11 as the pump probe.
type DHT11Probe struct {
	pin        int
	maxRetries int
	sensor     *dht.Sensor
}

// NewDHT11Probe opens a DHT11 on the given GPIO pin
func NewDHT11Probe(pin int) (*DHT11Probe, error) {
	sensor, err := dht.NewDHT11(pin)
	if err != nil {
		return nil, fmt.Errorf("dht11 on pin %d: %w", pin, err)
	}
	return &DHT11Probe{
		pin:        pin,
		maxRetries: 3,
		sensor:     sensor,
	}, nil
}

// ReadCelsius reads the sensor with retry logic
func (d *DHT11Probe) ReadCelsius() (float64, error) {
	reading, err := d.sensor.ReadRetry(d.maxRetries)
	if err != nil {
		return 0, fmt.Errorf("dht11: after %d retries: %w", d.maxRetries, err)
	}
	if err := validateDHTReading(reading.Temperature, reading.Humidity); err != nil {
		return 0, fmt.Errorf("dht11: invalid reading: %w", err)
	}
	return reading.Temperature, nil
}

// Close cleans up GPIO resources
func (d *DHT11Probe) Close() error {
	return d.sensor.Close()
}
