package hardware

import "fmt"

// Supported temperature probes
const (
	ProbeDS18B20 = "ds18b20"
	ProbeDHT11   = "dht11"
)

// TemperatureProbe is a single temperature sensor.
type TemperatureProbe interface {
	ReadCelsius() (float64, error)
	Close() error
}

// validateDHTReading checks if temperature and humidity values are reasonable
func validateDHTReading(temp, humidity float64) error {
	const (
		minTemp     = -20.0
		maxTemp     = 60.0
		minHumidity = 0.0
		maxHumidity = 100.0
	)
	if temp < minTemp || temp > maxTemp {
		return fmt.Errorf("temperature %.1f°C outside %.0f..%.0f°C", temp, minTemp, maxTemp)
	}
	if humidity < minHumidity || humidity > maxHumidity {
		return fmt.Errorf("humidity %.1f%% outside 0..100%%", humidity)
	}
	return nil
}
