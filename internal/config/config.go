package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig holds all configuration for the pump controller daemon
type AppConfig struct {
	Server      ServerSettings      `yaml:"server"`
	Hardware    HardwareSettings    `yaml:"hardware"`
	Calibration CalibrationSettings `yaml:"calibration"`
	Database    DatabaseSettings    `yaml:"database"`
	MQTT        MQTTSettings        `yaml:"mqtt"`
	Events      EventSettings       `yaml:"events"`
	Schedules   []ScheduleSettings  `yaml:"schedules"`
	Logging     LoggingConfig       `yaml:"logging"`
}

// ServerSettings contains HTTP server configuration
type ServerSettings struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// HardwareSettings describes the motor driver and sensor wiring.
// Pin numbers are BCM GPIO offsets.
type HardwareSettings struct {
	Simulate         bool   `yaml:"simulate"`
	Seed             int64  `yaml:"seed"`
	GPIOChip         string `yaml:"gpio_chip"`
	RPWMPin          int    `yaml:"rpwm_pin"`
	LPWMPin          int    `yaml:"lpwm_pin"`
	REnPin           int    `yaml:"r_en_pin"`
	LEnPin           int    `yaml:"l_en_pin"`
	PWMFrequencyHz   int    `yaml:"pwm_frequency_hz"`
	I2CBus           string `yaml:"i2c_bus"`
	ADS1115Address   uint16 `yaml:"ads1115_address"`
	TemperatureProbe string `yaml:"temperature_probe"`
	W1Device         string `yaml:"w1_device"`
	DHTPin           int    `yaml:"dht_pin"`
}

// CalibrationSettings are the raw moisture values for dry and saturated soil
type CalibrationSettings struct {
	Dry int `yaml:"dry"`
	Wet int `yaml:"wet"`
}

// DatabaseSettings contains sample history configuration
type DatabaseSettings struct {
	Enabled            bool          `yaml:"enabled"`
	Path               string        `yaml:"path"`
	BatchSize          int           `yaml:"batch_size"`
	FlushPeriod        time.Duration `yaml:"flush_period"`
	ChannelSize        int           `yaml:"channel_size"`
	RetentionDays      int           `yaml:"retention_days"`
	EventRetentionDays int           `yaml:"event_retention_days"`
	CleanupPeriod      time.Duration `yaml:"cleanup_period"`
}

// MQTTSettings configures event publishing. An empty broker disables it.
type MQTTSettings struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// EventSettings sizes the in-memory event log
type EventSettings struct {
	BufferSize int `yaml:"buffer_size"`
}

// ScheduleSettings starts a timer run whenever the cron expression fires
type ScheduleSettings struct {
	Name    string `yaml:"name"`
	Cron    string `yaml:"cron"`
	Seconds int    `yaml:"seconds"`
	Speed   int    `yaml:"speed"`
}

// LoadAppConfig loads configuration from a YAML file.
// A .env file in the working directory is loaded first when present.
func LoadAppConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var config AppConfig
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	config.ApplyDefaults()
	config.OverrideFromEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for any unset fields
func (ac *AppConfig) ApplyDefaults() {
	if ac.Server.Port == 0 {
		ac.Server.Port = 5000
	}
	if ac.Server.Host == "" {
		ac.Server.Host = "0.0.0.0"
	}
	if ac.Server.ReadTimeout == 0 {
		ac.Server.ReadTimeout = 15 * time.Second
	}
	if ac.Server.WriteTimeout == 0 {
		ac.Server.WriteTimeout = 10 * time.Second
	}

	// BTS7960 wiring
	if ac.Hardware.GPIOChip == "" {
		ac.Hardware.GPIOChip = "gpiochip0"
	}
	if ac.Hardware.RPWMPin == 0 {
		ac.Hardware.RPWMPin = 18
	}
	if ac.Hardware.LPWMPin == 0 {
		ac.Hardware.LPWMPin = 19
	}
	if ac.Hardware.REnPin == 0 {
		ac.Hardware.REnPin = 23
	}
	if ac.Hardware.LEnPin == 0 {
		ac.Hardware.LEnPin = 24
	}
	if ac.Hardware.PWMFrequencyHz == 0 {
		ac.Hardware.PWMFrequencyHz = 1000
	}
	if ac.Hardware.ADS1115Address == 0 {
		ac.Hardware.ADS1115Address = 0x48
	}
	if ac.Hardware.TemperatureProbe == "" {
		ac.Hardware.TemperatureProbe = "ds18b20"
	}
	if ac.Hardware.DHTPin == 0 {
		ac.Hardware.DHTPin = 4
	}

	if ac.Calibration.Dry == 0 && ac.Calibration.Wet == 0 {
		ac.Calibration.Dry = 1023
		ac.Calibration.Wet = 400
	}

	if ac.Database.Path == "" {
		ac.Database.Path = "./data/pump-controller.db"
	}
	if ac.Database.BatchSize == 0 {
		ac.Database.BatchSize = 50
	}
	if ac.Database.FlushPeriod == 0 {
		ac.Database.FlushPeriod = 30 * time.Second
	}
	if ac.Database.ChannelSize == 0 {
		ac.Database.ChannelSize = 200
	}
	if ac.Database.RetentionDays == 0 {
		ac.Database.RetentionDays = 30
	}
	if ac.Database.EventRetentionDays == 0 {
		ac.Database.EventRetentionDays = 90
	}
	if ac.Database.CleanupPeriod == 0 {
		ac.Database.CleanupPeriod = 24 * time.Hour
	}

	if ac.MQTT.ClientID == "" {
		ac.MQTT.ClientID = "pump-controller"
	}
	if ac.MQTT.Topic == "" {
		ac.MQTT.Topic = "pump-controller/events"
	}

	if ac.Events.BufferSize == 0 {
		ac.Events.BufferSize = 200
	}

	if ac.Logging.Level == "" {
		ac.Logging.Level = "info"
	}
	if ac.Logging.Format == "" {
		ac.Logging.Format = "json"
	}
}

// OverrideFromEnv overrides config values from environment variables
func (ac *AppConfig) OverrideFromEnv() {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			ac.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		ac.Server.Host = v
	}
	if v := os.Getenv("PUMP_SIMULATE"); v != "" {
		if simulate, err := strconv.ParseBool(v); err == nil {
			ac.Hardware.Simulate = simulate
		}
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		ac.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		ac.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		ac.MQTT.Password = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		ac.Database.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		ac.Logging.Level = v
	}
}

// Validate checks if the configuration is valid
func (ac *AppConfig) Validate() error {
	if ac.Server.Port < 1 || ac.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if ac.Hardware.PWMFrequencyHz <= 0 {
		return fmt.Errorf("pwm frequency must be greater than 0")
	}
	switch strings.ToLower(ac.Hardware.TemperatureProbe) {
	case "ds18b20", "dht11":
	default:
		return fmt.Errorf("unknown temperature probe %q (want ds18b20 or dht11)", ac.Hardware.TemperatureProbe)
	}
	if ac.Calibration.Dry == ac.Calibration.Wet {
		return fmt.Errorf("calibration dry and wet values must differ")
	}
	if ac.Database.Enabled {
		if ac.Database.BatchSize < 1 {
			return fmt.Errorf("database batch size must be at least 1")
		}
		if ac.Database.RetentionDays < 1 || ac.Database.EventRetentionDays < 1 {
			return fmt.Errorf("retention days must be at least 1")
		}
	}
	if ac.MQTT.Broker != "" && !strings.Contains(ac.MQTT.Broker, "://") {
		return fmt.Errorf("mqtt broker must be a URL such as tcp://host:1883")
	}
	if ac.Events.BufferSize < 10 {
		return fmt.Errorf("event buffer size must be at least 10")
	}
	for i, s := range ac.Schedules {
		if s.Cron == "" {
			return fmt.Errorf("schedule %d: cron expression is required", i)
		}
		if s.Seconds <= 0 {
			return fmt.Errorf("schedule %d: seconds must be greater than 0", i)
		}
		if s.Speed < 0 || s.Speed > 100 {
			return fmt.Errorf("schedule %d: speed must be between 0 and 100", i)
		}
	}
	return nil
}

// Address returns the host:port the HTTP server listens on
func (ac *AppConfig) Address() string {
	return fmt.Sprintf("%s:%d", ac.Server.Host, ac.Server.Port)
}

// String returns a safe string representation (hides the MQTT password)
func (ac *AppConfig) String() string {
	return fmt.Sprintf("AppConfig{Server: %+v, Hardware: %+v, Calibration: %+v, Database: %+v, MQTT: [Broker=%s, User=%s, Password=%s], Schedules: %d, Logging: %+v}",
		ac.Server,
		ac.Hardware,
		ac.Calibration,
		ac.Database,
		ac.MQTT.Broker,
		ac.MQTT.Username,
		maskToken(ac.MQTT.Password),
		len(ac.Schedules),
		ac.Logging,
	)
}

// maskToken masks all but first 4 characters of a secret
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
