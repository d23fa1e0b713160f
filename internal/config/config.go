// Package config loads runtime configuration from the environment,
// following the teacher's plain os.Getenv style rather than a config
// library — cobra flags layer on top in cmd/homehubd for the handful
// of values that make sense as flags.
package config

import (
	"os"
	"strconv"
	"time"
)

// PowerProfile holds the per-type wattage constants the Energy Engine
// falls back to when a sample carries no explicit power_w/power field.
type PowerProfile struct {
	LampOnW      float64
	FanSpeed1W   float64
	FanSpeed2W   float64
	FanSpeed3W   float64
	ACBaseW      float64
	ACTempStepW  float64
	ACMinW       float64
	ACMaxW       float64
	SensorIdleW  float64
}

// DefaultPowerProfile matches devices/energy.py's documented defaults.
func DefaultPowerProfile() PowerProfile {
	return PowerProfile{
		LampOnW:     9.0,
		FanSpeed1W:  30.0,
		FanSpeed2W:  45.0,
		FanSpeed3W:  60.0,
		ACBaseW:     900.0,
		ACTempStepW: 25.0,
		ACMinW:      500.0,
		ACMaxW:      1500.0,
		SensorIdleW: 0.5,
	}
}

// MQTTConfig mirrors the MQTT_CONFIG env-mapping named in spec.md §6.
type MQTTConfig struct {
	Host                string
	Port                int
	Username            string
	Password            string
	Keepalive           time.Duration
	TopicPrefix         string
	UseTLS              bool
	CACerts             string
	CertFile            string
	KeyFile             string
	TLSInsecure         bool
	ClientIDPrefix      string
	ClientIDSuffixLen   int
}

func (m MQTTConfig) Broker() string {
	scheme := "tcp"
	if m.UseTLS {
		scheme = "ssl"
	}
	return scheme + "://" + m.Host + ":" + strconv.Itoa(m.Port)
}

// Config is the process-wide configuration snapshot, loaded once at
// startup.
type Config struct {
	MQTT MQTTConfig

	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	EnergyPricePerKWh float64
	PowerProfile      PowerProfile

	RealtimeStreamTokenTTL time.Duration
	RealtimeStreamSecret   string
	AlertTempThreshold     float64

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Load reads the process environment and applies documented defaults
// for anything unset.
func Load() Config {
	cfg := Config{
		MQTT: MQTTConfig{
			Host:              getenv("MQTT_HOST", "localhost"),
			Port:              getenvInt("MQTT_PORT", 1883),
			Username:          os.Getenv("MQTT_USERNAME"),
			Password:          os.Getenv("MQTT_PASSWORD"),
			Keepalive:         time.Duration(getenvInt("MQTT_KEEPALIVE", 60)) * time.Second,
			TopicPrefix:       getenv("MQTT_TOPIC_PREFIX", "home"),
			UseTLS:            getenvBool("MQTT_USE_TLS", false),
			CACerts:           os.Getenv("MQTT_CA_CERTS"),
			CertFile:          os.Getenv("MQTT_CERTFILE"),
			KeyFile:           os.Getenv("MQTT_KEYFILE"),
			TLSInsecure:       getenvBool("MQTT_TLS_INSECURE", false),
			ClientIDPrefix:    getenv("MQTT_CLIENT_ID_PREFIX", "homehub"),
			ClientIDSuffixLen: getenvInt("MQTT_CLIENT_ID_SUFFIX_LEN", 8),
		},
		DatabaseDriver: getenv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    getenv("DATABASE_DSN", "homehub.db"),

		EnergyPricePerKWh: getenvFloat("ENERGY_PRICE_PER_KWH", 0.56),
		PowerProfile:      loadPowerProfile(),

		RealtimeStreamTokenTTL: time.Duration(getenvInt("REALTIME_STREAM_TOKEN_TTL_SECONDS", 30)) * time.Second,
		RealtimeStreamSecret:   getenv("REALTIME_STREAM_SECRET", "dev-insecure-stream-secret"),
		AlertTempThreshold:     getenvFloat("ALERT_TEMP_THRESHOLD", 28.0),

		SMTPHost:     getenv("SMTP_HOST", "localhost"),
		SMTPPort:     getenvInt("SMTP_PORT", 25),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     getenv("SMTP_FROM", "homehub@localhost"),
	}
	return cfg
}

func loadPowerProfile() PowerProfile {
	p := DefaultPowerProfile()
	p.LampOnW = getenvFloat("ENERGY_POWER_PROFILE_LAMP_ON_W", p.LampOnW)
	p.FanSpeed1W = getenvFloat("ENERGY_POWER_PROFILE_FAN_SPEED_1_W", p.FanSpeed1W)
	p.FanSpeed2W = getenvFloat("ENERGY_POWER_PROFILE_FAN_SPEED_2_W", p.FanSpeed2W)
	p.FanSpeed3W = getenvFloat("ENERGY_POWER_PROFILE_FAN_SPEED_3_W", p.FanSpeed3W)
	p.ACBaseW = getenvFloat("ENERGY_POWER_PROFILE_AC_BASE_W", p.ACBaseW)
	p.ACTempStepW = getenvFloat("ENERGY_POWER_PROFILE_AC_TEMP_STEP_W", p.ACTempStepW)
	p.ACMinW = getenvFloat("ENERGY_POWER_PROFILE_AC_MIN_W", p.ACMinW)
	p.ACMaxW = getenvFloat("ENERGY_POWER_PROFILE_AC_MAX_W", p.ACMaxW)
	p.SensorIdleW = getenvFloat("ENERGY_POWER_PROFILE_SENSOR_IDLE_W", p.SensorIdleW)
	return p
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
