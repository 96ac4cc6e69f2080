package config // package config loads application configuration from environment variables

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Durations are parsed with time.ParseDuration.
type Config struct {
	Env   string // application environment (e.g. "dev", "prod")
	Port  string // HTTP port to listen on
	Store string // "mysql" or "memory"

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	SessionSecret  string // key for signing session cookies
	JWTSecret      string // secret used to sign bearer tokens
	TokenTTLMin    int    // bearer token time-to-live in minutes
	BcryptCost     int    // bcrypt cost for password hashing
	GoogleClientID string // expected audience of Google id tokens
	DeviceKey      string // shared key devices send as X-Device-Key

	MaxAdherents     int      // adherents per PREMIUM account
	MaxDevicesNormal int      // devices per NORMAL account
	CameraTypes      []string // accepted camera types, first is the default

	DeviceControlURL     string
	DeviceControlTimeout time.Duration
	DeviceControlRetries int
	SyncConcurrency      int
	SyncBudget           time.Duration // whole fan-out of a region mode change

	PushURL         string
	PushAccessToken string

	RabbitURL    string // empty disables the broker consumer and publisher
	MQTTBroker   string // empty disables the MQTT subscriber
	MQTTTopic    string
	MQTTUsername string
	MQTTPassword string

	LogLevel  string
	LogFormat string // "json" or "console"
}

// Load reads configuration values from environment variables and returns a
// Config.  Database settings are only required when Store is "mysql".
func Load() (Config, error) {
	cfg := Config{
		Env:   envStr("APP_ENV", "dev"),
		Port:  envStr("APP_PORT", "8080"),
		Store: strings.ToLower(envStr("STORE", "mysql")),

		DBUser: os.Getenv("DB_USER"),
		DBPass: os.Getenv("DB_PASS"), // empty allowed
		DBHost: envStr("DB_HOST", "127.0.0.1"),
		DBPort: envStr("DB_PORT", "3306"),
		DBName: os.Getenv("DB_NAME"),

		SessionSecret:  os.Getenv("SESSION_SECRET"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		TokenTTLMin:    envInt("TOKEN_TTL_MIN", 60),
		BcryptCost:     envInt("BCRYPT_COST", 10),
		GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),
		DeviceKey:      os.Getenv("DEVICE_INGEST_KEY"),

		MaxAdherents:     envInt("MAX_ADHERENTS", 3),
		MaxDevicesNormal: envInt("MAX_DEVICES_NORMAL", 5),
		CameraTypes:      splitList(envStr("CAMERA_TYPES", "integrada,externa,ip,relay,recording")),

		DeviceControlURL:     os.Getenv("DEVICE_CONTROL_URL"),
		DeviceControlTimeout: envDur("DEVICE_CONTROL_TIMEOUT", 5*time.Second),
		DeviceControlRetries: envInt("DEVICE_CONTROL_RETRIES", 2),
		SyncConcurrency:      envInt("DEVICE_SYNC_CONCURRENCY", 8),
		SyncBudget:           envDur("DEVICE_SYNC_BUDGET", 20*time.Second),

		PushURL:         envStr("PUSH_URL", "https://exp.host/--/api/v2/push/send"),
		PushAccessToken: os.Getenv("PUSH_ACCESS_TOKEN"),

		RabbitURL:    os.Getenv("RABBITMQ_URL"),
		MQTTBroker:   os.Getenv("MQTT_BROKER"),
		MQTTTopic:    envStr("MQTT_TOPIC", "homewatch/devices/+/events"),
		MQTTUsername: os.Getenv("MQTT_USERNAME"),
		MQTTPassword: os.Getenv("MQTT_PASSWORD"),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "json"),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var missing []string
	if c.Store != "mysql" && c.Store != "memory" {
		return fmt.Errorf("invalid STORE %q (want mysql or memory)", c.Store)
	}
	if c.Store == "mysql" {
		if c.DBUser == "" {
			missing = append(missing, "DB_USER")
		}
		if c.DBName == "" {
			missing = append(missing, "DB_NAME")
		}
	}
	if c.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.DeviceControlURL == "" {
		missing = append(missing, "DEVICE_CONTROL_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if len(c.CameraTypes) == 0 {
		return fmt.Errorf("CAMERA_TYPES must list at least one type")
	}
	for key, v := range map[string]int{
		"TOKEN_TTL_MIN":           c.TokenTTLMin,
		"MAX_DEVICES_NORMAL":      c.MaxDevicesNormal,
		"DEVICE_SYNC_CONCURRENCY": c.SyncConcurrency,
	} {
		if v < 1 {
			return fmt.Errorf("invalid %s: %d", key, v)
		}
	}
	if c.MaxAdherents < 0 || c.DeviceControlRetries < 0 {
		return fmt.Errorf("MAX_ADHERENTS and DEVICE_CONTROL_RETRIES must not be negative")
	}
	return nil
}

// TokenTTL is TokenTTLMin as a duration.
func (c Config) TokenTTL() time.Duration { return time.Duration(c.TokenTTLMin) * time.Minute }

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
