// Package config loads vitalsynth settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// Config holds every runtime setting of the service.
type Config struct {
	Host       string
	Port       int
	DataFile   string
	FlushEvery int
	Store      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	MQTTBroker        string
	MQTTClientID      string
	MQTTTopic         string
	MQTTPublishPrefix string

	PolicyFile string
	Timezone   string
	Seed       int64
	Token      string

	LogLevel  string
	LogFormat string

	AcceptGzip bool
	MaxHistory int
}

// Load reads files (default ".env") if present, then the environment.
// A missing .env file is not an error.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{
		Host:       getEnv("VITALSYNTH_HOST", "0.0.0.0"),
		Port:       getEnvInt("VITALSYNTH_PORT", 8787),
		DataFile:   getEnv("VITALSYNTH_DATA_FILE", "data/readings.ndjson"),
		FlushEvery: getEnvInt("VITALSYNTH_FLUSH_EVERY", 10),
		Store:      strings.ToLower(getEnv("VITALSYNTH_STORE", StoreFile)),

		RedisAddr:     getEnv("VITALSYNTH_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("VITALSYNTH_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("VITALSYNTH_REDIS_DB", 0),
		RedisPrefix:   getEnv("VITALSYNTH_REDIS_PREFIX", "vitalsynth"),

		MQTTBroker:        getEnv("VITALSYNTH_MQTT_BROKER", ""),
		MQTTClientID:      getEnv("VITALSYNTH_MQTT_CLIENT_ID", ""),
		MQTTTopic:         getEnv("VITALSYNTH_MQTT_TOPIC", "vitalsynth/+/raw"),
		MQTTPublishPrefix: getEnv("VITALSYNTH_MQTT_PUBLISH_PREFIX", "vitalsynth"),

		PolicyFile: getEnv("VITALSYNTH_POLICY_FILE", ""),
		Timezone:   getEnv("VITALSYNTH_TIMEZONE", "Local"),
		Seed:       getEnvInt64("VITALSYNTH_SEED", 0),
		Token:      getEnv("VITALSYNTH_TOKEN", ""),

		LogLevel:  getEnv("VITALSYNTH_LOG_LEVEL", "info"),
		LogFormat: getEnv("VITALSYNTH_LOG_FORMAT", "json"),

		AcceptGzip: getEnvBool("VITALSYNTH_ACCEPT_GZIP", false),
		MaxHistory: getEnvInt("VITALSYNTH_MAX_HISTORY", 100),
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}
	if c.FlushEvery < 1 {
		return fmt.Errorf("invalid flush interval %d: must be at least 1", c.FlushEvery)
	}
	if c.MaxHistory < 1 {
		return fmt.Errorf("invalid max history %d: must be at least 1", c.MaxHistory)
	}
	switch c.Store {
	case StoreFile:
		if c.DataFile == "" {
			return fmt.Errorf("data file is required for the file store")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store %q (expected: %s|%s)", c.Store, StoreFile, StoreRedis)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Location resolves the configured time zone used for hour-of-day regimes.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
