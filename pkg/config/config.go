package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage drivers accepted by STORAGE_DRIVER
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Booking  BookingConfig
	OTEL     OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host    string
	Port    int
	SSEPort int
	Env     string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// KafkaConfig holds the booking event publisher configuration.
// An empty broker list disables publishing.
type KafkaConfig struct {
	Brokers      []string
	BookingTopic string
	BatchTimeout time.Duration
}

// BookingConfig holds booking engine tuning
type BookingConfig struct {
	StartLeadTime      time.Duration
	PersistenceTimeout time.Duration
	SideEffectTimeout  time.Duration
	Timezone           string
	SlotCacheTTL       time.Duration
	StorageDriver      string
	// SeedDemoData loads the demo catalog when StorageDriver is memory
	SeedDemoData       bool
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvAsInt("SERVER_PORT", 8080),
			SSEPort: getEnvAsInt("SSE_PORT", 8081),
			Env:     getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "booking_engine"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:      getEnvAsList("KAFKA_BROKERS"),
			BookingTopic: getEnv("KAFKA_BOOKING_TOPIC", "booking.events"),
			BatchTimeout: getEnvAsDuration("KAFKA_BATCH_TIMEOUT", 50*time.Millisecond),
		},
		Booking: BookingConfig{
			StartLeadTime:      getEnvAsDuration("BOOKING_START_LEAD_TIME", 15*time.Minute),
			PersistenceTimeout: getEnvAsDuration("BOOKING_PERSISTENCE_TIMEOUT", 3*time.Second),
			SideEffectTimeout:  getEnvAsDuration("BOOKING_SIDE_EFFECT_TIMEOUT", 2*time.Second),
			Timezone:           getEnv("BOOKING_TIMEZONE", "UTC"),
			SlotCacheTTL:       getEnvAsDuration("BOOKING_SLOT_CACHE_TTL", 120*time.Second),
			StorageDriver:      getEnv("STORAGE_DRIVER", StorageDriverPostgres),
			SeedDemoData:       getEnvAsBool("MEMORY_SEED_DEMO", true),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "booking-engine"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at request time
func (c *Config) Validate() error {
	var problems []string

	if c.Booking.StartLeadTime < 0 {
		problems = append(problems, "BOOKING_START_LEAD_TIME must not be negative")
	}
	if c.Booking.PersistenceTimeout <= 0 {
		problems = append(problems, "BOOKING_PERSISTENCE_TIMEOUT must be positive")
	}
	if c.Booking.SideEffectTimeout <= 0 {
		problems = append(problems, "BOOKING_SIDE_EFFECT_TIMEOUT must be positive")
	}
	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("BOOKING_TIMEZONE %q is not a known location", c.Booking.Timezone))
	}
	switch c.Booking.StorageDriver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("STORAGE_DRIVER %q must be %q or %q",
			c.Booking.StorageDriver, StorageDriverPostgres, StorageDriverMemory))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Location returns the wall-clock location bookings are scheduled in
func (c *BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled reports whether any broker is configured
func (c *KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
