package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config is the runtime configuration of the planner service.
type Config struct {
	AppName    string
	HTTP       HTTPConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Buffer     BufferConfig
	Context    ContextConfig
	Logger     LoggerConfig
	Migrations MigrationsConfig
	Planner    PlannerConfig
	Kafka      KafkaConfig
}

type HTTPConfig struct {
	Host          string
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	MaxConn       int
	EnablePprof   bool
	EnableMetrics bool
}

// DatabaseConfig points at the Postgres instance holding activities and sessions.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	CacheTTL time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

// BufferConfig controls the offline write buffer.
type BufferConfig struct {
	Path            string
	MaxItems        int
	Retention       time.Duration
	SyncInterval    time.Duration
	MaxRetry        int
	MonitorInterval time.Duration
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// PlannerConfig tunes per-user planners.
type PlannerConfig struct {
	UndoWindow    time.Duration
	WriteTimeout  time.Duration
	Timezone      string
	IdleTTL       time.Duration
	SweepInterval time.Duration

	location *time.Location
}

// Location is the zone calendar days are computed in.
func (p PlannerConfig) Location() *time.Location {
	if p.location == nil {
		return time.UTC
	}
	return p.location
}

// KafkaConfig enables change notifications when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// Load reads the environment, after an optional .env file, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:    getString("APP_NAME", "studyplanner"),
		HTTP:       loadHTTP(),
		Database:   loadDatabase(),
		Redis:      loadRedis(),
		JWT:        JWTConfig{Secret: os.Getenv("JWT_SECRET"), Issuer: getString("JWT_ISSUER", "studyplanner")},
		Buffer:     loadBuffer(),
		Context:    ContextConfig{RequestTimeout: getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second), ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second)},
		Logger:     LoggerConfig{Level: getString("LOG_LEVEL", "info"), Encoding: getString("LOG_ENCODING", "json")},
		Migrations: MigrationsConfig{Enabled: getBool("RUN_MIGRATIONS", true), Path: getString("MIGRATIONS_PATH", "./assets/migrations")},
		Planner:    loadPlanner(),
		Kafka:      KafkaConfig{Brokers: getList("KAFKA_BROKERS"), Topic: getString("KAFKA_TOPIC", "planner.changes")},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadHTTP() HTTPConfig {
	return HTTPConfig{
		Host:          getString("SERVER_HOST", "0.0.0.0"),
		Port:          getString("SERVER_PORT", "8080"),
		ReadTimeout:   getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:  getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		IdleTimeout:   getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		MaxConn:       getInt("SERVER_MAX_CONN", 0),
		EnablePprof:   getBool("SERVER_ENABLE_PPROF", false),
		EnableMetrics: getBool("SERVER_ENABLE_METRICS", false),
	}
}

func loadDatabase() DatabaseConfig {
	return DatabaseConfig{
		URL:             getString("DATABASE_URL", "postgres://studyplanner@localhost:5432/studyplanner?sslmode=disable"),
		MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
		MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
	}
}

func loadRedis() RedisConfig {
	return RedisConfig{
		URL:      getString("REDIS_URL", "redis://localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getInt("REDIS_DB", 0),
		CacheTTL: getDuration("CACHE_TTL", 10*time.Minute),
	}
}

func loadBuffer() BufferConfig {
	return BufferConfig{
		Path:            getString("BOLTDB_PATH", "./data/buffer.db"),
		MaxItems:        getInt("BUFFER_MAX_ITEMS", 100_000),
		Retention:       time.Duration(getInt("BUFFER_RETENTION_HOURS", 24)) * time.Hour,
		SyncInterval:    getDuration("SYNC_INTERVAL_SECONDS", 30*time.Second),
		MaxRetry:        getInt("MAX_RETRY_ATTEMPTS", 3),
		MonitorInterval: getDuration("MONITOR_INTERVAL", 10*time.Second),
	}
}

func loadPlanner() PlannerConfig {
	return PlannerConfig{
		UndoWindow:    getDuration("UNDO_WINDOW", 5*time.Second),
		WriteTimeout:  getDuration("PLANNER_WRITE_TIMEOUT", 5*time.Second),
		Timezone:      getString("PLANNER_TIMEZONE", "UTC"),
		IdleTTL:       getDuration("PLANNER_IDLE_TTL", 30*time.Minute),
		SweepInterval: getDuration("PLANNER_EVICT_INTERVAL", time.Minute),
	}
}

// validate resolves the planner zone and reports every invalid setting at once.
func (c *Config) validate() error {
	var problems []error
	loc, err := time.LoadLocation(c.Planner.Timezone)
	if err != nil {
		problems = append(problems, fmt.Errorf("PLANNER_TIMEZONE: %w", err))
	}
	c.Planner.location = loc
	if c.Planner.UndoWindow <= 0 {
		problems = append(problems, fmt.Errorf("UNDO_WINDOW must be positive, got %s", c.Planner.UndoWindow))
	}
	if c.Buffer.MaxItems < 0 {
		problems = append(problems, fmt.Errorf("BUFFER_MAX_ITEMS must not be negative, got %d", c.Buffer.MaxItems))
	}
	return errors.Join(problems...)
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return c.HTTP.Host + ":" + c.HTTP.Port
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if parsed, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return parsed
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if parsed, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return parsed
	}
	return fallback
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getDuration accepts Go durations ("1500ms") and bare seconds ("90").
func getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if parsed, err := time.ParseDuration(val); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(val); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
