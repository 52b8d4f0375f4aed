package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Storage backends
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
)

type Config struct {
	Matching   MatchingConfig   `yaml:"matching"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Validation ValidationConfig `yaml:"validation"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"-"`
	Redis      RedisConfig      `yaml:"-"`
	Embedding  EmbeddingConfig  `yaml:"-"`
	Web        WebConfig        `yaml:"-"`
}

type MatchingConfig struct {
	Threshold           float64 `yaml:"threshold"`
	EmbeddingDim        int     `yaml:"embedding_dim"`
	DetectionConfidence float64 `yaml:"detection_confidence"`
	MaxRetryAttempts    int     `yaml:"max_retry_attempts"`
	HNSWEnabled         bool    `yaml:"-"`
	HNSWIndexPath       string  `yaml:"-"` // optional, if empty the index is rebuilt on startup
}

type AttendanceConfig struct {
	Cooldown time.Duration `yaml:"cooldown"`
	Timezone string        `yaml:"timezone"`
}

// Location resolves the configured timezone, falling back to the local one.
func (c *AttendanceConfig) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

type ValidationConfig struct {
	IdentityPattern string `yaml:"identity_pattern"`
	MinNameLength   int    `yaml:"min_name_length"`
	MinGroupLength  int    `yaml:"min_group_length"`
}

type StorageConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
	FacesDir   string `yaml:"faces_dir"`
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MySQLDSN     string // MySQL DSN (e.g. user:pass@tcp(localhost:3306)/attendance)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RedisConfig struct {
	URL string // shared cooldown store, optional
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
}

type WebConfig struct {
	Host      string
	Port      int
	RateLimit float64 // requests per second per server, 0 disables
	RateBurst int
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a duration ("30s") or a number of seconds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// envString returns the env var if it is set (even to an empty string), otherwise defaultVal.
func envString(key, defaultVal string) string {
	if s, ok := os.LookupEnv(key); ok {
		return s
	}
	return defaultVal
}

// Defaults returns the built-in defaults without applying the environment.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

func Load() *Config {
	cfg := Defaults()

	cfg.Matching.Threshold = envFloat("FACE_MATCH_THRESHOLD", cfg.Matching.Threshold)
	cfg.Matching.EmbeddingDim = envInt("EMBEDDING_DIM", cfg.Matching.EmbeddingDim)
	cfg.Matching.DetectionConfidence = envFloat("FACE_DETECTION_CONFIDENCE", cfg.Matching.DetectionConfidence)
	cfg.Matching.MaxRetryAttempts = envInt("EMBEDDING_MAX_RETRIES", cfg.Matching.MaxRetryAttempts)
	cfg.Matching.HNSWEnabled = envBool("HNSW_ENABLED", false)
	cfg.Matching.HNSWIndexPath = os.Getenv("HNSW_INDEX_PATH")

	cfg.Attendance.Cooldown = envDuration("ATTENDANCE_COOLDOWN", cfg.Attendance.Cooldown)
	cfg.Attendance.Timezone = envString("TIMEZONE", cfg.Attendance.Timezone)

	cfg.Validation.IdentityPattern = envString("MATRIC_PATTERN", cfg.Validation.IdentityPattern)

	cfg.Storage.Backend = strings.ToLower(envString("STORAGE_BACKEND", cfg.Storage.Backend))
	cfg.Storage.SQLitePath = envString("SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.FacesDir = envString("FACES_DIR", cfg.Storage.FacesDir)

	cfg.Database = DatabaseConfig{
		URL:          os.Getenv("DATABASE_URL"),
		MySQLDSN:     os.Getenv("MYSQL_DSN"),
		MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
		MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
	}
	cfg.Redis = RedisConfig{
		URL: os.Getenv("REDIS_URL"),
	}
	cfg.Embedding = EmbeddingConfig{
		URL: os.Getenv("EMBEDDING_URL"),
	}
	cfg.Web = WebConfig{
		Host:      envString("WEB_HOST", "0.0.0.0"),
		Port:      envInt("WEB_PORT", 8080),
		RateLimit: envFloat("WEB_RATE_LIMIT", 5),
		RateBurst: envInt("WEB_RATE_BURST", 10),
	}

	return cfg
}
