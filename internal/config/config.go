package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rain-platform/internal/models"
)

// Config is the root configuration shared by every binary
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Validation ValidationConfig `yaml:"validation"`
	Split      SplitConfig      `yaml:"split"`
	Training   TrainingConfig   `yaml:"training"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig selects postgres or an sqlite file. An empty driver disables
// the database stages of the pipeline.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Path            string        `yaml:"path"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	Table           string        `yaml:"table"`
	BatchSize       int           `yaml:"batch_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ExtractionConfig describes the archive window: end = today - EndOffsetDays,
// start = end - StartOffsetDays.
type ExtractionConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Latitude        float64       `yaml:"latitude"`
	Longitude       float64       `yaml:"longitude"`
	StartOffsetDays int           `yaml:"start_offset_days"`
	EndOffsetDays   int           `yaml:"end_offset_days"`
	Timeout         time.Duration `yaml:"timeout"`
}

type ValidationConfig struct {
	SchemaFile string `yaml:"schema_file"`
	StatusFile string `yaml:"status_file"`
}

type SplitConfig struct {
	TestSize   float64 `yaml:"test_size"`
	RandomSeed uint64  `yaml:"random_seed"`
}

type TrainingConfig struct {
	LearningRate float64 `yaml:"learning_rate"`
	Epochs       int     `yaml:"epochs"`
	L2           float64 `yaml:"l2"`
	Threshold    float64 `yaml:"threshold"`
}

type ArtifactsConfig struct {
	Root string `yaml:"root"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Database:        "weather",
			SSLMode:         "disable",
			Table:           "weather_data",
			BatchSize:       500,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "logs/pipeline.log",
		},
		Extraction: ExtractionConfig{
			BaseURL:         "https://archive-api.open-meteo.com",
			Latitude:        40.4165,
			Longitude:       -3.7026,
			StartOffsetDays: 365,
			EndOffsetDays:   2,
			Timeout:         30 * time.Second,
		},
		Validation: ValidationConfig{
			StatusFile: "artifacts/data_validation/status.txt",
		},
		Split: SplitConfig{
			TestSize:   0.25,
			RandomSeed: 42,
		},
		Training: TrainingConfig{
			LearningRate: 0.1,
			Epochs:       500,
			L2:           0.01,
			Threshold:    0.5,
		},
		Artifacts: ArtifactsConfig{
			Root: "artifacts",
		},
	}
}

// LoadConfig applies, in order: defaults, the YAML file at path (if non-empty),
// a .env file in the working directory, and environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return &models.ConfigurationError{Parameter: key, Value: v, Message: "must be an integer"}
		}
		*dst = n
		return nil
	}

	setString("DB_DRIVER", &c.Database.Driver)
	setString("DB_PATH", &c.Database.Path)
	setString("POSTGRES_HOST", &c.Database.Host)
	setString("POSTGRES_DB", &c.Database.Database)
	setString("POSTGRES_USER", &c.Database.User)
	setString("POSTGRES_PASSWORD", &c.Database.Password)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("ARTIFACTS_ROOT", &c.Artifacts.Root)

	if err := setInt("POSTGRES_PORT", &c.Database.Port); err != nil {
		return err
	}
	if err := setInt("SERVER_PORT", &c.Server.Port); err != nil {
		return err
	}
	return nil
}

// DatabaseEnabled reports whether the pipeline should touch a database
func (c *Config) DatabaseEnabled() bool {
	return c.Database.Driver != "" && c.Database.Driver != "none"
}

// ArtifactPath joins elems under the artifacts root
func (c *Config) ArtifactPath(elems ...string) string {
	return filepath.Join(append([]string{c.Artifacts.Root}, elems...)...)
}

// Validate checks every parameter domain before any work starts
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &models.ConfigurationError{Parameter: "server.port", Value: strconv.Itoa(c.Server.Port), Message: "must be in 1..65535"}
	}

	switch c.Database.Driver {
	case "", "none":
	case "postgres":
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return &models.ConfigurationError{Parameter: "database.port", Value: strconv.Itoa(c.Database.Port), Message: "must be in 1..65535"}
		}
		if c.Database.Host == "" || c.Database.Database == "" {
			return &models.ConfigurationError{Parameter: "database", Message: "host and database are required for postgres"}
		}
	case "sqlite":
		if c.Database.Path == "" {
			return &models.ConfigurationError{Parameter: "database.path", Message: "required for sqlite"}
		}
	default:
		return &models.ConfigurationError{Parameter: "database.driver", Value: c.Database.Driver, Message: "must be postgres, sqlite or none"}
	}
	if c.Database.BatchSize <= 0 {
		return &models.ConfigurationError{Parameter: "database.batch_size", Value: strconv.Itoa(c.Database.BatchSize), Message: "must be positive"}
	}

	if c.Extraction.Latitude < -90 || c.Extraction.Latitude > 90 {
		return &models.ConfigurationError{Parameter: "extraction.latitude", Value: formatFloat(c.Extraction.Latitude), Message: "must be in [-90, 90]"}
	}
	if c.Extraction.Longitude < -180 || c.Extraction.Longitude > 180 {
		return &models.ConfigurationError{Parameter: "extraction.longitude", Value: formatFloat(c.Extraction.Longitude), Message: "must be in [-180, 180]"}
	}
	if c.Extraction.StartOffsetDays < 0 || c.Extraction.EndOffsetDays < 0 {
		return &models.ConfigurationError{Parameter: "extraction", Message: "day offsets must not be negative"}
	}

	if !(c.Split.TestSize > 0 && c.Split.TestSize < 1) {
		return &models.ConfigurationError{Parameter: "split.test_size", Value: formatFloat(c.Split.TestSize), Message: "must be in (0, 1)"}
	}

	if c.Training.Epochs <= 0 {
		return &models.ConfigurationError{Parameter: "training.epochs", Value: strconv.Itoa(c.Training.Epochs), Message: "must be positive"}
	}
	if c.Training.LearningRate <= 0 {
		return &models.ConfigurationError{Parameter: "training.learning_rate", Value: formatFloat(c.Training.LearningRate), Message: "must be positive"}
	}
	if c.Training.L2 < 0 {
		return &models.ConfigurationError{Parameter: "training.l2", Value: formatFloat(c.Training.L2), Message: "must not be negative"}
	}
	if !(c.Training.Threshold > 0 && c.Training.Threshold < 1) {
		return &models.ConfigurationError{Parameter: "training.threshold", Value: formatFloat(c.Training.Threshold), Message: "must be in (0, 1)"}
	}

	if c.Artifacts.Root == "" {
		return &models.ConfigurationError{Parameter: "artifacts.root", Message: "must not be empty"}
	}

	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
