package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is read from a YAML file with environment overrides. Secrets
// (JWT secret, ML API key, DSNs) only come from the environment.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	ML       MLConfig       `yaml:"ml"`
	Polling  PollingConfig  `yaml:"polling"`
	Upload   UploadConfig   `yaml:"upload"`
	Auth     AuthConfig     `yaml:"auth"`
	OTel     OTelConfig     `yaml:"otel"`
}

type HTTPConfig struct {
	Addr              string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"HTTP_READ_HEADER_TIMEOUT" env-default:"10s"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
	AllowedOrigins    []string      `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000,http://localhost:5173"`
	MetricsEnabled    bool          `yaml:"metrics_enabled" env:"METRICS_ENABLED" env-default:"true"`
}

type LogConfig struct {
	Mode     string `yaml:"mode" env:"LOG_MODE" env-default:"development"`
	Level    string `yaml:"level" env:"LOG_LEVEL" env-default:"debug"`
	Redact   bool   `yaml:"redact" env:"LOG_REDACTION_ENABLED" env-default:"true"`
	HashSalt string `yaml:"-" env:"LOG_HASH_SALT"`
}

type DatabaseConfig struct {
	// Driver is postgres or sqlite.
	Driver          string        `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	DSN             string        `yaml:"-" env:"DATABASE_URL"`
	Host            string        `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port            int           `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User            string        `yaml:"user" env:"POSTGRES_USER" env-default:"kivo"`
	Password        string        `yaml:"-" env:"POSTGRES_PASSWORD"`
	Name            string        `yaml:"name" env:"POSTGRES_NAME" env-default:"kivo"`
	SSLMode         string        `yaml:"sslmode" env:"POSTGRES_SSLMODE" env-default:"disable"`
	SQLitePath      string        `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"kivo.db"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"20"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"30m"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Channel  string `yaml:"channel" env:"REDIS_JOB_CHANNEL" env-default:"kivo:forecast-jobs"`
}

type StorageConfig struct {
	// Mode is gcs or gcs_emulator.
	Mode         string `yaml:"mode" env:"OBJECT_STORAGE_MODE" env-default:"gcs"`
	Bucket       string `yaml:"bucket" env:"UPLOAD_GCS_BUCKET_NAME"`
	EmulatorHost string `yaml:"emulator_host" env:"STORAGE_EMULATOR_HOST"`
	Credentials  string `yaml:"-" env:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type MLConfig struct {
	BaseURL       string        `yaml:"base_url" env:"ML_SERVICE_URL" env-default:"http://localhost:8000"`
	APIKey        string        `yaml:"-" env:"ML_SERVICE_API_KEY"`
	Timeout       time.Duration `yaml:"timeout" env:"ML_SERVICE_TIMEOUT" env-default:"15s"`
	SubmitTimeout time.Duration `yaml:"submit_timeout" env:"ML_SERVICE_SUBMIT_TIMEOUT" env-default:"60s"`
}

type PollingConfig struct {
	BaseDelay            time.Duration `yaml:"base_delay" env:"POLL_BASE_DELAY" env-default:"1s"`
	MaxDelay             time.Duration `yaml:"max_delay" env:"POLL_MAX_DELAY" env-default:"30s"`
	MaxTransientFailures int           `yaml:"max_transient_failures" env:"POLL_MAX_TRANSIENT_FAILURES" env-default:"5"`
	Timeout              time.Duration `yaml:"timeout" env:"POLL_TIMEOUT" env-default:"10m"`
}

type UploadConfig struct {
	MaxBytes     int64  `yaml:"max_bytes" env:"UPLOAD_MAX_BYTES" env-default:"10485760"`
	PreviewRows  int    `yaml:"preview_rows" env:"UPLOAD_PREVIEW_ROWS" env-default:"3"`
	PatternsFile string `yaml:"patterns_file" env:"ROLE_PATTERNS_FILE"`
	// Locations are created by migrate and at startup when missing.
	Locations []string `yaml:"locations" env:"KIVO_LOCATIONS" env-separator:","`
}

type AuthConfig struct {
	JWTSecret string `yaml:"-" env:"SUPABASE_JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"JWT_ISSUER"`
	Audience  string `yaml:"audience" env:"JWT_AUDIENCE" env-default:"authenticated"`
}

type OTelConfig struct {
	Enabled      bool    `yaml:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	ServiceName  string  `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"kivo"`
	Exporter     string  `yaml:"exporter" env:"OTEL_TRACES_EXPORTER" env-default:"otlp"`
	Endpoint     string  `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	SamplerRatio float64 `yaml:"sampler_ratio" env:"OTEL_SAMPLER_RATIO" env-default:"1"`
	// Headers is a comma-separated k=v list sent with every OTLP export.
	Headers  string `yaml:"-" env:"OTEL_EXPORTER_OTLP_HEADERS"`
	Insecure bool   `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"false"`
}

// Load reads path (or KIVO_CONFIG, or ./config.yaml) when it exists and the
// environment otherwise.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv("KIVO_CONFIG"))
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg := &Config{}
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read env: %w", err)
		}
	} else {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Storage.Mode = strings.ToLower(strings.TrimSpace(c.Storage.Mode))
	c.ML.BaseURL = strings.TrimRight(strings.TrimSpace(c.ML.BaseURL), "/")
	if c.Upload.PreviewRows <= 0 {
		c.Upload.PreviewRows = 3
	}
}

func (c *Config) Validate() error {
	var problems []string
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q must be postgres or sqlite", c.Database.Driver))
	}
	if c.Polling.BaseDelay <= 0 {
		problems = append(problems, "polling.base_delay must be positive")
	}
	if c.Polling.MaxDelay < c.Polling.BaseDelay {
		problems = append(problems, "polling.max_delay must be >= polling.base_delay")
	}
	if c.Polling.MaxTransientFailures < 1 {
		problems = append(problems, "polling.max_transient_failures must be >= 1")
	}
	if c.Polling.Timeout < c.Polling.MaxDelay {
		problems = append(problems, "polling.timeout must be >= polling.max_delay")
	}
	if c.Upload.MaxBytes <= 0 {
		problems = append(problems, "upload.max_bytes must be positive")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		problems = append(problems, "SUPABASE_JWT_SECRET is required")
	}
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		problems = append(problems, "storage.bucket (UPLOAD_GCS_BUCKET_NAME) is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// PostgresDSN prefers DATABASE_URL and otherwise assembles a key/value DSN.
func (d DatabaseConfig) PostgresDSN() string {
	if strings.TrimSpace(d.DSN) != "" {
		return d.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}
