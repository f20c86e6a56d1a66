// Package config loads service configuration from the environment on top of
// built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Addr           string   `koanf:"addr"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// DBConfig holds the Postgres connection settings. DSN is used verbatim when
// set; otherwise it is assembled from the individual fields.
type DBConfig struct {
	DSN      string `koanf:"dsn"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
	SSLMode  string `koanf:"sslmode"`
}

// ConnString returns a pgx/gorm compatible connection string.
func (d DBConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// StorageConfig holds object store settings. Bucket names the S3 bucket for
// uploads and error reports; LocalDir, when set, switches to file:// handles
// for development.
type StorageConfig struct {
	Bucket   string `koanf:"bucket"`
	LocalDir string `koanf:"local_dir"`
}

// ImportConfig holds pipeline tunables.
type ImportConfig struct {
	BatchSize  int           `koanf:"batch_size"`
	SampleSize int           `koanf:"sample_size"`
	ReportDir  string        `koanf:"report_dir"`
	ReportTTL  time.Duration `koanf:"report_ttl"`
	SchemaTTL  time.Duration `koanf:"schema_ttl"`
}

// Config is the root service configuration.
type Config struct {
	HTTP        HTTPConfig    `koanf:"http"`
	DB          DBConfig      `koanf:"db"`
	Storage     StorageConfig `koanf:"storage"`
	Import      ImportConfig  `koanf:"import"`
	MetricsAddr string        `koanf:"metrics_addr"`
}

var defaults = map[string]any{
	"http.addr":          ":8080",
	"db.host":            "localhost",
	"db.port":            5432,
	"db.user":            "postgres",
	"db.password":        "postgres",
	"db.database":        "form_imports",
	"db.sslmode":         "disable",
	"storage.bucket":     "form-imports",
	"import.batch_size":  100,
	"import.sample_size": 100,
	"import.report_ttl":  "168h",
	"import.schema_ttl":  "5m",
	"metrics_addr":       ":9090",
}

// Load builds the configuration from defaults overlaid with FORMIMPORTS_*
// environment variables. FORMIMPORTS_DB__HOST maps to db.host.
func Load() (Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return Config{}, err
	}
	err := k.Load(env.Provider("FORMIMPORTS_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "FORMIMPORTS_")
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Import.BatchSize <= 0 {
		return Config{}, fmt.Errorf("import.batch_size must be positive, got %d", cfg.Import.BatchSize)
	}
	return cfg, nil
}
