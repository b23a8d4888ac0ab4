package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Watch    WatchConfig    `mapstructure:"watch"`
	Routes   RoutesConfig   `mapstructure:"routes"`
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Table    TableConfig    `mapstructure:"table"`
	Database DatabaseConfig `mapstructure:"database"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Server   ServerConfig   `mapstructure:"server"`
}

// WatchConfig controls arrival detection on the input directory.
type WatchConfig struct {
	InputDir     string        `mapstructure:"input_dir"`
	Pattern      string        `mapstructure:"pattern"`       // glob matched against base names, e.g. *.csv
	UseNotify    bool          `mapstructure:"use_notify"`    // push notifications via fsnotify
	PollInterval time.Duration `mapstructure:"poll_interval"` // pull fallback scan period
	Settle       time.Duration `mapstructure:"settle"`        // min age before a file is considered fully written
}

// RoutesConfig holds the terminal destinations for processed artifacts.
type RoutesConfig struct {
	QuarantineDir string `mapstructure:"quarantine_dir"`
	ConvertedDir  string `mapstructure:"converted_dir"`
}

// DatasetConfig declares the expected schema of the input dataset.
type DatasetConfig struct {
	Name string `mapstructure:"name"`
	// Delimiter is the declared field separator; a single character.
	Delimiter string `mapstructure:"delimiter"`
	// AlternateDelimiter, when set, is tried if parsing with Delimiter does
	// not yield the declared field count.
	AlternateDelimiter string        `mapstructure:"alternate_delimiter"`
	Fields             []FieldConfig `mapstructure:"fields"`
}

// FieldConfig is one (field name, logical type) pair of the dataset schema.
type FieldConfig struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
}

// TableConfig declares the destination table independently from the dataset schema.
type TableConfig struct {
	Name    string         `mapstructure:"name"`
	Columns []ColumnConfig `mapstructure:"columns"`
}

// ColumnConfig is one (column name, SQL storage type) pair of the destination table.
type ColumnConfig struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`   // sqlite file path
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN builds the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type AuditConfig struct {
	Path string `mapstructure:"path"`
	// Recent is the capacity of the in-memory ring exposed by the status API.
	Recent int `mapstructure:"recent"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Backend   string `mapstructure:"backend"` // s3 or minio
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

type AlertsConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("watch.input_dir", "./data/incoming")
	v.SetDefault("watch.pattern", "*.csv")
	v.SetDefault("watch.use_notify", true)
	v.SetDefault("watch.poll_interval", "30s")
	v.SetDefault("watch.settle", "2s")
	v.SetDefault("routes.quarantine_dir", "./data/quarantine")
	v.SetDefault("routes.converted_dir", "./data/converted")
	v.SetDefault("dataset.delimiter", ",")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/granary.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("audit.path", "./data/audit.log")
	v.SetDefault("audit.recent", 256)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.backend", "s3")
	v.SetDefault("archive.use_ssl", false)
	v.SetDefault("alerts.timeout", "10s")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("archive.endpoint", "ARCHIVE_ENDPOINT")
	v.BindEnv("archive.access_key", "ARCHIVE_ACCESS_KEY")
	v.BindEnv("archive.secret_key", "ARCHIVE_SECRET_KEY")
	v.BindEnv("alerts.webhook_url", "ALERT_WEBHOOK_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
