package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Storage StorageConfig `mapstructure:"storage"`
	Site    SiteConfig    `mapstructure:"site"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Port    string     `mapstructure:"port"`
	BaseURL string     `mapstructure:"base_url"` // absolute origin used in sitemap.xml
	TLS     TLSConfig  `mapstructure:"tls"`
	CORS    CORSConfig `mapstructure:"cors"`
}

// TLSConfig holds TLS-specific configuration.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
}

// CORSConfig lists the origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DBConfig holds database-specific configuration.
type DBConfig struct {
	Driver  string `mapstructure:"driver"` // "mysql", "sqlite3" or "pgx"
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

// StorageConfig selects and configures the blob store that holds article images.
type StorageConfig struct {
	Backend string           `mapstructure:"backend"` // "s3" or "sqlite"
	Bucket  string           `mapstructure:"bucket"`
	SQLite  SQLiteBlobConfig `mapstructure:"sqlite"`
	S3      S3Config         `mapstructure:"s3"`
}

// SQLiteBlobConfig configures the embedded blob store.
type SQLiteBlobConfig struct {
	FilePath     string `mapstructure:"file_path"`
	PublicPrefix string `mapstructure:"public_prefix"`
}

// S3Config configures an S3-compatible object store.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	UsePathStyle  bool   `mapstructure:"use_path_style"`
}

// SiteConfig holds the article defaults used by the content API.
type SiteConfig struct {
	PlaceholderImage string `mapstructure:"placeholder_image"`
	DefaultAuthor    string `mapstructure:"default_author"`
	DetailRoute      string `mapstructure:"detail_route"`
	MaxUploadBytes   int64  `mapstructure:"max_upload_bytes"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // e.g., "debug", "info", "warn", "error"
	Format string `mapstructure:"format"` // e.g., "json", "console"
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/yuanyue-cms/")
	v.AddConfigPath("$HOME/.yuanyue-cms")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	v.SetEnvPrefix("CMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.base_url", "http://localhost:3000")
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.certFile", "")
	v.SetDefault("server.tls.keyFile", "")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})

	v.SetDefault("db.driver", "sqlite3")
	v.SetDefault("db.dsn", "articles.db")
	v.SetDefault("db.migrate", true)

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.bucket", "yuanyue")
	v.SetDefault("storage.sqlite.file_path", "blobs.db")
	v.SetDefault("storage.sqlite.public_prefix", "/uploads")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.public_base_url", "")
	v.SetDefault("storage.s3.use_path_style", false)

	v.SetDefault("site.placeholder_image", "/images/design/hero-main.png")
	v.SetDefault("site.default_author", "Admin")
	v.SetDefault("site.detail_route", "/pages/article.html")
	v.SetDefault("site.max_upload_bytes", 10*1024*1024)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "mysql", "sqlite3", "pgx":
	default:
		return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
	}
	switch c.Storage.Backend {
	case "sqlite":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unsupported storage.backend %q", c.Storage.Backend)
	}
	if c.Site.MaxUploadBytes <= 0 {
		return fmt.Errorf("site.max_upload_bytes must be positive, got %d", c.Site.MaxUploadBytes)
	}
	if c.Site.DetailRoute == "" {
		return fmt.Errorf("site.detail_route must not be empty")
	}
	return nil
}
