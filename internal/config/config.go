package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	Mode         string        `mapstructure:"mode"` // gin mode: debug, release or test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxUploadMemory is the part of a multipart form kept in memory; the
	// rest spills to temp files.
	MaxUploadMemory int64 `mapstructure:"max_upload_memory"`
}

// DatabaseConfig selects and configures the metadata engine.
type DatabaseConfig struct {
	Engine string `mapstructure:"engine"` // postgres, mongo or memory

	// URL logs in as the role subject to row-level security.
	URL string `mapstructure:"url"`
	// ServiceURL logs in as the role that bypasses it.
	ServiceURL   string `mapstructure:"service_url"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`

	MongoURI          string `mapstructure:"mongo_uri"`
	MongoName         string `mapstructure:"mongo_name"`
	MongoTransactions bool   `mapstructure:"mongo_transactions"`
}

// StorageConfig selects and configures the object store.
type StorageConfig struct {
	Backend       string      `mapstructure:"backend"` // s3, gcs, azure or local
	Root          string      `mapstructure:"root"`
	PublicBaseURL string      `mapstructure:"public_base_url"`
	S3            S3Config    `mapstructure:"s3"`
	GCS           GCSConfig   `mapstructure:"gcs"`
	Azure         AzureConfig `mapstructure:"azure"`
	Local         LocalConfig `mapstructure:"local"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint"` // emulator only
}

type AzureConfig struct {
	AccountURL         string `mapstructure:"account_url"`
	ConnectionString   string `mapstructure:"connection_string"`
	Container          string `mapstructure:"container"`
	UseManagedIdentity bool   `mapstructure:"use_managed_identity"`
}

type LocalConfig struct {
	Dir string `mapstructure:"dir"`
}

// AuthConfig verifies the session tokens issued by the sign-in provider.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"` // optional; checked when set
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CacheConfig sizes the listing response cache. Size 0 disables it.
type CacheConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

var defaults = map[string]any{
	"server.address":           ":8080",
	"server.mode":              "release",
	"server.read_timeout":      "15s",
	"server.write_timeout":     "60s",
	"server.max_upload_memory": 32 << 20,

	"database.engine":             "postgres",
	"database.url":                "",
	"database.service_url":        "",
	"database.max_conns":          10,
	"database.min_conns":          2,
	"database.ensure_schema":      true,
	"database.mongo_uri":          "mongodb://localhost:27017",
	"database.mongo_name":         "photo_archive",
	"database.mongo_transactions": true,

	"storage.backend":                    "local",
	"storage.root":                       "/barbeintiaden/photos",
	"storage.public_base_url":            "",
	"storage.s3.endpoint":                "",
	"storage.s3.region":                  "us-east-1",
	"storage.s3.access_key_id":           "",
	"storage.s3.secret_access_key":       "",
	"storage.s3.bucket":                  "",
	"storage.s3.use_path_style":          false,
	"storage.gcs.bucket":                 "",
	"storage.gcs.credentials_file":       "",
	"storage.gcs.endpoint":               "",
	"storage.azure.account_url":          "",
	"storage.azure.connection_string":    "",
	"storage.azure.container":            "",
	"storage.azure.use_managed_identity": false,
	"storage.local.dir":                  "./data/blobs",

	"auth.jwt_secret": "",
	"auth.issuer":     "",

	"log.level":  "info",
	"log.format": "text",

	"cache.size": 128,
	"cache.ttl":  "30s",
}

// LoadConfig reads configuration from config.yaml in path (optional) and
// environment variables. Nested keys map to env names with "." replaced by
// "_", e.g. storage.s3.bucket -> STORAGE_S3_BUCKET.
func LoadConfig(path string) (Config, error) {
	var config Config
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	// Every key needs a default for AutomaticEnv to reach it during Unmarshal.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decoding config: %w", err)
	}
	return config, nil
}

// Validate reports missing settings for the selected engines.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}

	switch c.Database.Engine {
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres"))
		}
		if c.Database.ServiceURL == "" {
			errs = append(errs, errors.New("database.service_url is required for postgres"))
		}
	case "mongo":
		if c.Database.MongoURI == "" || c.Database.MongoName == "" {
			errs = append(errs, errors.New("database.mongo_uri and database.mongo_name are required for mongo"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown database.engine %q", c.Database.Engine))
	}

	switch c.Storage.Backend {
	case "s3":
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required"))
		}
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			errs = append(errs, errors.New("storage.gcs.bucket is required"))
		}
	case "azure":
		if c.Storage.Azure.Container == "" {
			errs = append(errs, errors.New("storage.azure.container is required"))
		}
		if c.Storage.Azure.ConnectionString == "" && c.Storage.Azure.AccountURL == "" {
			errs = append(errs, errors.New("storage.azure.connection_string or storage.azure.account_url is required"))
		}
	case "local":
		if c.Storage.Local.Dir == "" {
			errs = append(errs, errors.New("storage.local.dir is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	return errors.Join(errs...)
}
