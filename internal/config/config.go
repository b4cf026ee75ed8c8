// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	MirrorDatabase = "database"
	MirrorRedis    = "redis"

	StorageDrive = "drive"
	StorageMinio = "minio"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	App      AppConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Sync     SyncConfig
	Report   ReportConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type LogConfig struct {
	Level             string
	File              string
	DiscordWebhookURL string
}

type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
}

type AppConfig struct {
	DownloadDir string
	ImagesDir   string
}

// CacheConfig selects and configures the durable mirror of the file cache.
type CacheConfig struct {
	MirrorDriver  string
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	// LoadOptional starts with an empty cache when the mirror cannot be read.
	LoadOptional bool
}

type StorageConfig struct {
	Backend string
	Drive   DriveConfig
	Minio   MinioConfig
}

type DriveConfig struct {
	CredentialsJSON string
	CredentialsFile string
	DataFolderID    string
	ReportsFolderID string
}

type MinioConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Region     string
	UseSSL     bool
	DataPrefix string
	// ReportsPrefix is the root "folder" reports are uploaded under.
	ReportsPrefix string
}

type SyncConfig struct {
	Interval    time.Duration
	RunOnStart  bool
	RetryFailed bool
	Extensions  []string
}

type ReportConfig struct {
	Width   int
	Height  int
	StatsBy string
}

var (
	once     sync.Once
	instance *Config
)

// Load reads configuration once per process from the environment (and .env).
func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		v := viper.GetViper()
		setDefaults(v)
		v.AutomaticEnv()

		instance = fromViper(v)

		ensureDir(instance.App.DownloadDir)
		ensureDir(instance.App.ImagesDir)
	})

	return instance
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "release")
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("DISCORD_WEBHOOK_URL", "")
	v.SetDefault("DB_DRIVER", DBDriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "rollstats")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("SQLITE_PATH", "./data/rollstats.db")
	v.SetDefault("APP_DOWNLOAD_DIR", "./data/download")
	v.SetDefault("APP_IMAGES_DIR", "./images")
	v.SetDefault("MIRROR_DRIVER", MirrorDatabase)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "rollstats:files")
	v.SetDefault("MIRROR_LOAD_OPTIONAL", false)
	v.SetDefault("STORAGE_BACKEND", StorageDrive)
	v.SetDefault("MINIO_REGION", "us-east-1")
	v.SetDefault("MINIO_USE_SSL", true)
	v.SetDefault("MINIO_DATA_PREFIX", "data")
	v.SetDefault("MINIO_REPORTS_PREFIX", "graphs")
	v.SetDefault("SYNC_INTERVAL", time.Hour)
	v.SetDefault("SYNC_RUN_ON_START", true)
	v.SetDefault("SYNC_RETRY_FAILED", false)
	v.SetDefault("SYNC_EXTENSIONS", []string{".csv", ".xlsx"})
	v.SetDefault("REPORT_WIDTH", 800)
	v.SetDefault("REPORT_HEIGHT", 600)
	v.SetDefault("REPORT_STATS_BY", "Not set update config")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level:             v.GetString("LOG_LEVEL"),
			File:              v.GetString("LOG_FILE"),
			DiscordWebhookURL: v.GetString("DISCORD_WEBHOOK_URL"),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(v.GetString("DB_DRIVER")),
			Host:       v.GetString("DB_HOST"),
			Port:       v.GetString("DB_PORT"),
			User:       v.GetString("DB_USER"),
			Password:   v.GetString("DB_PASSWORD"),
			DBName:     v.GetString("DB_NAME"),
			SSLMode:    v.GetString("DB_SSLMODE"),
			SQLitePath: v.GetString("SQLITE_PATH"),
		},
		App: AppConfig{
			DownloadDir: v.GetString("APP_DOWNLOAD_DIR"),
			ImagesDir:   v.GetString("APP_IMAGES_DIR"),
		},
		Cache: CacheConfig{
			MirrorDriver:  strings.ToLower(v.GetString("MIRROR_DRIVER")),
			RedisURL:      v.GetString("REDIS_URL"),
			RedisHost:     v.GetString("REDIS_HOST"),
			RedisPort:     v.GetString("REDIS_PORT"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			RedisPrefix:   v.GetString("REDIS_PREFIX"),
			LoadOptional:  v.GetBool("MIRROR_LOAD_OPTIONAL"),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(v.GetString("STORAGE_BACKEND")),
			Drive: DriveConfig{
				CredentialsJSON: v.GetString("GOOGLE_DRIVE_CREDENTIALS_JSON"),
				CredentialsFile: v.GetString("GOOGLE_DRIVE_CREDENTIALS_FILE"),
				DataFolderID:    v.GetString("DRIVE_DATA_FOLDER_ID"),
				ReportsFolderID: v.GetString("DRIVE_REPORTS_FOLDER_ID"),
			},
			Minio: MinioConfig{
				Endpoint:      v.GetString("MINIO_ENDPOINT"),
				AccessKey:     v.GetString("MINIO_ACCESS_KEY"),
				SecretKey:     v.GetString("MINIO_SECRET_KEY"),
				Bucket:        v.GetString("MINIO_BUCKET"),
				Region:        v.GetString("MINIO_REGION"),
				UseSSL:        v.GetBool("MINIO_USE_SSL"),
				DataPrefix:    v.GetString("MINIO_DATA_PREFIX"),
				ReportsPrefix: v.GetString("MINIO_REPORTS_PREFIX"),
			},
		},
		Sync: SyncConfig{
			Interval:    v.GetDuration("SYNC_INTERVAL"),
			RunOnStart:  v.GetBool("SYNC_RUN_ON_START"),
			RetryFailed: v.GetBool("SYNC_RETRY_FAILED"),
			Extensions:  normalizeExtensions(v.GetStringSlice("SYNC_EXTENSIONS")),
		},
		Report: ReportConfig{
			Width:   v.GetInt("REPORT_WIDTH"),
			Height:  v.GetInt("REPORT_HEIGHT"),
			StatsBy: v.GetString("REPORT_STATS_BY"),
		},
	}
}

// Validate reports settings that are missing for the selected backends.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DBDriverPostgres, DBDriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}

	switch c.Cache.MirrorDriver {
	case MirrorDatabase, MirrorRedis:
	default:
		errs = append(errs, fmt.Errorf("unsupported MIRROR_DRIVER %q", c.Cache.MirrorDriver))
	}

	switch c.Storage.Backend {
	case StorageDrive:
		d := c.Storage.Drive
		if d.CredentialsJSON == "" && d.CredentialsFile == "" {
			errs = append(errs, errors.New("GOOGLE_DRIVE_CREDENTIALS_JSON or GOOGLE_DRIVE_CREDENTIALS_FILE is required"))
		}
		if d.DataFolderID == "" {
			errs = append(errs, errors.New("DRIVE_DATA_FOLDER_ID is required"))
		}
		if d.ReportsFolderID == "" {
			errs = append(errs, errors.New("DRIVE_REPORTS_FOLDER_ID is required"))
		}
	case StorageMinio:
		m := c.Storage.Minio
		if m.Endpoint == "" || m.Bucket == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT and MINIO_BUCKET are required"))
		}
		if m.AccessKey == "" || m.SecretKey == "" {
			errs = append(errs, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend))
	}

	if c.Sync.Interval <= 0 {
		errs = append(errs, errors.New("SYNC_INTERVAL must be positive"))
	}

	return errors.Join(errs...)
}

// DriveCredentials returns the service account JSON, reading the file if needed.
func (d DriveConfig) DriveCredentials() ([]byte, error) {
	if d.CredentialsJSON != "" {
		return []byte(d.CredentialsJSON), nil
	}
	data, err := os.ReadFile(d.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read drive credentials: %w", err)
	}
	return data, nil
}

func normalizeExtensions(exts []string) []string {
	var out []string
	for _, raw := range exts {
		for _, part := range strings.Split(raw, ",") {
			ext := strings.ToLower(strings.TrimSpace(part))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			out = append(out, ext)
		}
	}
	return out
}

func ensureDir(dir string) {
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
