package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	MiB = 1 << 20
)

type Config struct {
	TLSDomains    string `env:"TLS_DOMAINS" env-description:"e.g. example.com,example2.com"`
	BindAddress   string `env:"BIND_ADDRESS" env-default:"0.0.0.0:8080"`
	DebugMode     bool   `env:"DEBUG_MODE" env-default:"true"`
	MySQLDSN      string `env:"MYSQL_DSN" env-description:"MySQL will be used if this is set"`
	SQLiteFile    string `env:"SQLITE_FILE" env-default:"flipbook.db" env-description:"Used if MYSQL_DSN is not configured"`
	SessionKey    string `env:"SESSION_KEY" env-default:"this is a long key"`
	SessionMaxAge int    `env:"SESSION_MAX_AGE" env-default:"31536000"` // 1 year
	SignupCredits int    `env:"SIGNUP_CREDITS" env-default:"1"`

	// Local placement, used when no remote store is configured
	UploadDir       string `env:"UPLOAD_DIR" env-default:"./uploads"`
	UploadURLPrefix string `env:"UPLOAD_URL_PREFIX" env-default:"/uploads"`

	S3     S3
	Ingest Ingest
}

type S3 struct {
	Bucket         string `env:"S3_BUCKET"`
	Region         string `env:"S3_REGION" env-default:"us-east-1"`
	Endpoint       string `env:"S3_ENDPOINT" env-description:"Custom endpoint for S3 compatible stores"`
	Key            string `env:"S3_KEY"`
	Secret         string `env:"S3_SECRET"`
	Prefix         string `env:"S3_PREFIX" env-default:"albums"`
	PublicURL      string `env:"S3_PUBLIC_URL" env-description:"Base URL for public locators, e.g. a CDN in front of the bucket"`
	SSEEncryption  string `env:"S3_SSE"`
	ForcePathStyle bool   `env:"S3_FORCE_PATH_STYLE"`
}

type Ingest struct {
	WindowSize         int           `env:"INGEST_WINDOW_SIZE" env-default:"5"`
	TranscodeThreshold int           `env:"INGEST_TRANSCODE_THRESHOLD" env-default:"5242880"`
	MaxDimension       uint          `env:"INGEST_MAX_DIMENSION" env-default:"3000"`
	Quality            int           `env:"INGEST_QUALITY" env-default:"80"`
	MaxPixels          int64         `env:"INGEST_MAX_PIXELS" env-default:"100000000" env-description:"Larger images are stored without transcoding"`
	MaxFiles           int           `env:"INGEST_MAX_FILES" env-default:"100"`
	MaxFileSize        int64         `env:"INGEST_MAX_FILE_SIZE" env-default:"52428800"`
	PlacementTimeout   time.Duration `env:"INGEST_PLACEMENT_TIMEOUT" env-default:"2m"`
	PlacementRetries   uint64        `env:"INGEST_PLACEMENT_RETRIES" env-default:"0"`
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Description returns the list of supported environment variables
func Description() string {
	help, _ := cleanenv.GetDescription(&Config{}, nil)
	return help
}

// RemoteAvailable reports whether the remote object store has enough settings to be used.
// It is meant to be evaluated once at startup.
func (c *Config) RemoteAvailable() bool {
	return c.S3.Bucket != "" && c.S3.Key != "" && c.S3.Secret != ""
}
