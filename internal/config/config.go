package config

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type Config struct {
	AppEnv   string
	HTTPAddr string
	LogLevel string

	DatabaseURL string
	RedisURL    string

	JWTSecret    []byte
	CacheTTL     time.Duration
	StoreTimeout time.Duration

	BaseURL       string
	FilesDir      string
	StorageDriver string
	S3            S3Config

	// MaxUploadMB caps request bodies, multipart image uploads included.
	MaxUploadMB int

	KafkaBrokers []string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string

	AllowedOrigins []string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}
	return FromEnv(), nil
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() *Config {
	return &Config{
		AppEnv:   strings.ToLower(EnvDefault("APP_ENV", EnvProduction)),
		HTTPAddr: EnvDefault("HTTP_ADDR", ":8080"),
		LogLevel: EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    EnvDefault("REDIS_URL", "redis://localhost:6379/0"),

		JWTSecret:    []byte(os.Getenv("JWT_SECRET")),
		CacheTTL:     EnvDurationDefault("CACHE_TTL", time.Hour),
		StoreTimeout: EnvDurationDefault("STORE_TIMEOUT", 500*time.Millisecond),

		BaseURL:       strings.TrimRight(EnvDefault("BASE_URL", "http://localhost:8080"), "/"),
		FilesDir:      EnvDefault("FILES_DIR", "files"),
		StorageDriver: strings.ToLower(EnvDefault("STORAGE_DRIVER", "local")),
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          EnvDefault("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},

		MaxUploadMB: EnvIntDefault("MAX_UPLOAD_MB", 20),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    EnvDefault("ES_INDEX", "products"),

		AllowedOrigins: CSV(strings.Join([]string{os.Getenv("FRONTEND_URL"), os.Getenv("LOCAL_HOST")}, ",")),
	}
}

func (c *Config) Development() bool { return c.AppEnv == EnvDevelopment }

func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) == 0 {
		errs = append(errs, errors.New("missing required env JWT_SECRET"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("missing required env DATABASE_URL"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("missing required env REDIS_URL"))
	}
	switch c.StorageDriver {
	case "local":
	case "s3":
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("missing required env S3_BUCKET for s3 storage"))
		}
	default:
		errs = append(errs, errors.New("STORAGE_DRIVER must be local or s3"))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_MB must be positive"))
	}
	return errors.Join(errs...)
}
