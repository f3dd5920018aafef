// Package config wires storage backends for hosting applications: env-based
// loading plus functional options, and a single BuildRepository entry point.
// The core service deliberately consumes only (bucket, template, flag); all
// environment handling lives here.
package config

import (
	"context"
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DigitalRuby/S3ObjectStore/pkg/objectstore"
	memorystorage "github.com/DigitalRuby/S3ObjectStore/pkg/objectstore/storage/memory"
	postgresstorage "github.com/DigitalRuby/S3ObjectStore/pkg/objectstore/storage/postgres"
	s3storage "github.com/DigitalRuby/S3ObjectStore/pkg/objectstore/storage/s3"
)

// ServerConfig is the configuration surface of a hosting application
type ServerConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	// StorageBackend selects the repository implementation: memory, s3 or postgres
	StorageBackend string `env:"STORAGE_BACKEND" env-default:"memory"`

	// DatabaseURL is required when StorageBackend is postgres
	DatabaseURL string `env:"DATABASE_URL" env-default:""`

	// EnableBucketAdmin requests bucket create/delete/list support. It is
	// never honored when Environment is "production".
	EnableBucketAdmin bool `env:"ENABLE_BUCKET_ADMIN" env-default:"false"`

	S3 S3Config
}

// S3Config holds S3 backend settings
type S3Config struct {
	Region          string `env:"AWS_REGION" env-default:"us-east-1"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-default:""`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-default:""`
	Endpoint        string `env:"S3_ENDPOINT" env-default:""`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
}

// Option mutates a ServerConfig during Load
type Option func(*ServerConfig) error

// Load builds a config from defaults plus the given options
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables
func LoadFromEnv() (*ServerConfig, error) {
	cfg := defaults()
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:           "8080",
		Environment:    "development",
		StorageBackend: "memory",
		S3: S3Config{
			Region: "us-east-1",
		},
	}
}

// BucketAdminAllowed reports whether bucket administration may be enabled
// for this deployment. Production deployments always get false, keeping
// destructive bucket operations out of shipped code paths.
func (c *ServerConfig) BucketAdminAllowed() bool {
	return c.EnableBucketAdmin && c.Environment != "production"
}

// BuildRepository constructs the configured storage backend
func (c *ServerConfig) BuildRepository(ctx context.Context) (objectstore.Repository, error) {
	switch c.StorageBackend {
	case "memory":
		return memorystorage.New(memorystorage.WithBucketAdmin(c.BucketAdminAllowed())), nil

	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:           c.S3.Region,
			AccessKeyID:      c.S3.AccessKeyID,
			SecretAccessKey:  c.S3.SecretAccessKey,
			Endpoint:         c.S3.Endpoint,
			UsePathStyle:     c.S3.UsePathStyle,
			AllowBucketAdmin: c.BucketAdminAllowed(),
		})

	case "postgres":
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL is required for the postgres backend")
		}
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := postgresstorage.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		return postgresstorage.NewWithPool(pool,
			postgresstorage.WithBucketAdmin(c.BucketAdminAllowed())), nil

	default:
		return nil, fmt.Errorf("storage backend must be 'memory', 's3' or 'postgres', got: %s", c.StorageBackend)
	}
}
