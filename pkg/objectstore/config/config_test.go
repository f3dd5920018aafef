package config_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DigitalRuby/S3ObjectStore/pkg/objectstore/config"
	memorystorage "github.com/DigitalRuby/S3ObjectStore/pkg/objectstore/storage/memory"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory", cfg.StorageBackend)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
	assert.False(t, cfg.BucketAdminAllowed())
}

func TestLoadWithOptions(t *testing.T) {
	cfg, err := config.Load(
		config.WithPort("9090"),
		config.WithEnvironment("testing"),
		config.WithS3Storage("eu-west-1"),
		config.WithS3Credentials("key", "secret"),
		config.WithS3Endpoint("http://localhost:9000", true),
		config.WithBucketAdmin(true),
	)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "s3", cfg.StorageBackend)
	assert.Equal(t, "eu-west-1", cfg.S3.Region)
	assert.Equal(t, "key", cfg.S3.AccessKeyID)
	assert.Equal(t, "http://localhost:9000", cfg.S3.Endpoint)
	assert.True(t, cfg.S3.UsePathStyle)
	assert.True(t, cfg.BucketAdminAllowed())
}

func TestOptionValidation(t *testing.T) {
	_, err := config.Load(config.WithPort(""))
	assert.Error(t, err)

	_, err = config.Load(config.WithEnvironment(""))
	assert.Error(t, err)

	_, err = config.Load(config.WithS3Endpoint("", false))
	assert.Error(t, err)

	_, err = config.Load(config.WithPostgresStorage(""))
	assert.Error(t, err)
}

func TestProductionNeverAllowsBucketAdmin(t *testing.T) {
	cfg, err := config.Load(
		config.WithEnvironment("production"),
		config.WithBucketAdmin(true),
	)
	require.NoError(t, err)
	assert.False(t, cfg.BucketAdminAllowed())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("AWS_REGION", "eu-central-1")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("S3_USE_PATH_STYLE", "true")
	t.Setenv("ENABLE_BUCKET_ADMIN", "true")

	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "s3", cfg.StorageBackend)
	assert.Equal(t, "eu-central-1", cfg.S3.Region)
	assert.Equal(t, "http://localhost:9000", cfg.S3.Endpoint)
	assert.True(t, cfg.S3.UsePathStyle)
	// Production wins over the env request
	assert.False(t, cfg.BucketAdminAllowed())
}

func TestBuildRepository(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		cfg, err := config.Load(config.WithMemoryStorage())
		require.NoError(t, err)

		repo, err := cfg.BuildRepository(context.Background())
		require.NoError(t, err)
		assert.IsType(t, &memorystorage.Repository{}, repo)
	})

	t.Run("PostgresWithoutURL", func(t *testing.T) {
		cfg, err := config.Load()
		require.NoError(t, err)
		cfg.StorageBackend = "postgres"

		_, err = cfg.BuildRepository(context.Background())
		assert.Error(t, err)
	})

	t.Run("UnknownBackend", func(t *testing.T) {
		cfg, err := config.Load()
		require.NoError(t, err)
		cfg.StorageBackend = "tape"

		_, err = cfg.BuildRepository(context.Background())
		assert.Error(t, err)
	})
}
