package config

import "fmt"

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithMemoryStorage selects the in-memory backend (for testing)
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageBackend = "memory"
		return nil
	}
}

// WithS3Storage selects the S3 backend
func WithS3Storage(region string) Option {
	return func(c *ServerConfig) error {
		if region == "" {
			region = "us-east-1"
		}
		c.StorageBackend = "s3"
		c.S3.Region = region
		return nil
	}
}

// WithS3Credentials sets static AWS credentials; leave unset to use the
// default credential chain
func WithS3Credentials(accessKeyID, secretAccessKey string) Option {
	return func(c *ServerConfig) error {
		c.S3.AccessKeyID = accessKeyID
		c.S3.SecretAccessKey = secretAccessKey
		return nil
	}
}

// WithS3Endpoint sets a custom S3 endpoint (for MinIO, LocalStack, etc.)
func WithS3Endpoint(endpoint string, usePathStyle bool) Option {
	return func(c *ServerConfig) error {
		if endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty")
		}
		c.S3.Endpoint = endpoint
		c.S3.UsePathStyle = usePathStyle
		return nil
	}
}

// WithPostgresStorage selects the PostgreSQL backend
func WithPostgresStorage(databaseURL string) Option {
	return func(c *ServerConfig) error {
		if databaseURL == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.StorageBackend = "postgres"
		c.DatabaseURL = databaseURL
		return nil
	}
}

// WithBucketAdmin requests bucket administration support. Ignored in
// production environments.
func WithBucketAdmin(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableBucketAdmin = enabled
		return nil
	}
}
