package objectstore

import (
	"errors"
	"strings"

	"github.com/strukturo/automate-go/internal/platform/env"
)

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Region        string
	UseSSL        bool
	BucketResults string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("AUTOMATE_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:      env.String("AUTOMATE_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:     env.String("AUTOMATE_MINIO_ACCESS_KEY", "automate"),
		SecretKey:     env.String("AUTOMATE_MINIO_SECRET_KEY", "automateminio"),
		Region:        env.String("AUTOMATE_MINIO_REGION", "us-east-1"),
		UseSSL:        useSSL,
		BucketResults: env.String("AUTOMATE_MINIO_BUCKET_RESULTS", "automation-results"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return errors.New("endpoint must not include a scheme")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketResults) == "" {
		return errors.New("results bucket is required")
	}
	return nil
}
