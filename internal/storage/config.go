package storage

import "github.com/gogotex/gogotex/backend/go-collab/internal/config"

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// FromArchiveConfig maps the service configuration onto a MinIO config.
// It returns nil when archiving is disabled or no endpoint is set.
func FromArchiveConfig(a config.ArchiveConfig) *MinIOConfig {
	if !a.Enabled || a.Endpoint == "" {
		return nil
	}
	bucket := a.Bucket
	if bucket == "" {
		bucket = "gogotex-snapshots"
	}
	return &MinIOConfig{
		Endpoint:  a.Endpoint,
		AccessKey: a.AccessKey,
		SecretKey: a.SecretKey,
		UseSSL:    a.UseSSL,
		Bucket:    bucket,
	}
}
