// Package config holds the service configuration.
//
// Configs are JSON5 files so they can carry comments, and environment
// variables in the file (e.g. "${DATABASE_URL}") are expanded before
// parsing, which is how secrets reach the config in deployment.
package config

import (
	"github.com/a8m/envsubst"
	"github.com/flynn/json5"

	"github.com/10allday-services/syncstorage/go/skerr"
)

// Config is the full configuration for one syncstorage instance.
type Config struct {
	// DatabaseURL is the connection string of the backing database.
	DatabaseURL string `json:"database_url"`

	// PoolMaxSize caps the backend connection pool.
	PoolMaxSize int32 `json:"pool_max_size"`

	// BatchTTLSeconds is how long a staged batch stays committable.
	BatchTTLSeconds int64 `json:"batch_ttl_seconds"`

	// MaxPayloadBytes caps one BSO payload.
	MaxPayloadBytes int `json:"max_payload_bytes"`

	// MaxTTLSeconds is the TTL assigned to BSOs uploaded without one.
	MaxTTLSeconds int64 `json:"max_ttl_seconds"`

	// QuotaEnabled turns per-user quota accounting on.
	QuotaEnabled bool `json:"quota_enabled"`

	// QuotaBytesPerUser is the summed payload-byte ceiling per user.
	QuotaBytesPerUser int64 `json:"quota_bytes_per_user"`

	// MaxTotalRecords and MaxTotalBytes bound a whole batch at commit time.
	// Zero means unenforced.
	MaxTotalRecords int   `json:"max_total_records"`
	MaxTotalBytes   int64 `json:"max_total_bytes"`

	// MaxPostRecords and MaxPostBytes bound a single POST.
	MaxPostRecords int   `json:"max_post_records"`
	MaxPostBytes   int64 `json:"max_post_bytes"`

	// MaxRequestBytes bounds a request body.
	MaxRequestBytes int64 `json:"max_request_bytes"`
}

// Limits is the subset of Config served to clients from
// /info/configuration.
type Limits struct {
	MaxPayloadBytes int   `json:"max_record_payload_bytes"`
	MaxPostRecords  int   `json:"max_post_records"`
	MaxPostBytes    int64 `json:"max_post_bytes"`
	MaxTotalRecords int   `json:"max_total_records"`
	MaxTotalBytes   int64 `json:"max_total_bytes"`
	MaxRequestBytes int64 `json:"max_request_bytes"`
}

// New returns a Config with the defaults the hosted service runs with.
func New() *Config {
	return &Config{
		PoolMaxSize:       25,
		BatchTTLSeconds:   2 * 60 * 60,
		MaxPayloadBytes:   2 * 1024 * 1024,
		MaxTTLSeconds:     2100000000,
		QuotaBytesPerUser: 2 * 1024 * 1024 * 1024,
		MaxTotalRecords:   100_000,
		MaxTotalBytes:     100 * 1024 * 1024,
		MaxPostRecords:    100,
		MaxPostBytes:      2 * 1024 * 1024,
		MaxRequestBytes:   2*1024*1024 + 4*1024,
	}
}

// Load reads the JSON5 config file at path over the defaults, expanding
// environment variables first.
func Load(path string) (*Config, error) {
	b, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, skerr.Wrapf(err, "reading config file %q", path)
	}
	c := New()
	if err := json5.Unmarshal(b, c); err != nil {
		return nil, skerr.Wrapf(err, "parsing config file %q", path)
	}
	if err := c.Validate(); err != nil {
		return nil, skerr.Wrap(err)
	}
	return c, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return skerr.Fmt("database_url is required")
	}
	if c.PoolMaxSize <= 0 {
		return skerr.Fmt("pool_max_size must be positive, got %d", c.PoolMaxSize)
	}
	if c.BatchTTLSeconds <= 0 {
		return skerr.Fmt("batch_ttl_seconds must be positive, got %d", c.BatchTTLSeconds)
	}
	if c.MaxPayloadBytes <= 0 {
		return skerr.Fmt("max_payload_bytes must be positive, got %d", c.MaxPayloadBytes)
	}
	if c.MaxTTLSeconds <= 0 {
		return skerr.Fmt("max_ttl_seconds must be positive, got %d", c.MaxTTLSeconds)
	}
	if c.QuotaEnabled && c.QuotaBytesPerUser <= 0 {
		return skerr.Fmt("quota_bytes_per_user must be positive when quota_enabled")
	}
	return nil
}

// Limits returns the client-visible limits.
func (c *Config) Limits() Limits {
	return Limits{
		MaxPayloadBytes: c.MaxPayloadBytes,
		MaxPostRecords:  c.MaxPostRecords,
		MaxPostBytes:    c.MaxPostBytes,
		MaxTotalRecords: c.MaxTotalRecords,
		MaxTotalBytes:   c.MaxTotalBytes,
		MaxRequestBytes: c.MaxRequestBytes,
	}
}
