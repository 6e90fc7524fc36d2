package sync

import "time"

// Config contains configuration options that allow customization
// of how Shiori synchronises against the external list services.
type Config struct {
	// How often a full sync cycle runs. Each cycle fetches every
	// (source, user, media type) combination, so this should be kept
	// coarse to stay friendly to the external APIs.
	SyncIntervalSeconds int `yaml:"sync_interval_seconds" env:"SYNC_INTERVAL_SECONDS" env-default:"3600"`

	// The deadline for a single list fetch. A fetch that exceeds it is
	// skipped for this cycle, not retried.
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds" env:"SYNC_FETCH_TIMEOUT_SECONDS" env-default:"30"`

	// Controls the number of workers performing list fetches. Fetches
	// against the same service are still paced by the per-source rate
	// limit regardless of this value.
	FetchParallelism int `yaml:"fetch_parallelism" env:"SYNC_FETCH_PARALLELISM" env-default:"4"`

	// Per-source request budget used to construct the rate limiters.
	SourceRequestsPerMinute int `yaml:"source_requests_per_minute" env:"SYNC_SOURCE_REQUESTS_PER_MINUTE" env-default:"60"`
}

func (config *Config) SyncInterval() time.Duration {
	return time.Duration(config.SyncIntervalSeconds) * time.Second
}

func (config *Config) FetchTimeout() time.Duration {
	return time.Duration(config.FetchTimeoutSeconds) * time.Second
}
