package config

import "strings"

// Environment identifies the runtime environment label attached to telemetry.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// CacheBackend selects the draw cache implementation.
type CacheBackend string

const (
	// CacheNone disables caching; every page is fetched.
	CacheNone CacheBackend = "none"
	// CacheFile stores pages as JSON files under cache.directory.
	CacheFile CacheBackend = "file"
	// CachePostgres stores pages in the draw_pages table.
	CachePostgres CacheBackend = "postgres"
	// CacheMemory keeps pages for the lifetime of the process.
	CacheMemory CacheBackend = "memory"
)

// ParseCacheBackend normalises a backend name; unknown names are returned as-is
// and rejected by Validate.
func ParseCacheBackend(raw string) CacheBackend {
	return CacheBackend(strings.ToLower(strings.TrimSpace(raw)))
}

func (b CacheBackend) valid() bool {
	switch b {
	case CacheNone, CacheFile, CachePostgres, CacheMemory:
		return true
	default:
		return false
	}
}

// LogFormat selects the logrus formatter.
type LogFormat string

const (
	// LogText renders human-readable lines.
	LogText LogFormat = "text"
	// LogJSON renders one JSON object per entry.
	LogJSON LogFormat = "json"
)
