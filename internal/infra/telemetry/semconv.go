// Package telemetry provides OpenTelemetry initialization and KINO instrumentation.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attribute keys for KINO telemetry.
// Following OpenTelemetry naming conventions: namespace.attribute_name

const (
	// AttrEnvironment specifies the deployment environment for every metric.
	AttrEnvironment = attribute.Key("environment")
	// AttrResult records the outcome of an operation (success, not_found, fetch, parse, ...).
	AttrResult = attribute.Key("result")
	// AttrCacheBackend identifies the draw cache implementation (file, postgres, memory).
	AttrCacheBackend = attribute.Key("cache.backend")
	// AttrCacheOutcome distinguishes hits from misses.
	AttrCacheOutcome = attribute.Key("cache.outcome")
	// AttrVariant labels payout metrics with the pay-table variant.
	AttrVariant = attribute.Key("payout.variant")
	// AttrSource records where a page of draws came from (cache or remote).
	AttrSource = attribute.Key("draws.source")
)

// Cache outcome values
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Draw source values
const (
	SourceCache  = "cache"
	SourceRemote = "remote"
)

// FetchAttributes returns attributes for remote fetch metrics.
func FetchAttributes(environment, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrResult.String(result),
	}
}

// CacheAttributes returns attributes for cache lookup metrics.
func CacheAttributes(environment, backend, outcome string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrCacheBackend.String(backend),
		AttrCacheOutcome.String(outcome),
	}
}

// PayoutAttributes returns attributes for payout evaluation metrics.
func PayoutAttributes(environment, variant string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVariant.String(variant),
	}
}
