package config

import (
	"time"

	"git.home.luguber.info/inful/meshpack/internal/foundation/normalization"
)

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var retryBackoffNormalizer = normalization.NewNormalizer(map[string]RetryBackoffMode{
	"fixed":       RetryBackoffFixed,
	"linear":      RetryBackoffLinear,
	"exponential": RetryBackoffExponential,
}, "")

// NormalizeRetryBackoff converts arbitrary user input (case-insensitive) into a typed mode, returning empty string for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	return retryBackoffNormalizer.Normalize(raw)
}

// RetryConfig bounds the retry loop applied to network steps (source fetches,
// installer and archive downloads). Local build steps are never retried.
type RetryConfig struct {
	Backoff      RetryBackoffMode `yaml:"backoff"`
	InitialDelay time.Duration    `yaml:"initial_delay"`
	MaxDelay     time.Duration    `yaml:"max_delay"`
	MaxRetries   int              `yaml:"max_retries"`
}

// TimeoutsConfig sets per-invocation limits for external processes.
type TimeoutsConfig struct {
	Default time.Duration `yaml:"default"`
	Fetch   time.Duration `yaml:"fetch"`
	Build   time.Duration `yaml:"build"`
	Package time.Duration `yaml:"package"`
}
