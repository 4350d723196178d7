package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvSyncBatchSize       = "OCB_SYNC_BATCH_SIZE"
	EnvSyncPreservePinned  = "OCB_SYNC_PRESERVE_PINNED"
	EnvSyncFreshFor        = "OCB_SYNC_FRESH_FOR"
	EnvSyncRetryAfter      = "OCB_SYNC_RETRY_AFTER"
	EnvSyncFuzzyThreshold  = "OCB_SYNC_FUZZY_THRESHOLD"
	EnvSyncStrictThreshold = "OCB_SYNC_STRICT_THRESHOLD"
)

// SyncConfig holds reconciliation tuning: batch commit size, removal
// policy, match staleness windows, and matcher acceptance thresholds.
type SyncConfig struct {
	BatchSize       int      `toml:"batch_size"`
	PreservePinned  *bool    `toml:"preserve_pinned"`
	FreshFor        string   `toml:"fresh_for"`
	RetryAfter      string   `toml:"retry_after"`
	FuzzyThreshold  float64  `toml:"fuzzy_threshold"`
	StrictThreshold float64  `toml:"strict_threshold"`
	LinkTargets     []string `toml:"link_targets"`
}

// PreservePinnedValue defaults to true: identities holding a manual
// override survive the removal pass unless explicitly configured otherwise.
func (c *SyncConfig) PreservePinnedValue() bool {
	if c.PreservePinned == nil {
		return true
	}
	return *c.PreservePinned
}

// FreshForDuration returns FreshFor as a time.Duration.
func (c *SyncConfig) FreshForDuration() time.Duration {
	d, _ := time.ParseDuration(c.FreshFor)
	return d
}

// RetryAfterDuration returns RetryAfter as a time.Duration.
func (c *SyncConfig) RetryAfterDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryAfter)
	return d
}

// Merge applies non-zero values from the overlay configuration.
func (c *SyncConfig) Merge(overlay *SyncConfig) {
	if overlay.BatchSize != 0 {
		c.BatchSize = overlay.BatchSize
	}
	if overlay.PreservePinned != nil {
		c.PreservePinned = overlay.PreservePinned
	}
	if overlay.FreshFor != "" {
		c.FreshFor = overlay.FreshFor
	}
	if overlay.RetryAfter != "" {
		c.RetryAfter = overlay.RetryAfter
	}
	if overlay.FuzzyThreshold != 0 {
		c.FuzzyThreshold = overlay.FuzzyThreshold
	}
	if overlay.StrictThreshold != 0 {
		c.StrictThreshold = overlay.StrictThreshold
	}
	if len(overlay.LinkTargets) > 0 {
		c.LinkTargets = overlay.LinkTargets
	}
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *SyncConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

func (c *SyncConfig) loadDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.FreshFor == "" {
		c.FreshFor = "168h"
	}
	if c.RetryAfter == "" {
		c.RetryAfter = "24h"
	}
	if len(c.LinkTargets) == 0 {
		c.LinkTargets = []string{"jira", "github", "slack"}
	}
}

func (c *SyncConfig) loadEnv() {
	if v := os.Getenv(EnvSyncBatchSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchSize = n
		}
	}
	if v := os.Getenv(EnvSyncPreservePinned); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.PreservePinned = &b
		}
	}
	if v := os.Getenv(EnvSyncFreshFor); v != "" {
		c.FreshFor = v
	}
	if v := os.Getenv(EnvSyncRetryAfter); v != "" {
		c.RetryAfter = v
	}
	if v := os.Getenv(EnvSyncFuzzyThreshold); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.FuzzyThreshold = f
		}
	}
	if v := os.Getenv(EnvSyncStrictThreshold); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.StrictThreshold = f
		}
	}
}

func (c *SyncConfig) validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive")
	}
	if _, err := time.ParseDuration(c.FreshFor); err != nil {
		return fmt.Errorf("invalid fresh_for: %w", err)
	}
	if _, err := time.ParseDuration(c.RetryAfter); err != nil {
		return fmt.Errorf("invalid retry_after: %w", err)
	}
	if c.FuzzyThreshold < 0 || c.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy_threshold must be within [0, 1]")
	}
	if c.StrictThreshold < 0 || c.StrictThreshold > 1 {
		return fmt.Errorf("strict_threshold must be within [0, 1]")
	}
	return nil
}
