package core

import (
	"fmt"
	"time"
)

// DefaultCacheSize is the number of compiled pipelines kept when
// Config.CacheSize is not set.
const DefaultCacheSize = 5000

// Config struct holds the engine configuration
type Config struct {
	// Number of compiled pipelines to keep in the cache
	CacheSize int `mapstructure:"cache_size" json:"cache_size" yaml:"cache_size"`

	// When set to true compiled pipelines are not cached
	DisableCache bool `mapstructure:"disable_cache" json:"disable_cache" yaml:"disable_cache"`

	// When set to true the shape is reloaded when its source changes.
	// File shapes are watched for writes, other sources are polled
	WatchShape bool `mapstructure:"watch_shape" json:"watch_shape" yaml:"watch_shape"`

	// How often non-file shape sources are polled when WatchShape is set.
	// Values under a second disable polling
	ShapePollDuration time.Duration `mapstructure:"shape_poll_every" json:"shape_poll_every" yaml:"shape_poll_every"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.CacheSize < 0 {
		return fmt.Errorf("pipejin: cache_size must not be negative: %d", c.CacheSize)
	}
	if c.ShapePollDuration < 0 {
		return fmt.Errorf("pipejin: shape_poll_every must not be negative: %s", c.ShapePollDuration)
	}
	return nil
}
