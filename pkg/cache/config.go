package cache

import "time"

// LayerConfig holds the TTL policy shared by cache layer implementations.
type LayerConfig struct {
	// Name identifies the layer (e.g. "L1-memory", "L2-redis").
	Name string

	// DefaultTTL is applied when Set is called with a zero ttl.
	DefaultTTL time.Duration

	// MaxTTL caps the ttl of any entry. Zero means uncapped.
	MaxTTL time.Duration
}

// Validate reports whether the configuration is internally consistent.
func (c *LayerConfig) Validate() error {
	if c.Name == "" {
		return ErrInvalidValue
	}
	if c.DefaultTTL < 0 || c.MaxTTL < 0 {
		return ErrInvalidValue
	}
	if c.MaxTTL > 0 && c.DefaultTTL > c.MaxTTL {
		return ErrInvalidValue
	}
	return nil
}

// EffectiveTTL resolves the ttl to store an entry with: the default for a
// zero ttl, capped at MaxTTL when one is configured.
func (c *LayerConfig) EffectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = c.DefaultTTL
	}
	if c.MaxTTL > 0 && ttl > c.MaxTTL {
		return c.MaxTTL
	}
	return ttl
}
