package routing

import "time"

// Config holds the per-node protocol constants.
type Config struct {
	MaxRouteLength int           // requests travelling further are dropped
	RetryTimeout   time.Duration // wait for a reply before rediscovering
	DupLifetime    time.Duration // how long a (originator, seq) pair is remembered
	BufferCapacity int           // pending packets awaiting a route
	MaxJitter      time.Duration // upper bound of the random send delay for RREQ/RREP
	MaxRetries     int           // consecutive rediscoveries before giving up, 0 retries forever
}

func DefaultConfig() Config {
	return Config{
		MaxRouteLength: 9,
		RetryTimeout:   2 * time.Second,
		DupLifetime:    30 * time.Second,
		BufferCapacity: 128,
		MaxJitter:      10 * time.Millisecond,
		MaxRetries:     0,
	}
}

// withDefaults fills zero fields from DefaultConfig. MaxJitter and
// MaxRetries are left alone since zero is meaningful for both.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRouteLength <= 0 {
		c.MaxRouteLength = d.MaxRouteLength
	}
	if c.RetryTimeout <= 0 {
		c.RetryTimeout = d.RetryTimeout
	}
	if c.DupLifetime <= 0 {
		c.DupLifetime = d.DupLifetime
	}
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = d.BufferCapacity
	}
	return c
}
