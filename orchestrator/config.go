package orchestrator

import "time"

// Config holds the orchestrator's tunable knobs (spec §4.5.1). In New,
// zero or negative durations and counts are replaced by DefaultConfig's
// defaults, except that a zero SyncInterval is kept (it disables periodic
// sync) and CloseStoreOnStop is used as given.
type Config struct {
	// SyncInterval is the period of the periodic sync ticker. 0 disables
	// periodic sync entirely.
	SyncInterval time.Duration

	// BatchSize is the maximum number of pending changes pushed in one
	// push() attempt.
	BatchSize int

	// RetryAttempts is the total number of tries (first attempt plus
	// retries) made against the transport per half-sync.
	RetryAttempts int

	// RetryDelay is the base exponential-backoff delay: attempt k waits
	// RetryDelay * 2^(k-1) before attempt k+1.
	RetryDelay time.Duration

	// DebounceDelay is the coalescing window for push after a local
	// mutation.
	DebounceDelay time.Duration

	// OnlineProbeInterval is how often transport.IsOnline is polled. Spec
	// §4.5.1 pins this at a fixed 10s; it's still configurable here for
	// tests that need to drive it faster.
	OnlineProbeInterval time.Duration

	// PostOnlineSyncDelay is how long to wait, after an offline->online
	// transition, before triggering a sync.
	PostOnlineSyncDelay time.Duration

	// CloseStoreOnStop calls Store.Close during Stop when true.
	CloseStoreOnStop bool
}

// DefaultConfig returns spec §4.5.1's literal defaults.
func DefaultConfig() Config {
	return Config{
		SyncInterval:        30 * time.Second,
		BatchSize:           100,
		RetryAttempts:       3,
		RetryDelay:          time.Second,
		DebounceDelay:       time.Second,
		OnlineProbeInterval: 10 * time.Second,
		PostOnlineSyncDelay: time.Second,
		CloseStoreOnStop:    true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = d.RetryAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.DebounceDelay <= 0 {
		c.DebounceDelay = d.DebounceDelay
	}
	if c.OnlineProbeInterval <= 0 {
		c.OnlineProbeInterval = d.OnlineProbeInterval
	}
	if c.PostOnlineSyncDelay <= 0 {
		c.PostOnlineSyncDelay = d.PostOnlineSyncDelay
	}
	// SyncInterval 0 is meaningful (disables periodic sync); only a
	// negative value is nonsensical and gets the default.
	if c.SyncInterval < 0 {
		c.SyncInterval = d.SyncInterval
	}
	return c
}
