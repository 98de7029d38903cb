package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/papercomputeco/cadence/pkg/scheduler"
)

const (
	defaultStorageDriver = "sqlite"
	defaultSQLiteFile    = "cadence.sqlite"

	defaultFlushInterval  = 30 * time.Second
	defaultFlushThreshold = 20
	defaultFlushWorkers   = 4
	defaultCloseTimeout   = 5 * time.Second
	defaultWriteTimeout   = 2 * time.Second
	defaultMaxAttempts    = 3
	defaultHistorySize    = 8

	defaultLeaseProvider = "local"
	defaultLeaseTTL      = 90 * time.Second

	defaultAITimeout        = 60 * time.Second
	defaultMaxContextItems  = 10
	defaultMaxHistory       = 5
	defaultEventStreamTopic = "cadence.mastery"
	defaultAPIListen        = ":8081"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	p := scheduler.DefaultParams()

	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		Scheduler: SchedulerConfig{
			BaseInterval:    Duration{p.BaseInterval},
			NewItemInterval: Duration{p.NewItemInterval},
			MaxInterval:     Duration{p.MaxInterval},
			MinEase:         p.MinEase,
			MaxEase:         p.MaxEase,
			StartEase:       p.StartEase,
			EasePenalty:     p.EasePenalty,
			EaseBonus:       p.EaseBonus,
			HardFactor:      p.HardFactor,
			EasyFactor:      p.EasyFactor,
		},
		Sync: SyncConfig{
			FlushInterval:  Duration{defaultFlushInterval},
			FlushThreshold: defaultFlushThreshold,
			FlushWorkers:   defaultFlushWorkers,
			CloseTimeout:   Duration{defaultCloseTimeout},
			WriteTimeout:   Duration{defaultWriteTimeout},
			MaxAttempts:    defaultMaxAttempts,
			HistorySize:    defaultHistorySize,
		},
		Lease: LeaseConfig{
			Provider: defaultLeaseProvider,
			TTL:      Duration{defaultLeaseTTL},
		},
		AI: AIConfig{
			Timeout:         Duration{defaultAITimeout},
			MaxContextItems: defaultMaxContextItems,
			MaxHistory:      defaultMaxHistory,
		},
		EventStream: EventStreamConfig{
			Topic: defaultEventStreamTopic,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
	}
}

// SQLitePath returns the configured SQLite path, or cadence.sqlite inside
// dir when none is set.
func (c *Config) SQLitePath(dir string) string {
	if c.Storage.SQLitePath != "" || dir == "" {
		return c.Storage.SQLitePath
	}
	return filepath.Join(dir, defaultSQLiteFile)
}

// SchedulerParams converts the [scheduler] section into scheduler.Params.
func (c *Config) SchedulerParams() scheduler.Params {
	s := c.Scheduler
	return scheduler.Params{
		BaseInterval:    s.BaseInterval.Duration,
		NewItemInterval: s.NewItemInterval.Duration,
		MaxInterval:     s.MaxInterval.Duration,
		MinEase:         s.MinEase,
		MaxEase:         s.MaxEase,
		StartEase:       s.StartEase,
		EasePenalty:     s.EasePenalty,
		EaseBonus:       s.EaseBonus,
		HardFactor:      s.HardFactor,
		EasyFactor:      s.EasyFactor,
	}
}

// Validate reports settings the scheduler or the coordinator cannot run
// with. A lease must outlive at least one flush interval.
func (c *Config) Validate() error {
	if err := c.SchedulerParams().Validate(); err != nil {
		return fmt.Errorf("invalid scheduler config: %w", err)
	}
	if ttl, interval := c.Lease.TTL.Duration, c.Sync.FlushInterval.Duration; ttl <= interval {
		return fmt.Errorf("lease.ttl (%s) must be longer than sync.flush_interval (%s)", ttl, interval)
	}
	return nil
}
