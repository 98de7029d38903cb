package config

import (
	"time"
)

// Config represents the persistent cadence configuration stored as
// config.toml in the .cadence/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
	Sync        SyncConfig        `toml:"sync"`
	Lease       LeaseConfig       `toml:"lease"`
	AI          AIConfig          `toml:"ai"`
	EventStream EventStreamConfig `toml:"eventstream"`
	API         APIConfig         `toml:"api"`
}

// StorageConfig selects and locates the progress store.
type StorageConfig struct {
	// Driver is one of "sqlite", "postgres" or "memory".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// SchedulerConfig holds the scheduling constants. Intervals are duration
// strings ("24h", "10m").
type SchedulerConfig struct {
	BaseInterval    Duration `toml:"base_interval,omitempty"`
	NewItemInterval Duration `toml:"new_item_interval,omitempty"`
	MaxInterval     Duration `toml:"max_interval,omitempty"`
	MinEase         float64  `toml:"min_ease,omitempty"`
	MaxEase         float64  `toml:"max_ease,omitempty"`
	StartEase       float64  `toml:"start_ease,omitempty"`
	EasePenalty     float64  `toml:"ease_penalty,omitempty"`
	EaseBonus       float64  `toml:"ease_bonus,omitempty"`
	HardFactor      float64  `toml:"hard_factor,omitempty"`
	EasyFactor      float64  `toml:"easy_factor,omitempty"`
}

// SyncConfig tunes the coordinator's flushing and store retries.
type SyncConfig struct {
	FlushInterval  Duration `toml:"flush_interval,omitempty"`
	FlushThreshold int      `toml:"flush_threshold,omitempty"`
	FlushWorkers   uint     `toml:"flush_workers,omitempty"`
	CloseTimeout   Duration `toml:"close_timeout,omitempty"`
	WriteTimeout   Duration `toml:"write_timeout,omitempty"`
	MaxAttempts    uint     `toml:"max_attempts,omitempty"`
	HistorySize    int      `toml:"history_size,omitempty"`
}

// LeaseConfig selects the per-user lease manager.
type LeaseConfig struct {
	// Provider is "local" or "redis".
	Provider      string   `toml:"provider,omitempty"`
	TTL           Duration `toml:"ttl,omitempty"`
	RedisAddr     string   `toml:"redis_addr,omitempty"`
	RedisPassword string   `toml:"redis_password,omitempty"`
	RedisDB       int      `toml:"redis_db,omitempty"`
}

// AIConfig configures the optional AI capability behind the memory bridge.
// An empty provider disables it.
type AIConfig struct {
	Provider        string   `toml:"provider,omitempty"`
	Target          string   `toml:"target,omitempty"`
	Model           string   `toml:"model,omitempty"`
	APIKey          string   `toml:"api_key,omitempty"`
	Timeout         Duration `toml:"timeout,omitempty"`
	MaxContextItems int      `toml:"max_context_items,omitempty"`
	MaxHistory      int      `toml:"max_history,omitempty"`
}

// EventStreamConfig configures mastery event publishing. An empty provider
// disables it.
type EventStreamConfig struct {
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma-separated list of Kafka broker addresses.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// Duration is a time.Duration written as a duration string in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}
