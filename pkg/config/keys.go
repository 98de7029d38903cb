package config

import (
	"fmt"
	"strconv"
	"time"
)

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeyOrder lists every supported key in TOML section order.
var configKeyOrder = []string{
	"storage.driver",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"scheduler.base_interval",
	"scheduler.new_item_interval",
	"scheduler.max_interval",
	"scheduler.min_ease",
	"scheduler.max_ease",
	"scheduler.start_ease",
	"scheduler.ease_penalty",
	"scheduler.ease_bonus",
	"scheduler.hard_factor",
	"scheduler.easy_factor",
	"sync.flush_interval",
	"sync.flush_threshold",
	"sync.flush_workers",
	"sync.close_timeout",
	"sync.write_timeout",
	"sync.max_attempts",
	"sync.history_size",
	"lease.provider",
	"lease.ttl",
	"lease.redis_addr",
	"lease.redis_password",
	"lease.redis_db",
	"ai.provider",
	"ai.target",
	"ai.model",
	"ai.api_key",
	"ai.timeout",
	"ai.max_context_items",
	"ai.max_history",
	"eventstream.provider",
	"eventstream.brokers",
	"eventstream.topic",
	"api.listen",
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver":       stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"scheduler.base_interval":     durationKey("scheduler.base_interval", func(c *Config) *Duration { return &c.Scheduler.BaseInterval }),
	"scheduler.new_item_interval": durationKey("scheduler.new_item_interval", func(c *Config) *Duration { return &c.Scheduler.NewItemInterval }),
	"scheduler.max_interval":      durationKey("scheduler.max_interval", func(c *Config) *Duration { return &c.Scheduler.MaxInterval }),
	"scheduler.min_ease":          floatKey("scheduler.min_ease", func(c *Config) *float64 { return &c.Scheduler.MinEase }),
	"scheduler.max_ease":          floatKey("scheduler.max_ease", func(c *Config) *float64 { return &c.Scheduler.MaxEase }),
	"scheduler.start_ease":        floatKey("scheduler.start_ease", func(c *Config) *float64 { return &c.Scheduler.StartEase }),
	"scheduler.ease_penalty":      floatKey("scheduler.ease_penalty", func(c *Config) *float64 { return &c.Scheduler.EasePenalty }),
	"scheduler.ease_bonus":        floatKey("scheduler.ease_bonus", func(c *Config) *float64 { return &c.Scheduler.EaseBonus }),
	"scheduler.hard_factor":       floatKey("scheduler.hard_factor", func(c *Config) *float64 { return &c.Scheduler.HardFactor }),
	"scheduler.easy_factor":       floatKey("scheduler.easy_factor", func(c *Config) *float64 { return &c.Scheduler.EasyFactor }),

	"sync.flush_interval":  durationKey("sync.flush_interval", func(c *Config) *Duration { return &c.Sync.FlushInterval }),
	"sync.flush_threshold": intKey("sync.flush_threshold", func(c *Config) *int { return &c.Sync.FlushThreshold }),
	"sync.flush_workers":   uintKey("sync.flush_workers", func(c *Config) *uint { return &c.Sync.FlushWorkers }),
	"sync.close_timeout":   durationKey("sync.close_timeout", func(c *Config) *Duration { return &c.Sync.CloseTimeout }),
	"sync.write_timeout":   durationKey("sync.write_timeout", func(c *Config) *Duration { return &c.Sync.WriteTimeout }),
	"sync.max_attempts":    uintKey("sync.max_attempts", func(c *Config) *uint { return &c.Sync.MaxAttempts }),
	"sync.history_size":    intKey("sync.history_size", func(c *Config) *int { return &c.Sync.HistorySize }),

	"lease.provider":       stringKey(func(c *Config) *string { return &c.Lease.Provider }),
	"lease.ttl":            durationKey("lease.ttl", func(c *Config) *Duration { return &c.Lease.TTL }),
	"lease.redis_addr":     stringKey(func(c *Config) *string { return &c.Lease.RedisAddr }),
	"lease.redis_password": stringKey(func(c *Config) *string { return &c.Lease.RedisPassword }),
	"lease.redis_db":       intKey("lease.redis_db", func(c *Config) *int { return &c.Lease.RedisDB }),

	"ai.provider":          stringKey(func(c *Config) *string { return &c.AI.Provider }),
	"ai.target":            stringKey(func(c *Config) *string { return &c.AI.Target }),
	"ai.model":             stringKey(func(c *Config) *string { return &c.AI.Model }),
	"ai.api_key":           stringKey(func(c *Config) *string { return &c.AI.APIKey }),
	"ai.timeout":           durationKey("ai.timeout", func(c *Config) *Duration { return &c.AI.Timeout }),
	"ai.max_context_items": intKey("ai.max_context_items", func(c *Config) *int { return &c.AI.MaxContextItems }),
	"ai.max_history":       intKey("ai.max_history", func(c *Config) *int { return &c.AI.MaxHistory }),

	"eventstream.provider": stringKey(func(c *Config) *string { return &c.EventStream.Provider }),
	"eventstream.brokers":  stringKey(func(c *Config) *string { return &c.EventStream.Brokers }),
	"eventstream.topic":    stringKey(func(c *Config) *string { return &c.EventStream.Topic }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func durationKey(name string, field func(c *Config) *Duration) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			d := field(c).Duration
			if d == 0 {
				return ""
			}
			return d.String()
		},
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			field(c).Duration = d
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatFloat(*field(c), 'g', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatUint(uint64(*field(c)), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}
