package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cadence/pkg/config"
	"github.com/papercomputeco/cadence/pkg/scheduler"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	writeConfig := func(data string) {
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())
	}

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads a valid config file", func() {
			writeConfig(`version = 0

[storage]
driver = "postgres"
postgres_dsn = "postgres://localhost/cadence"

[scheduler]
base_interval = "12h"
min_ease = 1.5
`)

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Storage.Driver).To(Equal("postgres"))
			Expect(cfg.Storage.PostgresDSN).To(Equal("postgres://localhost/cadence"))
			Expect(cfg.Scheduler.BaseInterval.Duration).To(Equal(12 * time.Hour))
			Expect(cfg.Scheduler.MinEase).To(Equal(1.5))
		})

		It("fills in defaults for unset fields in a partial config", func() {
			writeConfig(`[lease]
provider = "redis"
redis_addr = "localhost:6379"
`)

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())

			defaults := config.NewDefaultConfig()
			Expect(cfg.Lease.Provider).To(Equal("redis"))
			Expect(cfg.Lease.RedisAddr).To(Equal("localhost:6379"))
			Expect(cfg.Lease.TTL).To(Equal(defaults.Lease.TTL))
			Expect(cfg.Storage.Driver).To(Equal(defaults.Storage.Driver))
			Expect(cfg.Scheduler).To(Equal(defaults.Scheduler))
			Expect(cfg.Sync).To(Equal(defaults.Sync))
			Expect(cfg.API.Listen).To(Equal(defaults.API.Listen))
			Expect(cfg.EventStream.Topic).To(Equal(defaults.EventStream.Topic))
		})

		It("returns error for malformed TOML", func() {
			writeConfig("not valid toml [[[")

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(cfg).To(BeNil())
		})

		It("returns error for a malformed duration", func() {
			writeConfig(`[sync]
flush_interval = "soon"
`)

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(HaveOccurred())
		})

		It("returns error for unsupported config version", func() {
			writeConfig("version = 99\n")

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("unsupported config version 99")))
		})
	})

	Describe("SaveConfig", func() {
		It("round-trips every section", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.Storage.SQLitePath = "/tmp/cadence.sqlite"
			cfg.Scheduler.MaxInterval = config.Duration{Duration: 180 * 24 * time.Hour}
			cfg.Sync.FlushWorkers = 8
			cfg.AI.Provider = "openai"
			cfg.AI.Model = "phi-4-mini"
			cfg.EventStream.Brokers = "kafka-1:9092,kafka-2:9092"

			Expect(c.SaveConfig(cfg)).To(Succeed())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("writes durations as strings", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(config.NewDefaultConfig())).To(Succeed())

			data, err := os.ReadFile(c.GetTarget())
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`flush_interval = "30s"`))
			Expect(string(data)).To(ContainSubstring(`base_interval = "24h0m0s"`))
		})

		It("returns error for nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SaveConfig(nil)).To(MatchError("cannot save nil config"))
		})
	})

	Describe("SetConfigValue", func() {
		It("sets a string config key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("api.listen", ":9000")).To(Succeed())

			val, err := c.GetConfigValue("api.listen")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal(":9000"))
		})

		It("sets duration, float, int and uint keys", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("sync.flush_interval", "45s")).To(Succeed())
			Expect(c.SetConfigValue("scheduler.ease_bonus", "0.15")).To(Succeed())
			Expect(c.SetConfigValue("lease.redis_db", "2")).To(Succeed())
			Expect(c.SetConfigValue("sync.flush_workers", "6")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Sync.FlushInterval.Duration).To(Equal(45 * time.Second))
			Expect(cfg.Scheduler.EaseBonus).To(Equal(0.15))
			Expect(cfg.Lease.RedisDB).To(Equal(2))
			Expect(cfg.Sync.FlushWorkers).To(Equal(uint(6)))
		})

		It("preserves existing values when setting a new key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("ai.provider", "ollama")).To(Succeed())
			Expect(c.SetConfigValue("ai.model", "qwen2.5")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.AI.Provider).To(Equal("ollama"))
			Expect(cfg.AI.Model).To(Equal("qwen2.5"))
		})

		It("returns error for unknown key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("proxy.upstream", "x")).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("returns error for unparsable values", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("sync.flush_interval", "often")).To(MatchError(ContainSubstring("sync.flush_interval")))
			Expect(c.SetConfigValue("sync.flush_workers", "-1")).To(HaveOccurred())
			Expect(c.SetConfigValue("scheduler.min_ease", "low")).To(HaveOccurred())
		})

		It("rejects scheduler values that break the schedule", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SetConfigValue("scheduler.max_ease", "1.1")
			Expect(err).To(MatchError(ContainSubstring("invalid value for scheduler.max_ease")))

			_, statErr := os.Stat(c.GetTarget())
			Expect(os.IsNotExist(statErr)).To(BeTrue())
		})

		It("rejects a flush interval the lease cannot outlive", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("sync.flush_interval", "2m")).To(MatchError(ContainSubstring("lease.ttl (1m30s) must be longer")))
			Expect(c.SetConfigValue("lease.ttl", "10s")).To(MatchError(ContainSubstring("invalid value for lease.ttl")))

			Expect(c.SetConfigValue("lease.ttl", "5m")).To(Succeed())
			Expect(c.SetConfigValue("sync.flush_interval", "2m")).To(Succeed())
		})
	})

	Describe("GetConfigValue", func() {
		It("returns default values when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			val, err := c.GetConfigValue("scheduler.new_item_interval")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("10m0s"))

			val, err = c.GetConfigValue("scheduler.min_ease")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("1.3"))
		})

		It("returns empty string for key with no default", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			val, err := c.GetConfigValue("ai.provider")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(BeEmpty())
		})

		It("returns error for unknown key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.GetConfigValue("nonexistent")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ValidConfigKeys", func() {
		It("lists every key in section order", func() {
			keys := config.ValidConfigKeys()
			Expect(keys[0]).To(Equal("storage.driver"))
			Expect(keys[len(keys)-1]).To(Equal("api.listen"))
			Expect(keys).To(ContainElements("scheduler.ease_penalty", "sync.close_timeout", "lease.ttl", "ai.max_history", "eventstream.topic"))

			for _, k := range keys {
				Expect(config.IsValidConfigKey(k)).To(BeTrue(), k)
			}
		})

		It("rejects unknown keys", func() {
			Expect(config.IsValidConfigKey("embedding.model")).To(BeFalse())
			Expect(config.IsValidConfigKey("")).To(BeFalse())
		})
	})
})

var _ = Describe("NewDefaultConfig", func() {
	It("mirrors the default scheduler params", func() {
		cfg := config.NewDefaultConfig()
		Expect(cfg.SchedulerParams()).To(Equal(scheduler.DefaultParams()))
		Expect(cfg.SchedulerParams().Validate()).To(Succeed())
	})

	It("places the SQLite database inside the config dir by default", func() {
		cfg := config.NewDefaultConfig()
		Expect(cfg.SQLitePath("/home/mei/.cadence")).To(Equal("/home/mei/.cadence/cadence.sqlite"))
		Expect(cfg.SQLitePath("")).To(BeEmpty())

		cfg.Storage.SQLitePath = "/data/progress.db"
		Expect(cfg.SQLitePath("/home/mei/.cadence")).To(Equal("/data/progress.db"))
	})
})

var _ = Describe("ParseConfigTOML", func() {
	It("returns empty config for empty input", func() {
		cfg, err := config.ParseConfigTOML([]byte(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(*cfg).To(Equal(config.Config{}))
	})
})
