package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/cadence/pkg/config"
)

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "viper-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("returns viper with defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(v.GetString("storage.driver")).To(Equal("sqlite"))
		Expect(v.GetString("api.listen")).To(Equal(":8081"))
		Expect(v.GetDuration("sync.flush_interval")).To(Equal(30 * time.Second))
		Expect(v.GetFloat64("scheduler.start_ease")).To(Equal(2.5))
	})

	It("reads config file values over defaults", func() {
		data := `[lease]
provider = "redis"

[scheduler]
ease_bonus = 0.2
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(v.GetString("lease.provider")).To(Equal("redis"))
		Expect(v.GetFloat64("scheduler.ease_bonus")).To(Equal(0.2))
		Expect(v.GetDuration("lease.ttl")).To(Equal(90 * time.Second))
	})

	It("env vars take precedence over config file values", func() {
		data := `[storage]
driver = "postgres"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		GinkgoT().Setenv("CADENCE_STORAGE_DRIVER", "memory")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(v.GetString("storage.driver")).To(Equal("memory"))
	})

	Describe("FromViper", func() {
		It("resolves a full Config from every layer", func() {
			data := `[sync]
flush_interval = "1m"

[ai]
provider = "ollama"
`
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
			GinkgoT().Setenv("CADENCE_AI_MODEL", "llama3.2")

			v, err := config.InitViper(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := config.FromViper(v)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Sync.FlushInterval.Duration).To(Equal(time.Minute))
			Expect(cfg.AI.Provider).To(Equal("ollama"))
			Expect(cfg.AI.Model).To(Equal("llama3.2"))
			Expect(cfg.Sync.FlushThreshold).To(Equal(config.NewDefaultConfig().Sync.FlushThreshold))
		})

		It("rejects an invalid scheduler section", func() {
			GinkgoT().Setenv("CADENCE_SCHEDULER_HARD_FACTOR", "0.5")

			v, err := config.InitViper(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = config.FromViper(v)
			Expect(err).To(MatchError(ContainSubstring("invalid scheduler config")))
		})

		It("rejects a lease that expires before the next flush tick", func() {
			GinkgoT().Setenv("CADENCE_LEASE_TTL", "30s")
			GinkgoT().Setenv("CADENCE_SYNC_FLUSH_INTERVAL", "30s")

			v, err := config.InitViper(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = config.FromViper(v)
			Expect(err).To(MatchError(ContainSubstring("lease.ttl (30s) must be longer than sync.flush_interval (30s)")))
		})
	})
})

var _ = Describe("BindFlags", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "bindflag-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("binds cobra flags to viper keys via registry", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIListen, &listen)

		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())

		config.BindRegisteredFlags(v, cmd, config.ServeFlags, []string{config.FlagAPIListen})

		Expect(v.GetString("api.listen")).To(Equal(":7777"))
	})

	It("falls through to config when flag not set", func() {
		data := `[api]
listen = ":5555"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIListen, &listen)

		config.BindRegisteredFlags(v, cmd, config.ServeFlags, []string{config.FlagAPIListen})

		Expect(v.GetString("api.listen")).To(Equal(":5555"))
	})

	It("skips bindings for nonexistent registry keys", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.BindRegisteredFlags(v, cmd, config.FlagSet{}, []string{"nonexistent"})

		Expect(v.GetString("api.listen")).To(Equal(":8081"))
	})

	It("AddStringFlag pulls name, shorthand, and description from FlagSet", func() {
		cmd := &cobra.Command{Use: "test"}
		var path string
		config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &path)

		f := cmd.Flags().Lookup("sqlite")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("s"))
		Expect(f.Usage).To(Equal("Path to the SQLite database"))
		Expect(f.DefValue).To(BeEmpty())
	})

	It("AddUintFlag takes its default from the config defaults", func() {
		cmd := &cobra.Command{Use: "test"}
		var workers uint
		config.AddUintFlag(cmd, config.ServeFlags, config.FlagFlushWorkers, &workers)

		f := cmd.Flags().Lookup("flush-workers")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal("4"))
		Expect(workers).To(Equal(uint(4)))
	})
})
