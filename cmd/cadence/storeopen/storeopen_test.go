package storeopen_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cadence/cmd/cadence/storeopen"
	"github.com/papercomputeco/cadence/pkg/config"
	"github.com/papercomputeco/cadence/pkg/logger"
	"github.com/papercomputeco/cadence/pkg/storage"
	"github.com/papercomputeco/cadence/pkg/storage/storagetest"
)

var _ = Describe("Open", func() {
	var (
		ctx    context.Context
		cfg    *config.Config
		tmpDir string
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.NewDefaultConfig()
		tmpDir = GinkgoT().TempDir()
	})

	It("places the SQLite store in the config directory by default", func() {
		driver, err := storeopen.Open(ctx, cfg, tmpDir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(driver.Close)

		Expect(driver.CompareAndSwap(ctx, "mei", 0, storagetest.Item("ni-hao", 1))).To(Succeed())

		_, err = os.Stat(filepath.Join(tmpDir, "cadence.sqlite"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("honors an explicit SQLite path", func() {
		cfg.Storage.SQLitePath = filepath.Join(tmpDir, "progress.db")

		driver, err := storeopen.Open(ctx, cfg, "", logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(driver.Close)

		_, err = os.Stat(cfg.Storage.SQLitePath)
		Expect(err).NotTo(HaveOccurred())
	})

	It("opens the in-memory store", func() {
		cfg.Storage.Driver = storeopen.Memory

		driver, err := storeopen.Open(ctx, cfg, tmpDir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		_, err = driver.Load(ctx, "mei")
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})

	It("requires a DSN for PostgreSQL", func() {
		cfg.Storage.Driver = storeopen.Postgres

		_, err := storeopen.Open(ctx, cfg, tmpDir, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("postgres_dsn is required")))
	})

	It("rejects unknown drivers", func() {
		cfg.Storage.Driver = "mongo"

		_, err := storeopen.Open(ctx, cfg, tmpDir, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("unknown storage driver")))
	})
})
