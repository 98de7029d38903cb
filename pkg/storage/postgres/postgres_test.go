package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cadence/pkg/storage"
	"github.com/papercomputeco/cadence/pkg/storage/postgres"
	"github.com/papercomputeco/cadence/pkg/storage/storagetest"
)

var _ storage.Driver = (*postgres.Driver)(nil)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("CADENCE_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("CADENCE_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	storagetest.DriverBehaviors(func() storage.Driver {
		ctx := context.Background()
		driver, err := postgres.NewDriver(ctx, connStr())
		Expect(err).NotTo(HaveOccurred())

		// Each spec starts from empty tables.
		_, err = driver.DB.ExecContext(ctx, "TRUNCATE item_progress, review_records")
		Expect(err).NotTo(HaveOccurred())
		return driver
	})
})
