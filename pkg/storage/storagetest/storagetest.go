// Package storagetest holds the behavioral specs every storage.Driver must
// pass. Driver packages run them from their own suites.
package storagetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/storage"
)

var epoch = time.Date(2026, 1, 10, 8, 30, 0, 0, time.UTC)

// Item returns reviewed progress for itemID at version.
func Item(itemID string, version uint64) progress.ItemProgress {
	return progress.ItemProgress{
		ItemID:             itemID,
		ContentRef:         "deck/hsk1/" + itemID,
		DifficultyClass:    progress.Young,
		Interval:           36 * time.Hour,
		EaseFactor:         2.2,
		ConsecutiveCorrect: 2,
		DueAt:              epoch.Add(36 * time.Hour),
		LastReviewedAt:     epoch,
		Version:            version,
	}
}

// DriverBehaviors registers the shared driver specs. newDriver is called
// before every spec; the returned driver is closed afterwards.
func DriverBehaviors(newDriver func() storage.Driver) {
	var (
		ctx    context.Context
		driver storage.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
			driver = nil
		}
	})

	Describe("Load", func() {
		It("returns NotFoundError for an unknown user", func() {
			_, err := driver.Load(ctx, "nobody")
			Expect(err).To(HaveOccurred())
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("returns only the user's own items", func() {
			Expect(driver.CompareAndSwap(ctx, "mei", 0, Item("ni-hao", 1))).To(Succeed())
			Expect(driver.CompareAndSwap(ctx, "li", 0, Item("xie-xie", 1))).To(Succeed())

			snapshot, err := driver.Load(ctx, "mei")
			Expect(err).NotTo(HaveOccurred())
			Expect(snapshot.UserID).To(Equal("mei"))
			Expect(snapshot.Items).To(HaveLen(1))
			Expect(snapshot.Items).To(HaveKey("ni-hao"))
		})
	})

	Describe("LoadItem", func() {
		It("returns NotFoundError for a missing item", func() {
			_, err := driver.LoadItem(ctx, "mei", "missing")
			var nf storage.NotFoundError
			Expect(err).To(BeAssignableToTypeOf(nf))
		})

		It("round-trips every field", func() {
			item := Item("ni-hao", 3)
			Expect(driver.CompareAndSwap(ctx, "mei", 0, item)).To(Succeed())

			got, err := driver.LoadItem(ctx, "mei", "ni-hao")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(item))
		})

		It("round-trips an unreviewed item", func() {
			item := progress.ItemProgress{
				ItemID:          "zai-jian",
				DifficultyClass: progress.New,
				EaseFactor:      2.5,
				DueAt:           epoch,
				Version:         1,
			}
			Expect(driver.CompareAndSwap(ctx, "mei", 0, item)).To(Succeed())

			got, err := driver.LoadItem(ctx, "mei", "zai-jian")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(item))
			Expect(got.Reviewed()).To(BeFalse())
		})
	})

	Describe("CompareAndSwap", func() {
		It("rejects a second writer holding the same stale version", func() {
			Expect(driver.CompareAndSwap(ctx, "mei", 0, Item("ni-hao", 5))).To(Succeed())

			first := Item("ni-hao", 6)
			first.EaseFactor = 2.3
			second := Item("ni-hao", 6)
			second.EaseFactor = 2.0

			Expect(driver.CompareAndSwap(ctx, "mei", 5, first)).To(Succeed())

			err := driver.CompareAndSwap(ctx, "mei", 5, second)
			var conflict *storage.ConflictError
			Expect(err).To(BeAssignableToTypeOf(conflict))
			Expect(storage.IsConflict(err)).To(BeTrue())
			conflict = err.(*storage.ConflictError)
			Expect(conflict.Expected).To(Equal(uint64(5)))
			Expect(conflict.Actual).To(Equal(uint64(6)))

			stored, err := driver.LoadItem(ctx, "mei", "ni-hao")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.EaseFactor).To(Equal(2.3))
		})

		It("treats expected version 0 as insert-only", func() {
			Expect(driver.CompareAndSwap(ctx, "mei", 0, Item("ni-hao", 1))).To(Succeed())
			err := driver.CompareAndSwap(ctx, "mei", 0, Item("ni-hao", 1))
			Expect(storage.IsConflict(err)).To(BeTrue())
		})

		It("conflicts when updating an item that does not exist", func() {
			err := driver.CompareAndSwap(ctx, "mei", 3, Item("ghost", 4))
			Expect(storage.IsConflict(err)).To(BeTrue())
			Expect(err.(*storage.ConflictError).Actual).To(BeZero())
		})

		It("requires the new version to be greater than the expected one", func() {
			err := driver.CompareAndSwap(ctx, "mei", 2, Item("ni-hao", 2))
			Expect(err).To(HaveOccurred())
			Expect(storage.IsConflict(err)).To(BeFalse())
		})

		It("lets exactly one of many concurrent writers win", func() {
			Expect(driver.CompareAndSwap(ctx, "mei", 0, Item("ni-hao", 1))).To(Succeed())

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				wins      int
				conflicts int
			)
			for range 8 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					err := driver.CompareAndSwap(ctx, "mei", 1, Item("ni-hao", 2))
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						wins++
					} else {
						Expect(storage.IsConflict(err)).To(BeTrue())
						conflicts++
					}
				}()
			}
			wg.Wait()
			Expect(wins).To(Equal(1))
			Expect(conflicts).To(Equal(7))
		})
	})

	Describe("BatchCompareAndSwap", func() {
		It("applies the clean updates and reports the conflicts", func() {
			Expect(driver.CompareAndSwap(ctx, "mei", 0, Item("a", 1))).To(Succeed())
			Expect(driver.CompareAndSwap(ctx, "mei", 0, Item("b", 4))).To(Succeed())

			conflicts, err := driver.BatchCompareAndSwap(ctx, "mei", []storage.Update{
				{ExpectedVersion: 1, Progress: Item("a", 2)},
				{ExpectedVersion: 3, Progress: Item("b", 4)},
				{ExpectedVersion: 0, Progress: Item("c", 1)},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(conflicts).To(HaveLen(1))
			Expect(conflicts[0].ItemID).To(Equal("b"))
			Expect(conflicts[0].Actual).To(Equal(uint64(4)))

			snapshot, err := driver.Load(ctx, "mei")
			Expect(err).NotTo(HaveOccurred())
			Expect(snapshot.Items["a"].Version).To(Equal(uint64(2)))
			Expect(snapshot.Items).To(HaveKey("c"))
			Expect(snapshot.Version).To(Equal(uint64(4)))
		})
	})

	Describe("Import", func() {
		It("loads back exactly what was imported", func() {
			seed := progress.NewSnapshot("mei")
			seed.Put(Item("ni-hao", 4))
			seed.Put(Item("xie-xie", 9))
			seed.Put(progress.ItemProgress{
				ItemID:          "zai-jian",
				DifficultyClass: progress.New,
				EaseFactor:      2.5,
				DueAt:           epoch,
				Version:         1,
			})

			conflicts, err := storage.Import(ctx, driver, seed)
			Expect(err).NotTo(HaveOccurred())
			Expect(conflicts).To(BeEmpty())

			loaded, err := driver.Load(ctx, "mei")
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(seed))
		})

		It("never overwrites existing items", func() {
			Expect(driver.CompareAndSwap(ctx, "mei", 0, Item("ni-hao", 7))).To(Succeed())

			seed := progress.NewSnapshot("mei")
			seed.Put(Item("ni-hao", 2))

			conflicts, err := storage.Import(ctx, driver, seed)
			Expect(err).NotTo(HaveOccurred())
			Expect(conflicts).To(HaveLen(1))

			stored, err := driver.LoadItem(ctx, "mei", "ni-hao")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Version).To(Equal(uint64(7)))
		})
	})

	Describe("review log", func() {
		record := func(itemID string, at time.Time, outcome progress.Outcome) progress.ReviewRecord {
			return progress.ReviewRecord{
				ID:        uuid.NewString(),
				UserID:    "mei",
				ItemID:    itemID,
				Timestamp: at,
				Outcome:   outcome,
				Source:    progress.SourceSession,
			}
		}

		It("returns the newest records first", func() {
			latency := 1500 * time.Millisecond
			older := record("ni-hao", epoch, progress.Incorrect)
			newer := record("ni-hao", epoch.Add(time.Minute), progress.CorrectEasy)
			newer.ResponseLatency = &latency
			newer.ResultingClass = progress.Young

			Expect(driver.AppendReviews(ctx, "mei", []progress.ReviewRecord{older, newer})).To(Succeed())

			got, err := driver.RecentReviews(ctx, "mei", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal([]progress.ReviewRecord{newer, older}))
		})

		It("ignores records it has already stored", func() {
			rec := record("ni-hao", epoch, progress.CorrectHard)
			Expect(driver.AppendReviews(ctx, "mei", []progress.ReviewRecord{rec})).To(Succeed())
			Expect(driver.AppendReviews(ctx, "mei", []progress.ReviewRecord{rec})).To(Succeed())

			got, err := driver.RecentReviews(ctx, "mei", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
		})

		It("honors the limit", func() {
			var records []progress.ReviewRecord
			for i := range 5 {
				records = append(records, record("ni-hao", epoch.Add(time.Duration(i)*time.Minute), progress.CorrectEasy))
			}
			Expect(driver.AppendReviews(ctx, "mei", records)).To(Succeed())

			got, err := driver.RecentReviews(ctx, "mei", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
			Expect(got[0].ID).To(Equal(records[4].ID))
		})
	})
}
