package progress_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cadence/pkg/progress"
)

var _ = Describe("Snapshot", func() {
	var (
		now  time.Time
		snap *progress.Snapshot
	)

	BeforeEach(func() {
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		snap = progress.NewSnapshot("user-1")
	})

	It("tracks the max item version", func() {
		snap.Put(progress.ItemProgress{ItemID: "a", Version: 3})
		snap.Put(progress.ItemProgress{ItemID: "b", Version: 7})
		snap.Put(progress.ItemProgress{ItemID: "c", Version: 5})
		Expect(snap.Version).To(Equal(uint64(7)))
	})

	It("clones without sharing the item map", func() {
		snap.Put(progress.ItemProgress{ItemID: "a", Version: 1})
		clone := snap.Clone()
		clone.Put(progress.ItemProgress{ItemID: "b", Version: 2})

		Expect(snap.Len()).To(Equal(1))
		Expect(clone.Len()).To(Equal(2))
	})

	Describe("Due", func() {
		BeforeEach(func() {
			snap.Put(progress.ItemProgress{ItemID: "future", DifficultyClass: progress.New, DueAt: now.Add(time.Hour)})
			snap.Put(progress.ItemProgress{ItemID: "mature-old", DifficultyClass: progress.Mature, DueAt: now.Add(-48 * time.Hour)})
			snap.Put(progress.ItemProgress{ItemID: "learning-late", DifficultyClass: progress.Learning, DueAt: now.Add(-time.Minute)})
			snap.Put(progress.ItemProgress{ItemID: "learning-early", DifficultyClass: progress.Learning, DueAt: now.Add(-time.Hour)})
			snap.Put(progress.ItemProgress{ItemID: "exactly-now", DifficultyClass: progress.Young, DueAt: now})
		})

		It("excludes items that are not yet due", func() {
			Expect(snap.Due(now)).NotTo(ContainElement("future"))
		})

		It("includes items due exactly now", func() {
			Expect(snap.Due(now)).To(ContainElement("exactly-now"))
		})

		It("orders by difficulty class then due time", func() {
			Expect(snap.Due(now)).To(Equal([]string{
				"learning-early",
				"learning-late",
				"exactly-now",
				"mature-old",
			}))
		})
	})

	It("returns the nearest due items bounded by n", func() {
		snap.Put(progress.ItemProgress{ItemID: "a", DueAt: now.Add(3 * time.Hour)})
		snap.Put(progress.ItemProgress{ItemID: "b", DueAt: now.Add(-time.Hour)})
		snap.Put(progress.ItemProgress{ItemID: "c", DueAt: now.Add(time.Hour)})

		nearest := snap.NearestDue(2)
		Expect(nearest).To(HaveLen(2))
		Expect(nearest[0].ItemID).To(Equal("b"))
		Expect(nearest[1].ItemID).To(Equal("c"))
	})
})
