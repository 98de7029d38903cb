package duecmder

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/storage/sqlite"
)

var _ = Describe("Due command", func() {
	var (
		now    time.Time
		tmpDir string
		dbPath string
		out    *bytes.Buffer
	)

	run := func(args ...string) error {
		cmd := newDueCmd(func() time.Time { return now })
		cmd.Flags().String("config-dir", tmpDir, "")
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(append([]string{"--sqlite", dbPath}, args...))
		return cmd.ExecuteContext(context.Background())
	}

	// lines returns the printed item ids in order.
	lines := func() []string {
		var ids []string
		for _, line := range strings.Split(out.String(), "\n") {
			fields := strings.Fields(line)
			if len(fields) > 0 && strings.HasPrefix(fields[0], "word-") {
				ids = append(ids, fields[0])
			}
		}
		return ids
	}

	BeforeEach(func() {
		now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "progress.sqlite")
		out = &bytes.Buffer{}

		ctx := context.Background()
		driver, err := sqlite.NewDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		for _, p := range []progress.ItemProgress{
			{ItemID: "word-mature", DifficultyClass: progress.Mature, EaseFactor: 2.5, DueAt: now.Add(-2 * time.Hour), Version: 4},
			{ItemID: "word-new", DifficultyClass: progress.New, EaseFactor: 2.5, DueAt: now.Add(-time.Minute), Version: 1},
			{ItemID: "word-later", DifficultyClass: progress.Learning, EaseFactor: 2.5, DueAt: now.Add(3 * time.Hour), Version: 2},
			{ItemID: "word-young", DifficultyClass: progress.Young, EaseFactor: 2.5, DueAt: now, Version: 3, ContentRef: "deck/hsk1/" + strings.Repeat("x", 60)},
		} {
			Expect(driver.CompareAndSwap(ctx, "mei", 0, p)).To(Succeed())
		}
	})

	It("prints due items in queue order", func() {
		Expect(run("mei")).To(Succeed())

		Expect(lines()).To(Equal([]string{"word-new", "word-young", "word-mature"}))
		Expect(out.String()).To(ContainSubstring("3 of 4 item(s)"))
		Expect(out.String()).To(ContainSubstring("..."))
	})

	It("evaluates the queue at a given time", func() {
		Expect(run("mei", "--at", now.Add(4*time.Hour).Format(time.RFC3339))).To(Succeed())

		Expect(lines()).To(Equal([]string{"word-new", "word-later", "word-young", "word-mature"}))
	})

	It("lists every item with --all", func() {
		Expect(run("mei", "--all")).To(Succeed())

		Expect(lines()).To(HaveLen(4))
		Expect(out.String()).To(ContainSubstring("in 3h"))
	})

	It("limits the output", func() {
		Expect(run("mei", "-n", "1")).To(Succeed())

		Expect(lines()).To(Equal([]string{"word-new"}))
	})

	It("prints an empty queue for unknown learners", func() {
		Expect(run("li")).To(Succeed())

		Expect(out.String()).To(ContainSubstring("Nothing due."))
	})

	It("rejects malformed times", func() {
		Expect(run("mei", "--at", "tomorrow")).To(MatchError(ContainSubstring("invalid --at")))
	})
})
