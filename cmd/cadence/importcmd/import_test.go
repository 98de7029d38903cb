package importcmder_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	importcmder "github.com/papercomputeco/cadence/cmd/cadence/importcmd"
	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/storage/sqlite"
	"github.com/papercomputeco/cadence/pkg/storage/storagetest"
)

var _ = Describe("Import command", func() {
	var (
		tmpDir string
		dbPath string
		out    *bytes.Buffer
	)

	run := func(stdin string, args ...string) error {
		cmd := importcmder.NewImportCmd()
		cmd.Flags().String("config-dir", tmpDir, "")
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetIn(strings.NewReader(stdin))
		cmd.SetArgs(append([]string{"--sqlite", dbPath}, args...))
		return cmd.ExecuteContext(context.Background())
	}

	writeSnapshot := func(s *progress.Snapshot) string {
		data, err := json.Marshal(s)
		Expect(err).NotTo(HaveOccurred())
		path := filepath.Join(tmpDir, s.UserID+".json")
		Expect(os.WriteFile(path, data, 0o600)).To(Succeed())
		return path
	}

	snapshot := func() *progress.Snapshot {
		s := progress.NewSnapshot("mei")
		s.Put(storagetest.Item("ni-hao", 3))
		s.Put(storagetest.Item("xie-xie", 5))
		return s
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "progress.sqlite")
		out = &bytes.Buffer{}
	})

	stored := func() *progress.Snapshot {
		driver, err := sqlite.NewDriver(context.Background(), dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		s, err := driver.Load(context.Background(), "mei")
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	It("imports every item of the snapshot", func() {
		Expect(run("", writeSnapshot(snapshot()))).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Imported 2 of 2 item(s)"))

		s := stored()
		Expect(s.Len()).To(Equal(2))
		Expect(s.Items["xie-xie"].Version).To(Equal(uint64(5)))
		Expect(s.Version).To(Equal(uint64(5)))
	})

	It("skips items the store already holds", func() {
		path := writeSnapshot(snapshot())
		Expect(run("", path)).To(Succeed())

		out.Reset()
		Expect(run("", path)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("already stored"))
		Expect(out.String()).To(ContainSubstring("Imported 0 of 2 item(s)"))
	})

	It("reads the snapshot from stdin", func() {
		data, err := json.Marshal(snapshot())
		Expect(err).NotTo(HaveOccurred())

		Expect(run(string(data), "-")).To(Succeed())
		Expect(stored().Len()).To(Equal(2))
	})

	It("rejects snapshots without a user", func() {
		s := snapshot()
		s.UserID = ""
		data, err := json.Marshal(s)
		Expect(err).NotTo(HaveOccurred())

		Expect(run(string(data), "-")).To(MatchError(ContainSubstring("no user_id")))
	})

	It("rejects unversioned items", func() {
		Expect(run(`{"user_id":"mei","items":{"ni-hao":{"item_id":"ni-hao","difficulty_class":"new","interval":"0s"}}}`, "-")).
			To(MatchError(ContainSubstring("has no version")))
	})

	It("rejects items with an ease outside the configured range", func() {
		s := snapshot()
		item := s.Items["ni-hao"]
		item.EaseFactor = 3.0
		s.Put(item)

		err := run("", writeSnapshot(s))
		Expect(err).To(MatchError(ContainSubstring(`item "ni-hao"`)))
		Expect(err).To(MatchError(ContainSubstring("ease factor 3.00")))
		Expect(dbPath).NotTo(BeAnExistingFile())
	})

	It("rejects items whose due time does not follow from their interval", func() {
		s := snapshot()
		item := s.Items["xie-xie"]
		item.DueAt = item.DueAt.Add(24 * time.Hour)
		s.Put(item)

		Expect(run("", writeSnapshot(s))).To(MatchError(ContainSubstring("want last review plus interval")))
	})

	It("rejects missing files", func() {
		Expect(run("", filepath.Join(tmpDir, "missing.json"))).To(MatchError(ContainSubstring("reading snapshot")))
	})
})
