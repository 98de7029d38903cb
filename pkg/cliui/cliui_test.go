package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cadence/pkg/cliui"
	"github.com/papercomputeco/cadence/pkg/progress"
)

var _ = Describe("Step", func() {
	It("returns the result of fn and prints a final line", func() {
		var buf bytes.Buffer
		err := cliui.Step(&buf, "importing", func() error { return nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("importing"))
		Expect(buf.String()).To(HaveSuffix("\n"))
	})

	It("passes fn errors through", func() {
		var buf bytes.Buffer
		boom := errors.New("boom")
		Expect(cliui.Step(&buf, "importing", func() error { return boom })).To(MatchError(boom))
		Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
	})
})

var _ = Describe("formatting", func() {
	It("formats durations", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})

	It("formats due times relative to now", func() {
		now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		Expect(cliui.FormatDue(now.Add(-time.Hour), now)).To(Equal("due now"))
		Expect(cliui.FormatDue(now.Add(10*time.Minute), now)).To(Equal("in 10m"))
		Expect(cliui.FormatDue(now.Add(5*time.Hour), now)).To(Equal("in 5h"))
		Expect(cliui.FormatDue(now.Add(72*time.Hour), now)).To(Equal("in 3d"))
	})

	It("renders every class name", func() {
		for _, c := range []progress.DifficultyClass{progress.New, progress.Learning, progress.Young, progress.Mature} {
			Expect(cliui.Class(c)).To(ContainSubstring(c.String()))
		}
	})
})
