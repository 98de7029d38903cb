// Package duecmder provides the due command that prints a learner's review
// queue straight from the progress store.
package duecmder

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/cadence/cmd/cadence/storeopen"
	"github.com/papercomputeco/cadence/pkg/cliui"
	"github.com/papercomputeco/cadence/pkg/logger"
	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/storage"
	"github.com/papercomputeco/cadence/pkg/utils"
)

const (
	maxContentRef = 40
	classWidth    = len("learning")
)

type dueCommander struct {
	store storeopen.Flags
	at    string
	all   bool
	limit int

	now func() time.Time
}

const dueLongDesc string = `Print a learner's review queue.

Reads the learner's stored progress and lists the items due at the given
time, in the order a session presents them. Progress still held by a running
service shows up here once it is flushed.

Examples:
  cadence due mei
  cadence due mei --at 2026-06-01T09:00:00Z
  cadence due mei --all`

const dueShortDesc string = "Print a learner's review queue"

func NewDueCmd() *cobra.Command {
	return newDueCmd(time.Now)
}

func newDueCmd(now func() time.Time) *cobra.Command {
	cmder := &dueCommander{now: now}

	cmd := &cobra.Command{
		Use:   "due <user>",
		Short: dueShortDesc,
		Long:  dueLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	storeopen.AddFlags(cmd, &cmder.store)
	cmd.Flags().StringVar(&cmder.at, "at", "", "RFC 3339 time to evaluate the queue at (default: now)")
	cmd.Flags().BoolVar(&cmder.all, "all", false, "List every item, due or not")
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 0, "Maximum number of items to print (0 for no limit)")

	return cmd
}

func (c *dueCommander) run(cmd *cobra.Command, userID string) error {
	now := c.now()
	if c.at != "" {
		parsed, err := time.Parse(time.RFC3339, c.at)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		now = parsed
	}

	cfg, configDir, err := storeopen.LoadConfig(cmd)
	if err != nil {
		return err
	}

	driver, err := storeopen.Open(cmd.Context(), cfg, configDir, logger.Nop())
	if err != nil {
		return err
	}
	defer driver.Close()

	snapshot, err := driver.Load(cmd.Context(), userID)
	if storage.IsNotFound(err) {
		snapshot, err = progress.NewSnapshot(userID), nil
	}
	if err != nil {
		return fmt.Errorf("loading progress for %s: %w", userID, err)
	}

	items := c.queue(snapshot, now)
	printQueue(cmd.OutOrStdout(), snapshot, items, now)
	return nil
}

// queue returns the items to print in queue order.
func (c *dueCommander) queue(snapshot *progress.Snapshot, now time.Time) []progress.ItemProgress {
	items := make([]progress.ItemProgress, 0, snapshot.Len())
	if c.all {
		for _, p := range snapshot.Items {
			items = append(items, p)
		}
		progress.SortQueue(items)
	} else {
		for _, id := range snapshot.Due(now) {
			items = append(items, snapshot.Items[id])
		}
	}

	if c.limit > 0 && len(items) > c.limit {
		items = items[:c.limit]
	}
	return items
}

func printQueue(w io.Writer, snapshot *progress.Snapshot, items []progress.ItemProgress, now time.Time) {
	fmt.Fprintf(w, "\n  %s %s  %s\n\n",
		cliui.HeaderStyle.Render("Review queue for"),
		cliui.KeyStyle.Render(snapshot.UserID),
		cliui.DimStyle.Render(fmt.Sprintf("%d of %d item(s)", len(items), snapshot.Len())),
	)

	if len(items) == 0 {
		fmt.Fprintf(w, "  %s\n\n", cliui.DimStyle.Render("Nothing due."))
		return
	}

	width := 0
	for _, p := range items {
		width = max(width, len(p.ItemID))
	}

	for _, p := range items {
		class := p.DifficultyClass.String()
		fmt.Fprintf(w, "  %-*s  %s%s  %-9s  %s\n",
			width, p.ItemID,
			cliui.Class(p.DifficultyClass), strings.Repeat(" ", max(0, classWidth-len(class))),
			cliui.FormatDue(p.DueAt, now),
			cliui.DimStyle.Render(utils.Truncate(p.ContentRef, maxContentRef)),
		)
	}
	fmt.Fprintln(w)
}
