// Package importcmder provides the import command that seeds the progress
// store from a snapshot file.
package importcmder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/cadence/cmd/cadence/storeopen"
	"github.com/papercomputeco/cadence/pkg/cliui"
	"github.com/papercomputeco/cadence/pkg/logger"
	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/scheduler"
	"github.com/papercomputeco/cadence/pkg/storage"
)

type importCommander struct {
	store storeopen.Flags
}

const importLongDesc string = `Import a learner snapshot into the progress store.

The file holds one snapshot as JSON, the same document the API returns from
GET /v1/users/:user/snapshot. Use "-" to read from stdin.

Import only inserts: items the store already holds are reported and left
untouched, so running the same import twice is harmless.

Examples:
  cadence import mei.json
  cadence import --storage postgres --postgres postgres://localhost/cadence mei.json
  curl -s localhost:8081/v1/users/mei/snapshot | cadence import -`

const importShortDesc string = "Import a learner snapshot"

func NewImportCmd() *cobra.Command {
	cmder := &importCommander{}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: importShortDesc,
		Long:  importLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	storeopen.AddFlags(cmd, &cmder.store)

	return cmd
}

func (c *importCommander) run(cmd *cobra.Command, path string) error {
	cfg, configDir, err := storeopen.LoadConfig(cmd)
	if err != nil {
		return err
	}

	snapshot, err := readSnapshot(cmd.InOrStdin(), path, cfg.SchedulerParams())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	driver, err := storeopen.Open(ctx, cfg, configDir, logger.Nop())
	if err != nil {
		return err
	}
	defer driver.Close()

	w := cmd.OutOrStdout()
	var conflicts []*storage.ConflictError
	msg := fmt.Sprintf("Importing %d item(s) for %s", snapshot.Len(), snapshot.UserID)
	err = cliui.Step(w, msg, func() error {
		var err error
		conflicts, err = storage.Import(ctx, driver, snapshot)
		return err
	})
	if err != nil {
		return fmt.Errorf("importing snapshot: %w", err)
	}

	for _, conflict := range conflicts {
		fmt.Fprintf(w, "  %s %s %s\n",
			cliui.FailMark,
			cliui.KeyStyle.Render(conflict.ItemID),
			cliui.DimStyle.Render("already stored, skipped"),
		)
	}
	fmt.Fprintf(w, "\n  Imported %s of %d item(s)\n\n",
		cliui.ValueStyle.Render(fmt.Sprint(snapshot.Len()-len(conflicts))),
		snapshot.Len(),
	)
	return nil
}

func readSnapshot(stdin io.Reader, path string, params scheduler.Params) (*progress.Snapshot, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	snapshot := progress.NewSnapshot("")
	if err := json.Unmarshal(data, snapshot); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	if snapshot.UserID == "" {
		return nil, errors.New("snapshot has no user_id")
	}

	for id, p := range snapshot.Items {
		if p.ItemID == "" {
			p.ItemID = id
			snapshot.Items[id] = p
		}
		if p.ItemID != id {
			return nil, fmt.Errorf("item %q is stored under key %q", p.ItemID, id)
		}
		if p.Version == 0 {
			return nil, fmt.Errorf("item %q has no version", id)
		}
		if err := params.CheckProgress(p); err != nil {
			return nil, fmt.Errorf("item %q: %w", id, err)
		}
	}
	snapshot.Recompute()

	return snapshot, nil
}
