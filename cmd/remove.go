package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <id>...",
	Short: "Remove entries from the catalog and the vector index",
	Long: `Remove content entries by id. Removing an id that does not exist is not
an error. A later import of a manifest that still lists the entry adds it back.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(_ *cobra.Command, ids []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	for _, id := range ids {
		// Vector first: a catalog row without a vector is re-indexed on the
		// next import, a vector without a row is unreachable.
		if err := a.mgr.RemoveEntry(id); err != nil {
			return fmt.Errorf("cannot remove vector %s: %w", id, err)
		}
		ok, err := a.cat.Remove(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			printOK(id, "removed")
		} else {
			printMiss(id, "not in catalog")
		}
	}
	return nil
}
