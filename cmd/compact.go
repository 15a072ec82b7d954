package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite shard logs to drop superseded and removed vectors",
	Args:  cobra.NoArgs,
	RunE:  runCompact,
}

func init() {
	rootCmd.AddCommand(compactCmd)
}

func runCompact(_ *cobra.Command, _ []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	var before int64
	for _, s := range a.idx.Stats() {
		before += s.LogSize
	}
	if err := a.idx.Persist(); err != nil {
		return fmt.Errorf("compaction failed: %w", err)
	}
	var after int64
	for _, s := range a.idx.Stats() {
		after += s.LogSize
	}
	printOK("", fmt.Sprintf("compacted %d vectors: %d → %d bytes", a.idx.Len(), before, after))
	return nil
}
