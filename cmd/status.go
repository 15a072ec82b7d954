package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show import records, catalog counts and per-shard index stats",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	fmt.Println("=== Imports ===")
	records, err := a.cat.ImportRecords(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		printMiss("", "no completed import (run: coach import)")
	}
	for _, r := range records {
		printOK(r.Source, fmt.Sprintf("checksum %s, schema v%d, %s", short(r.Checksum), r.SchemaVersion, r.IngestedAt.Local().Format("2006-01-02 15:04:05")))
	}

	fmt.Println("\n=== Catalog ===")
	total, indexed, err := a.cat.Count(ctx)
	if err != nil {
		return err
	}
	printInfo("", fmt.Sprintf("%d entries, %d indexed at current text", total, indexed))
	if pending := total - indexed; pending > 0 {
		printWarn("", fmt.Sprintf("%d entries awaiting semantic indexing (run: coach import)", pending))
	}

	fmt.Println("\n=== Vector index ===")
	m := a.idx.Meta()
	printInfo("", fmt.Sprintf("%s  dim=%d shards=%d metric=%s model=%s", a.idx.Dir(), m.Dim, m.Shards, m.Metric, emptyAsNA(m.ModelID)))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  shard\tlive\tdead\tbytes")
	live := 0
	for _, s := range a.idx.Stats() {
		fmt.Fprintf(w, "  %d\t%d\t%d\t%d\n", s.Shard, s.Live, s.Dead, s.LogSize)
		live += s.Live
	}
	_ = w.Flush()
	fmt.Printf("\n  %d vectors / %d catalog entries\n", live, total)

	fmt.Println("\n=== Embeddings ===")
	if a.provErr != nil {
		printWarn("", fmt.Sprintf("unavailable: %v", a.provErr))
	} else {
		printOK("", fmt.Sprintf("%s (dim %d)", a.prov.ModelID(), a.prov.Dim()))
	}
	return nil
}
