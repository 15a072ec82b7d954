package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/kamusis/coach-cli/internal/importer"
	"github.com/kamusis/coach-cli/internal/library"
	"github.com/kamusis/coach-cli/internal/search"
)

var (
	flagImportForce   bool
	flagImportSource  string
	flagImportWorkers int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the content manifest into the catalog and vector index",
	Long: `Import the content library.

The run is skipped when the manifest checksum matches the last completed
import. Otherwise every recommendation is upserted into the catalog and
embedded into the vector index. The checksum is recorded only after every
entry is indexed; re-running after a failure resumes where it stopped.

When no embedding provider is available the catalog is still populated and
semantic indexing is deferred to a later run.`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&flagImportForce, "force", false, "Re-embed every entry and ignore the recorded checksum")
	importCmd.Flags().StringVar(&flagImportSource, "source", "", "Manifest path (overrides library.source; 'bundled' for the built-in library)")
	importCmd.Flags().IntVar(&flagImportWorkers, "workers", 0, "Concurrent embedding calls (overrides library.workers)")
	rootCmd.AddCommand(importCmd)
}

func runImport(_ *cobra.Command, _ []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	source := a.cfg.Library.Source
	if flagImportSource != "" {
		source = flagImportSource
	}
	workers := a.cfg.Library.Workers
	if flagImportWorkers > 0 {
		workers = flagImportWorkers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	loader := library.FromConfig(source)
	im := importer.New(a.cat, a.mgr, loader, importer.Options{
		SchemaVersion: a.cfg.Library.SchemaVersion,
		Workers:       workers,
		Force:         flagImportForce,
		Logger:        slog.Default(),
	})

	printSection("coach import")
	printInfo("", fmt.Sprintf("source: %s", loader.Source()))
	res, err := im.Run(ctx)
	if err != nil {
		if res != nil && res.Entries > 0 {
			printInfo("", fmt.Sprintf("%d entries in catalog, %d indexed this run, %d pending", res.Entries, res.Indexed, res.Pending))
		}
		switch {
		case errors.Is(err, search.ErrModelMismatch):
			return fmt.Errorf("%w\nRun 'coach import --force' to rebuild the index with the current model.", err)
		case errors.Is(err, importer.ErrIndexingFailed):
			return fmt.Errorf("%w\nCatalog rows were kept; run 'coach import' again to resume.", err)
		}
		return err
	}

	switch res.Outcome {
	case importer.OutcomeUpToDate:
		printSkip("", fmt.Sprintf("already up to date (checksum %s, imported %s)", short(res.Checksum), res.Record.IngestedAt.Local().Format("2006-01-02 15:04")))
	case importer.OutcomeDeferred:
		printOK("", fmt.Sprintf("catalog updated: %d entries", res.Entries))
		printWarn("", fmt.Sprintf("semantic indexing deferred: %d indexed, %d pending", res.Indexed, res.Pending))
		if a.provErr != nil {
			printInfo("", a.provErr.Error())
		}
	case importer.OutcomeCommitted:
		printOK("", fmt.Sprintf("catalog updated: %d entries", res.Entries))
		printOK("", fmt.Sprintf("indexed %d, reused %d", res.Indexed, res.Reused))
		printOK("", fmt.Sprintf("checksum recorded: %s", short(res.Checksum)))
	}
	return nil
}

func short(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
