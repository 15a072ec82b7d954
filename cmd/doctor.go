package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamusis/coach-cli/internal/config"
	"github.com/kamusis/coach-cli/internal/fs"
	"github.com/kamusis/coach-cli/internal/search/index"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run pre-flight environment checks",
	Long: `Check that coach's config, catalog, vector index and embeddings provider
are usable and agree with each other. Run this command when something seems
wrong, or before filing a bug report.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.AddCommand(doctorFixCmd)
	rootCmd.AddCommand(doctorCmd)
}

var doctorFixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Automatically fix detected issues",
	Long: `Fix detected issues between the catalog and the vector index.

Currently fixes:
  - Orphan vectors: removes vectors whose entry is not in the catalog
  - Missing vectors: un-marks catalog entries so 'coach import' re-indexes them

Run 'coach doctor' first to see what will be fixed.`,
	RunE: runDoctorFix,
}

// drift compares catalog rows with index keys.
type drift struct {
	orphans []string // in the index, not in the catalog
	missing []string // marked indexed in the catalog, absent from the index
}

func findDrift(ctx context.Context, a *app) (*drift, error) {
	entries, err := a.cat.List(ctx)
	if err != nil {
		return nil, err
	}
	inCatalog := make(map[string]bool, len(entries))
	d := &drift{}
	for _, e := range entries {
		inCatalog[e.ID] = true
		if e.IndexedHash != "" && !a.idx.Has(e.ID) {
			d.missing = append(d.missing, e.ID)
		}
	}
	for _, k := range a.idx.Keys() {
		if !inCatalog[k] {
			d.orphans = append(d.orphans, k)
		}
	}
	return d, nil
}

func runDoctorFix(_ *cobra.Command, _ []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	printSection("coach doctor fix")

	fmt.Println("\n[ Catalog / index drift ]")
	d, err := findDrift(ctx, a)
	if err != nil {
		return err
	}
	if len(d.orphans) == 0 && len(d.missing) == 0 {
		printOK("", "catalog and index agree — nothing to fix")
		return nil
	}

	var failed int
	for _, id := range d.orphans {
		if err := a.mgr.RemoveEntry(id); err != nil {
			printErr(id, fmt.Sprintf("cannot remove orphan vector: %v", err))
			failed++
			continue
		}
		printOK(id, "removed orphan vector")
	}
	for _, id := range d.missing {
		if err := a.cat.MarkIndexed(ctx, id, ""); err != nil {
			printErr(id, fmt.Sprintf("cannot reset index marker: %v", err))
			failed++
			continue
		}
		printOK(id, "queued for re-indexing")
	}

	fmt.Println()
	if failed > 0 {
		return fmt.Errorf("%d issue(s) could not be fixed", failed)
	}
	if len(d.missing) > 0 {
		fmt.Println("  ✓  Run 'coach import --force' to re-index the queued entries.")
	}
	return nil
}

func runDoctor(_ *cobra.Command, _ []string) error {
	allOK := true
	failD := func(format string, args ...any) {
		printErr("", fmt.Sprintf(format, args...))
		allOK = false
	}

	printSection("coach doctor")
	fmt.Println()

	// ── Check 1: coach directory exists ───────────────────────────────────────
	fmt.Println("[ Coach directory ]")
	coachDir, err := config.CoachDir()
	if err != nil {
		failD("cannot determine home directory: %v", err)
	} else {
		cfgPath, _ := config.ConfigPath()
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			printWarn("", "coach.yaml not found — defaults apply (run 'coach init' to write one)")
		} else {
			printOK("", fmt.Sprintf("%s exists", coachDir))
		}
	}
	fmt.Println()

	// ── Check 2: coach.yaml is valid ──────────────────────────────────────────
	fmt.Println("[ coach.yaml ]")
	cfg, loadErr := config.Load()
	if loadErr != nil {
		failD("cannot parse coach.yaml: %v", loadErr)
	} else {
		printOK("", fmt.Sprintf("valid — index %d shards × dim %d, library %s", cfg.Index.Shards, cfg.Index.Dimension, cfg.Library.Source))
	}
	fmt.Println()

	// ── Check 3: index metadata matches config ────────────────────────────────
	fmt.Println("[ Vector index ]")
	if loadErr == nil {
		meta, err := index.LoadMeta(fs.Default, cfg.Index.Dir)
		switch {
		case err != nil:
			failD("cannot read index metadata: %v", err)
		case meta == nil:
			printWarn("", fmt.Sprintf("no index at %s yet (run 'coach init')", cfg.Index.Dir))
		case meta.Dim != cfg.Index.Dimension || meta.Shards != cfg.Index.Shards:
			failD("index on disk has %d shards × dim %d, coach.yaml asks for %d × %d", meta.Shards, meta.Dim, cfg.Index.Shards, cfg.Index.Dimension)
		default:
			printOK("", fmt.Sprintf("%s (model %s)", cfg.Index.Dir, emptyAsNA(meta.ModelID)))
		}
	} else {
		printWarn("", "skipped (coach.yaml not loaded)")
	}
	fmt.Println()

	// ── Check 4: catalog integrity and drift ──────────────────────────────────
	fmt.Println("[ Catalog ]")
	var a *app
	if loadErr == nil {
		a, err = openApp(true)
		if err != nil {
			failD("cannot open stores: %v", err)
		}
	}
	if a != nil {
		defer a.Close()
		ctx := context.Background()
		if err := a.cat.Check(ctx); err != nil {
			failD("%v", err)
		} else {
			total, indexed, _ := a.cat.Count(ctx)
			printOK("", fmt.Sprintf("integrity ok — %d entries, %d indexed", total, indexed))
		}
		d, err := findDrift(ctx, a)
		switch {
		case err != nil:
			failD("cannot compare catalog and index: %v", err)
		case len(d.orphans) > 0 || len(d.missing) > 0:
			printWarn("", fmt.Sprintf("%d orphan vector(s), %d entr(ies) missing a vector — run 'coach doctor fix'", len(d.orphans), len(d.missing)))
			allOK = false
		default:
			printOK("", "catalog and index agree")
		}
	} else {
		printWarn("", "skipped (stores not opened)")
	}
	fmt.Println()

	// ── Check 5: embeddings provider answers ──────────────────────────────────
	fmt.Println("[ Embeddings ]")
	prov, err := loadProvider()
	if err != nil {
		printWarn("", fmt.Sprintf("%v — imports will defer semantic indexing", err))
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		v, err := prov.Embed(ctx, "coach doctor probe")
		cancel()
		if err != nil {
			failD("%s: %v", prov.ModelID(), err)
		} else {
			printOK("", fmt.Sprintf("%s answered with %d dimensions", prov.ModelID(), len(v)))
			if loadErr == nil && len(v) != cfg.Index.Dimension {
				printInfo("", fmt.Sprintf("vectors will be fitted to the index dimension %d", cfg.Index.Dimension))
			}
		}
	}
	fmt.Println()

	// ── Summary ───────────────────────────────────────────────────────────────
	fmt.Println("===================")
	if allOK {
		fmt.Println("✓  All checks passed. Coach is ready to use.")
	} else {
		fmt.Fprintln(os.Stderr, "✗  One or more checks failed. See details above.")
		return fmt.Errorf("doctor found issues")
	}
	return nil
}
