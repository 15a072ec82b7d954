package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamusis/coach-cli/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the coach home directory, config and empty stores",
	Long: `Initialize coach at ~/.coach/ (or $COACH_HOME).

Writes coach.yaml and a .env template when they are missing, then creates the
catalog database and the vector index so 'coach import' can run.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	// ── 1. Resolve the coach directory ────────────────────────────────────────
	coachDir, err := config.CoachDir()
	if err != nil {
		return err
	}
	cfgPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(coachDir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", coachDir, err)
	}
	printOK("", fmt.Sprintf("Coach directory ready: %s", coachDir))

	// ── 2. Write coach.yaml if missing ────────────────────────────────────────
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg, err := config.DefaultConfig()
		if err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return err
		}
		printOK("", fmt.Sprintf("Config written: %s", cfgPath))
	} else {
		printSkip("", fmt.Sprintf("Config already exists: %s", cfgPath))
	}

	// ── 3. Write .env template if missing ─────────────────────────────────────
	if err := config.EnsureDotEnvTemplate(); err != nil {
		return err
	}
	envPath, _ := config.DotEnvPath()
	printOK("", fmt.Sprintf("Embeddings settings: %s", envPath))

	// ── 4. Create the stores ──────────────────────────────────────────────────
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()
	printOK("", fmt.Sprintf("Catalog ready: %s", a.cfg.Catalog.Path))
	m := a.idx.Meta()
	printOK("", fmt.Sprintf("Vector index ready: %s (%d shards, dim %d, %s)", a.idx.Dir(), m.Shards, m.Dim, m.Metric))
	if a.provErr != nil {
		printWarn("", fmt.Sprintf("embeddings unavailable: %v", a.provErr))
		printInfo("", "imports will defer semantic indexing until COACH_EMBEDDINGS_PROVIDER is set")
	}

	fmt.Println("\nNext: run 'coach import' to load the content library.")
	return nil
}
