package cmd

import (
	"fmt"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kamusis/coach-cli/internal/search/index"
)

// Set at build time with -ldflags "-X github.com/kamusis/coach-cli/cmd.version=...".
var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show coach version and build information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(_ *cobra.Command, _ []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', 0)
	fmt.Fprintf(w, "Version:\t%s\n", version)
	fmt.Fprintf(w, "Commit:\t%s\n", emptyAsNA(commit))
	fmt.Fprintf(w, "Build Date:\t%s\n", emptyAsNA(buildDate))
	fmt.Fprintf(w, "Index Format:\tv%d\n", index.FormatVersion)
	fmt.Fprintf(w, "Go Version:\t%s\n", runtime.Version())
	fmt.Fprintf(w, "OS/Arch:\t%s/%s\n", runtime.GOOS, runtime.GOARCH)
	return w.Flush()
}

func emptyAsNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
