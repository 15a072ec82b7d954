package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamusis/coach-cli/internal/catalog"
	"github.com/kamusis/coach-cli/internal/search"
)

var (
	flagSearchKeyword     bool
	flagSearchSemantic    bool
	flagSearchK           int
	flagSearchMaxDistance float64
	flagSearchDebug       bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the content library by semantic similarity or keyword",
	Args:  cobra.MinimumNArgs(0),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().BoolVar(&flagSearchKeyword, "keyword", false, "Force keyword search only")
	searchCmd.Flags().BoolVar(&flagSearchSemantic, "semantic", false, "Force semantic search only (error if unavailable)")
	searchCmd.Flags().IntVar(&flagSearchK, "k", 5, "Number of results to show")
	searchCmd.Flags().Float64Var(&flagSearchMaxDistance, "max-distance", 0, "Drop semantic results farther than this distance (0 keeps all)")
	searchCmd.Flags().BoolVar(&flagSearchDebug, "debug", false, "Print debug information")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	query := strings.Join(args, " ")

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Keyword-only mode.
	if flagSearchKeyword {
		return runSearchKeyword(ctx, a.cat, query)
	}

	results, err := semanticSearch(ctx, a.mgr, a.cat, query, flagSearchK, flagSearchMaxDistance)
	if err == nil {
		printSearchResults(os.Stdout, query, results)
		return nil
	}
	if flagSearchSemantic {
		return err
	}
	if flagSearchDebug {
		printInfo("", fmt.Sprintf("semantic search unavailable, falling back to keyword: %v", err))
	}
	return runSearchKeyword(ctx, a.cat, query)
}

func runSearchKeyword(ctx context.Context, cat *catalog.Catalog, query string) error {
	docs, err := catalogDocs(ctx, cat)
	if err != nil {
		return err
	}
	printSearchResults(os.Stdout, query, search.KeywordSearch(docs, query, flagSearchK))
	return nil
}

// semanticSearch runs a vector search and joins hits with their catalog rows.
// Hits whose entry was removed from the catalog are dropped.
func semanticSearch(ctx context.Context, mgr *search.Manager, cat *catalog.Catalog, query string, k int, maxDistance float64) ([]search.SearchResult, error) {
	if mgr.Index().Len() == 0 {
		return nil, errors.New("vector index is empty (run 'coach import')")
	}
	matches, err := mgr.SearchEntries(ctx, query, k)
	if err != nil {
		return nil, err
	}
	results := make([]search.SearchResult, 0, len(matches))
	for _, m := range matches {
		if maxDistance > 0 && float64(m.Score) > maxDistance {
			continue
		}
		e, err := cat.Get(ctx, m.ID)
		if errors.Is(err, catalog.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, search.SearchResult{Doc: toDoc(*e), Score: float64(m.Score), Why: "semantic"})
	}
	return results, nil
}

func catalogDocs(ctx context.Context, cat *catalog.Catalog) ([]search.Doc, error) {
	entries, err := cat.List(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]search.Doc, len(entries))
	for i, e := range entries {
		docs[i] = toDoc(e)
	}
	return docs, nil
}

func toDoc(e catalog.Entry) search.Doc {
	return search.Doc{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.ShortDescription,
		Detail:      e.Detail,
		Tags:        e.Tags,
		Category:    e.Category,
	}
}

func printSearchResults(out io.Writer, query string, results []search.SearchResult) {
	fmt.Fprintf(out, "\ncoach search %q\n\n", query)
	fmt.Fprintf(out, "Results (%d found):\n", len(results))
	if len(results) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, r := range results {
		score := ""
		if r.Why == "semantic" {
			score = fmt.Sprintf("[%.3f]", r.Score)
		}
		fmt.Fprintf(w, "  %d.\t%s\t%s\t%s\n", i+1, score, r.Doc.ID, r.Doc.Title)
		if d := strings.TrimSpace(r.Doc.Description); d != "" {
			fmt.Fprintf(w, "  - %s\n", d)
		}
	}
	_ = w.Flush()
}
