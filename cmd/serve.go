package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamusis/coach-cli/internal/embeddings"
	"github.com/kamusis/coach-cli/internal/metrics"
	"github.com/kamusis/coach-cli/internal/search"
)

var flagServeAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve /search and Prometheus /metrics over HTTP",
	Long: `Serve the content index over HTTP.

  GET /search?q=<text>&k=<n>   semantic search, keyword fallback
  GET /metrics                 Prometheus metrics

The index is opened read-only and does not lock out 'coach import' in another
process. Each search reloads the index when an import has changed it.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "127.0.0.1:9464", "Listen address")
	rootCmd.AddCommand(serveCmd)
}

type searchHit struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"shortDescription,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Score       float64  `json:"score"`
	Why         string   `json:"why"`
}

func runServe(_ *cobra.Command, _ []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              flagServeAddr,
		Handler:           newServeMux(a),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	printOK("", "listening on http://"+flagServeAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newServeMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			http.Error(w, "missing q", http.StatusBadRequest)
			return
		}
		k := 5
		if s := r.URL.Query().Get("k"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 100 {
				http.Error(w, "k must be between 1 and 100", http.StatusBadRequest)
				return
			}
			k = n
		}

		if _, err := a.idx.Refresh(); err != nil {
			slog.Warn("cannot reload vector index, serving the previous view", "error", err)
		}
		results, err := semanticSearch(r.Context(), a.mgr, a.cat, q, k, 0)
		if err != nil {
			if !errors.Is(err, embeddings.ErrUnavailable) && a.idx.Len() > 0 {
				slog.Warn("semantic search failed, using keyword search", "error", err)
			}
			docs, derr := catalogDocs(r.Context(), a.cat)
			if derr != nil {
				http.Error(w, derr.Error(), http.StatusInternalServerError)
				return
			}
			results = search.KeywordSearch(docs, q, k)
		}

		hits := make([]searchHit, len(results))
		for i, res := range results {
			hits[i] = searchHit{
				ID:          res.Doc.ID,
				Title:       res.Doc.Title,
				Description: res.Doc.Description,
				Tags:        res.Doc.Tags,
				Score:       res.Score,
				Why:         res.Why,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"query": q, "results": hits})
	})
	return mux
}
