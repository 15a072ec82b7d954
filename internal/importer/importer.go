// Package importer loads the content manifest into the catalog and the vector
// index.
//
// A run is gated by the manifest checksum. The import record for a source is
// written last and only when every entry is indexed, so a record whose
// checksum matches the manifest means the catalog is fully searchable. Runs
// that fail midway leave catalog rows in place; upserts are keyed by id, so
// the next run repeats them without creating duplicates and indexes only the
// entries that are still missing.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kamusis/coach-cli/internal/catalog"
	"github.com/kamusis/coach-cli/internal/embeddings"
	"github.com/kamusis/coach-cli/internal/library"
	"github.com/kamusis/coach-cli/internal/metrics"
	"github.com/kamusis/coach-cli/internal/search"
)

// Indexer embeds and indexes entries. *search.Manager implements it.
type Indexer interface {
	UpsertEntry(ctx context.Context, id, title, detail string, tags []string) ([]float32, error)
	HasEntry(id string) bool
	BindModel(reset bool) (cleared bool, err error)
}

// Outcome names how a run ended.
type Outcome string

const (
	OutcomeUpToDate  Outcome = "up_to_date"
	OutcomeCommitted Outcome = "committed"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeFailed    Outcome = "failed"
)

// Result describes one run.
type Result struct {
	Source   string
	Checksum string
	Outcome  Outcome

	Entries int // unique entries in the manifest
	Indexed int // entries embedded and written this run
	Reused  int // entries whose vector was already current
	Pending int // entries left without a current vector

	// DeferredEmbeddings is set when the embedding capability was
	// unavailable. The catalog is populated but the record was not written.
	DeferredEmbeddings bool

	Record *catalog.ImportRecord
}

// UpToDate reports whether the run was skipped by the checksum gate.
func (r *Result) UpToDate() bool { return r.Outcome == OutcomeUpToDate }

// Options tunes a run.
type Options struct {
	SchemaVersion int
	// Workers bounds concurrent indexing calls. Values below one mean one.
	Workers int
	// Force ignores the checksum gate, re-embeds every entry and resets an
	// index built with another model.
	Force  bool
	Logger *slog.Logger
	Now    func() time.Time
}

// Importer runs manifest imports.
type Importer struct {
	cat    *catalog.Catalog
	idx    Indexer
	loader library.Loader
	opts   Options
	tracer trace.Tracer
}

// New returns an Importer reading from loader.
func New(cat *catalog.Catalog, idx Indexer, loader library.Loader, opts Options) *Importer {
	if opts.SchemaVersion <= 0 {
		opts.SchemaVersion = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Importer{cat: cat, idx: idx, loader: loader, opts: opts, tracer: otel.Tracer(search.TracerName)}
}

// Run performs one import. The returned Result is non-nil whenever the
// manifest was loaded, including when err is non-nil.
func (im *Importer) Run(ctx context.Context) (res *Result, err error) {
	res = &Result{Source: im.loader.Source(), Outcome: OutcomeFailed}
	ctx, span := im.tracer.Start(ctx, "import.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("coach.import.source", res.Source)),
	)
	start := time.Now()
	defer func() {
		span.SetAttributes(
			attribute.String("coach.import.outcome", string(res.Outcome)),
			attribute.Int("coach.import.entries", res.Entries),
			attribute.Int("coach.import.indexed", res.Indexed),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		metrics.ImportRuns.WithLabelValues(string(res.Outcome)).Inc()
		im.log(res, err, time.Since(start))
	}()

	data, err := im.loader.Load(ctx)
	if err != nil {
		return res, fmt.Errorf("cannot load manifest %s: %w", res.Source, err)
	}
	res.Checksum = library.Checksum(data)
	span.SetAttributes(attribute.String("coach.import.checksum", res.Checksum))

	prev, err := im.cat.ImportRecord(ctx, res.Source)
	if err != nil {
		return res, err
	}
	if !im.opts.Force && prev != nil && prev.Checksum == res.Checksum && prev.SchemaVersion == im.opts.SchemaVersion {
		res.Outcome = OutcomeUpToDate
		res.Record = prev
		return res, nil
	}

	parsed, err := library.Parse(data)
	if err != nil {
		return res, err
	}
	res.Entries = len(parsed)

	rows := make([]catalog.Entry, len(parsed))
	for i, e := range parsed {
		rows[i] = catalog.Entry{
			ContentEntry: e,
			TextHash:     search.TextHash(search.CanonicalText(e.Title, e.Detail, e.Tags)),
		}
	}
	if err := im.cat.UpsertEntries(ctx, rows); err != nil {
		return res, err
	}

	cleared, err := im.idx.BindModel(im.opts.Force)
	if err != nil {
		return res, err
	}
	if cleared {
		if err := im.cat.ClearIndexed(ctx); err != nil {
			return res, err
		}
	}

	todo, err := im.pending(ctx, rows, res)
	if err != nil {
		return res, err
	}
	unavailable, err := im.index(ctx, todo, res)
	res.Pending = len(todo) - res.Indexed
	if err != nil {
		return res, err
	}
	if unavailable {
		res.Outcome = OutcomeDeferred
		res.DeferredEmbeddings = true
		return res, nil
	}

	rec := catalog.ImportRecord{
		Source:        res.Source,
		Checksum:      res.Checksum,
		IngestedAt:    im.opts.Now().UTC(),
		SchemaVersion: im.opts.SchemaVersion,
	}
	if err := im.cat.SaveImportRecord(ctx, rec); err != nil {
		return res, err
	}
	res.Outcome = OutcomeCommitted
	res.Record = &rec
	return res, nil
}

// pending returns the rows that still need a vector, counting the others as
// reused.
func (im *Importer) pending(ctx context.Context, rows []catalog.Entry, res *Result) ([]catalog.Entry, error) {
	if im.opts.Force {
		return rows, nil
	}
	stored, err := im.cat.List(ctx)
	if err != nil {
		return nil, err
	}
	indexedHash := make(map[string]string, len(stored))
	for _, e := range stored {
		indexedHash[e.ID] = e.IndexedHash
	}
	var todo []catalog.Entry
	for _, e := range rows {
		if h := indexedHash[e.ID]; h != "" && h == e.TextHash && im.idx.HasEntry(e.ID) {
			res.Reused++
			continue
		}
		todo = append(todo, e)
	}
	metrics.EntriesReused.Add(float64(res.Reused))
	return todo, nil
}

// index embeds and indexes todo with bounded concurrency. It stops
// scheduling at the first unavailable capability and reports it; any other
// failure aborts with an IndexingError.
func (im *Importer) index(ctx context.Context, todo []catalog.Entry, res *Result) (unavailable bool, err error) {
	var (
		indexed atomic.Int64
		down    atomic.Bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Workers)
	for _, e := range todo {
		if down.Load() || gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if down.Load() || gctx.Err() != nil {
				return nil
			}
			_, err := im.idx.UpsertEntry(gctx, e.ID, e.Title, e.Detail, e.Tags)
			if errors.Is(err, embeddings.ErrUnavailable) {
				if down.CompareAndSwap(false, true) {
					im.opts.Logger.Warn("embedding capability unavailable, deferring", "id", e.ID, "error", err)
				}
				return nil
			}
			if err != nil {
				return &IndexingError{ID: e.ID, Err: err}
			}
			if err := im.cat.MarkIndexed(gctx, e.ID, e.TextHash); err != nil {
				return &IndexingError{ID: e.ID, Err: err}
			}
			indexed.Add(1)
			metrics.EntriesIndexed.Inc()
			return nil
		})
	}
	err = g.Wait()
	res.Indexed = int(indexed.Load())
	return down.Load(), err
}

func (im *Importer) log(res *Result, err error, took time.Duration) {
	attrs := []any{
		"source", res.Source,
		"checksum", res.Checksum,
		"outcome", string(res.Outcome),
		"entries", res.Entries,
		"indexed", res.Indexed,
		"skipped", res.Reused,
		"pending", res.Pending,
		"took", took,
	}
	switch {
	case err != nil:
		im.opts.Logger.Error("library import failed", append(attrs, "error", err)...)
	case res.DeferredEmbeddings:
		im.opts.Logger.Warn("library import deferred embeddings", attrs...)
	default:
		im.opts.Logger.Info("library import finished", attrs...)
	}
}
