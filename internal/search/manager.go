package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kamusis/coach-cli/internal/embeddings"
	"github.com/kamusis/coach-cli/internal/search/index"
	"github.com/kamusis/coach-cli/internal/vectorstore"
)

// TracerName identifies spans emitted by the search and import paths.
const TracerName = "github.com/kamusis/coach-cli"

// ErrModelMismatch means the index holds vectors from a different embedding
// model than the configured provider.
var ErrModelMismatch = errors.New("index was built with a different embedding model")

// EntryText is the embeddable part of a content entry.
type EntryText struct {
	ID     string
	Title  string
	Detail string
	Tags   []string
}

// Manager composes an embedding provider with the vector index. A nil
// provider makes every embedding call fail with embeddings.ErrUnavailable.
type Manager struct {
	idx    *index.Index
	prov   embeddings.Provider
	logger *slog.Logger
	tracer trace.Tracer

	mu sync.Mutex // serializes model binding
}

// NewManager returns a Manager over idx. When prov reports a dimension other
// than the index's, its vectors are fitted to the index dimension.
func NewManager(idx *index.Index, prov embeddings.Provider, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if prov != nil && prov.Dim() > 0 && prov.Dim() != idx.Dim() {
		prov = embeddings.Fit(prov, idx.Dim())
	}
	return &Manager{idx: idx, prov: prov, logger: logger, tracer: otel.Tracer(TracerName)}
}

// Index returns the underlying vector index.
func (m *Manager) Index() *index.Index { return m.idx }

// ModelID returns the provider's model id, or "" without a provider.
func (m *Manager) ModelID() string {
	if m.prov == nil {
		return ""
	}
	return m.prov.ModelID()
}

// BindModel records the provider's model on an index that has none. When the
// index was built with another model it returns ErrModelMismatch, unless
// reset is set, in which case the index is emptied and rebound and cleared
// reports true.
func (m *Manager) BindModel(reset bool) (cleared bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := m.ModelID()
	have := m.idx.Meta().ModelID
	switch {
	case want == "" || want == have:
		return false, nil
	case have == "":
		return false, m.idx.SetModelID(want)
	case !reset:
		return false, fmt.Errorf("%w: index has %q, provider is %q", ErrModelMismatch, have, want)
	}
	m.logger.Warn("resetting vector index for new embedding model", "from", have, "to", want)
	if err := m.idx.Reset(want); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) embed(ctx context.Context, text string) ([]float32, error) {
	if m.prov == nil {
		return nil, embeddings.ErrUnavailable
	}
	return m.prov.Embed(ctx, text)
}

// UpsertEntry embeds the entry's canonical text and stores the vector under
// id. Embedding errors are returned unchanged.
func (m *Manager) UpsertEntry(ctx context.Context, id, title, detail string, tags []string) ([]float32, error) {
	v, err := m.embed(ctx, CanonicalText(title, detail, tags))
	if err != nil {
		return nil, err
	}
	if err := m.idx.Upsert(id, v); err != nil {
		return nil, err
	}
	return v, nil
}

// BulkUpsertEntries embeds every item, then writes all vectors with one
// flush per shard. Nothing is written when any embedding fails.
func (m *Manager) BulkUpsertEntries(ctx context.Context, items []EntryText) error {
	batch := make([]index.Item, 0, len(items))
	for _, it := range items {
		v, err := m.embed(ctx, CanonicalText(it.Title, it.Detail, it.Tags))
		if err != nil {
			return fmt.Errorf("entry %s: %w", it.ID, err)
		}
		batch = append(batch, index.Item{Key: it.ID, Vector: v})
	}
	return m.idx.BulkUpsert(batch)
}

// RemoveEntry deletes the vector for id. Removing an absent id is not an error.
func (m *Manager) RemoveEntry(id string) error {
	return m.idx.Remove(id)
}

// HasEntry reports whether id has a vector in the index.
func (m *Manager) HasEntry(id string) bool {
	return m.idx.Has(id)
}

// SearchEntries embeds query and returns up to topK entries ordered by
// ascending distance, ties by ascending id.
func (m *Manager) SearchEntries(ctx context.Context, query string, topK int) (_ []Match, err error) {
	ctx, span := m.tracer.Start(ctx, "search.entries",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("coach.search.top_k", topK),
			attribute.String("coach.embeddings.model", m.ModelID()),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	v, err := m.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := m.idx.Search(ctx, v, topK)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("coach.search.hits", len(hits)))
	return toMatches(hits), nil
}

func toMatches(hits []vectorstore.Match) []Match {
	out := make([]Match, len(hits))
	for i, h := range hits {
		out[i] = Match{ID: h.Key, Score: h.Score}
	}
	return out
}
