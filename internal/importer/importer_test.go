package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kamusis/coach-cli/internal/catalog"
	"github.com/kamusis/coach-cli/internal/embeddings"
	"github.com/kamusis/coach-cli/internal/fs"
	"github.com/kamusis/coach-cli/internal/library"
	"github.com/kamusis/coach-cli/internal/metrics"
	"github.com/kamusis/coach-cli/internal/search"
	"github.com/kamusis/coach-cli/internal/search/index"
	"github.com/kamusis/coach-cli/internal/vectorstore"
)

const testDim = 24

// manifest builds episodes holding n unique recommendations. When dup is set
// the first recommendation is repeated in the last episode.
func manifest(t *testing.T, n int, dup bool) []byte {
	t.Helper()
	var episodes []library.Episode
	for i := 0; i < n; i += 4 {
		ep := library.Episode{ID: fmt.Sprintf("ep-%d", i/4)}
		for j := i; j < min(i+4, n); j++ {
			ep.Recommendations = append(ep.Recommendations, library.ContentEntry{
				ID:               fmt.Sprintf("rec-%03d", j),
				Title:            fmt.Sprintf("Recommendation %d", j),
				ShortDescription: "short",
				Detail:           fmt.Sprintf("detail text for item %d", j),
				Tags:             []string{"tag", fmt.Sprintf("t%d", j%3)},
				EstimatedTimeSec: 60,
			})
		}
		episodes = append(episodes, ep)
	}
	if dup {
		last := &episodes[len(episodes)-1]
		last.Recommendations = append(last.Recommendations, episodes[0].Recommendations[0])
	}
	b, err := json.Marshal(episodes)
	require.NoError(t, err)
	return b
}

// countingIndexer wraps a Manager, counting calls and optionally failing
// upserts chosen by fail.
type countingIndexer struct {
	inner *search.Manager
	fail  func(call int64, id string) error

	upserts atomic.Int64
	has     atomic.Int64
	binds   atomic.Int64

	inflight, maxInflight atomic.Int64
}

func (c *countingIndexer) UpsertEntry(ctx context.Context, id, title, detail string, tags []string) ([]float32, error) {
	n := c.upserts.Add(1)
	cur := c.inflight.Add(1)
	defer c.inflight.Add(-1)
	for {
		m := c.maxInflight.Load()
		if cur <= m || c.maxInflight.CompareAndSwap(m, cur) {
			break
		}
	}
	if c.fail != nil {
		if err := c.fail(n, id); err != nil {
			return nil, err
		}
	}
	time.Sleep(time.Millisecond)
	return c.inner.UpsertEntry(ctx, id, title, detail, tags)
}

func (c *countingIndexer) HasEntry(id string) bool {
	c.has.Add(1)
	return c.inner.HasEntry(id)
}

func (c *countingIndexer) BindModel(reset bool) (bool, error) {
	c.binds.Add(1)
	return c.inner.BindModel(reset)
}

func (c *countingIndexer) calls() int64 { return c.upserts.Load() + c.has.Load() + c.binds.Load() }

type env struct {
	t    *testing.T
	dir  string
	fsys fs.FileSystem
	cat  *catalog.Catalog
	idx  *index.Index
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cat, err := catalog.Open(filepath.Join(dir, "catalog.db"), catalog.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	e := &env{t: t, dir: dir, fsys: fs.Default, cat: cat}
	e.openIndex()
	return e
}

func (e *env) openIndex() {
	e.t.Helper()
	idx, err := index.Open(filepath.Join(e.dir, "index"), index.Options{FS: e.fsys, Shards: 4, Dim: testDim})
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = idx.Close() })
	e.idx = idx
}

// importer builds a fresh importer, as a new process would.
func (e *env) importer(prov embeddings.Provider, data []byte, opts Options) (*Importer, *countingIndexer) {
	ci := &countingIndexer{inner: search.NewManager(e.idx, prov, nil)}
	return New(e.cat, ci, library.Static("test", data), opts), ci
}

func (e *env) counts() (total, indexed int) {
	e.t.Helper()
	total, indexed, err := e.cat.Count(context.Background())
	require.NoError(e.t, err)
	return total, indexed
}

func (e *env) record() *catalog.ImportRecord {
	e.t.Helper()
	r, err := e.cat.ImportRecord(context.Background(), "test")
	require.NoError(e.t, err)
	return r
}

func TestRun_FreshIngest(t *testing.T) {
	e := newEnv(t)
	data := manifest(t, 10, true)

	im, ci := e.importer(embeddings.NewHashing(testDim), data, Options{})
	res, err := im.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeCommitted, res.Outcome)
	assert.Equal(t, 10, res.Entries)
	assert.Equal(t, 10, res.Indexed)
	assert.Zero(t, res.Pending)
	assert.False(t, res.DeferredEmbeddings)
	assert.EqualValues(t, 10, ci.upserts.Load())

	total, indexed := e.counts()
	assert.Equal(t, 10, total)
	assert.Equal(t, 10, indexed)
	assert.Equal(t, 10, e.idx.Len())

	rec := e.record()
	require.NotNil(t, rec)
	assert.Equal(t, library.Checksum(data), rec.Checksum)
	assert.Equal(t, 1, rec.SchemaVersion)
	assert.Equal(t, embeddings.NewHashing(testDim).ModelID(), e.idx.Meta().ModelID)
}

func TestRun_ShortCircuitMakesNoIndexCalls(t *testing.T) {
	e := newEnv(t)
	data := manifest(t, 6, false)
	ctx := context.Background()

	im, _ := e.importer(embeddings.NewHashing(testDim), data, Options{})
	_, err := im.Run(ctx)
	require.NoError(t, err)
	before, err := e.cat.Get(ctx, "rec-000")
	require.NoError(t, err)

	im, ci := e.importer(embeddings.NewHashing(testDim), data, Options{})
	res, err := im.Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.UpToDate())
	assert.Zero(t, ci.calls())
	assert.Zero(t, res.Entries)

	after, err := e.cat.Get(ctx, "rec-000")
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestRun_FailsMidwayThenRetrySucceeds(t *testing.T) {
	e := newEnv(t)
	data := manifest(t, 8, true)
	ctx := context.Background()
	transient := errors.New("disk hiccup")

	im, ci := e.importer(embeddings.NewHashing(testDim), data, Options{})
	ci.fail = func(call int64, _ string) error {
		if call == 3 {
			return transient
		}
		return nil
	}
	res, err := im.Run(ctx)
	require.ErrorIs(t, err, ErrIndexingFailed)
	require.ErrorIs(t, err, transient)
	var ie *IndexingError
	require.ErrorAs(t, err, &ie)
	assert.NotEmpty(t, ie.ID)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 2, res.Indexed)
	assert.Nil(t, e.record())

	total, indexed := e.counts()
	assert.Equal(t, 8, total)
	assert.Equal(t, 2, indexed)

	im, ci = e.importer(embeddings.NewHashing(testDim), data, Options{})
	res, err = im.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, res.Outcome)
	assert.Equal(t, 2, res.Reused)
	assert.Equal(t, 6, res.Indexed)
	assert.EqualValues(t, 6, ci.upserts.Load())

	total, indexed = e.counts()
	assert.Equal(t, 8, total)
	assert.Equal(t, 8, indexed)
	assert.Equal(t, library.Checksum(data), e.record().Checksum)
}

func TestRun_RepeatedFailuresConvergeWithoutDuplicates(t *testing.T) {
	e := newEnv(t)
	data := manifest(t, 12, true)
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		im, ci := e.importer(embeddings.NewHashing(testDim), data, Options{})
		ci.fail = func(call int64, _ string) error {
			if call == 2 {
				return &vectorstore.IOError{Stage: vectorstore.StageWrite, Path: "x", Err: fs.ErrInjected}
			}
			return nil
		}
		_, err := im.Run(ctx)
		require.ErrorIs(t, err, ErrIndexingFailed, "attempt %d", attempt)
		assert.Nil(t, e.record())
		total, _ := e.counts()
		assert.Equal(t, 12, total)
	}

	im, _ := e.importer(embeddings.NewHashing(testDim), data, Options{})
	res, err := im.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, res.Outcome)
	assert.Equal(t, 3, res.Reused)

	list, err := e.cat.List(ctx)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, r := range list {
		ids[r.ID] = true
	}
	assert.Len(t, list, 12)
	assert.Len(t, ids, 12)
	assert.Equal(t, 12, e.idx.Len())
}

func TestRun_EmbeddingsUnavailableDefers(t *testing.T) {
	e := newEnv(t)
	data := manifest(t, 9, true)
	ctx := context.Background()
	deferredBefore := testutil.ToFloat64(metrics.ImportRuns.WithLabelValues(string(OutcomeDeferred)))

	im, ci := e.importer(embeddings.Unavailable("not configured"), data, Options{})
	res, err := im.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeferred, res.Outcome)
	assert.True(t, res.DeferredEmbeddings)
	assert.Equal(t, 9, res.Pending)
	assert.EqualValues(t, 1, ci.upserts.Load())
	assert.Nil(t, e.record())
	assert.Zero(t, e.idx.Len())
	assert.Equal(t, deferredBefore+1, testutil.ToFloat64(metrics.ImportRuns.WithLabelValues(string(OutcomeDeferred))))

	total, indexed := e.counts()
	assert.Equal(t, 9, total)
	assert.Zero(t, indexed)

	// Same manifest again while still unavailable: not short-circuited.
	im, _ = e.importer(nil, data, Options{})
	res, err = im.Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.DeferredEmbeddings)
	total, _ = e.counts()
	assert.Equal(t, 9, total)

	// Capability comes back.
	im, _ = e.importer(embeddings.NewHashing(testDim), data, Options{})
	res, err = im.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, res.Outcome)
	assert.Equal(t, 9, res.Indexed)
	assert.Equal(t, library.Checksum(data), e.record().Checksum)
}

func TestRun_UnavailableMidwayDefersWithPartialProgress(t *testing.T) {
	e := newEnv(t)
	data := manifest(t, 6, false)

	im, ci := e.importer(embeddings.NewHashing(testDim), data, Options{})
	ci.fail = func(call int64, _ string) error {
		if call >= 4 {
			return fmt.Errorf("%w: quota exhausted", embeddings.ErrUnavailable)
		}
		return nil
	}
	res, err := im.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.DeferredEmbeddings)
	assert.Equal(t, 3, res.Indexed)
	assert.Equal(t, 3, res.Pending)
	assert.EqualValues(t, 4, ci.upserts.Load())
	assert.Nil(t, e.record())
}

func TestRun_ParseErrorLeavesCatalogUntouched(t *testing.T) {
	e := newEnv(t)

	im, ci := e.importer(embeddings.NewHashing(testDim), []byte(`[{"recommendations":[{"id":"a"}]}]`), Options{})
	res, err := im.Run(context.Background())
	require.ErrorIs(t, err, library.ErrParse)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Zero(t, ci.calls())
	total, _ := e.counts()
	assert.Zero(t, total)
	assert.Nil(t, e.record())
}

func TestRun_ChangedEntryIsReembedded(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	data := manifest(t, 5, false)

	im, _ := e.importer(embeddings.NewHashing(testDim), data, Options{})
	_, err := im.Run(ctx)
	require.NoError(t, err)

	var episodes []library.Episode
	require.NoError(t, json.Unmarshal(data, &episodes))
	episodes[0].Recommendations[1].Title = "A retitled recommendation"
	changed, err := json.Marshal(episodes)
	require.NoError(t, err)

	im, ci := e.importer(embeddings.NewHashing(testDim), changed, Options{})
	res, err := im.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, res.Outcome)
	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, 4, res.Reused)
	assert.EqualValues(t, 1, ci.upserts.Load())
	assert.Equal(t, library.Checksum(changed), e.record().Checksum)
}

func TestRun_SchemaVersionBypassesGate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	data := manifest(t, 4, false)

	im, _ := e.importer(embeddings.NewHashing(testDim), data, Options{SchemaVersion: 1})
	_, err := im.Run(ctx)
	require.NoError(t, err)

	im, ci := e.importer(embeddings.NewHashing(testDim), data, Options{SchemaVersion: 2})
	res, err := im.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, res.Outcome)
	assert.Equal(t, 4, res.Reused)
	assert.Zero(t, ci.upserts.Load())
	assert.Equal(t, 2, e.record().SchemaVersion)
}

func TestRun_ForceReindexesAndResetsModel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	data := manifest(t, 4, false)

	im, _ := e.importer(embeddings.NewHashing(testDim), data, Options{})
	_, err := im.Run(ctx)
	require.NoError(t, err)

	// A different model without force is refused.
	other := embeddings.NewHashing(testDim * 2)
	im, _ = e.importer(other, data, Options{SchemaVersion: 3})
	_, err = im.Run(ctx)
	require.ErrorIs(t, err, search.ErrModelMismatch)

	im, ci := e.importer(other, data, Options{Force: true})
	res, err := im.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, res.Outcome)
	assert.Equal(t, 4, res.Indexed)
	assert.EqualValues(t, 4, ci.upserts.Load())
	assert.Equal(t, other.ModelID(), e.idx.Meta().ModelID)
	total, indexed := e.counts()
	assert.Equal(t, 4, total)
	assert.Equal(t, 4, indexed)
}

func TestRun_CloseFailureAbortsRun(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.idx.Close())
	ffs := fs.NewFaultyFS(nil)
	e.fsys = ffs
	e.openIndex()
	ffs.AddRule(".vec", fs.Fault{FailOnClose: true, Times: 1})

	data := manifest(t, 5, false)
	im, _ := e.importer(embeddings.NewHashing(testDim), data, Options{})
	_, err := im.Run(context.Background())
	require.ErrorIs(t, err, ErrIndexingFailed)
	var ioe *vectorstore.IOError
	require.ErrorAs(t, err, &ioe)
	assert.Equal(t, vectorstore.StageClose, ioe.Stage)
	assert.Contains(t, err.Error(), "close")
	assert.Nil(t, e.record())

	// The vector was durable despite the close error; the retry still
	// re-embeds it because the catalog never marked it indexed.
	im, ci := e.importer(embeddings.NewHashing(testDim), data, Options{})
	res, err := im.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, res.Outcome)
	assert.EqualValues(t, 5, ci.upserts.Load())
	assert.Equal(t, 5, e.idx.Len())
}

func TestRun_BoundedWorkers(t *testing.T) {
	e := newEnv(t)
	data := manifest(t, 40, false)

	im, ci := e.importer(embeddings.NewHashing(testDim), data, Options{Workers: 4})
	res, err := im.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, res.Indexed)
	assert.LessOrEqual(t, ci.maxInflight.Load(), int64(4))
	total, indexed := e.counts()
	assert.Equal(t, 40, total)
	assert.Equal(t, 40, indexed)
}

func TestRun_ConcurrentReadsDuringImport(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	data := manifest(t, 40, false)

	im, _ := e.importer(embeddings.NewHashing(testDim), data, Options{Workers: 2})
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			readCtx, cancel := context.WithTimeout(ctx, time.Second)
			_, _, err := e.cat.Count(readCtx)
			cancel()
			assert.NoError(t, err)
		}
	}()
	_, err := im.Run(ctx)
	close(stop)
	wg.Wait()
	require.NoError(t, err)
}

func TestRun_EmitsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	e := newEnv(t)
	im, _ := e.importer(embeddings.NewHashing(testDim), manifest(t, 2, false), Options{})
	_, err := im.Run(context.Background())
	require.NoError(t, err)

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "import.run")
}
