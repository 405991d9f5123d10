package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/redact"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	short bool
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingStore struct {
	mu      sync.Mutex
	upserts [][]vectorstore.Record
	err     error
}

func (s *recordingStore) Upsert(_ context.Context, records []vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.upserts = append(s.upserts, records)
	return nil
}

func (s *recordingStore) Query(context.Context, []float32, vectorstore.TenantFilter, int) ([]vectorstore.Result, error) {
	return nil, nil
}

func (s *recordingStore) Metric() vectorstore.Metric { return vectorstore.MetricCosine }

func (s *recordingStore) Close() error { return nil }

func (s *recordingStore) records() []vectorstore.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []vectorstore.Record
	for _, u := range s.upserts {
		all = append(all, u...)
	}
	return all
}

func newTestIndexer(t *testing.T, e *fakeEmbedder, s *recordingStore, logger *logging.Logger) *Indexer {
	t.Helper()
	ix, err := New(e, s, Config{WatchDebounce: 20 * time.Millisecond}, logger)
	require.NoError(t, err)
	return ix
}

const policy = "Water damage is covered up to 5000 EUR. The deductible is 200 EUR. " +
	"Claims must be filed within 30 days. Mold is excluded. Flooding needs a rider."

func TestIndex_ChunksEmbedsAndStoresOnce(t *testing.T) {
	e := &fakeEmbedder{}
	s := &recordingStore{}
	ix := newTestIndexer(t, e, s, nil)

	res, err := ix.Index(context.Background(), policy, "acme")
	require.NoError(t, err)

	assert.Equal(t, "acme", res.Tenant)
	assert.Equal(t, 2, res.Chunks)
	require.Len(t, res.IDs, 2)

	require.Equal(t, 1, e.callCount(), "one embedding call per document")
	assert.Equal(t, []string{
		"Water damage is covered up to 5000 EUR. The deductible is 200 EUR. Claims must be filed within 30 days.",
		"Mold is excluded. Flooding needs a rider.",
	}, e.calls[0])

	require.Len(t, s.upserts, 1, "one upsert per document")
	records := s.upserts[0]
	require.Len(t, records, 2)
	for i, r := range records {
		assert.Equal(t, res.IDs[i], r.ID)
		assert.Equal(t, e.calls[0][i], r.Content)
		assert.Equal(t, map[string]string{"tenant": "acme"}, r.Metadata)
		assert.Equal(t, float32(len(r.Content)), r.Embedding[0], "embedding order matches chunk order")

		id, err := uuid.Parse(r.ID)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(4), id.Version())
	}
	assert.NotEqual(t, records[0].ID, records[1].ID)
}

func TestIndex_RedactsBeforeEmbedding(t *testing.T) {
	r, err := redact.New(redact.Config{})
	require.NoError(t, err)
	e := &fakeEmbedder{}
	s := &recordingStore{}
	ix, err := New(e, s, Config{Redactor: r}, nil)
	require.NoError(t, err)

	_, err = ix.Index(context.Background(), "The portal password=hunter2hunter2 is shared. Claims go to support.", "acme")
	require.NoError(t, err)

	records := s.records()
	require.NotEmpty(t, records)
	for _, rec := range records {
		assert.NotContains(t, rec.Content, "hunter2")
	}
	assert.Contains(t, records[0].Content, redact.DefaultReplacement)
	assert.NotContains(t, e.calls[0][0], "hunter2", "the embedder never sees the credential")
}

func TestIndex_EmptyTextWritesNothing(t *testing.T) {
	e := &fakeEmbedder{}
	s := &recordingStore{}
	ix := newTestIndexer(t, e, s, nil)

	res, err := ix.Index(context.Background(), "   \n\t ", "acme")
	require.NoError(t, err)
	assert.Equal(t, Result{Tenant: "acme"}, res)
	assert.Zero(t, e.callCount())
	assert.Empty(t, s.upserts)
}

func TestIndex_InvalidTenant(t *testing.T) {
	e := &fakeEmbedder{}
	s := &recordingStore{}
	ix := newTestIndexer(t, e, s, nil)

	for _, owner := range []string{"", "acme corp", "../x"} {
		_, err := ix.Index(context.Background(), policy, owner)
		require.Error(t, err, owner)
		assert.True(t, apperr.Is(err, apperr.KindValidation), owner)
	}
	assert.Zero(t, e.callCount())
	assert.Empty(t, s.upserts)
}

func TestIndex_EmbeddingFailureWritesNothing(t *testing.T) {
	e := &fakeEmbedder{err: errors.New("rate limited")}
	s := &recordingStore{}
	ix := newTestIndexer(t, e, s, nil)

	_, err := ix.Index(context.Background(), policy, "acme")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Empty(t, s.upserts)
}

func TestIndex_VectorCountMismatch(t *testing.T) {
	e := &fakeEmbedder{short: true}
	s := &recordingStore{}
	ix := newTestIndexer(t, e, s, nil)

	_, err := ix.Index(context.Background(), policy, "acme")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Empty(t, s.upserts)
}

func TestIndex_StoreFailure(t *testing.T) {
	e := &fakeEmbedder{}
	s := &recordingStore{err: errors.New("disk full")}
	ix := newTestIndexer(t, e, s, nil)

	_, err := ix.Index(context.Background(), policy, "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(nil, &recordingStore{}, Config{}, nil)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))

	_, err = New(&fakeEmbedder{}, nil, Config{}, nil)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIndexTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "acme", "policy.txt"), policy)
	writeFile(t, filepath.Join(root, "acme", "notes", "faq.md"), "Is glass covered? Yes.")
	writeFile(t, filepath.Join(root, "other", "contract.txt"), "Fire is covered.")
	writeFile(t, filepath.Join(root, "other", "image.png"), "binary")
	writeFile(t, filepath.Join(root, "loose.txt"), "No tenant here.")
	writeFile(t, filepath.Join(root, "bad tenant", "doc.txt"), "Invalid directory name.")
	writeFile(t, filepath.Join(root, ".git", "x", "HEAD.txt"), "hidden")

	e := &fakeEmbedder{}
	s := &recordingStore{}
	logger := logging.NewTestLogger()
	ix := newTestIndexer(t, e, s, logger.Logger)

	res, err := ix.IndexTree(context.Background(), root)
	require.Error(t, err, "invalid tenant directory is reported")

	assert.Equal(t, 3, res.Files)
	assert.Equal(t, 4, res.Chunks)
	assert.Equal(t, []string{filepath.Join(root, "loose.txt")}, res.Skipped)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, filepath.Join(root, "bad tenant", "doc.txt"), res.Failed[0].Path)

	owners := map[string]int{}
	for _, r := range s.records() {
		owners[r.Tenant()]++
	}
	assert.Equal(t, map[string]int{"acme": 3, "other": 1}, owners)

	logger.AssertLogged(t, zapcore.WarnLevel, "skipping file outside a tenant directory")
}

func TestIndexTree_RespectsIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".ragignore"), "drafts/\n*.tmp.md\n/other/archive\n")
	writeFile(t, filepath.Join(root, "acme", "policy.txt"), "Hail is covered.")
	writeFile(t, filepath.Join(root, "acme", "drafts", "v2.txt"), "Unreleased terms.")
	writeFile(t, filepath.Join(root, "acme", "scratch.tmp.md"), "Scratch.")
	writeFile(t, filepath.Join(root, "other", "archive", "old.txt"), "Retired.")
	writeFile(t, filepath.Join(root, "other", "current.txt"), "Fire is covered.")

	s := &recordingStore{}
	ix := newTestIndexer(t, &fakeEmbedder{}, s, nil)

	res, err := ix.IndexTree(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 3, res.Ignored)
	assert.Empty(t, res.Skipped)

	var contents []string
	for _, r := range s.records() {
		contents = append(contents, r.Content)
	}
	assert.ElementsMatch(t, []string{"Hail is covered.", "Fire is covered."}, contents)
}

func TestIndexTree_NotADirectory(t *testing.T) {
	ix := newTestIndexer(t, &fakeEmbedder{}, &recordingStore{}, nil)
	_, err := ix.IndexTree(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestIndexFile_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.xlsx")
	writeFile(t, path, "x")

	ix := newTestIndexer(t, &fakeEmbedder{}, &recordingStore{}, nil)
	_, err := ix.IndexFile(context.Background(), path, "acme")
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestReadDocument_RejectsInvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latin1.txt")
	require.NoError(t, os.WriteFile(path, []byte{0x66, 0xe9, 0x65}, 0o644))
	_, err := ReadDocument(path)
	assert.Error(t, err)
}

func TestWatch_IndexesNewFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "acme"), 0o755))

	e := &fakeEmbedder{}
	s := &recordingStore{}
	ix := newTestIndexer(t, e, s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Watch(ctx, root) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(root, "acme", "new.txt"), "Theft is covered. Loss is not.")
	writeFile(t, filepath.Join(root, "beta", "fresh.txt"), "Hail is covered.")

	require.Eventually(t, func() bool {
		return len(s.records()) == 2
	}, 5*time.Second, 20*time.Millisecond)

	owners := map[string]bool{}
	for _, r := range s.records() {
		owners[r.Tenant()] = true
	}
	assert.Equal(t, map[string]bool{"acme": true, "beta": true}, owners)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_SkipsHiddenPaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "acme"), 0o755))

	e := &fakeEmbedder{}
	s := &recordingStore{}
	ix := newTestIndexer(t, e, s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ix.Watch(ctx, root) }()

	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(root, "acme", ".cache", "scratch.txt"), "Cached secret draft.")
	writeFile(t, filepath.Join(root, "acme", ".notes.txt"), "Private notes.")
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(root, "acme", ".cache", "later.txt"), "Written after the directory appeared.")
	writeFile(t, filepath.Join(root, "acme", "policy.txt"), "Hail is covered.")

	require.Eventually(t, func() bool {
		return len(s.records()) == 1
	}, 5*time.Second, 20*time.Millisecond)
	// Leave several debounce windows for anything hidden to surface.
	time.Sleep(200 * time.Millisecond)

	records := s.records()
	require.Len(t, records, 1)
	assert.Equal(t, "Hail is covered.", records[0].Content)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
