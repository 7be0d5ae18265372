package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"devsolver/config"
	"devsolver/internal/domain"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	st, err := NewBoltStore(filepath.Join(t.TempDir(), "test.db"),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testChunks(docID string, n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:         docID + "-chunk-" + string(rune('0'+i)),
			DocumentID: docID,
			Content:    "content " + string(rune('a'+i)),
			Ordinal:    i,
			Metadata:   map[string]any{"chunk_index": i},
		}
	}
	return chunks
}

func saveDoc(t *testing.T, st *BoltStore, tech, docID string, label domain.SourceLabel, n int) {
	t.Helper()
	meta := domain.SourceMeta{DocumentID: docID, Label: label, Title: docID, IngestedAt: time.Now().UTC()}
	if err := st.SaveDocument(context.Background(), tech, meta, testChunks(docID, n)); err != nil {
		t.Fatal(err)
	}
}

func TestBoltStore_SaveAndLoad(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	saveDoc(t, st, "python", "doc-b", domain.SourceCommunity, 2)
	saveDoc(t, st, "python", "doc-a", domain.SourceOfficial, 3)
	saveDoc(t, st, "go", "doc-g", domain.SourceOfficial, 1)

	chunks, err := st.LoadChunks(ctx, "python", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(chunks))
	}
	// Ordered by document, then ordinal.
	want := []string{"doc-a-chunk-0", "doc-a-chunk-1", "doc-a-chunk-2", "doc-b-chunk-0", "doc-b-chunk-1"}
	for i, c := range chunks {
		if c.ID != want[i] {
			t.Errorf("chunk %d: expected %s, got %s", i, want[i], c.ID)
		}
	}

	docChunks, err := st.LoadChunks(ctx, "python", "doc-b")
	if err != nil {
		t.Fatal(err)
	}
	if len(docChunks) != 2 {
		t.Errorf("expected 2 chunks for doc-b, got %d", len(docChunks))
	}

	metas, err := st.LoadSourceMeta(ctx, "python")
	if err != nil {
		t.Fatal(err)
	}
	if metas["doc-a"].Label != domain.SourceOfficial || metas["doc-a"].ChunkCount != 3 {
		t.Errorf("unexpected meta for doc-a: %+v", metas["doc-a"])
	}
	if _, ok := metas["doc-g"]; ok {
		t.Error("technologies must not leak into each other")
	}

	techs, err := st.ListTechnologies(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(techs) != 2 || techs[0] != "go" || techs[1] != "python" {
		t.Errorf("unexpected technologies: %v", techs)
	}
}

func TestBoltStore_UnknownTechnology(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	chunks, err := st.LoadChunks(ctx, "rust", "")
	if err != nil || len(chunks) != 0 {
		t.Errorf("expected empty result, got %v, %v", chunks, err)
	}
	embeddings, err := st.LoadEmbeddings(ctx, "rust", "")
	if err != nil || len(embeddings) != 0 {
		t.Errorf("expected empty embeddings, got %v, %v", embeddings, err)
	}
	if _, err := st.Stats(ctx, "rust"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBoltStore_SaveDocumentReplaces(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	saveDoc(t, st, "python", "doc", domain.SourceOfficial, 4)
	if err := st.SaveEmbeddings(ctx, "python", "doc", map[string]domain.EmbeddingVector{
		"doc-chunk-0": {1, 0},
	}); err != nil {
		t.Fatal(err)
	}

	saveDoc(t, st, "python", "doc", domain.SourceOfficial, 2)

	chunks, _ := st.LoadChunks(ctx, "python", "doc")
	if len(chunks) != 2 {
		t.Errorf("expected 2 chunks after replace, got %d", len(chunks))
	}
	embeddings, _ := st.LoadEmbeddings(ctx, "python", "doc")
	if len(embeddings) != 0 {
		t.Errorf("expected stale embeddings to be removed, got %d", len(embeddings))
	}
}

func TestBoltStore_Embeddings(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	saveDoc(t, st, "python", "doc-a", domain.SourceOfficial, 2)
	saveDoc(t, st, "python", "doc-b", domain.SourceOfficial, 1)

	err := st.SaveEmbeddings(ctx, "python", "doc-a", map[string]domain.EmbeddingVector{
		"doc-a-chunk-0": {0.1, 0.2, 0.3},
		"doc-a-chunk-1": domain.ZeroVector(3),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.SaveEmbeddings(ctx, "python", "doc-b", map[string]domain.EmbeddingVector{
		"doc-b-chunk-0": {1, 1, 1},
	}); err != nil {
		t.Fatal(err)
	}

	all, err := st.LoadEmbeddings(ctx, "python", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(all))
	}
	if got := all["doc-a-chunk-0"]; len(got) != 3 || got[2] != 0.3 {
		t.Errorf("unexpected vector: %v", got)
	}
	if !all["doc-a-chunk-1"].IsZero() {
		t.Error("sentinel vector should round-trip")
	}

	onlyB, _ := st.LoadEmbeddings(ctx, "python", "doc-b")
	if len(onlyB) != 1 {
		t.Errorf("expected 1 embedding for doc-b, got %d", len(onlyB))
	}

	err = st.SaveEmbeddings(ctx, "python", "missing", map[string]domain.EmbeddingVector{"x": {1}})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	stats, err := st.Stats(ctx, "python")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Documents != 2 || stats.Chunks != 3 || stats.Embeddings != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestBoltStore_CorruptRecordsSkipped(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	saveDoc(t, st, "python", "doc", domain.SourceOfficial, 2)
	if err := st.SaveEmbeddings(ctx, "python", "doc", map[string]domain.EmbeddingVector{"doc-chunk-0": {1}}); err != nil {
		t.Fatal(err)
	}

	err := st.DB().Update(func(tx *bbolt.Tx) error {
		tb := techBucket(tx, "python")
		if err := tb.Bucket(bucketChunks).Put(append(docPrefix("doc"), "99999999"...), []byte("{not json")); err != nil {
			return err
		}
		if err := tb.Bucket(bucketEmbeddings).Put(embeddingKey("doc", "bad"), []byte("???")); err != nil {
			return err
		}
		return tb.Bucket(bucketDocs).Put([]byte("broken"), []byte("["))
	})
	if err != nil {
		t.Fatal(err)
	}

	chunks, err := st.LoadChunks(ctx, "python", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Errorf("expected corrupt chunk to be skipped, got %d chunks", len(chunks))
	}
	embeddings, err := st.LoadEmbeddings(ctx, "python", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(embeddings) != 1 {
		t.Errorf("expected 1 embedding, got %d", len(embeddings))
	}
	metas, err := st.LoadSourceMeta(ctx, "python")
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 {
		t.Errorf("expected 1 source, got %d", len(metas))
	}
}

func TestBoltStore_DeleteDocument(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	saveDoc(t, st, "python", "doc-a", domain.SourceOfficial, 2)
	saveDoc(t, st, "python", "doc-ab", domain.SourceOfficial, 2)

	if err := st.DeleteDocument(ctx, "python", "doc-a"); err != nil {
		t.Fatal(err)
	}
	chunks, _ := st.LoadChunks(ctx, "python", "")
	if len(chunks) != 2 || chunks[0].DocumentID != "doc-ab" {
		t.Errorf("delete removed the wrong chunks: %+v", chunks)
	}
	if err := st.DeleteDocument(ctx, "python", "doc-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBoltStore_DropTechnology(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	saveDoc(t, st, "python", "doc", domain.SourceOfficial, 1)
	if err := st.DropTechnology(ctx, "python"); err != nil {
		t.Fatal(err)
	}
	techs, _ := st.ListTechnologies(ctx)
	if len(techs) != 0 {
		t.Errorf("expected no technologies, got %v", techs)
	}
	if err := st.DropTechnology(ctx, "python"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBoltStore_CancelledContext(t *testing.T) {
	st := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := st.LoadChunks(ctx, "python", ""); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBoltStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	st, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	saveDoc(t, st, "python", "doc", domain.SourceOfficial, 3)
	st.Close()

	reopened, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	chunks, err := reopened.LoadChunks(context.Background(), "python", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 || chunks[2].Content != "content c" {
		t.Errorf("unexpected chunks after reopen: %+v", chunks)
	}
}

func TestMigrations(t *testing.T) {
	st := openTestStore(t)
	cfg := config.DefaultConfig()

	result, err := st.CheckMigration(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !result.NeedsMigration || result.NeedsRebuild {
		t.Errorf("fresh store: unexpected result %+v", result)
	}

	if err := st.Migrate(cfg); err != nil {
		t.Fatal(err)
	}
	rebuild, _, err := st.NeedsRebuild(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if rebuild {
		t.Error("same config should not need rebuild")
	}

	changed := config.DefaultConfig()
	changed.Chunk.Size = 500
	rebuild, reason, err := st.NeedsRebuild(changed)
	if err != nil {
		t.Fatal(err)
	}
	if !rebuild || reason == "" {
		t.Error("changed chunk size should need rebuild")
	}

	saveDoc(t, st, "python", "doc", domain.SourceOfficial, 1)
	if err := st.Clear(); err != nil {
		t.Fatal(err)
	}
	techs, _ := st.ListTechnologies(context.Background())
	if len(techs) != 0 {
		t.Errorf("expected clear to drop technologies, got %v", techs)
	}
	info, _ := st.GetSchemaInfo()
	if info.Version != CurrentSchemaVersion {
		t.Errorf("clear must keep schema info, got %+v", info)
	}
}
