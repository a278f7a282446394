package keyword

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/mdvdb/internal/models"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "fts"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func chunk(path string, index int, content string, breadcrumb ...string) *models.Chunk {
	return &models.Chunk{
		ID:         models.ChunkID(path, index),
		SourcePath: path,
		Content:    content,
		Breadcrumb: breadcrumb,
		ChunkIndex: index,
	}
}

func upsert(t *testing.T, idx *Index, path string, chunks ...*models.Chunk) {
	t.Helper()
	b := idx.NewBatch()
	if err := b.UpsertFile(path, chunks); err != nil {
		t.Fatal(err)
	}
	if err := idx.Commit(b); err != nil {
		t.Fatal(err)
	}
}

func TestSearchFindsContent(t *testing.T) {
	idx := openTestIndex(t)
	upsert(t, idx, "notes/db.md",
		chunk("notes/db.md", 0, "postgres replication lag monitoring"),
		chunk("notes/db.md", 1, "connection pooling with pgbouncer"))
	upsert(t, idx, "notes/k8s.md",
		chunk("notes/k8s.md", 0, "kubernetes pod scheduling"))

	hits, err := idx.Search(context.Background(), "replication", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %+v, want 1", hits)
	}
	if hits[0].ChunkID != "notes/db.md#0" || hits[0].SourcePath != "notes/db.md" {
		t.Errorf("hit = %+v", hits[0])
	}
	if hits[0].Score <= 0 {
		t.Errorf("score = %v", hits[0].Score)
	}
}

func TestSearchMatchesHeadingHierarchy(t *testing.T) {
	idx := openTestIndex(t)
	upsert(t, idx, "a.md",
		chunk("a.md", 0, "some unrelated body text", "Setup", "Deployment"))

	hits, err := idx.Search(context.Background(), "deployment", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "a.md#0" {
		t.Fatalf("hits = %+v", hits)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	idx := openTestIndex(t)
	hits, err := idx.Search(context.Background(), "   ", 10)
	if err != nil || hits != nil {
		t.Errorf("Search = %v, %v", hits, err)
	}
}

func TestUpsertReplacesOldChunks(t *testing.T) {
	idx := openTestIndex(t)
	upsert(t, idx, "a.md",
		chunk("a.md", 0, "zebra"),
		chunk("a.md", 1, "piano"),
		chunk("a.md", 2, "wizard"))
	upsert(t, idx, "a.md",
		chunk("a.md", 0, "robot"))

	n, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("DocCount = %d, want 1", n)
	}
	hits, err := idx.Search(context.Background(), "piano", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("stale chunk still searchable: %+v", hits)
	}
}

func TestRemoveFile(t *testing.T) {
	idx := openTestIndex(t)
	upsert(t, idx, "a.md", chunk("a.md", 0, "zebra"), chunk("a.md", 1, "piano"))
	upsert(t, idx, "b.md", chunk("b.md", 0, "wizard"))

	if err := idx.RemoveFile("a.md"); err != nil {
		t.Fatal(err)
	}
	n, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("DocCount = %d, want 1", n)
	}
	hits, err := idx.Search(context.Background(), "wizard", 10)
	if err != nil || len(hits) != 1 {
		t.Errorf("other file affected: %v, %v", hits, err)
	}
}

func TestReopenPersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fts")
	idx, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	upsert(t, idx, "a.md", chunk("a.md", 0, "zebra"))
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	n, err := reopened.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("DocCount after reopen = %d", n)
	}
}

func TestRebuildFrom(t *testing.T) {
	idx := openTestIndex(t)
	stored := []*models.StoredChunk{
		{ID: "a.md#0", SourcePath: "a.md", Content: "zebra habitat"},
		{ID: "b.md#0", SourcePath: "b.md", Content: "piano tuning", Breadcrumb: []string{"Music"}},
	}
	if err := idx.RebuildFrom(stored); err != nil {
		t.Fatal(err)
	}
	n, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("DocCount = %d, want 2", n)
	}
	hits, err := idx.Search(context.Background(), "music", 10)
	if err != nil || len(hits) != 1 || hits[0].ChunkID != "b.md#0" {
		t.Errorf("heading search after rebuild: %v, %v", hits, err)
	}
}
