// Package keyword implements the lexical half of hybrid retrieval: a bleve
// full-text index over chunks, plus a spell-check assist for queries that
// come back empty.
package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"go.uber.org/zap"

	"github.com/hyperjump/mdvdb/internal/models"
)

const headingBoost = 1.5

// chunkDoc is the bleve document for one chunk. Content and the heading
// hierarchy are analyzed but not stored; the stored fields are what search
// results need to reach back into the vector index.
type chunkDoc struct {
	ChunkID          string `json:"chunk_id"`
	SourcePath       string `json:"source_path"`
	Content          string `json:"content"`
	HeadingHierarchy string `json:"heading_hierarchy"`
}

// Hit is a single lexical search result.
type Hit struct {
	ChunkID    string
	SourcePath string
	Score      float64 // raw BM25
}

// Index wraps a bleve index whose documents are chunks. Writers are expected
// to be serialized by the ingest pipeline; reads may run concurrently.
type Index struct {
	idx    bleve.Index
	logger *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger used by the index.
func WithLogger(logger *zap.Logger) Option {
	return func(i *Index) {
		i.logger = logger
	}
}

func buildMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	id := bleve.NewKeywordFieldMapping()
	id.IncludeInAll = false
	doc.AddFieldMappingsAt("chunk_id", id)

	path := bleve.NewKeywordFieldMapping()
	path.IncludeInAll = false
	doc.AddFieldMappingsAt("source_path", path)

	content := bleve.NewTextFieldMapping()
	content.Analyzer = en.AnalyzerName
	content.Store = false
	doc.AddFieldMappingsAt("content", content)

	heading := bleve.NewTextFieldMapping()
	heading.Analyzer = en.AnalyzerName
	heading.Store = false
	doc.AddFieldMappingsAt("heading_hierarchy", heading)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

// Open opens the bleve index directory at path, creating it when absent.
// Reopening an existing directory reuses it so incremental ingests do not
// re-index unchanged files.
func Open(path string, opts ...Option) (*Index, error) {
	i := &Index{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(i)
	}

	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open lexical index: %w", err)
		}
		i.idx = idx
		return i, nil
	}

	idx, err := bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create lexical index: %w", err)
	}
	i.idx = idx
	return i, nil
}

// Search runs a match query over content and the heading hierarchy (the
// latter boosted) and returns up to limit hits by BM25 score.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}

	content := bleve.NewMatchQuery(query)
	content.SetField("content")
	heading := bleve.NewMatchQuery(query)
	heading.SetField("heading_hierarchy")
	heading.SetBoost(headingBoost)

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(content, heading))
	req.Size = limit
	req.Fields = []string{"source_path"}

	res, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ChunkID: h.ID, Score: h.Score}
		if sp, ok := h.Fields["source_path"].(string); ok {
			hit.SourcePath = sp
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Batch accumulates document changes for one ingest run. All mutations go
// through a batch so an ingest commits to bleve exactly once.
type Batch struct {
	idx *Index
	b   *bleve.Batch
}

// NewBatch starts an empty batch.
func (i *Index) NewBatch() *Batch {
	return &Batch{idx: i, b: i.idx.NewBatch()}
}

// UpsertFile stages the replacement of every document belonging to relPath
// with the given chunks.
func (b *Batch) UpsertFile(relPath string, chunks []*models.Chunk) error {
	if err := b.stageRemoval(relPath); err != nil {
		return err
	}
	for _, c := range chunks {
		doc := chunkDoc{
			ChunkID:          c.ID,
			SourcePath:       c.SourcePath,
			Content:          c.Content,
			HeadingHierarchy: strings.Join(c.Breadcrumb, " > "),
		}
		if err := b.b.Index(c.ID, doc); err != nil {
			return fmt.Errorf("failed to stage chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

// RemoveFile stages the deletion of every document belonging to relPath.
func (b *Batch) RemoveFile(relPath string) error {
	return b.stageRemoval(relPath)
}

func (b *Batch) stageRemoval(relPath string) error {
	ids, err := b.idx.chunkIDsForFile(relPath)
	if err != nil {
		return err
	}
	for _, id := range ids {
		b.b.Delete(id)
	}
	return nil
}

// Commit applies the batch to the index.
func (i *Index) Commit(b *Batch) error {
	if err := i.idx.Batch(b.b); err != nil {
		return fmt.Errorf("failed to commit lexical batch: %w", err)
	}
	return nil
}

// RemoveFile deletes a file's documents outside of any ingest batch. Used by
// the watch loop for standalone deletions.
func (i *Index) RemoveFile(relPath string) error {
	b := i.NewBatch()
	if err := b.RemoveFile(relPath); err != nil {
		return err
	}
	return i.Commit(b)
}

// RebuildFrom re-indexes every stored chunk in one batch. Called when the
// lexical index is found empty while the vector index is not.
func (i *Index) RebuildFrom(chunks []*models.StoredChunk) error {
	b := i.idx.NewBatch()
	for _, c := range chunks {
		doc := chunkDoc{
			ChunkID:          c.ID,
			SourcePath:       c.SourcePath,
			Content:          c.Content,
			HeadingHierarchy: strings.Join(c.Breadcrumb, " > "),
		}
		if err := b.Index(c.ID, doc); err != nil {
			return fmt.Errorf("failed to stage chunk %s: %w", c.ID, err)
		}
	}
	if err := i.idx.Batch(b); err != nil {
		return fmt.Errorf("failed to rebuild lexical index: %w", err)
	}
	i.logger.Info("lexical index rebuilt", zap.Int("chunks", len(chunks)))
	return nil
}

// chunkIDsForFile finds the IDs of every document indexed for relPath via a
// term query against the keyword-analyzed source_path field.
func (i *Index) chunkIDsForFile(relPath string) ([]string, error) {
	q := bleve.NewTermQuery(relPath)
	q.SetField("source_path")

	var ids []string
	for from := 0; ; {
		req := bleve.NewSearchRequest(q)
		req.Size = 500
		req.From = from
		res, err := i.idx.Search(req)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate documents for %s: %w", relPath, err)
		}
		for _, h := range res.Hits {
			ids = append(ids, h.ID)
		}
		from += len(res.Hits)
		if len(res.Hits) == 0 || uint64(from) >= res.Total {
			break
		}
	}
	return ids, nil
}

// DocCount returns the number of documents in the index.
func (i *Index) DocCount() (uint64, error) {
	return i.idx.DocCount()
}

// Close closes the underlying bleve index.
func (i *Index) Close() error {
	return i.idx.Close()
}
