// Package indexer drives the ingest pipeline: discovery, parsing, chunking,
// embedding, and writes into the vector store and lexical index.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/mdvdb/internal/cluster"
	"github.com/hyperjump/mdvdb/internal/config"
	"github.com/hyperjump/mdvdb/internal/discover"
	"github.com/hyperjump/mdvdb/internal/embedding"
	"github.com/hyperjump/mdvdb/internal/keyword"
	"github.com/hyperjump/mdvdb/internal/links"
	"github.com/hyperjump/mdvdb/internal/markdown"
	"github.com/hyperjump/mdvdb/internal/models"
	"github.com/hyperjump/mdvdb/internal/schema"
	"github.com/hyperjump/mdvdb/internal/vector"
	"github.com/hyperjump/mdvdb/pkg/utils"
)

// Pipeline runs full and single-file ingests against one open index pair.
type Pipeline struct {
	root      string
	cfg       *config.Config
	disc      *discover.Discoverer
	parser    *markdown.Parser
	chunker   *Chunker
	batcher   *embedding.Batcher
	store     *vector.Store
	index     *keyword.Index
	clusterer *cluster.Clusterer
	logger    *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger used by the pipeline.
func WithLogger(logger *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline wires an ingest pipeline over the given indexes. root is the
// project root all source paths are relative to.
func NewPipeline(root string, cfg *config.Config, store *vector.Store, index *keyword.Index, batcher *embedding.Batcher, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		root:    root,
		cfg:     cfg,
		store:   store,
		index:   index,
		batcher: batcher,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.disc = discover.New(root, cfg.SourceDirs, cfg.Ignore, discover.WithLogger(p.logger))
	p.parser = markdown.NewParser(markdown.WithLogger(p.logger))
	p.chunker = NewChunker(cfg.Chunking.MaxTokens, cfg.Chunking.OverlapTokens,
		NewTokenizer(WithTokenizerLogger(p.logger)))
	if cfg.Clustering.ClusteringEnabled() {
		p.clusterer = cluster.New(cfg.Clustering.RebalanceThreshold, cluster.WithLogger(p.logger))
	}
	return p
}

// Discoverer exposes the pipeline's file discovery for watch-mode filtering.
func (p *Pipeline) Discoverer() *discover.Discoverer {
	return p.disc
}

// IngestAll indexes every discovered markdown file, removes records for files
// that no longer exist, and refreshes the derived schema, clusters, and link
// graph. progress may be nil. On context cancellation the work upserted so
// far is persisted and the result is returned with Cancelled set.
func (p *Pipeline) IngestAll(ctx context.Context, progress models.ProgressFunc) (*models.IngestResult, error) {
	res := &models.IngestResult{RunID: uuid.NewString()}
	emit := func(ev models.ProgressEvent) {
		if progress != nil {
			ev.RunID = res.RunID
			progress(ev)
		}
	}

	if err := p.repairLexicalIndex(); err != nil {
		return nil, err
	}

	emit(models.ProgressEvent{Phase: models.PhaseDiscovering})
	paths, err := p.disc.Discover(ctx)
	if err != nil {
		if ctx.Err() != nil {
			res.Cancelled = true
			return res, nil
		}
		return nil, fmt.Errorf("discovery failed: %w", err)
	}

	batch := p.index.NewBatch()
	cancelled := func() (*models.IngestResult, error) {
		res.Cancelled = true
		return res, p.persist(emit, batch)
	}

	existing := p.store.FileHashes()
	var (
		changed   []*models.MarkdownFile
		allChunks []*models.Chunk
		current   = make(map[string]string, len(paths))
		fileLinks = make(map[string][]models.RawLink, len(paths))
		discovered = make(map[string]struct{}, len(paths))
	)
	for i, relPath := range paths {
		if ctx.Err() != nil {
			return cancelled()
		}
		file, err := p.parser.ParseFile(p.root, relPath)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", relPath, err))
			p.logger.Warn("skipping unreadable file",
				zap.String("path", relPath), zap.Error(err))
			continue
		}
		discovered[relPath] = struct{}{}
		current[relPath] = file.ContentHash
		fileLinks[relPath] = file.Links

		if existing[relPath] == file.ContentHash {
			res.FilesSkipped++
			emit(models.ProgressEvent{Phase: models.PhaseSkipped,
				Current: i + 1, Total: len(paths), Path: relPath})
			continue
		}
		emit(models.ProgressEvent{Phase: models.PhaseParsing,
			Current: i + 1, Total: len(paths), Path: relPath})
		changed = append(changed, file)
		allChunks = append(allChunks, p.chunker.Chunk(file)...)
	}

	if ctx.Err() != nil {
		return cancelled()
	}
	embedded, err := p.batcher.EmbedChunks(ctx, allChunks, existing, current,
		func(batchNum, totalBatches, chunksDone, chunksTotal int) {
			emit(models.ProgressEvent{Phase: models.PhaseEmbedding,
				Batch: batchNum, TotalBatches: totalBatches,
				ChunksDone: chunksDone, ChunksTotal: chunksTotal})
		})
	if err != nil {
		if ctx.Err() != nil {
			return cancelled()
		}
		return nil, err
	}
	res.APICalls = embedded.APICalls

	for _, file := range changed {
		if ctx.Err() != nil {
			return cancelled()
		}
		chunks := chunksForFile(allChunks, file.RelPath)
		if err := p.store.Upsert(file, chunks, embedded.Vectors); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", file.RelPath, err))
			continue
		}
		if err := batch.UpsertFile(file.RelPath, chunks); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", file.RelPath, err))
			continue
		}
		res.FilesIndexed++
		res.ChunksWritten += len(chunks)
	}

	for _, relPath := range p.store.FilePaths() {
		if _, ok := discovered[relPath]; ok {
			continue
		}
		p.store.RemoveFile(relPath)
		if err := batch.RemoveFile(relPath); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", relPath, err))
		}
		res.FilesRemoved++
	}
	if res.FilesRemoved > 0 {
		emit(models.ProgressEvent{Phase: models.PhaseCleaning, Removed: res.FilesRemoved})
	}

	p.refreshSchema()
	p.store.SetLinks(links.Build(fileLinks))

	if ctx.Err() != nil {
		return cancelled()
	}
	if p.clusterer != nil {
		emit(models.ProgressEvent{Phase: models.PhaseClustering})
		vectors, texts := p.documentVectors()
		state, err := p.clusterer.ClusterAll(vectors, texts)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("clustering: %v", err))
		} else {
			p.store.SetClusters(state)
		}
	}

	if err := p.persist(emit, batch); err != nil {
		return nil, err
	}
	p.logger.Info("ingest complete",
		zap.String("run_id", res.RunID),
		zap.Int("indexed", res.FilesIndexed),
		zap.Int("skipped", res.FilesSkipped),
		zap.Int("removed", res.FilesRemoved),
		zap.Int("chunks", res.ChunksWritten))
	return res, nil
}

// IngestFile indexes one file incrementally: hash-skip, embed, upsert, and
// update the derived schema, cluster assignment, and link graph in place.
func (p *Pipeline) IngestFile(ctx context.Context, relPath string) (*models.IngestResult, error) {
	res := &models.IngestResult{RunID: uuid.NewString()}

	file, err := p.parser.ParseFile(p.root, relPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", relPath, err)
	}
	if existing, ok := p.store.FileHashes()[relPath]; ok && existing == file.ContentHash {
		res.FilesSkipped = 1
		return res, nil
	}

	chunks := p.chunker.Chunk(file)
	embedded, err := p.batcher.EmbedChunks(ctx, chunks,
		map[string]string{}, map[string]string{relPath: file.ContentHash}, nil)
	if err != nil {
		return nil, err
	}
	res.APICalls = embedded.APICalls

	if err := p.store.Upsert(file, chunks, embedded.Vectors); err != nil {
		return nil, err
	}
	batch := p.index.NewBatch()
	if err := batch.UpsertFile(relPath, chunks); err != nil {
		return nil, err
	}
	if err := p.index.Commit(batch); err != nil {
		return nil, err
	}
	res.FilesIndexed = 1
	res.ChunksWritten = len(chunks)

	graph := p.store.Links()
	if graph == nil {
		graph = &models.LinkGraph{}
	}
	links.UpdateFileLinks(graph, relPath, file.Links)
	p.store.SetLinks(graph)
	p.refreshSchema()
	p.assignCluster(relPath)

	if err := p.store.Save(); err != nil {
		return nil, fmt.Errorf("failed to save index: %w", err)
	}
	p.logger.Debug("file ingested",
		zap.String("path", relPath), zap.Int("chunks", len(chunks)))
	return res, nil
}

// RemoveFile drops one file from both indexes and the derived metadata.
func (p *Pipeline) RemoveFile(relPath string) error {
	p.store.RemoveFile(relPath)
	if err := p.index.RemoveFile(relPath); err != nil {
		return fmt.Errorf("failed to remove %s from lexical index: %w", relPath, err)
	}

	graph := p.store.Links()
	links.RemoveFile(graph, relPath)
	p.store.SetLinks(graph)
	p.refreshSchema()
	if state := p.store.Clusters(); state != nil {
		removeClusterMember(state, relPath)
		p.store.SetClusters(state)
	}

	if err := p.store.Save(); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	p.logger.Debug("file removed", zap.String("path", relPath))
	return nil
}

// persist flushes the vector store first and the lexical batch second, so a
// crash between the two leaves the repairable state: chunks present, lexical
// index behind.
func (p *Pipeline) persist(emit func(models.ProgressEvent), batch *keyword.Batch) error {
	emit(models.ProgressEvent{Phase: models.PhaseSaving})
	if err := p.store.Save(); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	if err := p.index.Commit(batch); err != nil {
		return fmt.Errorf("failed to commit lexical index: %w", err)
	}
	emit(models.ProgressEvent{Phase: models.PhaseDone})
	return nil
}

// repairLexicalIndex rebuilds the bleve index from stored chunks when it is
// empty while the vector store is not, which happens if the index directory
// was deleted or a previous run crashed between the two writes.
func (p *Pipeline) repairLexicalIndex() error {
	if p.store.Len() == 0 {
		return nil
	}
	n, err := p.index.DocCount()
	if err != nil {
		return fmt.Errorf("failed to read lexical doc count: %w", err)
	}
	if n > 0 {
		return nil
	}
	p.logger.Warn("lexical index empty, rebuilding from stored chunks",
		zap.Int("chunks", p.store.Len()))
	return p.index.RebuildFrom(p.store.Chunks())
}

// refreshSchema re-infers the frontmatter schema from every stored file and
// merges the project overlay on top.
func (p *Pipeline) refreshSchema() {
	var frontmatters []map[string]interface{}
	for _, relPath := range p.store.FilePaths() {
		file, ok := p.store.File(relPath)
		if !ok || file.FrontmatterJSON == "" {
			continue
		}
		var fm map[string]interface{}
		if err := json.Unmarshal([]byte(file.FrontmatterJSON), &fm); err != nil {
			continue
		}
		frontmatters = append(frontmatters, fm)
	}
	inferred := schema.Infer(frontmatters)
	overlay, err := schema.LoadOverlay(p.root)
	if err != nil {
		p.logger.Warn("schema overlay unreadable", zap.Error(err))
	}
	p.store.SetSchema(schema.Merge(inferred, overlay))
}

// documentVectors builds per-file mean embeddings and concatenated chunk
// texts for clustering.
func (p *Pipeline) documentVectors() (map[string][]float32, map[string]string) {
	vectors := make(map[string][]float32)
	texts := make(map[string]string)
	for _, relPath := range p.store.FilePaths() {
		file, ok := p.store.File(relPath)
		if !ok {
			continue
		}
		var (
			chunkVecs [][]float32
			parts     []string
		)
		for _, id := range file.ChunkIDs {
			if vec, ok := p.store.Vector(id); ok {
				chunkVecs = append(chunkVecs, vec)
			}
			if chunk, ok := p.store.Chunk(id); ok {
				parts = append(parts, chunk.Content)
			}
		}
		if len(chunkVecs) == 0 {
			continue
		}
		vectors[relPath] = utils.MeanVector(chunkVecs)
		texts[relPath] = strings.Join(parts, "\n")
	}
	return vectors, texts
}

// assignCluster places a freshly ingested file into the nearest existing
// cluster and re-clusters from scratch once enough incremental assignments
// have accumulated.
func (p *Pipeline) assignCluster(relPath string) {
	if p.clusterer == nil {
		return
	}
	vectors, texts := p.documentVectors()
	vec, ok := vectors[relPath]
	if !ok {
		return
	}
	state := p.store.Clusters()
	if state == nil || len(state.Clusters) == 0 {
		fresh, err := p.clusterer.ClusterAll(vectors, texts)
		if err != nil {
			p.logger.Warn("clustering failed", zap.Error(err))
			return
		}
		p.store.SetClusters(fresh)
		return
	}
	removeClusterMember(state, relPath)
	if _, err := p.clusterer.AssignToNearest(state, relPath, vec); err != nil {
		p.logger.Warn("cluster assignment failed", zap.Error(err))
		return
	}
	if _, err := p.clusterer.MaybeRebalance(state, vectors, texts); err != nil {
		p.logger.Warn("cluster rebalance failed", zap.Error(err))
	}
	p.store.SetClusters(state)
}

// removeClusterMember drops a path from every cluster's member list.
func removeClusterMember(state *models.ClusterState, relPath string) {
	for i := range state.Clusters {
		members := state.Clusters[i].Members
		for j, m := range members {
			if m == relPath {
				state.Clusters[i].Members = append(members[:j:j], members[j+1:]...)
				break
			}
		}
	}
}

// chunksForFile filters the run's chunk list down to one source file,
// preserving chunk order.
func chunksForFile(chunks []*models.Chunk, relPath string) []*models.Chunk {
	var out []*models.Chunk
	for _, c := range chunks {
		if c.SourcePath == relPath {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}
