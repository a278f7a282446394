package vector

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/blevesearch/mmap-go"
	"github.com/coder/hnsw"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/mdvdb/internal/models"
	"github.com/hyperjump/mdvdb/pkg/utils"
)

// HNSW construction parameters. Fixed per index file; changing them only
// affects newly built graphs.
const (
	graphM        = 16
	graphEfSearch = 64
	graphMl       = 0.25
)

// Match is a single nearest-neighbor hit.
type Match struct {
	ChunkID string
	Score   float64 // cosine similarity, higher is better
}

// Store owns one index file: the archived metadata plus the in-memory HNSW
// graph. A single Store serializes writers internally; readers proceed
// concurrently.
type Store struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	meta    *models.IndexMetadata
	graph   *hnsw.Graph[uint64]
	idToKey map[string]uint64
	keyToID map[uint64]string
	nextKey uint64
	dirty   bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger used by the store.
func WithStoreLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.M = graphM
	g.Ml = graphMl
	g.EfSearch = graphEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// New creates an empty in-memory store for path. Nothing touches disk until
// the first Save.
func New(path string, embedding models.EmbeddingConfig, opts ...StoreOption) *Store {
	s := &Store{
		path:    path,
		logger:  zap.NewNop(),
		meta:    models.NewIndexMetadata(embedding),
		graph:   newGraph(),
		idToKey: make(map[string]uint64),
		keyToID: make(map[uint64]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads an existing index file. If the stored embedding configuration
// differs from embedding, the loaded store is returned alongside
// ErrEmbeddingConfigMismatch so the caller can inspect it or rebuild.
func Open(path string, embedding models.EmbeddingConfig, opts ...StoreOption) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, path)
		}
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat index file: %w", err)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap index file: %w", err)
	}
	defer data.Unmap()

	hdr, err := decodeHeader(data, uint64(info.Size()))
	if err != nil {
		return nil, err
	}

	meta := &models.IndexMetadata{}
	if err := json.Unmarshal(data[hdr.metaOffset:hdr.metaOffset+hdr.metaSize], meta); err != nil {
		return nil, fmt.Errorf("%w: metadata decode: %v", ErrIndexCorrupted, err)
	}
	if meta.Chunks == nil {
		meta.Chunks = make(map[string]*models.StoredChunk)
	}
	if meta.Files == nil {
		meta.Files = make(map[string]*models.StoredFile)
	}
	if meta.FileMtime == nil {
		meta.FileMtime = make(map[string]int64)
	}

	graph := newGraph()
	if hdr.hnswSize > 0 {
		r := bytes.NewReader(data[hdr.hnswOffset : hdr.hnswOffset+hdr.hnswSize])
		if err := graph.Import(r); err != nil {
			return nil, fmt.Errorf("%w: graph decode: %v", ErrIndexCorrupted, err)
		}
	}
	if graph.Len() != len(meta.Chunks) {
		return nil, fmt.Errorf("%w: graph has %d nodes, metadata has %d chunks",
			ErrIndexCorrupted, graph.Len(), len(meta.Chunks))
	}

	s := &Store{
		path:    path,
		logger:  zap.NewNop(),
		meta:    meta,
		graph:   graph,
		idToKey: make(map[string]uint64, len(meta.Chunks)),
		keyToID: make(map[uint64]string, len(meta.Chunks)),
	}
	for _, opt := range opts {
		opt(s)
	}

	// The graph is always saved with keys 0..N-1 assigned in lexicographic
	// chunk-ID order, so the mapping can be reconstructed from the metadata
	// alone.
	for i, id := range sortedChunkIDs(meta.Chunks) {
		key := uint64(i)
		s.idToKey[id] = key
		s.keyToID[key] = id
	}
	s.nextKey = uint64(len(meta.Chunks))

	if !meta.Embedding.Equal(embedding) {
		return s, fmt.Errorf("%w: index has %s/%s/%d, requested %s/%s/%d",
			ErrEmbeddingConfigMismatch,
			meta.Embedding.Provider, meta.Embedding.Model, meta.Embedding.Dimensions,
			embedding.Provider, embedding.Model, embedding.Dimensions)
	}

	s.logger.Debug("index opened",
		zap.String("path", path),
		zap.Int("chunks", len(meta.Chunks)),
		zap.Int("files", len(meta.Files)))
	return s, nil
}

// OpenOrCreate opens path, falling back to a fresh store when the file does
// not exist yet. An embedding configuration mismatch is still an error.
func OpenOrCreate(path string, embedding models.EmbeddingConfig, opts ...StoreOption) (*Store, error) {
	s, err := Open(path, embedding, opts...)
	if err != nil {
		if errors.Is(err, ErrIndexNotFound) {
			return New(path, embedding, opts...), nil
		}
		return nil, err
	}
	return s, nil
}

// Save writes the index to disk atomically: serialize to a temporary
// sibling, fsync, rename over the target.
//
// Before serializing, the graph is rebuilt with keys 0..N-1 assigned in
// lexicographic chunk-ID order. Interim inserts and deletes leave key holes;
// compaction keeps the on-disk keyspace dense so Open can reconstruct the
// ID mapping without storing it.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := sortedChunkIDs(s.meta.Chunks)
	compact := newGraph()
	idToKey := make(map[string]uint64, len(ids))
	keyToID := make(map[uint64]string, len(ids))
	for i, id := range ids {
		oldKey, ok := s.idToKey[id]
		if !ok {
			return fmt.Errorf("chunk %s has no graph key", id)
		}
		vec, ok := s.graph.Lookup(oldKey)
		if !ok {
			return fmt.Errorf("chunk %s missing from graph", id)
		}
		key := uint64(i)
		compact.Add(hnsw.MakeNode(key, vec))
		idToKey[id] = key
		keyToID[key] = id
	}

	s.meta.LastUpdated = time.Now().Unix()

	metaBuf, err := json.Marshal(s.meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	var hnswBuf bytes.Buffer
	if err := compact.Export(&hnswBuf); err != nil {
		return fmt.Errorf("failed to serialize graph: %w", err)
	}

	hdr := header{
		metaOffset: headerSize,
		metaSize:   uint64(len(metaBuf)),
		hnswOffset: headerSize + uint64(len(metaBuf)),
		hnswSize:   uint64(hnswBuf.Len()),
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	tmpPath := filepath.Join(dir, ".tmp-"+uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temporary index file: %w", err)
	}
	writeErr := func() error {
		if _, err := f.Write(hdr.encode()); err != nil {
			return err
		}
		if _, err := f.Write(metaBuf); err != nil {
			return err
		}
		if _, err := f.Write(hnswBuf.Bytes()); err != nil {
			return err
		}
		return f.Sync()
	}()
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write index file: %w", writeErr)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace index file: %w", err)
	}

	s.graph = compact
	s.idToKey = idToKey
	s.keyToID = keyToID
	s.nextKey = uint64(len(ids))
	s.dirty = false

	s.logger.Debug("index saved",
		zap.String("path", s.path),
		zap.Int("chunks", len(ids)),
		zap.Uint64("meta_bytes", hdr.metaSize),
		zap.Uint64("graph_bytes", hdr.hnswSize))
	return nil
}

// Upsert replaces the indexed state of one file: its chunks, their vectors,
// and the per-file record. Chunks from a previous version of the file that
// no longer exist are removed. Vectors must already be computed; no network
// work happens under the write lock.
func (s *Store) Upsert(file *models.MarkdownFile, chunks []*models.Chunk, vectors map[string][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newIDs := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		newIDs[c.ID] = true
	}

	// Drop chunks the re-chunked file no longer produces.
	if prev, ok := s.meta.Files[file.RelPath]; ok {
		for _, id := range prev.ChunkIDs {
			if !newIDs[id] {
				s.removeChunkLocked(id)
			}
		}
	}

	chunkIDs := make([]string, 0, len(chunks))
	for _, c := range chunks {
		vec, ok := vectors[c.ID]
		if !ok {
			return fmt.Errorf("no vector for chunk %s", c.ID)
		}
		if key, ok := s.idToKey[c.ID]; ok {
			s.graph.Delete(key)
			delete(s.keyToID, key)
			delete(s.idToKey, c.ID)
		}
		key := s.nextKey
		s.nextKey++
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idToKey[c.ID] = key
		s.keyToID[key] = c.ID
		s.meta.Chunks[c.ID] = c.Stored()
		chunkIDs = append(chunkIDs, c.ID)
	}

	fmJSON := ""
	if len(file.Frontmatter) > 0 {
		raw, err := json.Marshal(file.Frontmatter)
		if err != nil {
			return fmt.Errorf("failed to marshal frontmatter for %s: %w", file.RelPath, err)
		}
		fmJSON = string(raw)
	}
	s.meta.Files[file.RelPath] = &models.StoredFile{
		RelPath:         file.RelPath,
		ContentHash:     file.ContentHash,
		FrontmatterJSON: fmJSON,
		FileSize:        file.FileSize,
		ChunkIDs:        chunkIDs,
		IndexedAt:       time.Now().Unix(),
	}
	s.meta.FileMtime[file.RelPath] = file.ModifiedAt
	s.dirty = true
	return nil
}

// RemoveFile deletes a file and every chunk it owns from the index.
// Removing an unknown file is a no-op.
func (s *Store) RemoveFile(relPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.meta.Files[relPath]
	if !ok {
		return
	}
	for _, id := range prev.ChunkIDs {
		s.removeChunkLocked(id)
	}
	delete(s.meta.Files, relPath)
	delete(s.meta.FileMtime, relPath)
	s.dirty = true
}

func (s *Store) removeChunkLocked(id string) {
	if key, ok := s.idToKey[id]; ok {
		s.graph.Delete(key)
		delete(s.keyToID, key)
		delete(s.idToKey, id)
	}
	delete(s.meta.Chunks, id)
}

// Search returns the k nearest chunks to vec by cosine similarity.
func (s *Store) Search(vec []float32, k int) []Match {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph.Len() == 0 || k <= 0 {
		return nil
	}
	nodes := s.graph.Search(vec, k)
	matches := make([]Match, 0, len(nodes))
	for _, n := range nodes {
		id, ok := s.keyToID[n.Key]
		if !ok {
			continue
		}
		matches = append(matches, Match{
			ChunkID: id,
			Score:   utils.CosineSimilarity(vec, n.Value),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// Chunk returns the archived chunk for id.
func (s *Store) Chunk(id string) (*models.StoredChunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.meta.Chunks[id]
	return c, ok
}

// File returns the archived per-file record for relPath.
func (s *Store) File(relPath string) (*models.StoredFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.meta.Files[relPath]
	return f, ok
}

// Chunks returns every archived chunk, in lexicographic ID order.
func (s *Store) Chunks() []*models.StoredChunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.StoredChunk, 0, len(s.meta.Chunks))
	for _, id := range sortedChunkIDs(s.meta.Chunks) {
		out = append(out, s.meta.Chunks[id])
	}
	return out
}

// FileHashes returns the content hash of every indexed file, keyed by
// relative path. Used by the ingest pipeline to skip unchanged files.
func (s *Store) FileHashes() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.meta.Files))
	for path, f := range s.meta.Files {
		out[path] = f.ContentHash
	}
	return out
}

// FileMtime returns the recorded modification time for a file in seconds
// since epoch, or zero when unknown.
func (s *Store) FileMtime(relPath string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.FileMtime[relPath]
}

// FilePaths returns every indexed file path, sorted.
func (s *Store) FilePaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.meta.Files))
	for path := range s.meta.Files {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Vector returns the embedding stored for a chunk ID.
func (s *Store) Vector(id string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.idToKey[id]
	if !ok {
		return nil, false
	}
	return s.graph.Lookup(key)
}

// Len returns the number of indexed chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.meta.Chunks)
}

// Dirty reports whether there are unsaved changes.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Path returns the index file path.
func (s *Store) Path() string {
	return s.path
}

// Embedding returns the configuration the index was built with.
func (s *Store) Embedding() models.EmbeddingConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.Embedding
}

// Status summarizes the index. IndexSize reflects the last saved file and
// is zero for an index that has never been saved.
func (s *Store) Status() models.IndexStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var size int64
	if info, err := os.Stat(s.path); err == nil {
		size = info.Size()
	}
	clusterCount := 0
	if s.meta.Clusters != nil {
		clusterCount = len(s.meta.Clusters.Clusters)
	}
	return models.IndexStatus{
		DocumentCount: len(s.meta.Files),
		ChunkCount:    len(s.meta.Chunks),
		IndexSize:     size,
		Embedding:     s.meta.Embedding,
		LastUpdated:   s.meta.LastUpdated,
		ClusterCount:  clusterCount,
	}
}

// Schema returns the stored frontmatter schema slot, if any.
func (s *Store) Schema() *models.Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.Schema
}

// SetSchema replaces the schema slot.
func (s *Store) SetSchema(schema *models.Schema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.Schema = schema
	s.dirty = true
}

// Clusters returns the stored cluster slot, if any.
func (s *Store) Clusters() *models.ClusterState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.Clusters
}

// SetClusters replaces the cluster slot.
func (s *Store) SetClusters(clusters *models.ClusterState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.Clusters = clusters
	s.dirty = true
}

// Links returns the stored link graph slot, if any.
func (s *Store) Links() *models.LinkGraph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.Links
}

// SetLinks replaces the link graph slot.
func (s *Store) SetLinks(links *models.LinkGraph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.Links = links
	s.dirty = true
}

func sortedChunkIDs(chunks map[string]*models.StoredChunk) []string {
	ids := make([]string, 0, len(chunks))
	for id := range chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
