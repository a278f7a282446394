package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/mdvdb/internal/models"
)

// maxConcurrentBatches bounds in-flight provider calls.
const maxConcurrentBatches = 4

// BatchResult is the outcome of embedding a chunk set.
type BatchResult struct {
	// Vectors maps chunk ID to its embedding for every chunk that was
	// embedded (freshly or from the durable cache).
	Vectors map[string][]float32
	// Skipped lists chunk IDs whose source file content hash was unchanged.
	Skipped []string
	// APICalls counts provider round-trips actually made.
	APICalls int
}

// OnBatch reports embedding progress after each completed provider batch.
type OnBatch func(batch, totalBatches, chunksDone, chunksTotal int)

// Batcher drives batched embedding with per-file change skipping, durable
// cache consultation, and bounded concurrency.
type Batcher struct {
	provider  Provider
	model     string
	batchSize int
	cache     *Cache
	logger    *zap.Logger
}

// BatcherOption configures a Batcher.
type BatcherOption func(*Batcher)

// WithBatcherCache attaches a durable embedding cache.
func WithBatcherCache(cache *Cache) BatcherOption {
	return func(b *Batcher) { b.cache = cache }
}

// WithBatcherLogger attaches a logger.
func WithBatcherLogger(logger *zap.Logger) BatcherOption {
	return func(b *Batcher) { b.logger = logger }
}

// NewBatcher creates a Batcher for the given provider. model names the
// embedding model for cache keying.
func NewBatcher(provider Provider, model string, batchSize int, opts ...BatcherOption) *Batcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	b := &Batcher{
		provider:  provider,
		model:     model,
		batchSize: batchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EmbedChunks embeds the chunks whose source files changed. existingHashes
// and currentHashes map source paths to content hashes; a path present in
// both with equal values has all its chunks skipped. onBatch may be nil.
func (b *Batcher) EmbedChunks(ctx context.Context, chunks []*models.Chunk, existingHashes, currentHashes map[string]string, onBatch OnBatch) (*BatchResult, error) {
	result := &BatchResult{Vectors: make(map[string][]float32)}

	unchanged := make(map[string]bool)
	for path, current := range currentHashes {
		if existing, ok := existingHashes[path]; ok && existing == current {
			unchanged[path] = true
		}
	}

	var toEmbed []*models.Chunk
	for _, chunk := range chunks {
		if unchanged[chunk.SourcePath] {
			result.Skipped = append(result.Skipped, chunk.ID)
		} else {
			toEmbed = append(toEmbed, chunk)
		}
	}
	sort.Strings(result.Skipped)

	if len(toEmbed) == 0 {
		b.logger.Info("all chunks skipped, no changes",
			zap.Int("skipped", len(result.Skipped)))
		return result, nil
	}

	// Durable cache pass before any provider traffic.
	var remaining []*models.Chunk
	hashes := make(map[string]string, len(toEmbed))
	for _, chunk := range toEmbed {
		hash := textHash(chunk.Content)
		hashes[chunk.ID] = hash
		if b.cache != nil {
			if vec, ok := b.cache.Get(b.provider.Name(), b.model, hash); ok {
				result.Vectors[chunk.ID] = vec
				continue
			}
		}
		remaining = append(remaining, chunk)
	}
	cacheHits := len(toEmbed) - len(remaining)
	if cacheHits > 0 {
		b.logger.Debug("embedding cache hits", zap.Int("hits", cacheHits))
	}
	if len(remaining) == 0 {
		return result, nil
	}

	var batches [][]*models.Chunk
	for start := 0; start < len(remaining); start += b.batchSize {
		end := start + b.batchSize
		if end > len(remaining) {
			end = len(remaining)
		}
		batches = append(batches, remaining[start:end])
	}
	b.logger.Info("embedding chunks",
		zap.Int("chunks", len(remaining)),
		zap.Int("batches", len(batches)),
		zap.Int("batch_size", b.batchSize))

	type batchVectors struct {
		chunks  []*models.Chunk
		vectors [][]float32
	}
	done := make([]batchVectors, len(batches))

	var mu sync.Mutex
	completed := 0
	chunksDone := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, chunk := range batch {
				texts[j] = chunk.Content
			}
			vectors, err := b.provider.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed batch %d/%d: %w", i+1, len(batches), err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embed batch %d/%d: got %d vectors for %d chunks",
					i+1, len(batches), len(vectors), len(batch))
			}
			done[i] = batchVectors{chunks: batch, vectors: vectors}

			mu.Lock()
			completed++
			chunksDone += len(batch)
			batchNum, doneNow := completed, chunksDone
			mu.Unlock()
			b.logger.Info("batch complete",
				zap.Int("batch", batchNum), zap.Int("total", len(batches)))
			if onBatch != nil {
				onBatch(batchNum, len(batches), doneNow, len(remaining))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, bv := range done {
		for j, chunk := range bv.chunks {
			result.Vectors[chunk.ID] = bv.vectors[j]
			if b.cache != nil {
				b.cache.Put(b.provider.Name(), b.model, hashes[chunk.ID], bv.vectors[j])
			}
		}
	}
	result.APICalls = len(batches)
	return result, nil
}

// textHash is the cache key component derived from chunk text.
func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
