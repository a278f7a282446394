package embedding

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Cache is a durable embedding cache backed by SQLite, keyed by provider,
// model, and the content hash of the chunk text. It survives reindexes so
// unchanged text never hits the provider twice. All failures are non-fatal:
// lookups degrade to misses, stores are dropped with a log line.
type Cache struct {
	db     *sql.DB
	logger *zap.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheLogger attaches a logger.
func WithCacheLogger(logger *zap.Logger) CacheOption {
	return func(c *Cache) { c.logger = logger }
}

// OpenCache opens or creates the cache database at dbPath. Parent directories
// are created if missing.
func OpenCache(dbPath string, opts ...CacheOption) (*Cache, error) {
	c := &Cache{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := initCacheSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}
	c.db = db
	return c, nil
}

func initCacheSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (provider, model, content_hash)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Get returns the cached vector for the key, or (nil, false) on a miss.
// Database errors are logged and reported as misses.
func (c *Cache) Get(provider, model, contentHash string) ([]float32, bool) {
	var blob []byte
	var dimensions int
	err := c.db.QueryRow(
		"SELECT dimensions, vector FROM embeddings WHERE provider = ? AND model = ? AND content_hash = ?",
		provider, model, contentHash,
	).Scan(&dimensions, &blob)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Warn("embedding cache lookup failed", zap.Error(err))
		}
		return nil, false
	}
	vec := decodeVector(blob)
	if len(vec) != dimensions {
		c.logger.Warn("embedding cache entry has inconsistent dimensions",
			zap.Int("stored", dimensions), zap.Int("decoded", len(vec)))
		return nil, false
	}
	return vec, true
}

// Put stores a vector under the key, replacing any prior entry. Failures are
// logged and dropped.
func (c *Cache) Put(provider, model, contentHash string, vector []float32) {
	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO embeddings (provider, model, content_hash, dimensions, vector) VALUES (?, ?, ?, ?, ?)",
		provider, model, contentHash, len(vector), encodeVector(vector),
	)
	if err != nil {
		c.logger.Warn("embedding cache store failed", zap.Error(err))
	}
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// encodeVector packs float32 values as little-endian bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks little-endian float32 bytes; trailing partial values
// are dropped.
func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}
