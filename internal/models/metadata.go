package models

// EmbeddingConfig identifies the provider setup an index was built with.
// It is immutable for the lifetime of an index; changing any field requires
// a full rebuild.
type EmbeddingConfig struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// Equal reports whether two embedding configurations are interchangeable.
func (c EmbeddingConfig) Equal(other EmbeddingConfig) bool {
	return c.Provider == other.Provider && c.Model == other.Model && c.Dimensions == other.Dimensions
}

// IndexMetadata is the root of the archived metadata region.
//
// Invariants: every chunk's SourcePath exists as a key in Files; every chunk
// ID listed in a StoredFile exists as a key in Chunks. Optional slots may be
// nil on indexes written by earlier versions.
type IndexMetadata struct {
	Chunks      map[string]*StoredChunk `json:"chunks"`
	Files       map[string]*StoredFile  `json:"files"`
	Embedding   EmbeddingConfig         `json:"embedding"`
	LastUpdated int64                   `json:"last_updated"`

	// Optional slots, populated by the ingest pipeline.
	Schema    *Schema          `json:"schema,omitempty"`
	Clusters  *ClusterState    `json:"clusters,omitempty"`
	Links     *LinkGraph       `json:"links,omitempty"`
	FileMtime map[string]int64 `json:"file_mtime,omitempty"`
}

// NewIndexMetadata returns empty metadata for a fresh index.
func NewIndexMetadata(embedding EmbeddingConfig) *IndexMetadata {
	return &IndexMetadata{
		Chunks:    make(map[string]*StoredChunk),
		Files:     make(map[string]*StoredFile),
		Embedding: embedding,
		FileMtime: make(map[string]int64),
	}
}

// IndexStatus is a summary of the index reported by the status operation.
type IndexStatus struct {
	DocumentCount int             `json:"document_count"`
	ChunkCount    int             `json:"chunk_count"`
	IndexSize     int64           `json:"index_size_bytes"`
	Embedding     EmbeddingConfig `json:"embedding"`
	LastUpdated   int64           `json:"last_updated"`
	ClusterCount  int             `json:"cluster_count"`
}

// FieldType classifies a frontmatter field across files.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeList    FieldType = "list"
	FieldTypeDate    FieldType = "date"
	FieldTypeMixed   FieldType = "mixed"
)

// SchemaField is one merged schema entry: inferred data plus any overlay
// annotations supplied by the user.
type SchemaField struct {
	Name            string    `json:"name"`
	Type            FieldType `json:"type"`
	Description     string    `json:"description,omitempty"`
	OccurrenceCount int       `json:"occurrence_count"`
	SampleValues    []string  `json:"sample_values,omitempty"`
	AllowedValues   []string  `json:"allowed_values,omitempty"`
	Required        bool      `json:"required"`
}

// Schema is the inferred (and possibly overlaid) frontmatter schema,
// fields sorted alphabetically by name.
type Schema struct {
	Fields      []SchemaField `json:"fields"`
	LastUpdated int64         `json:"last_updated"`
}

// ClusterInfo describes one document cluster.
type ClusterInfo struct {
	ID       int       `json:"id"`
	Label    string    `json:"label"`
	Centroid []float32 `json:"centroid"`
	Members  []string  `json:"members"` // file paths (document level)
	Keywords []string  `json:"keywords"`
}

// ClusterState is the cluster slot persisted in the index metadata.
type ClusterState struct {
	Clusters            []ClusterInfo `json:"clusters"`
	DocsSinceRebalance  int           `json:"docs_since_rebalance"`
	DocsAtLastRebalance int           `json:"docs_at_last_rebalance"`
}

// LinkEntry is a single resolved link between two files.
type LinkEntry struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	Text       string `json:"text"`
	Line       int    `json:"line"`
	IsWikilink bool   `json:"is_wikilink"`
}

// LinkGraph stores forward links only; backlinks are derived on demand.
type LinkGraph struct {
	Forward     map[string][]LinkEntry `json:"forward"`
	LastUpdated int64                  `json:"last_updated"`
}
