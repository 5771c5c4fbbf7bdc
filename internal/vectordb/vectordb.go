package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common errors for vector database operations
var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrUnsupportedBackend = errors.New("unsupported vector database backend")
	ErrInvalidConfig      = errors.New("invalid vector database configuration")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
)

// Backend names accepted by Open
const (
	BackendChromem  = "chromem"
	BackendMilvus   = "milvus"
	BackendPGVector = "pgvector"
)

// Include selects which parts of a record Get returns. IDs are always returned.
type Include uint8

const (
	IncludeDocuments Include = 1 << iota
	IncludeMetadatas
	IncludeEmbeddings

	IncludeAll = IncludeDocuments | IncludeMetadatas | IncludeEmbeddings
)

// Has reports whether every flag in other is set.
func (i Include) Has(other Include) bool {
	return i&other == other
}

// Record is one stored chunk of a collection.
type Record struct {
	ID        string         `json:"id"`
	Document  string         `json:"document,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
}

// Match is a Record returned by a similarity query.
type Match struct {
	Record
	Score float32 `json:"score"`
}

// GetOptions controls paging for Collection.Get.
// A Limit of zero or less returns every record from Offset on.
type GetOptions struct {
	Limit   int
	Offset  int
	Include Include
}

// Collection is a named group of records.
type Collection interface {
	Name() string

	// Count returns the number of records in the collection
	Count(ctx context.Context) (int, error)

	// Get returns records in a stable order so that offset paging visits
	// every record exactly once
	Get(ctx context.Context, opts GetOptions) ([]Record, error)

	// Query returns the n records nearest to embedding
	Query(ctx context.Context, embedding []float32, n int) ([]Match, error)
}

// Client is a connection to a vector database instance.
type Client interface {
	// ListCollections returns every collection sorted by name
	ListCollections(ctx context.Context) ([]Collection, error)

	GetCollection(ctx context.Context, name string) (Collection, error)

	// DeleteCollection drops the collection and all of its records
	DeleteCollection(ctx context.Context, name string) error

	Close() error
}

// Reloader is implemented by clients that cache persisted state and can
// re-read it from storage.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Config selects and configures a backend.
type Config struct {
	Backend  string
	Chromem  ChromemConfig
	Milvus   MilvusConfig
	PGVector PGVectorConfig
}

// Open connects to the backend named in cfg.
func Open(ctx context.Context, cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendChromem, "":
		return NewChromemClient(cfg.Chromem)
	case BackendMilvus:
		return NewMilvusClient(ctx, cfg.Milvus)
	case BackendPGVector:
		return NewPGVectorClient(ctx, cfg.PGVector)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
}
