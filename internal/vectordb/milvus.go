package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MaxQueryWindow is the largest offset+limit a single Milvus query accepts.
const MaxQueryWindow = 16384

// Common errors for Milvus operations
var (
	ErrConnectionFailed = errors.New("failed to connect to Milvus")
	ErrQueryFailed      = errors.New("failed to query Milvus")
	ErrSearchFailed     = errors.New("failed to search vectors")
)

// MilvusConfig holds configuration for the Milvus connection and the field
// layout of the collections it browses
type MilvusConfig struct {
	Address string // Milvus server address (e.g., "localhost:19530")
	Prefix  string // Only collections whose names start with Prefix are listed

	IDField       string // Primary key field (default: "id")
	TextField     string // Field holding the chunk text (default: "data")
	TextKey       string // Key inside TextField when it is a JSON field (default: "text")
	MetadataField string // JSON field holding chunk metadata (default: "metadata")
	VectorField   string // Float vector field (default: "vector")
	MetricType    string // Similarity metric (default: "COSINE")
}

// DefaultMilvusConfig returns the Open WebUI layout, with the address and
// prefix taken from environment variables
func DefaultMilvusConfig() MilvusConfig {
	address := os.Getenv("MILVUS_ADDRESS")
	if address == "" {
		address = "localhost:19530"
	}

	prefix, ok := os.LookupEnv("VECVIEW_MILVUS_PREFIX")
	if !ok {
		prefix = "open_webui_"
	}

	return MilvusConfig{
		Address:       address,
		Prefix:        prefix,
		IDField:       "id",
		TextField:     "data",
		TextKey:       "text",
		MetadataField: "metadata",
		VectorField:   "vector",
		MetricType:    "COSINE",
	}
}

// MilvusClient browses collections on a Milvus server
type MilvusClient struct {
	client client.Client
	config MilvusConfig

	mu     sync.Mutex
	loaded map[string]bool
}

// NewMilvusClient connects to Milvus
func NewMilvusClient(ctx context.Context, config MilvusConfig) (*MilvusClient, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("%w: milvus address is empty", ErrInvalidConfig)
	}
	defaults := DefaultMilvusConfig()
	if config.IDField == "" {
		config.IDField = defaults.IDField
	}
	if config.TextField == "" {
		config.TextField = defaults.TextField
	}
	if config.MetadataField == "" {
		config.MetadataField = defaults.MetadataField
	}
	if config.VectorField == "" {
		config.VectorField = defaults.VectorField
	}
	if config.MetricType == "" {
		config.MetricType = defaults.MetricType
	}

	c, err := client.NewGrpcClient(ctx, config.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return &MilvusClient{
		client: c,
		config: config,
		loaded: make(map[string]bool),
	}, nil
}

// ListCollections returns the collections matching the configured prefix
func (m *MilvusClient) ListCollections(ctx context.Context) ([]Collection, error) {
	colls, err := m.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	names := make([]string, 0, len(colls))
	for _, coll := range colls {
		if strings.HasPrefix(coll.Name, m.config.Prefix) {
			names = append(names, coll.Name)
		}
	}
	sort.Strings(names)

	collections := make([]Collection, len(names))
	for i, name := range names {
		collections[i] = &milvusCollection{store: m, name: name}
	}
	return collections, nil
}

// GetCollection returns the named collection
func (m *MilvusClient) GetCollection(ctx context.Context, name string) (Collection, error) {
	has, err := m.client.HasCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return &milvusCollection{store: m, name: name}, nil
}

// DeleteCollection drops the collection
func (m *MilvusClient) DeleteCollection(ctx context.Context, name string) error {
	has, err := m.client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !has {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	if err := m.client.DropCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}

	m.mu.Lock()
	delete(m.loaded, name)
	m.mu.Unlock()
	return nil
}

// Close closes the connection to Milvus
func (m *MilvusClient) Close() error {
	return m.client.Close()
}

// ensureLoaded loads a collection into memory once; queries fail on
// released collections
func (m *MilvusClient) ensureLoaded(ctx context.Context, name string) error {
	m.mu.Lock()
	done := m.loaded[name]
	m.mu.Unlock()
	if done {
		return nil
	}

	if err := m.client.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("failed to load collection %s: %w", name, err)
	}

	m.mu.Lock()
	m.loaded[name] = true
	m.mu.Unlock()
	return nil
}

func (m *MilvusClient) outputFields(include Include) []string {
	fields := []string{m.config.IDField}
	if include.Has(IncludeDocuments) {
		fields = append(fields, m.config.TextField)
	}
	if include.Has(IncludeMetadatas) {
		fields = append(fields, m.config.MetadataField)
	}
	if include.Has(IncludeEmbeddings) {
		fields = append(fields, m.config.VectorField)
	}
	return fields
}

// decodeColumns converts column-oriented results into records
func (m *MilvusClient) decodeColumns(columns []entity.Column, rows int) ([]Record, error) {
	records := make([]Record, rows)

	for _, column := range columns {
		switch column.Name() {
		case m.config.IDField:
			for i := 0; i < rows && i < column.Len(); i++ {
				id, err := columnString(column, i)
				if err != nil {
					return nil, err
				}
				records[i].ID = id
			}
		case m.config.TextField:
			for i := 0; i < rows && i < column.Len(); i++ {
				text, err := m.columnText(column, i)
				if err != nil {
					return nil, err
				}
				records[i].Document = text
			}
		case m.config.MetadataField:
			col, ok := column.(*entity.ColumnJSONBytes)
			if !ok {
				return nil, fmt.Errorf("%w: field %s is not JSON", ErrQueryFailed, column.Name())
			}
			for i, raw := range col.Data() {
				if i >= rows {
					break
				}
				meta, err := DecodeMetadata(raw)
				if err != nil {
					return nil, err
				}
				records[i].Metadata = meta
			}
		case m.config.VectorField:
			col, ok := column.(*entity.ColumnFloatVector)
			if !ok {
				return nil, fmt.Errorf("%w: field %s is not a float vector", ErrQueryFailed, column.Name())
			}
			for i, vec := range col.Data() {
				if i >= rows {
					break
				}
				records[i].Embedding = vec
			}
		}
	}

	return records, nil
}

func (m *MilvusClient) columnText(column entity.Column, i int) (string, error) {
	if col, ok := column.(*entity.ColumnJSONBytes); ok {
		raw := col.Data()[i]
		if m.config.TextKey == "" {
			return string(raw), nil
		}
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return "", fmt.Errorf("failed to decode %s: %w", column.Name(), err)
		}
		text, _ := data[m.config.TextKey].(string)
		return text, nil
	}
	return columnString(column, i)
}

func columnString(column entity.Column, i int) (string, error) {
	switch col := column.(type) {
	case *entity.ColumnVarChar:
		return col.Data()[i], nil
	case *entity.ColumnInt64:
		return strconv.FormatInt(col.Data()[i], 10), nil
	default:
		return column.GetAsString(i)
	}
}

type milvusCollection struct {
	store *MilvusClient
	name  string
}

func (c *milvusCollection) Name() string {
	return c.name
}

// Count uses count(*) and falls back to collection statistics, which
// include rows not yet compacted away
func (c *milvusCollection) Count(ctx context.Context) (int, error) {
	if err := c.store.ensureLoaded(ctx, c.name); err != nil {
		return 0, err
	}

	rs, err := c.store.client.Query(ctx, c.name, nil, "", []string{"count(*)"})
	if err == nil {
		if col := rs.GetColumn("count(*)"); col != nil && col.Len() > 0 {
			if n, err := col.GetAsInt64(0); err == nil {
				return int(n), nil
			}
		}
	}

	stats, err := c.store.client.GetCollectionStatistics(ctx, c.name)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection statistics: %w", err)
	}
	n, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0, fmt.Errorf("invalid row_count %q: %w", stats["row_count"], err)
	}
	return n, nil
}

// Get reads the single leading record with a plain query. Every other read
// walks the collection in primary-key order with a query iterator, which is
// not bound by the server's offset+limit window.
func (c *milvusCollection) Get(ctx context.Context, opts GetOptions) ([]Record, error) {
	if err := c.store.ensureLoaded(ctx, c.name); err != nil {
		return nil, err
	}
	fields := c.store.outputFields(opts.Include)

	if opts.Limit == 1 && opts.Offset == 0 {
		rs, err := c.store.client.Query(ctx, c.name, nil, "", fields, client.WithLimit(1))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
		}
		return c.store.decodeColumns(rs, rs.Len())
	}

	batch := opts.Limit
	if batch <= 0 || batch > MaxQueryWindow {
		batch = MaxQueryWindow
	}
	it, err := c.store.client.QueryIterator(ctx,
		client.NewQueryIteratorOption(c.name).WithOutputFields(fields...).WithBatchSize(batch))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return c.store.collectPages(ctx, it.Next, opts.Offset, opts.Limit)
}

// collectPages drains next, skipping the first offset rows and stopping after
// limit rows (every remaining row when limit <= 0).
func (m *MilvusClient) collectPages(ctx context.Context, next func(context.Context) (client.ResultSet, error), offset, limit int) ([]Record, error) {
	records := []Record{}
	skip := offset
	for limit <= 0 || len(records) < limit {
		rs, err := next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
		}

		n := rs.Len()
		if skip >= n {
			skip -= n
			continue
		}
		page, err := m.decodeColumns(rs, n)
		if err != nil {
			return nil, err
		}
		page = page[skip:]
		skip = 0
		if limit > 0 {
			page = page[:min(len(page), limit-len(records))]
		}
		records = append(records, page...)
	}
	return records, nil
}

// Query performs top-K similarity search
func (c *milvusCollection) Query(ctx context.Context, embedding []float32, n int) ([]Match, error) {
	if n <= 0 {
		return []Match{}, nil
	}
	if err := c.store.ensureLoaded(ctx, c.name); err != nil {
		return nil, err
	}

	// Configure search parameters
	sp, err := entity.NewIndexHNSWSearchParam(64) // ef parameter for search
	if err != nil {
		return nil, fmt.Errorf("failed to create search params: %w", err)
	}

	vectors := []entity.Vector{entity.FloatVector(embedding)}
	outputFields := c.store.outputFields(IncludeDocuments | IncludeMetadatas)

	results, err := c.store.client.Search(
		ctx,
		c.name,
		nil, // partition names
		"",
		outputFields,
		vectors,
		c.store.config.VectorField,
		entity.MetricType(strings.ToUpper(c.store.config.MetricType)),
		n,
		sp,
	)
	if err != nil {
		if strings.Contains(err.Error(), "dimension") {
			return nil, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	if len(results) == 0 {
		return []Match{}, nil
	}

	res := results[0]
	records, err := c.store.decodeColumns(res.Fields, res.ResultCount)
	if err != nil {
		return nil, err
	}
	if res.IDs != nil {
		for i := 0; i < res.ResultCount && i < res.IDs.Len(); i++ {
			if id, err := columnString(res.IDs, i); err == nil {
				records[i].ID = id
			}
		}
	}

	matches := make([]Match, len(records))
	for i, r := range records {
		matches[i] = Match{Record: r}
		if i < len(res.Scores) {
			matches[i].Score = res.Scores[i]
		}
	}
	return matches, nil
}
