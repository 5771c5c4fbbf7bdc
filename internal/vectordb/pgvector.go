package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGVectorConfig configures the PostgreSQL pgvector backend. Collections are
// the distinct collection_name values of a single chunk table laid out as
// (id, vector, collection_name, text, vmetadata).
type PGVectorConfig struct {
	DSN      string
	Table    string // default: document_chunk
	MaxConns int32
}

// PGVectorClient browses a pgvector chunk table.
type PGVectorClient struct {
	pool  *pgxpool.Pool
	table string // sanitized identifier
}

// NewPGVectorClient connects to PostgreSQL and verifies connectivity.
func NewPGVectorClient(ctx context.Context, cfg PGVectorConfig) (*PGVectorClient, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: pgvector DSN is empty", ErrInvalidConfig)
	}
	if cfg.Table == "" {
		cfg.Table = "document_chunk"
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &PGVectorClient{
		pool:  pool,
		table: pgx.Identifier(strings.Split(cfg.Table, ".")).Sanitize(),
	}, nil
}

// ListCollections returns the distinct collection names in the table.
func (p *PGVectorClient) ListCollections(ctx context.Context) ([]Collection, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT DISTINCT collection_name FROM `+p.table+` ORDER BY collection_name`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	collections := make([]Collection, len(names))
	for i, name := range names {
		collections[i] = &pgCollection{client: p, name: name}
	}
	return collections, nil
}

// GetCollection returns the named collection if it has at least one row.
func (p *PGVectorClient) GetCollection(ctx context.Context, name string) (Collection, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+p.table+` WHERE collection_name = $1)`, name).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking collection: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return &pgCollection{client: p, name: name}, nil
}

// DeleteCollection removes every row of the collection.
func (p *PGVectorClient) DeleteCollection(ctx context.Context, name string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM `+p.table+` WHERE collection_name = $1`, name)
	if err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return nil
}

// Close closes the connection pool.
func (p *PGVectorClient) Close() error {
	p.pool.Close()
	return nil
}

type pgCollection struct {
	client *PGVectorClient
	name   string
}

func (c *pgCollection) Name() string {
	return c.name
}

func (c *pgCollection) Count(ctx context.Context) (int, error) {
	var n int64
	err := c.client.pool.QueryRow(ctx,
		`SELECT count(*) FROM `+c.client.table+` WHERE collection_name = $1`, c.name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting collection %s: %w", c.name, err)
	}
	return int(n), nil
}

func (c *pgCollection) Get(ctx context.Context, opts GetOptions) ([]Record, error) {
	var limit *int64
	if opts.Limit > 0 {
		l := int64(opts.Limit)
		limit = &l
	}
	offset := int64(0)
	if opts.Offset > 0 {
		offset = int64(opts.Offset)
	}

	rows, err := c.client.pool.Query(ctx, `
		SELECT id, text, vmetadata, vector::text
		FROM `+c.client.table+`
		WHERE collection_name = $1
		ORDER BY id
		LIMIT $2 OFFSET $3
	`, c.name, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("reading collection %s: %w", c.name, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			id       string
			text     *string
			metaJSON []byte
			vecText  *string
		)
		if err := rows.Scan(&id, &text, &metaJSON, &vecText); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		r := Record{ID: id}
		if opts.Include.Has(IncludeDocuments) && text != nil {
			r.Document = *text
		}
		if opts.Include.Has(IncludeMetadatas) {
			meta, err := decodeVMetadata(metaJSON)
			if err != nil {
				return nil, err
			}
			r.Metadata = meta
		}
		if opts.Include.Has(IncludeEmbeddings) && vecText != nil {
			vec, err := ParseVector(*vecText)
			if err != nil {
				return nil, err
			}
			r.Embedding = vec
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return records, nil
}

func (c *pgCollection) Query(ctx context.Context, embedding []float32, n int) ([]Match, error) {
	if n <= 0 {
		return []Match{}, nil
	}

	vec := FormatVector(embedding)
	rows, err := c.client.pool.Query(ctx, `
		SELECT id, text, vmetadata, 1 - (vector <=> $2::vector) AS score
		FROM `+c.client.table+`
		WHERE collection_name = $1
		ORDER BY vector <=> $2::vector
		LIMIT $3
	`, c.name, vec, n)
	if err != nil {
		if strings.Contains(err.Error(), "different vector dimensions") {
			return nil, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
		}
		return nil, fmt.Errorf("searching collection %s: %w", c.name, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			id       string
			text     *string
			metaJSON []byte
			score    float64
		)
		if err := rows.Scan(&id, &text, &metaJSON, &score); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		meta, err := decodeVMetadata(metaJSON)
		if err != nil {
			return nil, err
		}
		m := Match{Record: Record{ID: id, Metadata: meta}, Score: float32(score)}
		if text != nil {
			m.Document = *text
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		if strings.Contains(err.Error(), "different vector dimensions") {
			return nil, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
		}
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return matches, nil
}

// decodeVMetadata also accepts metadata stored as a JSON-encoded string.
func decodeVMetadata(raw []byte) (map[string]any, error) {
	var quoted string
	if len(raw) > 0 && raw[0] == '"' && json.Unmarshal(raw, &quoted) == nil {
		raw = []byte(quoted)
	}
	return DecodeMetadata(raw)
}

// ParseVector parses the text form of a pgvector value, e.g. "[1,2.5,3]".
func ParseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return []float32{}, nil
	}

	parts := strings.Split(s, ",")
	vec := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("parsing vector component %d: %w", i, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

// FormatVector renders v in pgvector text form.
func FormatVector(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
