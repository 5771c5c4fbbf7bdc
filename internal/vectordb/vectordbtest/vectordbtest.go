// Package vectordbtest provides seeded databases and fault-injecting clients
// for tests of packages built on vectordb.
package vectordbtest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/require"

	"github.com/Yates-Labs/vecview/internal/vectordb"
)

// Chunk is a document to seed into a collection.
type Chunk struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// FileChunks builds n chunks of a file the way Open WebUI stores them:
// every chunk carries name, file_id, hash, source and start_index.
func FileChunks(filename string, n int) []Chunk {
	chunks := make([]Chunk, n)
	for i := range chunks {
		chunks[i] = Chunk{
			ID:      fmt.Sprintf("%s-%04d", filename, i),
			Content: fmt.Sprintf("%s part %d", filename, i),
			Metadata: map[string]string{
				"name":             filename,
				"file_id":          "file-" + filename,
				"hash":             "hash-" + filename,
				"source":           "/uploads/" + filename,
				"start_index":      fmt.Sprintf("%d", i*100),
				"embedding_config": `{"engine": "openai", "model": "text-embedding-3-small"}`,
			},
			Embedding: []float32{1, float32(i + 1), 0.5},
		}
	}
	return chunks
}

// NewChromem returns an in-memory chromem client holding the given collections.
func NewChromem(t testing.TB, collections map[string][]Chunk) *vectordb.ChromemClient {
	t.Helper()

	client, err := vectordb.NewChromemClient(vectordb.ChromemConfig{InMemory: true})
	require.NoError(t, err)

	for name, chunks := range collections {
		Seed(t, client.DB(), name, chunks)
	}
	return client
}

// Seed creates the collection in db and adds chunks to it.
func Seed(t testing.TB, db *chromem.DB, name string, chunks []Chunk) {
	t.Helper()

	coll, err := db.GetOrCreateCollection(name, nil, nil)
	require.NoError(t, err)

	for _, c := range chunks {
		err := coll.AddDocument(context.Background(), chromem.Document{
			ID:        c.ID,
			Metadata:  c.Metadata,
			Embedding: c.Embedding,
			Content:   c.Content,
		})
		require.NoError(t, err)
	}
}

// FaultyClient wraps a Client and fails chosen operations.
type FaultyClient struct {
	vectordb.Client

	mu         sync.Mutex
	getErrs    map[string]error
	deleteErrs map[string]error
	listErr    error
	gates      map[string]*Gate
	afterDel   func(name string)

	ListCalls atomic.Int64
	GetCalls  atomic.Int64
}

// NewFaultyClient wraps inner.
func NewFaultyClient(inner vectordb.Client) *FaultyClient {
	return &FaultyClient{
		Client:     inner,
		getErrs:    make(map[string]error),
		deleteErrs: make(map[string]error),
		gates:      make(map[string]*Gate),
	}
}

// Gate holds Get calls on one collection until it is opened.
type Gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	open    sync.Once
}

// Entered is closed when the first Get reaches the gate.
func (g *Gate) Entered() <-chan struct{} {
	return g.entered
}

// Open lets every held and future Get through.
func (g *Gate) Open() {
	g.open.Do(func() { close(g.release) })
}

func (g *Gate) wait(ctx context.Context) error {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BlockGet makes Get on the named collection wait until the returned gate
// is opened or the call's context ends.
func (f *FaultyClient) BlockGet(name string) *Gate {
	g := &Gate{entered: make(chan struct{}), release: make(chan struct{})}
	f.mu.Lock()
	f.gates[name] = g
	f.mu.Unlock()
	return g
}

// AfterDelete registers fn to run after every successful DeleteCollection.
func (f *FaultyClient) AfterDelete(fn func(name string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterDel = fn
}

// FailGet makes every Get on the named collection return err.
func (f *FaultyClient) FailGet(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErrs[name] = err
}

// FailDelete makes DeleteCollection on the named collection return err.
func (f *FaultyClient) FailDelete(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteErrs[name] = err
}

// FailList makes ListCollections return err.
func (f *FaultyClient) FailList(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

func (f *FaultyClient) ListCollections(ctx context.Context) ([]vectordb.Collection, error) {
	f.ListCalls.Add(1)

	f.mu.Lock()
	err := f.listErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	colls, err := f.Client.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	wrapped := make([]vectordb.Collection, len(colls))
	for i, c := range colls {
		wrapped[i] = &faultyCollection{Collection: c, parent: f}
	}
	return wrapped, nil
}

func (f *FaultyClient) GetCollection(ctx context.Context, name string) (vectordb.Collection, error) {
	c, err := f.Client.GetCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	return &faultyCollection{Collection: c, parent: f}, nil
}

func (f *FaultyClient) DeleteCollection(ctx context.Context, name string) error {
	f.mu.Lock()
	err := f.deleteErrs[name]
	after := f.afterDel
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if err := f.Client.DeleteCollection(ctx, name); err != nil {
		return err
	}
	if after != nil {
		after(name)
	}
	return nil
}

type faultyCollection struct {
	vectordb.Collection
	parent *FaultyClient
}

func (c *faultyCollection) Get(ctx context.Context, opts vectordb.GetOptions) ([]vectordb.Record, error) {
	c.parent.GetCalls.Add(1)

	c.parent.mu.Lock()
	err := c.parent.getErrs[c.Name()]
	gate := c.parent.gates[c.Name()]
	c.parent.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if gate != nil {
		if err := gate.wait(ctx); err != nil {
			return nil, err
		}
	}
	return c.Collection.Get(ctx, opts)
}
