// Package catalog maintains the mapping from source filenames to the
// collections derived from them.
//
// The mapping is built by scanning every collection once and reading the
// "name" key of its first record's metadata. Scans run in batches on a
// bounded worker pool and the result is cached for a fixed TTL.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Yates-Labs/vecview/internal/observability"
	"github.com/Yates-Labs/vecview/internal/vectordb"
)

// Defaults for Config.
const (
	DefaultTTL        = 5 * time.Minute
	DefaultBatchSize  = 100
	MaxDefaultWorkers = 20
)

// FilenameKey is the metadata key holding a chunk's source filename.
const FilenameKey = "name"

// DefaultWorkers returns min(20, NumCPU), at least 1.
func DefaultWorkers() int {
	return min(MaxDefaultWorkers, max(1, runtime.NumCPU()))
}

// Config controls scan batching and cache expiry.
type Config struct {
	TTL       time.Duration
	BatchSize int
	Workers   int
}

func (c *Config) defaults() {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers()
	}
}

// Progress reports how far the current or last scan got.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Status  string `json:"status"`
}

// Summary describes the outcome of a Refresh.
type Summary struct {
	Cached      bool          `json:"cached"`
	Collections int           `json:"collections"`
	Filenames   int           `json:"filenames"`
	Mappings    int           `json:"mappings"`
	Skipped     int           `json:"skipped"`
	Duration    time.Duration `json:"duration"`
}

// String renders the summary as a status line.
func (s Summary) String() string {
	if s.Cached {
		return "file list loaded (cached)"
	}
	if s.Collections == 0 {
		return "no collections found"
	}
	return fmt.Sprintf("loaded %d collections, %d unique filenames, %d mappings in %.2fs",
		s.Collections, s.Filenames, s.Mappings, s.Duration.Seconds())
}

// Catalog caches the filename mapping of a vector database.
type Catalog struct {
	client vectordb.Client
	config Config
	logger *slog.Logger
	now    func() time.Time

	mu          sync.RWMutex
	files       map[string][]string
	initialized bool
	stale       bool
	lastUpdate  time.Time
	lastSummary Summary
	progress    Progress

	// gen counts Replace and Invalidate calls. Edits made while a scan is
	// running are replayed onto that scan's result when it commits.
	gen      uint64
	scanning int
	edits    []edit
	flight   *flight
	flights  uint64

	group singleflight.Group
}

type edit struct {
	gen        uint64
	filename   string
	remaining  []string
	invalidate bool
}

// flight is one shared scan. It runs detached from its callers and is
// cancelled once every caller waiting on it has gone away.
type flight struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// New creates an empty catalog over client.
func New(client vectordb.Client, config Config, logger *slog.Logger) *Catalog {
	config.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		client: client,
		config: config,
		logger: logger,
		now:    time.Now,
		files:  make(map[string][]string),
	}
}

// Config returns the effective configuration.
func (c *Catalog) Config() Config {
	return c.config
}

// Refresh rebuilds the mapping unless it is initialized, younger than the
// TTL, and force is false. Concurrent callers share one scan; a caller whose
// context ends stops waiting without failing the others.
func (c *Catalog) Refresh(ctx context.Context, force bool) (Summary, error) {
	c.mu.RLock()
	fresh := c.initialized && !c.stale && c.now().Sub(c.lastUpdate) < c.config.TTL
	summary := c.lastSummary
	lastUpdate := c.lastUpdate
	c.mu.RUnlock()

	if fresh && !force {
		c.logger.Info("filename mapping is fresh, skipping scan",
			slog.Time("last_update", lastUpdate))
		observability.RefreshTotal.WithLabelValues("cached").Inc()
		summary.Cached = true
		return summary, nil
	}
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	c.mu.Lock()
	f := c.flight
	if f == nil {
		c.flights++
		scanCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{key: fmt.Sprintf("scan-%d", c.flights), ctx: scanCtx, cancel: cancel}
		c.flight = f
	}
	f.waiters++
	ch := c.group.DoChan(f.key, func() (any, error) {
		defer c.land(f)
		return c.scan(f.ctx)
	})
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		c.leave(f)
		return Summary{}, ctx.Err()
	case res := <-ch:
		c.leave(f)
		if res.Err != nil {
			return Summary{}, res.Err
		}
		return res.Val.(Summary), nil
	}
}

// leave drops a caller from f and cancels the scan when nobody waits on it.
func (c *Catalog) leave(f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	if c.flight == f {
		c.flight = nil
	}
	f.cancel()
}

// land retires f once its scan has returned.
func (c *Catalog) land(f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flight == f {
		c.flight = nil
	}
}

type mapping struct {
	filename   string
	collection string
}

func (c *Catalog) scan(ctx context.Context) (Summary, error) {
	start := c.now()
	c.logger.Info("updating filename mapping")

	c.mu.Lock()
	startGen := c.gen
	c.scanning++
	c.mu.Unlock()
	defer c.endScan()

	colls, err := c.client.ListCollections(ctx)
	if err != nil {
		observability.RefreshTotal.WithLabelValues("error").Inc()
		c.logger.Error("failed to list collections", slog.String("error", err.Error()))
		return Summary{}, fmt.Errorf("listing collections: %w", err)
	}

	total := len(colls)
	if total == 0 {
		c.logger.Warn("no collections found")
		summary := Summary{Duration: c.now().Sub(start)}
		c.commit(map[string][]string{}, start, startGen, summary)
		observability.RefreshTotal.WithLabelValues("scanned").Inc()
		observability.CollectionsScanned.Set(0)
		observability.FilenamesMapped.Set(0)
		return summary, nil
	}

	c.setProgress(Progress{Current: 0, Total: total, Status: "starting scan..."})

	batches := splitBatches(colls, c.config.BatchSize)
	found := make([][]mapping, len(batches))

	var (
		fanMu     sync.Mutex
		processed int
		skipped   int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Workers)

	for i, batch := range batches {
		g.Go(func() error {
			results, failures, err := c.processBatch(gctx, batch)
			if err != nil {
				return err
			}

			fanMu.Lock()
			defer fanMu.Unlock()
			found[i] = results
			skipped += failures
			processed += len(batch)
			c.setProgress(progressOf(processed, total))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		observability.RefreshTotal.WithLabelValues("error").Inc()
		c.logger.Error("filename mapping scan aborted", slog.String("error", err.Error()))
		return Summary{}, err
	}

	// Batches are merged in listing order so each filename's collections
	// keep the order the database listed them in.
	files := make(map[string][]string)
	mappings := 0
	for _, results := range found {
		for _, m := range results {
			files[m.filename] = append(files[m.filename], m.collection)
			mappings++
		}
	}

	duration := c.now().Sub(start)
	summary := Summary{
		Collections: total,
		Filenames:   len(files),
		Mappings:    mappings,
		Skipped:     skipped,
		Duration:    duration,
	}
	c.commit(files, start, startGen, summary)

	observability.RefreshTotal.WithLabelValues("scanned").Inc()
	observability.RefreshDuration.Observe(duration.Seconds())
	observability.CollectionsScanned.Set(float64(total))
	observability.FilenamesMapped.Set(float64(len(files)))

	c.logger.Info("filename mapping updated",
		slog.Int("collections", total),
		slog.Int("filenames", len(files)),
		slog.Int("mappings", mappings),
		slog.Int("skipped", skipped),
		slog.Duration("duration", duration))

	return summary, nil
}

// processBatch reads the first record of each collection. Per-collection
// failures are logged and counted; only cancellation aborts the batch.
func (c *Catalog) processBatch(ctx context.Context, batch []vectordb.Collection) ([]mapping, int, error) {
	c.logger.Debug("processing collection batch", slog.Int("size", len(batch)))

	var (
		results  []mapping
		failures int
	)
	for _, coll := range batch {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		records, err := coll.Get(ctx, vectordb.GetOptions{Limit: 1, Include: vectordb.IncludeMetadatas})
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			failures++
			observability.ScanFailuresTotal.Inc()
			c.logger.Error("failed to process collection",
				slog.String("collection", coll.Name()),
				slog.String("error", err.Error()))
			continue
		}
		if len(records) == 0 {
			continue
		}

		filename := vectordb.MetaString(records[0].Metadata, FilenameKey)
		if filename == "" {
			continue
		}
		results = append(results, mapping{filename: filename, collection: coll.Name()})
		c.logger.Debug("mapped collection",
			slog.String("collection", coll.Name()),
			slog.String("filename", filename))
	}
	return results, failures, nil
}

// commit installs files and replays the edits made since startGen.
func (c *Catalog) commit(files map[string][]string, start time.Time, startGen uint64, summary Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = false
	for _, e := range c.edits {
		if e.gen <= startGen {
			continue
		}
		if e.invalidate {
			c.stale = true
			continue
		}
		applyReplace(files, e.filename, e.remaining)
	}
	c.files = files
	c.initialized = true
	c.lastUpdate = start
	c.lastSummary = summary
	if summary.Collections == 0 {
		c.progress = Progress{Status: "no collections found"}
	}
}

func (c *Catalog) endScan() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scanning--
	if c.scanning == 0 {
		c.edits = nil
	}
}

func (c *Catalog) setProgress(p Progress) {
	c.mu.Lock()
	c.progress = p
	c.mu.Unlock()
}

func progressOf(processed, total int) Progress {
	pct := float64(processed) / float64(total) * 100
	return Progress{
		Current: processed,
		Total:   total,
		Status:  fmt.Sprintf("processed: %d/%d (%.1f%%)", processed, total, pct),
	}
}

func splitBatches(colls []vectordb.Collection, size int) [][]vectordb.Collection {
	batches := make([][]vectordb.Collection, 0, (len(colls)+size-1)/size)
	for i := 0; i < len(colls); i += size {
		end := min(i+size, len(colls))
		batches = append(batches, colls[i:end])
	}
	return batches
}

// Progress returns a snapshot of the scan progress.
func (c *Catalog) Progress() Progress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progress
}

// Filenames returns the mapped filenames in sorted order.
func (c *Catalog) Filenames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.files))
	for name := range c.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Collections returns a copy of the collections mapped to filename.
func (c *Catalog) Collections(filename string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.files[filename]...)
}

// Replace sets the collections of filename, removing the entry when
// remaining is empty.
func (c *Catalog) Replace(filename string, remaining []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining = append([]string{}, remaining...)
	applyReplace(c.files, filename, remaining)
	c.record(edit{filename: filename, remaining: remaining})
}

func applyReplace(files map[string][]string, filename string, remaining []string) {
	if len(remaining) == 0 {
		delete(files, filename)
		return
	}
	files[filename] = append([]string{}, remaining...)
}

// record bumps the generation and keeps e for scans still running.
// The caller holds c.mu.
func (c *Catalog) record(e edit) {
	c.gen++
	if c.scanning == 0 {
		return
	}
	e.gen = c.gen
	c.edits = append(c.edits, e)
}

// Forget removes filename from the mapping.
func (c *Catalog) Forget(filename string) {
	c.Replace(filename, nil)
}

// Invalidate makes the next Refresh rescan regardless of the TTL.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = true
	c.record(edit{invalidate: true})
}

// Initialized reports whether a scan has completed.
func (c *Catalog) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// LastUpdated returns the start time of the last completed scan.
func (c *Catalog) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}
