// Package ingest discovers raw positioning files and stream-parses them
// concurrently into the spatial index, while a single drain coordinator
// batches validated points into fixed-size chunks with precomputed
// statistics. Parsing throughput is decoupled from per-chunk statistics
// cost, and at most one unfinished chunk of points is ever buffered.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/kass/go-field-surface/pkg/models"
	"github.com/kass/go-field-surface/pkg/nmea"
	"github.com/kass/go-field-surface/pkg/proj"
	"github.com/kass/go-field-surface/pkg/quadtree"
)

const (
	// DefaultChunkSize is the point count at which a chunk is finalized.
	DefaultChunkSize = 10000
	// progressBytes throttles progress reporting to roughly one snapshot
	// per megabyte of input consumed.
	progressBytes = 1 << 20
)

var sentenceExts = map[string]bool{".nmea": true, ".log": true, ".txt": true}

// Options tunes an ingestion run. The zero value is usable.
type Options struct {
	Workers   int
	ChunkSize int
	// Reference anchors the projection plane. When nil the first validated
	// point becomes the anchor.
	Reference *models.LatLon
	Progress  models.ProgressFunc
}

// queue is the shared unbounded point queue between file parsers and the
// drain coordinator.
type queue struct {
	mu    sync.Mutex
	items []models.RawPoint
}

func (q *queue) push(p models.RawPoint) {
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
}

func (q *queue) drain() []models.RawPoint {
	q.mu.Lock()
	out := q.items
	q.items = nil
	q.mu.Unlock()
	return out
}

// Ingest walks dir (recursively when asked), parses every positioning file
// with bounded concurrency, inserts each validated point into the index and
// accumulates chunk statistics. Files erroring mid-parse are recorded as
// unit failures and counted as fully consumed for progress purposes.
func Ingest(ctx context.Context, dir string, recursive bool, index *quadtree.QuadTree, opts Options) *models.IngestResult {
	start := time.Now()
	res := &models.IngestResult{}
	res.Success = true

	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	files, totalBytes, err := discover(dir, recursive)
	if err != nil {
		res.Fail(dir, err)
		res.Elapsed = time.Since(start)
		return res
	}
	res.FilesSeen = len(files)
	if len(files) == 0 {
		res.Elapsed = time.Since(start)
		return res
	}

	var (
		q             queue
		bytesRead     atomic.Int64
		lastReported  atomic.Int64
		producersDone atomic.Bool
		planeMu       sync.Mutex
		plane         *proj.LocalPlane
		failMu        sync.Mutex
	)
	if opts.Reference != nil {
		plane = proj.NewLocalPlane(opts.Reference.Lat, opts.Reference.Lon)
	}

	planeFor := func(p models.RawPoint) *proj.LocalPlane {
		planeMu.Lock()
		defer planeMu.Unlock()
		if plane == nil {
			plane = proj.NewLocalPlane(p.Lat, p.Lon)
			log.WithField("lat", p.Lat).WithField("lon", p.Lon).
				Info("anchored projection plane at first point")
		}
		return plane
	}

	report := func(force bool) {
		read := bytesRead.Load()
		if !force && read-lastReported.Load() < progressBytes {
			return
		}
		lastReported.Store(read)
		opts.Progress.Report("ingest", 100*float64(read)/float64(max(totalBytes, 1)), "")
	}

	// drain coordinator: runs alongside the parsers, chunking points as
	// they arrive
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		builder := newChunkBuilder(opts.ChunkSize)
		for {
			pts := q.drain()
			if len(pts) == 0 {
				if producersDone.Load() {
					// one last sweep in case a producer raced the flag
					if pts = q.drain(); len(pts) == 0 {
						break
					}
				} else {
					// momentarily empty while producers are active
					time.Sleep(time.Millisecond)
					continue
				}
			}
			for _, p := range pts {
				res.Points = append(res.Points, p)
				if chunk, done := builder.add(p); done {
					res.Chunks = append(res.Chunks, chunk)
				}
			}
		}
		if chunk, ok := builder.finish(); ok {
			res.Chunks = append(res.Chunks, chunk)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, f := range files {
		select {
		case <-gctx.Done():
			res.Cancelled = true
		default:
			g.Go(func() error {
				consumed, err := parseFile(f, index, planeFor, &q, &bytesRead)
				if err != nil {
					failMu.Lock()
					res.FilesFailed++
					res.Failures = append(res.Failures, models.UnitFailure{Unit: f.path, Err: err.Error()})
					failMu.Unlock()
					// count the remainder of the file as consumed
					bytesRead.Add(f.size - consumed)
					log.WithError(err).WithField("file", f.path).Warn("file ingestion failed")
				}
				report(false)
				return nil
			})
		}
		if res.Cancelled {
			break
		}
	}
	g.Wait()
	producersDone.Store(true)
	<-drainDone

	res.BytesRead = bytesRead.Load()
	res.Elapsed = time.Since(start)
	report(true)
	return res
}

type fileInfo struct {
	path string
	size int64
}

func discover(dir string, recursive bool) ([]fileInfo, int64, error) {
	var files []fileInfo
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if !sentenceExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, fileInfo{path: path, size: info.Size()})
		total += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return files, total, nil
}

// parseFile streams one file line by line, inserting every validated point
// into the index and pushing it onto the shared queue. Returns the bytes
// consumed so a failed file can still be accounted for in progress.
func parseFile(f fileInfo, index *quadtree.QuadTree, planeFor func(models.RawPoint) *proj.LocalPlane, q *queue, bytesRead *atomic.Int64) (int64, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	receiverID := strings.TrimSuffix(filepath.Base(f.path), filepath.Ext(f.path))
	var consumed int64
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		n := int64(len(line)) + 1
		consumed += n
		bytesRead.Add(n)

		pt, err := nmea.ParseLine(receiverID, line)
		if err != nil {
			if errors.Is(err, nmea.ErrSkip) {
				continue
			}
			return consumed, err
		}
		index.Insert(planeFor(pt).ToPlane(pt))
		q.push(pt)
	}
	if err := scanner.Err(); err != nil {
		return consumed, err
	}
	return consumed, nil
}

// chunkBuilder accumulates points into one chunk at a time and finalizes
// statistics when the chunk fills.
type chunkBuilder struct {
	size   int
	cur    models.ChunkStats
	altSum float64
}

func newChunkBuilder(size int) *chunkBuilder {
	b := &chunkBuilder{size: size}
	b.reset()
	return b
}

func (b *chunkBuilder) reset() {
	b.cur = models.ChunkStats{
		MinLat: math.MaxFloat64, MaxLat: -math.MaxFloat64,
		MinLon: math.MaxFloat64, MaxLon: -math.MaxFloat64,
		MinAlt: math.MaxFloat64, MaxAlt: -math.MaxFloat64,
	}
	b.altSum = 0
}

func (b *chunkBuilder) add(p models.RawPoint) (models.ChunkStats, bool) {
	c := &b.cur
	c.Count++
	c.MinLat = math.Min(c.MinLat, p.Lat)
	c.MaxLat = math.Max(c.MaxLat, p.Lat)
	c.MinLon = math.Min(c.MinLon, p.Lon)
	c.MaxLon = math.Max(c.MaxLon, p.Lon)
	c.MinAlt = math.Min(c.MinAlt, p.Altitude)
	c.MaxAlt = math.Max(c.MaxAlt, p.Altitude)
	b.altSum += p.Altitude
	if c.Count >= b.size {
		return b.finalize(), true
	}
	return models.ChunkStats{}, false
}

func (b *chunkBuilder) finish() (models.ChunkStats, bool) {
	if b.cur.Count == 0 {
		return models.ChunkStats{}, false
	}
	return b.finalize(), true
}

func (b *chunkBuilder) finalize() models.ChunkStats {
	c := b.cur
	c.AvgAlt = b.altSum / float64(c.Count)
	b.reset()
	return c
}
