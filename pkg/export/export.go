// Package export writes rasterized tiles to disk, either one georeferenced
// file per tile or merged into a single raster. Per-tile write failures are
// recorded without aborting the run; only the merged-raster pixel ceiling
// is a hard failure, and a clean one.
package export

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/kass/go-field-surface/pkg/geotiff"
	"github.com/kass/go-field-surface/pkg/models"
	"github.com/kass/go-field-surface/pkg/proj"
	"github.com/kass/go-field-surface/pkg/raster"
	"github.com/kass/go-field-surface/pkg/surface"
)

const (
	// MaxMergedPixels is the hard ceiling on a merged raster's cell count.
	MaxMergedPixels = 500_000_000
	// TiledRecommendBytes is the estimated-memory threshold above which
	// tiled export is recommended over merged.
	TiledRecommendBytes = 1 << 30
)

// ErrPixelCeiling is returned when a merged raster would exceed
// MaxMergedPixels; the caller should fall back to tiled export.
var ErrPixelCeiling = errors.New("merged raster exceeds pixel ceiling, use tiled export")

// ErrNoTiles is returned when no non-empty tile is available to export.
var ErrNoTiles = errors.New("no non-empty tiles to export")

// Mode selects between per-tile files and one merged raster.
type Mode int

const (
	ModeTiled Mode = iota
	ModeMerged
)

func (m Mode) String() string {
	if m == ModeMerged {
		return "merged"
	}
	return "tiled"
}

// Options tunes an export run.
type Options struct {
	Workers  int
	Progress models.ProgressFunc
	// EPSG georeferences the output; when zero and Reference is set, an
	// approximate UTM zone code is derived as a fallback so export never
	// fails solely for missing reference-system data.
	EPSG      int
	Reference *models.LatLon
}

func (o Options) epsg() int {
	if o.EPSG != 0 {
		return o.EPSG
	}
	if o.Reference != nil {
		return proj.ApproxUTM(o.Reference.Lat, o.Reference.Lon).EPSG()
	}
	return 0
}

// EstimateMergedBytes estimates the working-set cost of a merged export
// from the non-empty pixel count.
func EstimateMergedBytes(tiles []*surface.Tile) int64 {
	var pixels int64
	for _, t := range tiles {
		if t == nil || t.Empty() {
			continue
		}
		pixels += int64(t.Grid.Rows) * int64(t.Grid.Cols)
	}
	return pixels * 8
}

// Recommend picks an export mode from the memory estimate. The caller
// decides; this is only guidance.
func Recommend(tiles []*surface.Tile) Mode {
	if EstimateMergedBytes(tiles) > TiledRecommendBytes {
		return ModeTiled
	}
	return ModeMerged
}

// WriteTiled writes one GeoTIFF per non-empty tile into dir with
// deterministic tile-coordinate names. Write concurrency is bounded;
// failures are recorded per tile and the run continues.
func WriteTiled(ctx context.Context, tiles []*surface.Tile, dir string, opts Options) *models.ExportResult {
	start := time.Now()
	res := &models.ExportResult{}
	res.Success = true

	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	epsg := opts.epsg()

	nonEmpty := make([]*surface.Tile, 0, len(tiles))
	for _, t := range tiles {
		if t != nil && !t.Empty() {
			nonEmpty = append(nonEmpty, t)
		}
	}
	if len(nonEmpty) == 0 {
		res.Fail("input", ErrNoTiles)
		res.Elapsed = time.Since(start)
		return res
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, t := range nonEmpty {
		select {
		case <-gctx.Done():
			res.Cancelled = true
		default:
			g.Go(func() error {
				path := filepath.Join(dir, t.Spec.Name()+".tif")
				err := geotiff.Write(path, t.Grid, epsg)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					res.Failures = append(res.Failures, models.UnitFailure{Unit: t.Spec.Name(), Err: err.Error()})
					log.WithError(err).WithField("tile", t.Spec.Name()).Warn("tile write failed")
					return nil
				}
				res.FilesWritten++
				res.Paths = append(res.Paths, path)
				res.BytesWritten += int64(t.Grid.Rows*t.Grid.Cols) * 4
				opts.Progress.Report("export",
					100*float64(res.FilesWritten)/float64(len(nonEmpty)), t.Spec.Name())
				return nil
			})
		}
		if res.Cancelled {
			break
		}
	}
	g.Wait()

	res.Elapsed = time.Since(start)
	return res
}

// Merge assembles all non-empty tiles into one grid covering their union
// extent, every cell initialized to the no-data sentinel. The pixel ceiling
// is enforced before allocation; no partial raster is ever produced.
func Merge(tiles []*surface.Tile) (*raster.Grid, error) {
	var (
		minX, minY = math.MaxFloat64, math.MaxFloat64
		maxX, maxY = -math.MaxFloat64, -math.MaxFloat64
		resolution float64
		any        bool
	)
	for _, t := range tiles {
		if t == nil || t.Empty() {
			continue
		}
		any = true
		resolution = t.Grid.Resolution
		minX = math.Min(minX, t.Grid.OriginX)
		maxY = math.Max(maxY, t.Grid.OriginY)
		maxX = math.Max(maxX, t.Grid.OriginX+float64(t.Grid.Cols)*t.Grid.Resolution)
		minY = math.Min(minY, t.Grid.OriginY-float64(t.Grid.Rows)*t.Grid.Resolution)
	}
	if !any {
		return nil, ErrNoTiles
	}

	rows := int(math.Round((maxY - minY) / resolution))
	cols := int(math.Round((maxX - minX) / resolution))
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("merge: degenerate extent")
	}
	if int64(rows)*int64(cols) > MaxMergedPixels {
		return nil, fmt.Errorf("%w: %d x %d = %d cells", ErrPixelCeiling, rows, cols, int64(rows)*int64(cols))
	}

	merged := raster.NewGrid(rows, cols, minX, maxY, resolution)
	for _, t := range tiles {
		if t == nil || t.Empty() {
			continue
		}
		// offset from geotransform alignment against the union origin
		col0 := int(math.Round((t.Grid.OriginX - minX) / resolution))
		row0 := int(math.Round((maxY - t.Grid.OriginY) / resolution))
		for r := 0; r < t.Grid.Rows; r++ {
			tr := row0 + r
			if tr < 0 || tr >= rows {
				continue
			}
			for c := 0; c < t.Grid.Cols; c++ {
				tc := col0 + c
				if tc < 0 || tc >= cols {
					continue
				}
				if v := t.Grid.At(r, c); v != raster.NoData {
					merged.Set(tr, tc, v)
				}
			}
		}
	}
	return merged, nil
}

// WriteMerged merges all non-empty tiles and performs a single write. A
// pixel-ceiling overflow fails cleanly before anything touches disk.
func WriteMerged(ctx context.Context, tiles []*surface.Tile, path string, opts Options) *models.ExportResult {
	start := time.Now()
	res := &models.ExportResult{}
	res.Success = true

	if err := ctx.Err(); err != nil {
		res.Cancelled = true
		res.Success = false
		res.Elapsed = time.Since(start)
		return res
	}

	merged, err := Merge(tiles)
	if err != nil {
		res.Fail(path, err)
		res.Elapsed = time.Since(start)
		return res
	}
	opts.Progress.Report("export", 50, "merged grid assembled")

	if err := geotiff.Write(path, merged, opts.epsg()); err != nil {
		res.Fail(path, err)
		res.Elapsed = time.Since(start)
		return res
	}
	res.FilesWritten = 1
	res.Paths = []string{path}
	res.BytesWritten = int64(merged.Rows*merged.Cols) * 4
	res.Elapsed = time.Since(start)
	opts.Progress.Report("export", 100, "done")
	return res
}
