package surface

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/fogleman/delaunay"
	"golang.org/x/sync/errgroup"

	"github.com/kass/go-field-surface/pkg/models"
	"github.com/kass/go-field-surface/pkg/quadtree"
	"github.com/kass/go-field-surface/pkg/raster"
)

// Resolution limits, meters per pixel (input validation).
const (
	MinResolution = 0.01
	MaxResolution = 10.0
)

// ErrBadResolution is returned for a resolution outside [0.01, 10].
var ErrBadResolution = errors.New("resolution must be in [0.01, 10] m/px")

// Options tunes a rasterization run.
type Options struct {
	Workers  int
	Overlap  float64 // fraction of tile edge; default DefaultOverlap
	Progress models.ProgressFunc
}

// Rasterize builds an elevation grid for every planned tile. Tiles are
// processed with bounded concurrency; a per-tile failure marks that tile
// empty with an attached error and the run continues. Partial coverage is
// preferred over aborting the whole run.
func Rasterize(ctx context.Context, index *quadtree.QuadTree, plan *Plan, resolution float64, opts Options) ([]*Tile, *models.SurfaceResult) {
	start := time.Now()
	res := &models.SurfaceResult{}
	res.Success = true

	if resolution < MinResolution || resolution > MaxResolution {
		res.Fail("input", ErrBadResolution)
		res.Elapsed = time.Since(start)
		return nil, res
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Overlap <= 0 {
		opts.Overlap = DefaultOverlap
	}

	tiles := make([]*Tile, len(plan.Tiles))
	res.TilesPlanned = len(plan.Tiles)

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, spec := range plan.Tiles {
		select {
		case <-gctx.Done():
			res.Cancelled = true
		default:
			g.Go(func() error {
				tiles[i] = buildTile(index, spec, resolution, plan.Edge*opts.Overlap)
				mu.Lock()
				done++
				if tiles[i].Err != nil {
					res.Failures = append(res.Failures, models.UnitFailure{
						Unit: spec.Name(), Err: tiles[i].Err.Error(),
					})
				}
				opts.Progress.Report("rasterize",
					100*float64(done)/float64(len(plan.Tiles)), spec.Name())
				mu.Unlock()
				return nil
			})
		}
		if res.Cancelled {
			break
		}
	}
	g.Wait()

	for _, t := range tiles {
		if t == nil {
			continue
		}
		if t.Empty() {
			res.TilesEmpty++
		} else {
			res.TilesBuilt++
		}
	}
	res.Elapsed = time.Since(start)
	return tiles, res
}

// buildTile queries, triangulates and interpolates one tile. Panics from
// degenerate geometry are converted into a per-tile error.
func buildTile(index *quadtree.QuadTree, spec TileSpec, resolution, margin float64) (tile *Tile) {
	tile = &Tile{Spec: spec}
	defer func() {
		if r := recover(); r != nil {
			tile.Grid = nil
			tile.Err = fmt.Errorf("tile %s: %v", spec.Name(), r)
			log.WithField("tile", spec.Name()).Warnf("rasterization panic: %v", r)
		}
	}()

	pts := index.QueryRegion(spec.Rect.Expand(margin))
	tile.PointCount = len(pts)
	if len(pts) == 0 {
		return tile
	}

	sites, elevs := dedupe(pts)
	if len(sites) < 3 {
		tile.Err = fmt.Errorf("tile %s: %d unique points, need 3 to triangulate", spec.Name(), len(sites))
		return tile
	}

	tri, err := delaunay.Triangulate(sites)
	if err != nil {
		tile.Err = fmt.Errorf("tile %s: triangulation: %w", spec.Name(), err)
		return tile
	}
	if len(tri.Triangles) == 0 {
		tile.Err = fmt.Errorf("tile %s: degenerate triangulation (collinear points)", spec.Name())
		return tile
	}

	rows := int(math.Ceil(spec.Rect.Height() / resolution))
	cols := int(math.Ceil(spec.Rect.Width() / resolution))
	if rows < 1 || cols < 1 {
		return tile
	}
	grid := raster.NewGrid(rows, cols, spec.Rect.MinX, spec.Rect.MaxY, resolution)

	loc := newLocator(tri)
	filled := 0
	minE, maxE := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			x, y := grid.CellCenter(row, col)
			if !spec.Rect.Contains(x, y) {
				continue
			}
			t := loc.locate(x, y)
			if t < 0 {
				continue
			}
			v, ok := interpolate(tri, elevs, t, x, y)
			if !ok {
				continue
			}
			grid.Set(row, col, v)
			filled++
			if v < minE {
				minE = v
			}
			if v > maxE {
				maxE = v
			}
		}
	}
	if filled == 0 {
		// every cell fell outside the triangulation; treat as empty
		return tile
	}
	tile.Grid = grid
	tile.MinElev = minE
	tile.MaxElev = maxE
	return tile
}

// dedupe collapses exactly coincident points, keeping the first altitude
// seen. Duplicate sites would otherwise produce zero-area triangles.
func dedupe(pts []models.SurveyPoint) ([]delaunay.Point, []float64) {
	type key struct{ x, y float64 }
	seen := make(map[key]bool, len(pts))
	sites := make([]delaunay.Point, 0, len(pts))
	elevs := make([]float64, 0, len(pts))
	for _, p := range pts {
		k := key{p.Easting, p.Northing}
		if seen[k] {
			continue
		}
		seen[k] = true
		sites = append(sites, delaunay.Point{X: p.Easting, Y: p.Northing})
		elevs = append(elevs, p.Altitude)
	}
	return sites, elevs
}

// interpolate evaluates the barycentric-weighted elevation of (x, y) inside
// triangle t (an offset into tri.Triangles, multiple of 3).
func interpolate(tri *delaunay.Triangulation, elevs []float64, t int, x, y float64) (float32, bool) {
	ia, ib, ic := tri.Triangles[t], tri.Triangles[t+1], tri.Triangles[t+2]
	a, b, c := tri.Points[ia], tri.Points[ib], tri.Points[ic]

	wa, wb, wc, ok := barycentric(a, b, c, x, y)
	if !ok {
		return 0, false
	}
	v := wa*elevs[ia] + wb*elevs[ib] + wc*elevs[ic]
	return float32(v), true
}

// barycentric returns the weights of p in triangle abc so that
// p = wa*a + wb*b + wc*c and wa+wb+wc = 1. ok is false for a degenerate
// triangle.
func barycentric(a, b, c delaunay.Point, px, py float64) (wa, wb, wc float64, ok bool) {
	v0x, v0y := b.X-a.X, b.Y-a.Y
	v1x, v1y := c.X-a.X, c.Y-a.Y
	v2x, v2y := px-a.X, py-a.Y

	denom := v0x*v1y - v0y*v1x // 2 * signed area
	const eps = 1e-12
	if math.Abs(denom) < eps {
		return 0, 0, 0, false
	}
	wb = (v2x*v1y - v2y*v1x) / denom
	wc = (v0x*v2y - v0y*v2x) / denom
	wa = 1 - wb - wc
	return wa, wb, wc, true
}
