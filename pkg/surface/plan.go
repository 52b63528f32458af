// Package surface turns an indexed point set into a tiled elevation
// surface: a planner partitions the extent into memory-bounded tiles, and
// the rasterization engine triangulates each tile's points and interpolates
// a grid from the triangulation.
package surface

import (
	"errors"
	"fmt"
	"math"

	"github.com/kass/go-field-surface/pkg/models"
	"github.com/kass/go-field-surface/pkg/raster"
)

const (
	// DefaultTileBudget bounds the point count a single tile is sized for.
	DefaultTileBudget = 25000
	// MinTileEdge and MaxTileEdge clamp the chosen tile edge, in meters.
	MinTileEdge = 50.0
	MaxTileEdge = 1000.0
	// DefaultOverlap is the fraction of the tile edge added around the
	// tile rectangle when querying points, so triangles spanning a tile
	// edge interpolate correctly near it.
	DefaultOverlap = 0.10
)

// ErrEmptyExtent is returned when planning over an empty index.
var ErrEmptyExtent = errors.New("no points: empty extent")

// TileSpec is one planned tile: its grid coordinates and its rectangle.
// The rectangles of a plan exactly and disjointly cover the extent.
type TileSpec struct {
	Col, Row int
	Rect     models.Rect
}

// Name returns the stable tile name used for deterministic file naming.
func (s TileSpec) Name() string {
	return fmt.Sprintf("tile_%d_%d", s.Col, s.Row)
}

// Plan is a complete tiling of the survey extent.
type Plan struct {
	Extent models.Rect
	Edge   float64
	Cols   int
	Rows   int
	Tiles  []TileSpec
}

// PlanTiles computes a tile grid over the extent. The edge length targets a
// bounded point count per tile, clamped to [MinTileEdge, MaxTileEdge] and
// rounded to a friendly step.
func PlanTiles(extent models.Rect, totalPoints int64, perTileBudget int) (*Plan, error) {
	if totalPoints <= 0 {
		return nil, ErrEmptyExtent
	}
	if perTileBudget <= 0 {
		perTileBudget = DefaultTileBudget
	}

	target := float64(perTileBudget)
	if t := float64(totalPoints) / 10; t < target {
		target = t
	}
	if target < 1 {
		target = 1
	}

	area := extent.Width() * extent.Height()
	edge := MaxTileEdge
	if area > 0 {
		density := float64(totalPoints) / area
		edge = math.Sqrt(target / density)
	}
	if edge < MinTileEdge {
		edge = MinTileEdge
	}
	if edge > MaxTileEdge {
		edge = MaxTileEdge
	}
	edge = friendlyStep(edge)

	cols := int(math.Ceil(extent.Width() / edge))
	rows := int(math.Ceil(extent.Height() / edge))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	plan := &Plan{Extent: extent, Edge: edge, Cols: cols, Rows: rows}
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			r := models.Rect{
				MinX: extent.MinX + float64(col)*edge,
				MinY: extent.MinY + float64(row)*edge,
				MaxX: math.Min(extent.MinX+float64(col+1)*edge, extent.MaxX),
				MaxY: math.Min(extent.MinY+float64(row+1)*edge, extent.MaxY),
			}
			plan.Tiles = append(plan.Tiles, TileSpec{Col: col, Row: row, Rect: r})
		}
	}
	return plan, nil
}

// friendlyStep rounds an edge length to a value an operator can reason
// about: multiples of 10 m under 100 m, multiples of 50 m above.
func friendlyStep(edge float64) float64 {
	step := 10.0
	if edge >= 100 {
		step = 50.0
	}
	r := math.Round(edge/step) * step
	if r < step {
		r = step
	}
	return r
}

// Tile is the outcome of rasterizing one planned tile. An empty tile has a
// nil grid; a failed tile is empty with Err attached.
type Tile struct {
	Spec       TileSpec
	Grid       *raster.Grid
	PointCount int
	MinElev    float32
	MaxElev    float32
	Err        error
}

// Empty reports whether the tile contributed no raster.
func (t *Tile) Empty() bool { return t.Grid == nil }
