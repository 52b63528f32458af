package surface

import (
	"context"
	"math/rand"
	"testing"

	"github.com/fogleman/delaunay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kass/go-field-surface/pkg/models"
	"github.com/kass/go-field-surface/pkg/quadtree"
	"github.com/kass/go-field-surface/pkg/raster"
)

func delaunayPoint(x, y float64) delaunay.Point {
	return delaunay.Point{X: x, Y: y}
}

func indexOf(pts ...models.SurveyPoint) *quadtree.QuadTree {
	q := quadtree.New()
	for _, p := range pts {
		q.Insert(p)
	}
	return q
}

func pt(x, y, alt float64) models.SurveyPoint {
	return models.SurveyPoint{
		RawPoint: models.RawPoint{ReceiverID: "t", Altitude: alt, FixQuality: 4},
		Easting:  x,
		Northing: y,
	}
}

func TestRasterizePlanarSurfaceIsExact(t *testing.T) {
	// four corners of a 10x10 square with elevation f(x,y) = x + y.
	// barycentric interpolation reproduces a linear surface exactly,
	// whatever diagonal the triangulation picks.
	index := indexOf(
		pt(0, 0, 0),
		pt(10, 0, 10),
		pt(0, 10, 10),
		pt(10, 10, 20),
	)

	extent, ok := index.Bounds()
	require.True(t, ok)
	plan, err := PlanTiles(extent, index.Len(), 0)
	require.NoError(t, err)
	require.Len(t, plan.Tiles, 1)

	tiles, res := Rasterize(context.Background(), index, plan, 1.0, Options{})
	require.True(t, res.Success)
	require.Equal(t, 1, res.TilesBuilt)

	tile := tiles[0]
	require.False(t, tile.Empty())
	require.NoError(t, tile.Err)
	assert.Equal(t, 4, tile.PointCount)
	assert.Equal(t, 10, tile.Grid.Rows)
	assert.Equal(t, 10, tile.Grid.Cols)

	for row := 0; row < tile.Grid.Rows; row++ {
		for col := 0; col < tile.Grid.Cols; col++ {
			x, y := tile.Grid.CellCenter(row, col)
			v := tile.Grid.At(row, col)
			require.NotEqual(t, raster.NoData, v, "cell (%d,%d) inside the hull must be filled", row, col)
			assert.InDelta(t, x+y, float64(v), 1e-4, "cell (%d,%d)", row, col)
		}
	}
	assert.InDelta(t, 1.0, float64(tile.MinElev), 1e-4)
	assert.InDelta(t, 19.0, float64(tile.MaxElev), 1e-4)
}

func TestRasterizeIsIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(21))
	index := quadtree.New()
	for i := 0; i < 2000; i++ {
		index.Insert(pt(r.Float64()*100, r.Float64()*100, 50+r.Float64()*10))
	}

	extent, _ := index.Bounds()
	plan, err := PlanTiles(extent, index.Len(), 0)
	require.NoError(t, err)

	a, resA := Rasterize(context.Background(), index, plan, 0.5, Options{Workers: 1})
	b, resB := Rasterize(context.Background(), index, plan, 0.5, Options{Workers: 8})
	require.True(t, resA.Success)
	require.True(t, resB.Success)
	require.Len(t, b, len(a))

	for i := range a {
		if a[i].Empty() {
			assert.True(t, b[i].Empty())
			continue
		}
		require.False(t, b[i].Empty())
		assert.Equal(t, a[i].Grid.Values, b[i].Grid.Values,
			"tile %s must not depend on worker count", a[i].Spec.Name())
	}
}

func TestRasterizeEmptyTile(t *testing.T) {
	// points cluster in one corner; the far tile has nothing to triangulate
	index := indexOf(
		pt(0, 0, 1), pt(5, 0, 2), pt(0, 5, 3), pt(5, 5, 4),
	)
	plan := &Plan{
		Extent: models.Rect{MaxX: 400, MaxY: 200},
		Edge:   200,
		Cols:   2,
		Rows:   1,
		Tiles: []TileSpec{
			{Col: 0, Row: 0, Rect: models.Rect{MaxX: 200, MaxY: 200}},
			{Col: 1, Row: 0, Rect: models.Rect{MinX: 200, MaxX: 400, MaxY: 200}},
		},
	}

	tiles, res := Rasterize(context.Background(), index, plan, 1.0, Options{})
	require.True(t, res.Success)
	assert.Equal(t, 1, res.TilesBuilt)
	assert.Equal(t, 1, res.TilesEmpty)

	assert.False(t, tiles[0].Empty())
	assert.True(t, tiles[1].Empty())
	assert.NoError(t, tiles[1].Err, "an empty tile is a normal outcome, not a failure")
	assert.Zero(t, tiles[1].PointCount)
}

func TestRasterizeCollinearPointsFailTile(t *testing.T) {
	// all points on one line cannot form a triangle; the tile fails but
	// the run succeeds
	index := indexOf(pt(0, 0, 1), pt(10, 10, 2), pt(20, 20, 3), pt(30, 30, 4))
	plan := &Plan{
		Extent: models.Rect{MaxX: 30, MaxY: 30},
		Edge:   50, Cols: 1, Rows: 1,
		Tiles: []TileSpec{{Rect: models.Rect{MaxX: 30, MaxY: 30}}},
	}

	tiles, res := Rasterize(context.Background(), index, plan, 1.0, Options{})
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.TilesBuilt)
	require.Len(t, res.Failures, 1)
	assert.True(t, tiles[0].Empty())
	assert.Error(t, tiles[0].Err)
}

func TestRasterizeBadResolution(t *testing.T) {
	index := indexOf(pt(0, 0, 1))
	plan := &Plan{Tiles: []TileSpec{{Rect: models.Rect{MaxX: 10, MaxY: 10}}}}

	for _, res := range []float64{0, -1, 0.001, 11} {
		tiles, out := Rasterize(context.Background(), index, plan, res, Options{})
		assert.False(t, out.Success, "resolution %g must be rejected", res)
		assert.Nil(t, tiles)
	}
}

func TestRasterizeOverlapPullsNeighborPoints(t *testing.T) {
	// the only points sit just outside the tile rect; with overlap they
	// still triangulate cells near the shared edge
	index := indexOf(
		pt(-2, 0, 10), pt(-2, 50, 10), pt(-2, 100, 10),
		pt(52, 0, 10), pt(52, 50, 10), pt(52, 100, 10),
	)
	plan := &Plan{
		Extent: models.Rect{MaxX: 50, MaxY: 100},
		Edge:   50, Cols: 1, Rows: 1,
		Tiles: []TileSpec{{Rect: models.Rect{MaxX: 50, MaxY: 100}}},
	}

	tiles, res := Rasterize(context.Background(), index, plan, 1.0, Options{Overlap: 0.1})
	require.True(t, res.Success)
	require.False(t, tiles[0].Empty())
	assert.Equal(t, 6, tiles[0].PointCount)
	assert.Positive(t, tiles[0].Grid.DataCells())
}

func TestRasterizeCancelledContext(t *testing.T) {
	index := indexOf(pt(0, 0, 1), pt(10, 0, 2), pt(0, 10, 3))
	plan := &Plan{
		Extent: models.Rect{MaxX: 10, MaxY: 10},
		Edge:   50, Cols: 1, Rows: 1,
		Tiles: []TileSpec{{Rect: models.Rect{MaxX: 10, MaxY: 10}}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, res := Rasterize(ctx, index, plan, 1.0, Options{})
	assert.True(t, res.Cancelled)
}

func TestDedupe(t *testing.T) {
	sites, elevs := dedupe([]models.SurveyPoint{
		pt(1, 1, 10),
		pt(1, 1, 99), // coincident, first altitude wins
		pt(2, 2, 20),
	})
	require.Len(t, sites, 2)
	require.Len(t, elevs, 2)
	assert.Equal(t, 10.0, elevs[0])
	assert.Equal(t, 20.0, elevs[1])
}

func TestBarycentric(t *testing.T) {
	a := delaunayPoint(0, 0)
	b := delaunayPoint(10, 0)
	c := delaunayPoint(0, 10)

	wa, wb, wc, ok := barycentric(a, b, c, 0, 0)
	require.True(t, ok)
	assert.InDelta(t, 1, wa, 1e-12)
	assert.InDelta(t, 0, wb, 1e-12)
	assert.InDelta(t, 0, wc, 1e-12)

	wa, wb, wc, ok = barycentric(a, b, c, 10.0/3, 10.0/3)
	require.True(t, ok)
	assert.InDelta(t, 1.0/3, wa, 1e-9)
	assert.InDelta(t, 1.0/3, wb, 1e-9)
	assert.InDelta(t, 1.0/3, wc, 1e-9)

	// degenerate triangle
	_, _, _, ok = barycentric(a, a, b, 1, 1)
	assert.False(t, ok)
}
