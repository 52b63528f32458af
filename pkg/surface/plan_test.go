package surface

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kass/go-field-surface/pkg/models"
)

func TestPlanTilesEmptyIndex(t *testing.T) {
	_, err := PlanTiles(models.Rect{MaxX: 100, MaxY: 100}, 0, 0)
	assert.ErrorIs(t, err, ErrEmptyExtent)
}

func TestPlanTilesCoverExtentExactly(t *testing.T) {
	extent := models.Rect{MinX: 10, MinY: 20, MaxX: 1275, MaxY: 947}
	plan, err := PlanTiles(extent, 1_000_000, 0)
	require.NoError(t, err)
	require.Len(t, plan.Tiles, plan.Cols*plan.Rows)

	for _, spec := range plan.Tiles {
		r := spec.Rect
		assert.GreaterOrEqual(t, r.MinX, extent.MinX)
		assert.GreaterOrEqual(t, r.MinY, extent.MinY)
		assert.LessOrEqual(t, r.MaxX, extent.MaxX, "edge tiles are clipped, never overhanging")
		assert.LessOrEqual(t, r.MaxY, extent.MaxY)
		assert.Greater(t, r.Width(), 0.0)
		assert.Greater(t, r.Height(), 0.0)
	}

	// interior seams line up: tile (c+1, r) starts where tile (c, r) ends
	byPos := make(map[[2]int]TileSpec, len(plan.Tiles))
	for _, spec := range plan.Tiles {
		byPos[[2]int{spec.Col, spec.Row}] = spec
	}
	for _, spec := range plan.Tiles {
		if right, ok := byPos[[2]int{spec.Col + 1, spec.Row}]; ok {
			assert.Equal(t, spec.Rect.MaxX, right.Rect.MinX)
		}
		if above, ok := byPos[[2]int{spec.Col, spec.Row + 1}]; ok {
			assert.Equal(t, spec.Rect.MaxY, above.Rect.MinY)
		}
	}

	// the summed tile area equals the extent area, so the cover is exact
	// and disjoint
	var area float64
	for _, spec := range plan.Tiles {
		area += spec.Rect.Width() * spec.Rect.Height()
	}
	assert.InDelta(t, extent.Width()*extent.Height(), area, 1e-6)
}

func TestPlanTilesEdgeScalesWithDensity(t *testing.T) {
	extent := models.Rect{MaxX: 1000, MaxY: 1000}

	// one point per square meter, default budget: edge ~ sqrt(25000) ~ 158,
	// rounded to the friendly 150 m step
	plan, err := PlanTiles(extent, 1_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, 150.0, plan.Edge)
	assert.Equal(t, 7, plan.Cols)
	assert.Equal(t, 7, plan.Rows)

	// a sparse survey gets the largest tiles
	sparse, err := PlanTiles(extent, 1_000_000, 1_000_000)
	require.NoError(t, err)
	assert.Greater(t, sparse.Edge, plan.Edge)
}

func TestPlanTilesEdgeClamped(t *testing.T) {
	extent := models.Rect{MaxX: 100, MaxY: 100}

	// extreme density forces the edge to the lower clamp
	dense, err := PlanTiles(extent, 100_000_000, 100)
	require.NoError(t, err)
	assert.Equal(t, MinTileEdge, dense.Edge)

	// a huge sparse extent gets the upper clamp
	wide, err := PlanTiles(models.Rect{MaxX: 100_000, MaxY: 100_000}, 1000, 0)
	require.NoError(t, err)
	assert.Equal(t, MaxTileEdge, wide.Edge)
}

func TestPlanTilesTinyExtent(t *testing.T) {
	// a handful of points in a few meters still yields one valid tile
	plan, err := PlanTiles(models.Rect{MaxX: 10, MaxY: 10}, 4, 0)
	require.NoError(t, err)
	require.Len(t, plan.Tiles, 1)
	assert.Equal(t, models.Rect{MaxX: 10, MaxY: 10}, plan.Tiles[0].Rect)
}

func TestFriendlyStep(t *testing.T) {
	testCases := []struct {
		in   float64
		want float64
	}{
		{5, 10},
		{37, 40},
		{94, 90},
		{100, 100},
		{158, 150},
		{130, 150},
		{980, 1000},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, friendlyStep(tc.in), "friendlyStep(%g)", tc.in)
	}
}

func TestTileSpecName(t *testing.T) {
	assert.Equal(t, "tile_0_0", TileSpec{}.Name())
	assert.Equal(t, "tile_3_12", TileSpec{Col: 3, Row: 12}.Name())
}
