package boundary

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kass/go-field-surface/pkg/batch"
	"github.com/kass/go-field-surface/pkg/models"
	"github.com/kass/go-field-surface/pkg/proj"
)

// squareRing is roughly a 1.1 x 2.2 km box around (52.0, 5.0).
func squareRing() []models.LatLon {
	return []models.LatLon{
		{Lat: 51.995, Lon: 4.99},
		{Lat: 51.995, Lon: 5.01},
		{Lat: 52.005, Lon: 5.01},
		{Lat: 52.005, Lon: 4.99},
	}
}

func TestNewDropsClosingDuplicate(t *testing.T) {
	ring := append(squareRing(), models.LatLon{Lat: 51.995, Lon: 4.99})
	b, err := New(ring)
	require.NoError(t, err)
	assert.Len(t, b.Ring, 4)
}

func TestNewDegenerate(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrDegenerate)

	_, err = New([]models.LatLon{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}})
	assert.ErrorIs(t, err, ErrDegenerate)

	// a closed two-vertex ring is still degenerate after dropping the dup
	_, err = New([]models.LatLon{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}, {Lat: 1, Lon: 1}})
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestContainsLatLon(t *testing.T) {
	b, err := New(squareRing())
	require.NoError(t, err)

	assert.True(t, b.ContainsLatLon(52.0, 5.0))
	assert.True(t, b.ContainsLatLon(51.996, 4.991))
	assert.False(t, b.ContainsLatLon(52.1, 5.0))
	assert.False(t, b.ContainsLatLon(52.0, 5.1))
	assert.False(t, b.ContainsLatLon(-52.0, 5.0))
}

func TestClassifyGeodeticPartitions(t *testing.T) {
	b, err := New(squareRing())
	require.NoError(t, err)

	r := rand.New(rand.NewSource(11))
	points := make([]models.RawPoint, 1000)
	wantInside := 0
	for i := range points {
		// scatter over a box twice the boundary's extent
		points[i] = models.RawPoint{
			Lat: 51.99 + r.Float64()*0.02,
			Lon: 4.98 + r.Float64()*0.04,
		}
		if b.ContainsLatLon(points[i].Lat, points[i].Lon) {
			wantInside++
		}
	}
	require.Positive(t, wantInside)
	require.Less(t, wantInside, len(points))

	res := ClassifyGeodetic(context.Background(), b, points, batch.Options{Workers: 4, BatchSize: 50})
	assert.True(t, res.Success)
	assert.Equal(t, len(points), len(res.Inside)+len(res.Outside),
		"every point is classified exactly once")
	assert.Len(t, res.Inside, wantInside)

	for _, i := range res.Inside {
		assert.True(t, b.ContainsLatLon(points[i].Lat, points[i].Lon))
	}
	for _, i := range res.Outside {
		assert.False(t, b.ContainsLatLon(points[i].Lat, points[i].Lon))
	}
}

func TestClassifyProjectedAgreesWithGeodetic(t *testing.T) {
	b, err := New(squareRing())
	require.NoError(t, err)
	lp := proj.NewLocalPlane(52.0, 5.0)

	r := rand.New(rand.NewSource(13))
	raw := make([]models.RawPoint, 500)
	projected := make([]models.SurveyPoint, 500)
	for i := range raw {
		raw[i] = models.RawPoint{
			Lat: 51.99 + r.Float64()*0.02,
			Lon: 4.98 + r.Float64()*0.04,
		}
		projected[i] = lp.ToPlane(raw[i])
	}

	geo := ClassifyGeodetic(context.Background(), b, raw, batch.Options{})
	pl := ClassifyProjected(context.Background(), b, lp, projected, batch.Options{})

	assert.Equal(t, len(geo.Inside), len(pl.Inside),
		"planar and geodetic membership should agree away from the edges")
}

func TestPointInRing(t *testing.T) {
	ring := [][2]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}}

	assert.True(t, pointInRing(ring, 5, 5))
	assert.True(t, pointInRing(ring, 0.001, 0.001))
	assert.False(t, pointInRing(ring, -1, 5))
	assert.False(t, pointInRing(ring, 11, 5))
	assert.False(t, pointInRing(ring, 5, 20))
}

func TestPointInConcaveRing(t *testing.T) {
	// U shape: the notch between the arms is outside
	ring := [][2]float64{
		{0, 0}, {10, 0}, {10, 10}, {7, 10}, {7, 3}, {3, 3}, {3, 10}, {0, 10},
	}
	assert.True(t, pointInRing(ring, 1, 5))
	assert.True(t, pointInRing(ring, 9, 5))
	assert.True(t, pointInRing(ring, 5, 1))
	assert.False(t, pointInRing(ring, 5, 5), "the notch is outside")
}

func TestFromGeoJSONFeatureCollection(t *testing.T) {
	data := `{
	  "type": "FeatureCollection",
	  "features": [
	    {"type": "Feature", "properties": {"name": "field"},
	     "geometry": {"type": "Polygon", "coordinates": [
	       [[4.99, 51.995], [5.01, 51.995], [5.01, 52.005], [4.99, 52.005], [4.99, 51.995]]
	     ]}}
	  ]
	}`
	path := filepath.Join(t.TempDir(), "field.geojson")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	b, err := FromGeoJSON(path)
	require.NoError(t, err)
	assert.Len(t, b.Ring, 4)
	assert.True(t, b.ContainsLatLon(52.0, 5.0))
}

func TestFromGeoJSONBareGeometry(t *testing.T) {
	data := `{"type": "Polygon", "coordinates": [
	  [[4.99, 51.995], [5.01, 51.995], [5.01, 52.005], [4.99, 52.005], [4.99, 51.995]]
	]}`
	path := filepath.Join(t.TempDir(), "field.geojson")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	b, err := FromGeoJSON(path)
	require.NoError(t, err)
	assert.True(t, b.ContainsLatLon(52.0, 5.0))
}

func TestFromGeoJSONNoPolygon(t *testing.T) {
	data := `{"type": "FeatureCollection", "features": [
	  {"type": "Feature", "geometry": {"type": "Point", "coordinates": [5.0, 52.0]}}
	]}`
	path := filepath.Join(t.TempDir(), "point.geojson")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := FromGeoJSON(path)
	assert.Error(t, err)
}

func TestFromGeoJSONMissingFile(t *testing.T) {
	_, err := FromGeoJSON("/nonexistent/boundary.geojson")
	assert.Error(t, err)
}
