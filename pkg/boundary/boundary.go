// Package boundary tests point membership against a field boundary
// polygon. Geodetic membership uses an s2 loop; projected membership uses a
// planar ray cast. Both run through the batch engine so large collections
// are classified in parallel.
package boundary

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/golang/geo/s2"
	geojson "github.com/paulmach/go.geojson"

	"github.com/kass/go-field-surface/pkg/batch"
	"github.com/kass/go-field-surface/pkg/models"
	"github.com/kass/go-field-surface/pkg/proj"
)

// ErrDegenerate is returned for a boundary with fewer than three vertices.
var ErrDegenerate = errors.New("boundary polygon needs at least 3 vertices")

// Boundary is a simple polygon in WGS84 degrees. The ring is open: the
// closing edge back to the first vertex is implied.
type Boundary struct {
	Ring []models.LatLon

	loop *s2.Loop
}

// New validates a ring and builds the boundary. Degenerate rings are an
// input-validation error; no operation starts on one.
func New(ring []models.LatLon) (*Boundary, error) {
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1] // drop the closing duplicate
	}
	if len(ring) < 3 {
		return nil, ErrDegenerate
	}
	pts := make([]s2.Point, len(ring))
	for i, v := range ring {
		pts[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(v.Lat, v.Lon))
	}
	loop := s2.LoopFromPoints(pts)
	loop.Normalize()
	return &Boundary{Ring: ring, loop: loop}, nil
}

// FromGeoJSON loads the first polygon found in a GeoJSON file.
func FromGeoJSON(path string) (*Boundary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boundary file: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		// allow bare geometry files too
		g, gerr := geojson.UnmarshalGeometry(data)
		if gerr != nil {
			return nil, fmt.Errorf("decode boundary geojson: %w", err)
		}
		return fromGeometry(g)
	}
	for _, f := range fc.Features {
		if f.Geometry != nil && f.Geometry.IsPolygon() {
			return fromGeometry(f.Geometry)
		}
	}
	return nil, errors.New("no polygon feature in boundary file")
}

func fromGeometry(g *geojson.Geometry) (*Boundary, error) {
	if !g.IsPolygon() || len(g.Polygon) == 0 {
		return nil, errors.New("boundary geometry is not a polygon")
	}
	outer := g.Polygon[0] // holes are ignored
	ring := make([]models.LatLon, 0, len(outer))
	for _, c := range outer {
		if len(c) < 2 {
			continue
		}
		ring = append(ring, models.LatLon{Lat: c[1], Lon: c[0]})
	}
	return New(ring)
}

// ContainsLatLon reports geodetic membership of a single location.
func (b *Boundary) ContainsLatLon(lat, lon float64) bool {
	return b.loop.ContainsPoint(s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon)))
}

// ProjectedRing maps the ring onto a local tangent plane for planar tests.
func (b *Boundary) ProjectedRing(lp *proj.LocalPlane) [][2]float64 {
	ring := make([][2]float64, len(b.Ring))
	for i, v := range b.Ring {
		sp := lp.ToPlane(models.RawPoint{Lat: v.Lat, Lon: v.Lon})
		ring[i] = [2]float64{sp.Easting, sp.Northing}
	}
	return ring
}

// pointInRing is the even-odd ray cast on plane coordinates.
func pointInRing(ring [][2]float64, x, y float64) bool {
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > y) != (yj > y) &&
			x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

// ClassifyGeodetic splits raw points into inside/outside index sets using
// the s2 loop. inside+outside always covers every completed batch.
func ClassifyGeodetic(ctx context.Context, b *Boundary, points []models.RawPoint, opts batch.Options) *models.BoundaryResult {
	if opts.Phase == "" {
		opts.Phase = "boundary"
	}
	f := batch.Filter(ctx, points, func(p models.RawPoint) bool {
		return b.ContainsLatLon(p.Lat, p.Lon)
	}, opts)
	return toBoundaryResult(f)
}

// ClassifyProjected splits projected points into inside/outside index sets
// with a planar ray cast against the ring projected on the same plane.
func ClassifyProjected(ctx context.Context, b *Boundary, lp *proj.LocalPlane, points []models.SurveyPoint, opts batch.Options) *models.BoundaryResult {
	if opts.Phase == "" {
		opts.Phase = "boundary"
	}
	ring := b.ProjectedRing(lp)
	f := batch.Filter(ctx, points, func(p models.SurveyPoint) bool {
		return pointInRing(ring, p.Easting, p.Northing)
	}, opts)
	return toBoundaryResult(f)
}

func toBoundaryResult(f *models.FilterResult) *models.BoundaryResult {
	return &models.BoundaryResult{
		RunStatus: f.RunStatus,
		Inside:    f.Kept,
		Outside:   f.Excluded,
	}
}
