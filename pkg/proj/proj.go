// Package proj converts geographic coordinates to plane coordinates. The
// primary projection is a local tangent plane anchored at a reference
// latitude/longitude, which is accurate over the few-kilometer extents of a
// field survey. An approximate closed-form UTM conversion is provided as a
// georeferencing fallback when no reference-system database is available.
package proj

import (
	"context"
	"errors"
	"math"

	"github.com/kass/go-field-surface/pkg/batch"
	"github.com/kass/go-field-surface/pkg/models"
)

const (
	earthRadius = 6371000.0 // m
	// WGS84 ellipsoid
	wgs84A = 6378137.0
	wgs84F = 1.0 / 298.257223563
)

// ErrNoPoints is returned when a projection run is asked to project an
// empty point set.
var ErrNoPoints = errors.New("no points to project")

// LocalPlane is a flat, locally-accurate 2D coordinate system around a
// reference location. The transform is pure; the same raw point always maps
// to the same survey point.
type LocalPlane struct {
	RefLat float64
	RefLon float64

	cosRef float64
}

// NewLocalPlane anchors a local tangent plane at the reference location.
func NewLocalPlane(refLat, refLon float64) *LocalPlane {
	return &LocalPlane{
		RefLat: refLat,
		RefLon: refLon,
		cosRef: math.Cos(refLat * math.Pi / 180),
	}
}

// PlaneFor picks a reference location at the centroid of the raw points.
func PlaneFor(points []models.RawPoint) (*LocalPlane, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	var sumLat, sumLon float64
	for _, p := range points {
		sumLat += p.Lat
		sumLon += p.Lon
	}
	n := float64(len(points))
	return NewLocalPlane(sumLat/n, sumLon/n), nil
}

// ToPlane projects one raw point onto the tangent plane.
func (lp *LocalPlane) ToPlane(p models.RawPoint) models.SurveyPoint {
	dLat := (p.Lat - lp.RefLat) * math.Pi / 180
	dLon := (p.Lon - lp.RefLon) * math.Pi / 180
	return models.SurveyPoint{
		RawPoint: p,
		Easting:  dLon * lp.cosRef * earthRadius,
		Northing: dLat * earthRadius,
	}
}

// ToGeo is the inverse of ToPlane, mapping plane coordinates back to
// WGS84 degrees.
func (lp *LocalPlane) ToGeo(easting, northing float64) models.LatLon {
	return models.LatLon{
		Lat: lp.RefLat + northing/earthRadius*180/math.Pi,
		Lon: lp.RefLon + easting/(earthRadius*lp.cosRef)*180/math.Pi,
	}
}

// Project runs the plane transform over the whole point set through the
// batch engine and returns the projected points with a result envelope.
// Output order matches input order.
func Project(ctx context.Context, lp *LocalPlane, points []models.RawPoint, opts batch.Options) ([]models.SurveyPoint, *models.ProjectionResult) {
	res := &models.ProjectionResult{}
	if len(points) == 0 {
		res.Fail("input", ErrNoPoints)
		return nil, res
	}
	if opts.Phase == "" {
		opts.Phase = "projection"
	}

	type indexed struct {
		i  int
		pt models.SurveyPoint
	}
	idx := make([]int, len(points))
	for i := range idx {
		idx[i] = i
	}
	out := batch.Run(ctx, idx, func(i int) (indexed, bool) {
		return indexed{i, lp.ToPlane(points[i])}, true
	}, opts)

	projected := make([]models.SurveyPoint, len(points))
	for _, it := range out.Items {
		projected[it.i] = it.pt
	}
	res.RunStatus = out.RunStatus
	res.Projected = len(out.Items)
	if out.Cancelled {
		// a cancelled projection leaves a partial slice; report only the
		// completed count and let the caller decide
		projected = projected[:0]
	}
	return projected, res
}
