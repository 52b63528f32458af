// Package models defines the shared data types of the survey pipeline:
// point records, rectangles and the result envelopes returned by every
// long-running operation.
package models

// RawPoint is a validated positioning record as it comes out of the
// sentence parser. It is immutable after construction; projection never
// mutates it but produces a SurveyPoint instead.
type RawPoint struct {
	ReceiverID string  `json:"receiver_id"`
	Lat        float64 `json:"lat"`      // WGS84 degrees
	Lon        float64 `json:"lon"`      // WGS84 degrees
	Altitude   float64 `json:"alt"`      // meters above mean sea level
	FixQuality int     `json:"fix"`      // 0=invalid, 1=GPS, 2=DGPS, 4=RTK fixed, 5=RTK float
	Satellites int     `json:"sats"`     // satellites in use
	HDOP       float64 `json:"hdop"`     // horizontal dilution of precision
	DGPSAge    float64 `json:"dgps_age"` // seconds since last differential correction
}

// SurveyPoint is a raw point with projected plane coordinates attached.
// It is produced only by the projection transform, so a point with
// easting/northing is always fully initialized.
type SurveyPoint struct {
	RawPoint
	Easting  float64 `json:"e"` // meters, local tangent plane
	Northing float64 `json:"n"` // meters, local tangent plane
}

// LatLon is a geographic location in WGS84 degrees.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BoundingBox is a geographic rectangle in WGS84 degrees.
type BoundingBox struct {
	BottomLeft LatLon
	TopRight   LatLon
}
