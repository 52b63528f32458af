package proj

import (
	"fmt"
	"math"
)

// UTM holds an approximate UTM coordinate pair with its zone.
type UTM struct {
	Easting  float64
	Northing float64
	Zone     int
	North    bool
}

// EPSG returns the WGS84/UTM EPSG code for the zone (326xx north, 327xx
// south), usable as a raster projected-CS key.
func (u UTM) EPSG() int {
	if u.North {
		return 32600 + u.Zone
	}
	return 32700 + u.Zone
}

func (u UTM) String() string {
	hemi := "N"
	if !u.North {
		hemi = "S"
	}
	return fmt.Sprintf("UTM zone %d%s E=%.2f N=%.2f", u.Zone, hemi, u.Easting, u.Northing)
}

// UTMZone returns the UTM zone number for a location.
func UTMZone(lat, lon float64) int {
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone < 1 {
		zone = 1
	}
	if zone > 60 {
		zone = 60
	}
	return zone
}

// ApproxUTM converts WGS84 degrees to UTM using the classical truncated
// Krüger series. Accuracy is well under a meter inside a zone, which is
// acceptable for raster georeferencing but not for survey-grade geodesy;
// deployments needing full reprojection should use a proper
// reference-system library instead of this fallback.
func ApproxUTM(lat, lon float64) UTM {
	zone := UTMZone(lat, lon)
	lon0 := float64(zone-1)*6 - 180 + 3 // central meridian

	a := wgs84A
	f := wgs84F
	e2 := f * (2 - f)
	ep2 := e2 / (1 - e2)
	k0 := 0.9996

	phi := lat * math.Pi / 180
	dLam := (lon - lon0) * math.Pi / 180

	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)
	tanPhi := math.Tan(phi)

	n := a / math.Sqrt(1-e2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := ep2 * cosPhi * cosPhi
	A := cosPhi * dLam

	// meridional arc
	m := a * ((1-e2/4-3*e2*e2/64-5*e2*e2*e2/256)*phi -
		(3*e2/8+3*e2*e2/32+45*e2*e2*e2/1024)*math.Sin(2*phi) +
		(15*e2*e2/256+45*e2*e2*e2/1024)*math.Sin(4*phi) -
		(35*e2*e2*e2/3072)*math.Sin(6*phi))

	easting := k0*n*(A+(1-t+c)*A*A*A/6+
		(5-18*t+t*t+72*c-58*ep2)*A*A*A*A*A/120) + 500000

	northing := k0 * (m + n*tanPhi*(A*A/2+
		(5-t+9*c+4*c*c)*A*A*A*A/24+
		(61-58*t+t*t+600*c-330*ep2)*A*A*A*A*A*A/720))

	north := lat >= 0
	if !north {
		northing += 10000000
	}
	return UTM{Easting: easting, Northing: northing, Zone: zone, North: north}
}
