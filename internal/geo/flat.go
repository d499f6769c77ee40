package geo

import (
	"math"

	"github.com/surveyor-hil/asvsim/pkg/core"
)

// MetersPerDegree is the length of one degree of latitude used by the local
// equirectangular approximation. Longitude degrees shrink by cos(latitude).
const MetersPerDegree = 111320.0

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Offset moves p by north/east meters using the flat approximation around p.
func Offset(p core.GeoPoint, north, east float64) core.GeoPoint {
	return offsetFrom(p, p.Lat, north, east)
}

// offsetFrom applies the offset with longitude scaled at refLat.
func offsetFrom(p core.GeoPoint, refLat, north, east float64) core.GeoPoint {
	lat := p.Lat + north/MetersPerDegree
	lon := p.Lon + east/(MetersPerDegree*math.Cos(radians(refLat)))
	return core.GeoPoint{
		Lat: math.Max(-90, math.Min(90, lat)),
		Lon: wrapLongitude(lon),
	}
}

// localOffset returns the north/east meters from ref to p, with longitude
// scaled at refLat.
func localOffset(ref core.GeoPoint, refLat float64, p core.GeoPoint) (north, east float64) {
	north = (p.Lat - ref.Lat) * MetersPerDegree
	east = wrapLongitude(p.Lon-ref.Lon) * MetersPerDegree * math.Cos(radians(refLat))
	return north, east
}

// Distance is the flat-earth distance in meters between a and b.
func Distance(a, b core.GeoPoint) float64 {
	north, east := localOffset(a, a.Lat, b)
	return math.Hypot(north, east)
}

// Bearing is the true bearing in degrees from a to b, in [0,360).
func Bearing(a, b core.GeoPoint) float64 {
	north, east := localOffset(a, a.Lat, b)
	return NormalizeHeading(degrees(math.Atan2(east, north)))
}

// NormalizeHeading wraps h into [0,360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}

// HeadingError is the signed turn from one heading to another, in (-180,180].
// Positive means turn clockwise.
func HeadingError(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

func wrapLongitude(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
