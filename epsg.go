package rtc

import "math"

// EPSG codes of the polar stereographic grids used beyond ±75° latitude.
const (
	epsgPolarNorth = 3413
	epsgPolarSouth = 3031
)

// PointEPSG returns the projection EPSG code for a geographic point: polar
// stereographic beyond ±75° latitude, otherwise the UTM zone containing the
// point. Points exactly on the equator have no UTM hemisphere and yield
// ErrAmbiguousHemisphere.
func PointEPSG(lat, lon float64) (int, error) {
	lon = wrapLongitude(lon)

	var epsg int
	switch {
	case lat >= 75:
		epsg = epsgPolarNorth
	case lat <= -75:
		epsg = epsgPolarSouth
	case lat > 0:
		epsg = 32601 + utmZoneIndex(lon)
	case lat < 0:
		epsg = 32701 + utmZoneIndex(lon)
	default:
		return 0, ErrAmbiguousHemisphere{Lat: lat, Lon: lon}
	}
	if epsg < 1024 || epsg > 32767 {
		return 0, ErrInvariantViolation{msg: "computed EPSG is out of range"}
	}
	return epsg, nil
}

// utmZoneIndex rounds half-to-even so that points exactly on a zone
// boundary resolve deterministically to the lower zone.
func utmZoneIndex(lon float64) int {
	return int(math.RoundToEven((lon + 177) / 6))
}

// wrapLongitude maps a longitude into [-180, 180).
func wrapLongitude(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
