// Package geo validates captured GPS readings for plausibility. Absence of a
// fix is modeled as nil pointers, never as sentinel coordinates.
package geo

// MaxAccuracyMeters is the worst acceptable reported accuracy for a reading.
const MaxAccuracyMeters = 100

// Reading is a captured GPS fix. Any field may be absent.
type Reading struct {
	Latitude  *float64
	Longitude *float64
	Accuracy  *float64
}

// Valid reports whether the reading passes the plausibility rules.
func (r Reading) Valid() bool {
	return IsValid(r.Latitude, r.Longitude, r.Accuracy)
}

// IsValid checks a coordinate pair plus optional accuracy. It never errors:
// missing or out-of-range data is simply invalid. Rules: both coordinates
// must be present, latitude in [-90, 90], longitude in [-180, 180], and a
// reported accuracy must not exceed MaxAccuracyMeters.
func IsValid(lat, lon, accuracy *float64) bool {
	if lat == nil || lon == nil {
		return false
	}
	if *lat < -90 || *lat > 90 {
		return false
	}
	if *lon < -180 || *lon > 180 {
		return false
	}
	if accuracy != nil && *accuracy > MaxAccuracyMeters {
		return false
	}
	return true
}
