package offset

import (
	"math"

	"github.com/dpup/intel-overlay/server/internal/lib/geo"
)

// Krasovsky 1940 ellipsoid: a = 6378245.0, 1/f = 298.3, ee = (a^2 - b^2) / a^2
const (
	semiMajorAxis = 6378245.0
	eccentricity2 = 0.00669342162296594323
)

// China bounding box. Points outside it get no correction.
const (
	minLng = 72.004
	maxLng = 137.8347
	minLat = 0.8293
	maxLat = 55.8271
)

// IsOutOfChina reports whether the point lies outside the bounding box where GCJ-02 applies
func IsOutOfChina(lat, lng float64) bool {
	if lng < minLng || lng > maxLng {
		return true
	}
	if lat < minLat || lat > maxLat {
		return true
	}
	return false
}

// Transform converts a WGS-84 coordinate to GCJ-02. Outside China it is the identity.
func Transform(lat, lng float64) geo.Point {
	if IsOutOfChina(lat, lng) {
		return geo.Point{Latitude: lat, Longitude: lng}
	}
	dLat, dLng := Delta(lat, lng)
	return geo.Point{Latitude: lat + dLat, Longitude: lng + dLng}
}

// TransformPoint is Transform for a geo.Point
func TransformPoint(p geo.Point) geo.Point {
	return Transform(p.Latitude, p.Longitude)
}

// Delta returns the GCJ-02 correction in degrees for a WGS-84 coordinate.
// It does not consult the bounding box.
func Delta(lat, lng float64) (dLat, dLng float64) {
	x, y := lng-105.0, lat-35.0
	dLat = transformLat(x, y)
	dLng = transformLng(x, y)

	radLat := lat / 180.0 * math.Pi
	magic := math.Sin(radLat)
	magic = 1 - eccentricity2*magic*magic
	sqrtMagic := math.Sqrt(magic)

	dLat = (dLat * 180.0) / ((semiMajorAxis * (1 - eccentricity2)) / (magic * sqrtMagic) * math.Pi)
	dLng = (dLng * 180.0) / (semiMajorAxis / sqrtMagic * math.Cos(radLat) * math.Pi)
	return dLat, dLng
}

func transformLat(x, y float64) float64 {
	ret := -100.0 + 2.0*x + 3.0*y + 0.2*y*y + 0.1*x*y + 0.2*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(y*math.Pi) + 40.0*math.Sin(y/3.0*math.Pi)) * 2.0 / 3.0
	ret += (160.0*math.Sin(y/12.0*math.Pi) + 320*math.Sin(y*math.Pi/30.0)) * 2.0 / 3.0
	return ret
}

func transformLng(x, y float64) float64 {
	ret := 300.0 + x + 2.0*y + 0.1*x*x + 0.1*x*y + 0.1*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(x*math.Pi) + 40.0*math.Sin(x/3.0*math.Pi)) * 2.0 / 3.0
	ret += (150.0*math.Sin(x/12.0*math.Pi) + 300.0*math.Sin(x/30.0*math.Pi)) * 2.0 / 3.0
	return ret
}

const (
	reverseTolerance = 1e-9
	reverseMaxRounds = 10
)

// Reverse approximates the WGS-84 coordinate whose GCJ-02 image is (lat, lng).
// There is no closed-form inverse, so the guess is refined until its forward
// transform lands within reverseTolerance of the input.
func Reverse(lat, lng float64) geo.Point {
	if IsOutOfChina(lat, lng) {
		return geo.Point{Latitude: lat, Longitude: lng}
	}

	guess := geo.Point{Latitude: lat, Longitude: lng}
	for i := 0; i < reverseMaxRounds; i++ {
		fwd := TransformPoint(guess)
		errLat := fwd.Latitude - lat
		errLng := fwd.Longitude - lng
		if math.Abs(errLat) < reverseTolerance && math.Abs(errLng) < reverseTolerance {
			break
		}
		guess.Latitude -= errLat
		guess.Longitude -= errLng
	}
	return guess
}
