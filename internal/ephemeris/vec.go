package ephemeris

import (
	"math"

	"github.com/syt1126/StarLink-Pro-app/internal/astro"
)

type vec3 struct {
	x, y, z float64
}

// sphericalToVec returns the unit vector for longitude/latitude in degrees.
func sphericalToVec(lonDeg, latDeg float64) vec3 {
	sinLon, cosLon := math.Sincos(lonDeg * astro.Deg2Rad)
	sinLat, cosLat := math.Sincos(latDeg * astro.Deg2Rad)
	return vec3{
		x: cosLon * cosLat,
		y: sinLon * cosLat,
		z: sinLat,
	}
}

// rotateX rotates the vector about the x axis by angle radians
// (ecliptic → equatorial for angle = obliquity).
func (v vec3) rotateX(angle float64) vec3 {
	s, c := math.Sincos(angle)
	return vec3{
		x: v.x,
		y: v.y*c - v.z*s,
		z: v.y*s + v.z*c,
	}
}

func (v vec3) add(o vec3) vec3 {
	return vec3{v.x + o.x, v.y + o.y, v.z + o.z}
}

func (v vec3) scale(k float64) vec3 {
	return vec3{v.x * k, v.y * k, v.z * k}
}

func (v vec3) norm() float64 {
	return math.Sqrt(v.x*v.x + v.y*v.y + v.z*v.z)
}
