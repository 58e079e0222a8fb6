// Package astro holds the time base and the coordinate value types shared by
// the ephemeris engine, the horizontal transform and the pointing encoder.
package astro

import (
	"fmt"
	"math"
)

// Equatorial is a sky position fixed relative to the stars.
// RA is in [0, 360) degrees, Dec in [-90, 90] degrees.
type Equatorial struct {
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
}

// Horizontal is a sky position relative to an observer's horizon.
// Azimuth is measured clockwise from North in [0, 360); Altitude is in [-90, 90].
type Horizontal struct {
	Azimuth  float64 `json:"azimuth"`
	Altitude float64 `json:"altitude"`
}

func (e Equatorial) String() string {
	return fmt.Sprintf("RA %.4f° Dec %.4f°", e.RA, e.Dec)
}

func (h Horizontal) String() string {
	return fmt.Sprintf("Az %.2f° Alt %.2f°", h.Azimuth, h.Altitude)
}

// Valid reports whether the coordinate is finite and inside its declared ranges.
func (e Equatorial) Valid() bool {
	return finite(e.RA) && finite(e.Dec) &&
		e.RA >= 0 && e.RA < 360 &&
		e.Dec >= -90 && e.Dec <= 90
}

const (
	// Deg2Rad converts degrees to radians.
	Deg2Rad = math.Pi / 180.0
	// Rad2Deg converts radians to degrees.
	Rad2Deg = 180.0 / math.Pi
)

// Normalize360 maps an angle in degrees into [0, 360).
func Normalize360(deg float64) float64 {
	deg = math.Mod(deg, 360.0)
	if deg < 0 {
		deg += 360.0
	}
	// -1e-17 + 360 rounds to exactly 360.
	if deg >= 360.0 {
		deg = 0
	}
	return deg
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Finite reports whether every value is neither NaN nor infinite.
func Finite(xs ...float64) bool {
	for _, x := range xs {
		if !finite(x) {
			return false
		}
	}
	return true
}
