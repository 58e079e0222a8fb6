package transform

import (
	"math"

	"github.com/syt1126/StarLink-Pro-app/internal/astro"
)

// GMSTHours calculates Greenwich Mean Sidereal Time in hours [0, 24) for a
// Julian Date, using the linear rate form:
//
//	GMST = 18.697374558 + 24.06570982441908 * (JD - 2451545.0)   (mod 24)
//
// The quadratic IAU-82 terms amount to well under a second near J2000 and are
// dropped.
func GMSTHours(jd float64) float64 {
	h := math.Mod(18.697374558+24.06570982441908*astro.DaysSinceJ2000(jd), 24.0)
	if h < 0 {
		h += 24.0
	}
	return h
}

// LSTDegrees returns Local Sidereal Time in degrees [0, 360) for an observer
// at east longitude lonDeg.
func LSTDegrees(jd, lonDeg float64) float64 {
	return astro.Normalize360(GMSTHours(jd)*15.0 + lonDeg)
}
