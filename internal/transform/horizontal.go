package transform

import (
	"fmt"
	"math"

	"github.com/syt1126/StarLink-Pro-app/internal/astro"
	"github.com/syt1126/StarLink-Pro-app/internal/fault"
)

// roundingSlack is how far |sin(alt)| may exceed 1 from floating-point
// rounding before it counts as a fault. At the zenith the sum of products
// lands a few ulps above 1.
const roundingSlack = 1e-12

// ToHorizontal converts equatorial coordinates to azimuth/altitude for obs at
// the Julian Date jd.
//
// Azimuth is measured clockwise from North and comes from atan2 of the two
// horizontal projection terms, so declinations of exactly ±90° and the
// observer's own pole are handled without a tangent singularity.
func ToHorizontal(eq astro.Equatorial, obs Observer, jd float64) (astro.Horizontal, error) {
	const op = "transform.horizontal"

	if !astro.Finite(eq.RA, eq.Dec, obs.Latitude, obs.Longitude) {
		return astro.Horizontal{}, fault.New(fault.InputError, op, "non-finite coordinate or observer")
	}
	if eq.Dec < -90 || eq.Dec > 90 {
		return astro.Horizontal{}, fault.New(fault.InputError, op, fmt.Sprintf("declination %v outside [-90, 90]", eq.Dec))
	}
	if err := obs.Validate(); err != nil {
		return astro.Horizontal{}, err
	}
	if !astro.Finite(jd) {
		return astro.Horizontal{}, fault.New(fault.MathFault, op, fmt.Sprintf("non-finite julian date %v", jd))
	}

	lst := LSTDegrees(jd, obs.Longitude)
	ha := (lst - eq.RA) * astro.Deg2Rad

	sinDec, cosDec := math.Sincos(eq.Dec * astro.Deg2Rad)
	sinLat, cosLat := math.Sincos(obs.Latitude * astro.Deg2Rad)
	sinHA, cosHA := math.Sincos(ha)

	sinAlt := sinDec*sinLat + cosDec*cosLat*cosHA
	switch {
	case math.IsNaN(sinAlt) || math.Abs(sinAlt) > 1+roundingSlack:
		return astro.Horizontal{}, fault.New(fault.MathFault, op, fmt.Sprintf("sin(alt) %v outside [-1, 1]", sinAlt))
	case sinAlt > 1:
		sinAlt = 1
	case sinAlt < -1:
		sinAlt = -1
	}
	alt := math.Asin(sinAlt)

	// Components of the direction in the horizon plane: east (y) and north (x).
	y := -cosDec * sinHA
	x := sinDec*cosLat - cosDec*sinLat*cosHA
	az := math.Atan2(y, x)

	h := astro.Horizontal{
		Azimuth:  astro.Normalize360(az * astro.Rad2Deg),
		Altitude: alt * astro.Rad2Deg,
	}
	if !astro.Finite(h.Azimuth, h.Altitude) {
		return astro.Horizontal{}, fault.New(fault.MathFault, op, "non-finite horizontal coordinate")
	}
	return h, nil
}
