// Package ephemeris computes low-precision geocentric equatorial positions of
// the Sun, the Moon and Mars from time-linear orbital elements.
//
// Accuracy is sub-degree for the Sun and Mars and a couple of degrees for the
// Moon near the J2000 epoch: enough to point a small mount, nowhere near
// arc-second ephemerides. Kepler's equation is solved with a single
// correction step on purpose.
package ephemeris

import (
	"fmt"
	"math"

	"github.com/syt1126/StarLink-Pro-app/internal/astro"
	"github.com/syt1126/StarLink-Pro-app/internal/fault"
)

// sunElementEpoch is 1999 Dec 31.0 UT, the instant the Sun's element set is
// referred to. The Moon and Mars sets are referred to J2000.0.
const sunElementEpoch = 2451543.5

// Position returns the geocentric equatorial coordinates of body at the
// Julian Date jd. A non-finite intermediate or an asin argument outside
// [-1, 1] is reported as a fault.MathFault, never as a zero coordinate.
func Position(body Body, jd float64) (astro.Equatorial, error) {
	op := "ephemeris." + body.String()
	if !astro.Finite(jd) {
		return astro.Equatorial{}, fault.New(fault.MathFault, op, fmt.Sprintf("non-finite julian date %v", jd))
	}

	d := astro.DaysSinceJ2000(jd)
	obl := obliquity(d)

	var (
		v    vec3
		dist float64
	)
	switch body {
	case Sun:
		lon, _ := sunEcliptic(jd)
		v = sphericalToVec(lon, 0)
		dist = 1
	case Moon:
		lon, lat := moonEcliptic(d)
		v = sphericalToVec(lon, lat)
		dist = 1
	case Mars:
		v = marsGeocentric(jd, d)
		dist = v.norm()
	default:
		return astro.Equatorial{}, fault.New(fault.InputError, "ephemeris.position", fmt.Sprintf("unsupported body %v", body))
	}

	return eclipticToEquatorial(op, v, dist, obl)
}

// obliquity returns the obliquity of the ecliptic in radians, d days after J2000.0.
func obliquity(d float64) float64 {
	return (23.4393 - 3.563e-7*d) * astro.Deg2Rad
}

// eclipticToEquatorial rotates an ecliptic vector about the x axis by the
// obliquity and reads off right ascension and declination. dist is the
// vector's length: 1 for the unit-sphere Sun and Moon, |v| for Mars.
func eclipticToEquatorial(op string, v vec3, dist, obl float64) (astro.Equatorial, error) {
	eq := v.rotateX(obl)

	if !astro.Finite(eq.x, eq.y, eq.z, dist) || dist == 0 {
		return astro.Equatorial{}, fault.New(fault.MathFault, op, "non-finite equatorial vector")
	}

	ra := astro.Normalize360(math.Atan2(eq.y, eq.x) * astro.Rad2Deg)
	dec, err := asinDeg(op, eq.z/dist)
	if err != nil {
		return astro.Equatorial{}, err
	}

	return astro.Equatorial{RA: ra, Dec: dec}, nil
}

// asinDeg is math.Asin in degrees that refuses out-of-domain arguments
// instead of returning NaN.
func asinDeg(op string, x float64) (float64, error) {
	if math.IsNaN(x) || x < -1 || x > 1 {
		return 0, fault.New(fault.MathFault, op, fmt.Sprintf("asin argument %v outside [-1, 1]", x))
	}
	return math.Asin(x) * astro.Rad2Deg, nil
}

// keplerOneStep returns the eccentric anomaly (radians) for mean anomaly m
// (radians) and eccentricity e using one first-order correction.
func keplerOneStep(m, e float64) float64 {
	return m + e*math.Sin(m)*(1.0+e*math.Cos(m))
}

// sunEcliptic returns the Sun's geocentric ecliptic longitude (degrees) and
// distance (AU) at jd.
func sunEcliptic(jd float64) (lon, r float64) {
	d := jd - sunElementEpoch

	w := 282.9404 + 4.70935e-5*d
	e := 0.016709 - 1.151e-9*d
	m := astro.Normalize360(356.0470+0.9856002585*d) * astro.Deg2Rad

	E := keplerOneStep(m, e)
	xv := math.Cos(E) - e
	yv := math.Sin(E) * math.Sqrt(1-e*e)

	v := math.Atan2(yv, xv) * astro.Rad2Deg
	return astro.Normalize360(v + w), math.Hypot(xv, yv)
}

// moonEcliptic returns the Moon's ecliptic longitude and latitude (degrees),
// d days after J2000.0, with one periodic term on each.
func moonEcliptic(d float64) (lon, lat float64) {
	L := astro.Normalize360(218.316 + 13.176396*d)
	M := astro.Normalize360(134.963 + 13.064993*d)
	F := astro.Normalize360(93.272 + 13.229350*d)

	lon = L + 6.289*math.Sin(M*astro.Deg2Rad)
	lat = 5.128 * math.Sin(F*astro.Deg2Rad)
	return lon, lat
}

// marsGeocentric returns Mars's geocentric ecliptic position in AU.
func marsGeocentric(jd, d float64) vec3 {
	w := 286.5016 + 2.92961e-5*d
	e := 0.093405 + 2.516e-9*d
	m := astro.Normalize360(19.3871+0.52402073*d) * astro.Deg2Rad
	a := 1.523688
	incl := (1.8496 - 8.131e-6*d) * astro.Deg2Rad
	node := (49.5581 + 2.11081e-5*d) * astro.Deg2Rad

	E := keplerOneStep(m, e)
	xv := a * (math.Cos(E) - e)
	yv := a * (math.Sqrt(1-e*e) * math.Sin(E))
	v := math.Atan2(yv, xv)
	r := math.Hypot(xv, yv)

	// Argument of latitude: true anomaly plus argument of perihelion.
	u := v + w*astro.Deg2Rad - node
	sinU, cosU := math.Sincos(u)
	sinN, cosN := math.Sincos(node)
	sinI, cosI := math.Sincos(incl)

	helio := vec3{
		x: r * (cosN*cosU - sinN*sinU*cosI),
		y: r * (sinN*cosU + cosN*sinU*cosI),
		z: r * (sinU * sinI),
	}

	sunLon, sunR := sunEcliptic(jd)
	sun := sphericalToVec(sunLon, 0).scale(sunR)

	return helio.add(sun)
}
