package astro

import (
	"math"
	"time"

	"github.com/syt1126/StarLink-Pro-app/internal/clock"
)

// J2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00).
const J2000 = 2451545.0

// JulianDate returns the Julian Date of t, read in UTC. The calendar part
// follows the Gregorian reform, so instants before 15 October 1582 are not
// meaningful; the time of day is added as a fraction of a day.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	year, month, day := t.Date()
	y, m := float64(year), float64(month)

	// The leap day is last in a March-based year.
	if month <= time.February {
		y--
		m += 12
	}

	century := math.Floor(y / 100)
	gregorian := 2 - century + math.Floor(century/4)
	midnight := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + float64(day) + gregorian - 1524.5

	sinceMidnight := t.Sub(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
	return midnight + sinceMidnight.Hours()/24
}

// CurrentJulianDate returns the Julian Date of c.Now(). It is recomputed on
// every call.
func CurrentJulianDate(c clock.Clock) float64 {
	return JulianDate(c.Now())
}

// DaysSinceJ2000 returns the (fractional) number of days between jd and J2000.0.
func DaysSinceJ2000(jd float64) float64 {
	return jd - J2000
}
