package ephemeris

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/soniakeys/meeus/v3/coord"
	"github.com/soniakeys/meeus/v3/moonposition"
	"github.com/soniakeys/meeus/v3/solar"

	"github.com/syt1126/StarLink-Pro-app/internal/astro"
	"github.com/syt1126/StarLink-Pro-app/internal/fault"
)

// separationDeg returns the great-circle angle between two equatorial
// positions given in radians.
func separationDeg(ra1, dec1, ra2, dec2 float64) float64 {
	c := math.Sin(dec1)*math.Sin(dec2) + math.Cos(dec1)*math.Cos(dec2)*math.Cos(ra1-ra2)
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c) * astro.Rad2Deg
}

func TestPositionRanges(t *testing.T) {
	start := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2060, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, body := range Bodies() {
		t.Run(body.String(), func(t *testing.T) {
			n := 0
			for tm := start; tm.Before(end); tm = tm.Add(97*time.Hour + 13*time.Minute) {
				jd := astro.JulianDate(tm)
				eq, err := Position(body, jd)
				if err != nil {
					t.Fatalf("Position(%v, %.5f): %v", body, jd, err)
				}
				if eq.RA < 0 || eq.RA >= 360 {
					t.Fatalf("RA %.6f out of [0,360) at %v", eq.RA, tm)
				}
				if eq.Dec < -90 || eq.Dec > 90 {
					t.Fatalf("Dec %.6f out of [-90,90] at %v", eq.Dec, tm)
				}
				n++
			}
			if n == 0 {
				t.Fatal("no samples evaluated")
			}
		})
	}
}

// TestSunJ2000 checks the Sun at the J2000.0 epoch against published values
// (RA 18h45m ≈ 281.3°, Dec ≈ -23.0°).
func TestSunJ2000(t *testing.T) {
	eq, err := Position(Sun, astro.J2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(eq.RA-281.29) > 0.5 {
		t.Errorf("RA = %.4f, want ~281.29", eq.RA)
	}
	if math.Abs(eq.Dec-(-23.03)) > 0.5 {
		t.Errorf("Dec = %.4f, want ~-23.03", eq.Dec)
	}
}

// TestSunAgainstMeeus compares the Sun with the meeus solar theory.
func TestSunAgainstMeeus(t *testing.T) {
	times := []time.Time{
		time.Date(2024, 3, 20, 3, 6, 0, 0, time.UTC),
		time.Date(2024, 6, 21, 4, 25, 0, 0, time.UTC),
		time.Date(2025, 9, 22, 18, 19, 0, 0, time.UTC),
		time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		time.Date(2030, 12, 21, 15, 9, 0, 0, time.UTC),
	}

	for _, tm := range times {
		t.Run(tm.Format(time.RFC3339), func(t *testing.T) {
			jd := astro.JulianDate(tm)
			eq, err := Position(Sun, jd)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			α, δ := solar.ApparentEquatorial(jd)
			sep := separationDeg(eq.RA*astro.Deg2Rad, eq.Dec*astro.Deg2Rad, α.Rad(), δ.Rad())
			if sep > 1.0 {
				t.Errorf("Sun off by %.3f° (got RA %.3f Dec %.3f, meeus RA %.3f Dec %.3f)",
					sep, eq.RA, eq.Dec, α.Rad()*astro.Rad2Deg, δ.Rad()*astro.Rad2Deg)
			}
		})
	}
}

// TestSunElementEpoch pins the Sun's elements to 1999 Dec 31.0. The same
// elements evaluated from J2000.0 put the Sun about 1.6° off, outside the
// 1° agreement with meeus.
func TestSunElementEpoch(t *testing.T) {
	if sunElementEpoch != astro.J2000-1.5 {
		t.Fatalf("sunElementEpoch = %v, want J2000 - 1.5", sunElementEpoch)
	}

	// At the epoch itself only the constant terms contribute.
	e := 0.016709
	E := keplerOneStep(356.0470*astro.Deg2Rad, e)
	v := math.Atan2(math.Sin(E)*math.Sqrt(1-e*e), math.Cos(E)-e) * astro.Rad2Deg
	want := astro.Normalize360(v + 282.9404)
	if lon, _ := sunEcliptic(sunElementEpoch); math.Abs(lon-want) > 1e-9 {
		t.Errorf("longitude at epoch = %.9f, want %.9f", lon, want)
	}

	jd := astro.J2000
	α, δ := solar.ApparentEquatorial(jd)

	got, err := Position(Sun, jd)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if sep := separationDeg(got.RA*astro.Deg2Rad, got.Dec*astro.Deg2Rad, α.Rad(), δ.Rad()); sep > 1 {
		t.Errorf("Sun at J2000 off meeus by %.3f°", sep)
	}

	lon, _ := sunEcliptic(jd - (astro.J2000 - sunElementEpoch))
	shifted, err := eclipticToEquatorial("sun", sphericalToVec(lon, 0), 1, obliquity(0))
	if err != nil {
		t.Fatalf("eclipticToEquatorial: %v", err)
	}
	if sep := separationDeg(shifted.RA*astro.Deg2Rad, shifted.Dec*astro.Deg2Rad, α.Rad(), δ.Rad()); sep < 1 {
		t.Errorf("J2000-referred Sun within %.3f° of meeus; epoch no longer matters", sep)
	}
}

// TestMoonAgainstMeeus compares the single-term lunar model with the full
// meeus lunar theory. The omitted evection and variation terms reach about
// two degrees.
func TestMoonAgainstMeeus(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 60; i++ {
		tm := start.Add(time.Duration(i) * 29 * time.Hour)
		jd := astro.JulianDate(tm)

		eq, err := Position(Moon, jd)
		if err != nil {
			t.Fatalf("unexpected error at %v: %v", tm, err)
		}

		λ, β, _ := moonposition.Position(jd)
		ε := obliquity(astro.DaysSinceJ2000(jd))
		α, δ := coord.EclToEq(λ, β, math.Sin(ε), math.Cos(ε))

		sep := separationDeg(eq.RA*astro.Deg2Rad, eq.Dec*astro.Deg2Rad, α.Rad(), δ.Rad())
		if sep > 4.0 {
			t.Errorf("%v: Moon off by %.3f°", tm.Format(time.RFC3339), sep)
		}
	}
}

// TestMarsOpposition2003 checks Mars at its 2003 close approach
// (RA 22h38m ≈ 339.5°, Dec ≈ -15.8°).
func TestMarsOpposition2003(t *testing.T) {
	jd := astro.JulianDate(time.Date(2003, 8, 27, 10, 0, 0, 0, time.UTC))
	eq, err := Position(Mars, jd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sep := separationDeg(eq.RA*astro.Deg2Rad, eq.Dec*astro.Deg2Rad, 339.5*astro.Deg2Rad, -15.8*astro.Deg2Rad)
	if sep > 2.0 {
		t.Errorf("Mars off by %.3f° (RA %.3f Dec %.3f)", sep, eq.RA, eq.Dec)
	}
}

// TestMarsNearEcliptic verifies Mars stays close to the ecliptic band.
func TestMarsNearEcliptic(t *testing.T) {
	start := astro.JulianDate(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	for i := 0; i < 800; i++ {
		eq, err := Position(Mars, start+float64(i)*3.7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(eq.Dec) > 30 {
			t.Errorf("day %d: Mars Dec %.3f outside ecliptic band", i, eq.Dec)
		}
	}
}

func TestPositionMathFault(t *testing.T) {
	for _, jd := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		for _, body := range Bodies() {
			eq, err := Position(body, jd)
			if err == nil {
				t.Errorf("Position(%v, %v) = %+v, want MathFault", body, jd, eq)
				continue
			}
			if !errors.Is(err, fault.ErrMath) {
				t.Errorf("Position(%v, %v) error = %v, want MathFault", body, jd, err)
			}
			if eq != (astro.Equatorial{}) {
				t.Errorf("faulted result should be zero value, got %+v", eq)
			}
		}
	}
}

func TestPositionUnknownBody(t *testing.T) {
	_, err := Position(Body(42), astro.J2000)
	if !fault.Is(err, fault.InputError) {
		t.Errorf("error = %v, want InputError", err)
	}
}

func TestAsinDegDomain(t *testing.T) {
	if _, err := asinDeg("test", 1.0000001); !errors.Is(err, fault.ErrMath) {
		t.Errorf("asinDeg(>1) error = %v, want MathFault", err)
	}
	if _, err := asinDeg("test", math.NaN()); !errors.Is(err, fault.ErrMath) {
		t.Errorf("asinDeg(NaN) error = %v, want MathFault", err)
	}
	got, err := asinDeg("test", 1)
	if err != nil || got != 90 {
		t.Errorf("asinDeg(1) = %v, %v; want 90, nil", got, err)
	}
}

func TestParseBody(t *testing.T) {
	tests := []struct {
		in      string
		want    Body
		wantErr bool
	}{
		{"Sun", Sun, false},
		{" moon ", Moon, false},
		{"MARS", Mars, false},
		{"Jupiter", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBody(tt.in)
			if tt.wantErr {
				if !fault.Is(err, fault.InputError) {
					t.Errorf("ParseBody(%q) error = %v, want InputError", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseBody(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestBodyText(t *testing.T) {
	var b Body
	if err := b.UnmarshalText([]byte("mars")); err != nil || b != Mars {
		t.Fatalf("UnmarshalText = %v, %v", b, err)
	}
	text, err := Moon.MarshalText()
	if err != nil || string(text) != "Moon" {
		t.Errorf("MarshalText = %q, %v", text, err)
	}
	if _, err := Body(0).MarshalText(); err == nil {
		t.Error("MarshalText of zero body should fail")
	}
}
