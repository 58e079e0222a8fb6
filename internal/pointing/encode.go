// Package pointing formats equatorial coordinates into the mount's wire
// command and sends it as a single UDP datagram.
//
// Wire format (ASCII, no trailing newline):
//
//	<ra>,<dec>        e.g. "83.8221,-5.3911"
//
// Both values are degrees with exactly four fractional digits. The mount never
// acknowledges a command.
package pointing

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/syt1126/StarLink-Pro-app/internal/astro"
	"github.com/syt1126/StarLink-Pro-app/internal/fault"
)

// Encode formats eq as a pointing command.
func Encode(eq astro.Equatorial) []byte {
	return []byte(fmt.Sprintf("%.4f,%.4f", eq.RA, eq.Dec))
}

// Decode parses a pointing command back into coordinates.
func Decode(payload []byte) (astro.Equatorial, error) {
	ra, dec, ok := bytes.Cut(payload, []byte(","))
	if !ok {
		return astro.Equatorial{}, fault.New(fault.InputError, "pointing.decode", fmt.Sprintf("missing separator in %q", payload))
	}
	return ParseCoordinate(string(ra), string(dec))
}

// ParseCoordinate parses user-entered RA/Dec text in degrees. Surrounding
// whitespace and a trailing degree sign are accepted; anything non-numeric is
// an InputError.
func ParseCoordinate(raText, decText string) (astro.Equatorial, error) {
	ra, err := parseDegrees(raText)
	if err != nil {
		return astro.Equatorial{}, fault.Wrap(fault.InputError, "pointing.parse", fmt.Sprintf("invalid RA %q", raText), err)
	}
	dec, err := parseDegrees(decText)
	if err != nil {
		return astro.Equatorial{}, fault.Wrap(fault.InputError, "pointing.parse", fmt.Sprintf("invalid Dec %q", decText), err)
	}
	return astro.Equatorial{RA: ra, Dec: dec}, nil
}

func parseDegrees(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "°"))
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if !astro.Finite(v) {
		return 0, fmt.Errorf("non-finite value")
	}
	return v, nil
}
