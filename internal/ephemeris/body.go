package ephemeris

import (
	"fmt"
	"strings"

	"github.com/syt1126/StarLink-Pro-app/internal/fault"
)

// Body identifies one of the bodies the engine can locate.
type Body int

const (
	Sun Body = iota + 1
	Moon
	Mars
)

var bodyNames = map[Body]string{
	Sun:  "Sun",
	Moon: "Moon",
	Mars: "Mars",
}

func (b Body) String() string {
	if s, ok := bodyNames[b]; ok {
		return s
	}
	return fmt.Sprintf("Body(%d)", int(b))
}

// Bodies returns the supported bodies in display order.
func Bodies() []Body {
	return []Body{Sun, Moon, Mars}
}

// ParseBody resolves a body name, ignoring case and surrounding space.
func ParseBody(name string) (Body, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sun":
		return Sun, nil
	case "moon":
		return Moon, nil
	case "mars":
		return Mars, nil
	}
	return 0, fault.New(fault.InputError, "ephemeris.parse", fmt.Sprintf("unknown body %q", name))
}

// MarshalText implements encoding.TextMarshaler.
func (b Body) MarshalText() ([]byte, error) {
	if _, ok := bodyNames[b]; !ok {
		return nil, fmt.Errorf("invalid body %d", int(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Body) UnmarshalText(text []byte) error {
	v, err := ParseBody(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}
