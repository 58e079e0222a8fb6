package platesolve

import (
	"fmt"
	"strings"
)

// Phase is a stage of a solve job. Phases only move forward.
type Phase int

const (
	Created Phase = iota
	AuthenticatingSession
	UploadingImage
	AwaitingJobAssignment
	PollingJobStatus
	Succeeded
	Failed
	TimedOut
	Cancelled
)

var phaseNames = [...]string{
	Created:               "created",
	AuthenticatingSession: "authenticating session",
	UploadingImage:        "uploading image",
	AwaitingJobAssignment: "awaiting job assignment",
	PollingJobStatus:      "polling job status",
	Succeeded:             "succeeded",
	Failed:                "failed",
	TimedOut:              "timed out",
	Cancelled:             "cancelled",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Terminal reports whether no further transitions can happen.
func (p Phase) Terminal() bool {
	return p >= Succeeded
}

// label is the metric label form of the phase name.
func (p Phase) label() string {
	return strings.ReplaceAll(p.String(), " ", "_")
}

// MarshalText encodes the phase as its name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for i, name := range phaseNames {
		if name == s {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", s)
}
