package transform

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/syt1126/StarLink-Pro-app/internal/fault"
)

// Default observer location (Hong Kong), used until a location lookup succeeds.
const (
	DefaultLatitude  = 22.3
	DefaultLongitude = 114.1
)

// Observer is a ground observer's geodetic location in degrees.
// Longitude is positive east.
type Observer struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DefaultObserver returns the built-in observer location.
func DefaultObserver() Observer {
	return Observer{Latitude: DefaultLatitude, Longitude: DefaultLongitude}
}

// Validate checks the observer lies on the globe.
func (o Observer) Validate() error {
	if math.IsNaN(o.Latitude) || o.Latitude < -90 || o.Latitude > 90 {
		return fault.New(fault.InputError, "observer", fmt.Sprintf("latitude %v outside [-90, 90]", o.Latitude))
	}
	if math.IsNaN(o.Longitude) || o.Longitude < -180 || o.Longitude > 360 {
		return fault.New(fault.InputError, "observer", fmt.Sprintf("longitude %v outside [-180, 360]", o.Longitude))
	}
	return nil
}

// ObserverStore provides lock-free access to the current observer location.
// Latitude and longitude are swapped together as one immutable snapshot, so
// readers never see a torn pair.
type ObserverStore struct {
	current atomic.Pointer[Observer]
}

// NewObserverStore creates a store holding initial.
func NewObserverStore(initial Observer) *ObserverStore {
	s := &ObserverStore{}
	s.Set(initial)
	return s
}

// Get returns the current observer snapshot.
func (s *ObserverStore) Get() Observer {
	if o := s.current.Load(); o != nil {
		return *o
	}
	return DefaultObserver()
}

// Set atomically replaces the observer. Last write wins.
func (s *ObserverStore) Set(o Observer) {
	s.current.Store(&o)
}
