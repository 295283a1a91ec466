package models

import "didgate/pkg/domain"

// Phase names the active variant of a ViewState.
type Phase string

const (
	PhaseDisconnected      Phase = "disconnected"
	PhaseCheckingExistence Phase = "checking_existence"
	PhaseNotFound          Phase = "not_found"
	PhaseFetchingMetadata  Phase = "fetching_metadata"
	PhaseLoaded            Phase = "loaded"
	PhaseFailed            Phase = "failed"
)

// ViewState is the single value the resolution pipeline exposes. It is a
// closed set of variants; each variant only carries the fields that are
// meaningful for it, so a state can never be both loading and loaded.
type ViewState interface {
	Phase() Phase
	// Terminal reports whether no further transition happens without an
	// address change.
	Terminal() bool
	sealed()
}

// Disconnected means no address is available.
type Disconnected struct{}

// CheckingExistence means the registry reads for Address are in flight.
type CheckingExistence struct {
	Address domain.Address
}

// NotFound means the registry has no identity for Address.
type NotFound struct {
	Address domain.Address
}

// FetchingMetadata means a usable pointer is known and the document is being
// retrieved. Record is nil until the richer registry read succeeds.
type FetchingMetadata struct {
	Address domain.Address
	Pointer Pointer
	Record  *Record
}

// Loaded carries the resolved identity. Record is nil when the richer
// registry read failed or has not arrived; its fields are then unknown.
type Loaded struct {
	Address  domain.Address
	Pointer  Pointer
	Metadata Metadata
	Record   *Record
}

// Failed carries the error that stopped resolution.
type Failed struct {
	Address domain.Address
	Err     error
}

func (Disconnected) Phase() Phase      { return PhaseDisconnected }
func (CheckingExistence) Phase() Phase { return PhaseCheckingExistence }
func (NotFound) Phase() Phase          { return PhaseNotFound }
func (FetchingMetadata) Phase() Phase  { return PhaseFetchingMetadata }
func (Loaded) Phase() Phase            { return PhaseLoaded }
func (Failed) Phase() Phase            { return PhaseFailed }

func (Disconnected) Terminal() bool      { return true }
func (CheckingExistence) Terminal() bool { return false }
func (NotFound) Terminal() bool          { return true }
func (FetchingMetadata) Terminal() bool  { return false }
func (Loaded) Terminal() bool            { return true }
func (Failed) Terminal() bool            { return true }

func (Disconnected) sealed()      {}
func (CheckingExistence) sealed() {}
func (NotFound) sealed()          {}
func (FetchingMetadata) sealed()  {}
func (Loaded) sealed()            {}
func (Failed) sealed()            {}

// AddressOf returns the address a state refers to; Disconnected yields the nil address.
func AddressOf(s ViewState) domain.Address {
	switch v := s.(type) {
	case CheckingExistence:
		return v.Address
	case NotFound:
		return v.Address
	case FetchingMetadata:
		return v.Address
	case Loaded:
		return v.Address
	case Failed:
		return v.Address
	default:
		return domain.Address{}
	}
}
