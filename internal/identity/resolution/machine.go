// Package resolution turns an address into a single consistent view state.
//
// Two registry reads run concurrently and may disagree; the content fetch
// starts only once a usable pointer is known. Reduce is the pure transition
// function; Session drives it on one goroutine and performs the I/O it asks
// for.
package resolution

import (
	"errors"
	"fmt"

	"didgate/internal/identity/models"
	"didgate/internal/identity/registry"
	"didgate/pkg/domain"
)

// ErrRegistryUnreachable is the cause of a Failed state when neither registry
// read produced an answer.
var ErrRegistryUnreachable = errors.New("registry unreachable")

// Event is an input to Reduce.
type Event interface{ event() }

// AddressChanged starts a new generation for Address. The nil address
// disconnects.
type AddressChanged struct {
	Address domain.Address
}

// PointerRead carries the result of the lightweight existence read.
type PointerRead struct {
	Generation uint64
	Pointer    models.Pointer
	Err        error
}

// RecordRead carries the result of the richer registry read.
type RecordRead struct {
	Generation uint64
	Record     *models.Record
	Err        error
}

// MetadataFetched carries the result of the content fetch.
type MetadataFetched struct {
	Generation uint64
	Metadata   *models.Metadata
	Err        error
}

func (AddressChanged) event()  {}
func (PointerRead) event()     {}
func (RecordRead) event()      {}
func (MetadataFetched) event() {}

// Command is I/O requested by Reduce. Each command carries the generation
// its result must be tagged with.
type Command interface{ command() }

type ReadPointer struct {
	Generation uint64
	Address    domain.Address
}

type ReadRecord struct {
	Generation uint64
	Address    domain.Address
}

type FetchMetadata struct {
	Generation uint64
	Ref        models.ContentRef
}

func (ReadPointer) command()   {}
func (ReadRecord) command()    {}
func (FetchMetadata) command() {}

type readStatus uint8

const (
	readPending readStatus = iota
	readPresent
	readAbsent
	readFailed
)

// Machine is the resolution state for one address generation. The zero value
// is not usable; start from NewMachine.
type Machine struct {
	generation uint64
	revision   uint64
	address    domain.Address
	state      models.ViewState

	pointer       models.Pointer
	pointerStatus readStatus
	pointerErr    error

	record       *models.Record
	recordStatus readStatus
	recordErr    error
}

// NewMachine returns a Disconnected machine.
func NewMachine() Machine {
	return Machine{state: models.Disconnected{}}
}

// State is the current view state.
func (m Machine) State() models.ViewState { return m.state }

// Generation increases on every address change.
func (m Machine) Generation() uint64 { return m.generation }

// Revision increases every time the view state is replaced.
func (m Machine) Revision() uint64 { return m.revision }

// Settled reports whether no pending input can change the view state any
// more. A Loaded state waits for the record read so its fields are final.
func (m Machine) Settled() bool {
	if !m.state.Terminal() {
		return false
	}
	if _, loaded := m.state.(models.Loaded); loaded {
		return m.recordStatus != readPending
	}
	return true
}

// Stale reports whether ev belongs to an older generation than m.
func Stale(m Machine, ev Event) bool {
	switch ev := ev.(type) {
	case PointerRead:
		return ev.Generation != m.generation
	case RecordRead:
		return ev.Generation != m.generation
	case MetadataFetched:
		return ev.Generation != m.generation
	default:
		return false
	}
}

// Reduce applies ev to m. It never performs I/O; the returned commands must
// be executed by the caller and their results fed back in as events. Results
// from older generations leave m unchanged.
func Reduce(m Machine, ev Event) (Machine, []Command) {
	if Stale(m, ev) {
		return m, nil
	}

	switch ev := ev.(type) {
	case AddressChanged:
		next := Machine{
			generation: m.generation + 1,
			revision:   m.revision,
			address:    ev.Address,
		}
		if ev.Address.IsNil() {
			return next.enter(models.Disconnected{}), nil
		}
		next = next.enter(models.CheckingExistence{Address: ev.Address})
		return next, []Command{
			ReadPointer{Generation: next.generation, Address: ev.Address},
			ReadRecord{Generation: next.generation, Address: ev.Address},
		}

	case PointerRead:
		if m.pointerStatus != readPending {
			return m, nil
		}
		m.pointerStatus, m.pointerErr = classifyPointer(ev.Pointer, ev.Err)
		m.pointer = ev.Pointer
		return m.settle()

	case RecordRead:
		if m.recordStatus != readPending {
			return m, nil
		}
		m.recordStatus, m.recordErr = classifyRecord(ev.Record, ev.Err)
		if m.recordStatus == readPresent {
			rec := *ev.Record
			m.record = &rec
		}
		return m.settle()

	case MetadataFetched:
		fetching, ok := m.state.(models.FetchingMetadata)
		if !ok {
			return m, nil
		}
		if ev.Err != nil || ev.Metadata == nil {
			err := ev.Err
			if err == nil {
				err = errors.New("empty metadata document")
			}
			return m.enter(models.Failed{
				Address: m.address,
				Err:     fmt.Errorf("fetch metadata %s: %w", fetching.Pointer.Ref().Bare(), err),
			}), nil
		}
		return m.enter(models.Loaded{
			Address:  m.address,
			Pointer:  fetching.Pointer,
			Metadata: *ev.Metadata,
			Record:   m.knownRecord(),
		}), nil
	}
	return m, nil
}

// settle re-evaluates the state after a registry read arrived.
func (m Machine) settle() (Machine, []Command) {
	switch st := m.state.(type) {
	case models.CheckingExistence:
		return m.decide()
	case models.FetchingMetadata:
		if rec := m.knownRecord(); rec != nil && st.Record == nil {
			st.Record = rec
			return m.enter(st), nil
		}
	case models.Loaded:
		if rec := m.knownRecord(); rec != nil && st.Record == nil {
			st.Record = rec
			return m.enter(st), nil
		}
	}
	return m, nil
}

// decide leaves CheckingExistence once the reads allow it. The pointer read
// is the authority on existence; the record read only stands in for it when
// the pointer read could not reach the ledger.
func (m Machine) decide() (Machine, []Command) {
	switch m.pointerStatus {
	case readPresent:
		return m.fetch(m.pointer)
	case readAbsent:
		return m.enter(models.NotFound{Address: m.address}), nil
	case readFailed:
		switch m.recordStatus {
		case readPresent:
			return m.fetch(m.record.Pointer)
		case readAbsent:
			return m.enter(models.NotFound{Address: m.address}), nil
		case readFailed:
			return m.enter(models.Failed{
				Address: m.address,
				Err:     fmt.Errorf("%w: %w", ErrRegistryUnreachable, errors.Join(m.pointerErr, m.recordErr)),
			}), nil
		}
	}
	return m, nil
}

func (m Machine) fetch(ptr models.Pointer) (Machine, []Command) {
	m = m.enter(models.FetchingMetadata{
		Address: m.address,
		Pointer: ptr,
		Record:  m.knownRecord(),
	})
	return m, []Command{FetchMetadata{Generation: m.generation, Ref: ptr.Ref()}}
}

func (m Machine) enter(s models.ViewState) Machine {
	m.state = s
	m.revision++
	return m
}

func (m Machine) knownRecord() *models.Record {
	if m.recordStatus != readPresent {
		return nil
	}
	return m.record
}

func classifyPointer(p models.Pointer, err error) (readStatus, error) {
	switch {
	case err == nil && p.IsAbsent():
		return readAbsent, nil
	case err == nil:
		return readPresent, nil
	case errors.Is(err, registry.ErrAbsent):
		return readAbsent, nil
	default:
		return readFailed, err
	}
}

func classifyRecord(r *models.Record, err error) (readStatus, error) {
	switch {
	case err == nil && (r == nil || r.Pointer.IsAbsent()):
		return readAbsent, nil
	case err == nil:
		return readPresent, nil
	case errors.Is(err, registry.ErrAbsent):
		return readAbsent, nil
	default:
		return readFailed, err
	}
}
