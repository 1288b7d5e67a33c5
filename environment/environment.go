// Package environment implements the per-instance context that brokers
// every host-side access an import makes: the movable storage/querier
// collaborators, the dual gas accounting, the storage-readonly flag,
// and the non-owning handle back to the live guest used to allocate
// and deallocate Regions.
package environment

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wazervm/wazervm/backend"
	"github.com/wazervm/wazervm/gas"
	"github.com/wazervm/wazervm/region"
	"github.com/wazervm/wazervm/vmerrors"
)

// Environment is created once per Instance and lives exactly as long
// as it does. Every import closes over an *Environment rather than
// touching storage, the querier, or the gas meter directly.
type Environment struct {
	mu sync.Mutex

	api      backend.Api
	storage  backend.Storage
	querier  backend.Querier
	recycled bool

	gasState gas.State
	meter    gas.Meter

	storageReadonly bool

	printDebug bool
	logger     *zap.Logger

	// allocator is the non-owning handle to the live guest's
	// allocate/deallocate exports. It is nil during construction and
	// set exactly once, immediately after Wasm instantiation.
	allocator region.Allocator

	iterators      map[uint32]backend.Iterator
	nextIteratorID uint32

	lastError error
}

// New creates an Environment with b moved in and the given gas limit.
// meter is the embedder-exposed internal gas counter; it is created
// alongside the compiled module and handed in here so the Environment
// can mediate every import's charge through gas.ProcessGasInfo.
func New(b backend.Backend, meter gas.Meter, gasLimit uint64, printDebug bool, logger *zap.Logger) *Environment {
	return &Environment{
		api:        b.Api,
		storage:    b.Storage,
		querier:    b.Querier,
		meter:      meter,
		gasState:   gas.State{GasLimit: gasLimit},
		printDebug: printDebug,
		logger:     logger,
		iterators:  map[uint32]backend.Iterator{},
	}
}

// Api returns the address-logic collaborator. Unlike Storage and
// Querier it is never moved out; it has no mutable state to protect.
func (e *Environment) Api() backend.Api { return e.api }

// WithStorage lends f the live Storage; the lock guards only the lookup,
// and f runs without holding it. Returns
// UninitializedContextData if recycle has already moved it out.
func (e *Environment) WithStorage(f func(backend.Storage) error) error {
	e.mu.Lock()
	s := e.storage
	e.mu.Unlock()
	if s == nil {
		return vmerrors.UninitializedContextData("storage")
	}
	return f(s)
}

// WithQuerier lends f the live Querier; the lock guards only the lookup,
// and f runs without holding it. Returns
// UninitializedContextData if recycle has already moved it out.
func (e *Environment) WithQuerier(f func(backend.Querier) error) error {
	e.mu.Lock()
	q := e.querier
	e.mu.Unlock()
	if q == nil {
		return vmerrors.UninitializedContextData("querier")
	}
	return f(q)
}

// Recycle moves storage and querier back out, leaving the Environment
// without resource access from then on. The second and subsequent
// calls return ok == false.
func (e *Environment) Recycle() (out backend.Backend, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recycled {
		return backend.Backend{}, false
	}
	out = backend.Backend{Api: e.api, Storage: e.storage, Querier: e.querier}
	e.storage = nil
	e.querier = nil
	e.recycled = true
	return out, true
}

// GetGasLeft returns the embedder's current internal remaining points.
func (e *Environment) GetGasLeft() uint64 {
	return e.meter.GetRemainingPoints()
}

// SetGasLeft overrides the embedder's internal remaining points, used
// when an Instance sets the initial budget for a fresh top-level call.
func (e *Environment) SetGasLeft(points uint64) {
	e.meter.SetRemainingPoints(points)
}

// GasState returns a snapshot of the combined accounting record.
func (e *Environment) GasState() gas.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gasState
}

// ProcessGasInfo applies an import's external cost, folding it into
// the shared gas.State and clamping the internal meter to match.
func (e *Environment) ProcessGasInfo(info gas.Info) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gas.ProcessGasInfo(&e.gasState, e.meter, info)
}

// CreateGasReport snapshots the combined internal/external accounting.
func (e *Environment) CreateGasReport() gas.Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gas.CreateReport(e.gasState, e.meter.GetRemainingPoints())
}

// SetStorageReadonly gates every write-class storage import.
func (e *Environment) SetStorageReadonly(readonly bool) {
	e.mu.Lock()
	e.storageReadonly = readonly
	e.mu.Unlock()
}

// IsStorageReadonly reports the current readonly gate.
func (e *Environment) IsStorageReadonly() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.storageReadonly
}

// PrintDebug reports whether debug import messages should reach the
// logger, or be silently discarded.
func (e *Environment) PrintDebug() bool { return e.printDebug }

// Logger returns the structured logger installed at construction, or
// nil if none was configured.
func (e *Environment) Logger() *zap.Logger { return e.logger }

// SetAllocator installs the non-owning handle used to invoke the live
// guest's allocate/deallocate exports. Called exactly once, immediately
// after Wasm instantiation; nil before that point.
func (e *Environment) SetAllocator(a region.Allocator) {
	e.mu.Lock()
	e.allocator = a
	e.mu.Unlock()
}

// Allocate invokes the guest's allocate export through the installed
// allocator handle.
func (e *Environment) Allocate(size uint32) (uint32, error) {
	e.mu.Lock()
	a := e.allocator
	e.mu.Unlock()
	if a == nil {
		return 0, vmerrors.RuntimeErr("allocator not yet installed")
	}
	return region.Allocate(a, size)
}

// Deallocate invokes the guest's deallocate export through the
// installed allocator handle.
func (e *Environment) Deallocate(ptr uint32) error {
	e.mu.Lock()
	a := e.allocator
	e.mu.Unlock()
	if a == nil {
		return vmerrors.RuntimeErr("allocator not yet installed")
	}
	return region.Deallocate(a, ptr)
}

// ClearIterators drops every live iterator and resets ID allocation.
// Called at the start of every fresh top-level export call.
func (e *Environment) ClearIterators() {
	e.mu.Lock()
	e.iterators = map[uint32]backend.Iterator{}
	e.nextIteratorID = 0
	e.mu.Unlock()
}

// RegisterIterator assigns it a fresh ID, unique within this call, and
// returns that ID.
func (e *Environment) RegisterIterator(it backend.Iterator) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextIteratorID++
	id := e.nextIteratorID
	e.iterators[id] = it
	return id
}

// Iterator looks up a previously registered iterator by ID.
func (e *Environment) Iterator(id uint32) (backend.Iterator, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	it, ok := e.iterators[id]
	return it, ok
}

// SetLastError stashes the full error behind an import's small integer
// protocol code, so the host side can retrieve it after the call
// returns.
func (e *Environment) SetLastError(err error) {
	e.mu.Lock()
	e.lastError = err
	e.mu.Unlock()
}

// LastError returns whatever SetLastError most recently recorded.
func (e *Environment) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastError
}
