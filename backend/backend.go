// Package backend defines the collaborator contracts the VM core
// consumes but never implements itself: address logic, storage, and
// chain queries. The core only ever reaches these through the typed
// interfaces below, moved into an environment.Environment at instance
// construction and optionally moved back out on recycle.
package backend

import "github.com/wazervm/wazervm/gas"

// Order selects ascending or descending iteration for Storage.Scan,
// matching the db_scan wire values (1 ascending, 2 descending).
type Order int32

const (
	Ascending  Order = 1
	Descending Order = 2
)

// Api is stateless address logic: validate, canonicalize and humanize a
// chain address. Every method reports the gas.Info for the work
// performed.
type Api interface {
	ValidateAddress(human string) (gas.Info, error)
	CanonicalizeAddress(human string) ([]byte, gas.Info, error)
	HumanizeAddress(canonical []byte) (string, gas.Info, error)
}

// KVPair is a single storage entry, as returned by Iterator.Next.
type KVPair struct {
	Key   []byte
	Value []byte
}

// Iterator walks a Storage key range in the order it was created with.
// Ownership and identity (the per-instance u32 handle, the
// cleared-per-call lifetime) belong to environment.Environment, not to
// Storage or Iterator itself.
type Iterator interface {
	// Next advances the iterator and returns its current entry, or a nil
	// pair once exhausted.
	Next() (*KVPair, gas.Info, error)
}

// Storage is a mutable ordered byte-string map. A nil value from Get
// means the key is absent.
type Storage interface {
	Get(key []byte) ([]byte, gas.Info, error)
	Set(key, value []byte) (gas.Info, error)
	Remove(key []byte) (gas.Info, error)
	// Scan creates an iterator over [start, end) (nil means unbounded).
	Scan(start, end []byte, order Order) (Iterator, gas.Info, error)
}

// QueryResult is the opaque, already-serialized response to a chain
// query; the core never interprets its bytes.
type QueryResult struct {
	Serialized []byte
}

// Querier answers chain-level queries (bank balances, staking info,
// custom chain queries, ...) without the VM core ever parsing the
// request or response bodies.
type Querier interface {
	Query(request []byte, gasLimit uint64) (QueryResult, gas.Info, error)
}

// Backend is the triple of collaborators an Instance consumes. It is
// moved into an environment.Environment at construction and, on
// successful recycle, moved back out; on instance drop it is discarded.
type Backend struct {
	Api     Api
	Storage Storage
	Querier Querier
}
