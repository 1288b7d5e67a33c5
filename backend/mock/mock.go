// Package mock provides in-memory Api/Storage/Querier implementations
// good enough to drive tests without a real chain backend.
package mock

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wazervm/wazervm/backend"
	"github.com/wazervm/wazervm/gas"
	"github.com/wazervm/wazervm/vmerrors"
)

// gasPerByte gives storage/address operations an externally-metered
// cost proportional to the number of bytes touched.
const gasPerByte uint64 = 1

// Api is a deterministic, non-cryptographic Api good enough for tests:
// canonicalize lower-cases and right-pads to a fixed length, humanize
// trims padding back off. It never touches a real bech32 codec.
type Api struct {
	CanonicalLength int
}

func NewApi() *Api {
	return &Api{CanonicalLength: 32}
}

func (a *Api) ValidateAddress(human string) (gas.Info, error) {
	info := gas.WithCost(uint64(len(human)) * gasPerByte)
	if len(human) == 0 {
		return info, vmerrors.GenericErr("human address is empty")
	}
	if strings.ToLower(human) != human {
		return info, vmerrors.GenericErr("address not normalized")
	}
	return info, nil
}

func (a *Api) CanonicalizeAddress(human string) ([]byte, gas.Info, error) {
	info := gas.WithCost(uint64(len(human)) * gasPerByte)
	if len(human) == 0 {
		return nil, info, vmerrors.GenericErr("human address is empty")
	}
	if len(human) > a.CanonicalLength {
		return nil, info, vmerrors.GenericErr("human address too long")
	}
	out := make([]byte, a.CanonicalLength)
	copy(out, []byte(strings.ToLower(human)))
	return out, info, nil
}

func (a *Api) HumanizeAddress(canonical []byte) (string, gas.Info, error) {
	info := gas.WithCost(uint64(len(canonical)) * gasPerByte)
	trimmed := strings.TrimRight(string(canonical), "\x00")
	if trimmed == "" {
		return "", info, vmerrors.GenericErr("canonical address is empty")
	}
	return trimmed, info, nil
}

// Storage is a sorted in-memory key/value store. Each Scan call
// returns its own independent cursor; nothing about the cursor's
// identity or lifetime is tracked here.
type Storage struct {
	data map[string][]byte
}

func NewStorage() *Storage {
	return &Storage{data: map[string][]byte{}}
}

func (s *Storage) Get(key []byte) ([]byte, gas.Info, error) {
	info := gas.WithCost(uint64(len(key)) * gasPerByte)
	v, ok := s.data[string(key)]
	if !ok {
		return nil, info, nil
	}
	info.Cost += uint64(len(v)) * gasPerByte
	info.ExternallyUsed = info.Cost
	out := make([]byte, len(v))
	copy(out, v)
	return out, info, nil
}

func (s *Storage) Set(key, value []byte) (gas.Info, error) {
	info := gas.WithCost(uint64(len(key)+len(value)) * gasPerByte)
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[string(key)] = cp
	return info, nil
}

func (s *Storage) Remove(key []byte) (gas.Info, error) {
	info := gas.WithCost(uint64(len(key)) * gasPerByte)
	delete(s.data, string(key))
	return info, nil
}

func (s *Storage) Scan(start, end []byte, order backend.Order) (backend.Iterator, gas.Info, error) {
	info := gas.WithCost(uint64(len(start)+len(end)) * gasPerByte)
	if order != backend.Ascending && order != backend.Descending {
		return nil, info, vmerrors.RuntimeErr(fmt.Sprintf("unknown order: %d", order))
	}

	var keys []string
	for k := range s.data {
		if start != nil && k < string(start) {
			continue
		}
		if end != nil && k >= string(end) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if order == backend.Descending {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	return &iterator{storage: s, keys: keys}, info, nil
}

// iterator is a Scan cursor over the set of matching keys taken at Scan
// time; keys added after Scan are not visited, but each value is read
// from Storage when Next reaches its key, so later writes to (or removal
// of) a visited key are seen.
type iterator struct {
	storage *Storage
	keys    []string
	pos     int
}

func (it *iterator) Next() (*backend.KVPair, gas.Info, error) {
	if it.pos >= len(it.keys) {
		return nil, gas.Free(), nil
	}
	k := it.keys[it.pos]
	it.pos++
	v := it.storage.data[k]
	info := gas.WithCost(uint64(len(k)+len(v)) * gasPerByte)
	return &backend.KVPair{Key: []byte(k), Value: append([]byte(nil), v...)}, info, nil
}

// Querier answers every query with a fixed response, or a JSON error
// body if none was registered for the given request bytes.
type Querier struct {
	Responses map[string][]byte
}

func NewQuerier() *Querier {
	return &Querier{Responses: map[string][]byte{}}
}

func (q *Querier) Query(request []byte, gasLimit uint64) (backend.QueryResult, gas.Info, error) {
	info := gas.WithCost(uint64(len(request)) * gasPerByte)
	if resp, ok := q.Responses[string(request)]; ok {
		return backend.QueryResult{Serialized: resp}, info, nil
	}
	return backend.QueryResult{Serialized: []byte(`{"error":"unknown query"}`)}, info, nil
}

var _ backend.Api = (*Api)(nil)
var _ backend.Storage = (*Storage)(nil)
var _ backend.Querier = (*Querier)(nil)
var _ backend.Iterator = (*iterator)(nil)
