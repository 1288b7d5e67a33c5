// Package imports implements the host side of every function the guest
// can call under the "env" import namespace: storage, addressing,
// cryptography, chain queries, and debug/abort. Each function closes
// over an *environment.Environment and is wired into a compiled module
// by the instance package.
package imports

import (
	"context"
	"encoding/binary"

	"github.com/tetratelabs/wazero/api"

	"github.com/wazervm/wazervm/backend"
	"github.com/wazervm/wazervm/crypto"
	"github.com/wazervm/wazervm/environment"
	"github.com/wazervm/wazervm/gas"
	"github.com/wazervm/wazervm/memory"
	"github.com/wazervm/wazervm/region"
	"github.com/wazervm/wazervm/vmerrors"
)

// Defensive upper bounds on how much a single import will ever copy
// out of guest memory for an input Region. These are not part of any
// wire contract; they exist so a guest cannot force an unbounded host
// allocation by writing an absurd length into a Region descriptor.
const (
	maxKeyLen     = 64 * 1024
	maxValueLen   = 128 * 1024
	maxAddressLen = 256
	maxQueryLen   = 256 * 1024
	maxDebugLen   = 16 * 1024
)

// Protocol status codes returned by the import functions documented as
// "0 success / 1 verify-false / >1 error".
const (
	CodeSuccess      = 0
	CodeVerifyFalse  = 1
	CodeGenericError = 2
)

// readMemory is the narrow surface imports need from the calling
// module's linear memory; api.Module.Memory() satisfies it directly.
func readMemory(mod api.Module) memory.GuestMemory { return mod.Memory() }

// allocateAndWriteMem allocates a Region through env's installed
// allocator big enough for data, writes data into it through mem, and
// returns the Region pointer.
func allocateAndWriteMem(env *environment.Environment, mem memory.GuestMemory, data []byte) (uint32, error) {
	ptr, err := env.Allocate(uint32(len(data)))
	if err != nil {
		return 0, err
	}
	if err := region.Write(mem, ptr, data); err != nil {
		return 0, err
	}
	return ptr, nil
}

func mustProcessGas(env *environment.Environment, info gas.Info) {
	if err := env.ProcessGasInfo(info); err != nil {
		panic(err)
	}
}

func requireNotReadonly(env *environment.Environment) {
	if env.IsStorageReadonly() {
		panic(vmerrors.WriteAccessDenied())
	}
}

// DbRead implements the "db_read(key_ptr) -> u32" import: out is a
// value Region pointer, or 0 if the key is absent.
func DbRead(env *environment.Environment) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		mem := readMemory(mod)
		keyPtr := uint32(stack[0])

		key, err := region.Read(mem, keyPtr, maxKeyLen)
		if err != nil {
			panic(err)
		}

		var value []byte
		err = env.WithStorage(func(s backend.Storage) error {
			v, info, err := s.Get(key)
			mustProcessGas(env, info)
			value = v
			return err
		})
		if err != nil {
			panic(err)
		}

		if value == nil {
			stack[0] = 0
			return
		}
		ptr, err := allocateAndWriteMem(env, mem, value)
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(ptr)
	}
}

// DbWrite implements "db_write(key_ptr, val_ptr) -> ()".
func DbWrite(env *environment.Environment) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		requireNotReadonly(env)
		mem := readMemory(mod)
		keyPtr := uint32(stack[0])
		valPtr := uint32(stack[1])

		key, err := region.Read(mem, keyPtr, maxKeyLen)
		if err != nil {
			panic(err)
		}
		val, err := region.Read(mem, valPtr, maxValueLen)
		if err != nil {
			panic(err)
		}

		err = env.WithStorage(func(s backend.Storage) error {
			info, err := s.Set(key, val)
			mustProcessGas(env, info)
			return err
		})
		if err != nil {
			panic(err)
		}
	}
}

// DbRemove implements "db_remove(key_ptr) -> ()".
func DbRemove(env *environment.Environment) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		requireNotReadonly(env)
		mem := readMemory(mod)
		keyPtr := uint32(stack[0])

		key, err := region.Read(mem, keyPtr, maxKeyLen)
		if err != nil {
			panic(err)
		}

		err = env.WithStorage(func(s backend.Storage) error {
			info, err := s.Remove(key)
			mustProcessGas(env, info)
			return err
		})
		if err != nil {
			panic(err)
		}
	}
}

// DbScan implements "db_scan(start_ptr, end_ptr, order) -> u32",
// returning a fresh iterator ID. A 0 pointer means an unbounded bound.
func DbScan(env *environment.Environment) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		mem := readMemory(mod)
		startPtr := uint32(stack[0])
		endPtr := uint32(stack[1])
		order := backend.Order(int32(stack[2]))

		var start, end []byte
		if startPtr != 0 {
			b, err := region.Read(mem, startPtr, maxKeyLen)
			if err != nil {
				panic(err)
			}
			start = b
		}
		if endPtr != 0 {
			b, err := region.Read(mem, endPtr, maxKeyLen)
			if err != nil {
				panic(err)
			}
			end = b
		}

		var id uint32
		err := env.WithStorage(func(s backend.Storage) error {
			it, info, err := s.Scan(start, end, order)
			mustProcessGas(env, info)
			if err != nil {
				return err
			}
			id = env.RegisterIterator(it)
			return nil
		})
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(id)
	}
}

// DbNext implements "db_next(iterator_id) -> u32". The returned Region
// holds value‖key‖keylen_be_u32; keylen == 0 signals end-of-iteration.
func DbNext(env *environment.Environment) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		mem := readMemory(mod)
		iteratorID := uint32(stack[0])

		it, ok := env.Iterator(iteratorID)
		if !ok {
			panic(vmerrors.RuntimeErr("unknown iterator id"))
		}

		kv, info, err := it.Next()
		mustProcessGas(env, info)
		if err != nil {
			panic(err)
		}

		var payload []byte
		if kv == nil {
			payload = make([]byte, 4)
		} else {
			payload = make([]byte, len(kv.Value)+len(kv.Key)+4)
			copy(payload, kv.Value)
			copy(payload[len(kv.Value):], kv.Key)
			binary.BigEndian.PutUint32(payload[len(kv.Value)+len(kv.Key):], uint32(len(kv.Key)))
		}

		ptr, err := allocateAndWriteMem(env, mem, payload)
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(ptr)
	}
}

func readErrorOrSuccess(env *environment.Environment, mem memory.GuestMemory, err error) uint64 {
	if err == nil {
		return 0
	}
	env.SetLastError(err)
	ptr, allocErr := allocateAndWriteMem(env, mem, []byte(err.Error()))
	if allocErr != nil {
		panic(allocErr)
	}
	return uint64(ptr)
}

// AddrValidate implements "addr_validate(src_ptr) -> u32": 0 on a valid
// address, otherwise a Region holding a UTF-8 error string.
func AddrValidate(env *environment.Environment) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		mem := readMemory(mod)
		human, err := region.Read(mem, uint32(stack[0]), maxAddressLen)
		if err != nil {
			panic(err)
		}

		info, valErr := env.Api().ValidateAddress(string(human))
		mustProcessGas(env, info)
		stack[0] = readErrorOrSuccess(env, mem, valErr)
	}
}

// AddrCanonicalize implements "addr_canonicalize(src_ptr, dst_ptr) ->
// u32": dst is a pre-allocated Region; 0 on success, otherwise an
// error Region.
func AddrCanonicalize(env *environment.Environment) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		mem := readMemory(mod)
		human, err := region.Read(mem, uint32(stack[0]), maxAddressLen)
		if err != nil {
			panic(err)
		}

		canonical, info, canonErr := env.Api().CanonicalizeAddress(string(human))
		mustProcessGas(env, info)
		if canonErr != nil {
			stack[0] = readErrorOrSuccess(env, mem, canonErr)
			return
		}
		if err := region.Write(mem, uint32(stack[1]), canonical); err != nil {
			panic(err)
		}
		stack[0] = 0
	}
}

// AddrHumanize implements "addr_humanize(src_ptr, dst_ptr) -> u32".
func AddrHumanize(env *environment.Environment) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		mem := readMemory(mod)
		canonical, err := region.Read(mem, uint32(stack[0]), maxAddressLen)
		if err != nil {
			panic(err)
		}

		human, info, humErr := env.Api().HumanizeAddress(canonical)
		mustProcessGas(env, info)
		if humErr != nil {
			stack[0] = readErrorOrSuccess(env, mem, humErr)
			return
		}
		if err := region.Write(mem, uint32(stack[1]), []byte(human)); err != nil {
			panic(err)
		}
		stack[0] = 0
	}
}

// cryptoGasCost is the external gas charged for one signature
// verification or recovery, in lieu of a per-byte formula the core
// does not specify for these primitives.
const cryptoGasCost uint64 = 1000

// Secp256k1Verify implements "secp256k1_verify(hash, sig, pubkey) ->
// u32": 0 verified, 1 not verified, >1 error.
func Secp256k1Verify(env *environment.Environment) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		mem := readMemory(mod)
		hash, err := region.Read(mem, uint32(stack[0]), crypto.Secp256k1MessageHashLen)
		if err != nil {
			panic(err)
		}
		sig, err := region.Read(mem, uint32(stack[1]), crypto.Secp256k1SignatureLen)
		if err != nil {
			panic(err)
		}
		pubkey, err := region.Read(mem, uint32(stack[2]), crypto.Secp256k1UncompressedLen)
		if err != nil {
			panic(err)
		}

		mustProcessGas(env, gas.WithCost(cryptoGasCost))
		ok, verifyErr := crypto.Secp256k1Verify(hash, sig, pubkey)
		stack[0] = uint64(verifyCode(env, ok, verifyErr))
	}
}

func verifyCode(env *environment.Environment, ok bool, err error) uint32 {
	if err != nil {
		env.SetLastError(err)
		return CodeGenericError
	}
	if ok {
		return CodeSuccess
	}
	return CodeVerifyFalse
}

// Secp256k1RecoverPubkey implements "secp256k1_recover_pubkey(hash,
// sig, recovery_param) -> u64": low 32 bits error code, high 32 bits
// Region pointer to the recovered 65-byte key.
func Secp256k1RecoverPubkey(env *environment.Environment) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		mem := readMemory(mod)
		hash, err := region.Read(mem, uint32(stack[0]), crypto.Secp256k1MessageHashLen)
		if err != nil {
			panic(err)
		}
		sig, err := region.Read(mem, uint32(stack[1]), crypto.Secp256k1SignatureLen)
		if err != nil {
			panic(err)
		}
		recoveryParam := byte(stack[2])

		mustProcessGas(env, gas.WithCost(cryptoGasCost))
		pubkey, recoverErr := crypto.Secp256k1RecoverPubkey(hash, sig, recoveryParam)
		if recoverErr != nil {
			env.SetLastError(recoverErr)
			stack[0] = uint64(CodeGenericError)
			return
		}
		ptr, err := allocateAndWriteMem(env, mem, pubkey)
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(CodeSuccess) | uint64(ptr)<<32
	}
}

// Ed25519Verify implements "ed25519_verify(msg, sig, pubkey) -> u32"
// using the same 0/1/>1 conventions as Secp256k1Verify.
func Ed25519Verify(env *environment.Environment) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		mem := readMemory(mod)
		msg, err := region.Read(mem, uint32(stack[0]), crypto.Ed25519MessageMaxLen)
		if err != nil {
			panic(err)
		}
		sig, err := region.Read(mem, uint32(stack[1]), crypto.Ed25519SignatureLen)
		if err != nil {
			panic(err)
		}
		pubkey, err := region.Read(mem, uint32(stack[2]), crypto.Ed25519PubkeyLen)
		if err != nil {
			panic(err)
		}

		mustProcessGas(env, gas.WithCost(cryptoGasCost))
		ok, verifyErr := crypto.Ed25519Verify(msg, sig, pubkey)
		stack[0] = uint64(verifyCode(env, ok, verifyErr))
	}
}

// maxBatchRegionLen bounds how large an encoded sections buffer one of
// ed25519_batch_verify's three Region arguments may be.
const maxBatchRegionLen = crypto.Ed25519BatchMaxLen * (crypto.Ed25519MessageMaxLen + 8)

// Ed25519BatchVerify implements "ed25519_batch_verify(msgs, sigs,
// pubkeys) -> u32". Each argument Region holds a sections-encoded list:
// every item's bytes immediately followed by its own 4-byte big-endian
// length, items in order, read back to front.
func Ed25519BatchVerify(env *environment.Environment) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		mem := readMemory(mod)
		msgsRaw, err := region.Read(mem, uint32(stack[0]), maxBatchRegionLen)
		if err != nil {
			panic(err)
		}
		sigsRaw, err := region.Read(mem, uint32(stack[1]), maxBatchRegionLen)
		if err != nil {
			panic(err)
		}
		pubkeysRaw, err := region.Read(mem, uint32(stack[2]), maxBatchRegionLen)
		if err != nil {
			panic(err)
		}

		messages, err := decodeSections(msgsRaw)
		if err != nil {
			panic(vmerrors.CryptoErr(err))
		}
		signatures, err := decodeSections(sigsRaw)
		if err != nil {
			panic(vmerrors.CryptoErr(err))
		}
		pubkeys, err := decodeSections(pubkeysRaw)
		if err != nil {
			panic(vmerrors.CryptoErr(err))
		}

		n := len(messages)
		if len(signatures) > n {
			n = len(signatures)
		}
		mustProcessGas(env, gas.WithCost(cryptoGasCost*uint64(n+1)))

		ok, verifyErr := crypto.Ed25519BatchVerify(messages, signatures, pubkeys)
		stack[0] = uint64(verifyCode(env, ok, verifyErr))
	}
}

// decodeSections splits a sections-encoded buffer back into its
// original list of byte strings: each item's data followed by its
// 4-byte big-endian length, consumed from the end of the buffer
// backwards (length suffix first, then the data just before it).
func decodeSections(data []byte) ([][]byte, error) {
	var sections [][]byte
	remaining := data
	for len(remaining) > 0 {
		if len(remaining) < 4 {
			return nil, vmerrors.GenericErr("corrupt section length suffix")
		}
		length := binary.BigEndian.Uint32(remaining[len(remaining)-4:])
		remaining = remaining[:len(remaining)-4]
		if uint32(len(remaining)) < length {
			return nil, vmerrors.GenericErr("corrupt section length")
		}
		section := remaining[len(remaining)-int(length):]
		remaining = remaining[:len(remaining)-int(length)]
		sections = append([][]byte{section}, sections...)
	}
	return sections, nil
}

// QueryChain implements "query_chain(request_ptr) -> u32", returning a
// Region containing a serialized SystemResult<ContractResult<Binary>>
// the core never interprets.
func QueryChain(env *environment.Environment) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		mem := readMemory(mod)
		request, err := region.Read(mem, uint32(stack[0]), maxQueryLen)
		if err != nil {
			panic(err)
		}

		var result backend.QueryResult
		err = env.WithQuerier(func(q backend.Querier) error {
			r, info, err := q.Query(request, env.GetGasLeft())
			mustProcessGas(env, info)
			result = r
			return err
		})
		if err != nil {
			panic(vmerrors.BackendErr(err))
		}

		ptr, err := allocateAndWriteMem(env, mem, result.Serialized)
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(ptr)
	}
}

// debugBaselineCost is the fixed charge for a debug message,
// independent of its length.
const debugBaselineCost uint64 = 1

// Debug implements "debug(msg_ptr) -> ()": the host may print or
// ignore the message.
func Debug(env *environment.Environment) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		mem := readMemory(mod)
		msg, err := region.Read(mem, uint32(stack[0]), maxDebugLen)
		if err != nil {
			panic(err)
		}
		mustProcessGas(env, gas.WithCost(debugBaselineCost))
		if env.PrintDebug() && env.Logger() != nil {
			env.Logger().Sugar().Debugf("guest debug: %s", string(msg))
		}
	}
}

// Abort implements "abort(msg_ptr) -> ()": terminates execution with a
// RuntimeErr carrying the guest's message.
func Abort(env *environment.Environment) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		mem := readMemory(mod)
		msg, err := region.Read(mem, uint32(stack[0]), maxDebugLen)
		if err != nil {
			panic(err)
		}
		panic(vmerrors.RuntimeErr(string(msg)))
	}
}
