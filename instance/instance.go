// Package instance builds a running Instance from compiled guest code
// and a Backend, wires the host import table under the "env"
// namespace, and exposes export invocation, memory access, and
// recycle/teardown.
package instance

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wazervm/wazervm/backend"
	"github.com/wazervm/wazervm/capabilities"
	"github.com/wazervm/wazervm/environment"
	"github.com/wazervm/wazervm/gas"
	"github.com/wazervm/wazervm/imports"
	"github.com/wazervm/wazervm/region"
	"github.com/wazervm/wazervm/vmerrors"
)

const i32 = api.ValueTypeI32
const i64 = api.ValueTypeI64

// semanticEntryPoints are the guest exports a module may offer as its
// top-level business logic; a module must export at least one.
var semanticEntryPoints = []string{
	"instantiate", "execute", "query", "migrate", "sudo", "reply",
	"ibc_channel_open", "ibc_channel_connect", "ibc_channel_close",
	"ibc_packet_receive", "ibc_packet_ack", "ibc_packet_timeout",
}

// ExtraImport describes one additional host function installed outside
// the "env" namespace, for tests that need to exercise extra wiring.
type ExtraImport struct {
	Params  []api.ValueType
	Results []api.ValueType
	Func    api.GoModuleFunc
}

// Options configures Instance construction.
type Options struct {
	GasLimit uint64
	// MemoryLimitPages caps the guest's linear memory growth, in 64 KiB
	// pages. Zero means no explicit cap beyond wazero's own default.
	MemoryLimitPages uint32
	PrintDebug       bool
	Logger           *zap.Logger
	// SupportedFeatures gates optional import groups; "iterator" wires
	// db_scan/db_next.
	SupportedFeatures []string
	// ExtraImports, keyed by namespace then function name, are linked
	// in addition to "env" — for tests exercising non-standard wiring.
	ExtraImports map[string]map[string]ExtraImport
	// InstantiationLock, when non-nil, is held for the duration of
	// wazero module instantiation, serializing it across instances
	// that share the same lock.
	InstantiationLock Locker
}

// Locker is the minimal mutex surface InstantiationLock needs.
type Locker interface {
	Lock()
	Unlock()
}

// Instance owns a compiled, instantiated Wasm module together with the
// Environment and gas meter wired into its imports.
type Instance struct {
	ctx context.Context

	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	mod      api.Module

	env   *environment.Environment
	meter *gas.WazeroMeter

	closed uint32
}

func hasFeature(features []string, name string) bool {
	for _, f := range features {
		if f == name {
			return true
		}
	}
	return false
}

// FromCode compiles code under opts.MemoryLimitPages and builds an
// Instance from it, as FromModule does for an already-compiled module.
func FromCode(ctx context.Context, code []byte, b backend.Backend, opts Options) (*Instance, error) {
	cfg := wazero.NewRuntimeConfig()
	if opts.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(opts.MemoryLimitPages)
	}
	runtime := wazero.NewRuntimeWithConfig(ctx, cfg)

	compiled, err := runtime.CompileModule(ctx, code)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, vmerrors.CompileErr(err.Error())
	}

	inst, err := fromCompiledModule(ctx, runtime, compiled, b, opts)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, err
	}
	return inst, nil
}

func validateExports(compiled wazero.CompiledModule) error {
	exports := compiled.ExportedFunctions()
	for _, name := range []string{"allocate", "deallocate", "interface_version_8"} {
		if _, ok := exports[name]; !ok {
			return vmerrors.StaticValidationErr(fmt.Sprintf("module is missing required export %q", name))
		}
	}
	for _, name := range semanticEntryPoints {
		if _, ok := exports[name]; ok {
			return nil
		}
	}
	return vmerrors.StaticValidationErr("module exports no semantic entry point")
}

// fromCompiledModule is FromModule's implementation, shared by FromCode
// once it has compiled the guest bytes itself.
func fromCompiledModule(ctx context.Context, runtime wazero.Runtime, compiled wazero.CompiledModule, b backend.Backend, opts Options) (*Instance, error) {
	if err := validateExports(compiled); err != nil {
		return nil, err
	}

	meter := gas.NewWazeroMeter(opts.GasLimit)
	env := environment.New(b, meter, opts.GasLimit, opts.PrintDebug, opts.Logger)

	if err := wireEnvNamespace(ctx, runtime, env, opts); err != nil {
		return nil, vmerrors.InstantiationErr(err.Error())
	}
	if err := wireExtraNamespaces(ctx, runtime, opts.ExtraImports); err != nil {
		return nil, vmerrors.InstantiationErr(err.Error())
	}

	runCtx := meter.WithListener(ctx)

	if opts.InstantiationLock != nil {
		opts.InstantiationLock.Lock()
	}
	mod, err := runtime.InstantiateModule(runCtx, compiled, wazero.NewModuleConfig().WithName(""))
	if opts.InstantiationLock != nil {
		opts.InstantiationLock.Unlock()
	}
	if err != nil {
		return nil, vmerrors.InstantiationErr(err.Error())
	}

	inst := &Instance{
		ctx:      runCtx,
		runtime:  runtime,
		compiled: compiled,
		mod:      mod,
		env:      env,
		meter:    meter,
	}
	env.SetAllocator(inst)
	return inst, nil
}

// FromModule builds an Instance from an already-compiled module.
func FromModule(ctx context.Context, runtime wazero.Runtime, compiled wazero.CompiledModule, b backend.Backend, opts Options) (*Instance, error) {
	return fromCompiledModule(ctx, runtime, compiled, b, opts)
}

func wireEnvNamespace(ctx context.Context, runtime wazero.Runtime, env *environment.Environment, opts Options) error {
	b := runtime.NewHostModuleBuilder("env")

	b.NewFunctionBuilder().
		WithGoModuleFunction(imports.DbRead(env), []api.ValueType{i32}, []api.ValueType{i32}).
		Export("db_read")
	b.NewFunctionBuilder().
		WithGoModuleFunction(imports.DbWrite(env), []api.ValueType{i32, i32}, []api.ValueType{}).
		Export("db_write")
	b.NewFunctionBuilder().
		WithGoModuleFunction(imports.DbRemove(env), []api.ValueType{i32}, []api.ValueType{}).
		Export("db_remove")
	b.NewFunctionBuilder().
		WithGoModuleFunction(imports.AddrValidate(env), []api.ValueType{i32}, []api.ValueType{i32}).
		Export("addr_validate")
	b.NewFunctionBuilder().
		WithGoModuleFunction(imports.AddrCanonicalize(env), []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Export("addr_canonicalize")
	b.NewFunctionBuilder().
		WithGoModuleFunction(imports.AddrHumanize(env), []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Export("addr_humanize")
	b.NewFunctionBuilder().
		WithGoModuleFunction(imports.Secp256k1Verify(env), []api.ValueType{i32, i32, i32}, []api.ValueType{i32}).
		Export("secp256k1_verify")
	b.NewFunctionBuilder().
		WithGoModuleFunction(imports.Secp256k1RecoverPubkey(env), []api.ValueType{i32, i32, i32}, []api.ValueType{i64}).
		Export("secp256k1_recover_pubkey")
	b.NewFunctionBuilder().
		WithGoModuleFunction(imports.Ed25519Verify(env), []api.ValueType{i32, i32, i32}, []api.ValueType{i32}).
		Export("ed25519_verify")
	b.NewFunctionBuilder().
		WithGoModuleFunction(imports.Ed25519BatchVerify(env), []api.ValueType{i32, i32, i32}, []api.ValueType{i32}).
		Export("ed25519_batch_verify")
	b.NewFunctionBuilder().
		WithGoModuleFunction(imports.QueryChain(env), []api.ValueType{i32}, []api.ValueType{i32}).
		Export("query_chain")
	b.NewFunctionBuilder().
		WithGoModuleFunction(imports.Debug(env), []api.ValueType{i32}, []api.ValueType{}).
		Export("debug")
	b.NewFunctionBuilder().
		WithGoModuleFunction(imports.Abort(env), []api.ValueType{i32}, []api.ValueType{}).
		Export("abort")

	if hasFeature(opts.SupportedFeatures, "iterator") {
		b.NewFunctionBuilder().
			WithGoModuleFunction(imports.DbScan(env), []api.ValueType{i32, i32, i32}, []api.ValueType{i32}).
			Export("db_scan")
		b.NewFunctionBuilder().
			WithGoModuleFunction(imports.DbNext(env), []api.ValueType{i32}, []api.ValueType{i32}).
			Export("db_next")
	}

	_, err := b.Instantiate(ctx)
	return err
}

func wireExtraNamespaces(ctx context.Context, runtime wazero.Runtime, extra map[string]map[string]ExtraImport) error {
	for namespace, fns := range extra {
		b := runtime.NewHostModuleBuilder(namespace)
		for name, fn := range fns {
			b.NewFunctionBuilder().
				WithGoModuleFunction(fn.Func, fn.Params, fn.Results).
				Export(name)
		}
		if _, err := b.Instantiate(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Api borrows the address API.
func (i *Instance) Api() backend.Api { return i.env.Api() }

// Recycle moves storage and querier back out; ok is false if recycle
// already happened.
func (i *Instance) Recycle() (backend.Backend, bool) { return i.env.Recycle() }

// RequiredCapabilities parses every requires_<name> export.
func (i *Instance) RequiredCapabilities() map[string]struct{} {
	exports := i.compiled.ExportedFunctions()
	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	return capabilities.FromExportNames(names)
}

// MemoryPages returns the current linear memory size in 64 KiB pages.
func (i *Instance) MemoryPages() uint32 {
	return i.mod.Memory().Size() / (64 * 1024)
}

// GetGasLeft returns the embedder's current internal remaining points.
func (i *Instance) GetGasLeft() uint64 { return i.env.GetGasLeft() }

// CreateGasReport snapshots the combined internal/external accounting.
func (i *Instance) CreateGasReport() gas.Report { return i.env.CreateGasReport() }

// SetStorageReadonly gates every write-class storage import.
func (i *Instance) SetStorageReadonly(readonly bool) { i.env.SetStorageReadonly(readonly) }

// WithStorage lends f the live Storage collaborator.
func (i *Instance) WithStorage(f func(backend.Storage) error) error { return i.env.WithStorage(f) }

// WithQuerier lends f the live Querier collaborator.
func (i *Instance) WithQuerier(f func(backend.Querier) error) error { return i.env.WithQuerier(f) }

// Allocate invokes the guest's allocate(size) export.
func (i *Instance) Allocate(size uint32) (uint32, error) { return region.Allocate(i, size) }

// Deallocate invokes the guest's deallocate(ptr) export.
func (i *Instance) Deallocate(ptr uint32) error { return region.Deallocate(i, ptr) }

// ReadMemory reads the Region descriptor at ptr and copies out its
// payload, failing if the Region's length exceeds maxLength.
func (i *Instance) ReadMemory(ptr, maxLength uint32) ([]byte, error) {
	return region.Read(i.mod.Memory(), ptr, maxLength)
}

// WriteMemory writes data into the Region at ptr.
func (i *Instance) WriteMemory(ptr uint32, data []byte) error {
	return region.Write(i.mod.Memory(), ptr, data)
}

// CallFunction1 invokes a named export expecting exactly one result.
func (i *Instance) CallFunction1(name string, args ...uint64) (uint64, error) {
	results, err := i.call(name, args...)
	if err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, vmerrors.RuntimeErr(fmt.Sprintf("%q returned %d results, expected 1", name, len(results)))
	}
	return results[0], nil
}

// CallFunction0 invokes a named export expecting no result.
func (i *Instance) CallFunction0(name string, args ...uint64) error {
	results, err := i.call(name, args...)
	if err != nil {
		return err
	}
	if len(results) != 0 {
		return vmerrors.RuntimeErr(fmt.Sprintf("%q returned %d results, expected 0", name, len(results)))
	}
	return nil
}

func (i *Instance) call(name string, args ...uint64) ([]uint64, error) {
	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		return nil, vmerrors.ResolveErr(fmt.Sprintf("module has no export %q", name))
	}
	results, err := fn.Call(i.ctx, args...)
	if err != nil {
		return nil, i.classifyTrap(err)
	}
	return results, nil
}

// CallExport invokes a top-level guest entry point: it clears any
// residual iterator map, sets the gas limit, performs the call, and on
// a trap classifies it as GasDepletion or RuntimeErr.
func (i *Instance) CallExport(name string, gasLimit uint64, args ...uint64) ([]uint64, error) {
	i.env.ClearIterators()
	i.env.SetGasLeft(gasLimit)
	return i.call(name, args...)
}

// classifyTrap collapses every guest trap into one of exactly two
// buckets: GasDepletion if the internal meter is at zero, otherwise
// RuntimeErr carrying the original message. It never preserves a
// trapped error's own Kind.
func (i *Instance) classifyTrap(err error) error {
	if i.env.GetGasLeft() == 0 {
		return vmerrors.GasDepletion()
	}
	return vmerrors.RuntimeErr(err.Error())
}

// Close tears down the underlying wazero runtime. Safe to call more
// than once.
func (i *Instance) Close() error {
	if !atomic.CompareAndSwapUint32(&i.closed, 0, 1) {
		return nil
	}
	return i.runtime.Close(i.ctx)
}

var _ region.Allocator = (*Instance)(nil)
