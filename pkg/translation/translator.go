package translation

import (
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"translator/pkg/addresstable"
	"translator/pkg/diagnostics"
	"translator/pkg/errors"
	"translator/pkg/ir"
)

// Frontend decodes the guest function at an address into a control-flow
// graph. Dominance may be left for the translator to compute.
type Frontend interface {
	Translate(guestAddress uint64) (*ir.ControlFlowGraph, error)
}

// Translator compiles guest functions on demand and publishes their host
// addresses in a function table that generated code can walk directly.
//
// Guest functions take one I64 argument and return I64.
type Translator struct {
	compiler  *Compiler
	frontend  Frontend
	passes    *diagnostics.PassLogger
	functions *addresstable.Table[uintptr]

	// mu orders publishing against invalidation of the same slot.
	// generations counts invalidations per guest address; a compilation
	// that started before an invalidation is never published.
	mu          sync.Mutex
	generations map[uint64]uint64
	inflight    singleflight.Group
}

func NewTranslator(compiler *Compiler, frontend Frontend) *Translator {
	return &Translator{
		compiler:  compiler,
		frontend:  frontend,
		passes:    compiler.passes,
		functions:   addresstable.New[uintptr](),
		generations: make(map[uint64]uint64),
	}
}

// FunctionTableBase returns the root of the function table.
func (t *Translator) FunctionTableBase() uintptr {
	return t.functions.Base()
}

// GetFunctionAddress returns the host address for guestAddress, compiling
// it at full quality and publishing it on first use. Concurrent requests for
// the same address share one compilation.
func (t *Translator) GetFunctionAddress(guestAddress uint64) (uintptr, error) {
	if address, ok := t.functions.TryGetValue(guestAddress); ok {
		return address, nil
	}

	key := strconv.FormatUint(guestAddress, 16)
	result, err, _ := t.inflight.Do(key, func() (interface{}, error) {
		for {
			if address, ok := t.functions.TryGetValue(guestAddress); ok {
				return address, nil
			}

			t.mu.Lock()
			generation := t.generations[guestAddress]
			t.mu.Unlock()

			fn, err := t.translate(guestAddress, HighCq)
			if err != nil {
				return uintptr(0), err
			}

			t.mu.Lock()
			if t.generations[guestAddress] == generation {
				t.functions.SetValue(guestAddress, fn.Address)
				t.mu.Unlock()
				return fn.Address, nil
			}
			t.mu.Unlock()

			// Invalidated while compiling; the result may be stale.
			t.compiler.cache.EnqueuePurge(fn.Address)
		}
	})
	if err != nil {
		return 0, err
	}
	return result.(uintptr), nil
}

// GetFunctionAddressWithoutRejit returns the published address when there is
// one. Otherwise it compiles a low quality copy that is not published; the
// caller owns it and releases it through the cache.
func (t *Translator) GetFunctionAddressWithoutRejit(guestAddress uint64) (uintptr, error) {
	if address, ok := t.functions.TryGetValue(guestAddress); ok {
		return address, nil
	}

	fn, err := t.translate(guestAddress, None)
	if err != nil {
		return 0, err
	}
	return fn.Address, nil
}

// Invalidate unpublishes guestAddress and queues its code for purging. A
// compilation of guestAddress already in flight is discarded and redone. It
// reports whether anything was published.
func (t *Translator) Invalidate(guestAddress uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.generations[guestAddress]++

	address, ok := t.functions.TryGetValue(guestAddress)
	if !ok {
		return false
	}

	t.functions.SetValue(guestAddress, 0)
	t.compiler.cache.EnqueuePurge(address)
	return true
}

func (t *Translator) translate(guestAddress uint64, options CompilerOptions) (*Function, error) {
	pass := t.passes.StartPass(diagnostics.Translation)
	cfg, err := t.frontend.Translate(guestAddress)
	pass.End()
	if err != nil {
		return nil, errors.WrapTranslationError(err, fmt.Sprintf("decoding guest function 0x%x", guestAddress))
	}

	if !cfg.HasDominance() {
		pass := t.passes.StartPass(diagnostics.Dominance)
		ir.ComputeDominance(cfg)
		pass.End()
	}

	name := fmt.Sprintf("0x%x.%s", guestAddress, qualitySuffix(options))
	return t.compiler.Compile(cfg, []ir.OperandType{ir.I64}, ir.I64, options, name)
}
