package translation

import (
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"translator/pkg/codegen"
	"translator/pkg/diagnostics"
	"translator/pkg/errors"
	"translator/pkg/ir"
	"translator/pkg/memory"
)

type fakeGenerator struct {
	code []byte
	err  error
}

func (g fakeGenerator) Generate(*codegen.Context) (*codegen.CompiledFunction, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &codegen.CompiledFunction{Code: g.code}, nil
}

func TestCompileMapsIntoCache(t *testing.T) {
	cache := newCache(t, memory.HeapAllocator{}, 1<<20)
	compiler := NewCompiler(cache, codegen.AMD64Generator{})

	fn, err := compiler.Compile(withDominance(diamond()), unary, ir.I64, HighCq, "")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if fn.Name != "0.hcq" {
		t.Errorf("Name = %q, want 0.hcq", fn.Name)
	}
	base := cache.Base()
	if fn.Address < base || fn.Address >= base+uintptr(cache.Size()) {
		t.Fatalf("address 0x%x outside cache [0x%x, 0x%x)", fn.Address, base, base+uintptr(cache.Size()))
	}

	entry, ok := cache.TryFind(int(fn.Address - base))
	if !ok {
		t.Fatalf("TryFind found no entry at the function start")
	}
	if entry.Size != fn.Size {
		t.Errorf("entry size = %d, want %d", entry.Size, fn.Size)
	}

	lowCq, err := compiler.Compile(withDominance(fibonacci()), unary, ir.I64, None, "")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if lowCq.Name != "1.lcq" {
		t.Errorf("Name = %q, want 1.lcq", lowCq.Name)
	}
	if got := cache.Stats().Functions; got != 2 {
		t.Errorf("Functions = %d, want 2", got)
	}
}

func TestCompileRequiresDominance(t *testing.T) {
	cache := newCache(t, memory.HeapAllocator{}, 1<<20)
	compiler := NewCompiler(cache, codegen.AMD64Generator{})

	defer func() {
		if v := recover(); !errors.IsAssertionFailure(v) {
			t.Fatalf("recovered %v, want an assertion failure", v)
		}
	}()

	compiler.Compile(diamond(), unary, ir.I64, HighCq, "")
	t.Fatalf("Compile accepted a graph without dominance")
}

func TestCompileWithoutSsaRenamesRegisters(t *testing.T) {
	cache := newCache(t, memory.HeapAllocator{}, 1<<20)
	compiler := NewCompiler(cache, codegen.AMD64Generator{})

	cfg := withDominance(fibonacci())
	if _, err := compiler.CompileFunction(cfg, unary, ir.I64, None, "fib"); err != nil {
		t.Fatalf("CompileFunction failed: %v", err)
	}

	for _, block := range cfg.Blocks {
		if phis := block.Phis(); len(phis) != 0 {
			t.Errorf("block %d has %d phis", block.Index, len(phis))
		}
		for _, node := range block.Operations {
			operands := []*ir.Operand{node.Destination()}
			for i := 0; i < node.SourcesCount(); i++ {
				operands = append(operands, node.Source(i))
			}
			for _, operand := range operands {
				if operand != nil && operand.Kind == ir.KindRegister {
					t.Errorf("block %d still references %v", block.Index, operand)
				}
			}
		}
	}

	if got := cache.Stats().Functions; got != 0 {
		t.Errorf("CompileFunction mapped %d functions", got)
	}
}

func TestCompileWrapsGeneratorErrors(t *testing.T) {
	cause := errors.New("register file exhausted")
	cache := newCache(t, memory.HeapAllocator{}, 1<<20)
	compiler := NewCompiler(cache, fakeGenerator{err: cause})

	_, err := compiler.Compile(withDominance(diamond()), unary, ir.I64, HighCq, "f")
	if !errors.IsTranslationError(err) {
		t.Fatalf("err = %v, want a translation error", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("err = %v does not wrap the generator error", err)
	}

	translationErr := errors.TranslationErrorf("unsupported instruction")
	compiler = NewCompiler(cache, fakeGenerator{err: translationErr})
	_, err = compiler.Compile(withDominance(diamond()), unary, ir.I64, HighCq, "g")
	if err != error(translationErr) {
		t.Errorf("err = %v, want the generator's translation error unchanged", err)
	}

	if got := cache.Stats().Functions; got != 0 {
		t.Errorf("failed compilations mapped %d functions", got)
	}
}

func TestCompileCacheExhausted(t *testing.T) {
	cache := newCache(t, memory.HeapAllocator{}, memory.PageSize)
	compiler := NewCompiler(cache, fakeGenerator{code: make([]byte, 2*memory.PageSize)})

	_, err := compiler.Compile(withDominance(diamond()), unary, ir.I64, HighCq, "big")
	if !errors.Is(err, errors.ErrCacheExhausted) {
		t.Fatalf("err = %v, want ErrCacheExhausted", err)
	}
}

func TestCompileDumps(t *testing.T) {
	store, err := diagnostics.OpenMemDumpStore()
	if err != nil {
		t.Fatalf("OpenMemDumpStore failed: %v", err)
	}
	defer store.Close()

	dumper, err := diagnostics.NewDumper(store, 2)
	if err != nil {
		t.Fatalf("NewDumper failed: %v", err)
	}

	cache := newCache(t, memory.HeapAllocator{}, 1<<20)
	compiler := NewCompiler(cache, codegen.AMD64Generator{},
		WithDumper(dumper),
		WithPassLogger(diagnostics.NewPassLogger(false)))

	if _, err := compiler.Compile(withDominance(diamond()), unary, ir.I64, HighCq, "diamond"); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, err := compiler.Compile(withDominance(fibonacci()), unary, ir.I64, None, "fib"); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if err := dumper.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	code, err := store.List(diagnostics.SetBase)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if diff := cmp.Diff([]string{"diamond.asm", "fib.asm"}, code); diff != "" {
		t.Errorf("code dumps mismatch (-want +got):\n%s", diff)
	}

	irDumps, err := store.List(diagnostics.SetBaseIR)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"diamond-SsaConstruction.ir", "fib-RegisterToLocal.ir"}
	if diff := cmp.Diff(want, irDumps); diff != "" {
		t.Errorf("IR dumps mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentCompiles(t *testing.T) {
	const workers = 16

	cache := newCache(t, memory.HeapAllocator{}, 1<<20)
	compiler := NewCompiler(cache, codegen.AMD64Generator{})

	var wg sync.WaitGroup
	functions := make([]*Function, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			options := HighCq
			if i%2 == 1 {
				options = None
			}
			functions[i], errs[i] = compiler.Compile(withDominance(fibonacci()), unary, ir.I64, options, "")
		}(i)
	}
	wg.Wait()

	names := make(map[string]bool)
	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
		if names[functions[i].Name] {
			t.Errorf("name %q assigned twice", functions[i].Name)
		}
		names[functions[i].Name] = true
	}

	sort.Slice(functions, func(i, j int) bool { return functions[i].Address < functions[j].Address })
	for i := 1; i < len(functions); i++ {
		prev := functions[i-1]
		if prev.Address+uintptr(prev.Size) > functions[i].Address {
			t.Errorf("%v overlaps %v", prev, functions[i])
		}
	}

	if got := cache.Stats().Functions; got != workers {
		t.Errorf("Functions = %d, want %d", got, workers)
	}
}

func TestCompilerOptions(t *testing.T) {
	tests := []struct {
		options CompilerOptions
		want    string
	}{
		{None, "None"},
		{MediumCq, "MediumCq"},
		{HighCq, "HighCq"},
		{SsaForm, "SsaForm"},
		{SsaForm | Lsra, "SsaForm|Lsra"},
	}
	for _, tt := range tests {
		if got := tt.options.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.options), got, tt.want)
		}
	}

	for mode, want := range map[string]CompilerOptions{"": HighCq, "HighCq": HighCq, "mediumcq": MediumCq, "lowcq": None} {
		got, err := ParseCompilerOptions(mode)
		if err != nil || got != want {
			t.Errorf("ParseCompilerOptions(%q) = %v, %v; want %v", mode, got, err, want)
		}
	}
	if _, err := ParseCompilerOptions("fastest"); err == nil {
		t.Errorf("ParseCompilerOptions accepted an unknown mode")
	}
}

func TestCompileRejectsOversizedFrame(t *testing.T) {
	cache := newCache(t, memory.HeapAllocator{}, 1<<20)
	compiler := NewCompiler(cache, codegen.AMD64Generator{})

	_, err := compiler.Compile(withDominance(increments(4000)), unary, ir.I64, HighCq, "")
	if !errors.IsTranslationError(err) {
		t.Fatalf("err = %v, want a translation error", err)
	}
	if got := cache.Stats().Functions; got != 0 {
		t.Errorf("rejected function was mapped: %d functions", got)
	}
}
