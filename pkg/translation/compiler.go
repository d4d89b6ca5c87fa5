// Package translation drives a control-flow graph through SSA construction
// and code generation into the executable cache, and keeps the guest to host
// function table the generated code dispatches through.
package translation

import (
	"fmt"
	"sync/atomic"

	"translator/pkg/codegen"
	"translator/pkg/diagnostics"
	"translator/pkg/errors"
	"translator/pkg/ir"
	"translator/pkg/jitcache"
	"translator/pkg/ssa"
)

// Compiler turns control-flow graphs into mapped host functions. It is safe
// for concurrent use as long as each call owns its graph.
type Compiler struct {
	cache     *jitcache.Cache
	generator codegen.Generator
	passes    *diagnostics.PassLogger
	dumper    *diagnostics.Dumper

	nextID atomic.Int64
}

type CompilerOption func(*Compiler)

// WithPassLogger times every pass through logger.
func WithPassLogger(logger *diagnostics.PassLogger) CompilerOption {
	return func(c *Compiler) {
		c.passes = logger
	}
}

// WithDumper dumps the IR after SSA construction and the disassembly of
// every mapped function.
func WithDumper(dumper *diagnostics.Dumper) CompilerOption {
	return func(c *Compiler) {
		c.dumper = dumper
	}
}

func NewCompiler(cache *jitcache.Cache, generator codegen.Generator, opts ...CompilerOption) *Compiler {
	c := &Compiler{
		cache:     cache,
		generator: generator,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Compiler) Cache() *jitcache.Cache {
	return c.cache
}

// Compile generates cfg and maps the result. An empty name is replaced by
// a unique "<id>.hcq" or "<id>.lcq" unit name.
func (c *Compiler) Compile(
	cfg *ir.ControlFlowGraph,
	argTypes []ir.OperandType,
	retType ir.OperandType,
	options CompilerOptions,
	name string,
) (*Function, error) {
	if name == "" {
		name = fmt.Sprintf("%d.%s", c.nextID.Add(1)-1, qualitySuffix(options))
	}

	compiled, err := c.CompileFunction(cfg, argTypes, retType, options, name)
	if err != nil {
		return nil, err
	}

	address, err := c.cache.Map(compiled)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping %s", name)
	}

	if c.dumper != nil {
		c.dumper.DumpCode(name+".asm", compiled.Code)
	}

	return &Function{
		Name:    name,
		Address: address,
		Size:    len(compiled.Code),
	}, nil
}

// CompileFunction runs the passes selected by options and returns the code
// without mapping it.
func (c *Compiler) CompileFunction(
	cfg *ir.ControlFlowGraph,
	argTypes []ir.OperandType,
	retType ir.OperandType,
	options CompilerOptions,
	name string,
) (*codegen.CompiledFunction, error) {
	errors.Assert(cfg.HasDominance(), "%s: dominance must be computed before compilation", name)

	if options&SsaForm != 0 {
		pass := c.passes.StartPass(diagnostics.SsaConstruction)
		ssa.Construct(cfg)
		pass.End()

		if c.dumper != nil {
			c.dumper.DumpIR(name, diagnostics.SsaConstruction, cfg)
		}
	} else {
		pass := c.passes.StartPass(diagnostics.RegisterToLocal)
		ssa.RenameRegisters(cfg)
		pass.End()

		if c.dumper != nil {
			c.dumper.DumpIR(name, diagnostics.RegisterToLocal, cfg)
		}
	}

	pass := c.passes.StartPass(diagnostics.CodeGeneration)
	compiled, err := c.generator.Generate(&codegen.Context{
		Cfg:        cfg,
		ArgTypes:   argTypes,
		ReturnType: retType,
		Optimize:   options&Optimize != 0,
		Lsra:       options&Lsra != 0,
	})
	pass.End()

	if err != nil {
		if errors.IsTranslationError(err) {
			return nil, err
		}
		return nil, errors.WrapTranslationError(err, fmt.Sprintf("generating %s", name))
	}

	return compiled, nil
}
