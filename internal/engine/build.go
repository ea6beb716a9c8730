package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ChristofferDahl/gpuip/internal/codegen"
	"github.com/ChristofferDahl/gpuip/internal/compiler"
	"github.com/ChristofferDahl/gpuip/internal/gpu"
)

// Build compiles every kernel into one module and resolves an entry point
// per kernel. A previously built module is unloaded first, so Build can
// be repeated after kernel sources change.
func (e *Engine) Build() error {
	return e.BuildContext(context.Background())
}

// BuildContext is Build with a context bounding the compiler run
func (e *Engine) BuildContext(ctx context.Context) error {
	if e.closed {
		return ErrClosed
	}
	if err := e.unloadModule(); err != nil {
		e.log.WithError(err).Warn("failed to unload previous module")
	}

	kernels := e.pipe.Kernels()
	sources := make([]string, len(kernels))
	for i, k := range kernels {
		src, err := codegen.Source(k, e.pipe)
		if err != nil {
			return &Error{Kind: InvalidKernel, Kernel: k.Name, Err: err}
		}
		sources[i] = src
	}
	unit := codegen.Unit(sources)

	var mod gpu.Module
	err := e.ws.Build(ctx, e.compiler, unit, func(path string) error {
		e.log.WithField("module", path).Debug("loading module")
		m, err := e.device.LoadModule(path)
		if err != nil {
			return &Error{Kind: ModuleLoadFailure, Err: err}
		}
		mod = m
		return nil
	})
	if err != nil {
		return buildError(err)
	}

	functions := make([]gpu.Function, len(kernels))
	for i, k := range kernels {
		fn, err := mod.Function(k.Name)
		if err != nil {
			if uerr := mod.Unload(); uerr != nil {
				e.log.WithError(uerr).Warn("failed to unload module")
			}
			return &Error{Kind: EntryPointResolutionFailure, Kernel: k.Name, Err: err}
		}
		functions[i] = fn
		e.log.WithField("kernel", k.Name).Debug("resolved entry point")
	}

	e.module = mod
	e.kernels = kernels
	e.functions = functions
	e.log.WithFields(logrus.Fields{"kernels": len(kernels)}).Info("build complete")
	return nil
}

// Built reports whether a module is loaded and every kernel resolved
func (e *Engine) Built() bool {
	return e.module != nil
}

func buildError(err error) error {
	var (
		engineErr *Error
		compErr   *compiler.Error
		stageErr  *compiler.StageError
	)
	switch {
	case errors.As(err, &engineErr):
		return engineErr
	case errors.As(err, &compErr):
		return &Error{Kind: CompileFailure, Output: compErr.Output, Err: err}
	case errors.As(err, &stageErr):
		return &Error{Kind: CompileFailure, Err: err}
	default:
		return &Error{Kind: CompileFailure, Err: fmt.Errorf("compiling: %w", err)}
	}
}

func (e *Engine) unloadModule() error {
	if e.module == nil {
		return nil
	}
	mod := e.module
	e.module = nil
	e.kernels = nil
	e.functions = nil
	if err := mod.Unload(); err != nil {
		return &Error{Kind: ModuleLoadFailure, Err: fmt.Errorf("unload: %w", err)}
	}
	return nil
}
