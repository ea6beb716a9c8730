// Package engine implements the CUDA execution backend of a pipeline. An
// Engine binds one device at construction, owns one allocation per
// registered buffer and one compiled module holding an entry point per
// kernel, and dispatches the kernels in registration order.
//
// Typical use:
//
//	e, err := engine.New(p, drv, engine.DefaultOptions())
//	err = e.InitBuffers()
//	err = e.Build()
//	err = e.Copy("in", pipeline.WriteData, pixels)
//	err = e.Process()
//	err = e.Copy("out", pipeline.ReadData, result)
//
// An Engine is not safe for concurrent use.
package engine

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/ChristofferDahl/gpuip/internal/codegen"
	"github.com/ChristofferDahl/gpuip/internal/compiler"
	"github.com/ChristofferDahl/gpuip/internal/gpu"
	"github.com/ChristofferDahl/gpuip/internal/logging"
	"github.com/ChristofferDahl/gpuip/internal/pipeline"
)

// Options configures an Engine
type Options struct {
	// Compiler turns the compilation unit into a loadable module.
	// Defaults to nvcc.
	Compiler compiler.Compiler

	// Workspace places the transient source and module files
	Workspace compiler.Workspace

	// DeviceOrdinal forces a device. Negative selects the device with
	// the highest score.
	DeviceOrdinal int

	Log *logrus.Entry
}

// DefaultOptions selects the best device and compiles with nvcc in the
// working directory
func DefaultOptions() Options {
	return Options{
		Compiler:      compiler.NVCC(),
		DeviceOrdinal: -1,
	}
}

// Engine is the CUDA backend for one pipeline
type Engine struct {
	pipe     *pipeline.Pipeline
	device   gpu.Device
	compiler compiler.Compiler
	ws       compiler.Workspace
	log      *logrus.Entry

	buffers   map[string]gpu.Buffer
	module    gpu.Module
	kernels   []*pipeline.Kernel
	functions []gpu.Function
	closed    bool
}

var _ pipeline.Backend = (*Engine)(nil)

// New binds a device for p. Without a usable device there is no engine:
// the error has kind DeviceSelectionFailure.
func New(p *pipeline.Pipeline, drv gpu.Driver, opts Options) (*Engine, error) {
	log := opts.Log
	if log == nil {
		log = logging.Get().WithField("backend", drv.Name())
	}

	var (
		dev gpu.Device
		err error
	)
	if opts.DeviceOrdinal >= 0 {
		dev, err = gpu.OpenDevice(drv, opts.DeviceOrdinal)
	} else {
		dev, err = gpu.SelectDevice(drv)
	}
	if err != nil {
		return nil, &Error{Kind: DeviceSelectionFailure, Err: err}
	}
	log.WithField("device", dev.Info().String()).Debug("selected device")

	c := opts.Compiler
	if c == nil {
		c = compiler.NVCC()
	}
	ws := opts.Workspace
	if ws.Log == nil {
		ws.Log = log
	}

	return &Engine{
		pipe:     p,
		device:   dev,
		compiler: c,
		ws:       ws,
		log:      log,
		buffers:  make(map[string]gpu.Buffer),
	}, nil
}

// Device returns the properties of the bound device
func (e *Engine) Device() gpu.DeviceInfo {
	return e.device.Info()
}

// Pipeline returns the description the engine executes
func (e *Engine) Pipeline() *pipeline.Pipeline {
	return e.pipe
}

// BoilerplateCode returns the synthesized definition of k: signature,
// index preamble and a zero placeholder per output
func (e *Engine) BoilerplateCode(k *pipeline.Kernel) (string, error) {
	code, err := codegen.Boilerplate(k, e.pipe)
	if err != nil {
		return "", &Error{Kind: InvalidKernel, Kernel: k.Name, Err: err}
	}
	return code, nil
}

// Close frees every allocation, unloads the module and releases the
// device. Calling Close again is a no-op.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if err := e.freeBuffers(); err != nil {
		errs = append(errs, err)
	}
	if err := e.unloadModule(); err != nil {
		errs = append(errs, err)
	}
	if err := e.device.Free(); err != nil {
		errs = append(errs, err)
	}
	e.log.Debug("engine closed")
	return errors.Join(errs...)
}
