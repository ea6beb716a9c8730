package engine

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ChristofferDahl/gpuip/internal/gpu"
	"github.com/ChristofferDahl/gpuip/internal/pipeline"
)

// BlockSize is the edge of the square thread block every kernel runs with
const BlockSize = 16

// GridDim returns the number of blocks along an axis of n pixels. It
// always adds one block, so the grid covers n even when n is a multiple
// of BlockSize; kernels drop the excess units with their bounds check.
func GridDim(n int) int {
	return n/BlockSize + 1
}

// LaunchGeometry returns the grid and block extents for a width x height
// raster
func LaunchGeometry(width, height int) (grid, block gpu.Dim3) {
	grid = gpu.Dim3{X: GridDim(width), Y: GridDim(height), Z: 1}
	block = gpu.Dim3{X: BlockSize, Y: BlockSize, Z: 1}
	return grid, block
}

// Process runs every kernel once over the raster, in registration order.
// Each dispatch completes before the next starts. The first failure stops
// the remaining kernels and names the kernel that failed.
func (e *Engine) Process() error {
	if e.closed {
		return ErrClosed
	}
	if e.module == nil {
		return &Error{Kind: NotBuilt, Err: errors.New("process called before a successful build")}
	}
	if err := e.checkBuilt(); err != nil {
		return err
	}

	width, height := e.pipe.Dimensions()
	grid, block := LaunchGeometry(width, height)

	for i, k := range e.kernels {
		args, err := e.marshal(k, width, height)
		if err != nil {
			return err
		}

		e.log.WithFields(logrus.Fields{
			"kernel": k.Name,
			"grid":   fmt.Sprintf("%dx%d", grid.X, grid.Y),
			"args":   args.Len(),
		}).Debug("dispatching")

		if err := e.functions[i].Launch(grid, block, args.Bytes()); err != nil {
			return &Error{Kind: LaunchFailure, Kernel: k.Name, Err: err}
		}
		if err := e.device.Sync(); err != nil {
			return &Error{Kind: LaunchFailure, Kernel: k.Name, Err: fmt.Errorf("synchronizing: %w", err)}
		}
	}
	return nil
}

// checkBuilt fails when the registered kernels differ from the ones the
// last Build resolved
func (e *Engine) checkBuilt() error {
	registered := e.pipe.Kernels()
	for i, k := range registered {
		if i >= len(e.kernels) || e.kernels[i] != k {
			return &Error{Kind: NotBuilt, Kernel: k.Name, Err: errors.New("kernel registered after the last build")}
		}
	}
	if len(e.kernels) != len(registered) {
		return &Error{Kind: NotBuilt, Err: fmt.Errorf("built %d kernels, %d registered", len(e.kernels), len(registered))}
	}
	return nil
}

// marshal packs the arguments of k in signature order: input buffers,
// output buffers, int params, float params, width, height
func (e *Engine) marshal(k *pipeline.Kernel, width, height int) (*gpu.Args, error) {
	var args gpu.Args

	for _, bindings := range [][]pipeline.Binding{k.InBuffers, k.OutBuffers} {
		for _, b := range bindings {
			buf, ok := e.buffers[b.Buffer]
			if !ok {
				return nil, &Error{
					Kind:   ParameterBindFailure,
					Kernel: k.Name,
					Buffer: b.Buffer,
					Err:    fmt.Errorf("parameter %s: buffer is not allocated", b.Param),
				}
			}
			desc, _ := e.pipe.Buffer(b.Buffer)
			if err := checkSize(buf, desc.Size()); err != nil {
				return nil, &Error{Kind: ParameterBindFailure, Kernel: k.Name, Buffer: b.Buffer, Err: err}
			}
			args.Ptr(buf.Ptr())
		}
	}
	for _, p := range k.ParamsInt {
		args.Int32(p.Value)
	}
	for _, p := range k.ParamsFloat {
		args.Float32(p.Value)
	}
	args.Int32(int32(width))
	args.Int32(int32(height))

	return &args, nil
}
