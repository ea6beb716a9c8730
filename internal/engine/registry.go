package engine

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ChristofferDahl/gpuip/internal/gpu"
)

// InitBuffers releases every allocation held by the engine and allocates
// one block per registered buffer, sized from its descriptor. It stops at
// the first failed allocation; blocks allocated before it stay allocated.
func (e *Engine) InitBuffers() error {
	if e.closed {
		return ErrClosed
	}
	if err := e.freeBuffers(); err != nil {
		return err
	}

	for _, b := range e.pipe.Buffers() {
		size := b.Size()
		buf, err := e.device.Allocate(size)
		if err != nil {
			return &Error{
				Kind:   AllocationFailure,
				Buffer: b.Name,
				Err:    fmt.Errorf("allocating %d bytes: %w", size, err),
			}
		}
		e.buffers[b.Name] = buf
		e.log.WithFields(logrus.Fields{"buffer": b.Name, "bytes": size}).Debug("allocated")
	}
	return nil
}

// Allocated reports whether the named buffer currently has device memory
func (e *Engine) Allocated(name string) bool {
	_, ok := e.buffers[name]
	return ok
}

// checkSize fails when the block allocated for a buffer no longer matches
// its descriptor, which happens when the raster is resized after
// InitBuffers
func checkSize(buf gpu.Buffer, want int64) error {
	if got := buf.Size(); got != want {
		return fmt.Errorf("allocated %d bytes but the descriptor needs %d, run InitBuffers after resizing", got, want)
	}
	return nil
}

func (e *Engine) freeBuffers() error {
	var errs []error
	for name, buf := range e.buffers {
		if err := buf.Free(); err != nil {
			errs = append(errs, &Error{Kind: AllocationFailure, Buffer: name, Err: fmt.Errorf("free: %w", err)})
		}
		delete(e.buffers, name)
	}
	return errors.Join(errs...)
}
