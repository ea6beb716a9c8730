package engine

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ChristofferDahl/gpuip/internal/pipeline"
)

// Copy moves the whole named buffer between data and device memory. The
// byte count comes from the buffer descriptor, so data must hold at least
// width x height x bpp bytes; anything past that is left untouched.
func (e *Engine) Copy(name string, op pipeline.CopyOperation, data []byte) error {
	fail := func(err error) error {
		return &Error{Kind: TransferFailure, Buffer: name, Op: op.String(), Err: err}
	}

	if e.closed {
		return fail(ErrClosed)
	}
	desc, ok := e.pipe.Buffer(name)
	if !ok {
		return fail(errors.New("buffer is not registered"))
	}
	buf, ok := e.buffers[name]
	if !ok {
		return fail(errors.New("buffer is not allocated"))
	}

	size := desc.Size()
	if err := checkSize(buf, size); err != nil {
		return fail(err)
	}
	if int64(len(data)) < size {
		return fail(fmt.Errorf("host buffer holds %d bytes, need %d", len(data), size))
	}

	var err error
	switch op {
	case pipeline.ReadData:
		err = buf.CopyToHost(data[:size])
	case pipeline.WriteData:
		err = buf.CopyFromHost(data[:size])
	default:
		err = fmt.Errorf("invalid copy operation %d", int(op))
	}
	if err != nil {
		return fail(err)
	}

	e.log.WithFields(logrus.Fields{"buffer": name, "op": op.String(), "bytes": size}).Debug("copied")
	return nil
}
