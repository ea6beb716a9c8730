package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by operations called after Close
var ErrClosed = errors.New("engine is closed")

// Kind classifies an engine failure
type Kind int

const (
	DeviceSelectionFailure Kind = iota + 1
	AllocationFailure
	CompileFailure
	ModuleLoadFailure
	EntryPointResolutionFailure
	ParameterBindFailure
	LaunchFailure
	TransferFailure
	// NotBuilt means Process ran without a successful Build
	NotBuilt
	// InvalidKernel means a kernel binds a buffer that is not registered
	InvalidKernel
)

var kindNames = map[Kind]string{
	DeviceSelectionFailure:      "device selection",
	AllocationFailure:           "allocation",
	CompileFailure:              "compile",
	ModuleLoadFailure:           "module load",
	EntryPointResolutionFailure: "entry point resolution",
	ParameterBindFailure:        "parameter bind",
	LaunchFailure:               "launch",
	TransferFailure:             "transfer",
	NotBuilt:                    "not built",
	InvalidKernel:               "invalid kernel",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is returned by every engine operation. Kernel, Buffer and Op are
// set when the failure concerns a specific kernel, buffer or transfer
// direction. Output carries compiler diagnostics.
type Error struct {
	Kind   Kind
	Kernel string
	Buffer string
	Op     string
	Output string
	Err    error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	sb.WriteString(" failed")
	if e.Kernel != "" {
		fmt.Fprintf(&sb, " for kernel %s", e.Kernel)
	}
	if e.Buffer != "" {
		if e.Op != "" {
			fmt.Fprintf(&sb, " (%s of buffer %s)", e.Op, e.Buffer)
		} else {
			fmt.Fprintf(&sb, " for buffer %s", e.Buffer)
		}
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if e.Output != "" && (e.Err == nil || !strings.Contains(e.Err.Error(), e.Output)) {
		sb.WriteString("\n")
		sb.WriteString(e.Output)
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err carries an engine Error of the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
