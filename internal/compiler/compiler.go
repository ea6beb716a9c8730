// Package compiler drives the external device compiler. A Workspace owns
// the transient source and module files of one build and removes both on
// every exit path.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Placeholders substituted into command arguments
const (
	SourcePlaceholder = "{src}"
	OutputPlaceholder = "{out}"
)

// DefaultCommand compiles CUDA C to PTX with nvcc
const DefaultCommand = "nvcc -ptx {src} -o {out} --Wno-deprecated-gpu-targets"

// Compiler turns a source file into a loadable module file, failing when
// the toolchain exits non-zero
type Compiler interface {
	Compile(ctx context.Context, src, out string) error
}

// Command is a Compiler backed by an external process
type Command struct {
	Path string
	Args []string
}

// Parse splits a shell-style command line. Arguments may reference
// {src} and {out}; when neither appears they are appended as
// "{src} -o {out}".
func Parse(cmdline string) (*Command, error) {
	words, err := shellwords.Parse(cmdline)
	if err != nil {
		return nil, fmt.Errorf("parsing compiler command %q: %w", cmdline, err)
	}
	if len(words) == 0 {
		return nil, errors.New("compiler command is empty")
	}

	c := &Command{Path: words[0], Args: words[1:]}
	if !strings.Contains(cmdline, SourcePlaceholder) && !strings.Contains(cmdline, OutputPlaceholder) {
		c.Args = append(c.Args, SourcePlaceholder, "-o", OutputPlaceholder)
	}
	return c, nil
}

// NVCC returns the default nvcc command
func NVCC() *Command {
	c, _ := Parse(DefaultCommand)
	return c
}

func (c *Command) args(src, out string) []string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		a = strings.ReplaceAll(a, SourcePlaceholder, src)
		args[i] = strings.ReplaceAll(a, OutputPlaceholder, out)
	}
	return args
}

// Compile runs the command and captures its combined output
func (c *Command) Compile(ctx context.Context, src, out string) error {
	cmd := exec.CommandContext(ctx, c.Path, c.args(src, out)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &Error{
			Command: cmd.String(),
			Output:  strings.TrimSpace(string(output)),
			Err:     err,
		}
	}
	return nil
}

func (c *Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Error reports a failed compiler run
type Error struct {
	Command string
	Output  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode returns the toolchain's exit status, or -1 when it did not run
func (e *Error) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.Err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
