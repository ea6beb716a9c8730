package compiler

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Workspace places the transient files of a build
type Workspace struct {
	// Dir holds the generated files; empty means the working directory
	Dir       string
	SourceExt string
	ModuleExt string

	Log *logrus.Entry
}

// StageError reports a failure to prepare the compilation unit
type StageError struct {
	Err error
}

func (e *StageError) Error() string { return "staging source: " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// Build writes source to a temporary compilation unit, compiles it with c
// and passes the module path to load. The source file is removed right
// after the compiler exits and the module file after load returns, whether
// or not either step succeeded. Compiler failures skip load.
func (w Workspace) Build(ctx context.Context, c Compiler, source string, load func(path string) error) error {
	dir := w.Dir
	if dir == "" {
		dir = "."
	}
	srcExt := w.SourceExt
	if srcExt == "" {
		srcExt = ".cu"
	}
	modExt := w.ModuleExt
	if modExt == "" {
		modExt = ".ptx"
	}

	f, err := os.CreateTemp(dir, ".gpuip-*"+srcExt)
	if err != nil {
		return &StageError{Err: err}
	}
	srcPath := f.Name()
	outPath := strings.TrimSuffix(srcPath, srcExt) + modExt

	_, err = f.WriteString(source)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		w.remove(srcPath)
		return &StageError{Err: err}
	}

	w.logger().WithFields(logrus.Fields{"src": srcPath, "out": outPath}).Debug("compiling")
	err = c.Compile(ctx, srcPath, outPath)
	w.remove(srcPath)
	defer w.remove(outPath)
	if err != nil {
		return err
	}

	return load(outPath)
}

func (w Workspace) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger().WithError(err).Warnf("failed to remove %s", path)
	}
}

func (w Workspace) logger() *logrus.Entry {
	if w.Log != nil {
		return w.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
