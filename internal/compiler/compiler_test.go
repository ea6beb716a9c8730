package compiler

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not in PATH", name)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		cmdline string
		path    string
		args    []string
	}{
		{DefaultCommand, "nvcc", []string{"-ptx", "{src}", "-o", "{out}", "--Wno-deprecated-gpu-targets"}},
		{"nvcc -ptx", "nvcc", []string{"-ptx", "{src}", "-o", "{out}"}},
		{`clang "-x cuda" {src} -o {out}`, "clang", []string{"-x cuda", "{src}", "-o", "{out}"}},
	}

	for _, tt := range tests {
		t.Run(tt.cmdline, func(t *testing.T) {
			c, err := Parse(tt.cmdline)
			require.NoError(t, err)
			assert.Equal(t, tt.path, c.Path)
			assert.Equal(t, tt.args, c.Args)
		})
	}

	_, err := Parse("   ")
	assert.Error(t, err)
}

func TestCommandArgs(t *testing.T) {
	c := NVCC()
	assert.Equal(t,
		[]string{"-ptx", "a.cu", "-o", "a.ptx", "--Wno-deprecated-gpu-targets"},
		c.args("a.cu", "a.ptx"))
}

func TestCompileFailure(t *testing.T) {
	requireTool(t, "sh")

	c, err := Parse(`sh -c "echo 'kernel.cu(3): error: expected a ;' >&2; exit 2" {src} {out}`)
	require.NoError(t, err)

	err = c.Compile(context.Background(), "in.cu", "out.ptx")
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 2, cerr.ExitCode())
	assert.Contains(t, cerr.Output, "expected a ;")
}

func TestCompileMissingTool(t *testing.T) {
	c := &Command{Path: "definitely-not-a-compiler-gpuip"}
	err := c.Compile(context.Background(), "a", "b")
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, -1, cerr.ExitCode())
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

func TestWorkspaceBuild(t *testing.T) {
	requireTool(t, "cp")
	dir := t.TempDir()
	ws := Workspace{Dir: dir}
	c, err := Parse("cp {src} {out}")
	require.NoError(t, err)

	var loaded string
	err = ws.Build(context.Background(), c, "extern \"C\" { }", func(path string) error {
		assert.True(t, strings.HasSuffix(path, ".ptx"))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		loaded = string(data)

		// the source is gone before the module is loaded
		for _, name := range dirEntries(t, dir) {
			assert.False(t, strings.HasSuffix(name, ".cu"), name)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "extern \"C\" { }", loaded)
	assert.Empty(t, dirEntries(t, dir))
}

func TestWorkspaceCompileFailureSkipsLoad(t *testing.T) {
	requireTool(t, "false")
	dir := t.TempDir()
	ws := Workspace{Dir: dir}

	called := false
	err := ws.Build(context.Background(), &Command{Path: "false"}, "bad", func(string) error {
		called = true
		return nil
	})

	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.False(t, called)
	assert.Empty(t, dirEntries(t, dir))
}

func TestWorkspaceLoadFailureCleansUp(t *testing.T) {
	requireTool(t, "cp")
	dir := t.TempDir()
	ws := Workspace{Dir: dir, SourceExt: ".src", ModuleExt: ".bin"}
	c, err := Parse("cp {src} {out}")
	require.NoError(t, err)

	loadErr := errors.New("invalid module")
	err = ws.Build(context.Background(), c, "x", func(path string) error {
		assert.True(t, strings.HasSuffix(path, ".bin"))
		return loadErr
	})
	assert.ErrorIs(t, err, loadErr)
	assert.Empty(t, dirEntries(t, dir))
}

func TestWorkspaceStageError(t *testing.T) {
	ws := Workspace{Dir: "/nonexistent/gpuip/dir"}
	err := ws.Build(context.Background(), NVCC(), "x", func(string) error { return nil })

	var serr *StageError
	assert.True(t, errors.As(err, &serr))
}
