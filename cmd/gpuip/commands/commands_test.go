package commands

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ChristofferDahl/gpuip/internal/gpu"
	"github.com/ChristofferDahl/gpuip/internal/gpu/gputest"
)

const scalePipeline = `
width: 4
height: 2
buffers:
  - {name: in, type: float, channels: 1}
  - {name: out, type: float, channels: 1}
kernels:
  - name: scale
    inputs:
      - {param: src, buffer: in}
    outputs:
      - {param: dst, buffer: out}
    floats:
      - {name: gain, value: 2.5}
    body: "dst[idx] = src[idx] * gain;"
`

// scale emulates the kernel declared in scalePipeline
func scale(dev *gputest.Device, l gputest.Launch) error {
	src, err := dev.Memory(l.Ptr(0))
	if err != nil {
		return err
	}
	dst, err := dev.Memory(l.Ptr(8))
	if err != nil {
		return err
	}
	gain := l.Float32(16)
	w, h := int(l.Int32(20)), int(l.Int32(24))
	l.ForEach(func(x, y int) {
		if x >= w || y >= h {
			return
		}
		i := (x + w*y) * 4
		v := math.Float32frombits(binary.LittleEndian.Uint32(src[i:]))
		binary.LittleEndian.PutUint32(dst[i:], math.Float32bits(v*gain))
	})
	return nil
}

func useFakeDriver(t *testing.T, devices ...gpu.DeviceInfo) *gputest.Driver {
	t.Helper()
	drv := gputest.NewDriver(devices...)
	prev := newDriver
	newDriver = func() (gpu.Driver, error) { return drv, nil }
	t.Cleanup(func() { newDriver = prev })
	t.Setenv("HOME", t.TempDir())
	return drv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		runInputs, runOutputs, runWatch = nil, nil, false
		noColor, verbose, quiet = false, false, false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunPipeline(t *testing.T) {
	if _, err := exec.LookPath("cp"); err != nil {
		t.Skip("cp not in PATH")
	}
	drv := useFakeDriver(t)
	drv.Register("scale", scale)

	dir := t.TempDir()
	desc := filepath.Join(dir, "scale.yaml")
	if err := os.WriteFile(desc, []byte(scalePipeline), 0644); err != nil {
		t.Fatal(err)
	}
	input := make([]byte, 4*2*4)
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint32(input[i*4:], math.Float32bits(float32(i)))
	}
	inPath := filepath.Join(dir, "in.raw")
	outPath := filepath.Join(dir, "out.raw")
	if err := os.WriteFile(inPath, input, 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "run", desc,
		"--compiler", "cp {src} {out}",
		"--work-dir", dir,
		"--in", "in="+inPath,
		"--out", "out="+outPath,
		"-q")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 kernels over 4x2 on Fake GPU") {
		t.Errorf("unexpected summary: %q", out)
	}

	result, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 8; i++ {
		got := math.Float32frombits(binary.LittleEndian.Uint32(result[i*4:]))
		if want := float32(i) * 2.5; got != want {
			t.Errorf("pixel %d = %v, want %v", i, got, want)
		}
	}

	// only the description, input and output remain
	entries, _ := os.ReadDir(dir)
	if len(entries) != 3 {
		t.Errorf("expected transient build files to be removed, found %d entries", len(entries))
	}
}

func TestRunCompileFailure(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not in PATH")
	}
	useFakeDriver(t)

	desc := filepath.Join(t.TempDir(), "scale.yaml")
	if err := os.WriteFile(desc, []byte(scalePipeline), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, "run", desc, "--compiler", "false {src} {out}", "--work-dir", t.TempDir(), "-q")
	if err == nil || !strings.Contains(err.Error(), "compile failed") {
		t.Errorf("expected compile failure, got %v", err)
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"src=a.png", "dst=dir/b=c.raw"})
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != (assignment{"src", "a.png"}) || got[1] != (assignment{"dst", "dir/b=c.raw"}) {
		t.Errorf("unexpected assignments %+v", got)
	}

	for _, bad := range []string{"src", "=a.png", "src="} {
		if _, err := parseAssignments([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestDevicesCommand(t *testing.T) {
	useFakeDriver(t,
		gpu.DeviceInfo{Name: "Slow Card", MultiProcessors: 4, ClockRateKHz: 1000000, TotalMemory: 2 << 30},
		gpu.DeviceInfo{Name: "Fast Card", MultiProcessors: 80, ClockRateKHz: 1400000, TotalMemory: 16 << 30},
	)

	out, err := execute(t, "devices", "--no-color", "-q")
	if err != nil {
		t.Fatalf("devices failed: %v", err)
	}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if strings.Contains(line, "Fast Card") && !strings.HasPrefix(line, "*") {
			t.Errorf("fastest device not marked: %q", line)
		}
		if strings.Contains(line, "Slow Card") && strings.HasPrefix(line, "*") {
			t.Errorf("slow device marked: %q", line)
		}
	}
	if !strings.Contains(out, "16.0 GiB") {
		t.Errorf("missing memory column: %q", out)
	}
}

func TestBoilerplateCommand(t *testing.T) {
	useFakeDriver(t)
	desc := filepath.Join(t.TempDir(), "scale.yaml")
	if err := os.WriteFile(desc, []byte(scalePipeline), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "boilerplate", desc, "scale", "--no-color", "-q")
	if err != nil {
		t.Fatalf("boilerplate failed: %v", err)
	}
	want := "scale(const float * src,\n      float * dst,\n      const float gain,"
	if !strings.Contains(out, want) {
		t.Errorf("unexpected boilerplate:\n%s", out)
	}

	if _, err := execute(t, "boilerplate", desc, "missing", "-q"); err == nil {
		t.Error("expected error for unknown kernel")
	}
}

func TestHighlight(t *testing.T) {
	code := "__global__ void\nk(const int width, const int height)\n{\n}"
	got := highlight(code)
	if !strings.Contains(got, "\x1b[") {
		t.Errorf("expected ANSI escapes in %q", got)
	}
}

func TestVersionCommand(t *testing.T) {
	useFakeDriver(t)
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "gpuip v"+version) {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{16 << 30, "16.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
