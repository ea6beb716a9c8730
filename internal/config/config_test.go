package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Device.Ordinal != -1 {
		t.Errorf("expected automatic device selection, got ordinal %d", cfg.Device.Ordinal)
	}

	c, err := cfg.NewCompiler()
	if err != nil {
		t.Fatalf("NewCompiler failed: %v", err)
	}
	if c.Path != "nvcc" {
		t.Errorf("expected nvcc, got %s", c.Path)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
compiler:
  command: "clang++ --cuda-device-only -S {src} -o {out}"
build:
  work_dir: /tmp/gpuip-build
device:
  ordinal: 1
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Device.Ordinal != 1 {
		t.Errorf("device.ordinal = %d, want 1", cfg.Device.Ordinal)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %s, want debug", cfg.Logging.Level)
	}
	// unset keys keep their defaults
	if cfg.Compiler.ModuleExt != ".ptx" {
		t.Errorf("compiler.module_ext = %s, want .ptx", cfg.Compiler.ModuleExt)
	}

	ws := cfg.Workspace()
	if ws.Dir != "/tmp/gpuip-build" || ws.SourceExt != ".cu" {
		t.Errorf("unexpected workspace %+v", ws)
	}

	c, err := cfg.NewCompiler()
	if err != nil {
		t.Fatalf("NewCompiler failed: %v", err)
	}
	if c.Path != "clang++" || len(c.Args) != 5 {
		t.Errorf("unexpected compiler %s %v", c.Path, c.Args)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "device:\n  ordinal: 1\n")
	t.Setenv("GPUIP_DEVICE_ORDINAL", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Device.Ordinal != 3 {
		t.Errorf("device.ordinal = %d, want 3 from the environment", cfg.Device.Ordinal)
	}
}

func TestLoadWithFlagPrecedence(t *testing.T) {
	path := writeConfig(t, "build:\n  work_dir: from-file\n")
	v := viper.New()
	v.Set("build.work_dir", "from-flag")

	cfg, err := LoadWith(v, path)
	if err != nil {
		t.Fatalf("LoadWith failed: %v", err)
	}
	if cfg.Build.WorkDir != "from-flag" {
		t.Errorf("build.work_dir = %s, want from-flag", cfg.Build.WorkDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for an explicit config file that does not exist")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty compiler", func(c *Config) { c.Compiler.Command = "" }},
		{"unbalanced quote", func(c *Config) { c.Compiler.Command = `nvcc "-ptx` }},
		{"bare extension", func(c *Config) { c.Compiler.SourceExt = "cu" }},
		{"same extensions", func(c *Config) { c.Compiler.ModuleExt = ".cu" }},
		{"bad ordinal", func(c *Config) { c.Device.Ordinal = -2 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestExpandPaths(t *testing.T) {
	t.Setenv("GPUIP_TEST_DIR", "/var/tmp/x")
	cfg := DefaultConfig()
	cfg.Build.WorkDir = "$GPUIP_TEST_DIR/build"
	cfg.ExpandPaths()
	if cfg.Build.WorkDir != "/var/tmp/x/build" {
		t.Errorf("WorkDir = %s", cfg.Build.WorkDir)
	}
}
