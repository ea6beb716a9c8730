package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/ChristofferDahl/gpuip/internal/compiler"
)

// Config represents the application configuration
type Config struct {
	Compiler CompilerConfig `mapstructure:"compiler"`
	Build    BuildConfig    `mapstructure:"build"`
	Device   DeviceConfig   `mapstructure:"device"`
	CLI      CLIConfig      `mapstructure:"cli"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type CompilerConfig struct {
	// Command is the device compiler invocation. {src} and {out} are
	// replaced by the generated source and the module path.
	Command   string `mapstructure:"command"`
	SourceExt string `mapstructure:"source_ext"`
	ModuleExt string `mapstructure:"module_ext"`
}

type BuildConfig struct {
	WorkDir string `mapstructure:"work_dir"`
}

type DeviceConfig struct {
	// Ordinal forces a device; -1 picks the one with the highest score
	Ordinal int `mapstructure:"ordinal"`
}

type CLIConfig struct {
	Color bool `mapstructure:"color"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Compiler: CompilerConfig{
			Command:   compiler.DefaultCommand,
			SourceExt: ".cu",
			ModuleExt: ".ptx",
		},
		Build: BuildConfig{
			WorkDir: ".",
		},
		Device: DeviceConfig{
			Ordinal: -1,
		},
		CLI: CLIConfig{
			Color: true,
		},
		Logging: LoggingConfig{
			Level:   "warn",
			File:    "",
			Console: true,
		},
	}
}

// Load loads configuration from file, environment, and defaults
func Load(cfgFile string) (*Config, error) {
	return LoadWith(viper.New(), cfgFile)
}

// LoadWith is Load on a caller-owned viper instance, so command line
// flags bound to it take precedence over file and environment values
func LoadWith(v *viper.Viper, cfgFile string) (*Config, error) {
	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("finding home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".gpuip"))
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("GPUIP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ExpandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := compiler.Parse(c.Compiler.Command); err != nil {
		return fmt.Errorf("compiler.command: %w", err)
	}

	for key, ext := range map[string]string{
		"compiler.source_ext": c.Compiler.SourceExt,
		"compiler.module_ext": c.Compiler.ModuleExt,
	} {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("%s must be a file extension such as .cu, got %q", key, ext)
		}
	}
	if c.Compiler.SourceExt == c.Compiler.ModuleExt {
		return errors.New("compiler.source_ext and compiler.module_ext must differ")
	}

	if c.Device.Ordinal < -1 {
		return errors.New("device.ordinal must be -1 (automatic) or a device index")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// NewCompiler parses the configured device compiler command
func (c *Config) NewCompiler() (*compiler.Command, error) {
	return compiler.Parse(c.Compiler.Command)
}

// Workspace returns where builds place their transient files
func (c *Config) Workspace() compiler.Workspace {
	return compiler.Workspace{
		Dir:       c.Build.WorkDir,
		SourceExt: c.Compiler.SourceExt,
		ModuleExt: c.Compiler.ModuleExt,
	}
}

// ExpandPaths expands ~ and environment variables in paths
func (c *Config) ExpandPaths() {
	c.Build.WorkDir = expandPath(c.Build.WorkDir)
	c.Logging.File = expandPath(c.Logging.File)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("compiler.command", cfg.Compiler.Command)
	v.SetDefault("compiler.source_ext", cfg.Compiler.SourceExt)
	v.SetDefault("compiler.module_ext", cfg.Compiler.ModuleExt)

	v.SetDefault("build.work_dir", cfg.Build.WorkDir)

	v.SetDefault("device.ordinal", cfg.Device.Ordinal)

	v.SetDefault("cli.color", cfg.CLI.Color)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
}
