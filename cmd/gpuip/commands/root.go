package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ChristofferDahl/gpuip/internal/config"
	"github.com/ChristofferDahl/gpuip/internal/engine"
	"github.com/ChristofferDahl/gpuip/internal/gpu"
	"github.com/ChristofferDahl/gpuip/internal/gpu/cuda"
	"github.com/ChristofferDahl/gpuip/internal/logging"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
	noColor bool

	cfg *config.Config
)

// newDriver opens the device platform commands run on
var newDriver = func() (gpu.Driver, error) {
	drv, err := cuda.NewDriver()
	if err != nil {
		return nil, err
	}
	return drv, nil
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gpuip",
	Short: "Run image processing kernels on the GPU",
	Long: `gpuip executes a pipeline of per-pixel CUDA kernels over image buffers.

A pipeline file declares the raster size, the buffers and the kernels with
their bindings and parameters. gpuip synthesizes the kernel boilerplate,
compiles every kernel into one module, and dispatches the kernels in order.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gpuip/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&quiet, "quiet", "q", false, "quiet mode")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.String("compiler", "", "device compiler command, with {src} and {out} placeholders")
	flags.String("work-dir", "", "directory for transient build files")
	flags.Int("device", -1, "device ordinal to use (-1 picks the fastest)")

	viper.BindPFlag("compiler.command", flags.Lookup("compiler"))
	viper.BindPFlag("build.work_dir", flags.Lookup("work-dir"))
	viper.BindPFlag("device.ordinal", flags.Lookup("device"))
}

// initConfig loads the configuration and sets up logging before any
// command runs
func initConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.LoadWith(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "error"
	}
	if err := logging.Init(level, cfg.Logging.File, cfg.Logging.Console); err != nil {
		return err
	}
	if path := viper.ConfigFileUsed(); path != "" {
		logging.Debugf("using config file %s", path)
	}
	return nil
}

func useColor() bool {
	return cfg.CLI.Color && !noColor
}

// engineOptions builds engine options from the loaded configuration
func engineOptions() (engine.Options, error) {
	c, err := cfg.NewCompiler()
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		Compiler:      c,
		Workspace:     cfg.Workspace(),
		DeviceOrdinal: cfg.Device.Ordinal,
		Log:           logging.Component("engine"),
	}, nil
}
