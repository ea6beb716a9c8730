package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/ChristofferDahl/gpuip/internal/engine"
	"github.com/ChristofferDahl/gpuip/internal/imageio"
	"github.com/ChristofferDahl/gpuip/internal/logging"
	"github.com/ChristofferDahl/gpuip/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run <pipeline.yaml>",
	Short: "Execute a pipeline",
	Long: `Allocate the pipeline buffers, build every kernel, upload the inputs,
dispatch the kernels in order and download the outputs.

Inputs and outputs map buffer names to files. PNG, BMP, TIFF and JPEG
files are converted to the buffer layout; .raw files are copied byte for
byte.

  gpuip run blur.yaml --in src=photo.png --out dst=blurred.png

With --watch the pipeline runs again whenever the pipeline file or one of
its kernel files changes.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runInputs  []string
	runOutputs []string
	runWatch   bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArrayVar(&runInputs, "in", nil, "upload a file into a buffer (buffer=path)")
	runCmd.Flags().StringArrayVar(&runOutputs, "out", nil, "download a buffer into a file (buffer=path)")
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "re-run when the pipeline or kernel files change")
}

// assignment maps a buffer to a host file
type assignment struct {
	Buffer string
	Path   string
}

func parseAssignments(values []string) ([]assignment, error) {
	out := make([]assignment, 0, len(values))
	for _, v := range values {
		name, path, ok := strings.Cut(v, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("invalid buffer assignment %q, expected buffer=path", v)
		}
		out = append(out, assignment{Buffer: name, Path: path})
	}
	return out, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	inputs, err := parseAssignments(runInputs)
	if err != nil {
		return err
	}
	outputs, err := parseAssignments(runOutputs)
	if err != nil {
		return err
	}

	job := &runJob{path: args[0], inputs: inputs, outputs: outputs}
	if !runWatch {
		return job.run(cmd)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return job.watch(ctx, cmd)
}

// runJob executes one pipeline file with fixed inputs and outputs
type runJob struct {
	path    string
	inputs  []assignment
	outputs []assignment
	sources []string
}

func (j *runJob) run(cmd *cobra.Command) error {
	file, err := pipeline.ReadFile(j.path)
	if err != nil {
		return err
	}
	j.sources = file.Sources()

	p, err := file.Pipeline()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	drv, err := newDriver()
	if err != nil {
		return fmt.Errorf("device driver not available: %w", err)
	}
	opts, err := engineOptions()
	if err != nil {
		return err
	}
	e, err := engine.New(p, drv, opts)
	if err != nil {
		return err
	}
	defer e.Close()

	start := time.Now()
	if err := e.InitBuffers(); err != nil {
		return err
	}
	if err := e.Build(); err != nil {
		return err
	}
	built := time.Since(start)

	for _, in := range j.inputs {
		desc, ok := p.Buffer(in.Buffer)
		if !ok {
			return fmt.Errorf("unknown input buffer %s", in.Buffer)
		}
		data, err := imageio.Decode(in.Path, desc)
		if err != nil {
			return err
		}
		if err := e.Copy(in.Buffer, pipeline.WriteData, data); err != nil {
			return err
		}
	}

	start = time.Now()
	if err := e.Process(); err != nil {
		return err
	}
	processed := time.Since(start)

	for _, out := range j.outputs {
		desc, ok := p.Buffer(out.Buffer)
		if !ok {
			return fmt.Errorf("unknown output buffer %s", out.Buffer)
		}
		data := make([]byte, desc.Size())
		if err := e.Copy(out.Buffer, pipeline.ReadData, data); err != nil {
			return err
		}
		if err := imageio.Encode(out.Path, desc, data); err != nil {
			return err
		}
	}

	w, h := p.Dimensions()
	fmt.Fprintf(cmd.OutOrStdout(), "%d kernels over %dx%d on %s: build %s, process %s\n",
		len(p.Kernels()), w, h, e.Device().Name, built.Round(time.Millisecond), processed.Round(time.Microsecond))
	return nil
}

// watch runs the job, then again after every change to its source files
// until ctx is done. Failures are reported and the watch continues.
func (j *runJob) watch(ctx context.Context, cmd *cobra.Command) error {
	if err := j.run(cmd); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	}
	if len(j.sources) == 0 {
		j.sources = []string{j.path}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// editors replace files on save, so watch the directories
	watched := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, src := range j.sources {
		abs, err := filepath.Abs(src)
		if err != nil {
			return err
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return err
		}
	}
	logging.Infof("watching %d files", len(watched))

	const settle = 100 * time.Millisecond
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(settle)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warnf("watch error: %v", err)
		case <-pending:
			pending = nil
			fmt.Fprintf(cmd.OutOrStdout(), "%s changed, running again\n", j.path)
			if err := j.run(cmd); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
			}
		}
	}
}
