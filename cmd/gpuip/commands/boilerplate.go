package commands

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/spf13/cobra"

	"github.com/ChristofferDahl/gpuip/internal/codegen"
	"github.com/ChristofferDahl/gpuip/internal/pipeline"
)

var boilerplateCmd = &cobra.Command{
	Use:   "boilerplate <pipeline.yaml> [kernel...]",
	Short: "Print the synthesized kernel boilerplate",
	Long: `Print the kernel definition gpuip generates for each kernel: the
signature (inputs, outputs, int params, float params, width, height), the
pixel index and bounds check, and a zero placeholder for every output.

Paste the result into a kernel file and fill in the per-pixel code.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBoilerplate,
}

func init() {
	rootCmd.AddCommand(boilerplateCmd)
}

func runBoilerplate(cmd *cobra.Command, args []string) error {
	p, err := pipeline.Load(args[0])
	if err != nil {
		return err
	}

	kernels := p.Kernels()
	if names := args[1:]; len(names) > 0 {
		kernels = kernels[:0]
		for _, name := range names {
			k := p.Kernel(name)
			if k == nil {
				return fmt.Errorf("kernel %s not found in %s", name, args[0])
			}
			kernels = append(kernels, k)
		}
	}

	out := cmd.OutOrStdout()
	for i, k := range kernels {
		code, err := codegen.Boilerplate(k, p)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		if useColor() {
			code = highlight(code)
		}
		fmt.Fprintln(out, code)
	}
	return nil
}

// highlight renders CUDA source with ANSI colors, returning it unchanged
// when tokenizing fails
func highlight(code string) string {
	lexer := lexers.Get("cuda")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	style := styles.Get("monokai")
	if style == nil {
		style = styles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
