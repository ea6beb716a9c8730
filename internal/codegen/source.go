package codegen

import (
	"fmt"
	"strings"

	"github.com/ChristofferDahl/gpuip/internal/pipeline"
)

// BufferLookup resolves buffer names bound by a kernel
type BufferLookup interface {
	Buffer(name string) (pipeline.Buffer, bool)
}

// Param is one entry of a synthesized kernel signature
type Param struct {
	Type string
	Name string
}

func (p Param) String() string {
	return p.Type + " " + p.Name
}

// Signature returns the kernel parameters in dispatch order: inputs,
// outputs, int params, float params, width, height
func Signature(k *pipeline.Kernel, buffers BufferLookup) ([]Param, error) {
	params := make([]Param, 0, len(k.InBuffers)+len(k.OutBuffers)+len(k.ParamsInt)+len(k.ParamsFloat)+2)

	for _, b := range k.InBuffers {
		buf, ok := buffers.Buffer(b.Buffer)
		if !ok {
			return nil, fmt.Errorf("kernel %s: input %s bound to unknown buffer %s", k.Name, b.Param, b.Buffer)
		}
		params = append(params, Param{Type: "const " + ElementType(buf) + " *", Name: b.Param})
	}
	for _, b := range k.OutBuffers {
		buf, ok := buffers.Buffer(b.Buffer)
		if !ok {
			return nil, fmt.Errorf("kernel %s: output %s bound to unknown buffer %s", k.Name, b.Param, b.Buffer)
		}
		params = append(params, Param{Type: ElementType(buf) + " *", Name: b.Param})
	}
	for _, p := range k.ParamsInt {
		params = append(params, Param{Type: "const int", Name: p.Name})
	}
	for _, p := range k.ParamsFloat {
		params = append(params, Param{Type: "const float", Name: p.Name})
	}
	params = append(params,
		Param{Type: "const int", Name: "width"},
		Param{Type: "const int", Name: "height"},
	)
	return params, nil
}

// Boilerplate returns the kernel definition with the index preamble and a
// zero placeholder for every output. It is the starting point callers
// extend with their per-pixel code.
func Boilerplate(k *pipeline.Kernel, buffers BufferLookup) (string, error) {
	return synthesize(k, buffers, "")
}

// Source returns the code compiled for k: Code verbatim when the caller
// supplied a complete definition, otherwise the boilerplate extended with
// Body.
func Source(k *pipeline.Kernel, buffers BufferLookup) (string, error) {
	if strings.TrimSpace(k.Code) != "" {
		return k.Code, nil
	}
	return synthesize(k, buffers, k.Body)
}

func synthesize(k *pipeline.Kernel, buffers BufferLookup, body string) (string, error) {
	params, err := Signature(k, buffers)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	indent := ",\n" + strings.Repeat(" ", len(k.Name)+1)

	sb.WriteString("__global__ void\n")
	sb.WriteString(k.Name)
	sb.WriteString("(")
	for i, p := range params {
		if i > 0 {
			sb.WriteString(indent)
		}
		sb.WriteString(p.String())
	}
	sb.WriteString(")\n")

	sb.WriteString("{\n")
	sb.WriteString("    const int x = blockIdx.x * blockDim.x + threadIdx.x;\n")
	sb.WriteString("    const int y = blockIdx.y * blockDim.y + threadIdx.y;\n\n")
	sb.WriteString("    // array index\n")
	sb.WriteString("    const int idx = x + width * y;\n\n")
	sb.WriteString("    // inside image bounds check\n")
	sb.WriteString("    if (x >= width || y >= height) {\n")
	sb.WriteString("        return;\n")
	sb.WriteString("    }\n\n")
	sb.WriteString("    // kernel code\n")

	for _, b := range k.OutBuffers {
		buf, _ := buffers.Buffer(b.Buffer)
		fmt.Fprintf(&sb, "    %s[idx] = %s;\n", b.Param, ZeroValue(buf))
	}

	if body = strings.TrimRight(body, " \t\n"); body != "" {
		for _, line := range strings.Split(body, "\n") {
			if strings.TrimSpace(line) == "" {
				sb.WriteString("\n")
				continue
			}
			sb.WriteString("    ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("}")
	return sb.String(), nil
}

// Unit concatenates kernel sources into one compilation unit wrapped in an
// extern "C" block so entry points keep their unmangled names
func Unit(sources []string) string {
	var sb strings.Builder
	sb.WriteString("extern \"C\" { \n")
	for _, src := range sources {
		sb.WriteString(src)
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String()
}
