package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML form of a pipeline
type File struct {
	Width   int          `yaml:"width"`
	Height  int          `yaml:"height"`
	Buffers []BufferSpec `yaml:"buffers"`
	Kernels []KernelSpec `yaml:"kernels"`

	path string
}

// BufferSpec declares a buffer either by element type or by an explicit
// bytes-per-pixel count
type BufferSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Channels int    `yaml:"channels"`
	BPP      int    `yaml:"bpp"`
}

// BindingSpec maps a kernel parameter to a buffer
type BindingSpec struct {
	Param  string `yaml:"param"`
	Buffer string `yaml:"buffer"`
}

// IntSpec is an int parameter with its initial value
type IntSpec struct {
	Name  string `yaml:"name"`
	Value int32  `yaml:"value"`
}

// FloatSpec is a float parameter with its initial value
type FloatSpec struct {
	Name  string  `yaml:"name"`
	Value float32 `yaml:"value"`
}

// KernelSpec declares a kernel. File, when set, is read relative to the
// pipeline file and used as the complete kernel source.
type KernelSpec struct {
	Name    string        `yaml:"name"`
	Inputs  []BindingSpec `yaml:"inputs"`
	Outputs []BindingSpec `yaml:"outputs"`
	Ints    []IntSpec     `yaml:"ints"`
	Floats  []FloatSpec   `yaml:"floats"`
	Body    string        `yaml:"body"`
	File    string        `yaml:"file"`
}

// ReadFile parses a pipeline file without resolving kernel sources
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing pipeline %s: %w", path, err)
	}
	f.path = path
	return &f, nil
}

// Load reads a pipeline file and builds the validated pipeline
func Load(path string) (*Pipeline, error) {
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return f.Pipeline()
}

// Sources returns the pipeline file followed by every kernel source file
// it references
func (f *File) Sources() []string {
	out := []string{f.path}
	for _, k := range f.Kernels {
		if k.File != "" {
			out = append(out, f.resolve(k.File))
		}
	}
	return out
}

func (f *File) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(filepath.Dir(f.path), name)
}

// Pipeline converts the file into a Pipeline
func (f *File) Pipeline() (*Pipeline, error) {
	p := New(f.Width, f.Height)

	for _, bs := range f.Buffers {
		var err error
		if bs.BPP > 0 {
			_, err = p.AddBuffer(Buffer{
				Name:     bs.Name,
				Width:    f.Width,
				Height:   f.Height,
				BPP:      bs.BPP,
				Channels: bs.Channels,
			})
		} else {
			kind, perr := ParseElementKind(bs.Type)
			if perr != nil {
				return nil, fmt.Errorf("buffer %s: %w", bs.Name, perr)
			}
			_, err = p.CreateBuffer(bs.Name, kind, bs.Channels)
		}
		if err != nil {
			return nil, err
		}
	}

	for _, ks := range f.Kernels {
		k, err := p.CreateKernel(ks.Name)
		if err != nil {
			return nil, err
		}
		for _, b := range ks.Inputs {
			k.SetInBuffer(b.Param, b.Buffer)
		}
		for _, b := range ks.Outputs {
			k.SetOutBuffer(b.Param, b.Buffer)
		}
		for _, ip := range ks.Ints {
			k.SetParamInt(ip.Name, ip.Value)
		}
		for _, fp := range ks.Floats {
			k.SetParamFloat(fp.Name, fp.Value)
		}
		k.Body = ks.Body
		if ks.File != "" {
			code, err := os.ReadFile(f.resolve(ks.File))
			if err != nil {
				return nil, fmt.Errorf("kernel %s: %w", ks.Name, err)
			}
			k.Code = string(code)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
