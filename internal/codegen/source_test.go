package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChristofferDahl/gpuip/internal/pipeline"
)

const boilerplateA = `__global__ void
my_kernelA(const float * A,
           float * B,
           float * C,
           const int incA,
           const float incB,
           const int width,
           const int height)
{
    const int x = blockIdx.x * blockDim.x + threadIdx.x;
    const int y = blockIdx.y * blockDim.y + threadIdx.y;

    // array index
    const int idx = x + width * y;

    // inside image bounds check
    if (x >= width || y >= height) {
        return;
    }

    // kernel code
    B[idx] = 0;
    C[idx] = 0;
}`

const boilerplateB = `__global__ void
my_kernelB(const float * B,
           const float * C,
           float * A,
           const int width,
           const int height)
{
    const int x = blockIdx.x * blockDim.x + threadIdx.x;
    const int y = blockIdx.y * blockDim.y + threadIdx.y;

    // array index
    const int idx = x + width * y;

    // inside image bounds check
    if (x >= width || y >= height) {
        return;
    }

    // kernel code
    A[idx] = 0;
}`

func newTestPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p := pipeline.New(4, 4)
	for _, name := range []string{"b0", "b1", "b2"} {
		_, err := p.CreateBuffer(name, pipeline.Float, 1)
		require.NoError(t, err)
	}
	return p
}

func TestBoilerplate(t *testing.T) {
	p := newTestPipeline(t)

	kA, err := p.CreateKernel("my_kernelA")
	require.NoError(t, err)
	kA.SetInBuffer("A", "b0")
	kA.SetOutBuffer("B", "b1")
	kA.SetOutBuffer("C", "b2")
	kA.SetParamInt("incA", 2)
	kA.SetParamFloat("incB", 0.25)

	kB, err := p.CreateKernel("my_kernelB")
	require.NoError(t, err)
	kB.SetInBuffer("B", "b1")
	kB.SetInBuffer("C", "b2")
	kB.SetOutBuffer("A", "b0")

	got, err := Boilerplate(kA, p)
	require.NoError(t, err)
	assert.Equal(t, boilerplateA, got)

	got, err = Boilerplate(kB, p)
	require.NoError(t, err)
	assert.Equal(t, boilerplateB, got)
}

func TestElementType(t *testing.T) {
	tests := []struct {
		bpp, channels int
		scalar        string
		element       string
		zero          string
	}{
		{1, 1, "unsigned char", "unsigned char", "0"},
		{4, 4, "uchar", "uchar4", "make_uchar4(0, 0, 0, 0)"},
		{4, 1, "float", "float", "0"},
		{12, 3, "float", "float3", "make_float3(0, 0, 0)"},
		{8, 1, "double", "double", "0"},
		{16, 2, "double", "double2", "make_double2(0, 0)"},
		{2, 1, "float", "float", "0"},
		{6, 3, "float", "float3", "make_float3(0, 0, 0)"},
	}

	for _, tt := range tests {
		t.Run(tt.element, func(t *testing.T) {
			b := pipeline.Buffer{Name: "b", Width: 1, Height: 1, BPP: tt.bpp, Channels: tt.channels}
			assert.Equal(t, tt.scalar, ScalarType(b))
			assert.Equal(t, tt.element, ElementType(b))
			assert.Equal(t, tt.zero, ZeroValue(b))
		})
	}
}

func TestSignatureOrder(t *testing.T) {
	p := pipeline.New(2, 2)
	_, err := p.CreateBuffer("rgba", pipeline.UnsignedByte, 4)
	require.NoError(t, err)
	_, err = p.CreateBuffer("gray", pipeline.Double, 1)
	require.NoError(t, err)

	tests := []struct {
		name   string
		setup  func(k *pipeline.Kernel)
		expect []string
	}{
		{
			name:   "no params",
			setup:  func(k *pipeline.Kernel) {},
			expect: []string{"width", "height"},
		},
		{
			name: "scalars only",
			setup: func(k *pipeline.Kernel) {
				k.SetParamFloat("f", 1)
				k.SetParamInt("i", 1)
			},
			expect: []string{"i", "f", "width", "height"},
		},
		{
			name: "everything declared out of order",
			setup: func(k *pipeline.Kernel) {
				k.SetParamFloat("f", 1)
				k.SetOutBuffer("out", "gray")
				k.SetParamInt("i", 1)
				k.SetInBuffer("in", "rgba")
				k.SetInBuffer("in2", "gray")
			},
			expect: []string{"in", "in2", "out", "i", "f", "width", "height"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := &pipeline.Kernel{Name: "k"}
			tt.setup(k)
			params, err := Signature(k, p)
			require.NoError(t, err)

			names := make([]string, len(params))
			for i, prm := range params {
				names[i] = prm.Name
			}
			assert.Equal(t, tt.expect, names)
		})
	}
}

func TestSignatureTypes(t *testing.T) {
	p := pipeline.New(2, 2)
	_, err := p.CreateBuffer("rgba", pipeline.UnsignedByte, 4)
	require.NoError(t, err)
	k := &pipeline.Kernel{Name: "k"}
	k.SetInBuffer("src", "rgba")
	k.SetOutBuffer("dst", "rgba")

	params, err := Signature(k, p)
	require.NoError(t, err)
	assert.Equal(t, "const uchar4 * src", params[0].String())
	assert.Equal(t, "uchar4 * dst", params[1].String())
	assert.Equal(t, "const int width", params[2].String())
}

func TestBoilerplateWithoutParams(t *testing.T) {
	p := pipeline.New(2, 2)
	src, err := Boilerplate(&pipeline.Kernel{Name: "noop"}, p)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(src, "__global__ void\nnoop(const int width,\n     const int height)\n{"))
}

func TestUnknownBuffer(t *testing.T) {
	p := pipeline.New(2, 2)
	k := &pipeline.Kernel{Name: "k"}
	k.SetOutBuffer("out", "nope")

	_, err := Boilerplate(k, p)
	assert.ErrorContains(t, err, "nope")
}

func TestSourceUsesBodyOrCode(t *testing.T) {
	p := newTestPipeline(t)
	k := &pipeline.Kernel{Name: "fill"}
	k.SetOutBuffer("out", "b0")
	k.SetParamFloat("v", 2)
	k.Body = "out[idx] = v;\n\nout[idx] *= 2;"

	src, err := Source(k, p)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(src, "    out[idx] = 0;\n    out[idx] = v;\n\n    out[idx] *= 2;\n}"), src)

	k.Code = "__global__ void fill() {}"
	src, err = Source(k, p)
	require.NoError(t, err)
	assert.Equal(t, k.Code, src)
}

func TestUnit(t *testing.T) {
	unit := Unit([]string{"A", "B"})
	assert.Equal(t, "extern \"C\" { \nA\nB\n}", unit)
}
