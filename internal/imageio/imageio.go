// Package imageio converts image files to and from the host byte layout
// of a pipeline buffer. Byte channels map to 8-bit gray or RGBA pixels,
// float channels to 16-bit gray or RGBA scaled to [0, 1]. Files with a
// .raw extension are copied verbatim and are the only option for other
// buffer layouts.
package imageio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"github.com/ChristofferDahl/gpuip/internal/pipeline"
)

// ErrUnsupportedLayout is returned when a buffer layout has no image
// representation
var ErrUnsupportedLayout = errors.New("buffer layout has no image representation")

// Format names an image container chosen by file extension
type Format string

const (
	PNG  Format = "png"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
	JPEG Format = "jpeg"
	Raw  Format = "raw"
)

// FormatOf returns the format for path's extension
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return PNG, nil
	case ".bmp":
		return BMP, nil
	case ".tif", ".tiff":
		return TIFF, nil
	case ".jpg", ".jpeg":
		return JPEG, nil
	case ".raw", ".bin":
		return Raw, nil
	default:
		return "", fmt.Errorf("unsupported image extension %q", filepath.Ext(path))
	}
}

// Supported reports whether buffers shaped like b convert to images
func Supported(b pipeline.Buffer) bool {
	switch b.ElementBytes() {
	case 1:
		return b.Channels == 1 || b.Channels == 3 || b.Channels == 4
	case 4:
		return b.Channels == 1 || b.Channels == 3 || b.Channels == 4
	}
	return false
}

// Decode reads the file at path into a host buffer of b.Size() bytes
func Decode(path string, b pipeline.Buffer) ([]byte, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	if format == Raw {
		return readRaw(path, b)
	}
	if !Supported(b) {
		return nil, fmt.Errorf("%s: %w", b, ErrUnsupportedLayout)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if size := img.Bounds().Size(); size.X != b.Width || size.Y != b.Height {
		return nil, fmt.Errorf("%s is %dx%d, buffer %s is %dx%d", path, size.X, size.Y, b.Name, b.Width, b.Height)
	}
	return FromImage(img, b), nil
}

// Encode writes data, laid out as b, to path
func Encode(path string, b pipeline.Buffer, data []byte) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	if int64(len(data)) < b.Size() {
		return fmt.Errorf("buffer %s: have %d bytes, need %d", b.Name, len(data), b.Size())
	}
	if format == Raw {
		return os.WriteFile(path, data[:b.Size()], 0644)
	}

	img, err := ToImage(b, data)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f, format, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

func encode(w io.Writer, format Format, img image.Image) error {
	switch format {
	case PNG:
		return png.Encode(w, img)
	case BMP:
		return bmp.Encode(w, img)
	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case JPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	}
	return fmt.Errorf("no encoder for %s", format)
}

func readRaw(path string, b pipeline.Buffer) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != b.Size() {
		return nil, fmt.Errorf("%s holds %d bytes, buffer %s needs %d", path, len(data), b.Name, b.Size())
	}
	return data, nil
}

// FromImage converts img into the byte layout of b. img must cover
// b.Width x b.Height and b must be Supported.
func FromImage(img image.Image, b pipeline.Buffer) []byte {
	rect := image.Rect(0, 0, b.Width, b.Height)
	src := img.Bounds().Min
	out := make([]byte, b.Size())

	switch {
	case b.ElementBytes() == 1 && b.Channels == 1:
		dst := image.NewGray(rect)
		xdraw.Draw(dst, rect, img, src, xdraw.Src)
		copyRows(out, dst.Pix, dst.Stride, b.Width, b.Height)

	case b.ElementBytes() == 1:
		dst := image.NewNRGBA(rect)
		xdraw.Draw(dst, rect, img, src, xdraw.Src)
		for y := 0; y < b.Height; y++ {
			for x := 0; x < b.Width; x++ {
				p := dst.Pix[y*dst.Stride+x*4:]
				copy(out[(y*b.Width+x)*b.Channels:], p[:b.Channels])
			}
		}

	case b.Channels == 1:
		dst := image.NewGray16(rect)
		xdraw.Draw(dst, rect, img, src, xdraw.Src)
		for y := 0; y < b.Height; y++ {
			for x := 0; x < b.Width; x++ {
				v := binary.BigEndian.Uint16(dst.Pix[y*dst.Stride+x*2:])
				putFloat(out, y*b.Width+x, unit(v))
			}
		}

	default:
		dst := image.NewNRGBA64(rect)
		xdraw.Draw(dst, rect, img, src, xdraw.Src)
		for y := 0; y < b.Height; y++ {
			for x := 0; x < b.Width; x++ {
				p := dst.Pix[y*dst.Stride+x*8:]
				for c := 0; c < b.Channels; c++ {
					putFloat(out, (y*b.Width+x)*b.Channels+c, unit(binary.BigEndian.Uint16(p[c*2:])))
				}
			}
		}
	}
	return out
}

// ToImage wraps host data laid out as b in an image
func ToImage(b pipeline.Buffer, data []byte) (image.Image, error) {
	if !Supported(b) {
		return nil, fmt.Errorf("%s: %w", b, ErrUnsupportedLayout)
	}
	rect := image.Rect(0, 0, b.Width, b.Height)

	switch {
	case b.ElementBytes() == 1 && b.Channels == 1:
		img := image.NewGray(rect)
		copyRows(img.Pix, data, b.Width, b.Width, b.Height)
		return img, nil

	case b.ElementBytes() == 1:
		img := image.NewNRGBA(rect)
		for i := 0; i < b.Width*b.Height; i++ {
			p := data[i*b.Channels:]
			a := uint8(255)
			if b.Channels == 4 {
				a = p[3]
			}
			img.Pix[i*4+0], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3] = p[0], p[1], p[2], a
		}
		return img, nil

	case b.Channels == 1:
		img := image.NewGray16(rect)
		for i := 0; i < b.Width*b.Height; i++ {
			img.SetGray16(i%b.Width, i/b.Width, color.Gray16{Y: quantize(getFloat(data, i))})
		}
		return img, nil

	default:
		img := image.NewNRGBA64(rect)
		for i := 0; i < b.Width*b.Height; i++ {
			c := color.NRGBA64{A: 0xffff}
			c.R = quantize(getFloat(data, i*b.Channels))
			c.G = quantize(getFloat(data, i*b.Channels+1))
			c.B = quantize(getFloat(data, i*b.Channels+2))
			if b.Channels == 4 {
				c.A = quantize(getFloat(data, i*b.Channels+3))
			}
			img.SetNRGBA64(i%b.Width, i/b.Width, c)
		}
		return img, nil
	}
}

func copyRows(dst, src []byte, srcStride, width, height int) {
	for y := 0; y < height; y++ {
		copy(dst[y*width:(y+1)*width], src[y*srcStride:])
	}
}

func unit(v uint16) float32 {
	return float32(v) / 0xffff
}

func quantize(f float32) uint16 {
	switch {
	case f <= 0 || math.IsNaN(float64(f)):
		return 0
	case f >= 1:
		return 0xffff
	}
	return uint16(math.Round(float64(f) * 0xffff))
}

func putFloat(buf []byte, i int, v float32) {
	binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
}

func getFloat(buf []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
}
