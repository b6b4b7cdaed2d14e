package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/cwbudde/reconmetrics/internal/tensor"
)

// Decode reads any registered image format (PNG, JPEG, GIF, BMP, TIFF, WebP)
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// Open decodes the image stored at path
func Open(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// ToNRGBA converts any image to NRGBA with its origin at (0, 0)
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// FromNRGBA converts an image to a [1, 3, H, W] tensor of RGB values in
// [0, 1]. Alpha is ignored.
func FromNRGBA(img *image.NRGBA) *tensor.Tensor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := tensor.New(1, 3, h, w)
	data := t.Data()
	plane := w * h

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			j := y*w + x
			data[j] = float64(img.Pix[i+0]) / 255
			data[plane+j] = float64(img.Pix[i+1]) / 255
			data[2*plane+j] = float64(img.Pix[i+2]) / 255
		}
	}
	return t
}

// LoadImage reads an RGB image from path as a [1, 3, H, W] tensor in [0, 1]
func LoadImage(path string) (*tensor.Tensor, error) {
	img, err := Open(path)
	if err != nil {
		return nil, err
	}
	return FromNRGBA(ToNRGBA(img)), nil
}

// FromGray converts a grayscale depth image to a [1, 1, H, W] tensor. Values
// are normalized by the sample range (255 or 65535) and multiplied by scale.
// Non-gray images are converted through their 16-bit luminance.
func FromGray(img image.Image, scale float64) *tensor.Tensor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := tensor.New(1, 1, h, w)
	data := t.Data()

	switch g := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[y*w+x] = float64(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y) / 255 * scale
			}
		}
	case *image.Gray16:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[y*w+x] = float64(g.Gray16At(b.Min.X+x, b.Min.Y+y).Y) / 65535 * scale
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
				data[y*w+x] = float64(v.Y) / 65535 * scale
			}
		}
	}
	return t
}

// LoadDepth reads a grayscale depth map from path as a [1, 1, H, W] tensor
func LoadDepth(path string, scale float64) (*tensor.Tensor, error) {
	img, err := Open(path)
	if err != nil {
		return nil, err
	}
	return FromGray(img, scale), nil
}

// ResizeTo resamples img to width x height with bilinear filtering
func ResizeTo(img image.Image, width, height int) *image.NRGBA {
	if width <= 0 || height <= 0 {
		return image.NewNRGBA(image.Rect(0, 0, 0, 0))
	}
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return ToNRGBA(img)
	}
	return ToNRGBA(resize.Resize(uint(width), uint(height), img, resize.Bilinear))
}

// DiffImage renders a false-color difference map between two [1, C, H, W]
// tensors: black where they agree, red where the mean absolute channel
// difference is large.
func DiffImage(a, b *tensor.Tensor) (*image.NRGBA, error) {
	if !tensor.SameShape(a, b) {
		return nil, &tensor.ShapeMismatchError{Op: "diff image", Left: a.Shape(), Right: b.Shape()}
	}
	if a.Rank() != 4 || a.Dim(0) != 1 {
		return nil, fmt.Errorf("diff image expects [1,C,H,W], got %v: %w", a.Shape(), tensor.ErrShapeMismatch)
	}

	c, h, w := a.Dim(1), a.Dim(2), a.Dim(3)
	plane := h * w
	ad, bd := a.Data(), b.Data()

	diff := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			j := y*w + x
			var sum float64
			for ch := 0; ch < c; ch++ {
				sum += math.Abs(ad[ch*plane+j] - bd[ch*plane+j])
			}
			v := math.Min(1, sum/float64(c))
			diff.SetNRGBA(x, y, color.NRGBA{R: uint8(math.Round(v * 255)), A: 255})
		}
	}
	return diff, nil
}
