package resample

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCropRect(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		w, h       int
		want       image.Rectangle
	}{
		{"landscape", 1200, 400, 30, 30, image.Rect(400, 0, 800, 400)},
		{"portrait", 400, 1000, 30, 30, image.Rect(0, 300, 400, 700)},
		{"square", 500, 500, 30, 30, image.Rect(0, 0, 500, 500)},
		{"odd margin", 301, 100, 30, 30, image.Rect(100, 0, 200, 100)},
		{"wide target", 1000, 1000, 64, 32, image.Rect(0, 250, 1000, 750)},
		{"tall target", 1000, 1000, 20, 40, image.Rect(250, 0, 750, 1000)},
		{"tiny source wide target", 4, 4, 64, 8, image.Rect(0, 1, 4, 2)},
		{"tiny source tall target", 4, 4, 8, 64, image.Rect(1, 0, 2, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CropRect(tt.srcW, tt.srcH, tt.w, tt.h))
		})
	}
}

func solid(r image.Rectangle, c color.Color) *image.NRGBA {
	m := image.NewNRGBA(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Set(x, y, c)
		}
	}
	return m
}

func TestResampleDimensions(t *testing.T) {
	for _, r := range []image.Rectangle{
		image.Rect(0, 0, 640, 480),
		image.Rect(0, 0, 480, 640),
		image.Rect(0, 0, 300, 300),
		image.Rect(0, 0, 7, 3),
		image.Rect(10, 20, 110, 70),
	} {
		out := Resample(solid(r, color.NRGBA{10, 20, 30, 0xff}), 30, 30)
		require.Equal(t, image.Rect(0, 0, 30, 30), out.Bounds(), "source %v", r)
		assert.Len(t, out.Pix, 30*30*4)
	}
}

func TestResampleTinySource(t *testing.T) {
	for _, size := range []image.Point{{64, 8}, {8, 64}} {
		out := Resample(solid(image.Rect(0, 0, 4, 4), color.White), size.X, size.Y)
		require.Equal(t, image.Rect(0, 0, size.X, size.Y), out.Bounds())
		for y := 0; y < size.Y; y++ {
			for x := 0; x < size.X; x++ {
				c := out.NRGBAAt(x, y)
				require.GreaterOrEqual(t, c.R, uint8(0xfe), "%v pixel %d,%d", size, x, y)
				require.Equal(t, uint8(0xff), c.A, "%v pixel %d,%d", size, x, y)
			}
		}
	}
}

func TestResampleIgnoresAlpha(t *testing.T) {
	// Left half fully transparent red, right half half-transparent green
	src := solid(image.Rect(0, 0, 40, 20), color.NRGBA{0xff, 0, 0, 0})
	for y := 0; y < 20; y++ {
		for x := 20; x < 40; x++ {
			src.SetNRGBA(x, y, color.NRGBA{0, 0xff, 0, 0x80})
		}
	}

	out := Resample(src, 8, 4)
	left, right := out.NRGBAAt(0, 2), out.NRGBAAt(7, 2)
	assert.GreaterOrEqual(t, left.R, uint8(0xfe))
	assert.Equal(t, uint8(0xff), left.A)
	assert.GreaterOrEqual(t, right.G, uint8(0xfe))
	assert.Equal(t, uint8(0xff), right.A)
}

func TestResampleKeepsCentre(t *testing.T) {
	// Left and right thirds are red, the centre square is blue. After the
	// centre crop nothing red should be left.
	src := solid(image.Rect(0, 0, 1200, 400), color.NRGBA{0xff, 0, 0, 0xff})
	for y := 0; y < 400; y++ {
		for x := 400; x < 800; x++ {
			src.Set(x, y, color.NRGBA{0, 0, 0xff, 0xff})
		}
	}

	out := Resample(src, 30, 30)
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			c := out.NRGBAAt(x, y)
			assert.Equal(t, uint8(0), c.R, "pixel %d,%d", x, y)
			assert.GreaterOrEqual(t, c.B, uint8(0xfe), "pixel %d,%d", x, y)
		}
	}
}

func TestResampleOffsetBounds(t *testing.T) {
	src := solid(image.Rect(0, 0, 200, 100), color.NRGBA{0, 0xff, 0, 0xff})
	sub := src.SubImage(image.Rect(50, 0, 150, 100))

	out := Resample(sub, 10, 10)
	c := out.NRGBAAt(5, 5)
	assert.Equal(t, uint8(0), c.R)
	assert.GreaterOrEqual(t, c.G, uint8(0xfe))
}
