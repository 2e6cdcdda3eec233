/*
Package serpentine maps rasters onto daisy-chained LED matrices.

The panels are wired as a single strip that snakes across the matrix: even
rows run left to right and odd rows run right to left. A raster therefore has
to be linearised in that order before it is written to a device, and anything
reading a device image back must not assume row-major order.
*/
package serpentine

import (
	"image"
	"image/color"
)

// Column returns the raster column feeding position x along row y of a
// matrix w pixels wide.
func Column(x, y, w int) int {
	if y%2 == 1 {
		return w - 1 - x
	}
	return x
}

// Index returns the position along the strip of the raster pixel at x, y.
func Index(x, y, w int) int {
	return y*w + Column(x, y, w)
}

// Map linearises img in strip order. Colours are returned non-premultiplied;
// alpha is carried but ignored by the devices.
func Map(img image.Image) []color.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	out := make([]color.NRGBA, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+Column(x, y, w), b.Min.Y+y)
			out = append(out, color.NRGBAModel.Convert(c).(color.NRGBA))
		}
	}
	return out
}

// Unmap is the inverse of Map: it places a strip-ordered sequence back into a
// w by h raster.
func Unmap(seq []color.NRGBA, w, h int) *image.NRGBA {
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if i >= len(seq) {
				return m
			}
			m.SetNRGBA(Column(x, y, w), y, seq[i])
		}
	}
	return m
}
