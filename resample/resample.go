/*
Package resample produces fixed-size rasters from arbitrary source images.

The source is first cropped around its centre to the aspect ratio of the
target and only then resized, using a Lanczos filter, to exactly the target
dimensions. Cropping after resizing would give a different result.

Alpha is discarded before any filtering: every pixel is made opaque with its
stored colour, so transparent regions keep their RGB values instead of being
blended towards black.
*/
package resample

import (
	"image"

	"github.com/disintegration/gift"
)

// CropRect returns the centred region of a srcW by srcH image that has the
// same aspect ratio as a w by h target. The rectangle is relative to the
// image origin and is never empty for a non-empty source.
func CropRect(srcW, srcH, w, h int) image.Rectangle {
	srcAspect := float64(srcW) / float64(srcH)
	aspect := float64(w) / float64(h)

	if srcAspect > aspect {
		// Too wide, trim the sides
		cropW := int(float64(srcH) * aspect)
		if cropW < 1 {
			cropW = 1
		}
		x := (srcW - cropW) / 2
		return image.Rect(x, 0, x+cropW, srcH)
	}

	// Too tall (or exact), trim top and bottom
	cropH := int(float64(srcW) / aspect)
	if cropH < 1 {
		cropH = 1
	}
	y := (srcH - cropH) / 2
	return image.Rect(0, y, srcW, y+cropH)
}

// opaque keeps the stored colour of every pixel and drops its alpha.
var opaque = gift.ColorFunc(func(r, g, b, _ float32) (float32, float32, float32, float32) {
	return r, g, b, 1
})

// Filter returns the gift filter chain that crops an image with the given
// bounds, flattens its alpha and resizes it to w by h pixels.
func Filter(bounds image.Rectangle, w, h int) *gift.GIFT {
	r := CropRect(bounds.Dx(), bounds.Dy(), w, h).Add(bounds.Min)
	return gift.New(
		gift.Crop(r),
		opaque,
		gift.Resize(w, h, gift.LanczosResampling),
	)
}

// Resample crops and resizes src to exactly w by h pixels. The returned
// raster always has its origin at (0, 0).
func Resample(src image.Image, w, h int) *image.NRGBA {
	g := Filter(src.Bounds(), w, h)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	g.Draw(dst, src)
	return dst
}
