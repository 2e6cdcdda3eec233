package ledgallery

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG

	_ "golang.org/x/image/bmp"  // register BMP
	_ "golang.org/x/image/webp" // register WebP
)

// DecodeImage decodes an encoded JPEG, PNG, GIF, BMP or WebP image. Images
// with more than maxPixels pixels are rejected before their pixel data is
// decoded; maxPixels of zero or less disables the check.
func DecodeImage(b []byte, maxPixels int64) (image.Image, error) {
	if maxPixels > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if n := int64(cfg.Width) * int64(cfg.Height); n > maxPixels {
			return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, maxPixels)
		}
	}

	m, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if r := m.Bounds(); r.Empty() {
		return nil, fmt.Errorf("%w: empty image %v", ErrDecode, r)
	}
	return m, nil
}
