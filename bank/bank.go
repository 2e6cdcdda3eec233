/*
Package bank implements the image bank written to each LED matrix controller.

A bank is a table of equally sized images. Every image is width*height pixels
stored as 16-bit RGB565 values in the serpentine order the matrix is wired
in, so the table can be indexed as table[image][pixel]. The binary form is the
table written out as little-endian 16-bit values with no header or padding,
making it exactly images*width*height*2 bytes. The firmware header form is a
C array of the same table together with a count of images.
*/
package bank

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/ledgallery/ledgallery/rgb565"
	"github.com/ledgallery/ledgallery/serpentine"
)

// Bank is an ordered set of transcoded images for one device. It implements
// the encoding.BinaryMarshaler and encoding.BinaryUnmarshaler interfaces.
type Bank struct {
	Width  int
	Height int
	Images [][]uint16
}

// New returns an empty bank of w by h images.
func New(w, h int) *Bank {
	return &Bank{
		Width:  w,
		Height: h,
	}
}

// Pixels returns the number of pixels in each image.
func (b *Bank) Pixels() int {
	return b.Width * b.Height
}

// Len returns the number of images in the bank.
func (b *Bank) Len() int {
	return len(b.Images)
}

// Size returns the size in bytes of the binary table.
func (b *Bank) Size() int {
	return b.Len() * b.Pixels() * 2
}

// Add appends an image. The image must have exactly Width*Height pixels.
func (b *Bank) Add(pixels []uint16) error {
	if len(pixels) != b.Pixels() {
		return fmt.Errorf("bank: image has %d pixels, want %d", len(pixels), b.Pixels())
	}
	b.Images = append(b.Images, pixels)
	return nil
}

// Image decodes image i back into a raster, undoing the serpentine order.
func (b *Bank) Image(i int) (image.Image, error) {
	if i < 0 || i >= b.Len() {
		return nil, fmt.Errorf("bank: image %d out of range [0, %d)", i, b.Len())
	}
	seq := make([]color.NRGBA, len(b.Images[i]))
	for j, v := range b.Images[i] {
		r, g, bl := rgb565.Unpack(v)
		seq[j] = color.NRGBA{r, g, bl, 0xff}
	}
	return serpentine.Unmap(seq, b.Width, b.Height), nil
}

// MarshalBinary encodes the bank into its binary table form.
func (b *Bank) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(b.Size())
	if err := Encode(buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a binary table. Width and Height must already be
// set as the table itself does not record them.
func (b *Bank) UnmarshalBinary(data []byte) error {
	d, err := Decode(bytes.NewReader(data), b.Width, b.Height)
	if err != nil {
		return err
	}
	b.Images = d.Images
	return nil
}
