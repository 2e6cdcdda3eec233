package bank

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"

	"github.com/disintegration/gift"
	"github.com/ericpauley/go-quantize/quantize"
)

// SheetOptions controls contact sheet layout.
type SheetOptions struct {
	// Columns is the number of images per row
	Columns int
	// Scale enlarges every LED to Scale by Scale pixels
	Scale int
	// Gap is the spacing between images in output pixels
	Gap int
	// Colors caps the GIF palette size
	Colors int
}

// DefaultSheetOptions are used for any zero field.
var DefaultSheetOptions = SheetOptions{
	Columns: 10,
	Scale:   4,
	Gap:     2,
	Colors:  256,
}

func (o SheetOptions) withDefaults() SheetOptions {
	if o.Columns <= 0 {
		o.Columns = DefaultSheetOptions.Columns
	}
	if o.Scale <= 0 {
		o.Scale = DefaultSheetOptions.Scale
	}
	if o.Gap < 0 {
		o.Gap = 0
	}
	if o.Colors <= 0 || o.Colors > 256 {
		o.Colors = DefaultSheetOptions.Colors
	}
	return o
}

// ContactSheet lays every image of the bank out on a grid, enlarged with
// nearest neighbour scaling so individual LEDs stay visible.
func ContactSheet(b *Bank, opts SheetOptions) (*image.NRGBA, error) {
	if b.Len() == 0 {
		return nil, errors.New("bank: no images to preview")
	}
	opts = opts.withDefaults()

	cols := opts.Columns
	if b.Len() < cols {
		cols = b.Len()
	}
	rows := (b.Len() + cols - 1) / cols

	cellW, cellH := b.Width*opts.Scale, b.Height*opts.Scale
	sheet := image.NewNRGBA(image.Rect(0, 0,
		cols*cellW+(cols-1)*opts.Gap,
		rows*cellH+(rows-1)*opts.Gap))
	draw.Draw(sheet, sheet.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	g := gift.New(gift.Resize(cellW, cellH, gift.NearestNeighborResampling))
	for i := 0; i < b.Len(); i++ {
		x := (i % cols) * (cellW + opts.Gap)
		y := (i / cols) * (cellH + opts.Gap)
		m, err := b.Image(i)
		if err != nil {
			return nil, err
		}
		g.DrawAt(sheet, m, image.Pt(x, y), gift.CopyOperator)
	}

	return sheet, nil
}

// WriteContactSheet renders the bank as a contact sheet and writes it to w
// as a GIF. The palette is picked with a median cut over the sheet.
func WriteContactSheet(w io.Writer, b *Bank, opts SheetOptions) error {
	sheet, err := ContactSheet(b, opts)
	if err != nil {
		return err
	}
	opts = opts.withDefaults()

	q := quantize.MedianCutQuantizer{}
	pm := image.NewPaletted(sheet.Bounds(), q.Quantize(make(color.Palette, 0, opts.Colors), sheet))
	draw.Draw(pm, pm.Bounds(), sheet, image.Point{}, draw.Src)

	return gif.Encode(w, pm, &gif.Options{NumColors: len(pm.Palette)})
}
