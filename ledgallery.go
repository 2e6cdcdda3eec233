/*
Package ledgallery turns catalogued photographs into image banks for a row of
LED matrix controllers.

Each image is fetched, centre-cropped and resized to the matrix resolution,
colour boosted, packed as RGB565 and laid out in the serpentine order the
matrices are wired in. The catalog is split contiguously across the devices
and every device gets one bank, written as a raw table and as a firmware
header.
*/
package ledgallery

import (
	"context"
	"fmt"
)

// SourceImage is a single catalog entry. Title and Creator are carried
// through for diagnostics only.
type SourceImage struct {
	ID      string
	URL     string
	Title   string
	Creator string
}

// Query selects catalog entries.
type Query struct {
	// Unviewed restricts the selection to entries not yet marked as viewed
	Unviewed bool
	// MediaType restricts the selection to one media type, e.g. "image"
	MediaType string
	// Limit caps the number of entries returned, zero means no limit
	Limit int
}

// Catalog is the read side of the artwork catalog. Entries are returned in a
// stable order.
type Catalog interface {
	Images(ctx context.Context, q Query) ([]SourceImage, error)
}

// Device is one LED matrix controller.
type Device struct {
	Index int
	Name  string
}

func (d Device) String() string {
	return fmt.Sprintf("%s (#%d)", d.Name, d.Index)
}

// Result is the outcome of transcoding one image. Exactly one of Pixels and
// Failure is set; Pixels always holds width*height values in strip order.
type Result struct {
	Image   SourceImage
	Pixels  []uint16
	Failure *Failure
}

// OK reports whether the image was transcoded.
func (r Result) OK() bool {
	return r.Failure == nil
}
