package bank

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

var (
	errNotEnough = errors.New("bank: not enough image data")
	errBadSize   = errors.New("bank: invalid image dimensions")
)

// Decode reads a binary table of w by h images from r. The table must hold
// a whole number of images.
func Decode(r io.Reader, w, h int) (*Bank, error) {
	if w <= 0 || h <= 0 {
		return nil, errBadSize
	}

	b := New(w, h)
	br := bufio.NewReader(r)
	record := make([]byte, b.Pixels()*2)

	for {
		_, err := io.ReadFull(br, record)
		switch {
		case err == io.EOF:
			return b, nil
		case err == io.ErrUnexpectedEOF:
			return nil, errNotEnough
		case err != nil:
			return nil, err
		}

		img := make([]uint16, b.Pixels())
		for i := range img {
			img[i] = binary.LittleEndian.Uint16(record[i*2:])
		}
		b.Images = append(b.Images, img)
	}
}
