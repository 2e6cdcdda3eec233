package bank

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// valuesPerLine is how many pixels go on each line of the firmware header.
const valuesPerLine = 15

// Encode writes the bank to w in binary table form.
func Encode(w io.Writer, b *Bank) error {
	bw := bufio.NewWriter(w)

	var tmp [2]byte
	for i, img := range b.Images {
		if len(img) != b.Pixels() {
			return fmt.Errorf("bank: image %d has %d pixels, want %d", i, len(img), b.Pixels())
		}
		for _, v := range img {
			binary.LittleEndian.PutUint16(tmp[:], v)
			if _, err := bw.Write(tmp[:]); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// CountName returns the name of the image count constant for a device.
func CountName(device string) string {
	return "NUM_IMAGES_" + strings.ToUpper(device)
}

// TableName returns the name of the image table for a device.
func TableName(device string) string {
	return device + "_images"
}

// WriteHeader writes the bank to w as a C header for the device firmware.
// The table is placed in PROGMEM and sized by a NUM_IMAGES_<DEVICE> constant.
func WriteHeader(w io.Writer, device string, b *Bank) error {
	bw := bufio.NewWriter(w)

	guard := strings.ToUpper(device) + "_IMAGES_H"
	count := CountName(device)

	fmt.Fprintf(bw, "#ifndef %s\n#define %s\n\n", guard, guard)
	fmt.Fprintf(bw, "#include <Arduino.h>\n\n")
	fmt.Fprintf(bw, "// Number of images for %s ESP32\n", device)
	fmt.Fprintf(bw, "#define %s %d\n\n", count, b.Len())
	fmt.Fprintf(bw, "// Image data stored in PROGMEM\n")
	fmt.Fprintf(bw, "const uint16_t %s[%s][%d] PROGMEM = {\n", TableName(device), count, b.Pixels())

	for i, img := range b.Images {
		if len(img) != b.Pixels() {
			return fmt.Errorf("bank: image %d has %d pixels, want %d", i, len(img), b.Pixels())
		}

		fmt.Fprintf(bw, "  // Image %d\n  {\n", i)
		for j := 0; j < len(img); j += valuesPerLine {
			end := j + valuesPerLine
			if end > len(img) {
				end = len(img)
			}

			bw.WriteString("    ")
			for k, v := range img[j:end] {
				if k > 0 {
					bw.WriteString(", ")
				}
				fmt.Fprintf(bw, "0x%04X", v)
			}
			if end < len(img) {
				bw.WriteString(",")
			}
			bw.WriteString("\n")
		}
		bw.WriteString("  }")
		if i < len(b.Images)-1 {
			bw.WriteString(",")
		}
		bw.WriteString("\n\n")
	}

	bw.WriteString("};\n\n#endif\n")

	return bw.Flush()
}
