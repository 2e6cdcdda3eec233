/*
Package rgb565 implements the colour pipeline used to prepare pixels for the
LED matrix controllers.

Each 8-bit RGB pixel is converted to HSL, its saturation is boosted by a fixed
factor and clamped, and the result is converted back to RGB before being
packed into a 16-bit value laid out as RRRRRGGGGGGBBBBB. Packing truncates the
low-order bits of each channel; there is no rounding.
*/
package rgb565

// SaturationBoost is the factor applied to every pixel's saturation before
// packing. It compensates for the colour depth lost by the 5-6-5 layout.
const SaturationBoost = 1.5

// RGBToHSL converts 8-bit RGB channels to hue, saturation and lightness, each
// in the range [0, 1]. Hue is in [0, 1).
func RGBToHSL(r, g, b uint8) (h, s, l float64) {
	rf := float64(r) / 255
	gf := float64(g) / 255
	bf := float64(b) / 255

	max, min := rf, rf
	if gf > max {
		max = gf
	}
	if bf > max {
		max = bf
	}
	if gf < min {
		min = gf
	}
	if bf < min {
		min = bf
	}

	l = (max + min) / 2
	if max == min {
		// Achromatic
		return 0, 0, l
	}

	d := max - min
	if l > 0.5 {
		s = d / (2 - max - min)
	} else {
		s = d / (max + min)
	}

	switch max {
	case rf:
		h = (gf - bf) / d
		if gf < bf {
			h += 6
		}
	case gf:
		h = (bf-rf)/d + 2
	default:
		h = (rf-gf)/d + 4
	}
	h /= 6

	return h, s, l
}

func hueToChannel(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 1.0/2:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	}
	return p
}

// HSLToRGB converts hue, saturation and lightness in [0, 1] back to 8-bit RGB
// channels. Channels are scaled to [0, 255] and truncated.
func HSLToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}

	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q

	return uint8(hueToChannel(p, q, h+1.0/3) * 255),
		uint8(hueToChannel(p, q, h) * 255),
		uint8(hueToChannel(p, q, h-1.0/3) * 255)
}

// BoostSaturation multiplies s by factor, clamping the result to 1.
func BoostSaturation(s, factor float64) float64 {
	if s *= factor; s > 1 {
		return 1
	}
	return s
}

// Pack packs 8-bit RGB channels into a 5-6-5 value by dropping the low-order
// bits of each channel.
func Pack(r, g, b uint8) uint16 {
	return uint16(r&0xf8)<<8 | uint16(g&0xfc)<<3 | uint16(b>>3)
}

// Unpack expands a 5-6-5 value back to 8-bit channels, replicating the high
// bits into the low bits so full intensity maps to 0xff.
func Unpack(v uint16) (r, g, b uint8) {
	r5 := uint8(v >> 11 & 0x1f)
	g6 := uint8(v >> 5 & 0x3f)
	b5 := uint8(v & 0x1f)
	return r5<<3 | r5>>2, g6<<2 | g6>>4, b5<<3 | b5>>2
}

// Encode runs a pixel through the full pipeline: HSL conversion, saturation
// boost, conversion back to RGB and 5-6-5 packing.
func Encode(r, g, b uint8) uint16 {
	return EncodeWithBoost(r, g, b, SaturationBoost)
}

// EncodeWithBoost is Encode with an explicit saturation factor. A factor of 1
// leaves saturation untouched.
func EncodeWithBoost(r, g, b uint8, factor float64) uint16 {
	h, s, l := RGBToHSL(r, g, b)
	return Pack(HSLToRGB(h, BoostSaturation(s, factor), l))
}
