package detect

import "fmt"

// HSV color. H in [0, 360), S and V in [0, 1].
type HSV struct {
	H float64
	S float64
	V float64
}

// String formats the color for debug logs.
func (c HSV) String() string {
	return fmt.Sprintf("[H: %.0f, S: %.2f, V: %.2f]", c.H, c.S, c.V)
}

// RGBToHSV converts 8-bit RGB components to HSV.
func RGBToHSV(r8, g8, b8 uint8) HSV {
	r := float64(r8) / 255.0
	g := float64(g8) / 255.0
	b := float64(b8) / 255.0

	max := r
	if g > max {
		max = g
	}
	if b > max {
		max = b
	}
	min := r
	if g < min {
		min = g
	}
	if b < min {
		min = b
	}
	delta := max - min

	v := max
	s := 0.0
	if max > 0 {
		s = delta / max
	}

	var h float64
	switch {
	case delta < 1e-6:
		h = 0
	case max == r:
		h = 60 * ((g - b) / delta)
	case max == g:
		h = 60 * ((b-r)/delta + 2)
	default:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}

	return HSV{H: h, S: s, V: v}
}
