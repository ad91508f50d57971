package blend

// mulDiv255 multiplies two bytes and divides by 255 with rounding.
//
// Formula: (a * b + 127) / 255
//
// The result is exact for the identities the operator reducer relies on:
// mulDiv255(x, 255) == x and mulDiv255(x, 0) == 0 for every x.
func mulDiv255(a, b byte) byte {
	return byte((uint16(a)*uint16(b) + 127) / 255)
}

// MulDiv255 is the exported form of mulDiv255, used to apply global alpha
// and mask coverage to premultiplied pixels.
func MulDiv255(a, b byte) byte {
	return mulDiv255(a, b)
}

// inv255 computes 255 - x (inverse alpha).
func inv255(x byte) byte {
	return 255 - x
}

// addClamp adds two bytes and clamps to 255.
func addClamp(a, b byte) byte {
	sum := uint16(a) + uint16(b)
	if sum > 255 {
		return 255
	}
	return byte(sum)
}
