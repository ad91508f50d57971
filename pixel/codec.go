package pixel

import (
	"encoding/binary"
	"image/color"
)

// Load decodes one pixel of a single-plane format from b and returns its
// channels as stored (premultiplied or not, as the buffer holds them).
// Formats without alpha report A as 255. A8 reports black with its alpha.
func Load(f Format, order ByteOrder, b []byte) color.NRGBA {
	switch f {
	case FormatXRGB8888, FormatARGB8888:
		w := word32(order, b)
		c := color.NRGBA{R: uint8(w >> 16), G: uint8(w >> 8), B: uint8(w), A: uint8(w >> 24)}
		if f == FormatXRGB8888 {
			c.A = 255
		}
		return c
	case FormatXBGR8888, FormatABGR8888:
		w := word32(order, b)
		c := color.NRGBA{R: uint8(w), G: uint8(w >> 8), B: uint8(w >> 16), A: uint8(w >> 24)}
		if f == FormatXBGR8888 {
			c.A = 255
		}
		return c
	case FormatRGB565:
		w := word16(order, b)
		r5, g6, b5 := uint8(w>>11)&0x1f, uint8(w>>5)&0x3f, uint8(w)&0x1f
		return color.NRGBA{R: r5<<3 | r5>>2, G: g6<<2 | g6>>4, B: b5<<3 | b5>>2, A: 255}
	case FormatA8:
		return color.NRGBA{A: b[0]}
	}
	return color.NRGBA{}
}

// Store encodes c into b using a single-plane format.
func Store(f Format, order ByteOrder, b []byte, c color.NRGBA) {
	switch f {
	case FormatXRGB8888, FormatARGB8888:
		a := c.A
		if f == FormatXRGB8888 {
			a = 0xff
		}
		putWord32(order, b, uint32(a)<<24|uint32(c.R)<<16|uint32(c.G)<<8|uint32(c.B))
	case FormatXBGR8888, FormatABGR8888:
		a := c.A
		if f == FormatXBGR8888 {
			a = 0xff
		}
		putWord32(order, b, uint32(a)<<24|uint32(c.B)<<16|uint32(c.G)<<8|uint32(c.R))
	case FormatRGB565:
		putWord16(order, b, uint16(c.R>>3)<<11|uint16(c.G>>2)<<5|uint16(c.B>>3))
	case FormatA8:
		b[0] = c.A
	}
}

// LoadYCbCr converts one luma sample and its shared chroma pair to RGB.
func LoadYCbCr(y, cb, cr uint8) color.NRGBA {
	r, g, b := color.YCbCrToRGB(y, cb, cr)
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// StoreYCbCr converts c to luma and chroma samples.
func StoreYCbCr(c color.NRGBA) (y, cb, cr uint8) {
	return color.RGBToYCbCr(c.R, c.G, c.B)
}

// ChromaOffset returns the byte offset of the CbCr pair covering pixel
// (x, y) inside the secondary plane of a two-plane format.
func ChromaOffset(f Format, stride, x, y int) int {
	div := f.Info().ChromaRowDiv
	if div == 0 {
		return -1
	}
	return (y/div)*stride + x&^1
}

func word32(order ByteOrder, b []byte) uint32 {
	if order == BigEndian {
		return binary.BigEndian.Uint32(b)
	}
	return binary.LittleEndian.Uint32(b)
}

func putWord32(order ByteOrder, b []byte, w uint32) {
	if order == BigEndian {
		binary.BigEndian.PutUint32(b, w)
		return
	}
	binary.LittleEndian.PutUint32(b, w)
}

func word16(order ByteOrder, b []byte) uint16 {
	if order == BigEndian {
		return binary.BigEndian.Uint16(b)
	}
	return binary.LittleEndian.Uint16(b)
}

func putWord16(order ByteOrder, b []byte, w uint16) {
	if order == BigEndian {
		binary.BigEndian.PutUint16(b, w)
		return
	}
	binary.LittleEndian.PutUint16(b, w)
}
