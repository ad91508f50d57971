// Package pixel describes the pixel formats understood by the blit
// accelerator and converts between their memory encoding and straight
// 8-bit RGBA.
//
// RGB formats are named after the channel order inside the native pixel
// word, most significant channel first (ARGB8888 is A<<24|R<<16|G<<8|B).
// How that word is laid out in memory is chosen separately with ByteOrder.
// The two-plane YCbCr formats store luma in the primary plane and
// interleaved CbCr in the secondary plane.
package pixel

import "github.com/gogpu/gputypes"

// Format represents a pixel storage format.
type Format uint8

const (
	// FormatXRGB8888 is 32-bit RGB with an ignored top byte.
	FormatXRGB8888 Format = iota

	// FormatARGB8888 is 32-bit RGB with alpha in the top byte.
	FormatARGB8888

	// FormatXBGR8888 is 32-bit BGR with an ignored top byte.
	FormatXBGR8888

	// FormatABGR8888 is 32-bit BGR with alpha in the top byte.
	FormatABGR8888

	// FormatRGB565 is 16-bit RGB, 5-6-5 bits per channel.
	FormatRGB565

	// FormatA8 is 8-bit alpha only. Used for masks.
	FormatA8

	// FormatYCbCr420P2 is two-plane YCbCr 4:2:0 (NV12).
	FormatYCbCr420P2

	// FormatYCbCr422P2 is two-plane YCbCr 4:2:2 (NV16).
	FormatYCbCr422P2

	// formatCount is the number of formats (for internal use).
	formatCount
)

// FormatInfo contains metadata about a pixel format.
type FormatInfo struct {
	// BytesPerPixel is the size of one pixel in the primary plane.
	BytesPerPixel int

	// HasAlpha indicates if the format carries an alpha channel.
	HasAlpha bool

	// Planes is 1 for packed formats and 2 for luma/chroma formats.
	Planes int

	// ChromaRowDiv is the vertical chroma subsampling factor (two-plane only).
	ChromaRowDiv int

	// IsYCbCr indicates a luma/chroma encoding.
	IsYCbCr bool
}

var formatInfoTable = [formatCount]FormatInfo{
	FormatXRGB8888:   {BytesPerPixel: 4, Planes: 1},
	FormatARGB8888:   {BytesPerPixel: 4, HasAlpha: true, Planes: 1},
	FormatXBGR8888:   {BytesPerPixel: 4, Planes: 1},
	FormatABGR8888:   {BytesPerPixel: 4, HasAlpha: true, Planes: 1},
	FormatRGB565:     {BytesPerPixel: 2, Planes: 1},
	FormatA8:         {BytesPerPixel: 1, HasAlpha: true, Planes: 1},
	FormatYCbCr420P2: {BytesPerPixel: 1, Planes: 2, ChromaRowDiv: 2, IsYCbCr: true},
	FormatYCbCr422P2: {BytesPerPixel: 1, Planes: 2, ChromaRowDiv: 1, IsYCbCr: true},
}

// Info returns the FormatInfo for this format.
func (f Format) Info() FormatInfo {
	if f >= formatCount {
		return FormatInfo{}
	}
	return formatInfoTable[f]
}

// IsValid returns true if the format is a valid known format.
func (f Format) IsValid() bool {
	return f < formatCount
}

// BytesPerPixel returns the number of bytes per pixel in the primary plane.
func (f Format) BytesPerPixel() int {
	return f.Info().BytesPerPixel
}

// HasAlpha returns true if this format has an alpha channel.
func (f Format) HasAlpha() bool {
	return f.Info().HasAlpha
}

// Opaque returns true if every pixel of this format is fully opaque.
func (f Format) Opaque() bool {
	return f.IsValid() && !f.HasAlpha()
}

// DualPlane returns true if the format stores chroma in a second plane.
func (f Format) DualPlane() bool {
	return f.Info().Planes == 2
}

// RowBytes calculates the number of primary-plane bytes for a row of the
// given width.
func (f Format) RowBytes(width int) int {
	return width * f.BytesPerPixel()
}

// ChromaBytes returns the minimum size of the secondary plane for an image
// with the given stride and height. Zero for single-plane formats.
func (f Format) ChromaBytes(stride, height int) int {
	info := f.Info()
	if info.Planes != 2 {
		return 0
	}
	rows := (height + info.ChromaRowDiv - 1) / info.ChromaRowDiv
	return stride * rows
}

// TextureFormat maps the format and byte order to the equivalent GPU
// texture format, or TextureFormatUndefined when there is none.
func (f Format) TextureFormat(order ByteOrder) gputypes.TextureFormat {
	switch f {
	case FormatARGB8888, FormatXRGB8888:
		if order == LittleEndian {
			return gputypes.TextureFormatBGRA8Unorm
		}
	case FormatABGR8888, FormatXBGR8888:
		if order == LittleEndian {
			return gputypes.TextureFormatRGBA8Unorm
		}
	case FormatA8:
		return gputypes.TextureFormatR8Unorm
	}
	return gputypes.TextureFormatUndefined
}

// String returns a string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatXRGB8888:
		return "XRGB8888"
	case FormatARGB8888:
		return "ARGB8888"
	case FormatXBGR8888:
		return "XBGR8888"
	case FormatABGR8888:
		return "ABGR8888"
	case FormatRGB565:
		return "RGB565"
	case FormatA8:
		return "A8"
	case FormatYCbCr420P2:
		return "YCbCr420P2"
	case FormatYCbCr422P2:
		return "YCbCr422P2"
	default:
		return "Unknown"
	}
}

// ByteOrder selects how a multi-byte pixel word is laid out in memory.
type ByteOrder uint8

const (
	// LittleEndian stores the least significant byte first.
	LittleEndian ByteOrder = iota

	// BigEndian stores the most significant byte first.
	BigEndian
)

func (o ByteOrder) String() string {
	if o == BigEndian {
		return "big"
	}
	return "little"
}
