package softhw

import (
	"fmt"
	"image/color"

	"github.com/gogpu/blit"
	"github.com/gogpu/blit/pixel"
	"github.com/gogpu/blit/vm"
)

// surface is one plane as seen by the device.
type surface struct {
	pd     blit.PlaneDesc
	luma   []byte
	chroma []byte
}

// openSurface resolves the memory of a plane through the bus.
func openSurface(bus *vm.Bus, pd blit.PlaneDesc, write bool) (*surface, error) {
	n := pd.Stride * pd.Height
	luma, err := bus.Access(pd.Kind, pd.ASID, pd.Addr, n, write)
	if err != nil {
		return nil, err
	}
	s := &surface{pd: pd, luma: luma}
	if pd.Format.DualPlane() {
		cn := pd.Format.ChromaBytes(pd.Stride, pd.Height)
		s.chroma, err = bus.Access(pd.Kind, pd.ASID, pd.Addr2, cn, write)
		if err != nil {
			return nil, fmt.Errorf("chroma plane: %w", err)
		}
	}
	return s, nil
}

func (s *surface) offset(x, y int) int {
	return y*s.pd.Stride + x*s.pd.Format.BytesPerPixel()
}

// at returns the stored color at buffer coordinates x, y.
func (s *surface) at(x, y int) color.NRGBA {
	f := s.pd.Format
	if f.DualPlane() {
		c := pixel.ChromaOffset(f, s.pd.Stride, x, y)
		return pixel.LoadYCbCr(s.luma[s.offset(x, y)], s.chroma[c], s.chroma[c+1])
	}
	off := s.offset(x, y)
	return pixel.Load(f, s.pd.Order, s.luma[off:off+f.BytesPerPixel()])
}

// set stores c at buffer coordinates x, y.
func (s *surface) set(x, y int, c color.NRGBA) {
	f := s.pd.Format
	if f.DualPlane() {
		yy, cb, cr := pixel.StoreYCbCr(c)
		s.luma[s.offset(x, y)] = yy
		o := pixel.ChromaOffset(f, s.pd.Stride, x, y)
		s.chroma[o], s.chroma[o+1] = cb, cr
		return
	}
	off := s.offset(x, y)
	pixel.Store(f, s.pd.Order, s.luma[off:off+f.BytesPerPixel()], c)
}

// inRect reports whether x, y (relative to the plane rectangle) is inside it.
func (s *surface) inRect(x, y int) bool {
	return x >= 0 && y >= 0 && x < s.pd.Rect.W && y < s.pd.Rect.H
}
