package softhw

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/gogpu/blit"
	"github.com/gogpu/blit/internal/blend"
	"github.com/gogpu/blit/pixel"
	"github.com/gogpu/blit/vm"
)

// bayer4 is the 4x4 ordered dither matrix.
var bayer4 = [4][4]uint8{
	{0, 8, 2, 10},
	{12, 4, 14, 6},
	{3, 11, 1, 9},
	{15, 7, 13, 5},
}

// errHalted is returned when a blit is stopped before its last row.
var errHalted = errors.New("softhw: blit halted")

// compose runs one programmed blit. Pixels inside the destination
// rectangle (and the clip rectangle, if set) are computed as
// src*Fs + dst*Fd on premultiplied values. When p is not nil the rows are
// split into bands and run on the pixel pipes. Closing stop abandons the
// rows not yet written.
func compose(bus *vm.Bus, d *blit.Descriptor, p *pipes, stop <-chan struct{}) error {
	dst, err := openSurface(bus, d.Planes[blit.SlotDestination], true)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	var dst2 *surface
	if d.Planes[blit.SlotDestination2].Enabled {
		if dst2, err = openSurface(bus, d.Planes[blit.SlotDestination2], true); err != nil {
			return fmt.Errorf("secondary destination: %w", err)
		}
	}
	var mask *surface
	if d.Planes[blit.SlotMask].Enabled {
		if mask, err = openSurface(bus, d.Planes[blit.SlotMask], false); err != nil {
			return fmt.Errorf("mask: %w", err)
		}
	}

	c := &composer{
		d:       d,
		dst:     dst,
		dst2:    dst2,
		mask:    mask,
		fill:    premultiply(d.FillColor, d.Premultiplied),
		pad:     premultiply(d.Repeat.PadColor, d.Premultiplied),
		factors: blend.Factors{Src: d.Coefficients.Src, Dst: d.Coefficients.Dst},
		stop:    stop,
	}
	if d.SrcSelect == blit.SelectMemory {
		s, err := openSurface(bus, d.Planes[blit.SlotSource], false)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		c.src = transform(fetch(s, d.Premultiplied), d.Rotation, d.Scaling)
	}

	dr := dst.pd.Rect
	// The secondary destination's chroma rows may pair up differently.
	if p == nil || dst2 != nil && dst2.pd.Format.DualPlane() {
		c.rows(0, dr.H)
	} else {
		bs := bands(dr.Y, dr.H, p.n)
		work := make([]func(), len(bs))
		for i, b := range bs {
			work[i] = func() { c.rows(b[0], b[1]) }
		}
		p.runAll(work)
	}
	if c.halted() {
		return errHalted
	}
	return nil
}

// composer holds the per-blit state shared by all row bands. It is
// read-only once built.
type composer struct {
	d         *blit.Descriptor
	src       *image.RGBA
	dst, dst2 *surface
	mask      *surface
	fill, pad color.RGBA
	factors   blend.Factors
	stop      <-chan struct{}
}

func (c *composer) halted() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// rows composites destination rows [y0, y1) relative to the rectangle.
// It stops at the first row boundary after the blit is halted.
func (c *composer) rows(y0, y1 int) {
	d, dr := c.d, c.dst.pd.Rect
	for y := y0; y < y1; y++ {
		if c.halted() {
			return
		}
		for x := range dr.W {
			bx, by := dr.X+x, dr.Y+y
			if cl := d.Clip; cl != nil && (bx < cl.X || by < cl.Y || bx >= cl.X+cl.W || by >= cl.Y+cl.H) {
				continue
			}

			s := c.fill
			if c.src != nil {
				s = sample(c.src, x, y, d.Repeat.Mode, c.pad)
			}
			if d.BlueScreen.Mode == blit.BlueScreenTransparent && c.src != nil && keyMatch(s, d.BlueScreen.Key, d.Premultiplied) {
				continue
			}
			if c.mask != nil {
				cov := uint8(0)
				if c.mask.inRect(x, y) {
					cov = c.mask.at(c.mask.pd.Rect.X+x, c.mask.pd.Rect.Y+y).A
				}
				s = scale(s, cov)
			}
			if d.GlobalAlpha != 255 {
				s = scale(s, d.GlobalAlpha)
			}

			var dc color.RGBA
			if d.DstSelect == blit.SelectMemory {
				dc = premultiply(c.dst.at(bx, by), d.Premultiplied)
			}
			if d.BlueScreen.Mode == blit.BlueScreenReplace && keyMatch(dc, d.BlueScreen.Key, d.Premultiplied) {
				dc = premultiply(d.BlueScreen.Background, d.Premultiplied)
			}

			r, g, b, a := c.factors.Apply(s.R, s.G, s.B, s.A, dc.R, dc.G, dc.B, dc.A)
			out := unpremultiply(color.RGBA{R: r, G: g, B: b, A: a}, d.Premultiplied)

			store(c.dst, bx, by, out, d.Dither)
			if c.dst2 != nil && c.dst2.inRect(x, y) {
				store(c.dst2, c.dst2.pd.Rect.X+x, c.dst2.pd.Rect.Y+y, out, d.Dither)
			}
		}
	}
}

// fetch decodes the source rectangle into a premultiplied image.
func fetch(s *surface, premultiplied bool) *image.RGBA {
	r := s.pd.Rect
	img := image.NewRGBA(image.Rect(0, 0, r.W, r.H))
	for y := range r.H {
		for x := range r.W {
			img.SetRGBA(x, y, premultiply(s.at(r.X+x, r.Y+y), premultiplied))
		}
	}
	return img
}

// transform applies mirroring, rotation and scaling to the source.
func transform(src *image.RGBA, rot blit.Rotation, sc blit.Scaling) *image.RGBA {
	if !rot.Identity() {
		w, h := src.Bounds().Dx(), src.Bounds().Dy()
		m, ow, oh := orientation(rot, float64(w), float64(h))
		out := image.NewRGBA(image.Rect(0, 0, int(ow), int(oh)))
		draw.NearestNeighbor.Transform(out, m, src, src.Bounds(), draw.Src, nil)
		src = out
	}
	w, h := sc.Apply(src.Bounds().Dx(), src.Bounds().Dy())
	if w == src.Bounds().Dx() && h == src.Bounds().Dy() {
		return src
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	var scaler draw.Scaler = draw.NearestNeighbor
	if sc.Mode == blit.ScaleBilinear {
		scaler = draw.BiLinear
	}
	scaler.Scale(out, out.Bounds(), src, src.Bounds(), draw.Src, nil)
	return out
}

// orientation returns the source-to-destination matrix of rot for a w x h
// image, and the output size. Mirroring is applied before rotation.
func orientation(rot blit.Rotation, w, h float64) (f64.Aff3, float64, float64) {
	flip := f64.Aff3{1, 0, 0, 0, 1, 0}
	if rot.XFlip {
		flip[0], flip[2] = -1, w
	}
	if rot.YFlip {
		flip[4], flip[5] = -1, h
	}

	var r f64.Aff3
	ow, oh := w, h
	switch rot.Degrees {
	case 90:
		r = f64.Aff3{0, -1, h, 1, 0, 0}
		ow, oh = h, w
	case 180:
		r = f64.Aff3{-1, 0, w, 0, -1, h}
	case 270:
		r = f64.Aff3{0, 1, 0, -1, 0, w}
		ow, oh = h, w
	default:
		r = f64.Aff3{1, 0, 0, 0, 1, 0}
	}
	return mul(r, flip), ow, oh
}

// mul returns the affine transform a∘b (b applied first).
func mul(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3],
		a[0]*b[1] + a[1]*b[4],
		a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3],
		a[3]*b[1] + a[4]*b[4],
		a[3]*b[2] + a[4]*b[5] + a[5],
	}
}

// sample reads the transformed source at x, y, applying the repeat mode
// outside its bounds.
func sample(src *image.RGBA, x, y int, mode blit.RepeatMode, pad color.RGBA) color.RGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if x < w && y < h {
		return src.RGBAAt(x, y)
	}
	switch mode {
	case blit.RepeatPad:
		return pad
	case blit.RepeatNormal:
		return src.RGBAAt(x%w, y%h)
	case blit.RepeatReflect:
		return src.RGBAAt(reflect(x, w), reflect(y, h))
	case blit.RepeatClamp:
		return src.RGBAAt(min(x, w-1), min(y, h-1))
	default:
		return color.RGBA{}
	}
}

func reflect(v, n int) int {
	v %= 2 * n
	if v >= n {
		return 2*n - 1 - v
	}
	return v
}

func scale(c color.RGBA, k uint8) color.RGBA {
	return color.RGBA{
		R: blend.MulDiv255(c.R, k),
		G: blend.MulDiv255(c.G, k),
		B: blend.MulDiv255(c.B, k),
		A: blend.MulDiv255(c.A, k),
	}
}

// premultiply converts a stored color to premultiplied form. Buffers that
// already hold premultiplied values are passed through.
func premultiply(c color.NRGBA, premultiplied bool) color.RGBA {
	if premultiplied || c.A == 255 {
		return color.RGBA{R: c.R, G: c.G, B: c.B, A: c.A}
	}
	return color.RGBA{
		R: blend.MulDiv255(c.R, c.A),
		G: blend.MulDiv255(c.G, c.A),
		B: blend.MulDiv255(c.B, c.A),
		A: c.A,
	}
}

// unpremultiply converts a blend result back to the buffer's storage form.
func unpremultiply(c color.RGBA, premultiplied bool) color.NRGBA {
	if premultiplied || c.A == 255 {
		return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}
	}
	if c.A == 0 {
		return color.NRGBA{}
	}
	div := func(v uint8) uint8 {
		return uint8(min(255, (uint32(v)*255+uint32(c.A)/2)/uint32(c.A)))
	}
	return color.NRGBA{R: div(c.R), G: div(c.G), B: div(c.B), A: c.A}
}

// keyMatch compares the color channels of a premultiplied pixel with the
// chroma key.
func keyMatch(c color.RGBA, key color.NRGBA, premultiplied bool) bool {
	u := unpremultiply(c, premultiplied)
	return u.R == key.R && u.G == key.G && u.B == key.B
}

// store writes c, dithering to the destination's channel depth when asked.
func store(s *surface, x, y int, c color.NRGBA, dither bool) {
	if dither && s.pd.Format == pixel.FormatRGB565 {
		t := bayer4[y&3][x&3]
		c.R = addSat(c.R, t>>1)
		c.G = addSat(c.G, t>>2)
		c.B = addSat(c.B, t>>1)
	}
	s.set(x, y, c)
}

func addSat(a, b uint8) uint8 {
	return uint8(min(255, uint16(a)+uint16(b)))
}
