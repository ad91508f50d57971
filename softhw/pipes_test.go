package softhw

import (
	"bytes"
	"image/color"
	"sync/atomic"
	"testing"

	"github.com/gogpu/blit"
	"github.com/gogpu/blit/pixel"
)

func TestBands(t *testing.T) {
	tests := []struct {
		name  string
		y0, h int
		n     int
	}{
		{"single pipe", 0, 100, 1},
		{"short", 0, 3, 4},
		{"even start", 0, 100, 4},
		{"odd start", 1, 100, 4},
		{"odd height", 3, 37, 3},
		{"more pipes than rows", 0, 6, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bs := bands(tt.y0, tt.h, tt.n)
			next := 0
			for i, b := range bs {
				if b[0] != next || b[1] <= b[0] {
					t.Fatalf("band %d = %v, want start %d", i, b, next)
				}
				if b[1] != tt.h && (tt.y0+b[1])&1 != 0 {
					t.Errorf("band %d ends on odd buffer row %d", i, tt.y0+b[1])
				}
				next = b[1]
			}
			if next != tt.h {
				t.Errorf("bands cover %d rows, want %d", next, tt.h)
			}
			if len(bs) > max(tt.n, 1) {
				t.Errorf("%d bands for %d pipes", len(bs), tt.n)
			}
		})
	}
}

func TestPipesRunAll(t *testing.T) {
	p := newPipes(4)
	defer p.close()

	var n atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { n.Add(1) }
	}
	p.runAll(work)
	if got := n.Load(); got != 100 {
		t.Errorf("ran %d items, want 100", got)
	}
	p.runAll(nil)
}

func TestPipesClose(t *testing.T) {
	p := newPipes(2)
	p.close()
	p.close()

	ran := false
	p.runAll([]func(){func() { ran = true }})
	if !ran {
		t.Error("runAll after close dropped work")
	}
}

// TestComposePipesMatchSerial checks that splitting a blit into bands
// gives the same pixels as one pipeline.
func TestComposePipesMatchSerial(t *testing.T) {
	formats := []pixel.Format{pixel.FormatXRGB8888, pixel.FormatYCbCr420P2, pixel.FormatRGB565}
	for _, f := range formats {
		t.Run(f.String(), func(t *testing.T) {
			r := newRig(t)
			src := r.plane(pixel.FormatARGB8888, 33, 29)
			r.paint(src, func(x, y int) color.NRGBA {
				return color.NRGBA{R: uint8(x * 7), G: uint8(y * 9), B: uint8(x * y), A: uint8(128 + x)}
			})

			var out [2][]byte
			for i, opts := range [][]Option{nil, {WithPipes(4)}} {
				dst := r.plane(f, 40, 40)
				r.paint(dst, solid(color.NRGBA{R: 10, G: 200, B: 90, A: 255}))
				dst.Rect = blit.Rect{X: 3, Y: 5, W: 33, H: 29}

				d := descriptor(blit.OpSrcOver, src, dst)
				d.GlobalAlpha = 200
				d.Dither = true
				a := r.runBlit(d, opts...)
				a.Close()

				n := dst.Stride*dst.Height + f.ChromaBytes(dst.Stride, dst.Height)
				b, err := r.kernel.Bytes(dst.Addr, n)
				if err != nil {
					t.Fatal(err)
				}
				out[i] = bytes.Clone(b)
			}
			if !bytes.Equal(out[0], out[1]) {
				t.Error("banded blit differs from serial blit")
			}
		})
	}
}
