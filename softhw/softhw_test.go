package softhw

import (
	"bytes"
	"errors"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/blit"
	"github.com/gogpu/blit/pixel"
	"github.com/gogpu/blit/vm"
)

type rig struct {
	t      *testing.T
	kernel *vm.Space
	iommu  *vm.IOMMU
	bus    *vm.Bus
}

func newRig(t *testing.T) *rig {
	t.Helper()
	k := vm.NewKernel()
	u := vm.NewIOMMU()
	return &rig{t: t, kernel: k, iommu: u, bus: vm.NewBus(k, u)}
}

// plane allocates a kernel buffer and returns its plane registers.
func (r *rig) plane(f pixel.Format, w, h int) blit.PlaneDesc {
	r.t.Helper()
	stride := max(f.RowBytes(w), w)
	size := stride * h
	chroma := f.ChromaBytes(stride, h)
	addr, err := r.kernel.Alloc(size + chroma)
	if err != nil {
		r.t.Fatalf("Alloc() = %v", err)
	}
	pd := blit.PlaneDesc{
		Enabled: true,
		Kind:    blit.AddrKernel,
		Addr:    addr,
		Width:   w,
		Height:  h,
		Stride:  stride,
		Format:  f,
		Rect:    blit.Rect{W: w, H: h},
	}
	if f.DualPlane() {
		pd.Addr2 = addr + uint64(size)
	}
	return pd
}

func (r *rig) surface(pd blit.PlaneDesc) *surface {
	r.t.Helper()
	s, err := openSurface(r.bus, pd, true)
	if err != nil {
		r.t.Fatalf("openSurface() = %v", err)
	}
	return s
}

func (r *rig) paint(pd blit.PlaneDesc, f func(x, y int) color.NRGBA) {
	s := r.surface(pd)
	for y := range pd.Height {
		for x := range pd.Width {
			s.set(x, y, f(x, y))
		}
	}
}

func solid(c color.NRGBA) func(x, y int) color.NRGBA {
	return func(int, int) color.NRGBA { return c }
}

func gradient(x, y int) color.NRGBA {
	return color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: uint8(x + y), A: 255}
}

func descriptor(op blit.Operator, src, dst blit.PlaneDesc) *blit.Descriptor {
	d := &blit.Descriptor{
		Op:           op,
		Coefficients: op.Coefficients(),
		GlobalAlpha:  255,
	}
	d.Planes[blit.SlotSource] = src
	d.Planes[blit.SlotDestination] = dst
	if !src.Enabled {
		d.SrcSelect = blit.SelectConstant
	}
	if op == blit.OpSolidFill || op == blit.OpClear {
		d.DstSelect = blit.SelectConstant
	}
	return d
}

// runBlit programs d on a fresh accelerator and waits for its interrupt.
func (r *rig) runBlit(d *blit.Descriptor, opts ...Option) *Accelerator {
	r.t.Helper()
	a := New(r.bus, opts...)
	irq := make(chan struct{}, 1)
	a.SetInterruptHandler(func() {
		if a.IsBlitDone() {
			irq <- struct{}{}
		}
	})
	if err := a.Configure(d); err != nil {
		r.t.Fatalf("Configure() = %v", err)
	}
	if err := a.Run(); err != nil {
		r.t.Fatalf("Run() = %v", err)
	}
	select {
	case <-irq:
	case <-time.After(5 * time.Second):
		r.t.Fatal("no completion interrupt")
	}
	if err := a.Fault(); err != nil {
		r.t.Fatalf("blit fault: %v", err)
	}
	return a
}

func TestComposeCopy(t *testing.T) {
	r := newRig(t)
	src := r.plane(pixel.FormatXRGB8888, 8, 8)
	dst := r.plane(pixel.FormatXRGB8888, 8, 8)
	r.paint(src, gradient)

	r.runBlit(descriptor(blit.OpSrc, src, dst))

	s, d := r.surface(src), r.surface(dst)
	for y := range 8 {
		for x := range 8 {
			if got, want := d.at(x, y), s.at(x, y); got != want {
				t.Fatalf("dst(%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestComposeSrcOver(t *testing.T) {
	r := newRig(t)
	src := r.plane(pixel.FormatARGB8888, 2, 2)
	dst := r.plane(pixel.FormatXRGB8888, 2, 2)
	r.paint(src, solid(color.NRGBA{R: 255, A: 128}))
	r.paint(dst, solid(color.NRGBA{B: 255, A: 255}))

	r.runBlit(descriptor(blit.OpSrcOver, src, dst))

	got := r.surface(dst).at(0, 0)
	want := color.NRGBA{R: 128, B: 127, A: 255}
	if got != want {
		t.Errorf("dst = %v, want %v", got, want)
	}
}

func TestComposeSolidFillAndClear(t *testing.T) {
	r := newRig(t)
	dst := r.plane(pixel.FormatARGB8888, 4, 4)
	r.paint(dst, gradient)

	fill := color.NRGBA{R: 1, G: 2, B: 3, A: 255}
	d := descriptor(blit.OpSolidFill, blit.PlaneDesc{}, dst)
	d.FillColor = fill
	r.runBlit(d)
	if got := r.surface(dst).at(3, 3); got != fill {
		t.Errorf("after fill dst = %v, want %v", got, fill)
	}

	r.runBlit(descriptor(blit.OpClear, blit.PlaneDesc{}, dst))
	if got := r.surface(dst).at(1, 2); got != (color.NRGBA{}) {
		t.Errorf("after clear dst = %v, want transparent", got)
	}
}

func TestComposeRotation(t *testing.T) {
	r := newRig(t)
	src := r.plane(pixel.FormatXRGB8888, 3, 2)
	dst := r.plane(pixel.FormatXRGB8888, 2, 3)
	r.paint(src, gradient)

	d := descriptor(blit.OpSrc, src, dst)
	d.Rotation = blit.Rotation{Degrees: 90}
	r.runBlit(d)

	// Clockwise: source (x, y) lands at (h-1-y, x).
	s, o := r.surface(src), r.surface(dst)
	for y := range 2 {
		for x := range 3 {
			if got, want := o.at(1-y, x), s.at(x, y); got != want {
				t.Errorf("rotated (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestComposeFlip(t *testing.T) {
	r := newRig(t)
	src := r.plane(pixel.FormatXRGB8888, 4, 1)
	dst := r.plane(pixel.FormatXRGB8888, 4, 1)
	r.paint(src, gradient)

	d := descriptor(blit.OpSrc, src, dst)
	d.Rotation = blit.Rotation{XFlip: true}
	r.runBlit(d)

	s, o := r.surface(src), r.surface(dst)
	for x := range 4 {
		if got, want := o.at(3-x, 0), s.at(x, 0); got != want {
			t.Errorf("flipped %d = %v, want %v", x, got, want)
		}
	}
}

func TestComposeScaleNearest(t *testing.T) {
	r := newRig(t)
	src := r.plane(pixel.FormatXRGB8888, 2, 2)
	dst := r.plane(pixel.FormatXRGB8888, 4, 4)
	r.paint(src, gradient)

	d := descriptor(blit.OpSrc, src, dst)
	d.Scaling = blit.Scaling{Mode: blit.ScaleNearest, SrcW: 1, SrcH: 1, DstW: 2, DstH: 2}
	r.runBlit(d)

	s, o := r.surface(src), r.surface(dst)
	for y := range 4 {
		for x := range 4 {
			if got, want := o.at(x, y), s.at(x/2, y/2); got != want {
				t.Errorf("scaled (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestComposeRepeat(t *testing.T) {
	tests := []struct {
		mode blit.RepeatMode
		want func(s *surface, x int) color.NRGBA
	}{
		{blit.RepeatNormal, func(s *surface, x int) color.NRGBA { return s.at(x%2, 0) }},
		{blit.RepeatReflect, func(s *surface, x int) color.NRGBA { return s.at([]int{0, 1, 1, 0, 0, 1}[x], 0) }},
		{blit.RepeatClamp, func(s *surface, x int) color.NRGBA { return s.at(min(x, 1), 0) }},
		{blit.RepeatPad, func(s *surface, x int) color.NRGBA {
			if x < 2 {
				return s.at(x, 0)
			}
			return color.NRGBA{G: 200, A: 255}
		}},
	}
	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			r := newRig(t)
			src := r.plane(pixel.FormatXRGB8888, 2, 1)
			dst := r.plane(pixel.FormatXRGB8888, 6, 1)
			r.paint(src, gradient)

			d := descriptor(blit.OpSrc, src, dst)
			d.Repeat = blit.Repeat{Mode: tt.mode, PadColor: color.NRGBA{G: 200, A: 255}}
			r.runBlit(d)

			s, o := r.surface(src), r.surface(dst)
			for x := range 6 {
				if got, want := o.at(x, 0), tt.want(s, x); got != want {
					t.Errorf("mode %d x=%d: got %v, want %v", tt.mode, x, got, want)
				}
			}
		})
	}
}

func TestComposeMaskAndGlobalAlpha(t *testing.T) {
	r := newRig(t)
	src := r.plane(pixel.FormatXRGB8888, 2, 1)
	dst := r.plane(pixel.FormatXRGB8888, 2, 1)
	msk := r.plane(pixel.FormatA8, 2, 1)
	r.paint(src, solid(color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
	r.paint(dst, solid(color.NRGBA{A: 255}))
	r.paint(msk, func(x, _ int) color.NRGBA { return color.NRGBA{A: uint8(255 * x)} })

	d := descriptor(blit.OpSrcOver, src, dst)
	d.Planes[blit.SlotMask] = msk
	d.GlobalAlpha = 128
	r.runBlit(d)

	o := r.surface(dst)
	if got := o.at(0, 0); got != (color.NRGBA{A: 255}) {
		t.Errorf("masked-out pixel = %v", got)
	}
	if got := o.at(1, 0); got != (color.NRGBA{R: 128, G: 128, B: 128, A: 255}) {
		t.Errorf("half-alpha pixel = %v", got)
	}
}

func TestComposeClipAndDualOutput(t *testing.T) {
	r := newRig(t)
	src := r.plane(pixel.FormatXRGB8888, 4, 4)
	dst := r.plane(pixel.FormatXRGB8888, 4, 4)
	dst2 := r.plane(pixel.FormatABGR8888, 4, 4)
	r.paint(src, solid(color.NRGBA{R: 9, A: 255}))

	d := descriptor(blit.OpSrc, src, dst)
	d.Planes[blit.SlotDestination2] = dst2
	d.Clip = &blit.Rect{X: 1, Y: 1, W: 2, H: 2}
	r.runBlit(d)

	o, o2 := r.surface(dst), r.surface(dst2)
	for y := range 4 {
		for x := range 4 {
			inside := x >= 1 && x < 3 && y >= 1 && y < 3
			want := color.NRGBA{A: 255}
			if inside {
				want = color.NRGBA{R: 9, A: 255}
			}
			if got := o.at(x, y); got != want {
				t.Errorf("dst(%d,%d) = %v, want %v", x, y, got, want)
			}
			if inside && o2.at(x, y) != (color.NRGBA{R: 9, A: 255}) {
				t.Errorf("secondary dst(%d,%d) = %v", x, y, o2.at(x, y))
			}
		}
	}
}

func TestComposeBlueScreen(t *testing.T) {
	key := color.NRGBA{B: 255, A: 255}

	t.Run("transparent", func(t *testing.T) {
		r := newRig(t)
		src := r.plane(pixel.FormatXRGB8888, 2, 1)
		dst := r.plane(pixel.FormatXRGB8888, 2, 1)
		r.paint(src, func(x, _ int) color.NRGBA {
			if x == 0 {
				return key
			}
			return color.NRGBA{R: 255, A: 255}
		})
		r.paint(dst, solid(color.NRGBA{G: 255, A: 255}))

		d := descriptor(blit.OpSrc, src, dst)
		d.BlueScreen = blit.BlueScreen{Mode: blit.BlueScreenTransparent, Key: key}
		r.runBlit(d)

		o := r.surface(dst)
		if got := o.at(0, 0); got != (color.NRGBA{G: 255, A: 255}) {
			t.Errorf("keyed pixel = %v, want destination kept", got)
		}
		if got := o.at(1, 0); got != (color.NRGBA{R: 255, A: 255}) {
			t.Errorf("unkeyed pixel = %v", got)
		}
	})

	t.Run("replace", func(t *testing.T) {
		r := newRig(t)
		dst := r.plane(pixel.FormatXRGB8888, 1, 1)
		r.paint(dst, solid(key))

		d := descriptor(blit.OpDst, blit.PlaneDesc{}, dst)
		bg := color.NRGBA{R: 7, G: 7, B: 7, A: 255}
		d.BlueScreen = blit.BlueScreen{Mode: blit.BlueScreenReplace, Key: key, Background: bg}
		r.runBlit(d)

		if got := r.surface(dst).at(0, 0); got != bg {
			t.Errorf("keyed destination = %v, want %v", got, bg)
		}
	})
}

func TestComposeNV12Destination(t *testing.T) {
	r := newRig(t)
	dst := r.plane(pixel.FormatYCbCr420P2, 4, 4)
	gray := color.NRGBA{R: 128, G: 128, B: 128, A: 255}

	d := descriptor(blit.OpSolidFill, blit.PlaneDesc{}, dst)
	d.FillColor = gray
	r.runBlit(d)

	got := r.surface(dst).at(2, 3)
	if diff(got.R, 128) > 1 || diff(got.G, 128) > 1 || diff(got.B, 128) > 1 {
		t.Errorf("nv12 gray = %v", got)
	}
}

func TestComposeDither(t *testing.T) {
	r := newRig(t)
	dst := r.plane(pixel.FormatRGB565, 4, 4)

	d := descriptor(blit.OpSolidFill, blit.PlaneDesc{}, dst)
	d.FillColor = color.NRGBA{R: 4, G: 2, B: 4, A: 255}
	d.Dither = true
	r.runBlit(d)

	o := r.surface(dst)
	lit := 0
	for y := range 4 {
		for x := range 4 {
			if o.at(x, y).R != 0 {
				lit++
			}
		}
	}
	if lit == 0 || lit == 16 {
		t.Errorf("dither produced %d of 16 lit pixels, want a pattern", lit)
	}
}

func diff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

func TestAcceleratorStatus(t *testing.T) {
	r := newRig(t)
	dst := r.plane(pixel.FormatXRGB8888, 1, 1)
	a := New(r.bus)

	if err := a.Run(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Run() before Configure = %v", err)
	}
	a.Wait()

	hung := New(r.bus, WithHang(true))
	if err := hung.Configure(descriptor(blit.OpClear, blit.PlaneDesc{}, dst)); err != nil {
		t.Fatal(err)
	}
	if err := hung.Run(); err != nil {
		t.Fatal(err)
	}
	hung.Wait()
	if hung.Status()&StatusBusy == 0 || hung.IsBlitDone() {
		t.Errorf("hung status = %#x", hung.Status())
	}
	if err := hung.Run(); !errors.Is(err, ErrBusy) {
		t.Errorf("Run() while busy = %v", err)
	}
	if !strings.Contains(hung.Dump(), "busy=true") {
		t.Errorf("Dump() = %q", hung.Dump())
	}
	hung.DisableInterrupt()
	hung.Stop()
	if err := hung.Reset(); err != nil {
		t.Fatal(err)
	}
	if hung.Status() != 0 {
		t.Errorf("status after reset = %#x", hung.Status())
	}
}

func TestAcceleratorLostInterrupt(t *testing.T) {
	r := newRig(t)
	dst := r.plane(pixel.FormatXRGB8888, 1, 1)
	a := New(r.bus, WithLostInterrupt(true))
	raised := false
	a.SetInterruptHandler(func() { raised = true })
	_ = a.Configure(descriptor(blit.OpClear, blit.PlaneDesc{}, dst))
	_ = a.Run()
	a.Wait()

	if raised {
		t.Error("interrupt raised with lost-interrupt fault")
	}
	if !a.IsBlitDone() {
		t.Error("blit not done")
	}
}

func TestAcceleratorSpuriousInterrupt(t *testing.T) {
	r := newRig(t)
	dst := r.plane(pixel.FormatXRGB8888, 1, 1)
	a := New(r.bus, WithSpuriousInterrupt(true), WithLatency(10*time.Millisecond))
	done := make(chan bool, 4)
	a.SetInterruptHandler(func() { done <- a.IsBlitDone() })
	_ = a.Configure(descriptor(blit.OpClear, blit.PlaneDesc{}, dst))
	_ = a.Run()
	a.Wait()

	if first := <-done; first {
		t.Error("first interrupt reported blit-done")
	}
	if second := <-done; !second {
		t.Error("completion interrupt did not report blit-done")
	}
}

func TestAcceleratorFaults(t *testing.T) {
	r := newRig(t)
	injected := errors.New("register write failed")

	a := New(r.bus, WithConfigureFault(injected), WithPrefetchFault(injected))
	if err := a.Configure(&blit.Descriptor{}); !errors.Is(err, injected) {
		t.Errorf("Configure() = %v", err)
	}
	if err := a.ConfigurePrefetch(nil); !errors.Is(err, injected) {
		t.Errorf("ConfigurePrefetch() = %v", err)
	}

	b := New(r.bus)
	if err := b.ConfigurePrefetch(make([]blit.PrefetchEntry, blit.MaxPrefetchEntries+1)); !errors.Is(err, ErrPrefetchTable) {
		t.Errorf("oversized table = %v", err)
	}
}

func TestAcceleratorUnmappedUserBuffer(t *testing.T) {
	r := newRig(t)
	sp := vm.NewSpace(3)
	addr, _ := sp.Alloc(16)
	dst := blit.PlaneDesc{
		Enabled: true, Kind: blit.AddrUserVirtual, ASID: 3, Addr: addr,
		Width: 2, Height: 2, Stride: 8, Format: pixel.FormatXRGB8888, Rect: blit.Rect{W: 2, H: 2},
	}
	a := New(r.bus)
	irq := make(chan struct{}, 1)
	a.SetInterruptHandler(func() { irq <- struct{}{} })
	_ = a.Configure(descriptor(blit.OpClear, blit.PlaneDesc{}, dst))
	_ = a.Run()
	<-irq

	if !errors.Is(a.Fault(), vm.ErrNotMapped) {
		t.Errorf("Fault() = %v, want ErrNotMapped", a.Fault())
	}
	if a.Status()&StatusFault == 0 {
		t.Error("fault bit not set")
	}
}

// TestAcceleratorStopHaltsBlit checks that once Stop or Reset returns the
// abandoned blit writes nothing more and never raises its interrupt.
func TestAcceleratorStopHaltsBlit(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		reset bool
	}{
		{"stop", nil, false},
		{"reset", nil, true},
		{"stop with pipes", []Option{WithPipes(4)}, false},
		{"stop during latency", []Option{WithLatency(time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			dst := r.plane(pixel.FormatXRGB8888, 512, 512)
			d := descriptor(blit.OpSolidFill, blit.PlaneDesc{}, dst)
			d.FillColor = color.NRGBA{R: 200, B: 55, A: 255}

			a := New(r.bus, tt.opts...)
			defer a.Close()
			var mu sync.Mutex
			stopped, lateIRQ := false, false
			a.SetInterruptHandler(func() {
				mu.Lock()
				defer mu.Unlock()
				if stopped {
					lateIRQ = true
				}
			})
			if err := a.Configure(d); err != nil {
				t.Fatal(err)
			}
			if err := a.Run(); err != nil {
				t.Fatal(err)
			}

			start := time.Now()
			if tt.reset {
				_ = a.Reset()
			} else {
				a.Stop()
			}
			mu.Lock()
			stopped = true
			mu.Unlock()
			if time.Since(start) > 5*time.Second {
				t.Fatal("halting took too long")
			}

			n := dst.Stride * dst.Height
			b, err := r.kernel.Bytes(dst.Addr, n)
			if err != nil {
				t.Fatal(err)
			}
			before := bytes.Clone(b)
			a.Wait()
			time.Sleep(10 * time.Millisecond)
			if !bytes.Equal(before, b) {
				t.Error("destination written after the blit was halted")
			}
			mu.Lock()
			defer mu.Unlock()
			if lateIRQ {
				t.Error("halted blit raised its interrupt")
			}
			if a.Status()&StatusBusy != 0 {
				t.Error("accelerator still busy")
			}
		})
	}
}
