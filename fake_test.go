package blit

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/blit/pixel"
)

var errInjected = errors.New("injected fault")

// fakeDevice records register programming and completes each run from a
// separate goroutine, like a real completion interrupt.
type fakeDevice struct {
	mu       sync.Mutex
	logger   *slog.Logger
	handler  func()
	done     bool
	irqOn    bool
	active   bool
	overlaps int

	desc     *Descriptor
	prefetch []PrefetchEntry

	runs, stops, resets, disables int

	hang, lostIRQ bool

	configureErr, prefetchErr, runErr error
}

func newFakeDevice() *fakeDevice { return &fakeDevice{} }

func (d *fakeDevice) SetLogger(l *slog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = l
}

func (d *fakeDevice) Configure(desc *Descriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.configureErr != nil {
		return d.configureErr
	}
	d.desc = desc
	return nil
}

func (d *fakeDevice) ConfigurePrefetch(entries []PrefetchEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.prefetchErr != nil {
		return d.prefetchErr
	}
	d.prefetch = append([]PrefetchEntry(nil), entries...)
	return nil
}

func (d *fakeDevice) Run() error {
	d.mu.Lock()
	if d.runErr != nil {
		d.mu.Unlock()
		return d.runErr
	}
	d.runs++
	if d.active {
		d.overlaps++
	}
	d.active = true
	d.done = false
	d.irqOn = true
	hang, lost := d.hang, d.lostIRQ
	d.mu.Unlock()

	if hang {
		return nil
	}
	go func() {
		d.mu.Lock()
		d.done = true
		d.active = false
		h, on := d.handler, d.irqOn
		d.mu.Unlock()
		if on && !lost && h != nil {
			h()
		}
	}()
	return nil
}

func (d *fakeDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	d.active = false
}

func (d *fakeDevice) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets++
	d.done = false
	d.active = false
	return nil
}

func (d *fakeDevice) IsBlitDone() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

func (d *fakeDevice) DisableInterrupt() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disables++
	d.irqOn = false
}

func (d *fakeDevice) SetInterruptHandler(h func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

func (d *fakeDevice) Dump() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("runs=%d done=%t", d.runs, d.done)
}

func (d *fakeDevice) set(f func(d *fakeDevice)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f(d)
}

func (d *fakeDevice) counts() (runs, stops, resets int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runs, d.stops, d.resets
}

// fakeSpace is an address space whose page-table lock can be probed.
type fakeSpace struct {
	id   uint64
	mu   sync.Mutex
	dead bool
}

func newFakeSpace(id uint64) *fakeSpace { return &fakeSpace{id: id} }

func (s *fakeSpace) ID() uint64                 { return s.id }
func (s *fakeSpace) Live() bool                 { return !s.dead }
func (s *fakeSpace) PageTableLock() sync.Locker { return &s.mu }

type mapKey struct {
	as   uint64
	base uint64
}

// fakeTranslator tracks outstanding mappings and fails Map for chosen
// base addresses.
type fakeTranslator struct {
	mu          sync.Mutex
	mapped      map[mapKey]uint64
	failAt      map[uint64]bool
	maps        []uint64
	unmaps      []uint64
	unlockedMap int
}

func newFakeTranslator() *fakeTranslator {
	return &fakeTranslator{mapped: map[mapKey]uint64{}, failAt: map[uint64]bool{}}
}

func (t *fakeTranslator) Map(as AddressSpace, base, length uint64, _ Direction) error {
	if fs, ok := as.(*fakeSpace); ok && fs.mu.TryLock() {
		fs.mu.Unlock()
		t.mu.Lock()
		t.unlockedMap++
		t.mu.Unlock()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failAt[base] {
		return errInjected
	}
	t.mapped[mapKey{as.ID(), base}] = length
	t.maps = append(t.maps, base)
	return nil
}

func (t *fakeTranslator) Unmap(as AddressSpace, base, _ uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.mapped, mapKey{as.ID(), base})
	t.unmaps = append(t.unmaps, base)
}

func (t *fakeTranslator) outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.mapped)
}

func (t *fakeTranslator) fail(base uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failAt[base] = true
}

// sliceSource is a JobSource over a fixed slice.
type sliceSource struct {
	mu      sync.Mutex
	jobs    []*Job
	retired []*Job
}

func (s *sliceSource) Dequeue() (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		return nil, false
	}
	j := s.jobs[0]
	s.jobs = s.jobs[1:]
	return j, true
}

func (s *sliceSource) Retire(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retired = append(s.retired, j)
}

func (s *sliceSource) push(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
}

func (s *sliceSource) retiredJobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Job(nil), s.retired...)
}

// Buffer addresses used by test jobs.
const (
	srcAddr  = 0x10000
	mskAddr  = 0x40000
	dstAddr  = 0x80000
	dst2Addr = 0xc0000
)

func rgbImage(kind AddrKind, addr uint64, w, h int) Image {
	return Image{
		Kind:   kind,
		Addr:   addr,
		Width:  w,
		Height: h,
		Stride: w * 4,
		Format: pixel.FormatXRGB8888,
		Rect:   Rect{W: w, H: h},
	}
}

func nv12Image(kind AddrKind, addr uint64, w, h int) Image {
	im := Image{
		Kind:   kind,
		Addr:   addr,
		Width:  w,
		Height: h,
		Stride: w,
		Format: pixel.FormatYCbCr420P2,
		Rect:   Rect{W: w, H: h},
	}
	im.Plane2 = Plane{Offset: uint64(w * h), Size: uint64(pixel.FormatYCbCr420P2.ChromaBytes(w, h))}
	return im
}

func a8Image(kind AddrKind, addr uint64, w, h int) Image {
	return Image{
		Kind:   kind,
		Addr:   addr,
		Width:  w,
		Height: h,
		Stride: w,
		Format: pixel.FormatA8,
		Rect:   Rect{W: w, H: h},
	}
}

// opaqueJob is an opaque 100x100 RGB source composited SRC_OVER onto an
// opaque 100x100 RGB destination, both in user memory.
func opaqueJob(as AddressSpace) *Job {
	j := NewJob(as)
	j.Images[SlotSource] = rgbImage(AddrUserVirtual, srcAddr, 100, 100)
	j.Images[SlotDestination] = rgbImage(AddrUserVirtual, dstAddr, 100, 100)
	return j
}
