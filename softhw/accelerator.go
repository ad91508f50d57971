// Package softhw emulates the fixed-function blit accelerator in software.
//
// An Accelerator implements blit.Device. Run kicks a goroutine that
// composites the programmed descriptor through a vm.Bus, sets blit-done
// and raises the completion interrupt, the way the hardware engine does.
// WithPipes spreads each blit over several pixel pipelines. The other
// options inject latency, hangs, lost or spurious interrupts and register
// faults for exercising the executor's recovery paths.
package softhw

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gogpu/blit"
	"github.com/gogpu/blit/vm"
)

// Status register bits.
const (
	StatusBusy       uint32 = 1 << 0
	StatusDone       uint32 = 1 << 1
	StatusIRQEnabled uint32 = 1 << 2
	StatusIRQPending uint32 = 1 << 3
	StatusFault      uint32 = 1 << 4
)

var (
	// ErrBusy is returned when the accelerator is programmed or kicked
	// while a blit is running.
	ErrBusy = errors.New("softhw: accelerator busy")

	// ErrNotConfigured is returned by Run before Configure.
	ErrNotConfigured = errors.New("softhw: no job configured")

	// ErrPrefetchTable is returned when the prefetch table is too large.
	ErrPrefetchTable = errors.New("softhw: prefetch table too large")
)

// Accelerator is a software blit engine.
type Accelerator struct {
	bus *vm.Bus

	mu       sync.Mutex
	logger   *slog.Logger
	desc     *blit.Descriptor
	prefetch []blit.PrefetchEntry
	status   uint32
	handler  func()
	gen      uint64
	runs     uint64
	fault    error

	cur   *run
	pipes *pipes

	latency      time.Duration
	hang         bool
	hangNext     int
	lostIRQ      bool
	spurious     bool
	configureErr error
	prefetchErr  error

	wg sync.WaitGroup
}

var _ blit.Device = (*Accelerator)(nil)

// run tracks one kicked blit. Closing stop makes the blit abandon its
// remaining rows; done is closed once it no longer touches memory.
type run struct {
	stop chan struct{}
	done chan struct{}
}

// New returns an idle accelerator that reaches memory through bus.
func New(bus *vm.Bus, opts ...Option) *Accelerator {
	a := &Accelerator{bus: bus, logger: blit.Logger()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetLogger sets the accelerator's logger. It is called by the executor
// with the package logger.
func (a *Accelerator) SetLogger(l *slog.Logger) {
	if l == nil {
		l = blit.Logger()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logger = l
}

// Configure latches the job registers.
func (a *Accelerator) Configure(d *blit.Descriptor) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.configureErr != nil {
		return a.configureErr
	}
	if a.status&StatusBusy != 0 {
		return ErrBusy
	}
	cp := *d
	cp.Prefetch = append([]blit.PrefetchEntry(nil), d.Prefetch...)
	a.desc = &cp
	return nil
}

// ConfigurePrefetch latches the prefetch table.
func (a *Accelerator) ConfigurePrefetch(entries []blit.PrefetchEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.prefetchErr != nil {
		return a.prefetchErr
	}
	if len(entries) > blit.MaxPrefetchEntries {
		return fmt.Errorf("%w: %d entries", ErrPrefetchTable, len(entries))
	}
	if a.status&StatusBusy != 0 {
		return ErrBusy
	}
	a.prefetch = append(a.prefetch[:0], entries...)
	return nil
}

// Run enables and clears the completion interrupt and starts the blit.
func (a *Accelerator) Run() error {
	a.mu.Lock()
	if a.desc == nil {
		a.mu.Unlock()
		return ErrNotConfigured
	}
	if a.status&StatusBusy != 0 {
		a.mu.Unlock()
		return ErrBusy
	}
	a.gen++
	a.runs++
	a.status = StatusBusy | StatusIRQEnabled
	a.fault = nil
	gen, desc := a.gen, a.desc
	prefetch := append([]blit.PrefetchEntry(nil), a.prefetch...)
	handler, spurious := a.handler, a.spurious
	hang := a.hang || a.hangNext > 0
	if a.hangNext > 0 {
		a.hangNext--
	}
	r := &run{stop: make(chan struct{}), done: make(chan struct{})}
	a.cur = r
	a.wg.Add(1)
	a.mu.Unlock()

	if spurious && handler != nil {
		handler()
	}

	go a.execute(gen, desc, prefetch, hang, r)
	return nil
}

// HangNext makes the next n runs hang.
func (a *Accelerator) HangNext(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hangNext = n
}

func (a *Accelerator) execute(gen uint64, desc *blit.Descriptor, prefetch []blit.PrefetchEntry, hang bool, r *run) {
	defer a.wg.Done()
	defer close(r.done)

	if a.latency > 0 {
		t := time.NewTimer(a.latency)
		select {
		case <-t.C:
		case <-r.stop:
			t.Stop()
			return
		}
	}
	if hang {
		return
	}

	err := a.touch(desc, prefetch)
	if err == nil {
		err = compose(a.bus, desc, a.pipes, r.stop)
	}

	a.mu.Lock()
	if a.gen != gen {
		// Stopped or reset while running.
		a.mu.Unlock()
		return
	}
	a.status &^= StatusBusy
	a.status |= StatusDone
	if err != nil {
		a.status |= StatusFault
		a.fault = err
		a.logger.Warn("softhw: blit fault", slog.String("job_id", desc.JobID.String()), slog.String("error", err.Error()))
	}
	raise := a.status&StatusIRQEnabled != 0 && !a.lostIRQ
	if raise {
		a.status |= StatusIRQPending
	}
	handler := a.handler
	a.mu.Unlock()

	if raise && handler != nil {
		handler()
	}
}

// touch walks the prefetch table the way the engine's prefetcher does.
// Every entry must be reachable by the device.
func (a *Accelerator) touch(desc *blit.Descriptor, prefetch []blit.PrefetchEntry) error {
	for _, e := range prefetch {
		pd := desc.Planes[e.Slot]
		if _, err := a.bus.Access(pd.Kind, pd.ASID, e.Addr, int(e.Len), e.Dir == blit.DirOutput); err != nil {
			return fmt.Errorf("softhw: prefetch %s at %#x: %w", e.Slot, e.Addr, err)
		}
	}
	return nil
}

// Stop halts the engine. A blit in progress is abandoned: Stop returns
// only after it has stopped writing, and it never completes.
func (a *Accelerator) Stop() {
	a.mu.Lock()
	a.gen++
	a.status &^= StatusBusy
	r := a.cur
	a.cur = nil
	a.mu.Unlock()
	halt(r)
}

// Reset returns the engine to its power-on state, halting a blit in
// progress the way Stop does.
func (a *Accelerator) Reset() error {
	a.mu.Lock()
	a.gen++
	a.status = 0
	a.desc = nil
	a.prefetch = nil
	a.fault = nil
	r := a.cur
	a.cur = nil
	a.logger.Debug("softhw: reset")
	a.mu.Unlock()
	halt(r)
	return nil
}

func halt(r *run) {
	if r == nil {
		return
	}
	close(r.stop)
	<-r.done
}

// IsBlitDone reports the blit-done status bit.
func (a *Accelerator) IsBlitDone() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status&StatusDone != 0
}

// DisableInterrupt masks and acknowledges the completion interrupt.
func (a *Accelerator) DisableInterrupt() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status &^= StatusIRQEnabled | StatusIRQPending
}

// SetInterruptHandler installs the completion interrupt handler.
func (a *Accelerator) SetInterruptHandler(h func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// Status returns the status register.
func (a *Accelerator) Status() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Fault returns the error of the last run, if it faulted.
func (a *Accelerator) Fault() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fault
}

// Runs returns the number of kicks since creation.
func (a *Accelerator) Runs() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs
}

// Wait blocks until no blit goroutine is running.
func (a *Accelerator) Wait() {
	a.wg.Wait()
}

// Close waits for the blit in progress and stops the pixel pipes.
func (a *Accelerator) Close() {
	a.wg.Wait()
	if a.pipes != nil {
		a.pipes.close()
	}
}

// Dump returns the register file as text.
func (a *Accelerator) Dump() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "status=%#x busy=%t done=%t irq_en=%t irq_pend=%t fault=%t runs=%d\n",
		a.status,
		a.status&StatusBusy != 0,
		a.status&StatusDone != 0,
		a.status&StatusIRQEnabled != 0,
		a.status&StatusIRQPending != 0,
		a.status&StatusFault != 0,
		a.runs,
	)
	d := a.desc
	if d == nil {
		b.WriteString("job: <none>\n")
		return b.String()
	}
	fmt.Fprintf(&b, "job=%s op=%s src_factor=%v dst_factor=%v src_sel=%s dst_sel=%s alpha=%d premul=%t\n",
		d.JobID, d.Op, d.Coefficients.Src, d.Coefficients.Dst, d.SrcSelect, d.DstSelect, d.GlobalAlpha, d.Premultiplied)
	for s := range blit.Slot(blit.NumSlots) {
		pd := d.Planes[s]
		if !pd.Enabled {
			continue
		}
		fmt.Fprintf(&b, "  %-12s kind=%s asid=%d addr=%#x addr2=%#x %dx%d stride=%d fmt=%s/%s tex=%v rect=%+v\n",
			s, pd.Kind, pd.ASID, pd.Addr, pd.Addr2, pd.Width, pd.Height, pd.Stride,
			pd.Format, pd.Order, pd.Format.TextureFormat(pd.Order), pd.Rect)
	}
	for i, e := range a.prefetch {
		fmt.Fprintf(&b, "  prefetch[%d] %s addr=%#x len=%d %s\n", i, e.Slot, e.Addr, e.Len, e.Dir)
	}
	return b.String()
}
