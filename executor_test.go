package blit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExecutorCompletesJob(t *testing.T) {
	dev := newFakeDevice()
	tr := newFakeTranslator()
	src := &sliceSource{}
	ex := NewExecutor(dev, tr, src)

	j := opaqueJob(newFakeSpace(1))
	src.push(j)
	if err := ex.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if j.State != StateCompleted {
		t.Errorf("state = %s, want completed (err %v)", j.State, j.Err())
	}
	if j.ReducedOp() != OpSrc {
		t.Errorf("reduced op = %s, want SRC", j.ReducedOp())
	}
	if tr.outstanding() != 0 {
		t.Errorf("%d ranges still bound after retire", tr.outstanding())
	}
	if got := src.retiredJobs(); len(got) != 1 || got[0] != j {
		t.Errorf("retired %v, want the job once", got)
	}
	if ex.State().Busy() {
		t.Error("engine still busy after completion")
	}
	if s := ex.State().Stats(); s.Kicks != 1 || s.Completions != 1 || s.Resets != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestExecutorMapFailureSkipsHardware(t *testing.T) {
	dev := newFakeDevice()
	tr := newFakeTranslator()
	tr.fail(dstAddr)
	src := &sliceSource{}
	ex := NewExecutor(dev, tr, src)

	j := opaqueJob(newFakeSpace(1))
	src.push(j)
	if err := ex.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if j.State != StateError {
		t.Errorf("state = %s, want error", j.State)
	}
	var ce *ConfigError
	if !errors.As(j.Err(), &ce) || ce.Kind != MapFailed || ce.Slot != SlotDestination {
		t.Errorf("Err() = %v, want MapFailed on destination", j.Err())
	}
	if !errors.Is(j.Err(), ErrFallbackToSoftware) {
		t.Error("map failure does not signal software fallback")
	}
	if tr.outstanding() != 0 {
		t.Errorf("%d ranges still bound", tr.outstanding())
	}
	if runs, _, _ := dev.counts(); runs != 0 {
		t.Errorf("hardware run %d times, want 0", runs)
	}
	if len(src.retiredJobs()) != 1 {
		t.Error("failed job was not retired")
	}
}

func TestExecutorTimeoutRecovery(t *testing.T) {
	dev := newFakeDevice()
	dev.hang = true
	tr := newFakeTranslator()
	src := &sliceSource{}
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)
	ex := NewExecutor(dev, tr, src, WithTimeout(20*time.Millisecond), WithMetrics(m))

	hung := opaqueJob(newFakeSpace(1))
	src.push(hung)
	if err := ex.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if hung.State != StateTimedOut {
		t.Errorf("state = %s, want timed_out", hung.State)
	}
	if !errors.Is(hung.Err(), ErrTimeout) {
		t.Errorf("Err() = %v, want ErrTimeout", hung.Err())
	}
	if _, stops, resets := dev.counts(); stops != 1 || resets != 1 {
		t.Errorf("stops=%d resets=%d, want exactly one each", stops, resets)
	}
	if ex.State().Busy() {
		t.Error("engine busy after recovery")
	}
	if tr.outstanding() != 0 {
		t.Errorf("%d ranges still bound", tr.outstanding())
	}
	if got := testutil.ToFloat64(m.ResetsTotal); got != 1 {
		t.Errorf("resets metric = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TimeoutsTotal); got != 1 {
		t.Errorf("timeouts metric = %v, want 1", got)
	}

	dev.set(func(d *fakeDevice) { d.hang = false })
	next := opaqueJob(newFakeSpace(2))
	src.push(next)
	if err := ex.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if next.State != StateCompleted {
		t.Errorf("next job state = %s, want completed", next.State)
	}
	if _, _, resets := dev.counts(); resets != 1 {
		t.Errorf("resets = %d after the next job, want 1", resets)
	}
}

func TestExecutorMissedInterrupt(t *testing.T) {
	dev := newFakeDevice()
	dev.lostIRQ = true
	src := &sliceSource{}
	m := NewMetrics("", nil)
	ex := NewExecutor(dev, newFakeTranslator(), src, WithTimeout(20*time.Millisecond), WithMetrics(m))

	j := opaqueJob(newFakeSpace(1))
	src.push(j)
	_ = ex.Run(context.Background())

	if j.State != StateTimedOut {
		t.Errorf("state = %s, want timed_out", j.State)
	}
	if got := testutil.ToFloat64(m.MissedInterruptsTotal); got != 1 {
		t.Errorf("missed interrupts = %v, want 1", got)
	}
	if _, _, resets := dev.counts(); resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
}

func TestExecutorRunFault(t *testing.T) {
	dev := newFakeDevice()
	dev.runErr = errInjected
	tr := newFakeTranslator()
	src := &sliceSource{}
	ex := NewExecutor(dev, tr, src)

	j := opaqueJob(newFakeSpace(1))
	src.push(j)
	_ = ex.Run(context.Background())

	if j.State != StateError || !errors.Is(j.Err(), ErrHardwareFault) {
		t.Errorf("state = %s err = %v, want hardware fault", j.State, j.Err())
	}
	if ex.State().Busy() || tr.outstanding() != 0 {
		t.Error("engine busy or bindings leaked after run fault")
	}
}

func TestExecutorProcessesInOrder(t *testing.T) {
	dev := newFakeDevice()
	tr := newFakeTranslator()
	src := &sliceSource{}
	ex := NewExecutor(dev, tr, src)

	var jobs []*Job
	for i := range 5 {
		j := opaqueJob(newFakeSpace(uint64(i + 1)))
		if i == 2 {
			j.Owner.(*fakeSpace).dead = true
		}
		jobs = append(jobs, j)
		src.push(j)
	}
	if err := ex.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	retired := src.retiredJobs()
	if len(retired) != len(jobs) {
		t.Fatalf("retired %d jobs, want %d", len(retired), len(jobs))
	}
	for i := range jobs {
		if retired[i] != jobs[i] {
			t.Errorf("retired[%d] out of order", i)
		}
		if !retired[i].State.Terminal() {
			t.Errorf("job %d retired in state %s", i, retired[i].State)
		}
	}
	if jobs[2].State != StateError {
		t.Errorf("job with dead owner: state %s, want error", jobs[2].State)
	}
}

// TestExecutorSerialization runs the executor from many goroutines and
// checks the device never sees overlapping runs.
func TestExecutorSerialization(t *testing.T) {
	dev := newFakeDevice()
	tr := newFakeTranslator()
	src := &sliceSource{}
	ex := NewExecutor(dev, tr, src)

	const n = 50
	for i := range n {
		src.push(opaqueJob(newFakeSpace(uint64(i))))
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ex.Run(context.Background())
		}()
	}
	wg.Wait()

	dev.mu.Lock()
	overlaps, runs := dev.overlaps, dev.runs
	dev.mu.Unlock()
	if overlaps != 0 {
		t.Errorf("%d overlapping hardware runs", overlaps)
	}
	if runs != n {
		t.Errorf("runs = %d, want %d", runs, n)
	}
	if len(src.retiredJobs()) != n {
		t.Errorf("retired %d jobs, want %d", len(src.retiredJobs()), n)
	}
	if tr.outstanding() != 0 {
		t.Errorf("%d ranges still bound", tr.outstanding())
	}
}

func TestExecutorWorker(t *testing.T) {
	dev := newFakeDevice()
	src := &sliceSource{}
	ex := NewExecutor(dev, newFakeTranslator(), src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex.Start(ctx)
	defer ex.Close()

	j := opaqueJob(newFakeSpace(1))
	src.push(j)
	ex.Kick()

	deadline := time.After(2 * time.Second)
	for len(src.retiredJobs()) == 0 {
		select {
		case <-deadline:
			t.Fatal("worker did not retire the job")
		case <-time.After(time.Millisecond):
		}
	}
	if j.State != StateCompleted {
		t.Errorf("state = %s, want completed", j.State)
	}
}

func TestExecutorRunStopsOnCancel(t *testing.T) {
	src := &sliceSource{}
	ex := NewExecutor(newFakeDevice(), newFakeTranslator(), src)
	src.push(opaqueJob(newFakeSpace(1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ex.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	if len(src.retiredJobs()) != 0 {
		t.Error("job processed after cancellation")
	}
}
