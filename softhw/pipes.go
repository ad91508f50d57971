package softhw

import (
	"sync"
	"sync/atomic"
)

// pipes is the accelerator's set of pixel pipelines.
//
// Every pipe has its own queue of row bands. An idle pipe steals from the
// other queues before blocking on its own, which keeps the pipes busy when
// bands have uneven cost (masked or clipped rows).
//
// Thread safety: pipes is safe for concurrent use.
type pipes struct {
	n      int
	queues []chan func()
	done   chan struct{}
	wg     sync.WaitGroup
	open   atomic.Bool
}

func newPipes(n int) *pipes {
	p := &pipes{
		n:      n,
		queues: make([]chan func(), n),
		done:   make(chan struct{}),
	}
	depth := max(8, n*4)
	for i := range p.queues {
		p.queues[i] = make(chan func(), depth)
	}
	p.open.Store(true)
	p.wg.Add(n)
	for i := range n {
		go p.loop(i)
	}
	return p
}

func (p *pipes) loop(id int) {
	defer p.wg.Done()
	own := p.queues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case work := <-own:
			work()
			continue
		default:
		}

		if work := p.steal(id); work != nil {
			work()
			continue
		}
		select {
		case <-p.done:
			p.drain(own)
			return
		case work := <-own:
			work()
		}
	}
}

func (p *pipes) steal(id int) func() {
	for i := range p.n {
		if i == id {
			continue
		}
		select {
		case work := <-p.queues[i]:
			return work
		default:
		}
	}
	return nil
}

func (p *pipes) drain(q chan func()) {
	for {
		select {
		case work := <-q:
			work()
		default:
			return
		}
	}
}

// runAll spreads work round-robin over the pipes and waits for all of it.
// After close, work runs on the calling goroutine.
func (p *pipes) runAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.open.Load() {
		for _, w := range work {
			w()
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(work))
	for i, w := range work {
		wrapped := func() {
			defer wg.Done()
			w()
		}
		select {
		case p.queues[i%p.n] <- wrapped:
		case <-p.done:
			wrapped()
		}
	}
	wg.Wait()
}

// close stops the pipes once queued work has run. It is idempotent.
func (p *pipes) close() {
	if !p.open.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// bands splits h rows starting at buffer row y0 into at most n bands.
// Band boundaries fall on even buffer rows so the two luma rows sharing a
// 4:2:0 chroma row are always written by the same pipe.
func bands(y0, h, n int) [][2]int {
	if n <= 1 || h < 4 {
		return [][2]int{{0, h}}
	}
	size := (h + n - 1) / n
	size += size & 1
	var out [][2]int
	start := 0
	for start < h {
		end := start + size
		// Align to an even absolute row.
		if (y0+end)&1 != 0 {
			end++
		}
		end = min(end, h)
		out = append(out, [2]int{start, end})
		start = end
	}
	return out
}
