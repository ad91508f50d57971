package softhw

import "time"

// Option configures an Accelerator during creation.
type Option func(*Accelerator)

// WithLatency delays completion of every run by d.
func WithLatency(d time.Duration) Option {
	return func(a *Accelerator) {
		a.latency = d
	}
}

// WithPipes splits every blit over n pixel pipelines working on bands of
// destination rows. Values below 2 keep the single pipeline.
func WithPipes(n int) Option {
	return func(a *Accelerator) {
		if n > 1 {
			a.pipes = newPipes(n)
		}
	}
}

// WithHang makes runs never complete. Only Stop or Reset clears busy.
func WithHang(hang bool) Option {
	return func(a *Accelerator) {
		a.hang = hang
	}
}

// WithLostInterrupt makes runs complete without raising the completion
// interrupt.
func WithLostInterrupt(lost bool) Option {
	return func(a *Accelerator) {
		a.lostIRQ = lost
	}
}

// WithSpuriousInterrupt raises an interrupt right after every kick,
// before the blit is done.
func WithSpuriousInterrupt(spurious bool) Option {
	return func(a *Accelerator) {
		a.spurious = spurious
	}
}

// WithConfigureFault makes Configure fail with err.
func WithConfigureFault(err error) Option {
	return func(a *Accelerator) {
		a.configureErr = err
	}
}

// WithPrefetchFault makes ConfigurePrefetch fail with err.
func WithPrefetchFault(err error) Option {
	return func(a *Accelerator) {
		a.prefetchErr = err
	}
}
