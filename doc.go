// Package blit drives compositing jobs through a fixed-function 2D blit
// accelerator.
//
// # Overview
//
// A job combines up to four image planes (source, mask, destination and
// an optional secondary destination) with a Porter-Duff operator. The
// pipeline prepares each job for the hardware, runs it, waits for the
// completion interrupt and retires it, strictly one job at a time.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/blit"
//	    "github.com/gogpu/blit/queue"
//	    "github.com/gogpu/blit/softhw"
//	    "github.com/gogpu/blit/vm"
//	)
//
//	iommu := vm.NewIOMMU()
//	dev := softhw.New(vm.NewBus(vm.NewKernel(), iommu))
//	q := queue.New()
//
//	ex := blit.NewExecutor(dev, iommu, q)
//	_ = q.Enqueue(job)
//	_ = ex.Run(ctx)
//
// # Architecture
//
// The package is organized into:
//   - Reduce: rewrites an operator into a cheaper equivalent for the
//     operands' opacity (SRC_OVER over an opaque source becomes SRC)
//   - PlanPrefetch: builds the hardware prefetch table (at most six entries)
//   - Binder: binds user buffers into the IOMMU per slot group, all or nothing
//   - Configurer: reduces, binds, plans and programs a job, unwinding every
//     binding on failure
//   - Executor: the single worker that kicks the hardware, waits with a
//     deadline and recovers the engine on timeout
//   - EngineState: the busy flag shared with the completion interrupt
//
// Hardware, address translation and the job queue are reached through the
// Device, Translator, AddressSpace and JobSource interfaces. The softhw,
// vm and queue packages implement them in software.
//
// # Errors
//
// Configuration errors are *ConfigError values that match
// ErrInvalidAddressSpace, ErrMapFailed or ErrHardwareFault with errors.Is.
// A job whose buffers cannot be bound also matches ErrFallbackToSoftware
// and should be composited on the CPU. The executor never returns job
// errors: it records them in Job.State and Job.Err.
package blit

// Version is the current version of the library.
const Version = "0.1.0-alpha.1"
