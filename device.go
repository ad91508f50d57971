package blit

import "sync"

// Device is the fixed-function accelerator.
//
// Implementations are provided by hardware backend packages
// (see softhw for the software emulation). The executor and the
// configurer depend only on this interface.
type Device interface {
	// Configure programs the job registers from d.
	Configure(d *Descriptor) error

	// ConfigurePrefetch programs the prefetch buffer table.
	ConfigurePrefetch(entries []PrefetchEntry) error

	// Run kicks the accelerator. It enables and clears the completion
	// interrupt before starting.
	Run() error

	// Stop halts the accelerator.
	Stop()

	// Reset reinitializes the accelerator to its power-on state.
	Reset() error

	// IsBlitDone reads the blit-done status.
	IsBlitDone() bool

	// DisableInterrupt masks the completion interrupt.
	DisableInterrupt()

	// SetInterruptHandler installs the completion interrupt handler.
	SetInterruptHandler(h func())

	// Dump returns a human-readable register dump for diagnostics.
	Dump() string
}

// Translator is the accelerator's address-translation unit.
type Translator interface {
	// Map makes [base, base+length) of as visible to the device.
	Map(as AddressSpace, base, length uint64, dir Direction) error

	// Unmap removes a mapping created by Map.
	Unmap(as AddressSpace, base, length uint64)
}

// AddressSpace is a process address space that owns job buffers.
type AddressSpace interface {
	// ID identifies the address space to the IOMMU.
	ID() uint64

	// Live reports whether the page tables still exist.
	Live() bool

	// PageTableLock guards the page tables while ranges are bound.
	PageTableLock() sync.Locker
}

// JobSource hands jobs to the executor and takes them back when retired.
type JobSource interface {
	// Dequeue returns the next job, or false when the queue is empty.
	Dequeue() (*Job, bool)

	// Retire returns a finished job to the queue's deletion hook.
	Retire(j *Job)
}
