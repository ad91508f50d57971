package blit

import (
	"errors"
	"fmt"
)

var (
	// ErrFallbackToSoftware indicates the accelerator cannot run the job.
	// The caller should hand it to a software compositor and must not
	// resubmit it to this engine.
	ErrFallbackToSoftware = errors.New("blit: falling back to software compositing")

	// ErrInvalidAddressSpace is returned when the owning process's page
	// tables are gone.
	ErrInvalidAddressSpace = errors.New("blit: address space is not live")

	// ErrMapFailed is returned when a plane could not be bound into the
	// IOMMU.
	ErrMapFailed = errors.New("blit: address translation mapping failed")

	// ErrHardwareFault is returned when register programming fails.
	ErrHardwareFault = errors.New("blit: hardware fault")

	// ErrTimeout is returned when the hardware does not signal completion
	// within the wait bound.
	ErrTimeout = errors.New("blit: timed out waiting for completion")

	// ErrEngineBusy is returned when a job is kicked while another one is
	// still running.
	ErrEngineBusy = errors.New("blit: engine busy")

	// ErrPrefetchOverflow is returned when a job needs more prefetch
	// entries than the hardware table holds.
	ErrPrefetchOverflow = errors.New("blit: prefetch table overflow")

	// ErrInvalidJob is returned by Job.Validate.
	ErrInvalidJob = errors.New("blit: invalid job")
)

// MapError reports a failed binding for one slot.
type MapError struct {
	Slot Slot
	Addr uint64
	Err  error
}

func (e *MapError) Error() string {
	return fmt.Sprintf("blit: map %s plane at %#x: %v", e.Slot, e.Addr, e.Err)
}

func (e *MapError) Unwrap() error { return e.Err }

// ConfigErrorKind classifies configuration failures.
type ConfigErrorKind uint8

const (
	InvalidAddressSpace ConfigErrorKind = iota + 1
	MapFailed
	HardwareFault
)

func (k ConfigErrorKind) String() string {
	switch k {
	case InvalidAddressSpace:
		return "invalid_address_space"
	case MapFailed:
		return "map_failed"
	case HardwareFault:
		return "hardware_fault"
	default:
		return "unknown"
	}
}

// ConfigError is returned by Configurer.Configure. Whatever its kind, no
// address-space bindings are outstanding when it is returned.
type ConfigError struct {
	Kind ConfigErrorKind
	// Slot is the slot whose binding failed (MapFailed only).
	Slot Slot
	Err  error
}

func (e *ConfigError) Error() string {
	switch e.Kind {
	case MapFailed:
		return fmt.Sprintf("blit: configure: %s (slot %s): %v", e.Kind, e.Slot, e.Err)
	case InvalidAddressSpace:
		return "blit: configure: " + e.Kind.String()
	default:
		return fmt.Sprintf("blit: configure: %s: %v", e.Kind, e.Err)
	}
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error kind. MapFailed also matches
// ErrFallbackToSoftware.
func (e *ConfigError) Is(target error) bool {
	switch e.Kind {
	case InvalidAddressSpace:
		return target == ErrInvalidAddressSpace
	case MapFailed:
		return target == ErrMapFailed || target == ErrFallbackToSoftware
	case HardwareFault:
		return target == ErrHardwareFault
	}
	return false
}
