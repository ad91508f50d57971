// Package vm emulates the memory side of the blit pipeline: process
// address spaces that own job buffers, the kernel address space, and the
// accelerator's IOMMU through which the device reaches user memory.
package vm

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// PageSize is the allocation granularity of an address space.
const PageSize = 4096

// KernelID is the identifier of the kernel address space.
const KernelID = 0

// firstAddr is the lowest address handed out by Alloc. Address zero is
// never valid.
const firstAddr = 0x10000

var (
	// ErrSpaceExited is returned when an address space has been torn down.
	ErrSpaceExited = errors.New("vm: address space exited")

	// ErrFault is returned for an access outside any allocation.
	ErrFault = errors.New("vm: address fault")
)

type region struct {
	base uint64
	data []byte
}

func (r *region) end() uint64 { return r.base + uint64(len(r.data)) }

// Space is an emulated process address space.
//
// The page-table lock returned by PageTableLock must be held while ranges
// of the space are mapped into or unmapped from an IOMMU. Exit takes it
// too, so a space cannot disappear under a binding in progress.
type Space struct {
	id uint64

	ptl sync.Mutex

	mu      sync.RWMutex
	live    bool
	next    uint64
	regions []*region
}

// NewSpace returns a live, empty address space.
func NewSpace(id uint64) *Space {
	return &Space{id: id, live: true, next: firstAddr}
}

// NewKernel returns the kernel address space.
func NewKernel() *Space {
	return NewSpace(KernelID)
}

// ID returns the address space identifier.
func (s *Space) ID() uint64 { return s.id }

// Live reports whether the space's page tables still exist.
func (s *Space) Live() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// PageTableLock returns the lock guarding the page tables.
func (s *Space) PageTableLock() sync.Locker { return &s.ptl }

// Alloc reserves size zeroed bytes and returns their base address. The
// allocation is page aligned.
func (s *Space) Alloc(size int) (uint64, error) {
	if size <= 0 {
		return 0, fmt.Errorf("vm: invalid allocation size %d", size)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return 0, ErrSpaceExited
	}
	base := s.next
	pages := (uint64(size) + PageSize - 1) / PageSize
	s.next += (pages + 1) * PageSize // leave a guard page
	s.regions = append(s.regions, &region{base: base, data: make([]byte, size)})
	return base, nil
}

// Bytes returns the n bytes at addr. The slice aliases the space's memory.
// The range must lie within a single allocation.
func (s *Space) Bytes(addr uint64, n int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.live {
		return nil, ErrSpaceExited
	}
	r := s.find(addr)
	if r == nil || n < 0 || addr+uint64(n) > r.end() {
		return nil, fmt.Errorf("%w: space %d [%#x, +%d)", ErrFault, s.id, addr, n)
	}
	off := addr - r.base
	return r.data[off : off+uint64(n)], nil
}

// Contains reports whether [addr, addr+n) lies within one allocation.
func (s *Space) Contains(addr, n uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.find(addr)
	return s.live && r != nil && addr+n <= r.end()
}

// Exit tears the space down. Its memory is released and Live reports
// false from then on.
func (s *Space) Exit() {
	s.ptl.Lock()
	defer s.ptl.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = false
	s.regions = nil
}

// find returns the region containing addr. Callers hold mu.
func (s *Space) find(addr uint64) *region {
	i := sort.Search(len(s.regions), func(i int) bool {
		return s.regions[i].end() > addr
	})
	if i < len(s.regions) && s.regions[i].base <= addr {
		return s.regions[i]
	}
	return nil
}
