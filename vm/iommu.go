package vm

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/blit"
)

// ErrNotMapped is returned when the device accesses memory that is not
// mapped in the IOMMU.
var ErrNotMapped = errors.New("vm: iommu: range not mapped")

// Memory is implemented by address spaces whose bytes the IOMMU can reach.
type Memory interface {
	Bytes(addr uint64, n int) ([]byte, error)
}

type mappingKey struct {
	asid uint64
	base uint64
}

type mapping struct {
	as     blit.AddressSpace
	base   uint64
	length uint64
	dir    blit.Direction
	refs   int
}

// IOMMU is the accelerator's address-translation unit. It implements
// blit.Translator: Map and Unmap are reference counted per address space
// and base address, and Translate resolves device accesses.
type IOMMU struct {
	mu     sync.Mutex
	maps   map[mappingKey]*mapping
	failOn func(asid, base uint64) error
}

// NewIOMMU returns an IOMMU with no mappings.
func NewIOMMU() *IOMMU {
	return &IOMMU{maps: make(map[mappingKey]*mapping)}
}

// FailOn installs a fault injector consulted on every Map. A non-nil
// error from f fails the mapping. Pass nil to remove it.
func (u *IOMMU) FailOn(f func(asid, base uint64) error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failOn = f
}

// Map makes [base, base+length) of as visible to the device.
func (u *IOMMU) Map(as blit.AddressSpace, base, length uint64, dir blit.Direction) error {
	if !as.Live() {
		return ErrSpaceExited
	}
	if sp, ok := as.(*Space); ok && !sp.Contains(base, length) {
		return fmt.Errorf("%w: space %d [%#x, +%d)", ErrFault, as.ID(), base, length)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failOn != nil {
		if err := u.failOn(as.ID(), base); err != nil {
			return err
		}
	}

	k := mappingKey{as.ID(), base}
	if m, ok := u.maps[k]; ok {
		m.refs++
		m.length = max(m.length, length)
		if dir == blit.DirOutput {
			m.dir = dir
		}
		return nil
	}
	u.maps[k] = &mapping{as: as, base: base, length: length, dir: dir, refs: 1}
	return nil
}

// Unmap drops one reference to the mapping at base.
func (u *IOMMU) Unmap(as blit.AddressSpace, base, length uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	k := mappingKey{as.ID(), base}
	m, ok := u.maps[k]
	if !ok {
		blit.Logger().Warn("vm: iommu: unmap of unknown range",
			slog.Uint64("asid", as.ID()),
			slog.Uint64("base", base),
			slog.Uint64("len", length),
		)
		return
	}
	m.refs--
	if m.refs == 0 {
		delete(u.maps, k)
	}
}

// Translate returns the n bytes at addr in address space asid as seen by
// the device. Writes need an output mapping.
func (u *IOMMU) Translate(asid, addr uint64, n int, write bool) ([]byte, error) {
	u.mu.Lock()
	var found *mapping
	for k, m := range u.maps {
		if k.asid != asid || addr < m.base || addr+uint64(n) > m.base+m.length {
			continue
		}
		if write && m.dir != blit.DirOutput {
			continue
		}
		found = m
		break
	}
	u.mu.Unlock()

	if found == nil {
		return nil, fmt.Errorf("%w: space %d [%#x, +%d) write=%t", ErrNotMapped, asid, addr, n, write)
	}
	mem, ok := found.as.(Memory)
	if !ok {
		return nil, fmt.Errorf("%w: space %d has no backing memory", ErrFault, asid)
	}
	return mem.Bytes(addr, n)
}

// Outstanding returns the number of live mappings.
func (u *IOMMU) Outstanding() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.maps)
}
