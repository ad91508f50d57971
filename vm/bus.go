package vm

import (
	"fmt"

	"github.com/gogpu/blit"
)

// Bus resolves device memory accesses. Kernel buffers are reached
// directly; user buffers only through the IOMMU.
type Bus struct {
	kernel *Space
	iommu  *IOMMU
}

// NewBus returns a bus over the kernel space and the IOMMU.
func NewBus(kernel *Space, iommu *IOMMU) *Bus {
	return &Bus{kernel: kernel, iommu: iommu}
}

// Access returns the n bytes at addr of a buffer of the given kind.
func (b *Bus) Access(kind blit.AddrKind, asid, addr uint64, n int, write bool) ([]byte, error) {
	switch {
	case kind == blit.AddrKernel:
		return b.kernel.Bytes(addr, n)
	case kind.UserOwned():
		return b.iommu.Translate(asid, addr, n, write)
	default:
		return nil, fmt.Errorf("vm: bus: no memory behind %s buffer", kind)
	}
}
