package blit

import (
	"image/color"

	"github.com/google/uuid"

	"github.com/gogpu/blit/internal/blend"
	"github.com/gogpu/blit/pixel"
)

// Selector chooses where the device reads an operand from.
type Selector uint8

const (
	// SelectMemory reads the operand from its buffer.
	SelectMemory Selector = iota
	// SelectConstant uses a constant color register instead of memory.
	SelectConstant
)

func (s Selector) String() string {
	if s == SelectConstant {
		return "constant"
	}
	return "memory"
}

// PlaneDesc is the register image of one slot.
type PlaneDesc struct {
	Enabled bool
	Kind    AddrKind
	// ASID identifies the owning address space for user buffers.
	ASID   uint64
	Addr   uint64
	Addr2  uint64
	Width  int
	Height int
	Stride int
	Format pixel.Format
	Order  pixel.ByteOrder
	Rect   Rect
}

// Descriptor is the fully prepared hardware program for one job.
type Descriptor struct {
	JobID         uuid.UUID
	Op            Operator
	Coefficients  Coefficients
	SrcSelect     Selector
	DstSelect     Selector
	FillColor     color.NRGBA
	GlobalAlpha   uint8
	Premultiplied bool
	Planes        [NumSlots]PlaneDesc
	Scaling       Scaling
	Repeat        Repeat

	// Optional modifiers.
	BlueScreen BlueScreen
	Rotation   Rotation
	Dither     bool
	Clip       *Rect

	Prefetch []PrefetchEntry
}

// sourceSelector returns where the source operand comes from once the
// job's operator has been reduced. SOLID_FILL always fills from the
// constant register; otherwise the source is read only if the operator's
// blend factors depend on it.
func sourceSelector(j *Job) Selector {
	op := j.ReducedOp()
	if !j.Images[SlotSource].Kind.Memory() || op == OpSolidFill {
		return SelectConstant
	}
	if !blend.FactorsFor(op.blendMode()).ReadsSource() {
		return SelectConstant
	}
	return SelectMemory
}

// destinationSelector returns whether the destination is read before it is
// written.
func destinationSelector(op Operator) Selector {
	switch op {
	case OpSolidFill, OpClear:
		return SelectConstant
	}
	return SelectMemory
}

func planeDesc(j *Job, s Slot) PlaneDesc {
	im := &j.Images[s]
	if !im.Kind.Memory() {
		return PlaneDesc{}
	}
	pd := PlaneDesc{
		Enabled: true,
		Kind:    im.Kind,
		Addr:    im.Addr,
		Width:   im.Width,
		Height:  im.Height,
		Stride:  im.Stride,
		Format:  im.Format,
		Order:   im.Order,
		Rect:    im.Rect,
	}
	if im.Kind.UserOwned() && j.Owner != nil {
		pd.ASID = j.Owner.ID()
	}
	if im.Format.DualPlane() {
		pd.Addr2 = im.Addr + im.Plane2.Offset
	}
	return pd
}
