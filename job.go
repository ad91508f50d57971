package blit

import (
	"image/color"

	"github.com/google/uuid"

	"github.com/gogpu/blit/pixel"
)

// Slot identifies one image plane of a job.
type Slot uint8

const (
	SlotSource Slot = iota
	SlotMask
	SlotDestination
	// SlotDestination2 is the secondary destination written when dual
	// output is requested.
	SlotDestination2

	// NumSlots is the number of image slots in a job.
	NumSlots = 4
)

func (s Slot) String() string {
	switch s {
	case SlotSource:
		return "source"
	case SlotMask:
		return "mask"
	case SlotDestination:
		return "destination"
	case SlotDestination2:
		return "destination2"
	default:
		return "unknown"
	}
}

// AddrKind says who owns the memory behind an image slot.
type AddrKind uint8

const (
	// AddrNone means the slot has no buffer. For the source slot this
	// selects the fill color.
	AddrNone AddrKind = iota
	// AddrKernel is a kernel-owned buffer, accessed without binding.
	AddrKernel
	// AddrUserVirtual is a process-owned, virtually contiguous buffer.
	AddrUserVirtual
	// AddrUserContiguous is a process-owned, physically contiguous buffer.
	AddrUserContiguous
)

// Memory reports whether the slot is backed by a buffer.
func (k AddrKind) Memory() bool { return k != AddrNone }

// UserOwned reports whether the buffer lives in a process address space
// and must be bound into the IOMMU for the duration of a job.
func (k AddrKind) UserOwned() bool {
	return k == AddrUserVirtual || k == AddrUserContiguous
}

func (k AddrKind) String() string {
	switch k {
	case AddrNone:
		return "none"
	case AddrKernel:
		return "kernel"
	case AddrUserVirtual:
		return "user-virtual"
	case AddrUserContiguous:
		return "user-contiguous"
	default:
		return "unknown"
	}
}

// Rect is a pixel rectangle.
type Rect struct {
	X int `validate:"gte=0"`
	Y int `validate:"gte=0"`
	W int `validate:"gte=0"`
	H int `validate:"gte=0"`
}

// Empty reports whether r covers no pixels.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Intersect returns the largest rectangle contained in both r and s.
func (r Rect) Intersect(s Rect) Rect {
	x0, y0 := max(r.X, s.X), max(r.Y, s.Y)
	x1, y1 := min(r.X+r.W, s.X+s.W), min(r.Y+r.H, s.Y+s.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Plane describes the secondary (chroma) plane of a two-plane format,
// relative to the image base address.
type Plane struct {
	Offset uint64
	Size   uint64
}

// Image is one slot of a job.
type Image struct {
	Kind   AddrKind
	Addr   uint64
	Width  int `validate:"gte=0"`
	Height int `validate:"gte=0"`
	Stride int `validate:"gte=0"`
	Format pixel.Format
	Order  pixel.ByteOrder
	Rect   Rect
	Plane2 Plane
}

// Ranges returns the memory ranges of the image in bind order: primary
// plane first, then the chroma plane for two-plane formats.
func (im *Image) Ranges(slot Slot, dir Direction) []Range {
	if !im.Kind.Memory() {
		return nil
	}
	rs := []Range{{Slot: slot, Addr: im.Addr, Len: uint64(im.Stride) * uint64(im.Height), Dir: dir}}
	if im.Format.DualPlane() {
		rs = append(rs, Range{Slot: slot, Addr: im.Addr + im.Plane2.Offset, Len: im.Plane2.Size, Dir: dir, Chroma: true})
	}
	return rs
}

// ScaleMode selects the scaling filter.
type ScaleMode uint8

const (
	ScaleNone ScaleMode = iota
	ScaleNearest
	ScaleBilinear
)

// Scaling describes a scaling factor as a ratio of sizes.
type Scaling struct {
	Mode ScaleMode
	SrcW int `validate:"gte=0"`
	SrcH int `validate:"gte=0"`
	DstW int `validate:"gte=0"`
	DstH int `validate:"gte=0"`
}

// Apply returns the size a w x h image has after scaling.
func (s Scaling) Apply(w, h int) (int, int) {
	if s.Mode == ScaleNone || s.SrcW <= 0 || s.SrcH <= 0 || s.SrcW == s.DstW && s.SrcH == s.DstH {
		return w, h
	}
	return max(1, w*s.DstW/s.SrcW), max(1, h*s.DstH/s.SrcH)
}

// RepeatMode selects what the source yields outside its rectangle.
// With RepeatNone the source is transparent there.
type RepeatMode uint8

const (
	RepeatNone RepeatMode = iota
	RepeatPad
	RepeatNormal
	RepeatReflect
	RepeatClamp
)

// Repeat is the source wrap mode. PadColor is used with RepeatPad.
type Repeat struct {
	Mode     RepeatMode
	PadColor color.NRGBA
}

// Rotation rotates the source clockwise, optionally mirrored first.
type Rotation struct {
	Degrees int `validate:"oneof=0 90 180 270"`
	XFlip   bool
	YFlip   bool
}

// Identity reports whether the rotation leaves the image unchanged.
func (r Rotation) Identity() bool {
	return r.Degrees == 0 && !r.XFlip && !r.YFlip
}

// SourceExtent returns the size of the source rectangle as the engine
// samples it, after rotation and scaling.
func (j *Job) SourceExtent() (w, h int) {
	r := j.Images[SlotSource].Rect
	w, h = r.W, r.H
	if j.Params.Rotation.Degrees == 90 || j.Params.Rotation.Degrees == 270 {
		w, h = h, w
	}
	return j.Params.Scaling.Apply(w, h)
}

// sourceCovers reports whether every destination pixel samples either the
// source or an opaque texel. Only then does an opaque source format make
// the source operand opaque.
func (j *Job) sourceCovers() bool {
	switch rep := j.Params.Repeat; rep.Mode {
	case RepeatNormal, RepeatReflect, RepeatClamp:
		return true
	case RepeatPad:
		if rep.PadColor.A == 255 {
			return true
		}
	}
	w, h := j.SourceExtent()
	dr := j.Images[SlotDestination].Rect
	return w >= dr.W && h >= dr.H
}

// BlueScreenMode selects chroma-key behavior.
type BlueScreenMode uint8

const (
	BlueScreenOff BlueScreenMode = iota
	// BlueScreenTransparent leaves the destination untouched where the
	// source matches the key color.
	BlueScreenTransparent
	// BlueScreenReplace writes the background color where the destination
	// matches the key color.
	BlueScreenReplace
)

// BlueScreen is the chroma-key descriptor.
type BlueScreen struct {
	Mode       BlueScreenMode
	Key        color.NRGBA
	Background color.NRGBA
}

// Params are the composition parameters of a job.
type Params struct {
	Op            Operator
	GlobalAlpha   uint8
	Premultiplied bool
	Scaling       Scaling
	Repeat        Repeat
	Clip          *Rect `validate:"omitempty"`
	Rotation      Rotation
	Dither        bool
	BlueScreen    BlueScreen
	// FillColor is the constant source used when the source slot has no
	// buffer.
	FillColor color.NRGBA
}

// State is the externally visible state of a job.
type State uint8

const (
	StateReady State = iota
	StateBusy
	StateError
	StateCompleted
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateError:
		return "error"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final job outcome.
func (s State) Terminal() bool {
	return s == StateError || s == StateCompleted || s == StateTimedOut
}

// Job is one compositing request.
//
// A job belongs to its JobSource until dequeued, then to the Executor until
// it is retired. Configuration results (reduced operator, bindings,
// prefetch table) are attached to the job while it is being processed.
type Job struct {
	ID     uuid.UUID
	Images [NumSlots]Image `validate:"dive"`
	Params Params
	// Owner is the address space of the requesting process. It may be nil
	// when every slot is kernel-owned or empty.
	Owner AddressSpace `validate:"-"`
	State State

	reduced    Operator
	configured bool
	prefetch   []PrefetchEntry
	err        error
}

// NewJob returns a ready job owned by as, with opaque global alpha.
func NewJob(as AddressSpace) *Job {
	return &Job{
		ID:     uuid.New(),
		Owner:  as,
		State:  StateReady,
		Params: Params{Op: OpSrcOver, GlobalAlpha: 255},
	}
}

// Image returns the image in slot s.
func (j *Job) Image(s Slot) *Image {
	return &j.Images[s]
}

// ReducedOp returns the operator selected for the hardware. Before
// configuration it is the requested operator.
func (j *Job) ReducedOp() Operator {
	if !j.configured {
		return j.Params.Op
	}
	return j.reduced
}

// Prefetch returns a copy of the prefetch table computed for the job.
func (j *Job) Prefetch() []PrefetchEntry {
	return append([]PrefetchEntry(nil), j.prefetch...)
}

// Err returns the error that made the job fail, if any.
func (j *Job) Err() error {
	return j.err
}

// hasUserSlots reports whether any slot must be bound into the IOMMU.
func (j *Job) hasUserSlots() bool {
	for i := range j.Images {
		if j.Images[i].Kind.UserOwned() {
			return true
		}
	}
	return false
}
