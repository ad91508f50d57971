package blit

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/blit/internal/blend"
)

// Operator is a compositing operator requested for a job.
type Operator uint8

const (
	OpSrc       Operator = iota // Result: S
	OpDst                       // Result: D (no-op)
	OpSrcOver                   // Result: S + D*(1-Sa)
	OpDstOver                   // Result: S*(1-Da) + D
	OpSrcIn                     // Result: S*Da
	OpDstIn                     // Result: D*Sa
	OpSrcOut                    // Result: S*(1-Da)
	OpDstOut                    // Result: D*(1-Sa)
	OpSrcAtop                   // Result: S*Da + D*(1-Sa)
	OpDstAtop                   // Result: S*(1-Da) + D*Sa
	OpClear                     // Result: 0
	OpSolidFill                 // Result: fill color, no source read

	operatorCount
)

var operatorNames = [operatorCount]string{
	OpSrc:       "SRC",
	OpDst:       "DST",
	OpSrcOver:   "SRC_OVER",
	OpDstOver:   "DST_OVER",
	OpSrcIn:     "SRC_IN",
	OpDstIn:     "DST_IN",
	OpSrcOut:    "SRC_OUT",
	OpDstOut:    "DST_OUT",
	OpSrcAtop:   "SRC_ATOP",
	OpDstAtop:   "DST_ATOP",
	OpClear:     "CLEAR",
	OpSolidFill: "SOLID_FILL",
}

// Operators returns every defined operator in declaration order.
func Operators() []Operator {
	ops := make([]Operator, 0, operatorCount)
	for op := Operator(0); op < operatorCount; op++ {
		ops = append(ops, op)
	}
	return ops
}

// IsValid reports whether op is a defined operator.
func (op Operator) IsValid() bool {
	return op < operatorCount
}

func (op Operator) String() string {
	if !op.IsValid() {
		return "UNKNOWN"
	}
	return operatorNames[op]
}

// Coefficients are the blend factors programmed into the hardware for an
// operator: result = src*Src + dst*Dst on premultiplied pixels.
type Coefficients struct {
	Src gputypes.BlendFactor
	Dst gputypes.BlendFactor
	Op  gputypes.BlendOperation
}

// Coefficients returns the hardware blend factors for op.
func (op Operator) Coefficients() Coefficients {
	f := blend.FactorsFor(op.blendMode())
	return Coefficients{Src: f.Src, Dst: f.Dst, Op: gputypes.BlendOperationAdd}
}

// blendMode maps op to its Porter-Duff mode. SOLID_FILL blends like SRC
// with a constant source.
func (op Operator) blendMode() blend.Mode {
	switch op {
	case OpSrc, OpSolidFill:
		return blend.ModeSource
	case OpDst:
		return blend.ModeDestination
	case OpSrcOver:
		return blend.ModeSourceOver
	case OpDstOver:
		return blend.ModeDestinationOver
	case OpSrcIn:
		return blend.ModeSourceIn
	case OpDstIn:
		return blend.ModeDestinationIn
	case OpSrcOut:
		return blend.ModeSourceOut
	case OpDstOut:
		return blend.ModeDestinationOut
	case OpSrcAtop:
		return blend.ModeSourceAtop
	case OpDstAtop:
		return blend.ModeDestinationAtop
	case OpClear:
		return blend.ModeClear
	default:
		return blend.ModeSourceOver
	}
}
