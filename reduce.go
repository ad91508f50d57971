package blit

// Reduce returns the cheapest operator that produces the same pixels as op
// for operands with the given opacity.
//
// When the source has no buffer, srcOpaque describes the fill color: the
// constant source is opaque only when the fill color's alpha is 255.
// Mask-gated blends are never reduced.
func Reduce(op Operator, srcPresent, srcOpaque, dstOpaque bool, globalAlpha uint8, maskPresent bool) Operator {
	if maskPresent {
		return op
	}

	sa := srcOpaque
	da := dstOpaque
	ga := globalAlpha == 255

	reduced := op
	switch op {
	case OpSrcOver:
		if sa && ga {
			reduced = OpSrc
		}
	case OpDstOver:
		if da {
			reduced = OpDst
		}
	case OpSrcIn:
		if da {
			reduced = OpSrc
		}
	case OpDstIn:
		if sa && ga {
			reduced = OpDst
		}
	case OpSrcOut:
		if da {
			reduced = OpClear
		}
	case OpDstOut:
		if sa && ga {
			reduced = OpClear
		}
	case OpSrcAtop:
		if sa && da && ga {
			reduced = OpSrc
		}
	case OpDstAtop:
		if sa && da && ga {
			reduced = OpDst
		}
	}

	if reduced == OpSrc && !srcPresent && ga {
		return OpSolidFill
	}
	return reduced
}
