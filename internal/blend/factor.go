package blend

import "github.com/gogpu/gputypes"

// Factors is one coefficient pair of the blend equation
// result = src*Src + dst*Dst, evaluated per channel.
type Factors struct {
	Src gputypes.BlendFactor
	Dst gputypes.BlendFactor
}

// FactorsFor returns the premultiplied-alpha blend factors that implement
// the given Porter-Duff mode.
func FactorsFor(mode Mode) Factors {
	switch mode {
	case ModeClear:
		return Factors{gputypes.BlendFactorZero, gputypes.BlendFactorZero}
	case ModeSource:
		return Factors{gputypes.BlendFactorOne, gputypes.BlendFactorZero}
	case ModeDestination:
		return Factors{gputypes.BlendFactorZero, gputypes.BlendFactorOne}
	case ModeSourceOver:
		return Factors{gputypes.BlendFactorOne, gputypes.BlendFactorOneMinusSrcAlpha}
	case ModeDestinationOver:
		return Factors{gputypes.BlendFactorOneMinusDstAlpha, gputypes.BlendFactorOne}
	case ModeSourceIn:
		return Factors{gputypes.BlendFactorDstAlpha, gputypes.BlendFactorZero}
	case ModeDestinationIn:
		return Factors{gputypes.BlendFactorZero, gputypes.BlendFactorSrcAlpha}
	case ModeSourceOut:
		return Factors{gputypes.BlendFactorOneMinusDstAlpha, gputypes.BlendFactorZero}
	case ModeDestinationOut:
		return Factors{gputypes.BlendFactorZero, gputypes.BlendFactorOneMinusSrcAlpha}
	case ModeSourceAtop:
		return Factors{gputypes.BlendFactorDstAlpha, gputypes.BlendFactorOneMinusSrcAlpha}
	case ModeDestinationAtop:
		return Factors{gputypes.BlendFactorOneMinusDstAlpha, gputypes.BlendFactorSrcAlpha}
	default:
		return Factors{gputypes.BlendFactorOne, gputypes.BlendFactorOneMinusSrcAlpha}
	}
}

// ReadsSource reports whether the factors make the result depend on
// source pixels.
func (f Factors) ReadsSource() bool {
	if f.Src != gputypes.BlendFactorZero {
		return true
	}
	switch f.Dst {
	case gputypes.BlendFactorSrcAlpha, gputypes.BlendFactorOneMinusSrcAlpha,
		gputypes.BlendFactorSrc, gputypes.BlendFactorOneMinusSrc:
		return true
	}
	return false
}

// Apply evaluates src*f.Src + dst*f.Dst on premultiplied pixels.
// Unsupported factors evaluate to zero.
func (f Factors) Apply(sr, sg, sb, sa, dr, dg, db, da byte) (r, g, b, a byte) {
	s := [4]byte{sr, sg, sb, sa}
	d := [4]byte{dr, dg, db, da}
	var out [4]byte
	for i := range out {
		fs := factor(f.Src, s, d, i)
		fd := factor(f.Dst, s, d, i)
		out[i] = addClamp(mulDiv255(s[i], fs), mulDiv255(d[i], fd))
	}
	return out[0], out[1], out[2], out[3]
}

// factor resolves a blend factor for channel i.
func factor(bf gputypes.BlendFactor, s, d [4]byte, i int) byte {
	switch bf {
	case gputypes.BlendFactorOne:
		return 255
	case gputypes.BlendFactorSrc:
		return s[i]
	case gputypes.BlendFactorOneMinusSrc:
		return inv255(s[i])
	case gputypes.BlendFactorSrcAlpha:
		return s[3]
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return inv255(s[3])
	case gputypes.BlendFactorDst:
		return d[i]
	case gputypes.BlendFactorOneMinusDst:
		return inv255(d[i])
	case gputypes.BlendFactorDstAlpha:
		return d[3]
	case gputypes.BlendFactorOneMinusDstAlpha:
		return inv255(d[3])
	default:
		return 0
	}
}
