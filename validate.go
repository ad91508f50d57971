package blit

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func jobValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks that j can be handed to the executor. Invalid jobs must
// be rejected at admission; the executor assumes validity.
func (j *Job) Validate() error {
	if err := jobValidator().Struct(j); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %q", ErrInvalidJob, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	if !j.Params.Op.IsValid() {
		return fmt.Errorf("%w: unknown operator %d", ErrInvalidJob, j.Params.Op)
	}
	dst := &j.Images[SlotDestination]
	if !dst.Kind.Memory() {
		return fmt.Errorf("%w: destination has no buffer", ErrInvalidJob)
	}
	if j.Owner == nil && j.hasUserSlots() {
		return fmt.Errorf("%w: user buffers without an owner address space", ErrInvalidJob)
	}

	for s := range Slot(NumSlots) {
		im := &j.Images[s]
		if !im.Kind.Memory() {
			continue
		}
		if err := validateImage(s, im); err != nil {
			return err
		}
	}

	if d2 := &j.Images[SlotDestination2]; d2.Kind.Memory() && d2.Format.DualPlane() {
		return fmt.Errorf("%w: secondary destination must be single-plane", ErrInvalidJob)
	}
	if m := &j.Images[SlotMask]; m.Kind.Memory() && m.Format.DualPlane() {
		return fmt.Errorf("%w: mask must be single-plane", ErrInvalidJob)
	}

	sc := j.Params.Scaling
	if sc.Mode != ScaleNone && (sc.SrcW <= 0 || sc.SrcH <= 0 || sc.DstW <= 0 || sc.DstH <= 0) {
		return fmt.Errorf("%w: scaling factors must be positive", ErrInvalidJob)
	}
	if c := j.Params.Clip; c != nil && c.Empty() {
		return fmt.Errorf("%w: empty clip rectangle", ErrInvalidJob)
	}
	return nil
}

func validateImage(s Slot, im *Image) error {
	if !im.Format.IsValid() {
		return fmt.Errorf("%w: %s: unknown format %d", ErrInvalidJob, s, im.Format)
	}
	if im.Width <= 0 || im.Height <= 0 {
		return fmt.Errorf("%w: %s: empty buffer", ErrInvalidJob, s)
	}
	if im.Stride < im.Format.RowBytes(im.Width) {
		return fmt.Errorf("%w: %s: stride %d too small for width %d", ErrInvalidJob, s, im.Stride, im.Width)
	}
	r := im.Rect
	if r.Empty() || r.X+r.W > im.Width || r.Y+r.H > im.Height {
		return fmt.Errorf("%w: %s: rectangle %+v outside %dx%d buffer", ErrInvalidJob, s, r, im.Width, im.Height)
	}
	if im.Format.DualPlane() {
		if need := uint64(im.Format.ChromaBytes(im.Stride, im.Height)); im.Plane2.Size < need {
			return fmt.Errorf("%w: %s: chroma plane %d bytes, need %d", ErrInvalidJob, s, im.Plane2.Size, need)
		}
	}
	return nil
}
