package blit

import "log/slog"

// BoundSet records the ranges a job has bound into the IOMMU.
// The zero value and nil are empty sets.
type BoundSet struct {
	as     AddressSpace
	ranges []Range
}

// Len returns the number of ranges currently bound.
func (s *BoundSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ranges)
}

// Ranges returns a copy of the bound ranges in bind order.
func (s *BoundSet) Ranges() []Range {
	if s == nil {
		return nil
	}
	return append([]Range(nil), s.ranges...)
}

// Merge moves the ranges of o into s. Both sets must belong to the same
// address space.
func (s *BoundSet) Merge(o *BoundSet) {
	if o == nil || len(o.ranges) == 0 {
		return
	}
	if s.as == nil {
		s.as = o.as
	}
	s.ranges = append(s.ranges, o.ranges...)
	o.ranges = nil
}

// Binder binds and unbinds job buffers in the accelerator's IOMMU.
type Binder struct {
	tr      Translator
	metrics *Metrics
}

// NewBinder returns a binder that maps through tr.
func NewBinder(tr Translator, m *Metrics) *Binder {
	return &Binder{tr: tr, metrics: m}
}

// Bind maps one slot group into the IOMMU under the address space's page
// table lock. Ranges are bound in order. If a range fails, the ranges of
// this group that were already bound are unmapped before the *MapError is
// returned; earlier groups are the caller's to unwind.
//
// Ranges of kernel-owned or empty slots must not be passed to Bind.
func (b *Binder) Bind(as AddressSpace, group []Range) (*BoundSet, error) {
	set := &BoundSet{as: as}
	if len(group) == 0 {
		return set, nil
	}

	lock := as.PageTableLock()
	lock.Lock()
	defer lock.Unlock()

	for _, r := range group {
		if err := b.tr.Map(as, r.Addr, r.Len, r.Dir); err != nil {
			b.unmapLocked(set)
			return nil, &MapError{Slot: r.Slot, Addr: r.Addr, Err: err}
		}
		set.ranges = append(set.ranges, r)
		b.metrics.AddBoundRanges(1)
	}
	return set, nil
}

// Unbind unmaps every range in set, most recent first, and empties it.
// It is safe on nil, empty and partially populated sets and never fails.
func (b *Binder) Unbind(set *BoundSet) {
	if set.Len() == 0 {
		return
	}
	lock := set.as.PageTableLock()
	lock.Lock()
	defer lock.Unlock()
	b.unmapLocked(set)
}

func (b *Binder) unmapLocked(set *BoundSet) {
	for i := len(set.ranges) - 1; i >= 0; i-- {
		r := set.ranges[i]
		b.tr.Unmap(set.as, r.Addr, r.Len)
		b.metrics.AddBoundRanges(-1)
		Logger().Debug("blit: unbound range",
			slog.String("slot", r.Slot.String()),
			slog.Uint64("addr", r.Addr),
			slog.Uint64("len", r.Len),
		)
	}
	set.ranges = nil
}
