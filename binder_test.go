package blit

import (
	"errors"
	"testing"
)

func TestBinderBindAndUnbind(t *testing.T) {
	as := newFakeSpace(7)
	tr := newFakeTranslator()
	b := NewBinder(tr, nil)

	im := nv12Image(AddrUserVirtual, srcAddr, 32, 32)
	set, err := b.Bind(as, im.Ranges(SlotSource, DirInput))
	if err != nil {
		t.Fatalf("Bind() = %v", err)
	}
	if set.Len() != 2 || tr.outstanding() != 2 {
		t.Fatalf("bound %d ranges, %d outstanding, want 2", set.Len(), tr.outstanding())
	}
	if tr.unlockedMap != 0 {
		t.Errorf("%d Map calls without the page-table lock held", tr.unlockedMap)
	}

	b.Unbind(set)
	if set.Len() != 0 || tr.outstanding() != 0 {
		t.Errorf("after Unbind: set %d, outstanding %d", set.Len(), tr.outstanding())
	}
	want := []uint64{srcAddr + 32*32, srcAddr}
	if len(tr.unmaps) != 2 || tr.unmaps[0] != want[0] || tr.unmaps[1] != want[1] {
		t.Errorf("unmap order = %#x, want %#x", tr.unmaps, want)
	}
}

func TestBinderUnbindIdempotent(t *testing.T) {
	as := newFakeSpace(1)
	tr := newFakeTranslator()
	b := NewBinder(tr, nil)

	im := rgbImage(AddrUserVirtual, dstAddr, 8, 8)
	set, err := b.Bind(as, im.Ranges(SlotDestination, DirOutput))
	if err != nil {
		t.Fatalf("Bind() = %v", err)
	}
	b.Unbind(set)
	b.Unbind(set)
	b.Unbind(nil)
	b.Unbind(&BoundSet{})

	if len(tr.unmaps) != 1 {
		t.Errorf("Unmap called %d times, want 1", len(tr.unmaps))
	}
}

func TestBinderPartialFailureUnwindsGroup(t *testing.T) {
	as := newFakeSpace(1)
	tr := newFakeTranslator()
	im := nv12Image(AddrUserVirtual, dstAddr, 32, 32)
	tr.fail(dstAddr + 32*32)
	b := NewBinder(tr, nil)

	set, err := b.Bind(as, im.Ranges(SlotDestination, DirOutput))
	if err == nil {
		t.Fatal("Bind() succeeded, want error")
	}
	if set != nil {
		t.Errorf("Bind() returned set %+v on failure", set)
	}
	var me *MapError
	if !errors.As(err, &me) {
		t.Fatalf("Bind() error %T, want *MapError", err)
	}
	if me.Slot != SlotDestination || me.Addr != dstAddr+32*32 {
		t.Errorf("MapError = %+v", me)
	}
	if !errors.Is(err, errInjected) {
		t.Errorf("MapError does not wrap the translator error")
	}
	if tr.outstanding() != 0 {
		t.Errorf("%d ranges outstanding after failed bind", tr.outstanding())
	}
}

func TestBoundSetMerge(t *testing.T) {
	as := newFakeSpace(1)
	a := &BoundSet{as: as, ranges: []Range{{Addr: 1}}}
	b := &BoundSet{as: as, ranges: []Range{{Addr: 2}, {Addr: 3}}}
	a.Merge(b)
	a.Merge(nil)

	if a.Len() != 3 || b.Len() != 0 {
		t.Errorf("after Merge: a=%d b=%d", a.Len(), b.Len())
	}
	rs := a.Ranges()
	rs[0].Addr = 99
	if a.Ranges()[0].Addr != 1 {
		t.Error("Ranges() returned an alias of the set")
	}

	var nilSet *BoundSet
	if nilSet.Len() != 0 || nilSet.Ranges() != nil {
		t.Error("nil BoundSet is not empty")
	}
}
