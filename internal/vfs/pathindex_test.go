package vfs

import (
	"testing"

	"github.com/tonk-sync/tonk/internal/document"
)

func TestPathIndexPutAndLookup(t *testing.T) {
	idx := NewPathIndex()
	p := MustParsePath("/a/b")
	idx.Put(p, document.ID("doc-1"))

	id, ok := idx.Lookup(p)
	if !ok || id != document.ID("doc-1") {
		t.Fatalf("expected doc-1, got %v ok=%v", id, ok)
	}

	rev, ok := idx.ReversePath(document.ID("doc-1"))
	if !ok || !rev.Equal(p) {
		t.Fatalf("expected reverse path %s, got %s ok=%v", p, rev, ok)
	}
}

func TestPathIndexInvalidateInvalidatesDescendants(t *testing.T) {
	idx := NewPathIndex()
	idx.Put(MustParsePath("/a"), document.ID("dir-a"))
	idx.Put(MustParsePath("/a/b"), document.ID("doc-b"))
	idx.Put(MustParsePath("/other"), document.ID("doc-other"))

	idx.Invalidate(MustParsePath("/a"))

	if _, ok := idx.Lookup(MustParsePath("/a")); ok {
		t.Errorf("expected /a to be invalidated")
	}
	if _, ok := idx.Lookup(MustParsePath("/a/b")); ok {
		t.Errorf("expected /a/b to be invalidated as a descendant of /a")
	}
	if _, ok := idx.Lookup(MustParsePath("/other")); !ok {
		t.Errorf("expected /other to remain cached")
	}
}

func TestPathIndexMovingAPathDropsStaleReverseEntry(t *testing.T) {
	idx := NewPathIndex()
	idx.Put(MustParsePath("/old"), document.ID("doc-1"))
	idx.Put(MustParsePath("/new"), document.ID("doc-1"))

	if _, ok := idx.Lookup(MustParsePath("/old")); ok {
		t.Errorf("expected /old to be superseded once doc-1 is re-pointed at /new")
	}
	id, ok := idx.Lookup(MustParsePath("/new"))
	if !ok || id != document.ID("doc-1") {
		t.Fatalf("expected /new -> doc-1, got %v ok=%v", id, ok)
	}
}
