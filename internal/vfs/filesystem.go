// Package vfs implements the logical file tree layered on top of a
// document.Store: directories and documents are ordinary CRDT documents,
// related to each other by RefNode entries a parent directory holds for
// each child. Path resolution always walks from the root; a PathIndex
// memoizes the walk for paths that haven't changed underneath it.
package vfs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tonk-sync/tonk/internal/document"
)

// VirtualFileSystem is the logical tree rooted at a single directory
// document. Multiple VirtualFileSystem values may share one
// document.Store (a relay does this for every connected peer).
type VirtualFileSystem struct {
	store  *document.Store
	rootID document.ID
	index  *PathIndex
	bus    *eventBus
}

// NewVirtualFileSystem creates a fresh root directory and returns a VFS
// rooted at it.
func NewVirtualFileSystem(ctx context.Context, store *document.Store) (*VirtualFileSystem, error) {
	root, err := store.Create(ctx, newDirectoryContent("", time.Now()))
	if err != nil {
		return nil, fmt.Errorf("vfs: create root: %w", err)
	}
	return &VirtualFileSystem{store: store, rootID: root.ID(), index: NewPathIndex(), bus: newEventBus()}, nil
}

// OpenVirtualFileSystem returns a VFS rooted at an existing directory
// document, for example one restored from a bundle.
func OpenVirtualFileSystem(ctx context.Context, store *document.Store, rootID document.ID) (*VirtualFileSystem, error) {
	h, ok, err := store.Find(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("vfs: open root %s: %w", rootID, err)
	}
	if !ok {
		return nil, fmt.Errorf("vfs: open root %s: %w", rootID, ErrPathNotFound)
	}
	content, _ := h.Content()
	if nodeTypeOf(content) != NodeDirectory {
		return nil, &NodeTypeMismatchError{Expected: NodeDirectory, Actual: nodeTypeOf(content)}
	}
	return &VirtualFileSystem{store: store, rootID: rootID, index: NewPathIndex(), bus: newEventBus()}, nil
}

// RootID returns the document id of the root directory.
func (fs *VirtualFileSystem) RootID() document.ID { return fs.rootID }

// Subscribe listens for every VfsEvent published by this tree.
func (fs *VirtualFileSystem) Subscribe(buffer int) (<-chan VfsEvent, func()) {
	return fs.bus.subscribe(buffer)
}

// resolvePath walks from the root to p, consulting and repairing the
// path index along the way. It returns ErrPathNotFound if any component
// is missing.
func (fs *VirtualFileSystem) resolvePath(ctx context.Context, p Path) (*document.Handle, NodeType, error) {
	if p.IsRoot() {
		h, ok, err := fs.store.Find(ctx, fs.rootID)
		if err != nil {
			return nil, "", fmt.Errorf("vfs: resolve root: %w", err)
		}
		if !ok {
			return nil, "", ErrPathNotFound
		}
		return h, NodeDirectory, nil
	}

	if id, ok := fs.index.Lookup(p); ok {
		if h, ok2, err := fs.store.Find(ctx, id); err == nil && ok2 {
			if content, exists := h.Content(); exists {
				return h, nodeTypeOf(content), nil
			}
		}
		fs.index.Invalidate(p)
	}

	parent, _, err := fs.resolvePath(ctx, p.Parent())
	if err != nil {
		return nil, "", err
	}
	parentContent, ok := parent.Content()
	if !ok {
		return nil, "", ErrPathNotFound
	}
	dir := decodeDirectory(parentContent)
	ref, ok := findChildByName(dir.Children, p.Base())
	if !ok {
		return nil, "", ErrPathNotFound
	}

	child, ok, err := fs.store.Find(ctx, ref.Pointer)
	if err != nil {
		return nil, "", fmt.Errorf("vfs: resolve %s: %w", p, err)
	}
	if !ok {
		return nil, "", ErrPathNotFound
	}
	fs.index.Put(p, ref.Pointer)
	return child, ref.Type, nil
}

// ensureDir resolves p as a directory, creating it (and any missing
// ancestors) if it doesn't exist yet. It is idempotent: calling it twice
// on the same path returns the same handle both times.
func (fs *VirtualFileSystem) ensureDir(ctx context.Context, p Path) (*document.Handle, error) {
	h, nt, err := fs.resolvePath(ctx, p)
	if err == nil {
		if nt != NodeDirectory {
			return nil, &NodeTypeMismatchError{Expected: NodeDirectory, Actual: nt}
		}
		return h, nil
	}
	if !errors.Is(err, ErrPathNotFound) || p.IsRoot() {
		return nil, err
	}

	parent, err := fs.ensureDir(ctx, p.Parent())
	if err != nil {
		return nil, err
	}

	now := time.Now()
	dirHandle, err := fs.store.Create(ctx, newDirectoryContent(p.Base(), now))
	if err != nil {
		return nil, fmt.Errorf("vfs: create directory %s: %w", p, err)
	}
	ref := RefNode{Pointer: dirHandle.ID(), Type: NodeDirectory, Name: p.Base(), Timestamps: newTimestamps(now)}
	if err := fs.attachChild(ctx, parent, ref); err != nil {
		return nil, err
	}

	fs.index.Put(p, dirHandle.ID())
	fs.bus.publish(VfsEvent{Kind: EventCreated, Path: p, ID: string(dirHandle.ID())})
	return dirHandle, nil
}

func (fs *VirtualFileSystem) attachChild(ctx context.Context, parent *document.Handle, ref RefNode) error {
	return parent.WithDocument(ctx, func(content map[string]interface{}) (map[string]interface{}, error) {
		updated := make(map[string]interface{}, len(content)+2)
		for k, v := range content {
			updated[k] = v
		}
		updated[childKey(ref.Pointer)] = encodeRefNode(ref)
		updated["modified"] = time.Now().UnixMilli()
		return updated, nil
	})
}

func (fs *VirtualFileSystem) detachChild(ctx context.Context, parent *document.Handle, childID document.ID) error {
	return parent.WithDocument(ctx, func(content map[string]interface{}) (map[string]interface{}, error) {
		key := childKey(childID)
		existing, ok := content[key]
		if !ok {
			return nil, nil
		}
		ref, _ := decodeRefNode(existing)
		ref.Tombstone = true

		updated := make(map[string]interface{}, len(content)+1)
		for k, v := range content {
			updated[k] = v
		}
		updated[key] = encodeRefNode(ref)
		updated["modified"] = time.Now().UnixMilli()
		return updated, nil
	})
}

// CreateDocument creates a leaf document at p, auto-creating any missing
// parent directories first.
func (fs *VirtualFileSystem) CreateDocument(ctx context.Context, p Path, content interface{}) (*document.Handle, error) {
	if p.IsRoot() {
		return nil, ErrRootPath
	}
	parent, err := fs.ensureDir(ctx, p.Parent())
	if err != nil {
		return nil, err
	}

	parentContent, _ := parent.Content()
	dir := decodeDirectory(parentContent)
	if _, exists := findChildByName(dir.Children, p.Base()); exists {
		return nil, ErrDocumentExists
	}

	now := time.Now()
	child, err := fs.store.Create(ctx, newDocumentContent(p.Base(), content, now))
	if err != nil {
		return nil, fmt.Errorf("vfs: create document %s: %w", p, err)
	}

	ref := RefNode{Pointer: child.ID(), Type: NodeDocument, Name: p.Base(), Timestamps: newTimestamps(now)}
	if err := fs.attachChild(ctx, parent, ref); err != nil {
		return nil, err
	}

	fs.index.Put(p, child.ID())
	fs.bus.publish(VfsEvent{Kind: EventCreated, Path: p, ID: string(child.ID())})
	return child, nil
}

// CreateDirectory creates a directory at p, auto-creating any missing
// ancestors. Calling it on an existing directory returns that
// directory's handle rather than an error.
func (fs *VirtualFileSystem) CreateDirectory(ctx context.Context, p Path) (*document.Handle, error) {
	if p.IsRoot() {
		return nil, ErrRootPath
	}
	return fs.ensureDir(ctx, p)
}

// FindDocument resolves p to a leaf document handle. ok is false if the
// path doesn't exist.
func (fs *VirtualFileSystem) FindDocument(ctx context.Context, p Path) (*document.Handle, bool, error) {
	h, nt, err := fs.resolvePath(ctx, p)
	if errors.Is(err, ErrPathNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if nt != NodeDocument {
		return nil, false, &NodeTypeMismatchError{Expected: NodeDocument, Actual: nt}
	}
	return h, true, nil
}

// ListDirectory returns p's live children in insertion order, with
// same-name collisions deterministically deduplicated.
func (fs *VirtualFileSystem) ListDirectory(ctx context.Context, p Path) ([]RefNode, error) {
	h, nt, err := fs.resolvePath(ctx, p)
	if err != nil {
		return nil, err
	}
	if nt != NodeDirectory {
		return nil, &NodeTypeMismatchError{Expected: NodeDirectory, Actual: nt}
	}
	content, _ := h.Content()
	return dedupChildren(decodeDirectory(content).Children), nil
}

// Remove deletes p. For a directory, children are removed depth-first
// before the directory's own ref is detached from its parent.
func (fs *VirtualFileSystem) Remove(ctx context.Context, p Path) (bool, error) {
	if p.IsRoot() {
		return false, ErrRootPath
	}
	h, nt, err := fs.resolvePath(ctx, p)
	if errors.Is(err, ErrPathNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if nt == NodeDirectory {
		if err := fs.removeChildren(ctx, h); err != nil {
			return false, err
		}
	}

	parent, _, err := fs.resolvePath(ctx, p.Parent())
	if err != nil {
		return false, err
	}
	if err := fs.detachChild(ctx, parent, h.ID()); err != nil {
		return false, err
	}

	fs.index.InvalidateAll()
	fs.bus.publish(VfsEvent{Kind: EventRemoved, Path: p, ID: string(h.ID())})
	return true, nil
}

func (fs *VirtualFileSystem) removeChildren(ctx context.Context, dirHandle *document.Handle) error {
	content, _ := dirHandle.Content()
	dir := decodeDirectory(content)
	for _, child := range dir.Children {
		if child.Tombstone {
			continue
		}
		childHandle, ok, err := fs.store.Find(ctx, child.Pointer)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if child.Type == NodeDirectory {
			if err := fs.removeChildren(ctx, childHandle); err != nil {
				return err
			}
		}
		if err := fs.detachChild(ctx, dirHandle, child.Pointer); err != nil {
			return err
		}
	}
	return nil
}

// Move relocates the node at from to to, rejecting a move of an
// ancestor into its own descendant.
func (fs *VirtualFileSystem) Move(ctx context.Context, from, to Path) error {
	if from.IsRoot() || to.IsRoot() {
		return ErrRootPath
	}
	if from.HasPrefix(to) {
		return ErrCircularMove
	}

	h, nt, err := fs.resolvePath(ctx, from)
	if err != nil {
		return err
	}
	srcParent, _, err := fs.resolvePath(ctx, from.Parent())
	if err != nil {
		return err
	}
	dstParent, err := fs.ensureDir(ctx, to.Parent())
	if err != nil {
		return err
	}

	dstContent, _ := dstParent.Content()
	if _, exists := findChildByName(decodeDirectory(dstContent).Children, to.Base()); exists {
		return ErrDocumentExists
	}

	now := time.Now()
	newRef := RefNode{Pointer: h.ID(), Type: nt, Name: to.Base(), Timestamps: newTimestamps(now)}

	if srcParent.ID() == dstParent.ID() {
		if err := fs.renameChild(ctx, srcParent, newRef); err != nil {
			return err
		}
	} else {
		if err := fs.detachChild(ctx, srcParent, h.ID()); err != nil {
			return err
		}
		if err := fs.attachChild(ctx, dstParent, newRef); err != nil {
			return err
		}
	}

	fs.index.InvalidateAll()
	fs.bus.publish(VfsEvent{Kind: EventMoved, Path: to, ID: string(h.ID()), From: from})
	return nil
}

func (fs *VirtualFileSystem) renameChild(ctx context.Context, parent *document.Handle, ref RefNode) error {
	return parent.WithDocument(ctx, func(content map[string]interface{}) (map[string]interface{}, error) {
		updated := make(map[string]interface{}, len(content)+1)
		for k, v := range content {
			updated[k] = v
		}
		updated[childKey(ref.Pointer)] = encodeRefNode(ref)
		updated["modified"] = time.Now().UnixMilli()
		return updated, nil
	})
}

// Exists reports whether p resolves to any node.
func (fs *VirtualFileSystem) Exists(ctx context.Context, p Path) (bool, error) {
	_, _, err := fs.resolvePath(ctx, p)
	if errors.Is(err, ErrPathNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Metadata returns the node type and timestamps for p.
func (fs *VirtualFileSystem) Metadata(ctx context.Context, p Path) (NodeType, Timestamps, bool, error) {
	h, nt, err := fs.resolvePath(ctx, p)
	if errors.Is(err, ErrPathNotFound) {
		return "", Timestamps{}, false, nil
	}
	if err != nil {
		return "", Timestamps{}, false, err
	}
	content, _ := h.Content()
	if nt == NodeDirectory {
		return nt, decodeDirectory(content).Timestamps, true, nil
	}
	return nt, decodeDocument(content).Timestamps, true, nil
}

// Watch returns a Watcher bound to the document at p, or ok=false if p
// doesn't exist.
func (fs *VirtualFileSystem) Watch(ctx context.Context, p Path) (*Watcher, bool, error) {
	h, _, err := fs.resolvePath(ctx, p)
	if errors.Is(err, ErrPathNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return NewWatcher(h), true, nil
}
