package vfs

import (
	"context"
	"time"

	"github.com/tonk-sync/tonk/internal/document"
)

// DocumentValue extracts the user-supplied value from a leaf document
// handle's content map, discarding the VFS bookkeeping fields
// (node_type, name, timestamps).
func DocumentValue(h *document.Handle) (interface{}, bool) {
	content, ok := h.Content()
	if !ok {
		return nil, false
	}
	return decodeDocument(content).Value, true
}

// UpdateDocument replaces a leaf document's value, bumping its modified
// timestamp, while leaving its name and creation time untouched.
func UpdateDocument(ctx context.Context, h *document.Handle, value interface{}) error {
	return h.WithDocument(ctx, func(content map[string]interface{}) (map[string]interface{}, error) {
		updated := make(map[string]interface{}, len(content)+1)
		for k, v := range content {
			updated[k] = v
		}
		updated["content"] = value
		updated["modified"] = time.Now().UnixMilli()
		return updated, nil
	})
}
