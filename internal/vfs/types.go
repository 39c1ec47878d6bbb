package vfs

import (
	"strings"
	"time"

	"github.com/tonk-sync/tonk/internal/document"
)

// NodeType distinguishes a directory node from a document node.
type NodeType string

const (
	NodeDocument  NodeType = "document"
	NodeDirectory NodeType = "directory"
)

func (t NodeType) String() string { return string(t) }

// Timestamps records a node's creation and last-modification times, in
// unix milliseconds to match resolver.Change's wall-clock field.
type Timestamps struct {
	Created  int64
	Modified int64
}

func newTimestamps(now time.Time) Timestamps {
	ms := now.UnixMilli()
	return Timestamps{Created: ms, Modified: ms}
}

// RefNode is a directory entry: a name pointing at a child document,
// which may itself be a directory or a leaf document.
type RefNode struct {
	Pointer    document.ID
	Type       NodeType
	Name       string
	Timestamps Timestamps
	Tombstone  bool
}

// childKey is the content map key a RefNode is stored under in its
// parent directory document. Keying by the child's own document id (not
// by name) means two peers who concurrently create a child with the
// same name each write a distinct key, so the resolver's additive field
// merge keeps both instead of one clobbering the other.
func childKey(id document.ID) string {
	return "child:" + string(id)
}

func isChildKey(key string) (document.ID, bool) {
	const prefix = "child:"
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	return document.ID(key[len(prefix):]), true
}

func encodeRefNode(n RefNode) map[string]interface{} {
	return map[string]interface{}{
		"pointer":   string(n.Pointer),
		"type":      string(n.Type),
		"name":      n.Name,
		"created":   n.Timestamps.Created,
		"modified":  n.Timestamps.Modified,
		"tombstone": n.Tombstone,
	}
}

func decodeRefNode(raw interface{}) (RefNode, bool) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return RefNode{}, false
	}
	var n RefNode
	if v, ok := m["pointer"].(string); ok {
		n.Pointer = document.ID(v)
	}
	if v, ok := m["type"].(string); ok {
		n.Type = NodeType(v)
	}
	if v, ok := m["name"].(string); ok {
		n.Name = v
	}
	n.Timestamps.Created = toInt64(m["created"])
	n.Timestamps.Modified = toInt64(m["modified"])
	if v, ok := m["tombstone"].(bool); ok {
		n.Tombstone = v
	}
	return n, true
}

// toInt64 tolerates both int64 (set locally, before a round-trip through
// CBOR) and float64/uint64 (decoded back from the wire), since a map
// decoded through cbor.Unmarshal into interface{} yields numeric types
// that don't necessarily match what was encoded.
func toInt64(raw interface{}) int64 {
	switch v := raw.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// directoryContent is the typed view over a directory document's content
// map: a name, timestamps, and a flat set of child RefNodes keyed by the
// child's own document id.
type directoryContent struct {
	Name       string
	Timestamps Timestamps
	Children   []RefNode
}

func newDirectoryContent(name string, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"node_type": string(NodeDirectory),
		"name":      name,
		"created":   now.UnixMilli(),
		"modified":  now.UnixMilli(),
	}
}

func decodeDirectory(content map[string]interface{}) directoryContent {
	d := directoryContent{}
	if v, ok := content["name"].(string); ok {
		d.Name = v
	}
	d.Timestamps.Created = toInt64(content["created"])
	d.Timestamps.Modified = toInt64(content["modified"])
	for k, v := range content {
		if _, ok := isChildKey(k); !ok {
			continue
		}
		if n, ok := decodeRefNode(v); ok {
			d.Children = append(d.Children, n)
		}
	}
	return d
}

// documentContent is the typed view over a leaf document's content map.
type documentContent struct {
	Name       string
	Timestamps Timestamps
	Value      interface{}
}

func newDocumentContent(name string, value interface{}, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"node_type": string(NodeDocument),
		"name":      name,
		"created":   now.UnixMilli(),
		"modified":  now.UnixMilli(),
		"content":   value,
	}
}

func decodeDocument(content map[string]interface{}) documentContent {
	d := documentContent{}
	if v, ok := content["name"].(string); ok {
		d.Name = v
	}
	d.Timestamps.Created = toInt64(content["created"])
	d.Timestamps.Modified = toInt64(content["modified"])
	d.Value = content["content"]
	return d
}

func nodeTypeOf(content map[string]interface{}) NodeType {
	if v, ok := content["node_type"].(string); ok {
		return NodeType(v)
	}
	return ""
}
