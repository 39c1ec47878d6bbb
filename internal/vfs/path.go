package vfs

import "strings"

// Path is a parsed VFS path: an ordered, possibly empty list of
// components. The root is the empty component list. Paths are
// case-sensitive byte strings; empty components produced by repeated or
// trailing slashes are filtered out during parsing.
type Path struct {
	components []string
}

// Root is the path with no components.
func Root() Path { return Path{} }

// ParsePath splits raw on "/" into components, filtering empty segments
// so "/a//b/" and "a/b" both resolve to ["a", "b"].
func ParsePath(raw string) (Path, error) {
	if strings.ContainsRune(raw, 0) {
		return Path{}, ErrInvalidPath
	}
	parts := strings.Split(raw, "/")
	components := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		components = append(components, p)
	}
	return Path{components: components}, nil
}

// MustParsePath panics on a malformed path; for use with literal paths.
func MustParsePath(raw string) Path {
	p, err := ParsePath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// IsRoot reports whether p has no components.
func (p Path) IsRoot() bool { return len(p.components) == 0 }

// Components returns the path's components. The slice is owned by the
// caller; mutating it does not affect p.
func (p Path) Components() []string {
	out := make([]string, len(p.components))
	copy(out, p.components)
	return out
}

// Base returns the final component, or "" for the root.
func (p Path) Base() string {
	if p.IsRoot() {
		return ""
	}
	return p.components[len(p.components)-1]
}

// Parent returns the path with its final component removed. The parent
// of the root is the root.
func (p Path) Parent() Path {
	if p.IsRoot() {
		return p
	}
	return Path{components: p.components[:len(p.components)-1]}
}

// Join appends name as a new final component.
func (p Path) Join(name string) Path {
	out := make([]string, len(p.components)+1)
	copy(out, p.components)
	out[len(out)-1] = name
	return Path{components: out}
}

// HasPrefix reports whether p is ancestor-or-self of other.
func (p Path) HasPrefix(other Path) bool {
	if len(p.components) > len(other.components) {
		return false
	}
	for i, c := range p.components {
		if other.components[i] != c {
			return false
		}
	}
	return true
}

// Equal reports whether two paths have identical components.
func (p Path) Equal(other Path) bool {
	if len(p.components) != len(other.components) {
		return false
	}
	for i, c := range p.components {
		if other.components[i] != c {
			return false
		}
	}
	return true
}

// String renders the path in canonical absolute form.
func (p Path) String() string {
	if p.IsRoot() {
		return "/"
	}
	return "/" + strings.Join(p.components, "/")
}
