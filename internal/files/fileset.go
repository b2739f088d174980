// Package files holds the project file model and the pure merge algebra
// applied to agent output.
package files

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Action is the kind of change carried by a FileChange.
type Action string

const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// ParseAction maps a raw action value to an Action. An empty value is modify.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case "":
		return ActionModify, nil
	case ActionCreate, ActionModify, ActionDelete:
		return Action(s), nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// FileEntry is a full file as emitted by a generation run.
type FileEntry struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileChange is one step of an edit. Delete changes carry empty content.
type FileChange struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Action  Action `json:"action"`
}

// FileSet maps a relative path to its full content.
type FileSet map[string]string

// FromEntries builds a FileSet from entries; later entries win.
func FromEntries(entries []FileEntry) FileSet {
	fs := make(FileSet, len(entries))
	for _, e := range entries {
		fs[e.Path] = e.Content
	}
	return fs
}

// Clone returns an independent copy.
func (fs FileSet) Clone() FileSet {
	out := make(FileSet, len(fs))
	for k, v := range fs {
		out[k] = v
	}
	return out
}

// Paths returns the paths in lexical order.
func (fs FileSet) Paths() []string {
	paths := make([]string, 0, len(fs))
	for p := range fs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Entries returns the set as entries sorted by path.
func (fs FileSet) Entries() []FileEntry {
	entries := make([]FileEntry, 0, len(fs))
	for _, p := range fs.Paths() {
		entries = append(entries, FileEntry{Path: p, Content: fs[p]})
	}
	return entries
}

// Equal reports whether both sets hold the same paths with the same content.
func (fs FileSet) Equal(other FileSet) bool {
	if len(fs) != len(other) {
		return false
	}
	for k, v := range fs {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set with sorted keys.
func (fs FileSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string(fs))
}

// Size returns the total content size in bytes.
func (fs FileSet) Size() int {
	n := 0
	for _, v := range fs {
		n += len(v)
	}
	return n
}
