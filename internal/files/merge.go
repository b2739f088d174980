package files

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"adorable/internal/logging"
)

// DefaultProtected are the template paths agent output may never touch.
var DefaultProtected = []string{
	"package.json",
	"package-lock.json",
	"vite.config.js",
}

var appCSSImport = regexp.MustCompile(`import\s+["']\./App\.css["'];?\n?`)

// Warning records a change that was dropped during a merge.
type Warning struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Path, w.Reason)
}

// Merger folds agent changes into a base file set.
type Merger struct {
	protected []string
}

// NewMerger creates a merger guarding the given glob patterns.
// Invalid patterns are reported as an error.
func NewMerger(protected []string) (*Merger, error) {
	for _, p := range protected {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid protected pattern %q", p)
		}
	}
	return &Merger{protected: append([]string(nil), protected...)}, nil
}

// DefaultMerger returns a merger guarding DefaultProtected.
func DefaultMerger() *Merger {
	m, _ := NewMerger(DefaultProtected)
	return m
}

// IsProtected reports whether p matches a protected pattern.
func (m *Merger) IsProtected(p string) bool {
	for _, pattern := range m.protected {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

// Apply folds changes over a clone of base, left to right. base is never
// mutated. Dropped changes are returned as warnings.
func (m *Merger) Apply(base FileSet, changes []FileChange) (FileSet, []Warning) {
	out := base.Clone()
	var warnings []Warning

	for _, c := range changes {
		p, ok := CleanPath(c.Path)
		if !ok {
			warnings = append(warnings, Warning{Path: c.Path, Reason: "path escapes project root"})
			continue
		}
		if m.IsProtected(p) {
			logging.Warn("dropping change to protected path", "path", p, "action", c.Action)
			warnings = append(warnings, Warning{Path: p, Reason: "protected path"})
			continue
		}

		if c.Action == ActionDelete {
			delete(out, p)
			continue
		}
		out[p] = StripAppCSSImport(c.Content)
	}

	return out, warnings
}

// ApplyEntries merges full-file entries as creates.
func (m *Merger) ApplyEntries(base FileSet, entries []FileEntry) (FileSet, []Warning) {
	return m.Apply(base, EntriesToChanges(entries))
}

// EntriesToChanges converts entries to create changes, preserving order.
func EntriesToChanges(entries []FileEntry) []FileChange {
	changes := make([]FileChange, len(entries))
	for i, e := range entries {
		changes[i] = FileChange{Path: e.Path, Content: e.Content, Action: ActionCreate}
	}
	return changes
}

// StripAppCSSImport removes side-effect imports of ./App.css.
func StripAppCSSImport(content string) string {
	if !strings.Contains(content, "App.css") {
		return content
	}
	return appCSSImport.ReplaceAllString(content, "")
}

// CleanPath normalizes a project-relative path. It returns false for empty
// paths and paths leaving the project root.
func CleanPath(p string) (string, bool) {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", false
	}
	p = path.Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return p, true
}
