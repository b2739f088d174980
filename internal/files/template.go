package files

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed template
var templateFS embed.FS

// Template is an immutable base file set that every generated project
// starts from.
type Template struct {
	files  FileSet
	source string
}

// DefaultTemplate returns the built-in Vite + React template.
func DefaultTemplate() *Template {
	sub, err := fs.Sub(templateFS, "template")
	if err != nil {
		panic(fmt.Sprintf("embedded template: %v", err))
	}
	set, err := readTree(sub)
	if err != nil {
		panic(fmt.Sprintf("embedded template: %v", err))
	}
	return &Template{files: set, source: "builtin"}
}

// LoadTemplateDir reads a template from a directory on disk.
// node_modules and dot-directories are skipped.
func LoadTemplateDir(dir string) (*Template, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("template dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template dir: %s is not a directory", dir)
	}
	set, err := readTree(os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", dir, err)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("template dir %s is empty", dir)
	}
	return &Template{files: set, source: dir}, nil
}

func readTree(fsys fs.FS) (FileSet, error) {
	set := make(FileSet)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if p != "." && (name == "node_modules" || name == "dist" || name[0] == '.') {
				return fs.SkipDir
			}
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		set[filepath.ToSlash(p)] = string(data)
		return nil
	})
	return set, err
}

// Files returns a copy of the template files.
func (t *Template) Files() FileSet {
	return t.files.Clone()
}

// Source names where the template was loaded from.
func (t *Template) Source() string {
	return t.source
}
