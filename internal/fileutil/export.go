package fileutil

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"adorable/internal/files"
)

// ManifestName is the file listing the paths written by the last export.
const ManifestName = ".adorable-export"

// ExportResult summarizes an export.
type ExportResult struct {
	Written []string
	Removed []string
}

// ExportFileSet writes set under dir in one transaction. Files recorded by a
// previous export that are no longer in set are removed; other files in dir
// are left alone.
func ExportFileSet(dir string, set files.FileSet) (*ExportResult, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	previous, err := readManifest(filepath.Join(root, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("read export manifest: %w", err)
	}

	tx, err := NewFileTransaction()
	if err != nil {
		return nil, err
	}

	res := &ExportResult{}
	paths := set.Paths()
	for _, p := range paths {
		target, err := resolve(root, p)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.Write(target, []byte(set[p]), 0644); err != nil {
			tx.Rollback()
			return nil, err
		}
		res.Written = append(res.Written, p)
	}
	for _, p := range previous {
		if _, ok := set[p]; ok {
			continue
		}
		target, err := resolve(root, p)
		if err != nil {
			continue
		}
		if err := tx.Delete(target); err != nil {
			tx.Rollback()
			return nil, err
		}
		res.Removed = append(res.Removed, p)
	}
	manifest := strings.Join(paths, "\n") + "\n"
	if err := tx.Write(filepath.Join(root, ManifestName), []byte(manifest), 0644); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	sort.Strings(res.Removed)
	return res, nil
}

// resolve joins a project-relative path to root, refusing paths that
// escape it.
func resolve(root, p string) (string, error) {
	clean, ok := files.CleanPath(p)
	if !ok {
		return "", fmt.Errorf("invalid project path %q", p)
	}
	target := filepath.Join(root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes export directory", p)
	}
	return target, nil
}

func readManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}
