package files

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	AppEntryPath     = "src/App.jsx"
	componentsPrefix = "src/components/"
	untitledProject  = "Untitled Project"
	templateTitle    = "React Sandbox"
)

var camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)

// mainComponent returns the first emitted file under src/components/.
func mainComponent(entries []FileEntry) (FileEntry, bool) {
	for _, e := range entries {
		p, ok := CleanPath(e.Path)
		if ok && strings.HasPrefix(p, componentsPrefix) && e.Content != "" {
			e.Path = p
			return e, true
		}
	}
	return FileEntry{}, false
}

func componentName(p string) string {
	base := path.Base(p)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// EnsureAppEntry appends a src/App.jsx that renders the main component when
// the entries contain a component but no App entry. The second return
// reports whether an entry was added.
func EnsureAppEntry(entries []FileEntry) ([]FileEntry, bool) {
	for _, e := range entries {
		if p, _ := CleanPath(e.Path); p == AppEntryPath {
			return entries, false
		}
	}
	main, ok := mainComponent(entries)
	if !ok {
		return entries, false
	}
	name := componentName(main.Path)
	if name == "" {
		return entries, false
	}

	content := fmt.Sprintf(`import React from "react";
import %[1]s from "./components/%[1]s";

export default function App() {
  return (
    <div className="min-h-screen bg-background text-foreground">
      <%[1]s />
    </div>
  );
}`, name)

	out := make([]FileEntry, len(entries), len(entries)+1)
	copy(out, entries)
	return append(out, FileEntry{Path: AppEntryPath, Content: content}), true
}

// ProjectName derives a display name for generated output. A custom
// index.html title wins, then the main component name split on camel case.
func ProjectName(entries []FileEntry) string {
	for _, e := range entries {
		if p, _ := CleanPath(e.Path); p != "index.html" {
			continue
		}
		if title := htmlTitle(e.Content); title != "" && title != templateTitle {
			return title
		}
	}
	if main, ok := mainComponent(entries); ok {
		if name := componentName(main.Path); name != "" {
			return camelBoundary.ReplaceAllString(name, "$1 $2")
		}
	}
	return untitledProject
}

func htmlTitle(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			inTitle = atom.Lookup(name) == atom.Title
		case html.EndTagToken:
			inTitle = false
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(z.Text()))
			}
		}
	}
}
