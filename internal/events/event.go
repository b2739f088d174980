// Package events carries progress of a single generation or edit request
// to its client in causal order.
package events

import (
	"adorable/internal/files"
)

// Type identifies an event.
type Type string

const (
	TypeToken          Type = "token"
	TypeTool           Type = "tool"
	TypeStatus         Type = "status"
	TypeFileUpdate     Type = "file_update"
	TypeWarning        Type = "warning"
	TypeVersionCreated Type = "version_created"
	TypeError          Type = "error"
	TypeDone           Type = "done"
)

// Event is one line of the stream.
type Event struct {
	Type      Type              `json:"type"`
	Content   string            `json:"content,omitempty"`
	Message   string            `json:"message,omitempty"`
	Tool      string            `json:"tool,omitempty"`
	File      *files.FileChange `json:"file,omitempty"`
	Diff      *files.DiffStat   `json:"diff,omitempty"`
	ProjectID string            `json:"projectId,omitempty"`
	VersionID string            `json:"versionId,omitempty"`
	Files     files.FileSet     `json:"files,omitempty"`
	Preview   string            `json:"previewUrl,omitempty"`
	Passed    *bool             `json:"buildPassed,omitempty"`
}

// Emitter receives events.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(ev Event) {
	if f != nil {
		f(ev)
	}
}

// Discard drops every event.
var Discard Emitter = EmitterFunc(nil)

func Token(content string) Event {
	return Event{Type: TypeToken, Content: content}
}

func Tool(name, content string) Event {
	return Event{Type: TypeTool, Tool: name, Content: content}
}

func Status(msg string) Event {
	return Event{Type: TypeStatus, Message: msg}
}

func FileUpdate(change files.FileChange, diff files.DiffStat) Event {
	return Event{Type: TypeFileUpdate, File: &change, Diff: &diff}
}

func Warning(msg string) Event {
	return Event{Type: TypeWarning, Message: msg}
}

// VersionCreated announces a persisted version.
func VersionCreated(projectID, versionID string, set files.FileSet, preview string, passed bool) Event {
	return Event{
		Type:      TypeVersionCreated,
		ProjectID: projectID,
		VersionID: versionID,
		Files:     set,
		Preview:   preview,
		Passed:    &passed,
	}
}

func Error(msg string) Event {
	return Event{Type: TypeError, Message: msg}
}

func Done() Event {
	return Event{Type: TypeDone}
}
