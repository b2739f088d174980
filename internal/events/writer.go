package events

import (
	"encoding/json"
	"fmt"
	"io"
)

type flusher interface {
	Flush()
}

// NDJSONWriter writes one JSON object per line.
type NDJSONWriter struct {
	w   io.Writer
	enc *json.Encoder
}

// NewNDJSONWriter creates a line-delimited JSON writer. If w can flush, each
// event is flushed as soon as it is written.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{w: w, enc: json.NewEncoder(w)}
}

func (n *NDJSONWriter) Write(ev Event) error {
	if err := n.enc.Encode(ev); err != nil {
		return err
	}
	if f, ok := n.w.(flusher); ok {
		f.Flush()
	}
	return nil
}

// SSEWriter writes server-sent events of the form "data: <json>\n\n".
type SSEWriter struct {
	w io.Writer
}

func NewSSEWriter(w io.Writer) *SSEWriter {
	return &SSEWriter{w: w}
}

func (s *SSEWriter) Write(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if f, ok := s.w.(flusher); ok {
		f.Flush()
	}
	return nil
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(Event) error

func (f WriterFunc) Write(ev Event) error {
	return f(ev)
}
