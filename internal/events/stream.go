package events

import (
	"context"
	"sync"

	"adorable/internal/logging"
)

const DefaultBuffer = 64

// Stream is the single ordered channel of events for one request. Producers
// call Emit and, exactly once in a deferred cleanup, Finish. Once Finish has
// run, nothing else is delivered.
type Stream struct {
	ch       chan Event
	mu       sync.Mutex
	finished bool

	gone     chan struct{}
	goneOnce sync.Once

	errorText func(error) string
}

// Option configures a Stream.
type Option func(*Stream)

// WithErrorText sets how Finish renders an error for the client.
func WithErrorText(fn func(error) string) Option {
	return func(s *Stream) {
		s.errorText = fn
	}
}

// NewStream creates a stream buffering up to size events.
func NewStream(size int, opts ...Option) *Stream {
	if size <= 0 {
		size = DefaultBuffer
	}
	s := &Stream{
		ch:        make(chan Event, size),
		gone:      make(chan struct{}),
		errorText: func(err error) string { return err.Error() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emit delivers ev. It blocks while the buffer is full and the consumer is
// still attached. Terminal events are reserved for Finish and dropped here.
func (s *Stream) Emit(ev Event) {
	if ev.Type == TypeDone || ev.Type == TypeError {
		logging.Debug("terminal event emitted outside Finish, dropped", "type", ev.Type)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		logging.Debug("event after done dropped", "type", ev.Type)
		return
	}
	s.send(ev)
}

// Finish emits at most one error event for err, then exactly one done event,
// and closes the stream. Later calls are no-ops.
func (s *Stream) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	s.finished = true

	if err != nil {
		s.send(Error(s.errorText(err)))
	}
	s.send(Done())
	close(s.ch)
}

func (s *Stream) send(ev Event) {
	select {
	case s.ch <- ev:
	case <-s.gone:
	}
}

// Events returns the receive side of the stream. It is closed after done.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Abandon marks the consumer as gone. Pending and future events are dropped
// without blocking producers.
func (s *Stream) Abandon() {
	s.goneOnce.Do(func() {
		close(s.gone)
	})
}

// Stopped is closed once the consumer has gone away.
func (s *Stream) Stopped() <-chan struct{} {
	return s.gone
}

// Writer serializes events onto a transport.
type Writer interface {
	Write(Event) error
}

// Pump copies events from s to w until the stream closes. If w fails or ctx
// is canceled the stream is abandoned and Pump returns without waiting for
// the producer.
func Pump(ctx context.Context, s *Stream, w Writer) error {
	for {
		select {
		case <-ctx.Done():
			s.Abandon()
			return ctx.Err()
		case ev, ok := <-s.Events():
			if !ok {
				return nil
			}
			if err := w.Write(ev); err != nil {
				s.Abandon()
				return err
			}
		}
	}
}

// Collect drains the stream into a slice. Intended for callers that render
// after the fact, such as the CLI and tests.
func Collect(s *Stream) []Event {
	var out []Event
	for ev := range s.Events() {
		out = append(out, ev)
	}
	return out
}
