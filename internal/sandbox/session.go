package sandbox

import (
	"context"
	"errors"
	"fmt"

	"adorable/internal/files"
	"adorable/internal/logging"
	"adorable/internal/robustness"
)

// Session owns one project's sandbox for the duration of a request. When
// the recorded sandbox is gone it provisions a replacement from the last
// known file set.
type Session struct {
	adapter  Adapter
	breaker  *robustness.CircuitBreaker
	handle   *Handle
	last     files.FileSet
	attached bool
}

// NewSession creates a session. handle may be nil for a project that has
// no sandbox yet; last is the file set to restore on re-provisioning.
func NewSession(adapter Adapter, breaker *robustness.CircuitBreaker, handle *Handle, last files.FileSet) *Session {
	s := &Session{
		adapter: adapter,
		breaker: breaker,
		last:    last.Clone(),
	}
	if handle != nil {
		h := *handle
		s.handle = &h
	}
	return s
}

// Handle returns the current sandbox handle, or nil.
func (s *Session) Handle() *Handle {
	if s.handle == nil {
		return nil
	}
	h := *s.handle
	return &h
}

// Start provisions a new sandbox serving set.
func (s *Session) Start(ctx context.Context, set files.FileSet) (Handle, error) {
	var h Handle
	provision := func() error {
		var err error
		h, err = s.adapter.Provision(ctx)
		return err
	}
	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(ctx, provision)
	} else {
		err = provision()
	}
	if err != nil {
		return Handle{}, fmt.Errorf("provision: %w", err)
	}

	if err := s.adapter.WriteFiles(ctx, h, set); err != nil {
		return Handle{}, err
	}
	if err := s.adapter.InstallDependencies(ctx, h); err != nil {
		return Handle{}, err
	}
	if err := s.adapter.StartServer(ctx, h); err != nil {
		return Handle{}, err
	}

	s.handle = &h
	s.last = set.Clone()
	s.attached = true
	return h, nil
}

// Attach connects to the recorded sandbox. If it cannot be reached a new
// one is provisioned from the last known set. Both failing yields an
// *UnavailableError.
func (s *Session) Attach(ctx context.Context) (Handle, error) {
	if s.attached && s.handle != nil {
		return *s.handle, nil
	}

	var prev string
	if s.handle != nil {
		prev = s.handle.ID
		h, err := s.adapter.Connect(ctx, *s.handle)
		if err == nil {
			s.handle = &h
			s.attached = true
			return h, nil
		}
		if ctx.Err() != nil {
			return Handle{}, ctx.Err()
		}
		if errors.Is(err, ErrNotFound) {
			logging.Info("sandbox gone, provisioning replacement", "sandbox", prev)
		} else {
			logging.Warn("sandbox connect failed, provisioning replacement", "sandbox", prev, "error", err)
		}
	}

	h, err := s.Start(ctx, s.last)
	if err != nil {
		if ctx.Err() != nil {
			return Handle{}, ctx.Err()
		}
		return Handle{}, &UnavailableError{ID: prev, Err: err}
	}
	return h, nil
}

// Write replaces the sandbox contents with set without recording it as
// the last known set. Used for candidates that may be discarded.
func (s *Session) Write(ctx context.Context, set files.FileSet) error {
	h, err := s.Attach(ctx)
	if err != nil {
		return err
	}
	return s.adapter.WriteFiles(ctx, h, set)
}

// Build runs the production build in the attached sandbox.
func (s *Session) Build(ctx context.Context) (BuildResult, error) {
	h, err := s.Attach(ctx)
	if err != nil {
		return BuildResult{}, err
	}
	return s.adapter.RunBuild(ctx, h)
}

// Refresh writes set as the new last known set. When the adapter can tell
// the preview server is down, dependencies are reinstalled and the server
// restarted.
func (s *Session) Refresh(ctx context.Context, set files.FileSet) (Handle, error) {
	h, err := s.Attach(ctx)
	if err != nil {
		return Handle{}, err
	}
	if err := s.adapter.WriteFiles(ctx, h, set); err != nil {
		return Handle{}, err
	}
	s.last = set.Clone()

	checker, ok := s.adapter.(ServerChecker)
	if !ok {
		return h, nil
	}
	running, err := checker.ServerRunning(ctx, h)
	if err != nil {
		logging.Warn("preview port check failed", "sandbox", h.ID, "error", err)
		return h, nil
	}
	if running {
		return h, nil
	}

	logging.Info("dev server not running, restarting", "sandbox", h.ID)
	if err := s.adapter.InstallDependencies(ctx, h); err != nil {
		return h, err
	}
	if err := s.adapter.StartServer(ctx, h); err != nil {
		return h, err
	}
	return h, nil
}
