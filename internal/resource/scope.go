// Package resource acquires the disposable resources a postgres instance
// needs (data directory, socket directory, port reservation) and tracks
// their release.
//
// Every acquisition goes through a Scope. A Scope releases what it holds in
// reverse acquisition order, exactly once, whether the caller closes it on
// the error path of Start or much later from Stop.
package resource

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

type release struct {
	name string
	fn   func() error
}

// Scope is a stack of release actions.
type Scope struct {
	log zerolog.Logger

	mu       sync.Mutex
	releases []release
	closed   bool
}

// NewScope returns an empty scope that logs release failures to log.
func NewScope(log zerolog.Logger) *Scope {
	return &Scope{log: log}
}

// Defer pushes a release action. If the scope is already closed the action
// runs immediately.
func (s *Scope) Defer(name string, fn func() error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if err := fn(); err != nil {
			s.log.Warn().Err(err).Str("resource", name).Msg("release failed")
		}
		return
	}
	s.releases = append(s.releases, release{name: name, fn: fn})
	s.mu.Unlock()
}

// Len reports how many release actions are pending.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.releases)
}

// Close runs all pending release actions, newest first. Failures are logged
// and joined into the returned error; every action runs regardless. Calling
// Close again does nothing.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	releases := s.releases
	s.releases = nil
	s.mu.Unlock()

	var errs []error
	for i := len(releases) - 1; i >= 0; i-- {
		r := releases[i]
		if err := r.fn(); err != nil {
			s.log.Warn().Err(err).Str("resource", r.name).Msg("release failed")
			errs = append(errs, fmt.Errorf("releasing %s: %w", r.name, err))
		}
	}
	return errors.Join(errs...)
}
