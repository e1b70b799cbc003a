// Package stream turns file change notifications into push events for long
// lived client connections.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/taskboard/internal/watch"
)

// ErrSkip tells a session to send nothing for this read.
var ErrSkip = errors.New("skip snapshot")

// ErrClientGone wraps a failed write or flush to the client. Once it is
// returned the response is unusable.
var ErrClientGone = errors.New("client gone")

// SnapshotFunc reads the watched file and returns the payload to push.
// Errors are logged and the read is skipped; they never end the session.
type SnapshotFunc func(ctx context.Context) (any, error)

// Session is one live subscription: an initial snapshot followed by a fresh
// snapshot after every change notification for its path.
type Session struct {
	ID   string
	Path string

	sub      *watch.Subscription
	snapshot SnapshotFunc
	sink     Sink
	log      *slog.Logger
	mgr      *Manager

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// Run forwards change notifications until the context is cancelled, the
// subscription ends or the client stops accepting writes. It always
// releases the session before returning.
func (s *Session) Run() error {
	defer s.Cancel()

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case _, ok := <-s.sub.C():
			if !ok {
				return nil
			}
			if err := s.push(); err != nil {
				return err
			}
		}
	}
}

// Cancel stops the session and unsubscribes from the registry. Repeated
// calls are no-ops.
func (s *Session) Cancel() {
	s.once.Do(func() {
		s.cancel()
		s.sub.Close()
		s.mgr.remove(s)
		s.log.Debug("stream session closed", "session", s.ID, "path", s.Path)
	})
}

// Done is closed once the session has been cancelled.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// push reads, encodes and writes one event. Only a failed write is
// returned: it means the client is gone.
func (s *Session) push() error {
	payload, err := s.snapshot(s.ctx)
	if err != nil {
		if !errors.Is(err, ErrSkip) && s.ctx.Err() == nil {
			s.log.Warn("snapshot read failed", "session", s.ID, "path", s.Path, "error", err)
		}
		return nil
	}

	event, err := Encode(payload)
	if err != nil {
		s.log.Warn("snapshot encode failed", "session", s.ID, "path", s.Path, "error", err)
		return nil
	}

	if _, err := s.sink.Write(event); err != nil {
		return fmt.Errorf("write event: %w: %w", ErrClientGone, err)
	}
	if err := s.sink.Flush(); err != nil {
		return fmt.Errorf("flush event: %w: %w", ErrClientGone, err)
	}
	return nil
}

func newSessionID() string { return ulid.Make().String() }
