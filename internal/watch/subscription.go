package watch

// Subscription is one listener on a watched path.
//
// C carries at most one pending notification: changes that arrive while the
// previous one has not been consumed collapse into it, so a slow reader
// re-reads once and sees the latest content. C is closed when the
// subscription ends.
type Subscription struct {
	ID   string
	Path string

	c   chan struct{}
	reg *Registry
}

// C returns the notification channel.
func (s *Subscription) C() <-chan struct{} { return s.c }

// Close unsubscribes. Calling it more than once is a no-op.
func (s *Subscription) Close() { s.reg.Unsubscribe(s) }

func (s *Subscription) signal() {
	select {
	case s.c <- struct{}{}:
	default:
	}
}
