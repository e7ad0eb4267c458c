package scheduler

import "github.com/jdziat/simple-cron-jobs/pkg/core"

// Events returns a channel for receiving scheduler events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (s *Scheduler) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	s.busMu.Lock()
	s.subs = append(s.subs, ch)
	s.busMu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed; callers must stop reading before calling Unsubscribe.
// After Unsubscribe returns, no further events will be sent to the channel.
func (s *Scheduler) Unsubscribe(ch <-chan core.Event) {
	s.busMu.Lock()
	defer s.busMu.Unlock()
	for i, sub := range s.subs {
		if sub == ch {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers e to every listener, then to every subscriber channel.
// Full channels drop the event rather than block the scheduler.
func (s *Scheduler) Emit(e core.Event) {
	for _, l := range s.config.Listeners {
		l.Emit(e)
	}

	s.busMu.RLock()
	subs := make([]chan core.Event, len(s.subs))
	copy(subs, s.subs)
	s.busMu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}
