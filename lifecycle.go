package logincapture

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// acquire reserves a browser engine using the first launcher that succeeds.
// Launchers are tried in configured order, each bounded by AcquireTimeout.
func (c *Client) acquire(ctx context.Context, events EventSink) (*Session, error) {
	if len(c.launchers) == 0 {
		return nil, NewBrowserError(KindEngineUnavailable, "acquire", "no launchers configured")
	}

	opts := LaunchOptions{
		Headless:   c.cfg.Headless,
		Width:      c.cfg.WindowWidth,
		Height:     c.cfg.WindowHeight,
		ChromePath: c.cfg.ChromePath,
		Args:       DefaultLaunchArgs,
	}
	tactics := make([]Tactic[Page], len(c.launchers))
	for i, l := range c.launchers {
		l := l
		tactics[i] = Tactic[Page]{
			Name:    l.Name(),
			Timeout: c.cfg.AcquireTimeout,
			Try: func(ctx context.Context) (Page, error) {
				return l.Launch(ctx, opts)
			},
		}
	}

	page, idx, err := FirstSuccess(ctx, tactics, func(a Attempt) {
		recordAttempt("engine", a.Err)
		evt := Event{Type: EventTacticAttempt, Tactic: a.Name, Fields: map[string]any{
			"target":     "engine",
			"elapsed_ms": a.Elapsed.Milliseconds(),
			"ok":         a.Err == nil,
		}}
		if a.Err != nil {
			evt.Message = a.Err.Error()
			c.logger.Warn("engine launch failed", zap.String("engine", a.Name), zap.Error(a.Err))
		}
		events.Emit(ctx, evt)
	})
	if err != nil {
		return nil, WrapBrowserError(KindEngineUnavailable, "acquire", err)
	}

	s := &Session{
		ID:     uuid.NewString(),
		Engine: c.launchers[idx].Name(),
		page:   page,
		live:   true,
		logger: c.logger,
		events: events,
	}
	c.logger.Info("browser session acquired", zap.String("session_id", s.ID), zap.String("engine", s.Engine))
	events.Emit(ctx, Event{Type: EventSessionAcquire, SessionID: s.ID, Fields: map[string]any{"engine": s.Engine}})
	return s, nil
}

// withSession acquires a session, runs fn and releases the session on every
// exit path, panics included. Only acquisition errors are returned.
func (c *Client) withSession(ctx context.Context, events EventSink, fn func(*Session)) error {
	s, err := c.acquire(ctx, events)
	if err != nil {
		return err
	}
	defer s.Release()
	fn(s)
	return nil
}

// Page returns the live engine page, or nil after Release.
func (s *Session) Page() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Alive reports whether the session still owns an engine.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Navigate loads url, failing with a NavigationTimeout error when the page
// does not load within timeout.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	page := s.Page()
	if page == nil {
		return NewBrowserError(KindNavigationTimeout, "navigate", "session released")
	}
	nctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := page.Navigate(nctx, url); err != nil {
		return WrapBrowserError(KindNavigationTimeout, "navigate "+url, err)
	}
	s.mu.Lock()
	s.Target = url
	s.mu.Unlock()
	return nil
}

// Release cleanly closes the session. It is idempotent and never panics;
// teardown errors are logged and dropped.
func (s *Session) Release() {
	if s == nil {
		return
	}
	s.release.Do(func() {
		s.mu.Lock()
		page := s.page
		s.page = nil
		s.live = false
		s.mu.Unlock()

		if page == nil {
			return
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Warn("engine teardown panicked", zap.String("session_id", s.ID), zap.Any("panic", r))
				}
			}()
			if err := page.Close(); err != nil {
				s.logger.Warn("engine teardown failed", zap.String("session_id", s.ID), zap.String("engine", s.Engine), zap.Error(err))
			}
		}()
		s.logger.Info("browser session released", zap.String("session_id", s.ID), zap.String("engine", s.Engine))
		if s.events != nil {
			s.events.Emit(context.Background(), Event{Type: EventSessionRelease, SessionID: s.ID})
		}
	})
}
