package logincapture

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is a login flow state. RevealSkipped and NoProfileStep are ordinary
// transitions, not errors.
type State string

const (
	StateInit               State = "init"
	StateNavigated          State = "navigated"
	StateFormReady          State = "form_ready"
	StateCredentialsEntered State = "credentials_entered"
	StatePasswordRevealed   State = "password_revealed"
	StateRevealSkipped      State = "reveal_skipped"
	StateSubmitted          State = "submitted"
	StatePostLogin          State = "post_login"
	StateProfileSelected    State = "profile_selected"
	StateNoProfileStep      State = "no_profile_step"
	StateDone               State = "done"
	StateAborted            State = "aborted"
)

// flow carries the per-invocation state shared by both flows.
type flow struct {
	c       *Client
	rec     *Recorder
	events  *flowSink
	logger  *zap.Logger
	session *Session
	out     FlowOutcome
}

func (c *Client) newFlow(kind FlowKind) *flow {
	id := uuid.NewString()
	logger := c.logger.With(zap.String("flow_id", id), zap.String("flow", string(kind)))
	sink := &flowSink{inner: c.events, flowID: id, now: c.now}
	return &flow{
		c:      c,
		rec:    NewRecorder(c.imaging, c.now, c.loc, logger, sink),
		events: sink,
		logger: logger,
		out: FlowOutcome{
			ID:     id,
			Kind:   kind,
			States: []State{StateInit},
		},
	}
}

func (f *flow) bind(s *Session) {
	f.session = s
	f.events.sessionID = s.ID
}

func (f *flow) page() Page {
	if f.session == nil {
		return nil
	}
	return f.session.Page()
}

func (f *flow) engine() string {
	if f.session == nil {
		return ""
	}
	return f.session.Engine
}

func (f *flow) state() State {
	return f.out.States[len(f.out.States)-1]
}

func (f *flow) transition(ctx context.Context, s State) {
	from := f.state()
	f.out.States = append(f.out.States, s)
	f.logger.Debug("state transition", zap.String("from", string(from)), zap.String("to", string(s)))
	f.events.Emit(ctx, Event{Type: EventTransition, State: string(s), Fields: map[string]any{"from": string(from)}})
}

func (f *flow) capture(ctx context.Context, label string, notes ...string) {
	f.out.Records = append(f.out.Records, f.rec.Capture(ctx, f.page(), f.engine(), label, notes...))
}

// abort ends the flow as SetupFailed with the degradation placeholder set.
func (f *flow) abort(ctx context.Context, err error, dc DegradeContext) {
	f.logger.Warn("flow aborted, emitting placeholders", zap.String("state", string(f.state())), zap.Error(err))
	f.transition(ctx, StateAborted)
	f.out.Status = SetupFailed
	f.out.Err = err
	f.out.Records = append(f.out.Records, f.rec.PlaceholderSet(ctx, dc)...)
}

// fail ends the flow as PartiallyCompleted after recording the error state.
func (f *flow) fail(ctx context.Context, err error, notes ...string) {
	f.logger.Warn("flow step failed", zap.String("state", string(f.state())), zap.Error(err))
	f.out.Err = err
	f.capture(ctx, LabelLoginError, notes...)
	f.out.Status = PartiallyCompleted
}

// inSetup reports whether the flow has not yet reached a page it can act on.
func (f *flow) inSetup() bool {
	switch f.state() {
	case StateInit:
		return true
	case StateNavigated:
		return f.out.Kind == FlowLogin
	}
	return false
}

// recoverStep converts a panic in a step into an outcome: SetupFailed while
// the flow is still setting up, PartiallyCompleted afterwards. The error
// record is always a placeholder since the page may be what panicked. The
// session is still released by withSession.
func (f *flow) recoverStep(ctx context.Context, label string, dc DegradeContext) {
	r := recover()
	if r == nil {
		return
	}
	state := f.state()
	f.logger.Error("flow step panicked", zap.String("state", string(state)), zap.Any("panic", r))
	err := fmt.Errorf("flow panicked in state %s: %v", state, r)
	if f.inSetup() {
		f.abort(ctx, err, dc)
		return
	}
	f.out.Err = err
	f.out.Records = append(f.out.Records, f.rec.Capture(ctx, nil, f.engine(), label))
	f.out.Status = PartiallyCompleted
}

func (f *flow) finish(ctx context.Context) FlowOutcome {
	if len(f.out.Records) == 0 {
		// Every path above records something; keep the contract regardless.
		f.out.Records = f.rec.PlaceholderSet(ctx, DegradeContext{Kind: f.out.Kind})
		if f.out.Status == Completed {
			f.out.Status = PartiallyCompleted
		}
	}
	recordFlow(f.out.Kind, f.out.Status)
	f.events.Emit(ctx, Event{Type: EventFlowFinished, Fields: map[string]any{
		"status":       f.out.Status.String(),
		"records":      len(f.out.Records),
		"placeholders": f.out.Placeholders(),
	}})
	f.logger.Info("flow finished", zap.String("status", f.out.Status.String()), zap.Int("records", len(f.out.Records)))
	return f.out
}

// resolve runs the locator chain and reports every attempt.
func (f *flow) resolve(ctx context.Context, spec LocatorSpec) (Element, error) {
	el, strat, err := Resolve(ctx, f.page(), spec, func(a Attempt) {
		recordAttempt(spec.Name(), a.Err)
		f.events.Emit(ctx, Event{Type: EventTacticAttempt, Tactic: a.Name, Fields: map[string]any{
			"target":     spec.Name(),
			"elapsed_ms": a.Elapsed.Milliseconds(),
			"ok":         a.Err == nil,
		}})
	})
	if err != nil {
		return nil, err
	}
	f.logger.Debug("locator resolved", zap.String("target", spec.Name()), zap.String("strategy", strat.String()))
	return el, nil
}

func (f *flow) runHomepage(ctx context.Context) {
	defer f.recoverStep(ctx, LabelHomepage, DegradeContext{Kind: FlowHomepage})

	cfg := f.c.cfg
	if err := f.session.Navigate(ctx, cfg.HomeURL, cfg.NavigationTimeout); err != nil {
		f.abort(ctx, err, DegradeContext{Kind: FlowHomepage})
		return
	}
	f.transition(ctx, StateNavigated)

	_ = sleepCtx(ctx, cfg.HomeSettle)
	f.capture(ctx, LabelHomepage)
	f.transition(ctx, StateDone)
	f.out.Status = Completed
}

func (f *flow) runLogin(ctx context.Context, creds Credentials) {
	cfg, cat := f.c.cfg, f.c.catalog
	dc := DegradeContext{Kind: FlowLogin, Identifier: creds.Identifier}
	defer f.recoverStep(ctx, LabelLoginError, dc)

	notes := []string{"Email: " + creds.Masked(), "Password: " + secretMask}

	if err := f.session.Navigate(ctx, cfg.LoginURL, cfg.NavigationTimeout); err != nil {
		f.abort(ctx, err, dc)
		return
	}
	f.transition(ctx, StateNavigated)

	// Without the form nothing further is meaningful, so this counts as setup
	// failure.
	idField, err := f.resolve(ctx, cat.Identifier)
	if err != nil {
		f.abort(ctx, err, dc)
		return
	}
	secretField, err := f.resolve(ctx, cat.Secret)
	if err != nil {
		f.abort(ctx, err, dc)
		return
	}
	f.transition(ctx, StateFormReady)

	page := f.page()
	if err := Act(ctx, page, idField, Fill(creds.Identifier)); err != nil {
		f.fail(ctx, err, notes...)
		return
	}
	if err := Act(ctx, page, secretField, Fill(creds.Secret)); err != nil {
		f.fail(ctx, err, notes...)
		return
	}
	f.transition(ctx, StateCredentialsEntered)
	f.capture(ctx, LabelCredentials, notes...)

	f.transition(ctx, f.reveal(ctx))

	if err := f.submit(ctx); err != nil {
		f.fail(ctx, err, notes...)
		return
	}
	f.transition(ctx, StateSubmitted)

	_ = sleepCtx(ctx, cfg.PostLoginSettle)
	f.transition(ctx, StatePostLogin)
	f.capture(ctx, LabelPostLogin)

	if f.selectProfile(ctx) {
		f.transition(ctx, StateProfileSelected)
		f.capture(ctx, LabelProfile)
	} else {
		f.transition(ctx, StateNoProfileStep)
	}

	f.transition(ctx, StateDone)
	f.out.Status = Completed
}

// reveal is best-effort: toggle chain first, then the scripted mutation.
func (f *flow) reveal(ctx context.Context) State {
	cfg, cat, page := f.c.cfg, f.c.catalog, f.page()

	toggle, err := f.resolve(ctx, cat.RevealToggle)
	if err == nil {
		if err = Act(ctx, page, toggle, Click()); err == nil {
			_ = sleepCtx(ctx, cfg.RevealSettle)
			return StatePasswordRevealed
		}
	}
	f.logger.Debug("reveal toggle unavailable, trying script", zap.Error(err))

	if err := Act(ctx, page, nil, RunScript(cat.RevealScript)); err != nil {
		f.logger.Info("password reveal skipped", zap.Error(err))
		return StateRevealSkipped
	}
	_ = sleepCtx(ctx, cfg.RevealSettle)
	return StatePasswordRevealed
}

// submit activates the submit control, falling back to a scripted click.
func (f *flow) submit(ctx context.Context) error {
	cat, page := f.c.catalog, f.page()

	button, err := f.resolve(ctx, cat.Submit)
	if err == nil {
		if err = Act(ctx, page, button, Click()); err == nil {
			return nil
		}
	}
	f.logger.Info("submit control unavailable, trying script", zap.Error(err))

	if serr := Act(ctx, page, nil, RunScript(cat.SubmitScript)); serr != nil {
		return errors.Join(err, serr)
	}
	return nil
}

// selectProfile clicks the first profile link if the page offers one.
func (f *flow) selectProfile(ctx context.Context) bool {
	cfg, cat, page := f.c.cfg, f.c.catalog, f.page()
	if cat.ProfileLink == "" || page == nil {
		return false
	}
	links, err := page.FindAll(ctx, cat.ProfileLink)
	if err != nil || len(links) == 0 {
		return false
	}
	if err := Act(ctx, page, links[0], Click()); err != nil {
		f.logger.Info("profile selection failed", zap.Error(err))
		return false
	}
	_ = sleepCtx(ctx, cfg.ProfileSettle)
	return true
}
