package logincapture

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIdentifier = "ab1xyz5cd"
	testSecret     = "hunter2-secret"
)

func TestLoginCompletesWithoutProfileStep(t *testing.T) {
	page := newFakePage(t)
	sink := &captureSink{}
	c := newTestClient(t, sink, &fakeLauncher{name: "fake", page: page})

	out := c.Login(context.Background(), testIdentifier, testSecret)

	assert.Equal(t, Completed, out.Status)
	assert.NoError(t, out.Err)
	assert.Equal(t, []string{LabelCredentials, LabelPostLogin}, out.Labels())
	assert.Zero(t, out.Placeholders())
	assert.Equal(t, []State{
		StateInit, StateNavigated, StateFormReady, StateCredentialsEntered,
		StatePasswordRevealed, StateSubmitted, StatePostLogin, StateNoProfileStep, StateDone,
	}, out.States)
	assert.Equal(t, 1, page.Closes())
	assert.Equal(t, []string{testIdentifier, testSecret}, page.typed)
	assert.True(t, page.called("click "+selToggle))
	assert.True(t, page.called("click "+selSubmit))
	assert.False(t, page.called("eval "), "scripted fallbacks must not run when controls resolve")

	for _, rec := range out.Records {
		assert.Equal(t, "fake", rec.Engine)
		assert.NotEmpty(t, rec.Image)
		assert.Equal(t, fixedNow, rec.CapturedAt)
	}
}

func TestLoginSelectsProfileWhenPresent(t *testing.T) {
	page := newFakePage(t)
	page.profileLinks = 2
	c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: page})

	out := c.Login(context.Background(), testIdentifier, testSecret)

	assert.Equal(t, Completed, out.Status)
	assert.Equal(t, []string{LabelCredentials, LabelPostLogin, LabelProfile}, out.Labels())
	assert.Contains(t, out.States, StateProfileSelected)
	assert.NotContains(t, out.States, StateNoProfileStep)
}

func TestLoginProfileClickFailureSkipsProfileCapture(t *testing.T) {
	page := newFakePage(t)
	page.profileLinks = 1
	page.clickErr[selProfile] = errors.New("detached")
	c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: page})

	out := c.Login(context.Background(), testIdentifier, testSecret)

	assert.Equal(t, Completed, out.Status)
	assert.Equal(t, []string{LabelCredentials, LabelPostLogin}, out.Labels())
	assert.Contains(t, out.States, StateNoProfileStep)
}

func TestLoginRevealFallsBackToScript(t *testing.T) {
	page := newFakePage(t)
	delete(page.present, selToggle)
	c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: page})

	out := c.Login(context.Background(), testIdentifier, testSecret)

	assert.Equal(t, Completed, out.Status)
	assert.Contains(t, out.States, StatePasswordRevealed)
	assert.True(t, page.called("eval "+revealScript))
}

func TestLoginRevealSkippedWhenScriptReportsFalse(t *testing.T) {
	page := newFakePage(t)
	delete(page.present, selToggle)
	page.evalFn = func(script string) (any, error) {
		if script == revealScript {
			return false, nil
		}
		return true, nil
	}
	c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: page})

	out := c.Login(context.Background(), testIdentifier, testSecret)

	assert.Equal(t, Completed, out.Status)
	assert.Contains(t, out.States, StateRevealSkipped)
	assert.NotContains(t, out.States, StatePasswordRevealed)
}

func TestLoginSubmitFallsBackToScript(t *testing.T) {
	page := newFakePage(t)
	delete(page.present, selSubmit)
	c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: page})

	out := c.Login(context.Background(), testIdentifier, testSecret)

	assert.Equal(t, Completed, out.Status)
	assert.True(t, page.called("eval "+submitScript))
	assert.Equal(t, []string{LabelCredentials, LabelPostLogin}, out.Labels())
}

func TestLoginSubmitFailureIsPartial(t *testing.T) {
	page := newFakePage(t)
	delete(page.present, selSubmit)
	page.evalFn = func(script string) (any, error) {
		if script == submitScript {
			return nil, errors.New("TypeError: cannot read properties of null")
		}
		return true, nil
	}
	c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: page})

	out := c.Login(context.Background(), testIdentifier, testSecret)

	assert.Equal(t, PartiallyCompleted, out.Status)
	assert.Equal(t, []string{LabelCredentials, LabelLoginError}, out.Labels())
	assert.NotContains(t, out.States, StateSubmitted)
	assert.ErrorIs(t, out.Err, ErrActionFailed)
	assert.ErrorIs(t, out.Err, ErrNotFound)
	assert.Equal(t, 1, page.Closes())
}

func TestLoginFillFailureIsPartial(t *testing.T) {
	page := newFakePage(t)
	c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: &clearFailPage{fakePage: page}})

	out := c.Login(context.Background(), testIdentifier, testSecret)

	assert.Equal(t, PartiallyCompleted, out.Status)
	assert.Equal(t, []string{LabelLoginError}, out.Labels())
	assert.ErrorIs(t, out.Err, ErrActionFailed)
	assert.Equal(t, 1, page.Closes())
}

// clearFailPage hands out elements whose Clear always fails.
type clearFailPage struct {
	*fakePage
}

func (p *clearFailPage) Find(ctx context.Context, kind SelectorKind, selector string) (Element, error) {
	el, err := p.fakePage.Find(ctx, kind, selector)
	if err != nil {
		return nil, err
	}
	return clearFailElement{el}, nil
}

type clearFailElement struct {
	Element
}

func (clearFailElement) Clear(context.Context) error { return errors.New("element is read-only") }

func TestLoginPanicReleasesSessionAndIsPartial(t *testing.T) {
	page := newFakePage(t)
	page.typePanic = true
	c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: page})

	var out FlowOutcome
	require.NotPanics(t, func() {
		out = c.Login(context.Background(), testIdentifier, testSecret)
	})

	assert.Equal(t, PartiallyCompleted, out.Status)
	assert.Equal(t, []string{LabelLoginError}, out.Labels())
	assert.ErrorContains(t, out.Err, "renderer crashed")
	assert.Equal(t, 1, page.Closes())
}

func TestLoginEngineUnavailableDegrades(t *testing.T) {
	launchers := []Launcher{
		&fakeLauncher{name: "first", err: errors.New("driver missing")},
		&fakeLauncher{name: "second", err: errors.New("no chrome")},
	}
	sink := &captureSink{}
	c := newTestClient(t, sink, launchers...)

	out := c.Login(context.Background(), testIdentifier, testSecret)

	assert.Equal(t, SetupFailed, out.Status)
	assert.ErrorIs(t, out.Err, ErrEngineUnavailable)
	assert.ErrorContains(t, out.Err, "driver missing")
	assert.ErrorContains(t, out.Err, "no chrome")
	assert.Equal(t, []string{LabelPreLoginFallback, LabelPostLogin}, out.Labels())
	assert.Equal(t, 2, out.Placeholders())
	assert.Equal(t, []State{StateInit, StateAborted}, out.States)

	notes := strings.Join(out.Records[0].Notes, "\n")
	assert.Contains(t, notes, "Email: ab1***5cd")
	assert.Contains(t, notes, "Password: ********")
	assert.Contains(t, notes, "Timestamp: 02-01-2024 08:34:05 PM IST")
	assert.Equal(t, "Running in cloud environment", out.Records[1].Notes[1])

	for _, l := range launchers {
		assert.Equal(t, 1, l.(*fakeLauncher).Launches())
	}
	assertNoSecret(t, out, sink)
}

func TestLoginFormMissingIsSetupFailure(t *testing.T) {
	page := newFakePage(t)
	delete(page.present, selIdentifier)
	c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: page})

	out := c.Login(context.Background(), testIdentifier, testSecret)

	assert.Equal(t, SetupFailed, out.Status)
	assert.ErrorIs(t, out.Err, ErrNotFound)
	assert.Equal(t, []string{LabelPreLoginFallback, LabelPostLogin}, out.Labels())
	assert.Equal(t, []State{StateInit, StateNavigated, StateAborted}, out.States)
	assert.Equal(t, 1, page.Closes())
}

func TestLoginNavigationFailureIsSetupFailure(t *testing.T) {
	page := newFakePage(t)
	page.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: page})

	out := c.Login(context.Background(), testIdentifier, testSecret)

	assert.Equal(t, SetupFailed, out.Status)
	assert.ErrorIs(t, out.Err, ErrNavigationTimeout)
	assert.Equal(t, 2, out.Placeholders())
	assert.Equal(t, 1, page.Closes())
}

func TestLoginScreenshotFailureStillRecords(t *testing.T) {
	page := newFakePage(t)
	page.shotErr = errors.New("target closed")
	c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: page})

	out := c.Login(context.Background(), testIdentifier, testSecret)

	assert.Equal(t, Completed, out.Status)
	require.Len(t, out.Records, 2)
	for _, rec := range out.Records {
		assert.True(t, rec.IsPlaceholder)
		assert.NotEmpty(t, rec.Image)
	}
	assert.Equal(t, "Login page with credentials screenshot unavailable", out.Records[0].Notes[0])
	assert.Contains(t, out.Records[0].Notes, "Email: ab1***5cd")
}

func TestLoginEventsCarryFlowIdentity(t *testing.T) {
	page := newFakePage(t)
	sink := &captureSink{}
	c := newTestClient(t, sink, &fakeLauncher{name: "fake", page: page})

	out := c.Login(context.Background(), testIdentifier, testSecret)

	events := sink.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, EventFlowStarted, events[0].Type)
	assert.Equal(t, EventFlowFinished, events[len(events)-1].Type)
	for _, e := range events {
		assert.Equal(t, out.ID, e.FlowID, e.Type)
		assert.NotEmpty(t, e.ID)
	}
	assert.Len(t, sink.OfType(EventCheckpoint), len(out.Records))
	assert.Len(t, sink.OfType(EventSessionRelease), 1)
	assertNoSecret(t, out, sink)
}

func TestHomepageCapture(t *testing.T) {
	page := newFakePage(t)
	c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: page})

	out := c.CaptureHomepage(context.Background())

	assert.Equal(t, Completed, out.Status)
	assert.Equal(t, []string{LabelHomepage}, out.Labels())
	assert.Equal(t, []State{StateInit, StateNavigated, StateDone}, out.States)
	assert.True(t, page.called("navigate "+DefaultHomeURL))
	assert.Equal(t, 1, page.Closes())
}

func TestHomepageEngineUnavailable(t *testing.T) {
	c := newTestClient(t, nil, &fakeLauncher{name: "fake", err: errors.New("boom")})

	out := c.CaptureHomepage(context.Background())

	assert.Equal(t, SetupFailed, out.Status)
	require.Len(t, out.Records, 1)
	assert.Equal(t, LabelHomepage, out.Records[0].Label)
	assert.True(t, out.Records[0].IsPlaceholder)
	assert.Equal(t, "Netflix screenshot unavailable in cloud environment", out.Records[0].Notes[0])
}

func TestFlowsRunConcurrentlyWithIndependentSessions(t *testing.T) {
	home, login := newFakePage(t), newFakePage(t)
	pages := make(chan Page, 2)
	pages <- home
	pages <- login
	c := newTestClient(t, nil, launcherFunc(func(context.Context) (Page, error) { return <-pages, nil }))

	done := make(chan FlowOutcome, 2)
	go func() { done <- c.CaptureHomepage(context.Background()) }()
	go func() { done <- c.Login(context.Background(), testIdentifier, testSecret) }()

	for i := 0; i < 2; i++ {
		out := <-done
		assert.Equal(t, Completed, out.Status, out.Kind)
	}
	assert.Equal(t, 1, home.Closes())
	assert.Equal(t, 1, login.Closes())
}

type launcherFunc func(context.Context) (Page, error)

func (launcherFunc) Name() string { return "func" }

func (f launcherFunc) Launch(ctx context.Context, _ LaunchOptions) (Page, error) { return f(ctx) }

func assertNoSecret(t *testing.T, out FlowOutcome, sink *captureSink) {
	t.Helper()
	for _, rec := range out.Records {
		for _, n := range rec.Notes {
			assert.NotContains(t, n, testSecret)
			assert.NotContains(t, n, testIdentifier)
		}
	}
	if out.Err != nil {
		assert.NotContains(t, out.Err.Error(), testSecret)
	}
	if sink != nil {
		data, err := json.Marshal(sink.Events())
		require.NoError(t, err)
		assert.NotContains(t, string(data), testSecret)
		assert.NotContains(t, string(data), testIdentifier)
	}
}

func TestLoginScreenshotPanicFallsBackToPlaceholder(t *testing.T) {
	page := newFakePage(t)
	page.shotPanic = true
	c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: page})

	var out FlowOutcome
	require.NotPanics(t, func() {
		out = c.Login(context.Background(), testIdentifier, testSecret)
	})

	assert.Equal(t, Completed, out.Status)
	assert.Equal(t, []string{LabelCredentials, LabelPostLogin}, out.Labels())
	for _, rec := range out.Records {
		assert.True(t, rec.IsPlaceholder)
		assert.NotEmpty(t, rec.Image)
	}
	assert.Equal(t, 1, page.Closes())
}

func TestLoginStepPanicWithBrokenScreenshotsStillRecords(t *testing.T) {
	page := newFakePage(t)
	page.typePanic = true
	page.shotPanic = true
	c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: page})

	var out FlowOutcome
	require.NotPanics(t, func() {
		out = c.Login(context.Background(), testIdentifier, testSecret)
	})

	assert.Equal(t, PartiallyCompleted, out.Status)
	require.Equal(t, []string{LabelLoginError}, out.Labels())
	assert.True(t, out.Records[0].IsPlaceholder)
	assert.NotEmpty(t, out.Records[0].Image)
	assert.False(t, page.called("screenshot"), "error state is never shot from a panicking page")
	assert.Equal(t, 1, page.Closes())
}

func TestLoginNavigationPanicIsSetupFailure(t *testing.T) {
	page := newFakePage(t)
	page.navPanic = true
	c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: page})

	var out FlowOutcome
	require.NotPanics(t, func() {
		out = c.Login(context.Background(), testIdentifier, testSecret)
	})

	assert.Equal(t, SetupFailed, out.Status)
	assert.ErrorContains(t, out.Err, "navigation crashed")
	assert.Equal(t, []string{LabelPreLoginFallback, LabelPostLogin}, out.Labels())
	assert.Equal(t, []State{StateInit, StateAborted}, out.States)
	assert.Equal(t, 1, page.Closes())
}

func TestHomepagePanicsAreContained(t *testing.T) {
	t.Run("navigation", func(t *testing.T) {
		page := newFakePage(t)
		page.navPanic = true
		c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: page})

		var out FlowOutcome
		require.NotPanics(t, func() { out = c.CaptureHomepage(context.Background()) })

		assert.Equal(t, SetupFailed, out.Status)
		require.Equal(t, []string{LabelHomepage}, out.Labels())
		assert.True(t, out.Records[0].IsPlaceholder)
	})

	t.Run("screenshot", func(t *testing.T) {
		page := newFakePage(t)
		page.shotPanic = true
		c := newTestClient(t, nil, &fakeLauncher{name: "fake", page: page})

		var out FlowOutcome
		require.NotPanics(t, func() { out = c.CaptureHomepage(context.Background()) })

		assert.Equal(t, Completed, out.Status)
		require.Equal(t, []string{LabelHomepage}, out.Labels())
		assert.True(t, out.Records[0].IsPlaceholder)
		assert.Equal(t, 1, page.Closes())
	})
}
