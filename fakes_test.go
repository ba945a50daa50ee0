package logincapture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	selIdentifier = "#id"
	selSecret     = "#pw"
	selToggle     = "#toggle"
	selSubmit     = "#submit"
	selProfile    = "a.profile"
	revealScript  = "reveal()"
	submitScript  = "submit()"
)

// fixedNow is 2024-01-02 15:04:05 UTC, 08:34:05 PM in Asia/Kolkata.
var fixedNow = time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func discardLogger() *zap.Logger {
	return zap.NewNop()
}

func testPNG(t testing.TB, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// testCatalog mirrors the shape of DefaultCatalog with short waits.
func testCatalog() Catalog {
	wait := 20 * time.Millisecond
	return Catalog{
		Identifier:   NewLocatorSpec("identifier", Query(selIdentifier, wait)),
		Secret:       NewLocatorSpec("secret", Query(selSecret, wait)),
		RevealToggle: NewLocatorSpec("reveal_toggle", Query("#missing-toggle", wait), Query(selToggle, wait)),
		Submit:       NewLocatorSpec("submit", XPath("//button[@id='missing']", wait), Query(selSubmit, wait)),
		ProfileLink:  selProfile,
		RevealScript: revealScript,
		SubmitScript: submitScript,
	}
}

type fakePage struct {
	mu sync.Mutex

	present      map[string]bool
	profileLinks int
	shot         []byte
	shotErr      error
	navErr       error
	clickErr     map[string]error
	typePanic    bool
	navPanic     bool
	shotPanic    bool
	evalFn       func(script string) (any, error)

	calls  []string
	typed  []string
	closes int
}

func newFakePage(t testing.TB) *fakePage {
	return &fakePage{
		present: map[string]bool{
			selIdentifier: true,
			selSecret:     true,
			selToggle:     true,
			selSubmit:     true,
		},
		shot:     testPNG(t, 64, 48, color.White),
		clickErr: map[string]error{},
	}
}

func (p *fakePage) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

func (p *fakePage) called(prefix string) bool {
	for _, c := range p.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.record("navigate " + url)
	if p.navPanic {
		panic("navigation crashed")
	}
	return p.navErr
}

func (p *fakePage) Find(ctx context.Context, kind SelectorKind, selector string) (Element, error) {
	p.record("find " + selector)
	p.mu.Lock()
	ok := p.present[selector]
	p.mu.Unlock()
	if ok {
		return &fakeElement{page: p, selector: selector}, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (p *fakePage) FindAll(ctx context.Context, selector string) ([]Element, error) {
	p.record("findall " + selector)
	els := make([]Element, p.profileLinks)
	for i := range els {
		els[i] = &fakeElement{page: p, selector: selector}
	}
	return els, nil
}

func (p *fakePage) Eval(ctx context.Context, script string) (any, error) {
	p.record("eval " + script)
	if p.evalFn != nil {
		return p.evalFn(script)
	}
	return true, nil
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	p.record("screenshot")
	if p.shotPanic {
		panic("compositor crashed")
	}
	if p.shotErr != nil {
		return nil, p.shotErr
	}
	return p.shot, nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	p.closes++
	p.mu.Unlock()
	return errors.New("browser already gone")
}

type fakeElement struct {
	page     *fakePage
	selector string
}

func (e *fakeElement) Click(ctx context.Context) error {
	e.page.record("click " + e.selector)
	return e.page.clickErr[e.selector]
}

func (e *fakeElement) Clear(ctx context.Context) error {
	e.page.record("clear " + e.selector)
	return nil
}

func (e *fakeElement) Type(ctx context.Context, text string) error {
	e.page.record("type " + e.selector)
	if e.page.typePanic {
		panic("renderer crashed")
	}
	e.page.mu.Lock()
	e.page.typed = append(e.page.typed, text)
	e.page.mu.Unlock()
	return nil
}

type fakeLauncher struct {
	name     string
	page     Page
	err      error
	mu       sync.Mutex
	launches int
}

func (l *fakeLauncher) Name() string { return l.name }

func (l *fakeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	l.mu.Lock()
	l.launches++
	l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return l.page, nil
}

func (l *fakeLauncher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// captureSink records every event it receives.
type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Emit(_ context.Context, evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *captureSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *captureSink) OfType(typ string) []Event {
	var out []Event
	for _, e := range s.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func newTestClient(t testing.TB, sink EventSink, launchers ...Launcher) *Client {
	t.Helper()
	opts := []Option{
		WithLaunchers(launchers...),
		WithClock(fixedClock),
		WithLogger(discardLogger()),
		WithCatalog(testCatalog()),
	}
	if sink != nil {
		opts = append(opts, WithEventSink(sink))
	}
	c, err := New(Config{}, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}
