package logincapture

import (
	"context"
	"fmt"
	"time"
)

// SelectorKind tells an engine how to dispatch a selector string. The chain
// never interprets the string itself.
type SelectorKind int

const (
	ByQuery SelectorKind = iota // structural (CSS) query
	ByXPath                     // path query
)

func (k SelectorKind) String() string {
	if k == ByXPath {
		return "xpath"
	}
	return "css"
}

// Page is the port every browser engine adapter implements. Blocking calls
// honour the context deadline.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Find waits until the target is present and interactable.
	Find(ctx context.Context, kind SelectorKind, selector string) (Element, error)
	// FindAll returns current matches for a structural query without waiting.
	FindAll(ctx context.Context, selector string) ([]Element, error)
	// Eval runs a function body (it may use return) in the page.
	Eval(ctx context.Context, script string) (any, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Element is a resolved UI element.
type Element interface {
	Click(ctx context.Context) error
	Clear(ctx context.Context) error
	Type(ctx context.Context, text string) error
}

// LaunchOptions are the engine settings shared by every launcher.
type LaunchOptions struct {
	Headless   bool
	Width      int
	Height     int
	ChromePath string
	Args       []string
}

// DefaultLaunchArgs are passed to every locally launched browser.
var DefaultLaunchArgs = []string{
	"--disable-gpu",
	"--no-sandbox",
	"--disable-dev-shm-usage",
}

// Launcher starts one engine instance. Implementations are tried in order
// until one succeeds.
type Launcher interface {
	Name() string
	Launch(ctx context.Context, opts LaunchOptions) (Page, error)
}

// remaining returns the time left before ctx's deadline, or fallback.
func remaining(ctx context.Context, fallback time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
		return time.Millisecond
	}
	return fallback
}

// awaitWithin runs call in the background and waits for it until ctx ends or,
// without a deadline, for fallback. A call still running afterwards is left
// to finish on its own.
func awaitWithin[T any](ctx context.Context, fallback time.Duration, call func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := call()
		done <- result{val, err}
	}()

	var zero T
	wait := time.NewTimer(remaining(ctx, fallback))
	defer wait.Stop()
	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-wait.C:
		return zero, context.DeadlineExceeded
	}
}

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// launchWithin runs start in the background and returns its page, or ctx's
// error if ctx ends first. A page that arrives late is closed.
func launchWithin(ctx context.Context, start func() (Page, error)) (Page, error) {
	type result struct {
		page Page
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("launch panicked: %v", r)}
			}
		}()
		p, err := start()
		ch <- result{page: p, err: err}
	}()

	select {
	case r := <-ch:
		return r.page, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.page != nil {
				_ = r.page.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// wrapScript turns a function body into a self-invoking expression.
func wrapScript(body string) string {
	return "(() => {\n" + body + "\n})()"
}
