package logincapture

import (
	"context"
	"fmt"
	"sync"
	"time"

	pw "github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

const (
	playwrightOpTimeout   = 30 * time.Second
	playwrightStopTimeout = 2 * time.Second
)

// PlaywrightLauncher starts a managed Chromium through the Playwright driver.
// The driver and browser are installed on first use.
type PlaywrightLauncher struct {
	logger *zap.Logger

	installOnce sync.Once
	installErr  error
}

func NewPlaywrightLauncher(logger *zap.Logger) *PlaywrightLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlaywrightLauncher{logger: logger}
}

func (l *PlaywrightLauncher) Name() string { return EnginePlaywright }

func (l *PlaywrightLauncher) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	return launchWithin(ctx, func() (Page, error) {
		l.installOnce.Do(func() {
			l.logger.Info("installing playwright driver and chromium")
			l.installErr = pw.Install(&pw.RunOptions{Browsers: []string{"chromium"}})
		})
		if l.installErr != nil {
			return nil, fmt.Errorf("install playwright: %w", l.installErr)
		}

		runtime, err := pw.Run()
		if err != nil {
			return nil, fmt.Errorf("start playwright: %w", err)
		}
		browser, err := runtime.Chromium.Launch(pw.BrowserTypeLaunchOptions{
			Headless: pw.Bool(opts.Headless),
			Args:     opts.Args,
		})
		if err != nil {
			stopPlaywright(runtime, l.logger)
			return nil, fmt.Errorf("launch chromium: %w", err)
		}
		page, err := browser.NewPage(pw.BrowserNewPageOptions{
			Viewport: &pw.Size{Width: opts.Width, Height: opts.Height},
		})
		if err != nil {
			_ = browser.Close()
			stopPlaywright(runtime, l.logger)
			return nil, fmt.Errorf("new page: %w", err)
		}
		return &playwrightPage{runtime: runtime, browser: browser, page: page, logger: l.logger}, nil
	})
}

// stopPlaywright stops the driver without waiting longer than
// playwrightStopTimeout; the driver can hang on shutdown.
func stopPlaywright(runtime *pw.Playwright, logger *zap.Logger) {
	done := make(chan error, 1)
	go func() { done <- runtime.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			logger.Debug("playwright stop", zap.Error(err))
		}
	case <-time.After(playwrightStopTimeout):
		logger.Warn("playwright stop timed out")
	}
}

type playwrightPage struct {
	runtime *pw.Playwright
	browser pw.Browser
	page    pw.Page
	logger  *zap.Logger
}

func msLeft(ctx context.Context) *float64 {
	return pw.Float(float64(remaining(ctx, playwrightOpTimeout).Milliseconds()))
}

func (p *playwrightPage) Navigate(ctx context.Context, url string) error {
	_, err := p.page.Goto(url, pw.PageGotoOptions{
		Timeout:   msLeft(ctx),
		WaitUntil: pw.WaitUntilStateLoad,
	})
	return err
}

func (p *playwrightPage) Find(ctx context.Context, kind SelectorKind, selector string) (Element, error) {
	loc := p.page.Locator(kind.String() + "=" + selector).First()
	if err := loc.WaitFor(pw.LocatorWaitForOptions{
		State:   pw.WaitForSelectorStateVisible,
		Timeout: msLeft(ctx),
	}); err != nil {
		return nil, err
	}
	return playwrightElement{loc: loc}, nil
}

func (p *playwrightPage) FindAll(ctx context.Context, selector string) ([]Element, error) {
	locs, err := p.page.Locator("css=" + selector).All()
	if err != nil {
		return nil, err
	}
	els := make([]Element, len(locs))
	for i, loc := range locs {
		els[i] = playwrightElement{loc: loc}
	}
	return els, nil
}

// Eval has no driver-side timeout, so the wait is bounded here.
func (p *playwrightPage) Eval(ctx context.Context, script string) (any, error) {
	return awaitWithin(ctx, playwrightOpTimeout, func() (any, error) {
		return p.page.Evaluate("() => {\n" + script + "\n}")
	})
}

func (p *playwrightPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Screenshot(pw.PageScreenshotOptions{
		Type:    pw.ScreenshotTypePng,
		Timeout: msLeft(ctx),
	})
}

func (p *playwrightPage) Close() error {
	err := p.browser.Close()
	stopPlaywright(p.runtime, p.logger)
	return err
}

type playwrightElement struct {
	loc pw.Locator
}

func (e playwrightElement) Click(ctx context.Context) error {
	return e.loc.Click(pw.LocatorClickOptions{Timeout: msLeft(ctx)})
}

func (e playwrightElement) Clear(ctx context.Context) error {
	return e.loc.Clear(pw.LocatorClearOptions{Timeout: msLeft(ctx)})
}

func (e playwrightElement) Type(ctx context.Context, text string) error {
	return e.loc.Fill(text, pw.LocatorFillOptions{Timeout: msLeft(ctx)})
}
