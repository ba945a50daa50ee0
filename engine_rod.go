package logincapture

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// RodLauncher lets rod locate or download a browser build itself.
type RodLauncher struct {
	logger *zap.Logger
}

func NewRodLauncher(logger *zap.Logger) *RodLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RodLauncher{logger: logger}
}

func (l *RodLauncher) Name() string { return EngineRod }

func (l *RodLauncher) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	return launchWithin(ctx, func() (Page, error) {
		lc := launcher.New().
			Headless(opts.Headless).
			NoSandbox(true).
			Set("disable-gpu").
			Set("disable-dev-shm-usage").
			Set("window-size", fmt.Sprintf("%d,%d", opts.Width, opts.Height))
		if opts.ChromePath != "" {
			lc = lc.Bin(opts.ChromePath)
		}

		controlURL, err := lc.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		browser := rod.New().ControlURL(controlURL)
		if err := browser.Connect(); err != nil {
			lc.Kill()
			return nil, fmt.Errorf("connect browser: %w", err)
		}
		page, err := browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			_ = browser.Close()
			lc.Kill()
			return nil, fmt.Errorf("create page: %w", err)
		}
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.Width,
			Height:            opts.Height,
			DeviceScaleFactor: 1,
		}); err != nil {
			l.logger.Debug("set viewport", zap.String("engine", EngineRod), zap.Error(err))
		}
		return &rodPage{launcher: lc, browser: browser, page: page}, nil
	})
}

type rodPage struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return err
	}
	return pg.WaitLoad()
}

func (p *rodPage) Find(ctx context.Context, kind SelectorKind, selector string) (Element, error) {
	pg := p.page.Context(ctx)
	var (
		el  *rod.Element
		err error
	)
	if kind == ByXPath {
		el, err = pg.ElementX(selector)
	} else {
		el, err = pg.Element(selector)
	}
	if err != nil {
		return nil, err
	}
	if err := el.WaitVisible(); err != nil {
		return nil, err
	}
	if err := el.WaitEnabled(); err != nil {
		return nil, err
	}
	return rodElement{el: el}, nil
}

func (p *rodPage) FindAll(ctx context.Context, selector string) ([]Element, error) {
	found, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	els := make([]Element, len(found))
	for i, el := range found {
		els[i] = rodElement{el: el}
	}
	return els, nil
}

func (p *rodPage) Eval(ctx context.Context, script string) (any, error) {
	res, err := p.page.Context(ctx).Eval("() => {\n" + script + "\n}")
	if err != nil {
		return nil, err
	}
	return res.Value.Val(), nil
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (p *rodPage) Close() error {
	err := p.browser.Close()
	p.launcher.Kill()
	return err
}

type rodElement struct {
	el *rod.Element
}

func (e rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e rodElement) Clear(ctx context.Context) error {
	el := e.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input("")
}

func (e rodElement) Type(ctx context.Context, text string) error {
	return e.el.Context(ctx).Input(text)
}
