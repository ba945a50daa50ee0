package logincapture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromedpLauncher drives a Chrome binary already present on the host.
type ChromedpLauncher struct {
	logger *zap.Logger
}

func NewChromedpLauncher(logger *zap.Logger) *ChromedpLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromedpLauncher{logger: logger}
}

func (l *ChromedpLauncher) Name() string { return EngineChromedp }

func (l *ChromedpLauncher) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	for _, arg := range opts.Args {
		name, value, ok := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if ok {
			allocOpts = append(allocOpts, chromedp.Flag(name, value))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(name, true))
		}
	}
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}

	// The browser outlives the launch context, so it hangs off Background.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	cdpLog := l.logger.With(zap.String("engine", EngineChromedp)).Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(cdpLog.Debugf))
	page := &chromedpPage{tab: tabCtx, cancel: func() { tabCancel(); allocCancel() }}

	return launchWithin(ctx, func() (Page, error) {
		if err := chromedp.Run(tabCtx, chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height))); err != nil {
			page.cancel()
			return nil, fmt.Errorf("start chrome: %w", err)
		}
		return page, nil
	})
}

type chromedpPage struct {
	tab    context.Context
	cancel context.CancelFunc
}

// run executes actions on the tab, bounded by ctx. Cancelling a context
// derived from the tab stops the actions without closing the tab.
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tab)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var cancelDl context.CancelFunc
		runCtx, cancelDl = context.WithDeadline(runCtx, dl)
		defer cancelDl()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func queryOption(kind SelectorKind) chromedp.QueryOption {
	if kind == ByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// Find waits until the first match is visible and enabled.
func (p *chromedpPage) Find(ctx context.Context, kind SelectorKind, selector string) (Element, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, queryOption(kind), chromedp.NodeVisible, chromedp.NodeEnabled)); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no node matches %s", selector)
	}
	return chromedpElement{page: p, node: nodes[0]}, nil
}

func (p *chromedpPage) FindAll(ctx context.Context, selector string) ([]Element, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	els := make([]Element, len(nodes))
	for i, n := range nodes {
		els[i] = chromedpElement{page: p, node: n}
	}
	return els, nil
}

func (p *chromedpPage) Eval(ctx context.Context, script string) (any, error) {
	// Boxed so undefined and null results are not reported as errors.
	var boxed struct {
		Value any `json:"value"`
	}
	expr := "(() => { const r = " + wrapScript(script) + "; return {value: r === undefined ? null : r}; })()"
	if err := p.run(ctx, chromedp.Evaluate(expr, &boxed)); err != nil {
		return nil, err
	}
	return boxed.Value, nil
}

func (p *chromedpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, errors.New("empty screenshot")
	}
	return buf, nil
}

func (p *chromedpPage) Close() error {
	p.cancel()
	return nil
}

type chromedpElement struct {
	page *chromedpPage
	node *cdp.Node
}

func (e chromedpElement) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

func (e chromedpElement) Click(ctx context.Context) error {
	return e.page.run(ctx, chromedp.MouseClickNode(e.node))
}

func (e chromedpElement) Clear(ctx context.Context) error {
	return e.page.run(ctx, chromedp.Clear(e.ids(), chromedp.ByNodeID))
}

func (e chromedpElement) Type(ctx context.Context, text string) error {
	return e.page.run(ctx, chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID))
}
