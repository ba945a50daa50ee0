package logincapture

import (
	"context"
	"fmt"
	"time"
)

// Strategy is one way of locating a semantic target.
type Strategy struct {
	Kind    SelectorKind
	Value   string
	Timeout time.Duration
}

func (s Strategy) String() string {
	return fmt.Sprintf("%s %q (%s)", s.Kind, s.Value, s.Timeout)
}

// Query builds a structural-query strategy.
func Query(value string, timeout time.Duration) Strategy {
	return Strategy{Kind: ByQuery, Value: value, Timeout: timeout}
}

// XPath builds a path-query strategy.
func XPath(value string, timeout time.Duration) Strategy {
	return Strategy{Kind: ByXPath, Value: value, Timeout: timeout}
}

// LocatorSpec is an immutable, ordered list of strategies for one target.
type LocatorSpec struct {
	name       string
	strategies []Strategy
}

// NewLocatorSpec copies strategies so later mutation of the argument has no
// effect on the spec.
func NewLocatorSpec(name string, strategies ...Strategy) LocatorSpec {
	cp := make([]Strategy, len(strategies))
	copy(cp, strategies)
	return LocatorSpec{name: name, strategies: cp}
}

func (l LocatorSpec) Name() string { return l.name }

func (l LocatorSpec) Strategies() []Strategy {
	cp := make([]Strategy, len(l.strategies))
	copy(cp, l.strategies)
	return cp
}

func (l LocatorSpec) Len() int { return len(l.strategies) }

// MaxWait is the sum of per-strategy timeouts, the worst case for Resolve.
func (l LocatorSpec) MaxWait() time.Duration {
	var total time.Duration
	for _, s := range l.strategies {
		total += s.Timeout
	}
	return total
}

// Resolve tries the spec's strategies in order and returns the first
// actionable element. Declaration order is the only tie-break.
func Resolve(ctx context.Context, page Page, spec LocatorSpec, observe func(Attempt)) (Element, Strategy, error) {
	if page == nil {
		return nil, Strategy{}, NewBrowserError(KindNotFound, "resolve "+spec.name, "no page")
	}
	tactics := make([]Tactic[Element], len(spec.strategies))
	for i, s := range spec.strategies {
		s := s
		tactics[i] = Tactic[Element]{
			Name:    s.String(),
			Timeout: s.Timeout,
			Try: func(ctx context.Context) (Element, error) {
				return page.Find(ctx, s.Kind, s.Value)
			},
		}
	}
	el, idx, err := FirstSuccess(ctx, tactics, observe)
	if err != nil {
		return nil, Strategy{}, WrapBrowserError(KindNotFound, "resolve "+spec.name, err)
	}
	return el, spec.strategies[idx], nil
}

// ActionKind enumerates what Act can do with an element.
type ActionKind int

const (
	ActionClick ActionKind = iota
	ActionFill
	ActionScript
)

func (k ActionKind) String() string {
	switch k {
	case ActionClick:
		return "click"
	case ActionFill:
		return "fill"
	case ActionScript:
		return "script"
	default:
		return "unknown"
	}
}

// Action describes one interaction. Text is used by ActionFill, Script by
// ActionScript.
type Action struct {
	Kind   ActionKind
	Text   string
	Script string
}

func Click() Action                { return Action{Kind: ActionClick} }
func Fill(text string) Action      { return Action{Kind: ActionFill, Text: text} }
func RunScript(body string) Action { return Action{Kind: ActionScript, Script: body} }

// Act performs a single action exactly once. ActionScript runs against the
// page and ignores el; a script returning false counts as a failure.
func Act(ctx context.Context, page Page, el Element, a Action) error {
	op := "act " + a.Kind.String()
	var err error
	switch a.Kind {
	case ActionClick:
		if el == nil {
			return NewBrowserError(KindActionFailed, op, "no element")
		}
		err = el.Click(ctx)
	case ActionFill:
		if el == nil {
			return NewBrowserError(KindActionFailed, op, "no element")
		}
		if err = el.Clear(ctx); err == nil {
			err = el.Type(ctx, a.Text)
		}
	case ActionScript:
		if page == nil {
			return NewBrowserError(KindActionFailed, op, "no page")
		}
		var res any
		res, err = page.Eval(ctx, a.Script)
		if err == nil {
			if b, ok := res.(bool); ok && !b {
				return NewBrowserError(KindActionFailed, op, "script returned false")
			}
		}
	default:
		return NewBrowserError(KindActionFailed, op, "unsupported action")
	}
	if err != nil {
		return WrapBrowserError(KindActionFailed, op, err)
	}
	return nil
}
