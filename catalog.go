package logincapture

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Catalog groups the locator specs and scripted fallbacks a login flow uses.
type Catalog struct {
	Identifier   LocatorSpec
	Secret       LocatorSpec
	RevealToggle LocatorSpec
	Submit       LocatorSpec
	ProfileLink  string
	RevealScript string
	SubmitScript string
}

const (
	fieldWait  = 10 * time.Second
	toggleWait = 2 * time.Second
	submitWait = 5 * time.Second
)

// DefaultCatalog returns the selectors known to work against the Netflix
// login form.
func DefaultCatalog() Catalog {
	return Catalog{
		Identifier: NewLocatorSpec("identifier field",
			Query("input[name='userLoginId']", fieldWait),
		),
		Secret: NewLocatorSpec("secret field",
			Query("input[name='password']", fieldWait),
		),
		RevealToggle: NewLocatorSpec("password visibility toggle",
			Query("[data-uia='password-visibility-toggle']", toggleWait),
			Query("button.password-toggle", toggleWait),
			Query("span.password-toggle", toggleWait),
			Query("div.password-toggle", toggleWait),
			Query("button[aria-label*='password']", toggleWait),
			Query("button[aria-label*='Password']", toggleWait),
			Query(".show-password-toggle", toggleWait),
			Query("[aria-label='Show Password']", toggleWait),
			Query(".form-control_labelStyles__oy4jpq5 + div button", toggleWait),
			Query("div[data-uia='field-password+container'] button", toggleWait),
			XPath("//div[contains(@data-uia, 'password')]//button", toggleWait),
			XPath("//input[@name='password']/following-sibling::button", toggleWait),
			XPath("//input[@name='password']/..//button", toggleWait),
		),
		Submit: NewLocatorSpec("submit control",
			Query("button[data-uia='login-submit-button']", submitWait),
			Query("button[type='submit']", submitWait),
			XPath("//button[contains(text(), 'Sign In')]", submitWait),
			XPath("//button[@type='submit']", submitWait),
			Query(".login-form button[type='submit']", submitWait),
		),
		ProfileLink: "a.profile-link",
		RevealScript: `var el = document.querySelector('input[type="password"]');
if (!el) { return false; }
el.type = 'text';
return true;`,
		SubmitScript: `document.querySelector('button[type="submit"]').click();
return true;`,
	}
}

type catalogFile struct {
	Identifier   []strategyEntry `yaml:"identifier"`
	Secret       []strategyEntry `yaml:"secret"`
	RevealToggle []strategyEntry `yaml:"reveal_toggle"`
	Submit       []strategyEntry `yaml:"submit"`
	ProfileLink  string          `yaml:"profile_link"`
	RevealScript string          `yaml:"reveal_script"`
	SubmitScript string          `yaml:"submit_script"`
}

type strategyEntry struct {
	Kind    string `yaml:"kind"`
	Value   string `yaml:"value"`
	Timeout string `yaml:"timeout"`
}

// LoadCatalog overlays a YAML file on DefaultCatalog. Sections that are
// absent keep their defaults.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog is LoadCatalog for in-memory YAML.
func ParseCatalog(data []byte) (Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}

	cat := DefaultCatalog()
	sections := []struct {
		entries []strategyEntry
		dst     *LocatorSpec
		wait    time.Duration
	}{
		{f.Identifier, &cat.Identifier, fieldWait},
		{f.Secret, &cat.Secret, fieldWait},
		{f.RevealToggle, &cat.RevealToggle, toggleWait},
		{f.Submit, &cat.Submit, submitWait},
	}
	for _, s := range sections {
		if len(s.entries) == 0 {
			continue
		}
		strategies := make([]Strategy, 0, len(s.entries))
		for i, e := range s.entries {
			st, err := e.strategy(s.wait)
			if err != nil {
				return Catalog{}, fmt.Errorf("%s[%d]: %w", s.dst.Name(), i, err)
			}
			strategies = append(strategies, st)
		}
		*s.dst = NewLocatorSpec(s.dst.Name(), strategies...)
	}

	if f.ProfileLink != "" {
		cat.ProfileLink = f.ProfileLink
	}
	if f.RevealScript != "" {
		cat.RevealScript = f.RevealScript
	}
	if f.SubmitScript != "" {
		cat.SubmitScript = f.SubmitScript
	}
	return cat, nil
}

func (e strategyEntry) strategy(defaultWait time.Duration) (Strategy, error) {
	if strings.TrimSpace(e.Value) == "" {
		return Strategy{}, fmt.Errorf("empty selector")
	}
	wait := defaultWait
	if e.Timeout != "" {
		d, err := time.ParseDuration(e.Timeout)
		if err != nil {
			return Strategy{}, fmt.Errorf("invalid timeout %q: %w", e.Timeout, err)
		}
		wait = d
	}

	switch strings.ToLower(e.Kind) {
	case "css", "query":
		return Query(e.Value, wait), nil
	case "xpath":
		return XPath(e.Value, wait), nil
	case "":
		if strings.HasPrefix(e.Value, "//") {
			return XPath(e.Value, wait), nil
		}
		return Query(e.Value, wait), nil
	default:
		return Strategy{}, fmt.Errorf("unknown selector kind %q", e.Kind)
	}
}
