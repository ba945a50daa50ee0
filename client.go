package logincapture

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client runs capture flows. Every call acquires its own session, so a
// Client is safe for concurrent use.
type Client struct {
	cfg       Config
	launchers []Launcher
	imaging   Imaging
	catalog   Catalog
	now       func() time.Time
	loc       *time.Location
	logger    *zap.Logger
	events    EventSink

	catalogSet bool

	rdb  *redis.Client
	nats *NATSSink
}

// Option customizes a Client.
type Option func(*Client)

// WithLaunchers replaces the engine tactics built from Config.Engines.
func WithLaunchers(launchers ...Launcher) Option {
	return func(c *Client) { c.launchers = launchers }
}

func WithImaging(img Imaging) Option {
	return func(c *Client) { c.imaging = img }
}

// WithClock sets the time source used for capture timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithEventSink adds a sink; events always go to the log as well.
func WithEventSink(sink EventSink) Option {
	return func(c *Client) { c.events = sink }
}

// WithCatalog overrides the locator catalog, including one named by
// Config.CatalogFile. The catalog is used as given, empty entries included.
func WithCatalog(cat Catalog) Option {
	return func(c *Client) {
		c.catalog = cat
		c.catalogSet = true
	}
}

// New initializes a Client from cfg. Zero-valued settings take defaults.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:     cfg,
		imaging: NewCanvas(),
		now:     time.Now,
		loc:     cfg.Location(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("logincapture")

	if !c.catalogSet {
		c.catalog = DefaultCatalog()
		if cfg.CatalogFile != "" {
			cat, err := LoadCatalog(cfg.CatalogFile)
			if err != nil {
				return nil, err
			}
			c.catalog = cat
		}
	}

	sinks := MultiSink{LogSink{Logger: c.logger}}
	if c.events != nil {
		sinks = append(sinks, c.events)
	}
	if cfg.NATSURL != "" {
		ns, err := NewNATSSink(cfg.NATSURL, cfg.NATSSubject, c.logger)
		if err != nil {
			return nil, err
		}
		c.nats = ns
		sinks = append(sinks, ns)
	}
	c.events = sinks

	if c.launchers == nil {
		if err := c.buildLaunchers(); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) buildLaunchers() error {
	for _, name := range c.cfg.Engines {
		switch name {
		case EnginePlaywright:
			c.launchers = append(c.launchers, NewPlaywrightLauncher(c.logger))
		case EngineChromedp:
			c.launchers = append(c.launchers, NewChromedpLauncher(c.logger))
		case EngineRod:
			c.launchers = append(c.launchers, NewRodLauncher(c.logger))
		case EngineFleet:
			if !c.cfg.FleetEnabled() {
				c.logger.Debug("fleet engine skipped, no redis address configured")
				continue
			}
			rdb, err := dialFleet(c.cfg)
			if err != nil {
				return err
			}
			c.rdb = rdb
			c.launchers = append(c.launchers, NewFleetLauncher(rdb, c.cfg.BrowserType, c.logger))
		default:
			return fmt.Errorf("unknown engine %q", name)
		}
	}
	return nil
}

// Close releases connections held by the client. Sessions are not affected;
// each flow releases its own.
func (c *Client) Close() {
	if c.rdb != nil {
		if err := c.rdb.Close(); err != nil {
			c.logger.Debug("close redis", zap.Error(err))
		}
	}
	if c.nats != nil {
		if err := c.nats.Close(); err != nil {
			c.logger.Debug("close nats", zap.Error(err))
		}
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// CaptureHomepage loads the home page and captures it once. When no session
// can be set up it returns a single placeholder record with SetupFailed.
func (c *Client) CaptureHomepage(ctx context.Context) FlowOutcome {
	f := c.newFlow(FlowHomepage)
	f.events.Emit(ctx, Event{Type: EventFlowStarted, Fields: map[string]any{"url": c.cfg.HomeURL}})

	err := c.withSession(ctx, f.events, func(s *Session) {
		f.bind(s)
		f.runHomepage(ctx)
	})
	if err != nil {
		f.abort(ctx, err, DegradeContext{Kind: FlowHomepage})
	}
	return f.finish(ctx)
}

// Login fills and submits the login form, capturing each milestone. The
// outcome always holds at least one record; the secret is never logged,
// emitted or drawn.
func (c *Client) Login(ctx context.Context, identifier, secret string) FlowOutcome {
	creds := Credentials{Identifier: identifier, Secret: secret}
	f := c.newFlow(FlowLogin)
	f.events.Emit(ctx, Event{Type: EventFlowStarted, Fields: map[string]any{
		"url":        c.cfg.LoginURL,
		"identifier": creds.Masked(),
	}})

	err := c.withSession(ctx, f.events, func(s *Session) {
		f.bind(s)
		f.runLogin(ctx, creds)
	})
	if err != nil {
		f.abort(ctx, err, DegradeContext{Kind: FlowLogin, Identifier: identifier})
	}
	return f.finish(ctx)
}
