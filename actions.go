package logincapture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// FleetLauncher reserves a browser held by a remote worker. Workers register
// in WorkersSet and keep per-type free/busy sets of browser IDs.
type FleetLauncher struct {
	rdb         *redis.Client
	browserType string
	logger      *zap.Logger
}

func NewFleetLauncher(rdb *redis.Client, browserType string, logger *zap.Logger) *FleetLauncher {
	if browserType == "" {
		browserType = "chrome"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FleetLauncher{rdb: rdb, browserType: browserType, logger: logger}
}

func (l *FleetLauncher) Name() string { return EngineFleet }

func (l *FleetLauncher) Launch(ctx context.Context, _ LaunchOptions) (Page, error) {
	workers, err := l.rdb.SMembers(ctx, WorkersSet).Result()
	if err != nil {
		return nil, fmt.Errorf("list fleet workers: %w", err)
	}
	if len(workers) == 0 {
		return nil, errors.New("no workers found in fleet")
	}

	rand.Shuffle(len(workers), func(i, j int) { workers[i], workers[j] = workers[j], workers[i] })

	for _, worker := range workers {
		freeKey := fmt.Sprintf("%s%s:%s:free", RedisPrefix, worker, l.browserType)
		bid, err := l.rdb.SPop(ctx, freeKey).Result()
		if err != nil {
			continue
		}
		busyKey := fmt.Sprintf("%s%s:%s:busy", RedisPrefix, worker, l.browserType)
		if err := l.rdb.SAdd(ctx, busyKey, bid).Err(); err != nil {
			l.logger.Warn("mark fleet browser busy", zap.String("worker", worker), zap.String("browser_id", bid), zap.Error(err))
		}
		l.logger.Debug("fleet browser reserved", zap.String("worker", worker), zap.String("browser_id", bid))
		return &fleetPage{
			rdb:         l.rdb,
			browserID:   bid,
			worker:      worker,
			browserType: l.browserType,
			logger:      l.logger,
		}, nil
	}
	return nil, fmt.Errorf("no available browsers for type: %s", l.browserType)
}

// fleetPage forwards page operations to the worker owning browserID.
type fleetPage struct {
	rdb         *redis.Client
	browserID   string
	worker      string
	browserType string
	logger      *zap.Logger
}

// waitSeconds converts what is left of ctx into the whole-second timeout the
// worker protocol expects.
func waitSeconds(ctx context.Context) int {
	return int(math.Ceil(remaining(ctx, DefaultRPCWait).Seconds()))
}

func rpcWait(ctx context.Context) time.Duration {
	return remaining(ctx, DefaultRPCWait)
}

func (p *fleetPage) Navigate(ctx context.Context, url string) error {
	_, err := p.send(ctx, "open_url", map[string]interface{}{"url": url}, rpcWait(ctx))
	return err
}

func (p *fleetPage) Find(ctx context.Context, _ SelectorKind, selector string) (Element, error) {
	// Workers detect path queries from the selector text itself.
	_, err := p.send(ctx, "wait_for_element", map[string]interface{}{
		"selector": selector,
		"timeout":  waitSeconds(ctx),
	}, rpcWait(ctx))
	if err != nil {
		return nil, err
	}
	return fleetElement{page: p, selector: selector}, nil
}

func (p *fleetPage) FindAll(ctx context.Context, selector string) ([]Element, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}
	res, err := p.Eval(ctx, fmt.Sprintf("return document.querySelectorAll(%s).length;", sel))
	if err != nil {
		return nil, err
	}
	n, ok := res.(float64)
	if !ok {
		return nil, fmt.Errorf("unexpected element count %v", res)
	}
	els := make([]Element, int(n))
	for i := range els {
		els[i] = fleetElement{page: p, selector: selector, nth: i + 1}
	}
	return els, nil
}

func (p *fleetPage) Eval(ctx context.Context, script string) (any, error) {
	res, err := p.send(ctx, "execute_script", map[string]interface{}{"script": script}, rpcWait(ctx))
	if err != nil {
		return nil, err
	}
	if res.Result != nil {
		return res.Result, nil
	}
	return res.Value, nil
}

func (p *fleetPage) Screenshot(ctx context.Context) ([]byte, error) {
	res, err := p.send(ctx, "save_screenshot", map[string]interface{}{"name": "temp.png"}, rpcWait(ctx))
	if err != nil {
		return nil, err
	}
	if res.ImageBase64 == "" {
		return nil, errors.New("worker returned no image")
	}
	data, err := base64.StdEncoding.DecodeString(res.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	return data, nil
}

// Close hands the browser back to its worker.
func (p *fleetPage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), releaseWait)
	defer cancel()
	_, err := p.send(ctx, "release_browser", nil, releaseWait)
	return err
}

// fleetElement addresses an element by selector; nth > 0 picks the nth match
// (1-based) for elements produced by FindAll.
type fleetElement struct {
	page     *fleetPage
	selector string
	nth      int
}

func (e fleetElement) Click(ctx context.Context) error {
	if e.nth > 0 {
		_, err := e.page.send(ctx, "click_nth_element", map[string]interface{}{
			"selector": e.selector,
			"number":   e.nth,
		}, rpcWait(ctx))
		return err
	}
	_, err := e.page.send(ctx, "click", map[string]interface{}{
		"selector": e.selector,
		"timeout":  waitSeconds(ctx),
	}, rpcWait(ctx))
	return err
}

func (e fleetElement) Clear(ctx context.Context) error {
	_, err := e.page.send(ctx, "clear", map[string]interface{}{"selector": e.selector}, rpcWait(ctx))
	return err
}

func (e fleetElement) Type(ctx context.Context, text string) error {
	_, err := e.page.send(ctx, "type", map[string]interface{}{
		"selector": e.selector,
		"text":     text,
		"timeout":  waitSeconds(ctx),
	}, rpcWait(ctx))
	return err
}
