package logincapture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRPCWait is the default time to wait for a worker response (60s)
const DefaultRPCWait = 60 * time.Second

// releaseWait bounds the release_browser round trip during teardown.
const releaseWait = 10 * time.Second

// dialFleet builds the Redis client for the worker fleet from cfg.
func dialFleet(cfg Config) (*redis.Client, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	host := cfg.RedisHost
	if host == "" {
		host = DefaultRedisHost
	}
	port := cfg.RedisPort
	if port == "" {
		port = DefaultRedisPort
	}
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}), nil
}

// send transmits a command to the worker that owns this browser and waits
// for its reply on a per-task result list.
func (p *fleetPage) send(ctx context.Context, action string, args map[string]interface{}, timeout time.Duration) (TaskResponse, error) {
	if args == nil {
		args = make(map[string]interface{})
	}

	taskID := strings.ReplaceAll(uuid.NewString(), "-", "")
	resultKey := fmt.Sprintf("%sresult:%s", RedisPrefix, taskID)
	queue := fmt.Sprintf("%s%s:tasks", RedisPrefix, p.worker)

	payload := TaskPayload{
		TaskID:      taskID,
		BrowserID:   p.browserID,
		WorkerName:  p.worker,
		BrowserType: p.browserType,
		Action:      action,
		Args:        args,
		ResultKey:   resultKey,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return TaskResponse{}, fmt.Errorf("serialize task payload: %w", err)
	}

	if err := executeWithRetry(ctx, func() error {
		return p.rdb.RPush(ctx, queue, data).Err()
	}); err != nil {
		return TaskResponse{}, fmt.Errorf("enqueue %s: %w", action, err)
	}

	timeout = min(timeout, remaining(ctx, timeout))
	var raw []string
	err = executeWithRetry(ctx, func() error {
		var rErr error
		raw, rErr = p.rdb.BLPop(ctx, timeout, resultKey).Result()
		return rErr
	})
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) {
			return TaskResponse{}, fmt.Errorf("timeout waiting for worker response to %s", action)
		}
		return TaskResponse{}, fmt.Errorf("redis rpc %s: %w", action, err)
	}
	if len(raw) < 2 {
		return TaskResponse{}, fmt.Errorf("invalid response to %s", action)
	}

	var resp TaskResponse
	if err := json.Unmarshal([]byte(raw[1]), &resp); err != nil {
		return TaskResponse{}, fmt.Errorf("parse worker response: %w", err)
	}
	if resp.Status != "ok" {
		msg := resp.Error
		if msg == "" {
			msg = "status " + resp.Status
		}
		return resp, fmt.Errorf("%s: %s", action, msg)
	}
	return resp, nil
}

// executeWithRetry retries op up to 3 times with exponential backoff.
// redis.Nil is a logical result and is never retried.
func executeWithRetry(ctx context.Context, op func() error) error {
	maxAttempts := 3
	backoffFactor := 0.2
	attempt := 0

	for {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.Nil) || ctx.Err() != nil || attempt >= maxAttempts {
			return err
		}
		attempt++
		sleepTime := time.Duration(float64(time.Second) * backoffFactor * float64(int(1)<<(attempt-1))) // 0.2s, 0.4s, 0.8s
		if sleepCtx(ctx, sleepTime) != nil {
			return err
		}
	}
}
