package logincapture

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event types emitted during a flow.
const (
	EventFlowStarted    = "flow_started"
	EventFlowFinished   = "flow_finished"
	EventTransition     = "state_transition"
	EventTacticAttempt  = "tactic_attempt"
	EventCheckpoint     = "checkpoint"
	EventSessionAcquire = "session_acquired"
	EventSessionRelease = "session_released"
)

// Event is a structured progress notice. It never carries credentials.
type Event struct {
	ID        string         `json:"id"`
	FlowID    string         `json:"flow_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Type      string         `json:"type"`
	State     string         `json:"state,omitempty"`
	Label     string         `json:"label,omitempty"`
	Tactic    string         `json:"tactic,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// EventSink receives flow events. Emit must not block the flow for long and
// must be safe for concurrent use.
type EventSink interface {
	Emit(ctx context.Context, evt Event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// LogSink writes events to a zap logger.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Emit(_ context.Context, evt Event) {
	if s.Logger == nil {
		return
	}
	fields := []zap.Field{zap.String("type", evt.Type)}
	if evt.FlowID != "" {
		fields = append(fields, zap.String("flow_id", evt.FlowID))
	}
	if evt.SessionID != "" {
		fields = append(fields, zap.String("session_id", evt.SessionID))
	}
	if evt.State != "" {
		fields = append(fields, zap.String("state", evt.State))
	}
	if evt.Label != "" {
		fields = append(fields, zap.String("label", evt.Label))
	}
	if evt.Tactic != "" {
		fields = append(fields, zap.String("tactic", evt.Tactic))
	}
	keys := make([]string, 0, len(evt.Fields))
	for k := range evt.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, evt.Fields[k]))
	}
	msg := evt.Message
	if msg == "" {
		msg = evt.Type
	}
	s.Logger.Info(msg, fields...)
}

// NATSSink publishes events as JSON on a NATS subject.
type NATSSink struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNATSSink connects to url and publishes on subject.
func NewNATSSink(url, subject string, logger *zap.Logger) (*NATSSink, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if subject == "" {
		subject = DefaultNATSSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("logincapture"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSSink{nc: nc, subject: subject, logger: logger}, nil
}

func (s *NATSSink) Emit(_ context.Context, evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Warn("marshal event", zap.Error(err))
		return
	}
	if err := s.nc.Publish(s.subject, data); err != nil {
		s.logger.Warn("publish event", zap.String("subject", s.subject), zap.Error(err))
	}
}

// Close drains the connection.
func (s *NATSSink) Close() error {
	if s == nil || s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}

// MultiSink fans out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, evt Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, evt)
		}
	}
}

// flowSink stamps events with flow and session identity.
type flowSink struct {
	inner     EventSink
	flowID    string
	sessionID string
	now       func() time.Time
}

func (f *flowSink) Emit(ctx context.Context, evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.FlowID == "" {
		evt.FlowID = f.flowID
	}
	if evt.SessionID == "" {
		evt.SessionID = f.sessionID
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = f.now()
	}
	f.inner.Emit(ctx, evt)
}
