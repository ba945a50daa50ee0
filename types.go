package logincapture

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the terminal status of a flow.
type Status int

const (
	Completed Status = iota
	PartiallyCompleted
	SetupFailed
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case PartiallyCompleted:
		return "partially_completed"
	case SetupFailed:
		return "setup_failed"
	default:
		return "unknown"
	}
}

// FlowKind names which flow produced an outcome.
type FlowKind string

const (
	FlowHomepage FlowKind = "homepage"
	FlowLogin    FlowKind = "login"
)

// Checkpoint labels.
const (
	LabelHomepage         = "homepage"
	LabelCredentials      = "Login page with credentials"
	LabelLoginError       = "Login error state"
	LabelPostLogin        = "Post-login Netflix"
	LabelProfile          = "Netflix Profile Page"
	LabelPreLoginFallback = "Pre-login with credentials"
)

// CaptureRecord is one labeled, annotated image produced at a milestone.
type CaptureRecord struct {
	Label         string    `json:"label"`
	Image         []byte    `json:"-"`
	CapturedAt    time.Time `json:"captured_at"`
	IsPlaceholder bool      `json:"is_placeholder"`
	// Notes holds the text lines drawn on a placeholder image.
	Notes  []string `json:"notes,omitempty"`
	Engine string   `json:"engine,omitempty"`
}

// FlowOutcome is the ordered result of one flow invocation. Records is never
// empty.
type FlowOutcome struct {
	ID      string          `json:"id"`
	Kind    FlowKind        `json:"kind"`
	Status  Status          `json:"status"`
	Records []CaptureRecord `json:"records"`
	States  []State         `json:"states"`
	Err     error           `json:"-"`
}

// Placeholders counts the records rendered synthetically.
func (o FlowOutcome) Placeholders() int {
	n := 0
	for _, r := range o.Records {
		if r.IsPlaceholder {
			n++
		}
	}
	return n
}

// Labels returns the record labels in milestone order.
func (o FlowOutcome) Labels() []string {
	labels := make([]string, len(o.Records))
	for i, r := range o.Records {
		labels[i] = r.Label
	}
	return labels
}

// Credentials are opaque; use Masked for anything user-facing.
type Credentials struct {
	Identifier string
	Secret     string
}

// Masked returns the identifier in display-safe form.
func (c Credentials) Masked() string {
	return MaskIdentifier(c.Identifier)
}

// Session represents one exclusively-owned browser engine instance
type Session struct {
	ID      string
	Engine  string
	Target  string
	page    Page
	mu      sync.Mutex
	live    bool
	release sync.Once
	logger  *zap.Logger
	events  EventSink
}

// TaskPayload represents the JSON sent TO a fleet worker (RPUSH)
type TaskPayload struct {
	TaskID      string                 `json:"task_id"`
	BrowserID   string                 `json:"browser_id"`
	WorkerName  string                 `json:"worker_name"`
	Action      string                 `json:"action"`
	Args        map[string]interface{} `json:"args"`
	ResultKey   string                 `json:"result_key"`
	BrowserType string                 `json:"browser_type,omitempty"`
}

// TaskResponse represents the JSON received FROM a fleet worker (BLPOP)
type TaskResponse struct {
	Status      string      `json:"status"`
	Error       string      `json:"error,omitempty"`
	ImageBase64 string      `json:"image_base64,omitempty"`
	Result      interface{} `json:"result,omitempty"`
	Value       interface{} `json:"value,omitempty"`
	Count       int         `json:"count,omitempty"`
}
