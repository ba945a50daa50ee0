package logincapture

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TimestampLayout renders day-month-year with a 12-hour clock and zone.
const TimestampLayout = "02-01-2006 03:04:05 PM MST"

// Recorder produces one annotated CaptureRecord per milestone. Capture never
// fails: when a live screenshot is impossible it renders a placeholder.
type Recorder struct {
	imaging Imaging
	now     func() time.Time
	loc     *time.Location
	logger  *zap.Logger
	events  EventSink
}

// NewRecorder wires a recorder; nil arguments get defaults.
func NewRecorder(img Imaging, now func() time.Time, loc *time.Location, logger *zap.Logger, events EventSink) *Recorder {
	if img == nil {
		img = NewCanvas()
	}
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = NopSink{}
	}
	return &Recorder{imaging: img, now: now, loc: loc, logger: logger, events: events}
}

// Timestamp formats t in the recorder's zone.
func (r *Recorder) Timestamp(t time.Time) string {
	return t.In(r.loc).Format(TimestampLayout)
}

// Capture takes a live screenshot from page, or a placeholder when page is
// nil or the screenshot cannot be taken or annotated. notes are drawn on the
// placeholder only.
func (r *Recorder) Capture(ctx context.Context, page Page, engine, label string, notes ...string) CaptureRecord {
	at := r.now()
	stamp := r.Timestamp(at)

	if page != nil {
		img, err := r.live(ctx, page, stamp)
		if err == nil {
			rec := CaptureRecord{Label: label, Image: img, CapturedAt: at, Engine: engine}
			r.recorded(ctx, rec)
			return rec
		}
		r.logger.Warn("live capture failed, using placeholder",
			zap.String("label", label), zap.String("engine", engine), zap.Error(err))
	}

	lines := make([]string, 0, len(notes)+2)
	lines = append(lines, label+" screenshot unavailable")
	lines = append(lines, notes...)
	lines = append(lines, "Timestamp: "+stamp)
	rec := r.Placeholder(label, at, lines)
	r.recorded(ctx, rec)
	return rec
}

// live screenshots page and stamps it. A panicking engine or imaging backend
// is reported as an error.
func (r *Recorder) live(ctx context.Context, page Page, stamp string) (img []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			img, err = nil, fmt.Errorf("capture panicked: %v", p)
		}
	}()
	shot, err := page.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	return r.imaging.Annotate(shot, stamp)
}

// Placeholder renders lines as-is and annotates the result like a live
// capture, so only IsPlaceholder tells them apart.
func (r *Recorder) Placeholder(label string, at time.Time, lines []string) (rec CaptureRecord) {
	rec = CaptureRecord{
		Label:         label,
		CapturedAt:    at,
		IsPlaceholder: true,
		Notes:         append([]string(nil), lines...),
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("placeholder render panicked", zap.String("label", label), zap.Any("panic", p))
		}
	}()
	img, err := r.imaging.RenderPlaceholder(lines)
	if err != nil {
		r.logger.Error("placeholder render failed", zap.String("label", label), zap.Error(err))
		return rec
	}
	rec.Image = img
	annotated, err := r.imaging.Annotate(img, r.Timestamp(at))
	if err != nil {
		r.logger.Error("placeholder annotate failed", zap.String("label", label), zap.Error(err))
		return rec
	}
	rec.Image = annotated
	return rec
}

func (r *Recorder) recorded(ctx context.Context, rec CaptureRecord) {
	recordCheckpoint(rec.Label, rec.IsPlaceholder)
	r.events.Emit(ctx, Event{
		Type:  EventCheckpoint,
		Label: rec.Label,
		Fields: map[string]any{
			"placeholder": rec.IsPlaceholder,
			"bytes":       len(rec.Image),
		},
	})
}
