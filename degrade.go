package logincapture

import "context"

// DegradeContext describes the flow that could not get a working session.
type DegradeContext struct {
	Kind       FlowKind
	Identifier string
}

// PlaceholderSet synthesizes the records a flow would have produced had the
// engine been available, so callers never branch on engine availability.
func (r *Recorder) PlaceholderSet(ctx context.Context, dc DegradeContext) []CaptureRecord {
	at := r.now()
	stamp := "Timestamp: " + r.Timestamp(at)

	var recs []CaptureRecord
	switch dc.Kind {
	case FlowLogin:
		recs = []CaptureRecord{
			r.Placeholder(LabelPreLoginFallback, at, []string{
				"Netflix login screenshot unavailable",
				"Email: " + MaskIdentifier(dc.Identifier),
				"Password: " + secretMask,
				stamp,
			}),
			r.Placeholder(LabelPostLogin, at, []string{
				"Post-login Netflix screenshot unavailable",
				"Running in cloud environment",
				stamp,
			}),
		}
	default:
		recs = []CaptureRecord{
			r.Placeholder(LabelHomepage, at, []string{
				"Netflix screenshot unavailable in cloud environment",
				stamp,
			}),
		}
	}
	for _, rec := range recs {
		r.recorded(ctx, rec)
	}
	return recs
}
