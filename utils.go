package logincapture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RecordFilename names a record as <prefix>_<label>_<YYYYMMDD_HHMMSS>.png,
// with the label lowercased and spaces replaced by underscores.
func RecordFilename(prefix string, rec CaptureRecord) string {
	label := strings.ToLower(strings.Join(strings.Fields(rec.Label), "_"))
	label = strings.Map(func(r rune) rune {
		if r == '/' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, label)
	if prefix == "" {
		prefix = DefaultFilePrefix
	}
	return fmt.Sprintf("%s_%s_%s.png", prefix, label, rec.CapturedAt.Format("20060102_150405"))
}

// SaveRecords writes every record of outcome under dir and returns the
// absolute paths in record order. Records without image data are skipped.
func SaveRecords(dir, prefix string, outcome FlowOutcome) ([]string, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(outcome.Records))
	for _, rec := range outcome.Records {
		if len(rec.Image) == 0 {
			continue
		}
		path := filepath.Join(dir, RecordFilename(prefix, rec))
		if err := os.WriteFile(path, rec.Image, 0644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		paths = append(paths, abs)
	}
	return paths, nil
}
