package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const reportName = ".lastrun.json"

func writeRunReport(dir string, s *Summary) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, reportName)
	if err := os.WriteFile(p, data, 0644); err != nil {
		return "", err
	}
	return p, nil
}

// LoadRunReport reads the report written by the last run in dir.
func LoadRunReport(dir string) (*Summary, error) {
	data, err := os.ReadFile(filepath.Join(dir, reportName))
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse run report: %w", err)
	}
	return &s, nil
}

func joinFailedReasons(failed []Unit) string {
	if len(failed) == 0 {
		return ""
	}
	var b strings.Builder
	for i, u := range failed {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(u.Symbol)
		b.WriteString(" ")
		b.WriteString(u.DateRange())
		b.WriteString(": ")
		b.WriteString(u.Error)
		if i >= 4 && len(failed) > 6 {
			b.WriteString(fmt.Sprintf(" (+%d more)", len(failed)-5))
			break
		}
	}
	return b.String()
}
