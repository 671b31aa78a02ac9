package detect

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"soctrace/pkg/models"
)

const simpleRule = `title: Suspicious Scheduled Task
level: high
detection:
  selection:
    event: cron_modification
  condition: selection
`

const aggregationRule = `title: Too Many Failures
level: medium
detection:
  selection:
    status: failed
  condition: selection | count() > 5
`

func writeRule(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write rule %s: %v", name, err)
	}
}

func TestSigmaEngineLoadStats(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "simple.yml", simpleRule)
	writeRule(t, dir, "agg.yml", aggregationRule)
	writeRule(t, dir, "broken.yml", "{invalid yaml")

	engine, stats, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalFiles != 3 {
		t.Fatalf("expected 3 files, got %d", stats.TotalFiles)
	}
	if stats.Loaded != 1 {
		t.Fatalf("expected 1 loaded rule, got %d", stats.Loaded)
	}
	if stats.SkippedComplex != 1 {
		t.Fatalf("expected aggregation rule to be skipped, got %d", stats.SkippedComplex)
	}
	if stats.SkippedInvalid != 1 {
		t.Fatalf("expected broken rule to be skipped, got %d", stats.SkippedInvalid)
	}
	if engine == nil {
		t.Fatalf("expected engine")
	}
}

func TestSigmaMatchBecomesAlert(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "simple.yml", simpleRule)

	engine, _, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := []models.Event{
		{
			Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			SourceIP:  "10.0.0.7",
			User:      "mallory",
			EventType: "cron_modification",
			Status:    models.StatusSuccess,
			Raw:       "crontab edited",
		},
		{
			Timestamp: time.Date(2026, 3, 1, 9, 1, 0, 0, time.UTC),
			SourceIP:  "10.0.0.7",
			User:      "mallory",
			EventType: "file_read",
			Status:    models.StatusSuccess,
			Raw:       "read notes.txt",
		},
	}

	alerts := NewDetector(Config{Sigma: engine}).Run(events)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 sigma alert, got %d", len(alerts))
	}
	if alerts[0].Rule != "Suspicious Scheduled Task" {
		t.Fatalf("unexpected rule name: %q", alerts[0].Rule)
	}
	if alerts[0].Severity != models.SeverityHigh {
		t.Fatalf("expected High severity from rule level, got %s", alerts[0].Severity)
	}
	if len(alerts[0].Evidence) != 1 || alerts[0].Evidence[0].EventType != "cron_modification" {
		t.Fatalf("expected matching event as evidence, got %+v", alerts[0].Evidence)
	}
}
