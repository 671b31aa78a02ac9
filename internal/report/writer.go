// Package report renders enriched alerts and their root-cause narratives
// into a markdown incident report on disk.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"soctrace/internal/logger"
	"soctrace/pkg/models"
)

// Generator writes incident reports into an output directory.
type Generator struct {
	dir string
	now func() time.Time
}

// NewGenerator creates a report generator.
func NewGenerator(dir string) *Generator {
	return &Generator{dir: dir, now: time.Now}
}

// Save writes a markdown report containing an alert summary table followed
// by one section per root-cause narrative, and returns the report path.
func (g *Generator) Save(alerts []models.Alert, narratives []string) (string, error) {
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	path := filepath.Join(g.dir, fmt.Sprintf("incident_report_%s.md", g.now().UTC().Format("20060102_150405")))

	var sb strings.Builder
	sb.WriteString("# Incident Report\n\n")
	fmt.Fprintf(&sb, "Generated: %s\n\n", g.now().UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&sb, "## Alert Summary (%d alerts)\n\n", len(alerts))

	if len(alerts) == 0 {
		sb.WriteString("No threats detected.\n")
	} else {
		sb.WriteString("| ID | Timestamp | Severity | Rule | Source IP | AI Insight |\n")
		sb.WriteString("|---|---|---|---|---|---|\n")
		for _, alert := range alerts {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s |\n",
				alert.ID,
				alert.Timestamp.UTC().Format("2006-01-02 15:04:05"),
				alert.Severity,
				alert.Rule,
				alert.SourceIP,
				alert.Analysis,
			)
		}
	}

	if len(narratives) > 0 {
		sb.WriteString("\n## Root Cause Analysis\n")
		for i, text := range narratives {
			fmt.Fprintf(&sb, "\n### Incident %d\n\n```\n%s```\n", i+1, text)
		}
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	logger.Infof("incident report written: %s", path)
	return path, nil
}
