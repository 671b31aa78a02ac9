// Package narrative reconstructs a human-readable timeline around one
// triggering alert: observed activity before, the incident itself, and the
// activity that followed.
package narrative

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"soctrace/pkg/models"
)

// ErrAlertNotFound is returned when no alert carries the requested id. It is
// an expected outcome, not a fatal condition.
var ErrAlertNotFound = errors.New("alert not found")

// Config controls the narrative's temporal windows.
type Config struct {
	// Lookback bounds Phase 1: events in [T-Lookback, T).
	Lookback time.Duration
	// Lookahead bounds Phase 3: events in (T, T+Lookahead].
	Lookahead time.Duration
}

// Builder renders root-cause reports from an enriched alert list and the
// full event set.
type Builder struct {
	cfg Config
}

// NewBuilder creates a narrative builder.
func NewBuilder(cfg Config) *Builder {
	if cfg.Lookback <= 0 {
		cfg.Lookback = time.Hour
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = time.Hour
	}
	return &Builder{cfg: cfg}
}

// FindAlert resolves an alert by id.
func FindAlert(alerts []models.Alert, id string) (models.Alert, bool) {
	for _, alert := range alerts {
		if alert.ID == id {
			return alert, true
		}
	}
	return models.Alert{}, false
}

// Build renders the three-phase report for the alert with the given id, or
// ErrAlertNotFound when the id resolves to nothing.
func (b *Builder) Build(id string, alerts []models.Alert, events []models.Event) (string, error) {
	alert, ok := FindAlert(alerts, id)
	if !ok {
		return "", fmt.Errorf("alert %s: %w", id, ErrAlertNotFound)
	}

	var sb strings.Builder
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&sb, format, args...)
		sb.WriteByte('\n')
	}
	separator := strings.Repeat("-", 40)

	line("RCA Report for Alert ID: %s", alert.ID)
	line("Trigger Event: %s at %s", alert.Rule, formatTime(alert.Timestamp))
	line("Attacker IP: %s", alert.SourceIP)
	line("%s", separator)
	line("SEQUENCE OF EVENTS:")

	b.writePreIncident(line, alert, events)
	b.writeIncident(line, alert)
	b.writePostIncident(line, alert, events)

	line("%s", separator)
	line("ROOT CAUSE CONCLUSION:")
	line("%s", conclusion(alert))

	return sb.String(), nil
}

// writePreIncident summarizes same-source activity in [T-lookback, T) as a
// frequency count per event classification, most frequent first, ties broken
// by name.
func (b *Builder) writePreIncident(line func(string, ...interface{}), alert models.Alert, events []models.Event) {
	start := alert.Timestamp.Add(-b.cfg.Lookback)

	counts := make(map[string]int)
	for _, event := range events {
		if event.SourceIP != alert.SourceIP {
			continue
		}
		if event.Timestamp.Before(start) || !event.Timestamp.Before(alert.Timestamp) {
			continue
		}
		counts[event.EventType]++
	}

	if len(counts) == 0 {
		line("")
		line("[Phase 1: Reconnaissance] No prior activity observed from this IP.")
		return
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	line("")
	line("[Phase 1: Reconnaissance/Preparation]")
	line("Observed activity from %s prior to alert:", alert.SourceIP)
	for _, name := range names {
		line("  %s: %d", name, counts[name])
	}
}

func (b *Builder) writeIncident(line func(string, ...interface{}), alert models.Alert) {
	line("")
	line("[Phase 2: The Incident]")
	line("Primary Alert: %s", alert.Details)
	if alert.Analysis != "" {
		line("AI Insight: %s", alert.Analysis)
	}
}

// writePostIncident lists same-source activity in (T, T+lookahead]
// individually; full detail matters as persistence and lateral-movement
// evidence.
func (b *Builder) writePostIncident(line func(string, ...interface{}), alert models.Alert, events []models.Event) {
	end := alert.Timestamp.Add(b.cfg.Lookahead)

	var post []models.Event
	for _, event := range events {
		if event.SourceIP != alert.SourceIP {
			continue
		}
		if event.Timestamp.After(alert.Timestamp) && !event.Timestamp.After(end) {
			post = append(post, event)
		}
	}

	if len(post) == 0 {
		line("")
		line("[Phase 3] No further activity observed.")
		return
	}

	sort.SliceStable(post, func(i, j int) bool {
		return post[i].Timestamp.Before(post[j].Timestamp)
	})

	line("")
	line("[Phase 3: Post-Exploitation/Persistence]")
	for _, event := range post {
		line("- %s: %s (%s) - User: %s", formatTime(event.Timestamp), event.EventType, event.Status, event.User)
	}
}

// conclusion picks exactly one closing sentence by strict precedence:
// Critical severity, then the brute-force rule, then a generic fallback.
func conclusion(alert models.Alert) string {
	switch {
	case alert.Severity == models.SeverityCritical:
		return "This is a CONFIRMED SECURITY INCIDENT. The attacker successfully bypassed defenses."
	case alert.Rule == models.RuleBruteForce:
		return "The root cause is a Brute Force Attack against authentication services."
	default:
		return fmt.Sprintf("The root cause appears to be %s.", alert.Rule)
	}
}

func formatTime(ts time.Time) string {
	return ts.UTC().Format("2006-01-02 15:04:05")
}
