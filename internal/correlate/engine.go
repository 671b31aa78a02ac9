// Package correlate re-scores alerts using context a single rule cannot
// see: temporal joins between an alert and the surrounding event stream.
package correlate

import (
	"fmt"
	"time"

	"soctrace/internal/metrics"
	"soctrace/pkg/models"
)

// DefaultAnalysis is attached to every alert that no pattern escalates.
const DefaultAnalysis = "Standard rule match."

// TakeoverAnalysis is attached when a brute-force alert is followed by a
// successful authentication from the same source.
const TakeoverAnalysis = "AI CORRELATION: Brute force attack resulted in a successful authentication! Potential Account Takeover detected."

// Accounts for which sensitive-file access is considered routine.
var standardUsers = map[string]struct{}{
	"root":  {},
	"admin": {},
}

// Config controls correlation behavior.
type Config struct {
	// TakeoverWindow is how far past a brute-force alert's trigger time a
	// successful authentication still counts as a takeover.
	TakeoverWindow time.Duration
}

// Engine enriches alerts against the full event set. Enrichment is a pure
// transformation: inputs are never mutated, and each output alert depends
// only on the event set and that alert's detector-assigned fields, so
// processing order cannot affect the result.
type Engine struct {
	cfg Config
}

// NewEngine creates a correlation engine.
func NewEngine(cfg Config) *Engine {
	if cfg.TakeoverWindow <= 0 {
		cfg.TakeoverWindow = 10 * time.Minute
	}
	return &Engine{cfg: cfg}
}

// Enrich returns a new alert list with correlation patterns applied.
// Severity is never lowered; alerts whose rule has no pattern pass through
// with the neutral analysis string.
func (e *Engine) Enrich(alerts []models.Alert, events []models.Event) []models.Alert {
	if len(alerts) == 0 {
		return nil
	}

	out := make([]models.Alert, 0, len(alerts))
	for _, alert := range alerts {
		next := alert
		next.Analysis = DefaultAnalysis

		switch alert.Rule {
		case models.RuleBruteForce:
			e.checkAccountTakeover(&next, events)
		case models.RuleSensitiveAccess:
			e.checkAnomalousAccess(&next)
		}

		out = append(out, next)
	}
	return out
}

// checkAccountTakeover looks for a successful authentication from the
// alert's source IP strictly inside (T, T+window). Any match escalates the
// alert to Critical and attaches the matching events.
func (e *Engine) checkAccountTakeover(alert *models.Alert, events []models.Event) {
	windowEnd := alert.Timestamp.Add(e.cfg.TakeoverWindow)

	var related []models.Event
	for _, event := range events {
		if event.SourceIP != alert.SourceIP || event.Status != models.StatusSuccess {
			continue
		}
		if event.Timestamp.After(alert.Timestamp) && event.Timestamp.Before(windowEnd) {
			related = append(related, event)
		}
	}
	if len(related) == 0 {
		return
	}

	raiseSeverity(alert, models.SeverityCritical)
	alert.Analysis = TakeoverAnalysis
	alert.RelatedEvents = related
	metrics.AlertsEscalated.WithLabelValues("account_takeover").Inc()
}

// checkAnomalousAccess escalates sensitive-file access performed by anyone
// outside the standard administrative accounts.
func (e *Engine) checkAnomalousAccess(alert *models.Alert) {
	user := evidenceUser(alert)
	if _, ok := standardUsers[user]; ok {
		return
	}

	raiseSeverity(alert, models.SeverityCritical)
	alert.Analysis = fmt.Sprintf("AI ANOMALY: Sensitive file accessed by non-standard user '%s'.", user)
	metrics.AlertsEscalated.WithLabelValues("anomalous_sensitive_access").Inc()
}

func evidenceUser(alert *models.Alert) string {
	if len(alert.Evidence) == 0 {
		return "unknown"
	}
	if alert.Evidence[0].User == "" {
		return "unknown"
	}
	return alert.Evidence[0].User
}

func raiseSeverity(alert *models.Alert, to models.Severity) {
	if to > alert.Severity {
		alert.Severity = to
	}
}
