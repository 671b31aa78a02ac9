package detect

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"soctrace/internal/metrics"
	"soctrace/pkg/models"
)

// Paths whose appearance in a raw log line triggers the sensitive-access
// rule. Checked in order; the first match wins.
var sensitivePaths = []string{
	"/etc/shadow",
	"/etc/passwd",
	`C:\Windows\System32\config\SAM`,
}

// Accounts whose successful logins are flagged by the privileged-login rule.
var privilegedUsers = map[string]struct{}{
	"root":          {},
	"admin":         {},
	"administrator": {},
}

// Config controls detection behavior.
type Config struct {
	// BruteWindow is the fixed window size for the brute-force rule.
	// Windows are aligned to the Unix epoch, not to the data, so a window's
	// boundaries do not depend on which subset of events is supplied.
	BruteWindow time.Duration
	// BruteThreshold is the failed-event count at which a window alerts.
	BruteThreshold int
	// Sigma optionally extends the built-in rules with Sigma rules.
	Sigma *SigmaEngine
}

// Detector evaluates detection rules over an ordered event set. Each Run
// starts from an empty accumulator; a Detector holds no state between runs.
type Detector struct {
	cfg    Config
	alerts []models.Alert
}

// NewDetector creates a detector.
func NewDetector(cfg Config) *Detector {
	if cfg.BruteWindow <= 0 {
		cfg.BruteWindow = 5 * time.Minute
	}
	if cfg.BruteThreshold <= 0 {
		cfg.BruteThreshold = 3
	}
	return &Detector{cfg: cfg}
}

// Run evaluates every rule against the time-sorted event set and returns the
// resulting alerts sorted by (timestamp, rule, source IP). An empty event
// set yields no alerts.
func (d *Detector) Run(events []models.Event) []models.Alert {
	d.alerts = nil
	if len(events) == 0 {
		return nil
	}

	d.detectBruteForce(events)
	d.detectSensitiveAccess(events)
	d.detectPrivilegedLogin(events)
	d.detectSigma(events)

	sortAlerts(d.alerts)
	out := d.alerts
	d.alerts = nil
	return out
}

// detectBruteForce partitions failed events by source IP into fixed
// epoch-aligned windows and alerts on every window that reaches the
// threshold. The alert timestamp is the window start and the evidence is
// every failed event inside the window.
func (d *Detector) detectBruteForce(events []models.Event) {
	windows := make(map[string]map[time.Time][]models.Event)
	for _, event := range events {
		if event.Status != models.StatusFailed {
			continue
		}
		// Normalize to UTC before bucketing: time.Time map keys compare the
		// location too, and ingested timestamps only have to be
		// timezone-aware, not UTC.
		start := event.Timestamp.UTC().Truncate(d.cfg.BruteWindow)
		byStart := windows[event.SourceIP]
		if byStart == nil {
			byStart = make(map[time.Time][]models.Event)
			windows[event.SourceIP] = byStart
		}
		byStart[start] = append(byStart[start], event)
	}

	for ip, byStart := range windows {
		for start, evidence := range byStart {
			if len(evidence) < d.cfg.BruteThreshold {
				continue
			}
			d.emit(models.Alert{
				ID:        AlertID(start, ip, models.RuleBruteForce),
				Rule:      models.RuleBruteForce,
				Timestamp: start,
				SourceIP:  ip,
				Severity:  models.SeverityMedium,
				Details:   fmt.Sprintf("Detected %d failed login attempts within %d minutes.", len(evidence), int(d.cfg.BruteWindow.Minutes())),
				Evidence:  evidence,
			})
		}
	}
}

// detectSensitiveAccess scans each raw line for sensitive path substrings.
// At most one alert per event: the first matching path wins.
func (d *Detector) detectSensitiveAccess(events []models.Event) {
	for _, event := range events {
		for _, path := range sensitivePaths {
			if !strings.Contains(event.Raw, path) {
				continue
			}
			d.emit(models.Alert{
				ID:        AlertID(event.Timestamp, event.SourceIP, models.RuleSensitiveAccess),
				Rule:      models.RuleSensitiveAccess,
				Timestamp: event.Timestamp,
				SourceIP:  event.SourceIP,
				Severity:  models.SeverityHigh,
				Details:   fmt.Sprintf("Access detected to sensitive file: %s", path),
				Evidence:  []models.Event{event},
			})
			break
		}
	}
}

// detectPrivilegedLogin alerts on every successful login by a privileged
// account.
func (d *Detector) detectPrivilegedLogin(events []models.Event) {
	for _, event := range events {
		if event.Status != models.StatusSuccess {
			continue
		}
		if _, ok := privilegedUsers[event.User]; !ok {
			continue
		}
		d.emit(models.Alert{
			ID:        AlertID(event.Timestamp, event.SourceIP, models.RulePrivilegedLogin),
			Rule:      models.RulePrivilegedLogin,
			Timestamp: event.Timestamp,
			SourceIP:  event.SourceIP,
			Severity:  models.SeverityLow,
			Details:   fmt.Sprintf("Successful login by privileged user: %s", event.User),
			Evidence:  []models.Event{event},
		})
	}
}

func (d *Detector) detectSigma(events []models.Event) {
	if d.cfg.Sigma == nil {
		return
	}
	for _, event := range events {
		for _, match := range d.cfg.Sigma.Matches(event) {
			d.emit(models.Alert{
				ID:        AlertID(event.Timestamp, event.SourceIP, match.Rule),
				Rule:      match.Rule,
				Timestamp: event.Timestamp,
				SourceIP:  event.SourceIP,
				Severity:  match.Severity,
				Details:   match.Details,
				Evidence:  []models.Event{event},
			})
		}
	}
}

func (d *Detector) emit(alert models.Alert) {
	d.alerts = append(d.alerts, alert)
	metrics.AlertsGenerated.WithLabelValues(alert.Rule, alert.Severity.String()).Inc()
}

// AlertID derives a stable 8-character id from the triggering moment, source
// IP and rule name, so repeated runs over the same input produce the same
// ids.
func AlertID(ts time.Time, sourceIP, rule string) string {
	seed := ts.UTC().Format(time.RFC3339Nano) + sourceIP + rule
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(seed)).String()[:8]
}

// sortAlerts imposes a total order so repeated runs yield identical output
// even when alerts share a timestamp.
func sortAlerts(alerts []models.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		return a.SourceIP < b.SourceIP
	})
}
