package narrative

import (
	"errors"
	"strings"
	"testing"
	"time"

	"soctrace/pkg/models"
)

func event(ts time.Time, ip, user, eventType, status string) models.Event {
	return models.Event{Timestamp: ts, SourceIP: ip, User: user, EventType: eventType, Status: status}
}

func TestUnknownAlertIDReturnsNotFound(t *testing.T) {
	_, err := NewBuilder(Config{}).Build("deadbeef", nil, nil)
	if !errors.Is(err, ErrAlertNotFound) {
		t.Fatalf("expected ErrAlertNotFound, got %v", err)
	}
}

func TestFindAlert(t *testing.T) {
	alerts := []models.Alert{{ID: "aaaa0001"}, {ID: "aaaa0002"}}

	if got, ok := FindAlert(alerts, "aaaa0002"); !ok || got.ID != "aaaa0002" {
		t.Fatalf("expected to find aaaa0002, got %+v ok=%v", got, ok)
	}
	if _, ok := FindAlert(alerts, "missing"); ok {
		t.Fatalf("expected lookup miss for unknown id")
	}
}

func TestPhaseBoundaries(t *testing.T) {
	trigger := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alert := models.Alert{
		ID:        "aaaa0001",
		Rule:      models.RulePrivilegedLogin,
		Timestamp: trigger,
		SourceIP:  "10.0.0.5",
		Severity:  models.SeverityLow,
		Details:   "Successful login by privileged user: root",
	}
	events := []models.Event{
		// Exactly T-1h: outside Phase 1.
		event(trigger.Add(-time.Hour), "10.0.0.5", "root", "early_probe", models.StatusInfo),
		// Exactly T: in neither phase.
		event(trigger, "10.0.0.5", "root", "login", models.StatusSuccess),
		// Exactly T+1h: inside Phase 3.
		event(trigger.Add(time.Hour), "10.0.0.5", "root", "late_exec", models.StatusSuccess),
		// Past T+1h: outside Phase 3.
		event(trigger.Add(time.Hour+time.Second), "10.0.0.5", "root", "too_late", models.StatusSuccess),
	}

	text, err := NewBuilder(Config{}).Build("aaaa0001", []models.Alert{alert}, events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(text, "No prior activity observed") {
		t.Fatalf("event at exactly T-1h must be excluded from Phase 1:\n%s", text)
	}
	if !strings.Contains(text, "late_exec") {
		t.Fatalf("event at exactly T+1h must be included in Phase 3:\n%s", text)
	}
	if strings.Contains(text, "too_late") {
		t.Fatalf("event past T+1h must be excluded from Phase 3:\n%s", text)
	}
	if strings.Contains(text, "early_probe") {
		t.Fatalf("event at T-1h leaked into the narrative:\n%s", text)
	}
}

func TestPreIncidentSummaryOrdering(t *testing.T) {
	trigger := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alert := models.Alert{
		ID:        "aaaa0001",
		Rule:      models.RuleSensitiveAccess,
		Timestamp: trigger,
		SourceIP:  "10.0.0.5",
		Severity:  models.SeverityHigh,
		Details:   "Access detected to sensitive file: /etc/shadow",
	}
	events := []models.Event{
		event(trigger.Add(-30*time.Minute), "10.0.0.5", "u", "port_scan", models.StatusInfo),
		event(trigger.Add(-25*time.Minute), "10.0.0.5", "u", "port_scan", models.StatusInfo),
		event(trigger.Add(-20*time.Minute), "10.0.0.5", "u", "dns_probe", models.StatusInfo),
		event(trigger.Add(-15*time.Minute), "10.0.0.5", "u", "banner_grab", models.StatusInfo),
		// Different source, must not count.
		event(trigger.Add(-10*time.Minute), "10.0.0.6", "u", "port_scan", models.StatusInfo),
	}

	text, err := NewBuilder(Config{}).Build("aaaa0001", []models.Alert{alert}, events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	scan := strings.Index(text, "port_scan: 2")
	banner := strings.Index(text, "banner_grab: 1")
	dns := strings.Index(text, "dns_probe: 1")
	if scan < 0 || banner < 0 || dns < 0 {
		t.Fatalf("missing summary lines:\n%s", text)
	}
	if !(scan < banner && banner < dns) {
		t.Fatalf("summary must order by count desc then name asc:\n%s", text)
	}
}

func TestIncidentPhaseIncludesDetailsAndAnalysis(t *testing.T) {
	trigger := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alert := models.Alert{
		ID:        "aaaa0001",
		Rule:      models.RuleBruteForce,
		Timestamp: trigger,
		SourceIP:  "10.0.0.5",
		Severity:  models.SeverityCritical,
		Details:   "Detected 4 failed login attempts within 5 minutes.",
		Analysis:  "AI CORRELATION: Brute force attack resulted in a successful authentication! Potential Account Takeover detected.",
	}

	text, err := NewBuilder(Config{}).Build("aaaa0001", []models.Alert{alert}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "Primary Alert: Detected 4 failed login attempts within 5 minutes.") {
		t.Fatalf("missing details restatement:\n%s", text)
	}
	if !strings.Contains(text, "AI Insight: AI CORRELATION") {
		t.Fatalf("missing analysis restatement:\n%s", text)
	}
}

func TestPostIncidentListsEventsInOrder(t *testing.T) {
	trigger := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alert := models.Alert{
		ID:        "aaaa0001",
		Rule:      models.RuleBruteForce,
		Timestamp: trigger,
		SourceIP:  "10.0.0.5",
		Severity:  models.SeverityMedium,
		Details:   "Detected 3 failed login attempts within 5 minutes.",
	}
	events := []models.Event{
		event(trigger.Add(20*time.Minute), "10.0.0.5", "svc", "file_download", models.StatusSuccess),
		event(trigger.Add(5*time.Minute), "10.0.0.5", "svc", "ssh_login", models.StatusSuccess),
	}

	text, err := NewBuilder(Config{}).Build("aaaa0001", []models.Alert{alert}, events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	login := strings.Index(text, "ssh_login")
	download := strings.Index(text, "file_download")
	if login < 0 || download < 0 {
		t.Fatalf("missing post-incident lines:\n%s", text)
	}
	if login > download {
		t.Fatalf("post-incident events must be in ascending time order:\n%s", text)
	}
}

func TestConclusionPrecedence(t *testing.T) {
	cases := []struct {
		name  string
		alert models.Alert
		want  string
	}{
		{
			name:  "critical wins over rule wording",
			alert: models.Alert{Rule: models.RuleBruteForce, Severity: models.SeverityCritical},
			want:  "CONFIRMED SECURITY INCIDENT",
		},
		{
			name:  "brute force wording",
			alert: models.Alert{Rule: models.RuleBruteForce, Severity: models.SeverityMedium},
			want:  "Brute Force Attack against authentication services",
		},
		{
			name:  "generic fallback",
			alert: models.Alert{Rule: models.RulePrivilegedLogin, Severity: models.SeverityLow},
			want:  "The root cause appears to be Privileged User Login.",
		},
	}

	for _, tc := range cases {
		tc.alert.ID = "aaaa0001"
		tc.alert.Timestamp = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		tc.alert.SourceIP = "10.0.0.5"

		text, err := NewBuilder(Config{}).Build("aaaa0001", []models.Alert{tc.alert}, nil)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !strings.Contains(text, tc.want) {
			t.Fatalf("%s: missing conclusion %q:\n%s", tc.name, tc.want, text)
		}
		if n := strings.Count(text, "ROOT CAUSE CONCLUSION:"); n != 1 {
			t.Fatalf("%s: expected exactly one conclusion section, got %d", tc.name, n)
		}
	}
}
