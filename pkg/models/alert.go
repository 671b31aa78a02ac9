package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Rule names for the built-in detection rules. Correlation patterns and the
// narrative conclusion key off these.
const (
	RuleBruteForce      = "Brute Force Attempt"
	RuleSensitiveAccess = "Sensitive File Access"
	RulePrivilegedLogin = "Privileged User Login"
)

// Severity is an ordered alert severity. Enrichment may raise it but never
// lowers it.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the display name for the severity.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "Critical"
	case SeverityHigh:
		return "High"
	case SeverityMedium:
		return "Medium"
	default:
		return "Low"
	}
}

// ParseSeverity maps a severity name to a level. Unknown names map to Low.
func ParseSeverity(v string) Severity {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// MarshalJSON encodes the severity as its display name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity display name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = ParseSeverity(v)
	return nil
}

// Alert is one detection result. ID, Rule, Timestamp, SourceIP, Details and
// Evidence are fixed at detection time; Severity, Analysis and RelatedEvents
// may be replaced by enrichment.
type Alert struct {
	ID            string    `json:"id"`
	Rule          string    `json:"rule"`
	Timestamp     time.Time `json:"timestamp"`
	SourceIP      string    `json:"source_ip"`
	Severity      Severity  `json:"severity"`
	Details       string    `json:"details"`
	Evidence      []Event   `json:"evidence,omitempty"`
	Analysis      string    `json:"ai_analysis,omitempty"`
	RelatedEvents []Event   `json:"related_events,omitempty"`
}
