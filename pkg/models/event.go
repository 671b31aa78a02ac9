package models

import "time"

// Event is one normalized log record. Ingestion guarantees every field is
// populated, substituting defaults where the source line carried nothing.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	SourceIP   string    `json:"source_ip"`
	User       string    `json:"user"`
	EventType  string    `json:"event"`
	Status     string    `json:"status"`
	Raw        string    `json:"raw"`
	SourceFile string    `json:"source_file"`
}

// Event status values set by ingestion.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusInfo    = "info"
	StatusUnknown = "unknown"
)
