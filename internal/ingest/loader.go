package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"soctrace/internal/logger"
	"soctrace/internal/metrics"
	"soctrace/pkg/models"
)

var (
	syslogPattern = regexp.MustCompile(`^([A-Z][a-z]{2}\s+\d+\s\d{2}:\d{2}:\d{2})\s+(\S+)\s+([^:]+):\s+(.*)$`)
	ipPattern     = regexp.MustCompile(`(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})`)
	userPattern   = regexp.MustCompile(`user\s+(\w+)`)
	sudoUser      = regexp.MustCompile(`USER=(\w+)`)
)

// Defaults substituted when a log line carries no value for a field.
const (
	DefaultIP   = "0.0.0.0"
	DefaultUser = "unknown"
)

// Loader ingests supported log files from a directory into normalized events.
type Loader struct {
	dir string
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Load walks the log directory and ingests .json (JSON lines) and .log/.txt
// (syslog-style) files. The result is sorted ascending by timestamp. A
// missing directory is an error; unparseable files and lines are skipped
// with a warning.
func (l *Loader) Load() ([]models.Event, error) {
	if _, err := os.Stat(l.dir); err != nil {
		return nil, fmt.Errorf("log directory %s: %w", l.dir, err)
	}

	events := make([]models.Event, 0, 1024)
	err := filepath.WalkDir(l.dir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}

		var (
			parsed []models.Event
			err    error
		)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			parsed, err = parseJSONFile(path)
		case ".log", ".txt":
			parsed, err = parseTextFile(path)
		default:
			return nil
		}
		if err != nil {
			logger.Warnf("failed to parse %s: %v", filepath.Base(path), err)
			return nil
		}
		events = append(events, parsed...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk log directory: %w", err)
	}

	SortEvents(events)
	metrics.EventsIngested.WithLabelValues("file").Add(float64(len(events)))
	return events, nil
}

// SortEvents sorts events ascending by timestamp, preserving the relative
// order of same-instant events.
func SortEvents(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// ParseJSONLine normalizes one JSON log line. It returns false when the line
// is empty, malformed, or carries no parseable timestamp.
func ParseJSONLine(line, sourceFile string) (models.Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return models.Event{}, false
	}

	var raw struct {
		Timestamp string `json:"timestamp"`
		SourceIP  string `json:"source_ip"`
		User      string `json:"user"`
		Event     string `json:"event"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return models.Event{}, false
	}

	ts, ok := parseTimestamp(raw.Timestamp)
	if !ok {
		return models.Event{}, false
	}

	event := models.Event{
		Timestamp:  ts,
		SourceIP:   raw.SourceIP,
		User:       raw.User,
		EventType:  raw.Event,
		Status:     raw.Status,
		Raw:        line,
		SourceFile: sourceFile,
	}
	if event.SourceIP == "" {
		event.SourceIP = DefaultIP
	}
	if event.User == "" {
		event.User = DefaultUser
	}
	if event.EventType == "" {
		event.EventType = "unknown"
	}
	if event.Status == "" {
		event.Status = models.StatusUnknown
	}
	return event, true
}

// ParseSyslogLine normalizes one syslog-style line, extracting the source IP
// and acting user heuristically from the message body. Syslog timestamps
// carry no year; the given year is injected.
func ParseSyslogLine(line, sourceFile string, year int) (models.Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return models.Event{}, false
	}

	m := syslogPattern.FindStringSubmatch(line)
	if m == nil {
		return models.Event{}, false
	}
	tsStr, _, process, message := m[1], m[2], m[3], m[4]

	ts, err := time.ParseInLocation("2006 Jan _2 15:04:05", fmt.Sprintf("%d %s", year, tsStr), time.UTC)
	if err != nil {
		return models.Event{}, false
	}

	event := models.Event{
		Timestamp:  ts,
		SourceIP:   DefaultIP,
		User:       DefaultUser,
		EventType:  "system_log",
		Status:     models.StatusInfo,
		Raw:        line,
		SourceFile: sourceFile,
	}

	if ipm := ipPattern.FindStringSubmatch(message); ipm != nil {
		event.SourceIP = ipm[1]
	}
	if um := userPattern.FindStringSubmatch(message); um != nil {
		event.User = um[1]
	} else if um := sudoUser.FindStringSubmatch(message); um != nil {
		event.User = um[1]
	}

	switch {
	case strings.Contains(message, "Failed password"):
		event.EventType = "ssh_failed_login"
		event.Status = models.StatusFailed
	case strings.Contains(process, "sudo"):
		event.EventType = "sudo_execution"
		event.Status = models.StatusSuccess
	}

	return event, true
}

func parseJSONFile(path string) ([]models.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	name := filepath.Base(path)
	events := make([]models.Event, 0, 256)
	s := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	s.Buffer(buf, 1024*1024)
	for s.Scan() {
		if event, ok := ParseJSONLine(s.Text(), name); ok {
			events = append(events, event)
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return events, nil
}

func parseTextFile(path string) ([]models.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	name := filepath.Base(path)
	year := time.Now().Year()
	events := make([]models.Event, 0, 256)
	s := bufio.NewScanner(f)
	for s.Scan() {
		if event, ok := ParseSyslogLine(s.Text(), name, year); ok {
			events = append(events, event)
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return events, nil
}

func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
