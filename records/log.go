// Package records implements the append-only event log sink. Every
// analysis record is written as one line of JSON; rotation keeps the log
// bounded without an external maintenance job.
package records

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"anomaly-detection/anomaly"
	"anomaly-detection/utils"

	"gopkg.in/natefinch/lumberjack.v2"
)

// EventLog appends analysis records as line-delimited JSON through a
// rotating writer. Safe for concurrent use.
type EventLog struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
}

// NewEventLog opens (or creates) the event log at path.
func NewEventLog(path string) (*EventLog, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := utils.CreateFolder(dir); err != nil {
			return nil, fmt.Errorf("failed to create event log directory: %w", err)
		}
	}

	return &EventLog{
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes per file
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		},
	}, nil
}

// Append writes one record as a single JSON line.
func (l *EventLog) Append(record anomaly.AnalysisRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis record: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to append analysis record: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying log file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer.Close()
}
