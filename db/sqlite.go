package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"anomaly-detection/anomaly"
	"anomaly-detection/utils"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists analysis records in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn and ensures the
// schema exists.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dir != "." && dir != "" && dsn != ":memory:" {
		if err := utils.CreateFolder(dir); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) createTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS analysis_records (
			id INTEGER PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			amplitude INTEGER NOT NULL,
			pattern_id INTEGER NOT NULL,
			flame_detected INTEGER NOT NULL,
			motion_detected INTEGER NOT NULL,
			source TEXT NOT NULL,
			sound_type TEXT NOT NULL,
			confidence REAL NOT NULL,
			per_class_scores TEXT NOT NULL,
			risk_level TEXT NOT NULL,
			recommendations TEXT NOT NULL,
			classifier_mode TEXT NOT NULL,
			latency_ms REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_records_timestamp ON analysis_records(timestamp);
		CREATE INDEX IF NOT EXISTS idx_records_risk ON analysis_records(risk_level);
	`)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Append stores one analysis record.
func (s *SQLiteStore) Append(record anomaly.AnalysisRecord) error {
	scores, err := json.Marshal(record.Classification.PerClassScores)
	if err != nil {
		return fmt.Errorf("failed to marshal per-class scores: %w", err)
	}
	recs, err := json.Marshal(record.Risk.Recommendations)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO analysis_records (
			id, timestamp, amplitude, pattern_id, flame_detected,
			motion_detected, source, sound_type, confidence,
			per_class_scores, risk_level, recommendations,
			classifier_mode, latency_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Timestamp.UTC(),
		record.Reading.Amplitude,
		record.Reading.PatternID,
		boolToInt(record.Reading.FlameDetected),
		boolToInt(record.Reading.MotionDetected),
		record.Reading.Source,
		record.Classification.SoundType.String(),
		record.Classification.Confidence,
		string(scores),
		record.Risk.RiskLevel.String(),
		string(recs),
		string(record.ClassifierMode),
		record.LatencyMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis record: %w", err)
	}
	return nil
}

// Recent returns the latest records, newest first. A non-positive limit
// defaults to 50.
func (s *SQLiteStore) Recent(limit int) ([]anomaly.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, timestamp, amplitude, pattern_id, flame_detected,
		       motion_detected, source, sound_type, confidence,
		       per_class_scores, risk_level, recommendations,
		       classifier_mode, latency_ms
		FROM analysis_records
		ORDER BY timestamp DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis records: %w", err)
	}
	defer rows.Close()

	var records []anomaly.AnalysisRecord
	for rows.Next() {
		var (
			record      anomaly.AnalysisRecord
			timestamp   time.Time
			flame       int
			motion      int
			soundType   string
			scoresJSON  string
			riskLevel   string
			recsJSON    string
			mode        string
		)
		if err := rows.Scan(
			&record.ID, &timestamp, &record.Reading.Amplitude,
			&record.Reading.PatternID, &flame, &motion,
			&record.Reading.Source, &soundType,
			&record.Classification.Confidence, &scoresJSON,
			&riskLevel, &recsJSON, &mode, &record.LatencyMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan analysis record: %w", err)
		}

		record.Timestamp = timestamp
		record.Reading.Timestamp = timestamp
		record.Reading.FlameDetected = flame != 0
		record.Reading.MotionDetected = motion != 0
		record.ClassifierMode = anomaly.ClassifierMode(mode)

		sound, err := anomaly.ParseSoundType(soundType)
		if err != nil {
			return nil, fmt.Errorf("corrupt record %d: %w", record.ID, err)
		}
		record.Classification.SoundType = sound

		if err := record.Risk.RiskLevel.UnmarshalText([]byte(riskLevel)); err != nil {
			return nil, fmt.Errorf("corrupt record %d: %w", record.ID, err)
		}

		if err := json.Unmarshal([]byte(scoresJSON), &record.Classification.PerClassScores); err != nil {
			return nil, fmt.Errorf("corrupt record %d: %w", record.ID, err)
		}
		if err := json.Unmarshal([]byte(recsJSON), &record.Risk.Recommendations); err != nil {
			return nil, fmt.Errorf("corrupt record %d: %w", record.ID, err)
		}

		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analysis records: %w", err)
	}
	return records, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
