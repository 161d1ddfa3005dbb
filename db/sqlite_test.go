package db

import (
	"testing"
	"time"

	"anomaly-detection/anomaly"
)

func testRecord(id int64, offset time.Duration, sound anomaly.SoundType, level anomaly.RiskLevel) anomaly.AnalysisRecord {
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	return anomaly.AnalysisRecord{
		ID:        id,
		Timestamp: base.Add(offset),
		Reading: anomaly.SensorReading{
			Amplitude:      850,
			PatternID:      3,
			MotionDetected: true,
			Timestamp:      base.Add(offset),
			Source:         anomaly.SourceSimulated,
		},
		Classification: anomaly.ClassificationResult{
			SoundType:  sound,
			Confidence: 0.9,
			PerClassScores: map[anomaly.SoundType]float64{
				anomaly.SoundNormal:      0.025,
				anomaly.SoundGlassBreak:  0.9,
				anomaly.SoundFireCrackle: 0.025,
				anomaly.SoundHumanScream: 0.025,
				anomaly.SoundDogBark:     0.025,
			},
		},
		Risk: anomaly.RiskAssessment{
			RiskLevel:       level,
			Recommendations: []string{"HIGH RISK situation detected. Immediate attention required."},
		},
		ClassifierMode: anomaly.ModeTrained,
		LatencyMs:      1.5,
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore returned error: %v", err)
	}
	defer store.Close()

	if err := store.Append(testRecord(1, 0, anomaly.SoundGlassBreak, anomaly.RiskHigh)); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	records, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	got := records[0]
	if got.ID != 1 {
		t.Fatalf("id = %d, want 1", got.ID)
	}
	if got.Reading.Amplitude != 850 || got.Reading.PatternID != 3 {
		t.Fatalf("reading round-trip mismatch: %+v", got.Reading)
	}
	if !got.Reading.MotionDetected || got.Reading.FlameDetected {
		t.Fatalf("boolean flags round-trip mismatch: %+v", got.Reading)
	}
	if got.Classification.SoundType != anomaly.SoundGlassBreak {
		t.Fatalf("sound type = %s, want glass_break", got.Classification.SoundType)
	}
	if got.Classification.Confidence != 0.9 {
		t.Fatalf("confidence = %v, want 0.9", got.Classification.Confidence)
	}
	if got.Classification.PerClassScores[anomaly.SoundGlassBreak] != 0.9 {
		t.Fatalf("per-class scores round-trip mismatch: %v", got.Classification.PerClassScores)
	}
	if got.Risk.RiskLevel != anomaly.RiskHigh {
		t.Fatalf("risk level = %s, want high", got.Risk.RiskLevel)
	}
	if len(got.Risk.Recommendations) != 1 {
		t.Fatalf("recommendations round-trip mismatch: %v", got.Risk.Recommendations)
	}
	if got.ClassifierMode != anomaly.ModeTrained {
		t.Fatalf("classifier mode = %s, want trained", got.ClassifierMode)
	}
}

func TestSQLiteStoreRecentOrdersNewestFirst(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore returned error: %v", err)
	}
	defer store.Close()

	for i := int64(1); i <= 5; i++ {
		record := testRecord(i, time.Duration(i)*time.Minute, anomaly.SoundNormal, anomaly.RiskSafe)
		if err := store.Append(record); err != nil {
			t.Fatalf("Append returned error: %v", err)
		}
	}

	records, err := store.Recent(3)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].Timestamp.After(records[i-1].Timestamp) {
			t.Fatalf("records not ordered newest first: %v before %v",
				records[i-1].Timestamp, records[i].Timestamp)
		}
	}
	if records[0].ID != 5 {
		t.Fatalf("newest record id = %d, want 5", records[0].ID)
	}
}

func TestSQLiteStoreRecentEmptyDatabase(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore returned error: %v", err)
	}
	defer store.Close()

	records, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("got %d records from empty store, want 0", len(records))
	}
}
