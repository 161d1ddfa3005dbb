package anomaly

import (
	"log/slog"
	"time"

	"anomaly-detection/utils"
)

// Sink receives every produced record. Implementations are append-only
// collaborators (event log, database); they never mutate records.
type Sink interface {
	Append(record AnalysisRecord) error
}

// Analyzer sequences the pipeline: feature building, classification and
// risk evaluation. The classifier handle is loaded once and treated as
// read-only, so a single Analyzer serves concurrent requests without
// locking.
type Analyzer struct {
	classifier Classifier
	evaluator  *Evaluator
	sinks      []Sink
	logger     *slog.Logger
}

// NewAnalyzer wires the pipeline. Sinks are optional; a failing sink is
// logged and skipped, never surfaced to the caller.
func NewAnalyzer(classifier Classifier, evaluator *Evaluator, sinks ...Sink) *Analyzer {
	return &Analyzer{
		classifier: classifier,
		evaluator:  evaluator,
		sinks:      sinks,
		logger:     utils.GetLogger(),
	}
}

// Mode reports which classifier variant the pipeline is running with.
func (a *Analyzer) Mode() ClassifierMode {
	return a.classifier.Mode()
}

// ModelStats exposes metadata about the loaded classifier for status
// responses and the dashboard.
func (a *Analyzer) ModelStats() ModelStats {
	return a.classifier.Stats()
}

// Analyze runs one reading through the pipeline and returns the complete
// record. It never fails: malformed values are clamped or defaulted and
// degrade to a normal/safe verdict. The record is appended to every
// configured sink as a side effect.
func (a *Analyzer) Analyze(reading SensorReading) AnalysisRecord {
	started := time.Now()

	if reading.Timestamp.IsZero() {
		reading.Timestamp = started
	}
	if reading.Source == "" {
		reading.Source = SourceSimulated
	}

	features := BuildFeatures(reading)
	classification := a.classifier.Classify(features)
	risk := a.evaluator.Assess(classification, reading.FlameDetected, reading.MotionDetected)

	record := AnalysisRecord{
		ID:             started.UnixNano(),
		Timestamp:      reading.Timestamp,
		Reading:        reading,
		Classification: classification,
		Risk:           risk,
		ClassifierMode: a.classifier.Mode(),
		LatencyMs:      time.Since(started).Seconds() * 1000,
	}

	a.logger.Info("analysis complete",
		slog.String("source", reading.Source),
		slog.Int("amplitude", reading.Amplitude),
		slog.Int("patternID", reading.PatternID),
		slog.String("soundType", classification.SoundType.String()),
		slog.Float64("confidence", classification.Confidence),
		slog.String("riskLevel", risk.RiskLevel.String()),
		slog.String("mode", string(record.ClassifierMode)),
	)

	for _, sink := range a.sinks {
		if err := sink.Append(record); err != nil {
			a.logger.Warn("failed to append analysis record to sink",
				slog.Int64("recordID", record.ID),
				slog.Any("error", err),
			)
		}
	}

	return record
}
