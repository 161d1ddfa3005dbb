package anomaly

import (
	"fmt"
	"time"
)

// SoundType is the closed set of sound archetypes the classifier can emit.
// The numeric order matches the class ids used by the training pipeline.
type SoundType int

const (
	SoundNormal SoundType = iota
	SoundGlassBreak
	SoundFireCrackle
	SoundHumanScream
	SoundDogBark

	soundTypeCount = 5
)

// SoundTypes lists every label in class-id order.
var SoundTypes = [soundTypeCount]SoundType{
	SoundNormal,
	SoundGlassBreak,
	SoundFireCrackle,
	SoundHumanScream,
	SoundDogBark,
}

// severityOrder ranks labels from most to least severe. Classification ties
// are broken in this order so identical scores always resolve the same way.
var severityOrder = [soundTypeCount]SoundType{
	SoundHumanScream,
	SoundGlassBreak,
	SoundFireCrackle,
	SoundDogBark,
	SoundNormal,
}

func (s SoundType) String() string {
	switch s {
	case SoundNormal:
		return "normal"
	case SoundGlassBreak:
		return "glass_break"
	case SoundFireCrackle:
		return "fire_crackle"
	case SoundHumanScream:
		return "human_scream"
	case SoundDogBark:
		return "dog_bark"
	}
	return fmt.Sprintf("sound_type(%d)", int(s))
}

// Description returns the human readable name shown on the dashboard.
func (s SoundType) Description() string {
	switch s {
	case SoundNormal:
		return "Normal background noise"
	case SoundGlassBreak:
		return "Sound of glass breaking"
	case SoundFireCrackle:
		return "Sound of fire crackling"
	case SoundHumanScream:
		return "Human scream or shout"
	case SoundDogBark:
		return "Dog barking"
	}
	return "Unknown sound"
}

// MarshalText encodes the label as its snake_case name. Implementing
// TextMarshaler also makes SoundType usable as a JSON object key.
func (s SoundType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SoundType) UnmarshalText(text []byte) error {
	parsed, err := ParseSoundType(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSoundType maps a label name back to its SoundType.
func ParseSoundType(name string) (SoundType, error) {
	for _, s := range SoundTypes {
		if s.String() == name {
			return s, nil
		}
	}
	return SoundNormal, fmt.Errorf("unknown sound type %q", name)
}

// RiskLevel is the ordered severity tier attached to an analyzed event.
// Greater values are strictly more severe.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskSafe:
		return "safe"
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	}
	return fmt.Sprintf("risk_level(%d)", int(r))
}

func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RiskLevel) UnmarshalText(text []byte) error {
	for _, level := range []RiskLevel{RiskSafe, RiskLow, RiskMedium, RiskHigh} {
		if level.String() == string(text) {
			*r = level
			return nil
		}
	}
	return fmt.Errorf("unknown risk level %q", string(text))
}

// ClassifierMode tells callers which classifier variant produced a result.
type ClassifierMode string

const (
	ModeTrained  ClassifierMode = "trained"
	ModeFallback ClassifierMode = "fallback"
)

// Reading sources, surfaced so the caller can judge data freshness.
const (
	SourceLive      = "live"
	SourceSample    = "sample"
	SourceSimulated = "simulated"
)

// SensorReading is a single observation from the telemetry channel.
// Immutable once constructed; out-of-range values are clamped by the
// feature builder, never rejected.
type SensorReading struct {
	Amplitude      int       `json:"amplitude"`
	PatternID      int       `json:"pattern_id"`
	FlameDetected  bool      `json:"flame_detected"`
	MotionDetected bool      `json:"motion_detected"`
	Timestamp      time.Time `json:"timestamp"`
	Source         string    `json:"source,omitempty"`
}

// ClassificationResult is the classifier verdict for one feature vector.
// Invariant: Confidence == max(PerClassScores), SoundType == argmax, and the
// scores sum to 1.
type ClassificationResult struct {
	SoundType      SoundType             `json:"sound_type"`
	Confidence     float64               `json:"confidence"`
	PerClassScores map[SoundType]float64 `json:"per_class_scores"`
}

// RiskAssessment is the evaluated severity plus operator recommendations.
type RiskAssessment struct {
	RiskLevel       RiskLevel `json:"risk_level"`
	Recommendations []string  `json:"recommendations"`
}

// AnalysisRecord is the complete, timestamped output of one pipeline pass.
// Write-once; sinks only ever append it.
type AnalysisRecord struct {
	ID             int64                `json:"id"`
	Timestamp      time.Time            `json:"timestamp"`
	Reading        SensorReading        `json:"sensor_data"`
	Classification ClassificationResult `json:"classification"`
	Risk           RiskAssessment       `json:"risk"`
	ClassifierMode ClassifierMode       `json:"classifier_mode"`
	LatencyMs      float64              `json:"latency_ms"`
}

// ModelStats exposes metadata about the loaded classifier.
type ModelStats struct {
	Mode         ClassifierMode   `json:"mode"`
	ClassCount   int              `json:"classCount"`
	Classes      []ModelClassStat `json:"classes"`
	UsingExample bool             `json:"usingExample,omitempty"`
	Path         string           `json:"path,omitempty"`
}

// ModelClassStat summarises one class of the loaded model.
type ModelClassStat struct {
	Label SoundType `json:"label"`
	Prior float64   `json:"prior"`
}
