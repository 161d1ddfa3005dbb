package advisor

import (
	"strings"
	"testing"

	"anomaly-detection/anomaly"
)

func TestDescribeRecord(t *testing.T) {
	t.Parallel()

	record := anomaly.AnalysisRecord{
		Reading: anomaly.SensorReading{
			Amplitude:      850,
			PatternID:      7,
			MotionDetected: true,
		},
		Classification: anomaly.ClassificationResult{
			SoundType:  anomaly.SoundHumanScream,
			Confidence: 0.92,
		},
		Risk: anomaly.RiskAssessment{
			RiskLevel:       anomaly.RiskHigh,
			Recommendations: []string{"Check on household members immediately."},
		},
		ClassifierMode: anomaly.ModeTrained,
	}

	prompt := describeRecord(record)

	for _, want := range []string{
		"human_scream",
		"Human scream or shout",
		"92%",
		"trained",
		"Risk level: high.",
		"amplitude 850",
		"pattern 7",
		"motion true",
		"Check on household members immediately.",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestNewGeminiAdvisorRequiresKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := NewGeminiAdvisor(); err == nil {
		t.Fatal("expected error without GEMINI_API_KEY")
	}
}
