package alerts

import (
	"strings"
	"testing"

	"anomaly-detection/anomaly"
)

func record(sound anomaly.SoundType, level anomaly.RiskLevel, flame, motion bool, recs ...string) anomaly.AnalysisRecord {
	return anomaly.AnalysisRecord{
		Reading: anomaly.SensorReading{FlameDetected: flame, MotionDetected: motion},
		Classification: anomaly.ClassificationResult{
			SoundType:  sound,
			Confidence: 0.9,
		},
		Risk: anomaly.RiskAssessment{RiskLevel: level, Recommendations: recs},
	}
}

func TestAnnouncementTextHighRisk(t *testing.T) {
	t.Parallel()

	text := AnnouncementText(record(
		anomaly.SoundGlassBreak, anomaly.RiskHigh, false, true,
		"HIGH RISK situation detected. Immediate attention required.",
	))

	if !strings.HasPrefix(text, "Attention. High risk detected.") {
		t.Fatalf("high risk announcement missing prefix: %q", text)
	}
	if !strings.Contains(text, "glass breaking") {
		t.Fatalf("announcement missing sound description: %q", text)
	}
	if !strings.Contains(text, "Motion is detected") {
		t.Fatalf("announcement missing motion notice: %q", text)
	}
	if strings.Contains(text, "flame signature") {
		t.Fatalf("announcement mentions flame without flame sensor: %q", text)
	}
	if !strings.Contains(text, "Immediate attention required.") {
		t.Fatalf("announcement missing first recommendation: %q", text)
	}
}

func TestAnnouncementTextFlame(t *testing.T) {
	t.Parallel()

	text := AnnouncementText(record(anomaly.SoundFireCrackle, anomaly.RiskHigh, true, false))
	if !strings.Contains(text, "A flame signature is present.") {
		t.Fatalf("announcement missing flame notice: %q", text)
	}
}

func TestAnnouncementTextSafe(t *testing.T) {
	t.Parallel()

	text := AnnouncementText(record(anomaly.SoundNormal, anomaly.RiskSafe, false, false))
	if !strings.HasPrefix(text, "All clear.") {
		t.Fatalf("safe announcement should start with all clear: %q", text)
	}
}
