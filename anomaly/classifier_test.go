package anomaly

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestModelArtifactStructure(t *testing.T) {
	t.Parallel()

	path := modelFilePath(t)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}

	var artifact modelArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		t.Fatalf("failed to parse %s: %v", path, err)
	}

	if artifact.FeatureCount != FeatureCount {
		t.Fatalf("artifact declares %d features, pipeline produces %d", artifact.FeatureCount, FeatureCount)
	}
	if len(artifact.Classes) != soundTypeCount {
		t.Fatalf("artifact defines %d classes, expected %d", len(artifact.Classes), soundTypeCount)
	}

	var priorSum float64
	for _, class := range artifact.Classes {
		if len(class.Mean) != FeatureCount || len(class.Stddev) != FeatureCount {
			t.Errorf("class %s has malformed parameters", class.Label)
		}
		for i, sd := range class.Stddev {
			if sd <= 0 {
				t.Errorf("class %s stddev[%d] = %f, must be positive", class.Label, i, sd)
			}
		}
		priorSum += class.Prior
	}
	if math.Abs(priorSum-1.0) > 1e-6 {
		t.Errorf("priors sum to %f, expected 1", priorSum)
	}
}

func TestTrainedClassifierArchetypeCenters(t *testing.T) {
	t.Parallel()

	classifier := loadTestClassifier(t)

	cases := []struct {
		name      string
		amplitude int
		pattern   int
		want      SoundType
	}{
		{"quiet ambient", 400, 1, SoundNormal},
		{"glass impact", 800, 4, SoundGlassBreak},
		{"crackling fire", 600, 5, SoundFireCrackle},
		{"scream", 850, 8, SoundHumanScream},
		{"barking", 700, 10, SoundDogBark},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reading := SensorReading{Amplitude: tc.amplitude, PatternID: tc.pattern}
			result := classifier.Classify(BuildFeatures(reading))
			if result.SoundType != tc.want {
				t.Fatalf("amplitude=%d pattern=%d classified as %s, want %s",
					tc.amplitude, tc.pattern, result.SoundType, tc.want)
			}
			assertResultInvariants(t, result)
		})
	}
}

func TestTrainedClassifierDeterministic(t *testing.T) {
	t.Parallel()

	classifier := loadTestClassifier(t)
	features := BuildFeatures(SensorReading{Amplitude: 760, PatternID: 6})

	first := classifier.Classify(features)
	for i := 0; i < 5; i++ {
		next := classifier.Classify(features)
		if next.SoundType != first.SoundType || next.Confidence != first.Confidence {
			t.Fatalf("classification not deterministic: %v vs %v", next, first)
		}
	}
}

func TestResultFromScoresTieBreaksBySeverity(t *testing.T) {
	t.Parallel()

	scores := map[SoundType]float64{
		SoundNormal:      0.1,
		SoundGlassBreak:  0.3,
		SoundFireCrackle: 0.1,
		SoundHumanScream: 0.3,
		SoundDogBark:     0.2,
	}

	result := resultFromScores(scores)
	if result.SoundType != SoundHumanScream {
		t.Fatalf("tied scores resolved to %s, want human_scream", result.SoundType)
	}
	if result.Confidence != 0.3 {
		t.Fatalf("tied confidence %f, want 0.3", result.Confidence)
	}
}

func TestRuleClassifierBands(t *testing.T) {
	t.Parallel()

	classifier := NewRuleClassifier(DefaultFallbackConfidence)
	if classifier.Mode() != ModeFallback {
		t.Fatalf("rule classifier mode = %s, want %s", classifier.Mode(), ModeFallback)
	}

	cases := []struct {
		name      string
		amplitude int
		pattern   int
		want      SoundType
	}{
		{"low amplitude", 300, 0, SoundNormal},
		{"ambient", 450, 2, SoundNormal},
		{"just below crackle band", 499, 5, SoundNormal},
		{"crackle band", 550, 5, SoundFireCrackle},
		{"mid band default", 650, 6, SoundFireCrackle},
		{"mid band bark pattern", 650, 9, SoundDogBark},
		{"upper band glass", 750, 4, SoundGlassBreak},
		{"upper band bark pattern", 750, 10, SoundDogBark},
		{"spike glass pattern", 850, 3, SoundGlassBreak},
		{"spike scream pattern", 850, 8, SoundHumanScream},
		{"clipped spike", 1023, 7, SoundHumanScream},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reading := SensorReading{Amplitude: tc.amplitude, PatternID: tc.pattern}
			result := classifier.Classify(BuildFeatures(reading))
			if result.SoundType != tc.want {
				t.Fatalf("amplitude=%d pattern=%d classified as %s, want %s",
					tc.amplitude, tc.pattern, result.SoundType, tc.want)
			}
			if result.Confidence != DefaultFallbackConfidence {
				t.Fatalf("fallback confidence %f, want %f", result.Confidence, DefaultFallbackConfidence)
			}
			assertResultInvariants(t, result)

			// Identical input must produce identical output across runs.
			repeat := classifier.Classify(BuildFeatures(reading))
			if repeat.SoundType != result.SoundType || repeat.Confidence != result.Confidence {
				t.Fatalf("fallback classification not deterministic")
			}
		})
	}
}

func TestLoadClassifierMissingModelFallsBack(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing-model.json")
	classifier := LoadClassifier(path, DefaultFallbackConfidence)
	if classifier.Mode() != ModeFallback {
		t.Fatalf("missing model produced mode %s, want %s", classifier.Mode(), ModeFallback)
	}
}

func TestLoadClassifierCorruptModelFallsBack(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write corrupt model: %v", err)
	}

	classifier := LoadClassifier(path, DefaultFallbackConfidence)
	if classifier.Mode() != ModeFallback {
		t.Fatalf("corrupt model produced mode %s, want %s", classifier.Mode(), ModeFallback)
	}
}

func TestNewClassifierFromFileExampleFallback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	source, err := os.ReadFile(modelFilePath(t))
	if err != nil {
		t.Fatalf("failed to read bundled model: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "model.example.json"), source, 0644); err != nil {
		t.Fatalf("failed to write example model: %v", err)
	}

	classifier, err := NewClassifierFromFile(filepath.Join(dir, "model.json"))
	if err != nil {
		t.Fatalf("expected example fallback to load, got error: %v", err)
	}
	if classifier.Mode() != ModeTrained {
		t.Fatalf("example fallback mode = %s, want %s", classifier.Mode(), ModeTrained)
	}
	if !classifier.Stats().UsingExample {
		t.Fatal("expected UsingExample to be set after example fallback")
	}
}

func TestScoreDistributionInvariantsAcrossGrid(t *testing.T) {
	t.Parallel()

	variants := map[string]Classifier{
		"trained":  loadTestClassifier(t),
		"fallback": NewRuleClassifier(DefaultFallbackConfidence),
	}

	for name, classifier := range variants {
		t.Run(name, func(t *testing.T) {
			for amplitude := 0; amplitude <= MaxAmplitude; amplitude += 93 {
				for pattern := 0; pattern <= MaxPatternID; pattern += 2 {
					reading := SensorReading{Amplitude: amplitude, PatternID: pattern}
					result := classifier.Classify(BuildFeatures(reading))
					assertResultInvariants(t, result)
				}
			}
		})
	}
}

func assertResultInvariants(t *testing.T, result ClassificationResult) {
	t.Helper()

	if len(result.PerClassScores) != soundTypeCount {
		t.Fatalf("score distribution has %d entries, want %d", len(result.PerClassScores), soundTypeCount)
	}

	var sum, max float64
	for _, score := range result.PerClassScores {
		if score < 0 {
			t.Fatalf("negative class score %f", score)
		}
		sum += score
		if score > max {
			max = score
		}
	}

	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("class scores sum to %f, want 1", sum)
	}
	if result.Confidence != max {
		t.Fatalf("confidence %f does not equal max score %f", result.Confidence, max)
	}
	if result.PerClassScores[result.SoundType] != max {
		t.Fatalf("label %s is not the argmax of the score distribution", result.SoundType)
	}
}

func loadTestClassifier(t *testing.T) Classifier {
	t.Helper()
	classifier, err := NewClassifierFromFile(modelFilePath(t))
	if err != nil {
		t.Fatalf("failed to load bundled model: %v", err)
	}
	return classifier
}

func modelFilePath(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("unable to determine caller information")
	}
	return filepath.Join(filepath.Dir(file), "model.json")
}
