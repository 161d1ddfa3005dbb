package anomaly

// Sound classification for the smart home anomaly pipeline.
//
// Two classifier variants sit behind the same capability:
//
//  1. gaussianModel - per-class Gaussian naive Bayes parameters trained
//     offline on synthetic archetype data and shipped as a JSON artifact.
//     Classification computes log-likelihood + log-prior per class and
//     softmax-normalises into a score distribution.
//
//  2. ruleClassifier - a deterministic amplitude-band table used when no
//     model artifact can be loaded. Band boundaries follow the documented
//     archetype amplitude ranges; the predicted class gets a fixed reduced
//     confidence and the remaining mass is spread evenly.
//
// Both variants are stateless after construction and safe for concurrent
// use. Ties between equal scores resolve by severity priority (human_scream
// before glass_break before fire_crackle before dog_bark before normal) so
// repeated calls with identical input always agree.

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"anomaly-detection/utils"
)

// Classifier maps a feature vector to a classification verdict. Callers
// never need to know which variant is active except via Mode.
type Classifier interface {
	Classify(features FeatureVector) ClassificationResult
	Mode() ClassifierMode
	Stats() ModelStats
}

// DefaultFallbackConfidence is the fixed confidence reported by the
// rule-based variant. Tunable via FALLBACK_CONFIDENCE.
const DefaultFallbackConfidence = 0.6

// modelClass holds the trained parameters for one sound archetype.
type modelClass struct {
	Label  SoundType `json:"label"`
	Prior  float64   `json:"prior"`
	Mean   []float64 `json:"mean"`
	Stddev []float64 `json:"stddev"`
}

// modelArtifact is the on-disk form of a trained model.
type modelArtifact struct {
	Version      int          `json:"version"`
	FeatureCount int          `json:"feature_count"`
	Classes      []modelClass `json:"classes"`
}

type gaussianModel struct {
	classes      []modelClass
	usingExample bool
	path         string
}

// NewClassifierFromFile loads a trained model artifact from the supplied
// path. If the primary file is missing it attempts the `.example` variant
// (e.g. "model.json" -> "model.example.json") before failing.
func NewClassifierFromFile(path string) (Classifier, error) {
	resolvedPath := filepath.Clean(path)
	data, err := os.ReadFile(resolvedPath)
	usingExample := false
	if err != nil {
		ext := filepath.Ext(resolvedPath)
		base := strings.TrimSuffix(resolvedPath, ext)
		fallbackPath := base + ".example" + ext
		data, err = os.ReadFile(fallbackPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load model (%s): %w", resolvedPath, err)
		}
		utils.GetLogger().Warn("falling back to example model", "path", fallbackPath)
		resolvedPath = fallbackPath
		usingExample = true
	}

	var artifact modelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("unable to parse model artifact: %w", err)
	}

	if artifact.FeatureCount != FeatureCount {
		return nil, fmt.Errorf("model expects %d features, pipeline produces %d (model must be regenerated)",
			artifact.FeatureCount, FeatureCount)
	}
	if len(artifact.Classes) != soundTypeCount {
		return nil, fmt.Errorf("model defines %d classes, expected %d", len(artifact.Classes), soundTypeCount)
	}

	seen := make(map[SoundType]bool, soundTypeCount)
	var priorSum float64
	for _, class := range artifact.Classes {
		if seen[class.Label] {
			return nil, fmt.Errorf("model defines class %s twice", class.Label)
		}
		seen[class.Label] = true
		if len(class.Mean) != FeatureCount || len(class.Stddev) != FeatureCount {
			return nil, fmt.Errorf("class %s has malformed parameters", class.Label)
		}
		for _, sd := range class.Stddev {
			if sd <= 0 {
				return nil, fmt.Errorf("class %s has non-positive stddev", class.Label)
			}
		}
		if class.Prior <= 0 {
			return nil, fmt.Errorf("class %s has non-positive prior", class.Label)
		}
		priorSum += class.Prior
	}
	if math.Abs(priorSum-1.0) > 1e-6 {
		return nil, fmt.Errorf("class priors sum to %.4f, expected 1", priorSum)
	}

	return &gaussianModel{
		classes:      artifact.Classes,
		usingExample: usingExample,
		path:         resolvedPath,
	}, nil
}

// LoadClassifier builds the classifier for the process. A load failure is
// non-fatal: it logs a warning and degrades to the deterministic rule-based
// variant so the pipeline always has a working classifier.
func LoadClassifier(path string, fallbackConfidence float64) Classifier {
	classifier, err := NewClassifierFromFile(path)
	if err != nil {
		utils.GetLogger().Warn("model unavailable, switching to rule-based fallback",
			slog.String("path", path),
			slog.Any("error", err),
		)
		return NewRuleClassifier(fallbackConfidence)
	}
	return classifier
}

func (m *gaussianModel) Mode() ClassifierMode { return ModeTrained }

func (m *gaussianModel) Stats() ModelStats {
	classes := make([]ModelClassStat, 0, len(m.classes))
	for _, class := range m.classes {
		classes = append(classes, ModelClassStat{Label: class.Label, Prior: class.Prior})
	}
	return ModelStats{
		Mode:         ModeTrained,
		ClassCount:   len(m.classes),
		Classes:      classes,
		UsingExample: m.usingExample,
		Path:         m.path,
	}
}

// Classify computes the posterior score distribution over the label set.
func (m *gaussianModel) Classify(features FeatureVector) ClassificationResult {
	logScores := make(map[SoundType]float64, len(m.classes))
	maxLog := math.Inf(-1)
	for _, class := range m.classes {
		score := math.Log(class.Prior)
		for i := 0; i < FeatureCount; i++ {
			score += logNormPDF(features[i], class.Mean[i], class.Stddev[i])
		}
		logScores[class.Label] = score
		if score > maxLog {
			maxLog = score
		}
	}

	// Softmax in log space: shift by the max before exponentiating so the
	// normalisation never underflows to an all-zero distribution.
	scores := make(map[SoundType]float64, len(logScores))
	var total float64
	for label, logScore := range logScores {
		value := math.Exp(logScore - maxLog)
		scores[label] = value
		total += value
	}
	for label := range scores {
		scores[label] /= total
	}

	return resultFromScores(scores)
}

func logNormPDF(x, mean, stddev float64) float64 {
	z := (x - mean) / stddev
	return -0.5*z*z - math.Log(stddev) - 0.5*math.Log(2*math.Pi)
}

// resultFromScores picks the arg-max label, walking the severity order so
// exact ties deterministically resolve to the more severe label.
func resultFromScores(scores map[SoundType]float64) ClassificationResult {
	best := severityOrder[0]
	bestScore := scores[best]
	for _, label := range severityOrder[1:] {
		if scores[label] > bestScore {
			best = label
			bestScore = scores[label]
		}
	}
	return ClassificationResult{
		SoundType:      best,
		Confidence:     bestScore,
		PerClassScores: scores,
	}
}

type ruleClassifier struct {
	confidence float64
}

// NewRuleClassifier builds the deterministic fallback variant. The
// confidence is clamped to (0.2, 1] so the predicted label always remains
// the arg-max of the emitted distribution.
func NewRuleClassifier(confidence float64) Classifier {
	if confidence <= 0.2 || confidence > 1 {
		confidence = DefaultFallbackConfidence
	}
	return &ruleClassifier{confidence: confidence}
}

func (r *ruleClassifier) Mode() ClassifierMode { return ModeFallback }

func (r *ruleClassifier) Stats() ModelStats {
	classes := make([]ModelClassStat, 0, soundTypeCount)
	for _, label := range SoundTypes {
		classes = append(classes, ModelClassStat{Label: label, Prior: 1.0 / soundTypeCount})
	}
	return ModelStats{
		Mode:       ModeFallback,
		ClassCount: soundTypeCount,
		Classes:    classes,
	}
}

// Classify applies the documented amplitude-band table. Within the upper
// bands the pattern id disambiguates archetypes whose amplitude ranges
// overlap (screams vs glass at >=800, barks vs glass/fire in the middle).
func (r *ruleClassifier) Classify(features FeatureVector) ClassificationResult {
	amplitude := math.Round(features[0] * MaxAmplitude)
	pattern := int(math.Round(features[1] * MaxPatternID))

	var predicted SoundType
	switch {
	case amplitude >= 800:
		if pattern >= 7 && pattern <= 8 {
			predicted = SoundHumanScream
		} else {
			predicted = SoundGlassBreak
		}
	case amplitude >= 700:
		if pattern >= 9 {
			predicted = SoundDogBark
		} else {
			predicted = SoundGlassBreak
		}
	case amplitude >= 600:
		if pattern >= 9 {
			predicted = SoundDogBark
		} else {
			predicted = SoundFireCrackle
		}
	case amplitude >= 500:
		predicted = SoundFireCrackle
	default:
		predicted = SoundNormal
	}

	remainder := (1 - r.confidence) / float64(soundTypeCount-1)
	scores := make(map[SoundType]float64, soundTypeCount)
	for _, label := range SoundTypes {
		if label == predicted {
			scores[label] = r.confidence
		} else {
			scores[label] = remainder
		}
	}

	return ClassificationResult{
		SoundType:      predicted,
		Confidence:     r.confidence,
		PerClassScores: scores,
	}
}
