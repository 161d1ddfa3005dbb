package anomaly

// DefaultConfidenceThreshold is the confidence below which high-severity
// verdicts are dampened. Deliberate precision/recall trade-off: a shaky
// classification should page nobody, so low-confidence detections are capped
// at medium unless the flame sensor independently confirms danger.
// Tunable via RISK_CONFIDENCE_THRESHOLD.
const DefaultConfidenceThreshold = 0.5

// Evaluator turns a classification plus the boolean sensor flags into a
// risk tier and recommendations. Stateless; safe for concurrent use.
type Evaluator struct {
	confidenceThreshold float64
}

// NewEvaluator builds an evaluator. Thresholds outside (0,1) fall back to
// the default.
func NewEvaluator(confidenceThreshold float64) *Evaluator {
	if confidenceThreshold <= 0 || confidenceThreshold >= 1 {
		confidenceThreshold = DefaultConfidenceThreshold
	}
	return &Evaluator{confidenceThreshold: confidenceThreshold}
}

// baseRisk maps each sound archetype to its unescalated tier.
func baseRisk(sound SoundType) RiskLevel {
	switch sound {
	case SoundNormal:
		return RiskSafe
	case SoundDogBark:
		return RiskLow
	case SoundFireCrackle:
		return RiskMedium
	case SoundGlassBreak:
		return RiskHigh
	case SoundHumanScream:
		return RiskHigh
	}
	return RiskSafe
}

// Assess derives the risk tier for a classification. Escalation rules, in
// order: motion bumps safe->low and low->medium (never downgrades), low
// confidence caps the result at medium, and flame unconditionally forces
// high regardless of everything else.
func (e *Evaluator) Assess(classification ClassificationResult, flame, motion bool) RiskAssessment {
	level := baseRisk(classification.SoundType)

	if motion && level <= RiskLow {
		level++
	}
	if classification.Confidence < e.confidenceThreshold && level > RiskMedium {
		level = RiskMedium
	}
	if flame {
		level = RiskHigh
	}

	return RiskAssessment{
		RiskLevel:       level,
		Recommendations: recommendations(classification.SoundType, level, flame, motion),
	}
}

// recommendations emits the ordered advisory list for the dashboard,
// keyed on (sound type, risk level, flame, motion). The normal/safe case
// intentionally returns an empty list.
func recommendations(sound SoundType, level RiskLevel, flame, motion bool) []string {
	var recs []string

	switch level {
	case RiskHigh:
		recs = append(recs, "HIGH RISK situation detected. Immediate attention required.")
	case RiskMedium:
		recs = append(recs, "Medium risk situation detected. Attention recommended.")
	case RiskLow:
		recs = append(recs, "Low risk situation. Conditions are close to normal.")
	case RiskSafe:
		return nil
	}

	switch sound {
	case SoundGlassBreak:
		recs = append(recs, "Possible break-in detected. Check windows and doors immediately.")
		if level == RiskHigh {
			recs = append(recs, "Consider contacting security or the authorities.")
		}
		if motion {
			recs = append(recs, "Motion detected alongside the glass break sound - a potential intruder may be inside.")
		}
	case SoundFireCrackle:
		recs = append(recs, "Possible fire detected. Check for signs of fire immediately.")
		if level == RiskHigh {
			recs = append(recs, "Prepare for evacuation if necessary.")
		}
		if flame {
			recs = append(recs, "CRITICAL: both the flame sensor and fire sounds agree - fire confirmed.")
		}
	case SoundHumanScream:
		recs = append(recs, "Distress call detected. Check for people in need of help.")
		if level == RiskHigh {
			recs = append(recs, "Consider contacting emergency services.")
		}
		if motion {
			recs = append(recs, "Motion detected with the scream - someone may be in danger.")
		}
	case SoundDogBark:
		recs = append(recs, "Unusual dog barking detected. Check for disturbances.")
		if motion {
			recs = append(recs, "Motion detected with the barking - someone may be near the property.")
		}
	case SoundNormal:
		if motion {
			recs = append(recs, "Motion detected with normal sound levels - could be routine household activity.")
		}
	}

	// Flame without matching fire audio points at either a real fire the
	// microphone missed or a faulty sensor; both deserve a check.
	if flame && sound != SoundFireCrackle {
		recs = append(recs, "ALERT: flame detected. Check for fire immediately.")
		recs = append(recs, "Verify the flame detection system is functioning properly.")
	}

	return recs
}
