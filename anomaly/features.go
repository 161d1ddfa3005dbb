package anomaly

// Physical bounds of the simulated sensors. The sound sensor is a 10-bit ADC
// reading; pattern ids enumerate the archetype buckets used by the sample
// generator (0-2 ambient, 3-4 impact, 5-6 crackle, 7-8 vocal, 9-10 bark).
const (
	MaxAmplitude = 1023
	MaxPatternID = 10

	// FeatureCount is the fixed dimensionality the classifier expects.
	FeatureCount = 3
)

// FeatureVector is the fixed-length input to the classifier: normalised
// amplitude, normalised pattern id, and their interaction term. Using an
// array keeps the dimensionality contract a compile-time property.
type FeatureVector [FeatureCount]float64

// BuildFeatures derives the feature vector for a reading. It is pure and
// total: any amplitude/pattern combination maps to some vector, with
// out-of-range values clamped to the physical bounds rather than rejected.
func BuildFeatures(reading SensorReading) FeatureVector {
	amplitude := clampInt(reading.Amplitude, 0, MaxAmplitude)
	pattern := clampInt(reading.PatternID, 0, MaxPatternID)

	normAmplitude := float64(amplitude) / float64(MaxAmplitude)
	normPattern := float64(pattern) / float64(MaxPatternID)

	return FeatureVector{
		normAmplitude,
		normPattern,
		normAmplitude * normPattern,
	}
}

func clampInt(value, lower, upper int) int {
	if value < lower {
		return lower
	}
	if value > upper {
		return upper
	}
	return value
}
