package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"anomaly-detection/anomaly"
)

// SampleReading is the deterministic safe default used when neither the
// live channel nor the bundled sample file is available: quiet ambient
// sound, no flame, no motion.
func SampleReading() anomaly.SensorReading {
	return anomaly.SensorReading{
		Amplitude: 400,
		PatternID: 0,
		Timestamp: time.Now(),
		Source:    anomaly.SourceSample,
	}
}

// LoadSampleReading reads the first feed entry from a bundled sample file
// in channel feed format. Missing or malformed files degrade to the
// deterministic default rather than failing.
func LoadSampleReading(path string) (anomaly.SensorReading, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return SampleReading(), fmt.Errorf("failed to read sample file: %w", err)
	}

	var feed feedResponse
	if err := json.Unmarshal(data, &feed); err != nil {
		return SampleReading(), fmt.Errorf("failed to parse sample file: %w", err)
	}
	if len(feed.Feeds) == 0 {
		return SampleReading(), fmt.Errorf("sample file %s contained no feed entries", path)
	}

	reading := decodeFeedEntry(feed.Feeds[0])
	reading.Source = anomaly.SourceSample
	return reading, nil
}
