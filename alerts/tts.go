// Package alerts synthesizes spoken announcements for high-risk events
// through the Google Cloud Text-to-Speech REST API.
package alerts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"anomaly-detection/anomaly"
)

type VoiceAlerter struct {
	apiKey     string
	httpClient *http.Client
}

type ttsRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name,omitempty"`
		SsmlGender   string `json:"ssmlGender"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding   string  `json:"audioEncoding"`
		SpeakingRate    float64 `json:"speakingRate,omitempty"`
		SampleRateHertz int     `json:"sampleRateHertz,omitempty"`
	} `json:"audioConfig"`
}

type ttsResponse struct {
	AudioContent string `json:"audioContent"`
}

// NewVoiceAlerter builds an alerter from the GOOGLE_TTS_API_KEY
// environment variable.
func NewVoiceAlerter() (*VoiceAlerter, error) {
	apiKey := os.Getenv("GOOGLE_TTS_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_TTS_API_KEY environment variable is required")
	}
	return &VoiceAlerter{apiKey: apiKey, httpClient: &http.Client{}}, nil
}

// Announce synthesizes the announcement for one record and returns MP3
// bytes.
func (v *VoiceAlerter) Announce(ctx context.Context, record anomaly.AnalysisRecord) ([]byte, error) {
	return v.Synthesize(ctx, AnnouncementText(record))
}

// Synthesize converts arbitrary text to MP3 speech.
func (v *VoiceAlerter) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var ttsReq ttsRequest
	ttsReq.Input.Text = text
	ttsReq.Voice.LanguageCode = "en-US"
	ttsReq.Voice.Name = "en-GB-Standard-F"
	ttsReq.Voice.SsmlGender = "FEMALE"
	ttsReq.AudioConfig.AudioEncoding = "MP3"
	ttsReq.AudioConfig.SpeakingRate = 1.0
	ttsReq.AudioConfig.SampleRateHertz = 24000

	payload, err := json.Marshal(ttsReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	url := fmt.Sprintf("https://texttospeech.googleapis.com/v1/text:synthesize?key=%s", v.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read TTS response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TTS API error: %s - %s", resp.Status, string(body))
	}

	var ttsResp ttsResponse
	if err := json.Unmarshal(body, &ttsResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal TTS response: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(ttsResp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio content: %w", err)
	}
	return audio, nil
}

// AnnouncementText renders the spoken message for one record.
func AnnouncementText(record anomaly.AnalysisRecord) string {
	var b strings.Builder
	switch record.Risk.RiskLevel {
	case anomaly.RiskHigh:
		b.WriteString("Attention. High risk detected. ")
	case anomaly.RiskMedium:
		b.WriteString("Caution. Medium risk detected. ")
	case anomaly.RiskLow:
		b.WriteString("Notice. Low risk detected. ")
	default:
		b.WriteString("All clear. ")
	}
	fmt.Fprintf(&b, "The system heard %s.", record.Classification.SoundType.Description())
	if record.Reading.FlameDetected {
		b.WriteString(" A flame signature is present.")
	}
	if record.Reading.MotionDetected {
		b.WriteString(" Motion is detected in the area.")
	}
	if len(record.Risk.Recommendations) > 0 {
		b.WriteString(" ")
		b.WriteString(record.Risk.Recommendations[0])
	}
	return b.String()
}
