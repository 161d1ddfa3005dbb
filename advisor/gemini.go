// Package advisor turns analysis records into short operator guidance
// using the Gemini API. The advisor is optional: without an API key the
// web layer simply leaves the advice endpoint disabled.
package advisor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"anomaly-detection/anomaly"

	"google.golang.org/genai"
)

type GeminiAdvisor struct {
	client *genai.Client
	model  string
}

const systemPrompt = `You are the assistant for a smart home anomaly detection system.
The system classifies household sounds (normal activity, glass breaking, fire crackling,
human screams, dog barking) from sensor readings and assigns a risk tier.

Given one analysis result, explain in plain language what was detected, how confident
the system is, and what the occupant should do next. Be calm, concrete and brief.
Keep responses under 150 words.`

// NewGeminiAdvisor builds an advisor from the GEMINI_API_KEY environment
// variable.
func NewGeminiAdvisor() (*GeminiAdvisor, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiAdvisor{client: client, model: "gemini-2.5-flash"}, nil
}

// Advise generates guidance text for one analysis record.
func (g *GeminiAdvisor) Advise(ctx context.Context, record anomaly.AnalysisRecord) (string, error) {
	message := describeRecord(record)

	systemInstruction := genai.NewContentFromText(systemPrompt, genai.RoleModel)
	userContent := genai.NewContentFromText(message, genai.RoleUser)

	config := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Temperature:       genai.Ptr(float32(0.7)),
		TopP:              genai.Ptr(float32(0.8)),
		TopK:              genai.Ptr(float32(40)),
		MaxOutputTokens:   int32(200),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{userContent}, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate advice: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "No advice is available for this event right now.", nil
	}
	return strings.ReplaceAll(text, "*", ""), nil
}

// describeRecord renders the record as the prompt body.
func describeRecord(record anomaly.AnalysisRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Detected sound: %s (%s).\n",
		record.Classification.SoundType, record.Classification.SoundType.Description())
	fmt.Fprintf(&b, "Confidence: %.0f%% (classifier mode: %s).\n",
		record.Classification.Confidence*100, record.ClassifierMode)
	fmt.Fprintf(&b, "Risk level: %s.\n", record.Risk.RiskLevel)
	fmt.Fprintf(&b, "Sensors: amplitude %d, pattern %d, flame %t, motion %t.\n",
		record.Reading.Amplitude, record.Reading.PatternID,
		record.Reading.FlameDetected, record.Reading.MotionDetected)
	if len(record.Risk.Recommendations) > 0 {
		fmt.Fprintf(&b, "System recommendations: %s\n",
			strings.Join(record.Risk.Recommendations, " "))
	}
	return b.String()
}
