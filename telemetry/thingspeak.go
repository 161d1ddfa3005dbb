package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"anomaly-detection/anomaly"
)

// ChannelClient fetches the latest sensor reading from a ThingSpeak-style
// channel feed. Responses are cached for a short window so the dashboard
// polling does not hammer the upstream API.
type ChannelClient struct {
	baseURL       string
	channelID     string
	readAPIKey    string
	cacheDuration time.Duration
	client        *http.Client

	mu        sync.Mutex
	cached    anomaly.SensorReading
	lastFetch time.Time
}

// feedResponse mirrors the channel feed JSON. Field values arrive as
// strings: field1 amplitude, field2 flame, field3 motion, field4 pattern id.
type feedResponse struct {
	Feeds []feedEntry `json:"feeds"`
}

type feedEntry struct {
	CreatedAt string `json:"created_at"`
	Field1    string `json:"field1"`
	Field2    string `json:"field2"`
	Field3    string `json:"field3"`
	Field4    string `json:"field4"`
}

// NewChannelClient builds a client for the given channel. An empty baseURL
// targets the public ThingSpeak API.
func NewChannelClient(baseURL, channelID, readAPIKey string, cacheDuration time.Duration) *ChannelClient {
	if baseURL == "" {
		baseURL = "https://api.thingspeak.com"
	}
	if cacheDuration <= 0 {
		cacheDuration = 10 * time.Second
	}

	return &ChannelClient{
		baseURL:       baseURL,
		channelID:     channelID,
		readAPIKey:    readAPIKey,
		cacheDuration: cacheDuration,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FetchLatest returns the most recent reading from the channel, serving
// from cache while the cache window is fresh.
func (c *ChannelClient) FetchLatest(ctx context.Context) (anomaly.SensorReading, error) {
	c.mu.Lock()
	if !c.lastFetch.IsZero() && time.Since(c.lastFetch) < c.cacheDuration {
		cached := c.cached
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	feedURL := fmt.Sprintf("%s/channels/%s/feeds.json", c.baseURL, url.PathEscape(c.channelID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return anomaly.SensorReading{}, fmt.Errorf("failed to create feed request: %w", err)
	}

	query := req.URL.Query()
	query.Set("api_key", c.readAPIKey)
	query.Set("results", "1")
	req.URL.RawQuery = query.Encode()

	resp, err := c.client.Do(req)
	if err != nil {
		return anomaly.SensorReading{}, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return anomaly.SensorReading{}, fmt.Errorf("feed request returned status %d", resp.StatusCode)
	}

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return anomaly.SensorReading{}, fmt.Errorf("failed to decode feed response: %w", err)
	}

	if len(feed.Feeds) == 0 {
		return anomaly.SensorReading{}, fmt.Errorf("channel %s returned no feed entries", c.channelID)
	}

	reading := decodeFeedEntry(feed.Feeds[0])

	c.mu.Lock()
	c.cached = reading
	c.lastFetch = time.Now()
	c.mu.Unlock()

	return reading, nil
}

// LastFetch reports when the client last talked to the upstream channel.
// A zero time means no successful fetch has happened yet.
func (c *ChannelClient) LastFetch() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFetch
}

// decodeFeedEntry converts a raw feed entry into a reading. Unparseable
// fields decode to their safe zero value; bounds clamping is the feature
// builder's job.
func decodeFeedEntry(entry feedEntry) anomaly.SensorReading {
	reading := anomaly.SensorReading{
		Amplitude:      parseFieldInt(entry.Field1),
		FlameDetected:  parseFieldInt(entry.Field2) == 1,
		MotionDetected: parseFieldInt(entry.Field3) == 1,
		PatternID:      parseFieldInt(entry.Field4),
		Source:         anomaly.SourceLive,
	}

	if ts, err := time.Parse(time.RFC3339, entry.CreatedAt); err == nil {
		reading.Timestamp = ts
	} else {
		reading.Timestamp = time.Now()
	}

	return reading
}

// parseFieldInt parses a channel field value. Feed fields can carry either
// integers or floats rendered as strings.
func parseFieldInt(value string) int {
	if value == "" {
		return 0
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return int(f)
	}
	return 0
}
