package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"anomaly-detection/anomaly"
	"anomaly-detection/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTSource subscribes to readings pushed by the hardware sketch over an
// MQTT broker. It complements the HTTP poller: when the broker is
// configured, readings arrive as they happen instead of at the poll
// interval.
type MQTTSource struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
}

// mqttPayload is the wire form published by the sensor firmware.
type mqttPayload struct {
	Amplitude      int   `json:"amplitude"`
	PatternID      int   `json:"pattern_id"`
	FlameDetected  bool  `json:"flame_detected"`
	MotionDetected bool  `json:"motion_detected"`
	Timestamp      int64 `json:"timestamp,omitempty"` // unix seconds
}

// NewMQTTSource connects to the broker and subscribes to the topic.
// Every decoded reading is handed to onReading.
func NewMQTTSource(brokerURL, clientID, topic string, onReading func(anomaly.SensorReading)) (*MQTTSource, error) {
	if brokerURL == "" {
		return nil, fmt.Errorf("broker URL is required")
	}
	if clientID == "" {
		clientID = "anomaly-detection-server"
	}

	logger := utils.GetLogger()

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", slog.Any("error", err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to broker %s: %w", brokerURL, token.Error())
	}

	source := &MQTTSource{client: client, topic: topic, logger: logger}

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		reading, err := decodeMQTTPayload(msg.Payload())
		if err != nil {
			logger.Warn("discarding malformed mqtt reading",
				slog.String("topic", msg.Topic()),
				slog.Any("error", err),
			)
			return
		}
		onReading(reading)
	}

	if token := client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}

	logger.Info("subscribed to telemetry topic",
		slog.String("broker", brokerURL),
		slog.String("topic", topic),
	)

	return source, nil
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Unsubscribe(s.topic)
		s.client.Disconnect(250)
	}
}

func decodeMQTTPayload(payload []byte) (anomaly.SensorReading, error) {
	var wire mqttPayload
	if err := json.Unmarshal(payload, &wire); err != nil {
		return anomaly.SensorReading{}, fmt.Errorf("failed to decode payload: %w", err)
	}

	reading := anomaly.SensorReading{
		Amplitude:      wire.Amplitude,
		PatternID:      wire.PatternID,
		FlameDetected:  wire.FlameDetected,
		MotionDetected: wire.MotionDetected,
		Source:         anomaly.SourceLive,
	}

	if wire.Timestamp > 0 {
		reading.Timestamp = time.Unix(wire.Timestamp, 0)
	} else {
		reading.Timestamp = time.Now()
	}

	return reading, nil
}
