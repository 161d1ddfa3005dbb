package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"

	"anomaly-detection/anomaly"
	"anomaly-detection/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"
)

type socketController struct {
	state *serverState
}

func newSocketController(state *serverState) *socketController {
	return &socketController{state: state}
}

func (c *socketController) emitModelInfo(socket socketio.Conn) {
	stats := c.state.analyzer.ModelStats()
	socket.Emit("modelInfo", stats)
}

func (c *socketController) handleRequestStatus(socket socketio.Conn) {
	socket.Emit("status", c.state.status())
}

// handleSimulateReading analyzes a caller-supplied reading and pushes the
// record back on the same socket.
func (c *socketController) handleSimulateReading(socket socketio.Conn, payload string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	if payload == "" {
		logger.ErrorContext(ctx, "no data received in simulateReading event")
		socket.Emit("analysisError", map[string]string{"message": "no reading received"})
		return
	}

	var reading anomaly.SensorReading
	if err := json.Unmarshal([]byte(payload), &reading); err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to parse reading payload", slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": "invalid reading payload"})
		return
	}

	reading.Source = anomaly.SourceSimulated

	logger.InfoContext(ctx, "received simulated reading",
		slog.String("socketID", socket.ID()),
		slog.Int("amplitude", reading.Amplitude),
		slog.Int("patternID", reading.PatternID),
		slog.Bool("flame", reading.FlameDetected),
		slog.Bool("motion", reading.MotionDetected),
	)

	record := c.state.analyzer.Analyze(reading)
	c.state.setLast(record)

	log.Printf("[simulateReading] %s: sound=%s risk=%s confidence=%.2f\n",
		socket.ID(), record.Classification.SoundType, record.Risk.RiskLevel,
		record.Classification.Confidence)

	socket.Emit("analysis", record)
}
