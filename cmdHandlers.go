package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"anomaly-detection/advisor"
	"anomaly-detection/alerts"
	"anomaly-detection/anomaly"
	"anomaly-detection/db"
	"anomaly-detection/records"
	"anomaly-detection/telemetry"
	"anomaly-detection/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"
)

type apiError struct {
	Message string `json:"message"`
}

type statusResponse struct {
	Server         string                  `json:"server"`
	ClassifierMode anomaly.ClassifierMode  `json:"classifier_mode"`
	Model          anomaly.ModelStats      `json:"model"`
	LastFetch      *time.Time              `json:"last_fetch,omitempty"`
	LastAnalysis   *anomaly.AnalysisRecord `json:"last_analysis,omitempty"`
	Timestamp      time.Time               `json:"timestamp"`
}

// serverState is the shared mutable state behind the HTTP and socket
// handlers: the pipeline plus the most recent record.
type serverState struct {
	analyzer *anomaly.Analyzer
	channel  *telemetry.ChannelClient
	store    db.RecordStore
	advisor  *advisor.GeminiAdvisor
	alerter  *alerts.VoiceAlerter

	samplePath string

	mu   sync.RWMutex
	last *anomaly.AnalysisRecord
}

func (s *serverState) setLast(record anomaly.AnalysisRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &record
}

func (s *serverState) lastRecord() *anomaly.AnalysisRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// fetchReading returns the latest live reading, degrading to bundled
// sample data when the channel is unreachable.
func (s *serverState) fetchReading(ctx context.Context) anomaly.SensorReading {
	logger := utils.GetLogger()

	if s.channel != nil {
		reading, err := s.channel.FetchLatest(ctx)
		if err == nil {
			return reading
		}
		logger.WarnContext(ctx, "telemetry fetch failed, using sample data",
			slog.Any("error", xerrors.New(err)))
	}

	reading, err := telemetry.LoadSampleReading(s.samplePath)
	if err != nil {
		logger.WarnContext(ctx, "sample data unavailable, using built-in default",
			slog.Any("error", err))
	}
	return reading
}

func (s *serverState) status() statusResponse {
	resp := statusResponse{
		Server:         "online",
		ClassifierMode: s.analyzer.Mode(),
		Model:          s.analyzer.ModelStats(),
		LastAnalysis:   s.lastRecord(),
		Timestamp:      time.Now(),
	}
	if s.channel != nil {
		if fetched := s.channel.LastFetch(); !fetched.IsZero() {
			resp.LastFetch = &fetched
		}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

// corsPreflight writes the shared CORS headers and answers OPTIONS.
// Returns true when the request is already handled.
func corsPreflight(w http.ResponseWriter, r *http.Request, methods string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

func newInfoHandler(state *serverState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if corsPreflight(w, r, "GET") {
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"name":            "smart-home-anomaly-detection",
			"classifier_mode": state.analyzer.Mode(),
			"endpoints": []string{
				"GET /api", "GET /status", "GET /analyze", "POST /simulate",
				"GET /api/records", "POST /api/advice", "GET /api/alerts/voice",
			},
		})
	}
}

func newStatusHandler(state *serverState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if corsPreflight(w, r, "GET") {
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, state.status())
	}
}

func newAnalyzeHandler(state *serverState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if corsPreflight(w, r, "GET") {
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		reading := state.fetchReading(r.Context())
		record := state.analyzer.Analyze(reading)
		state.setLast(record)
		writeJSON(w, http.StatusOK, record)
	}
}

func newSimulateHandler(state *serverState) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		if corsPreflight(w, r, "POST") {
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var reading anomaly.SensorReading
		if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
			logger.ErrorContext(r.Context(), "failed to parse simulate payload",
				slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusBadRequest, "invalid reading payload")
			return
		}

		reading.Source = anomaly.SourceSimulated
		record := state.analyzer.Analyze(reading)
		state.setLast(record)
		writeJSON(w, http.StatusOK, record)
	}
}

func newRecordsHandler(state *serverState) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		if corsPreflight(w, r, "GET") {
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if state.store == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "record store not configured")
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = parsed
		}

		history, err := state.store.Recent(limit)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to load records",
				slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "failed to load records")
			return
		}
		if history == nil {
			history = []anomaly.AnalysisRecord{}
		}
		writeJSON(w, http.StatusOK, history)
	}
}

func newAdviceHandler(state *serverState) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		if corsPreflight(w, r, "POST") {
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if state.advisor == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "advisor not configured")
			return
		}

		record := state.lastRecord()
		if record == nil {
			writeJSONError(w, http.StatusNotFound, "no analysis available yet")
			return
		}

		advice, err := state.advisor.Advise(r.Context(), *record)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to generate advice",
				slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusBadGateway, "advice generation failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"record_id": record.ID,
			"advice":    advice,
		})
	}
}

func newVoiceAlertHandler(state *serverState) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		if corsPreflight(w, r, "GET") {
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if state.alerter == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "voice alerts not configured")
			return
		}

		record := state.lastRecord()
		if record == nil {
			writeJSONError(w, http.StatusNotFound, "no analysis available yet")
			return
		}

		audio, err := state.alerter.Announce(r.Context(), *record)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to synthesize voice alert",
				slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusBadGateway, "voice synthesis failed")
			return
		}

		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(audio); err != nil {
			log.Printf("failed to write voice alert response: %v", err)
		}
	}
}

func buildState() *serverState {
	logger := utils.GetLogger()
	ctx := context.Background()

	modelPath := utils.GetEnv("ANOMALY_MODEL_PATH", filepath.Join("anomaly", "model.json"))
	fallbackConfidenceStr := utils.GetEnv("FALLBACK_CONFIDENCE", "0.6")
	fallbackConfidence, err := strconv.ParseFloat(fallbackConfidenceStr, 64)
	if err != nil {
		fallbackConfidence = anomaly.DefaultFallbackConfidence
	}
	classifier := anomaly.LoadClassifier(modelPath, fallbackConfidence)

	thresholdStr := utils.GetEnv("RISK_CONFIDENCE_THRESHOLD", "0.5")
	threshold, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil {
		threshold = anomaly.DefaultConfidenceThreshold
	}
	evaluator := anomaly.NewEvaluator(threshold)

	var sinks []anomaly.Sink

	logPath := utils.GetEnv("EVENT_LOG_PATH", filepath.Join("storage", "analysis.log"))
	eventLog, err := records.NewEventLog(logPath)
	if err != nil {
		logger.ErrorContext(ctx, "failed to open event log", slog.Any("error", xerrors.New(err)))
	} else {
		sinks = append(sinks, eventLog)
	}

	store, err := db.NewRecordStore()
	if err != nil {
		logger.ErrorContext(ctx, "failed to open record store", slog.Any("error", xerrors.New(err)))
		store = nil
	} else {
		sinks = append(sinks, store)
	}

	analyzer := anomaly.NewAnalyzer(classifier, evaluator, sinks...)

	var channel *telemetry.ChannelClient
	channelID := utils.GetEnv("THINGSPEAK_CHANNEL_ID", "")
	if channelID != "" {
		cacheSecondsStr := utils.GetEnv("TELEMETRY_CACHE_SECONDS", "10")
		cacheSeconds, err := strconv.Atoi(cacheSecondsStr)
		if err != nil || cacheSeconds <= 0 {
			cacheSeconds = 10
		}
		channel = telemetry.NewChannelClient(
			utils.GetEnv("THINGSPEAK_BASE_URL", "https://api.thingspeak.com"),
			channelID,
			utils.GetEnv("THINGSPEAK_READ_API_KEY", ""),
			time.Duration(cacheSeconds)*time.Second,
		)
	} else {
		log.Println("THINGSPEAK_CHANNEL_ID not set, serving sample data only")
	}

	state := &serverState{
		analyzer:   analyzer,
		channel:    channel,
		store:      store,
		samplePath: utils.GetEnv("SAMPLE_DATA_PATH", filepath.Join("samples", "thingspeak_data.json")),
	}

	if geminiAdvisor, err := advisor.NewGeminiAdvisor(); err != nil {
		log.Printf("Advisor disabled: %v", err)
	} else {
		state.advisor = geminiAdvisor
	}

	if voiceAlerter, err := alerts.NewVoiceAlerter(); err != nil {
		log.Printf("Voice alerts disabled: %v", err)
	} else {
		state.alerter = voiceAlerter
	}

	return state
}

func serve(protocol, port string) {
	protocol = strings.ToLower(protocol)
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	state := buildState()
	controller := newSocketController(state)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		connURL := socket.URL()
		log.Printf("CONNECTED: %s, transport: %s, remote addr: %s\n", socket.ID(), connURL.String(), socket.RemoteAddr())
		controller.emitModelInfo(socket)
		return nil
	})

	server.OnEvent("/", "requestStatus", func(socket socketio.Conn) {
		controller.handleRequestStatus(socket)
	})

	server.OnEvent("/", "simulateReading", func(socket socketio.Conn, msg string) {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleSimulateReading for socket %s: %v\n", socket.ID(), r)
					socket.Emit("analysisError", map[string]string{"message": "internal server error during processing"})
				}
			}()
			controller.handleSimulateReading(socket, msg)
		}()
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	startBackgroundPoller(server, state)
	startMQTTIngest(server, state)

	serveHTTPS := protocol == "https"

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc("/api", newInfoHandler(state))
	mux.HandleFunc("/status", newStatusHandler(state))
	mux.HandleFunc("/analyze", newAnalyzeHandler(state))
	mux.HandleFunc("/simulate", newSimulateHandler(state))
	mux.HandleFunc("/api/records", newRecordsHandler(state))
	mux.HandleFunc("/api/advice", newAdviceHandler(state))
	mux.HandleFunc("/api/alerts/voice", newVoiceAlertHandler(state))
	mux.Handle("/", http.FileServer(http.Dir("static")))

	serveHTTP(server, serveHTTPS, port, mux)
}

// startBackgroundPoller analyzes the live channel on an interval and
// broadcasts each record to connected dashboards.
func startBackgroundPoller(server *socketio.Server, state *serverState) {
	if state.channel == nil {
		return
	}

	intervalStr := utils.GetEnv("POLL_INTERVAL_SECONDS", "15")
	interval, err := strconv.Atoi(intervalStr)
	if err != nil || interval <= 0 {
		interval = 15
	}

	go func() {
		ticker := time.NewTicker(time.Duration(interval) * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			reading := state.fetchReading(ctx)
			cancel()

			record := state.analyzer.Analyze(reading)
			state.setLast(record)
			server.BroadcastToNamespace("/", "analysis", record)
		}
	}()
}

// startMQTTIngest subscribes to readings pushed by the hardware sketch
// when a broker is configured.
func startMQTTIngest(server *socketio.Server, state *serverState) {
	brokerURL := utils.GetEnv("MQTT_BROKER_URL", "")
	if brokerURL == "" {
		return
	}

	topic := utils.GetEnv("MQTT_TOPIC", "home/sensors/readings")
	clientID := utils.GetEnv("MQTT_CLIENT_ID", "anomaly-detection-server")

	_, err := telemetry.NewMQTTSource(brokerURL, clientID, topic, func(reading anomaly.SensorReading) {
		record := state.analyzer.Analyze(reading)
		state.setLast(record)
		server.BroadcastToNamespace("/", "analysis", record)
	})
	if err != nil {
		log.Printf("MQTT ingest disabled: %v", err)
	}
}

func serveHTTP(socketServer *socketio.Server, serveHTTPS bool, port string, handler http.Handler) {
	if handler == nil {
		handler = socketServer
	}
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		cert_key_default := "/etc/letsencrypt/live/localport.online/privkey.pem"
		cert_file_default := "/etc/letsencrypt/live/localport.online/fullchain.pem"

		cert_key := utils.GetEnv("CERT_KEY", cert_key_default)
		cert_file := utils.GetEnv("CERT_FILE", cert_file_default)
		if cert_key == "" || cert_file == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(cert_file, cert_key); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
