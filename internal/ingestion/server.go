package ingestion

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/utils"
)

const maxWebhookBodyBytes = 1 << 20

// EventProcessor is the pipeline surface the webhook server drives.
type EventProcessor interface {
	ProcessInbound(ctx context.Context, inbound *model.InboundMessage) error
	ReconcileStatus(ctx context.Context, update *model.StatusUpdate) error
}

// Server is the webhook HTTP server. It also exposes the health and metrics
// endpoints so one listener serves the whole operational surface.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	processor  EventProcessor
	logger     *zap.Logger
}

// ackResponse is the body returned once a payload has been classified.
type ackResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the response structure for health check endpoints.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// NewServer creates the webhook server.
func NewServer(port string, processor EventProcessor, baseLogger *zap.Logger) *Server {
	mux := http.NewServeMux()

	server := &Server{
		httpServer: &http.Server{
			Addr:              ":" + port,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		mux:       mux,
		processor: processor,
		logger:    baseLogger,
	}

	mux.HandleFunc("POST /v1/webhook/{companyID}", server.handleWebhook)
	mux.HandleFunc("/health", server.handleHealth)
	mux.HandleFunc("/ready", server.handleReady)

	return server
}

// RegisterMetricsHandler adds the /metrics endpoint handler.
// Should only be called if metrics are enabled.
func (s *Server) RegisterMetricsHandler(handler http.Handler) {
	s.logger.Info("Registering /metrics endpoint")
	s.mux.Handle("/metrics", handler)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting webhook server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Webhook server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping webhook server")
	return s.httpServer.Shutdown(ctx)
}

// handleWebhook classifies and processes one delivery. Once the payload is
// classified the delivery is acknowledged with 200 even when the pipeline
// fails afterwards: the provider retries non-acks, and retry storms hurt more
// than a dropped event we already logged.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	companyID := r.PathValue("companyID")
	requestID := uuid.NewString()

	log := s.logger.With(
		zap.String("request_id", requestID),
		zap.String("company_id", companyID),
	)
	ctx := logger.WithLogger(r.Context(), log)
	ctx = tenant.WithCompanyID(ctx, companyID)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		log.Error("Failed to read webhook body", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, ackResponse{Status: "error"})
		return
	}

	event, err := Normalize(body)
	if err != nil {
		log.Warn("Malformed webhook payload", zap.Error(err))
		observer.IncWebhookEventsFailed("malformed", companyID)
		utils.WriteJSONResponse(w, http.StatusBadRequest, ackResponse{Status: "malformed"})
		return
	}

	kind := string(event.Kind)
	observer.IncWebhookEventsReceived(kind, companyID)

	var processErr error
	switch event.Kind {
	case model.EventMessage:
		processErr = s.processor.ProcessInbound(ctx, event.Message)
	case model.EventStatus:
		processErr = s.processor.ReconcileStatus(ctx, event.Status)
	case model.EventConnection:
		log.Info("Provider connection state changed", zap.String("state", event.Connection.Status))
	case model.EventUnrecognized:
		log.Warn("Unrecognized webhook payload shape", zap.Strings("keys", event.UnknownKeys))
	}

	if processErr != nil {
		log.Error("Webhook pipeline failed",
			zap.String("event_kind", kind),
			zap.Error(processErr))
		observer.IncWebhookEventsFailed(kind, companyID)
	} else {
		observer.IncWebhookEventsProcessed(kind, companyID)
	}
	observer.ObserveWebhookProcessingDuration(kind, companyID, time.Since(start))

	utils.WriteJSONResponse(w, http.StatusOK, ackResponse{Status: "received"})
}

// handleHealth handles the /health endpoint for liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSONResponse(w, http.StatusOK, HealthResponse{
		Status:  "UP",
		Version: "1.0.0",
	})
}

// handleReady handles the /ready endpoint for readiness probes.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSONResponse(w, http.StatusOK, HealthResponse{
		Status: "READY",
		Details: map[string]string{
			"timestamp": utils.FormatISO8601(utils.Now()),
		},
	})
}
