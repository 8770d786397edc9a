package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/config"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/logger"
)

// IntentHandoffRequest is the intent value the collaborator returns when the
// customer asked for a human agent.
const IntentHandoffRequest = "handoff_request"

// HistoryEntry is one prior message given to the collaborator as context.
type HistoryEntry struct {
	Role string `json:"role"` // customer, assistant, system
	Text string `json:"text"`
}

// GenerateRequest is the payload sent to the reply-generation collaborator.
type GenerateRequest struct {
	CompanyID      string         `json:"company_id"`
	ConversationID string         `json:"conversation_id"`
	ContactPhone   string         `json:"contact_phone"`
	ContactName    string         `json:"contact_name,omitempty"`
	MessageText    string         `json:"message_text"`
	History        []HistoryEntry `json:"history,omitempty"`
}

// GenerateResult is the collaborator's reply decision.
type GenerateResult struct {
	ReplyText        string `json:"reply_text"`
	Intent           string `json:"intent,omitempty"`
	ShouldEscalate   bool   `json:"should_escalate,omitempty"`
	EscalationReason string `json:"escalation_reason,omitempty"`
	Qualification    string `json:"qualification,omitempty"`
	TokensUsed       int    `json:"tokens_used,omitempty"`
	LatencyMs        int64  `json:"-"`
}

// Client generates AI replies for inbound customer messages.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// HTTPClient calls an external reply-generation service over HTTP.
type HTTPClient struct {
	http     *http.Client
	endpoint string
	apiKey   string
}

// NewHTTPClient builds a collaborator client from config.
func NewHTTPClient(cfg config.AgentConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		http:     &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		apiKey:   strings.TrimSpace(cfg.APIKey),
	}
}

// Generate posts the inbound message and history to the collaborator and
// decodes its reply. Failures are wrapped as ErrCollaborator so callers can
// fall back to forced escalation.
func (c *HTTPClient) Generate(ctx context.Context, genReq GenerateRequest) (*GenerateResult, error) {
	log := logger.FromContext(ctx)

	if c.endpoint == "" {
		return nil, apperrors.NewFatal(apperrors.ErrCollaborator, "agent endpoint is not configured")
	}
	if strings.TrimSpace(genReq.MessageText) == "" {
		return nil, apperrors.NewFatal(apperrors.ErrBadRequest, "message_text is required")
	}

	bodyRaw, err := json.Marshal(genReq)
	if err != nil {
		return nil, apperrors.NewFatal(fmt.Errorf("%w: %v", apperrors.ErrCollaborator, err), "failed to marshal generate request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/generate", bytes.NewReader(bodyRaw))
	if err != nil {
		return nil, apperrors.NewFatal(fmt.Errorf("%w: %v", apperrors.ErrCollaborator, err), "failed to build generate request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.NewRetryable(fmt.Errorf("%w: %v", apperrors.ErrCollaborator, err), "generate call failed")
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.NewRetryable(fmt.Errorf("%w: %v", apperrors.ErrCollaborator, err), "failed to read generate response")
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.NewRetryable(fmt.Errorf("%w: http %d", apperrors.ErrCollaborator, resp.StatusCode), "generate call returned server error")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.NewFatal(fmt.Errorf("%w: http %d", apperrors.ErrCollaborator, resp.StatusCode), "generate call rejected")
	}

	var result GenerateResult
	if err := json.Unmarshal(respRaw, &result); err != nil {
		return nil, apperrors.NewFatal(fmt.Errorf("%w: %v", apperrors.ErrCollaborator, err), "failed to decode generate response")
	}
	result.LatencyMs = time.Since(start).Milliseconds()

	if result.Intent == IntentHandoffRequest {
		result.ShouldEscalate = true
	}
	if strings.TrimSpace(result.ReplyText) == "" && !result.ShouldEscalate {
		return nil, apperrors.NewFatal(apperrors.ErrCollaborator, "collaborator returned empty reply without escalation")
	}

	log.Debug("Generated AI reply",
		zap.String("conversation_id", genReq.ConversationID),
		zap.String("intent", result.Intent),
		zap.Bool("should_escalate", result.ShouldEscalate),
		zap.Int64("latency_ms", result.LatencyMs))

	return &result, nil
}
