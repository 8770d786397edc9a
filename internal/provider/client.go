package provider

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

// Button is one quick-reply button on an interactive message.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SendResult carries the provider's identifier for a dispatched message.
type SendResult struct {
	ProviderMessageID string `json:"provider_message_id"`
}

// Client dispatches outbound messages through the messaging provider API.
type Client interface {
	SendText(ctx context.Context, companyID, toPhone, text string) (*SendResult, error)
	SendInteractive(ctx context.Context, companyID, toPhone, bodyText string, buttons []Button) (*SendResult, error)
}

// HTTPClient talks to the provider gateway over HTTP.
type HTTPClient struct {
	http     *http.Client
	endpoint string
	apiKey   string
}

// NewHTTPClient builds a provider client from config.
func NewHTTPClient(cfg config.ProviderConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		http:     &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		apiKey:   strings.TrimSpace(cfg.APIKey),
	}
}

type textPayload struct {
	CompanyID string `json:"company_id"`
	To        string `json:"to"`
	Type      string `json:"type"`
	Text      string `json:"text"`
}

type interactivePayload struct {
	CompanyID string   `json:"company_id"`
	To        string   `json:"to"`
	Type      string   `json:"type"`
	BodyText  string   `json:"body_text"`
	Buttons   []Button `json:"buttons"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

// SendText dispatches a plain text message.
func (c *HTTPClient) SendText(ctx context.Context, companyID, toPhone, text string) (*SendResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewFatal(apperrors.ErrBadRequest, "text is required")
	}
	payload := textPayload{CompanyID: companyID, To: toPhone, Type: "text", Text: text}
	return c.post(ctx, "/v1/messages", payload, companyID, toPhone)
}

// SendInteractive dispatches a message with quick-reply buttons.
func (c *HTTPClient) SendInteractive(ctx context.Context, companyID, toPhone, bodyText string, buttons []Button) (*SendResult, error) {
	if strings.TrimSpace(bodyText) == "" {
		return nil, apperrors.NewFatal(apperrors.ErrBadRequest, "body_text is required")
	}
	if len(buttons) == 0 {
		return nil, apperrors.NewFatal(apperrors.ErrBadRequest, "at least one button is required")
	}
	payload := interactivePayload{CompanyID: companyID, To: toPhone, Type: "interactive", BodyText: bodyText, Buttons: buttons}
	return c.post(ctx, "/v1/messages", payload, companyID, toPhone)
}

func (c *HTTPClient) post(ctx context.Context, path string, payload interface{}, companyID, toPhone string) (*SendResult, error) {
	log := logger.FromContext(ctx)

	if c.endpoint == "" {
		return nil, apperrors.NewFatal(apperrors.ErrBadRequest, "provider endpoint is not configured")
	}
	if strings.TrimSpace(toPhone) == "" {
		return nil, apperrors.NewFatal(apperrors.ErrBadRequest, "destination phone is required")
	}

	bodyRaw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewFatal(err, "failed to marshal send payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(bodyRaw))
	if err != nil {
		return nil, apperrors.NewFatal(err, "failed to build send request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.NewRetryable(err, "provider send failed")
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.NewRetryable(err, "failed to read provider response")
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.NewRetryable(fmt.Errorf("provider returned http %d", resp.StatusCode), "provider send failed")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var out sendResponse
		_ = json.Unmarshal(respRaw, &out)
		if out.Error != "" {
			return nil, apperrors.NewFatal(fmt.Errorf("%w: %s", apperrors.ErrBadRequest, out.Error), "provider rejected send")
		}
		return nil, apperrors.NewFatal(fmt.Errorf("%w: http %d", apperrors.ErrBadRequest, resp.StatusCode), "provider rejected send")
	}

	var out sendResponse
	if err := json.Unmarshal(respRaw, &out); err != nil {
		return nil, apperrors.NewFatal(err, "failed to decode provider response")
	}
	if out.MessageID == "" {
		return nil, apperrors.NewFatal(apperrors.ErrBadRequest, "provider response missing message_id")
	}

	log.Debug("Dispatched outbound message",
		zap.String("company_id", companyID),
		zap.String("provider_message_id", out.MessageID))

	return &SendResult{ProviderMessageID: out.MessageID}, nil
}
