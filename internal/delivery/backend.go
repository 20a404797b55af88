package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds every backend call.
	DefaultTimeout = 10 * time.Second
	// mediaTimeout is longer because the backend uploads the file.
	mediaTimeout = 60 * time.Second

	maxErrorBody = 4 << 10
)

// BackendClient talks to the business backend: tool endpoints under
// /tools and message delivery under /whatsapp.
type BackendClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

func NewBackendClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *BackendClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

func (c *BackendClient) do(ctx context.Context, method, path string, query url.Values, body any, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Agent-API-Key", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		c.logger.Warn("Backend returned an error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(data)}
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return json.RawMessage(`{"success":true}`), nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s %s: response is not JSON", method, path)
	}
	return json.RawMessage(data), nil
}

// Delivery

func (c *BackendClient) Send(ctx context.Context, companyID, conversationID, content string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/whatsapp/send", nil, map[string]any{
		"empresa_id":      companyID,
		"conversation_id": conversationID,
		"content":         content,
	}, c.timeout)
}

func (c *BackendClient) SendMedia(ctx context.Context, companyID, conversationID string, media Media) (json.RawMessage, error) {
	body := map[string]any{
		"empresa_id":      companyID,
		"conversation_id": conversationID,
		"url":             media.URL,
		"media_type":      string(media.Type),
	}
	if media.Caption != "" {
		body["caption"] = media.Caption
	}
	return c.do(ctx, http.MethodPost, "/whatsapp/send-media", nil, body, mediaTimeout)
}

func (c *BackendClient) HumanHandoff(ctx context.Context, companyID, conversationID, reason string) (json.RawMessage, error) {
	body := map[string]any{
		"empresa_id":      companyID,
		"conversation_id": conversationID,
	}
	if reason != "" {
		body["reason"] = reason
	}
	return c.do(ctx, http.MethodPost, "/tools/human-handoff", nil, body, c.timeout)
}

// Tool endpoints

func (c *BackendClient) AvailableSlots(ctx context.Context, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/tools/available-slots", query, nil, c.timeout)
}

func (c *BackendClient) CreateAppointment(ctx context.Context, body map[string]any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/tools/appointments", nil, body, c.timeout)
}

func (c *BackendClient) RescheduleAppointment(ctx context.Context, appointmentID string, body map[string]any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, "/tools/appointments/"+url.PathEscape(appointmentID), nil, body, c.timeout)
}

func (c *BackendClient) CancelAppointment(ctx context.Context, appointmentID string, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, "/tools/appointments/"+url.PathEscape(appointmentID), query, nil, c.timeout)
}

func (c *BackendClient) ListAppointments(ctx context.Context, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/tools/appointments", query, nil, c.timeout)
}

func (c *BackendClient) ListStaff(ctx context.Context, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/tools/staff", query, nil, c.timeout)
}

func (c *BackendClient) ListServices(ctx context.Context, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/tools/services", query, nil, c.timeout)
}

func (c *BackendClient) CreatePaymentLink(ctx context.Context, body map[string]any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/tools/payment-link", nil, body, c.timeout)
}

func (c *BackendClient) PaymentStatus(ctx context.Context, paymentID string, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/tools/payment-status/"+url.PathEscape(paymentID), query, nil, c.timeout)
}
