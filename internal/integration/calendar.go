package integration

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

	"github.com/mcjmccartney/rmr-core/internal/domain"
)

// CalendarEvent carries the session fields the calendar provider cares about.
type CalendarEvent struct {
	SessionID   string  `json:"sessionId"`
	ClientName  string  `json:"clientName,omitempty"`
	DogName     string  `json:"dogName,omitempty"`
	SessionType string  `json:"sessionType"`
	BookingDate string  `json:"bookingDate"`
	BookingTime string  `json:"bookingTime"`
	Quote       float64 `json:"quote,omitempty"`
}

// Calendar is the external calendar provider surface. Create is only invoked
// by the notification receiver, never by the session orchestrator; the
// orchestrator calls Update and Delete against an already known event id.
type Calendar interface {
	Create(ctx context.Context, event CalendarEvent) (eventID string, err error)
	Update(ctx context.Context, eventID string, event CalendarEvent) error
	Delete(ctx context.Context, eventID string) error
}

type CalendarClientOptions struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

const (
	calendarTimeout    = 15 * time.Second
	calendarMaxRetries = 2
	calendarRetryDelay = 2 * time.Second
)

// HTTPCalendarClient wraps the provider's JSON API. Transport failures and
// 5xx responses are retried with a fixed inter-attempt delay; a well-formed
// 4xx response returns immediately as a RemoteError.
type HTTPCalendarClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewHTTPCalendarClient(opts CalendarClientOptions) *HTTPCalendarClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: calendarTimeout}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = calendarMaxRetries
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = calendarRetryDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPCalendarClient{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

func (c *HTTPCalendarClient) Create(ctx context.Context, event CalendarEvent) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/v1/events", "calendar create", event)
	if err != nil {
		return "", err
	}
	var parsed struct {
		EventID string `json:"eventId"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("calendar create: decode response: %w", err)
	}
	if strings.TrimSpace(parsed.EventID) == "" {
		return "", &domain.RemoteError{Op: "calendar create", StatusCode: http.StatusOK, Message: "response missing eventId"}
	}
	return parsed.EventID, nil
}

func (c *HTTPCalendarClient) Update(ctx context.Context, eventID string, event CalendarEvent) error {
	if strings.TrimSpace(eventID) == "" {
		return domain.ErrInvalidInput
	}
	_, err := c.do(ctx, http.MethodPut, "/v1/events/"+eventID, "calendar update", event)
	return err
}

func (c *HTTPCalendarClient) Delete(ctx context.Context, eventID string) error {
	if strings.TrimSpace(eventID) == "" {
		return domain.ErrInvalidInput
	}
	_, err := c.do(ctx, http.MethodDelete, "/v1/events/"+eventID, "calendar delete", nil)
	return err
}

func (c *HTTPCalendarClient) do(ctx context.Context, method, path, op string, payload any) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("calendar client is nil")
	}
	var bodyBytes []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		bodyBytes = encoded
	}
	url := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if waitErr := sleepContext(ctx, c.retryDelay); waitErr != nil {
				return nil, waitErr
			}
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &domain.TransportError{Op: op, Err: err}
			c.logger.Warn("calendar transport failure",
				zap.String("op", op), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = &domain.TransportError{Op: op, Err: readErr}
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return respBody, nil
		}
		if resp.StatusCode >= 500 && resp.StatusCode <= 599 {
			lastErr = &domain.TransportError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
			continue
		}
		return nil, remoteError(op, resp.StatusCode, respBody)
	}
	return nil, lastErr
}

func remoteError(op string, status int, body []byte) error {
	remote := &domain.RemoteError{Op: op, StatusCode: status, Message: strings.TrimSpace(string(body))}
	var parsed map[string]any
	if json.Unmarshal(body, &parsed) == nil {
		if code, ok := parsed["code"].(string); ok {
			remote.Code = code
		}
		if message, ok := parsed["message"].(string); ok && strings.TrimSpace(message) != "" {
			remote.Message = message
		}
	}
	return remote
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
