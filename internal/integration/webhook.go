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

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/mcjmccartney/rmr-core/internal/domain"
	"github.com/mcjmccartney/rmr-core/internal/timers"
)

type WebhookKind string

const (
	WebhookBookingTerms   WebhookKind = "booking-terms"
	WebhookSessionCreated WebhookKind = "session-created"
)

// WebhookPayload is the flat outbound notification body. Both webhook kinds
// share the shape; ContentItems is only required for session-created.
type WebhookPayload struct {
	SessionID    string   `json:"sessionId"`
	ClientEmail  string   `json:"clientEmail"`
	SessionType  string   `json:"sessionType"`
	BookingDate  string   `json:"bookingDate"`
	BookingTime  string   `json:"bookingTime"`
	Quote        float64  `json:"quote"`
	ContentItems []string `json:"contentItems,omitempty"`
}

const sharedPayloadProperties = `
		"sessionId":   {"type": "string", "minLength": 1},
		"clientEmail": {"type": "string", "pattern": "^[^@\\s]+@[^@\\s]+\\.[^@\\s]+$"},
		"sessionType": {"type": "string", "enum": ["In-Person", "Online", "Training", "Online Catchup", "Group", "Phone Call", "Coaching", "Live"]},
		"bookingDate": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"bookingTime": {"type": "string", "pattern": "^([01]\\d|2[0-3]):[0-5]\\d$"},
		"quote":       {"type": "number", "minimum": 0}`

var bookingTermsSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["sessionId", "clientEmail", "sessionType", "bookingDate", "bookingTime", "quote"],
	"properties": {` + sharedPayloadProperties + `
	}
}`

var sessionCreatedSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["sessionId", "clientEmail", "sessionType", "bookingDate", "bookingTime", "quote", "contentItems"],
	"properties": {` + sharedPayloadProperties + `,
		"contentItems": {
			"type": "array",
			"minItems": 1,
			"items": {"type": "string", "minLength": 1}
		}
	}
}`

type NotifierOptions struct {
	BookingTermsURL   string
	SessionCreatedURL string
	HTTPClient        *http.Client
	Clock             timers.Clock
	SuppressionWindow time.Duration
	Logger            *zap.Logger
}

const webhookTimeout = 15 * time.Second

// Notifier sends outbound webhook notifications. Every payload is validated
// against the kind's schema before send; a failing payload is dropped with a
// logged reason, never sent and never retried. A suppression table keyed by
// (entity id, kind) absorbs rapid repeated triggers from overlapping paths.
type Notifier struct {
	urls       map[WebhookKind]string
	schemas    map[WebhookKind]*jsonschema.Schema
	httpClient *http.Client
	suppressor *timers.SuppressionTable
	logger     *zap.Logger
}

func NewNotifier(opts NotifierOptions) (*Notifier, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: webhookTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	schemas, err := compileWebhookSchemas()
	if err != nil {
		return nil, err
	}
	return &Notifier{
		urls: map[WebhookKind]string{
			WebhookBookingTerms:   strings.TrimSpace(opts.BookingTermsURL),
			WebhookSessionCreated: strings.TrimSpace(opts.SessionCreatedURL),
		},
		schemas:    schemas,
		httpClient: httpClient,
		suppressor: timers.NewSuppressionTable(opts.Clock, opts.SuppressionWindow),
		logger:     logger,
	}, nil
}

func compileWebhookSchemas() (map[WebhookKind]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	sources := map[WebhookKind]string{
		WebhookBookingTerms:   bookingTermsSchema,
		WebhookSessionCreated: sessionCreatedSchema,
	}
	schemas := make(map[WebhookKind]*jsonschema.Schema, len(sources))
	for kind, source := range sources {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(source))
		if err != nil {
			return nil, fmt.Errorf("webhook schema %s: %w", kind, err)
		}
		name := string(kind) + ".schema.json"
		if err := compiler.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("webhook schema %s: %w", kind, err)
		}
		compiled, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("webhook schema %s: %w", kind, err)
		}
		schemas[kind] = compiled
	}
	return schemas, nil
}

// Notify validates and sends one webhook. Suppressed duplicates and payloads
// failing validation return nil after logging; only transport and remote
// failures surface, and callers treat those as best-effort too.
func (n *Notifier) Notify(ctx context.Context, kind WebhookKind, payload WebhookPayload) error {
	schema, ok := n.schemas[kind]
	if !ok {
		return &domain.ValidationError{Field: "kind", Reason: "unknown webhook kind " + string(kind)}
	}
	if err := n.validate(schema, payload); err != nil {
		n.logger.Warn("dropping invalid webhook payload",
			zap.String("kind", string(kind)), zap.String("sessionId", payload.SessionID), zap.Error(err))
		return nil
	}
	suppressionKey := payload.SessionID + "/" + string(kind)
	if !n.suppressor.Allow(suppressionKey) {
		n.logger.Debug("suppressing duplicate webhook",
			zap.String("kind", string(kind)), zap.String("sessionId", payload.SessionID))
		return nil
	}
	return n.send(ctx, kind, payload)
}

func (n *Notifier) validate(schema *jsonschema.Schema, payload WebhookPayload) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return &domain.ValidationError{Reason: err.Error()}
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, kind WebhookKind, payload WebhookPayload) error {
	url := n.urls[kind]
	if url == "" {
		n.logger.Debug("webhook endpoint not configured", zap.String("kind", string(kind)))
		return nil
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return &domain.TransportError{Op: "webhook " + string(kind), Err: err}
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	return remoteError("webhook "+string(kind), resp.StatusCode, body)
}

// Sweep prunes stale suppression entries. Called periodically by the owner.
func (n *Notifier) Sweep() int {
	return n.suppressor.Sweep()
}

// Reset clears the suppression table. Used on teardown.
func (n *Notifier) Reset() {
	n.suppressor.Clear()
}
