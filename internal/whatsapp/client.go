package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/assanaclinic/whatsapp-concierge/internal/appointments"
	"github.com/assanaclinic/whatsapp-concierge/pkg/logging"
)

var tracer = otel.Tracer("concierge.internal.whatsapp")

// ErrNotConfigured reports that the Graph API credentials are missing. Send
// operations short-circuit with this error instead of calling out.
var ErrNotConfigured = errors.New("whatsapp: access token or phone number id not configured")

const (
	defaultAPIVersion  = "v18.0"
	defaultGraphDomain = "https://graph.facebook.com"
)

// Config holds the Graph API credentials and endpoint settings.
type Config struct {
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	APIVersion    string

	// BaseURL overrides the Graph API origin. Used by tests.
	BaseURL string
}

// APIError is a non-200 Graph API response with its raw body preserved so
// callers can surface Meta's error detail.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp: graph api status %d: %s", e.StatusCode, e.Body)
}

// Client sends messages through the WhatsApp Cloud API.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	logger  *logging.Logger
}

// New creates a Graph API client. Missing credentials are allowed; the
// client stays inert and every send returns ErrNotConfigured.
func New(cfg Config, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGraphDomain
	}
	return &Client{
		cfg:     cfg,
		baseURL: fmt.Sprintf("%s/%s", cfg.BaseURL, cfg.APIVersion),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger.Component("whatsapp"),
	}
}

// Configured reports whether the client holds usable credentials.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.AccessToken != "" && c.cfg.PhoneNumberID != ""
}

// VerifyWebhook checks a webhook subscription handshake.
func (c *Client) VerifyWebhook(mode, token string) bool {
	return mode == "subscribe" && token == c.cfg.VerifyToken && c.cfg.VerifyToken != ""
}

// SendText delivers a plain text message and returns the raw Graph API
// response body.
func (c *Client) SendText(ctx context.Context, to, body string) (json.RawMessage, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	resp, err := c.post(ctx, "messages", payload)
	if err != nil {
		return nil, err
	}
	c.logger.Info("message sent", "to", to)
	return resp, nil
}

// SendTypingIndicator shows the user that a reply is being prepared. The
// Cloud API has no native typing event, so an interim interactive message is
// used. Failures are not fatal to the turn.
func (c *Client) SendTypingIndicator(ctx context.Context, to string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type": "button",
			"body": map[string]string{"text": "AI is thinking..."},
		},
	}
	_, err := c.post(ctx, "messages", payload)
	return err
}

// MarkRead flags an inbound message as read so the sender sees blue ticks.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	_, err := c.post(ctx, "messages", payload)
	return err
}

// SendTemplate delivers a pre-approved message template.
func (c *Client) SendTemplate(ctx context.Context, to, name, language string, components []TemplateComponent) (json.RawMessage, error) {
	if language == "" {
		language = "en_US"
	}
	template := map[string]any{
		"name":     name,
		"language": map[string]string{"code": language},
	}
	if len(components) > 0 {
		template["components"] = components
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template":          template,
	}
	resp, err := c.post(ctx, "messages", payload)
	if err != nil {
		return nil, err
	}
	c.logger.Info("template sent", "to", to, "template", name)
	return resp, nil
}

// SendAppointmentTemplate fills the appointment confirmation template with
// the patient name and booking time.
func (c *Client) SendAppointmentTemplate(ctx context.Context, to, patientName string, bookingTime *time.Time, templateName string) (json.RawMessage, error) {
	bookingStr := "Not specified"
	if bookingTime != nil {
		bookingStr = bookingTime.Format(appointments.DisplayLayout)
	}
	components := []TemplateComponent{{
		Type: "body",
		Parameters: []TemplateParameter{
			{Type: "text", Text: patientName},
			{Type: "text", Text: bookingStr},
		},
	}}
	return c.SendTemplate(ctx, to, templateName, "en", components)
}

// ListTemplates fetches the templates registered on the phone number.
func (c *Client) ListTemplates(ctx context.Context) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	url := fmt.Sprintf("%s/%s/message_templates", c.baseURL, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	ctx, span := tracer.Start(ctx, "whatsapp.post")
	defer span.End()
	span.SetAttributes(attribute.String("concierge.graph_path", path))

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: encode payload: %w", err)
	}
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.cfg.PhoneNumberID, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: graph api request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("graph api call failed", "status", resp.StatusCode, "body", string(body))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return json.RawMessage(body), nil
}
