package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/assanaclinic/whatsapp-concierge/internal/observability/metrics"
	"github.com/assanaclinic/whatsapp-concierge/internal/whatsapp"
	"github.com/assanaclinic/whatsapp-concierge/pkg/logging"
)

var tracer = otel.Tracer("concierge.internal.http.handlers")

const (
	nonTextReply   = "I can only process text messages at the moment. Please send me a text message!"
	emptyTextReply = "I didn't receive any text. Please send me a message!"
)

// MessageGateway is the outbound surface the webhook needs.
type MessageGateway interface {
	VerifyWebhook(mode, token string) bool
	SendText(ctx context.Context, to, body string) (json.RawMessage, error)
	SendTypingIndicator(ctx context.Context, to string) error
	MarkRead(ctx context.Context, messageID string) error
}

// Responder turns one inbound text into the assistant's reply. It returns
// the reply text and the conversation thread ID.
type Responder interface {
	Reply(ctx context.Context, number, message string) (string, string)
}

// WebhookHandler receives Graph API webhook calls for the WhatsApp number.
type WebhookHandler struct {
	gateway   MessageGateway
	responder Responder
	metrics   *metrics.ConciergeMetrics
	logger    *logging.Logger
}

func NewWebhookHandler(gateway MessageGateway, responder Responder, m *metrics.ConciergeMetrics, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		gateway:   gateway,
		responder: responder,
		metrics:   m,
		logger:    logger.Component("webhook"),
	}
}

// HandleVerification answers the webhook subscription handshake: echo the
// challenge when the mode and token match, 403 otherwise.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	h.logger.Info("webhook verification request", "mode", mode)

	if !h.gateway.VerifyWebhook(mode, token) {
		h.logger.Error("webhook verification failed", "mode", mode)
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Verification failed"})
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// HandleInbound processes a webhook delivery. Messages are handled in
// arrival order; the endpoint acknowledges with 200 once every message in
// the batch has been dealt with, so the platform does not redeliver.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "webhook.inbound")
	defer span.End()

	var event whatsapp.WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.logger.Error("failed to decode webhook payload", "error", err)
		h.metrics.ObserveInbound("unknown", "decode_error")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
		return
	}

	if event.Object == "whatsapp_business_account" {
		for _, entry := range event.Entry {
			for _, change := range entry.Changes {
				for _, message := range change.Value.Messages {
					h.processMessage(ctx, message)
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// processMessage handles one inbound message end to end. Side failures on
// read receipts and typing indicators are logged and swallowed so the reply
// still goes out.
func (h *WebhookHandler) processMessage(ctx context.Context, message whatsapp.InboundMessage) {
	ctx, span := tracer.Start(ctx, "webhook.process_message")
	defer span.End()
	span.SetAttributes(
		attribute.String("concierge.message_type", message.Type),
		attribute.String("concierge.whatsapp_number", message.From),
	)

	h.logger.Info("processing message", "from", message.From, "type", message.Type)

	if err := h.gateway.MarkRead(ctx, message.ID); err != nil {
		h.logger.Warn("failed to mark message as read", "message_id", message.ID, "error", err)
	}

	if message.Type != "text" {
		h.metrics.ObserveInbound(message.Type, "unsupported")
		h.sendReply(ctx, message.From, nonTextReply)
		return
	}

	text := ""
	if message.Text != nil {
		text = message.Text.Body
	}
	if strings.TrimSpace(text) == "" {
		h.metrics.ObserveInbound("text", "empty")
		h.sendReply(ctx, message.From, emptyTextReply)
		return
	}

	if err := h.gateway.SendTypingIndicator(ctx, message.From); err != nil {
		h.logger.Warn("failed to send typing indicator", "to", message.From, "error", err)
	}

	start := time.Now()
	reply, threadID := h.responder.Reply(ctx, message.From, text)
	h.metrics.ObserveRunLatency("replied", time.Since(start).Seconds())
	h.metrics.ObserveInbound("text", "ok")
	span.SetAttributes(attribute.String("concierge.thread_id", threadID))

	h.sendReply(ctx, message.From, reply)
}

func (h *WebhookHandler) sendReply(ctx context.Context, to, body string) {
	if _, err := h.gateway.SendText(ctx, to, body); err != nil {
		h.logger.Error("failed to send reply", "to", to, "error", err)
		h.metrics.ObserveOutbound("text", "error")
		return
	}
	h.metrics.ObserveOutbound("text", "ok")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
