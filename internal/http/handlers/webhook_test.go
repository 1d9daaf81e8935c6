package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/assanaclinic/whatsapp-concierge/internal/whatsapp"
)

type stubGateway struct {
	verifyOK bool

	sentTo        []string
	sentBodies    []string
	sendErr       error
	markedRead    []string
	typingSent    []string
	templateErr   error
	templateSends []string
	listedRaw     json.RawMessage
	listErr       error
}

func (g *stubGateway) VerifyWebhook(mode, token string) bool { return g.verifyOK }

func (g *stubGateway) SendText(ctx context.Context, to, body string) (json.RawMessage, error) {
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	g.sentTo = append(g.sentTo, to)
	g.sentBodies = append(g.sentBodies, body)
	return json.RawMessage(`{"messages":[{"id":"wamid.out"}]}`), nil
}

func (g *stubGateway) SendTypingIndicator(ctx context.Context, to string) error {
	g.typingSent = append(g.typingSent, to)
	return nil
}

func (g *stubGateway) MarkRead(ctx context.Context, messageID string) error {
	g.markedRead = append(g.markedRead, messageID)
	return nil
}

func (g *stubGateway) SendTemplate(ctx context.Context, to, name, language string, components []whatsapp.TemplateComponent) (json.RawMessage, error) {
	if g.templateErr != nil {
		return nil, g.templateErr
	}
	g.templateSends = append(g.templateSends, name)
	return json.RawMessage(`{"messages":[{"id":"wamid.tpl"}]}`), nil
}

func (g *stubGateway) SendAppointmentTemplate(ctx context.Context, to, patientName string, bookingTime *time.Time, templateName string) (json.RawMessage, error) {
	if g.templateErr != nil {
		return nil, g.templateErr
	}
	g.templateSends = append(g.templateSends, templateName)
	return json.RawMessage(`{"messages":[{"id":"wamid.tpl"}]}`), nil
}

func (g *stubGateway) ListTemplates(ctx context.Context) (json.RawMessage, error) {
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.listedRaw, nil
}

type stubResponder struct {
	replies  []string
	received []string
	reply    string
}

func (r *stubResponder) Reply(ctx context.Context, number, message string) (string, string) {
	r.received = append(r.received, message)
	r.replies = append(r.replies, number)
	return r.reply, "thread_1"
}

func inboundEvent(message string) string {
	return `{
		"object": "whatsapp_business_account",
		"entry": [{"id": "1", "changes": [{"field": "messages", "value": {
			"messaging_product": "whatsapp",
			"messages": [` + message + `]
		}}]}]
	}`
}

func TestHandleVerificationEchoesChallenge(t *testing.T) {
	h := NewWebhookHandler(&stubGateway{verifyOK: true}, &stubResponder{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.HandleVerification(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Fatalf("expected raw challenge, got %q", rec.Body.String())
	}
}

func TestHandleVerificationRejectsBadToken(t *testing.T) {
	h := NewWebhookHandler(&stubGateway{verifyOK: false}, &stubResponder{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.HandleVerification(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleInboundTextMessage(t *testing.T) {
	gateway := &stubGateway{verifyOK: true}
	responder := &stubResponder{reply: "You have an appointment tomorrow."}
	h := NewWebhookHandler(gateway, responder, nil, nil)

	payload := inboundEvent(`{"id": "wamid.in", "from": "15551234567", "type": "text", "text": {"body": "do I have an appointment?"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.HandleInbound(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(gateway.markedRead) != 1 || gateway.markedRead[0] != "wamid.in" {
		t.Fatalf("message should be marked read, got %v", gateway.markedRead)
	}
	if len(gateway.typingSent) != 1 {
		t.Fatalf("typing indicator should be sent, got %v", gateway.typingSent)
	}
	if len(responder.received) != 1 || responder.received[0] != "do I have an appointment?" {
		t.Fatalf("assistant should see the raw text, got %v", responder.received)
	}
	if len(gateway.sentBodies) != 1 || gateway.sentBodies[0] != "You have an appointment tomorrow." {
		t.Fatalf("reply should be sent back, got %v", gateway.sentBodies)
	}
}

func TestHandleInboundNonTextSkipsAssistant(t *testing.T) {
	gateway := &stubGateway{}
	responder := &stubResponder{reply: "should not run"}
	h := NewWebhookHandler(gateway, responder, nil, nil)

	payload := inboundEvent(`{"id": "wamid.in", "from": "15551234567", "type": "image"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.HandleInbound(rec, req)

	if len(responder.received) != 0 {
		t.Fatalf("assistant must not be invoked for non-text, got %v", responder.received)
	}
	if len(gateway.sentBodies) != 1 || gateway.sentBodies[0] != nonTextReply {
		t.Fatalf("expected fixed non-text reply, got %v", gateway.sentBodies)
	}
	if len(gateway.typingSent) != 0 {
		t.Fatalf("no typing indicator for non-text, got %v", gateway.typingSent)
	}
}

func TestHandleInboundEmptyText(t *testing.T) {
	gateway := &stubGateway{}
	responder := &stubResponder{reply: "should not run"}
	h := NewWebhookHandler(gateway, responder, nil, nil)

	payload := inboundEvent(`{"id": "wamid.in", "from": "15551234567", "type": "text", "text": {"body": "   "}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.HandleInbound(rec, req)

	if len(responder.received) != 0 {
		t.Fatalf("assistant must not be invoked for empty text, got %v", responder.received)
	}
	if len(gateway.sentBodies) != 1 || gateway.sentBodies[0] != emptyTextReply {
		t.Fatalf("expected fixed empty-text reply, got %v", gateway.sentBodies)
	}
}

func TestHandleInboundIgnoresForeignObject(t *testing.T) {
	gateway := &stubGateway{}
	responder := &stubResponder{}
	h := NewWebhookHandler(gateway, responder, nil, nil)

	payload := `{"object": "instagram", "entry": []}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.HandleInbound(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("foreign objects still get 200, got %d", rec.Code)
	}
	if len(gateway.sentBodies) != 0 || len(responder.received) != 0 {
		t.Fatal("nothing should be processed for a foreign object")
	}
}

func TestHandleInboundBadPayload(t *testing.T) {
	h := NewWebhookHandler(&stubGateway{}, &stubResponder{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.HandleInbound(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleInboundProcessesBatchInOrder(t *testing.T) {
	gateway := &stubGateway{}
	responder := &stubResponder{reply: "ok"}
	h := NewWebhookHandler(gateway, responder, nil, nil)

	payload := inboundEvent(`{"id": "wamid.1", "from": "15551234567", "type": "text", "text": {"body": "first"}},
		{"id": "wamid.2", "from": "15551234567", "type": "text", "text": {"body": "second"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.HandleInbound(rec, req)

	if len(responder.received) != 2 || responder.received[0] != "first" || responder.received[1] != "second" {
		t.Fatalf("messages must be processed in arrival order, got %v", responder.received)
	}
}
