package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/assanaclinic/whatsapp-concierge/internal/appointments"
	"github.com/assanaclinic/whatsapp-concierge/internal/whatsapp"
)

type fakeGateway struct{}

func (fakeGateway) VerifyWebhook(mode, token string) bool {
	return mode == "subscribe" && token == "verify-me"
}

func (fakeGateway) SendText(ctx context.Context, to, body string) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (fakeGateway) SendTypingIndicator(ctx context.Context, to string) error { return nil }

func (fakeGateway) MarkRead(ctx context.Context, messageID string) error { return nil }

func (fakeGateway) SendTemplate(ctx context.Context, to, name, language string, components []whatsapp.TemplateComponent) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (fakeGateway) SendAppointmentTemplate(ctx context.Context, to, patientName string, bookingTime *time.Time, templateName string) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (fakeGateway) ListTemplates(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"data":[]}`), nil
}

type fakeResponder struct{}

func (fakeResponder) Reply(ctx context.Context, number, message string) (string, string) {
	return "ok", "thread_1"
}

type fakeDirectory struct{}

func (fakeDirectory) Check(ctx context.Context, number string) ([]appointments.Appointment, error) {
	return nil, nil
}

func (fakeDirectory) UpdateName(ctx context.Context, number, newName string) appointments.ToolResult {
	return appointments.ToolResult{Success: true}
}

type fakeCompleter struct{}

func (fakeCompleter) Completion(ctx context.Context, message string) string { return "ok" }
