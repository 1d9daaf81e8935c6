package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/assanaclinic/whatsapp-concierge/internal/appointments"
	"github.com/assanaclinic/whatsapp-concierge/internal/observability/metrics"
	"github.com/assanaclinic/whatsapp-concierge/internal/whatsapp"
	"github.com/assanaclinic/whatsapp-concierge/pkg/logging"
)

const isoLayout = "2006-01-02T15:04:05"

// TemplateGateway is the outbound surface the manual endpoints need.
type TemplateGateway interface {
	SendText(ctx context.Context, to, body string) (json.RawMessage, error)
	SendTemplate(ctx context.Context, to, name, language string, components []whatsapp.TemplateComponent) (json.RawMessage, error)
	SendAppointmentTemplate(ctx context.Context, to, patientName string, bookingTime *time.Time, templateName string) (json.RawMessage, error)
	ListTemplates(ctx context.Context) (json.RawMessage, error)
}

// AppointmentDirectory exposes the appointment operations the manual
// endpoints drive directly, without going through the assistant.
type AppointmentDirectory interface {
	Check(ctx context.Context, number string) ([]appointments.Appointment, error)
	UpdateName(ctx context.Context, number, newName string) appointments.ToolResult
}

// Completer answers a free-form prompt. Used by the model test endpoint.
type Completer interface {
	Completion(ctx context.Context, message string) string
}

// TestingHandler serves the operator-facing endpoints for poking each part
// of the bridge by hand.
type TestingHandler struct {
	gateway      TemplateGateway
	appointments AppointmentDirectory
	completer    Completer
	metrics      *metrics.ConciergeMetrics
	logger       *logging.Logger
}

func NewTestingHandler(gateway TemplateGateway, directory AppointmentDirectory, completer Completer, m *metrics.ConciergeMetrics, logger *logging.Logger) *TestingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &TestingHandler{
		gateway:      gateway,
		appointments: directory,
		completer:    completer,
		metrics:      m,
		logger:       logger.Component("testing"),
	}
}

// Home lists the available endpoints so a quick GET confirms the service is
// up and routed.
func (h *TestingHandler) Home(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "WhatsApp OpenAI Bot is running!",
		"endpoints": map[string]string{
			"webhook":           "/webhook",
			"health":            "/health",
			"send_message":      "/send-message",
			"test_openai":       "/test-openai",
			"check_appointment": "/check-appointment/{whatsapp_number}",
			"send_appointment":  "/send-appointment/{whatsapp_number}",
			"update_name":       "/update-name/{whatsapp_number}",
		},
	})
}

// Health reports liveness with a timestamp.
func (h *TestingHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": float64(time.Now().UnixNano()) / float64(time.Second),
	})
}

// SendMessage delivers an arbitrary text message to an arbitrary number.
func (h *TestingHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.To == "" || body.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing 'to' or 'message' parameter"})
		return
	}

	result, err := h.gateway.SendText(r.Context(), body.To, body.Message)
	if err != nil {
		h.metrics.ObserveOutbound("text", "error")
		detail := err.Error()
		if errors.Is(err, whatsapp.ErrNotConfigured) {
			detail = "WhatsApp API is not configured. Please set your WhatsApp credentials in the .env file."
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "result": detail})
		return
	}
	h.metrics.ObserveOutbound("text", "ok")
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "result": result})
}

// TestOpenAI runs one chat completion round trip.
func (h *TestingHandler) TestOpenAI(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
		body.Message = "Hello, how are you?"
	}

	response := h.completer.Completion(r.Context(), body.Message)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"message":  body.Message,
		"response": response,
	})
}

// CheckAppointment returns the raw appointment records for a number along
// with the formatted confirmation text.
func (h *TestingHandler) CheckAppointment(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "whatsapp_number")

	records, err := h.appointments.Check(r.Context(), number)
	if err != nil {
		h.logger.Error("failed to check appointments", "whatsapp_number", number, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	if len(records) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":            "success",
			"whatsapp_number":   number,
			"has_appointments":  false,
			"appointment_count": 0,
			"appointments":      []any{},
			"message":           "No appointments found for this number.",
		})
		return
	}

	data := make([]map[string]any, 0, len(records))
	for _, apt := range records {
		data = append(data, map[string]any{
			"patient_name": apt.PatientName,
			"booking_time": isoTime(apt.BookingTime),
			"clinic_name":  apt.ClinicName,
			"status":       apt.Status,
			"created_at":   isoTime(apt.CreatedAt),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "success",
		"whatsapp_number":   number,
		"has_appointments":  true,
		"appointment_count": len(records),
		"appointments":      data,
		"formatted_message": appointments.FormatConfirmation(records),
	})
}

// SendAppointment delivers the appointment confirmation: the approved
// template first, the formatted text message as a fallback when the
// template send is rejected.
func (h *TestingHandler) SendAppointment(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "whatsapp_number")

	records, err := h.appointments.Check(r.Context(), number)
	if err != nil {
		h.logger.Error("failed to check appointments", "whatsapp_number", number, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	if len(records) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":            "success",
			"message":           "No appointments found for " + number,
			"appointment_count": 0,
		})
		return
	}

	first := records[0]
	result, err := h.gateway.SendAppointmentTemplate(r.Context(), number, first.PatientName, first.BookingTime, "assanatest")
	if err == nil {
		h.metrics.ObserveOutbound("template", "ok")
		writeJSON(w, http.StatusOK, map[string]any{
			"status":            "success",
			"message":           "Appointment template sent to " + number,
			"appointment_count": len(records),
			"template_used":     "assanatest",
			"result":            result,
		})
		return
	}

	h.logger.Warn("template failed, falling back to custom message", "to", number, "error", err)
	h.metrics.ObserveOutbound("template", "error")

	result, err = h.gateway.SendText(r.Context(), number, appointments.FormatConfirmation(records))
	if err != nil {
		h.metrics.ObserveOutbound("text", "error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": "Failed to send message: " + err.Error(),
		})
		return
	}
	h.metrics.ObserveOutbound("text", "ok")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "success",
		"message":           "Custom appointment message sent to " + number + " (template failed)",
		"appointment_count": len(records),
		"template_used":     "custom_fallback",
		"result":            result,
	})
}

// UpdateName rewrites the patient name on every appointment for a number.
func (h *TestingHandler) UpdateName(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "whatsapp_number")

	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing 'name' parameter"})
		return
	}

	result := h.appointments.UpdateName(r.Context(), number, body.Name)
	if !result.Success {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": "Failed to update name in database",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"message":       result.Message,
		"new_name":      body.Name,
		"updated_count": result.UpdatedCount,
	})
}

// TestTemplate sends the confirmation template with fixed sample values.
func (h *TestingHandler) TestTemplate(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "whatsapp_number")

	components := []whatsapp.TemplateComponent{{
		Type: "body",
		Parameters: []whatsapp.TemplateParameter{
			{Type: "text", Text: "John Smith"},
			{Type: "text", Text: "August 10, 2025 at 2:00 PM"},
		},
	}}
	result, err := h.gateway.SendTemplate(r.Context(), number, "assanatest", "en", components)
	if err != nil {
		h.metrics.ObserveOutbound("template", "error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": "Template test failed: " + err.Error(),
		})
		return
	}
	h.metrics.ObserveOutbound("template", "ok")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Template test sent successfully to " + number,
		"result":  result,
	})
}

// CheckTemplates lists the templates registered on the phone number.
func (h *TestingHandler) CheckTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.gateway.ListTemplates(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": "Failed to get templates: " + err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"templates": templates,
	})
}

func isoTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(isoLayout)
}
