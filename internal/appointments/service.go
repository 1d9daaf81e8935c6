package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/assanaclinic/whatsapp-concierge/pkg/logging"
)

// ToolResult is the structured outcome handed back to the assistant as a tool
// output. Soft domain failures (no rows, bad datetime, disabled store) travel
// here with Success false; they are never Go errors.
type ToolResult struct {
	Success      bool                `json:"success"`
	Message      string              `json:"message,omitempty"`
	Appointments []AppointmentDetail `json:"appointments,omitempty"`
	UpdatedCount int64               `json:"updated_count,omitempty"`
}

// AppointmentDetail is the wire form of a record inside a tool output.
type AppointmentDetail struct {
	PatientName string `json:"patient_name"`
	BookingTime string `json:"booking_time"`
	ClinicName  string `json:"clinic_name"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// Service exposes the appointment operations callable by the assistant and
// by the manual testing endpoints.
type Service struct {
	store      *Store
	normalizer *Normalizer
	logger     *logging.Logger
}

// NewService wires the store and datetime normalizer together.
func NewService(store *Store, normalizer *Normalizer, logger *logging.Logger) *Service {
	if normalizer == nil {
		normalizer = NewNormalizer(nil, "", logger)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, normalizer: normalizer, logger: logger.Component("appointments")}
}

// Check returns the raw appointment rows for a number, newest first.
func (s *Service) Check(ctx context.Context, number string) ([]Appointment, error) {
	return s.store.ListByNumber(ctx, number)
}

// GetDetails returns all appointments for the number. Zero rows is a soft
// "not found" result, distinct from a database error.
func (s *Service) GetDetails(ctx context.Context, number string) ToolResult {
	s.logger.Info("getting appointment details", "whatsapp_number", number)

	appointments, err := s.store.ListByNumber(ctx, number)
	if err != nil {
		s.logger.Error("failed to get appointment details", "whatsapp_number", number, "error", err)
		return databaseFailure(err)
	}
	if len(appointments) == 0 {
		return ToolResult{Success: false, Message: "No appointments found for this number"}
	}

	details := make([]AppointmentDetail, 0, len(appointments))
	for _, apt := range appointments {
		detail := AppointmentDetail{
			PatientName: apt.PatientName,
			BookingTime: "Not set",
			ClinicName:  apt.ClinicName,
			Status:      apt.Status,
			CreatedAt:   "Not set",
		}
		if apt.BookingTime != nil {
			detail.BookingTime = apt.BookingTime.Format(DisplayLayout)
		}
		if apt.CreatedAt != nil {
			detail.CreatedAt = apt.CreatedAt.Format(CanonicalLayout)
		}
		details = append(details, detail)
	}
	return ToolResult{Success: true, Appointments: details}
}

// UpdateName changes the patient name on every appointment for the number.
func (s *Service) UpdateName(ctx context.Context, number, newName string) ToolResult {
	s.logger.Info("updating patient name", "whatsapp_number", number, "new_name", newName)

	count, err := s.store.UpdateName(ctx, number, newName)
	if err != nil {
		s.logger.Error("failed to update patient name", "whatsapp_number", number, "error", err)
		return databaseFailure(err)
	}
	s.logger.Info("patient name updated", "whatsapp_number", number, "updated_count", count)

	if count == 0 {
		return ToolResult{Success: false, Message: "No appointments found to update"}
	}
	return ToolResult{
		Success:      true,
		Message:      fmt.Sprintf("Updated name to '%s' for %d appointment(s)", newName, count),
		UpdatedCount: count,
	}
}

// UpdateClinic changes the clinic name on every appointment for the number.
func (s *Service) UpdateClinic(ctx context.Context, number, newClinic string) ToolResult {
	s.logger.Info("updating clinic name", "whatsapp_number", number, "new_clinic", newClinic)

	count, err := s.store.UpdateClinic(ctx, number, newClinic)
	if err != nil {
		s.logger.Error("failed to update clinic name", "whatsapp_number", number, "error", err)
		return databaseFailure(err)
	}
	s.logger.Info("clinic name updated", "whatsapp_number", number, "updated_count", count)

	if count == 0 {
		return ToolResult{Success: false, Message: "No appointments found to update"}
	}
	return ToolResult{
		Success:      true,
		Message:      fmt.Sprintf("Updated clinic to '%s' for %d appointment(s)", newClinic, count),
		UpdatedCount: count,
	}
}

// UpdateBookingTime normalizes the raw phrase and, if it parses, moves every
// appointment for the number to the canonical timestamp. Normalization
// failure is a soft result carrying the user-facing format hint.
func (s *Service) UpdateBookingTime(ctx context.Context, number, raw string) ToolResult {
	s.logger.Info("updating booking time", "whatsapp_number", number, "raw", raw)

	result := s.normalizer.Normalize(ctx, raw)
	if !result.Valid {
		return ToolResult{Success: false, Message: result.Hint}
	}

	parsed, err := parseCanonical(result.Canonical)
	if err != nil {
		s.logger.Warn("canonical timestamp rejected", "whatsapp_number", number, "canonical", result.Canonical, "error", err)
		return ToolResult{Success: false, Message: InvalidFormatHint}
	}

	count, err := s.store.UpdateBookingTime(ctx, number, parsed)
	if err != nil {
		s.logger.Error("failed to update booking time", "whatsapp_number", number, "error", err)
		return databaseFailure(err)
	}
	s.logger.Info("booking time updated", "whatsapp_number", number, "canonical", result.Canonical, "updated_count", count)

	if count == 0 {
		return ToolResult{Success: false, Message: "No appointments found to update"}
	}
	return ToolResult{
		Success:      true,
		Message:      fmt.Sprintf("Updated appointment time to %s for %d appointment(s)", result.Canonical, count),
		UpdatedCount: count,
	}
}

func databaseFailure(err error) ToolResult {
	if errors.Is(err, ErrStoreDisabled) {
		return ToolResult{Success: false, Message: "Database is not configured"}
	}
	return ToolResult{Success: false, Message: fmt.Sprintf("Database error: %v", err)}
}
