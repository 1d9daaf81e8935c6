package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrStoreDisabled is returned when no database was configured.
var ErrStoreDisabled = errors.New("appointments: store not configured")

// PgxPool is the subset of pgxpool.Pool the store needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Appointment is one row of book_an_appointment. Rows are created by an
// external booking process; this service only reads and updates them.
// Booking time is a naive local timestamp with no timezone.
type Appointment struct {
	PatientName string
	BookingTime *time.Time
	ClinicName  string
	Status      string
	CreatedAt   *time.Time
}

// Store persists appointment state in Postgres. All updates act on every row
// matching the WhatsApp number; no row is uniquely addressable by number.
type Store struct {
	pool PgxPool
}

// NewStore creates a store backed by a pgx pool. A nil pool yields a nil
// store, which every caller treats as the disabled state.
func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

// ListByNumber returns all appointments for the number, newest first.
func (s *Store) ListByNumber(ctx context.Context, number string) ([]Appointment, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreDisabled
	}

	rows, err := s.pool.Query(ctx, `
		SELECT patient_name, booking_time, clinic_name, status, created_at
		FROM book_an_appointment
		WHERE whatsapp_number = $1
		ORDER BY created_at DESC
	`, number)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by number: %w", err)
	}
	defer rows.Close()

	var appointments []Appointment
	for rows.Next() {
		var apt Appointment
		if err := rows.Scan(&apt.PatientName, &apt.BookingTime, &apt.ClinicName, &apt.Status, &apt.CreatedAt); err != nil {
			return nil, fmt.Errorf("appointments: scan row: %w", err)
		}
		appointments = append(appointments, apt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: iterate rows: %w", err)
	}
	return appointments, nil
}

// UpdateName sets the patient name on every appointment for the number and
// reports how many rows changed. Zero is not an error.
func (s *Store) UpdateName(ctx context.Context, number, newName string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreDisabled
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE book_an_appointment
		SET patient_name = $1
		WHERE whatsapp_number = $2
	`, newName, number)
	if err != nil {
		return 0, fmt.Errorf("appointments: update name: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateClinic sets the clinic name on every appointment for the number.
func (s *Store) UpdateClinic(ctx context.Context, number, newClinic string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreDisabled
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE book_an_appointment
		SET clinic_name = $1
		WHERE whatsapp_number = $2
	`, newClinic, number)
	if err != nil {
		return 0, fmt.Errorf("appointments: update clinic: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateBookingTime sets the booking time on every appointment for the number.
func (s *Store) UpdateBookingTime(ctx context.Context, number string, bookingTime time.Time) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreDisabled
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE book_an_appointment
		SET booking_time = $1
		WHERE whatsapp_number = $2
	`, bookingTime, number)
	if err != nil {
		return 0, fmt.Errorf("appointments: update booking time: %w", err)
	}
	return tag.RowsAffected(), nil
}
