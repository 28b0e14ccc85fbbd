package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-access-scheduling/internal/db"
	"github.com/hackgods/clinic-access-scheduling/internal/timewindow"
)

type PgRepository struct {
	pool db.Querier
}

func NewPgRepository(pool db.Querier) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, doctor_id, patient_id, specialty, appt_date, time_slot_id,
	start_minute, end_minute, status, created_at, updated_at, cancelled_at, cancelled_by`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a                Appointment
		startMin, endMin int32
		status           string
	)

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Specialty,
		&a.Date,
		&a.TimeSlotID,
		&startMin,
		&endMin,
		&status,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.CancelledAt,
		&a.CancelledBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.StartTime = timewindow.TimeOfDay(startMin)
	a.EndTime = timewindow.TimeOfDay(endMin)
	a.Status = Status(status)
	return &a, nil
}

func (r *PgRepository) CreateIfAbsent(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	// ON CONFLICT without a target also covers the partial unique index on
	// live slot keys; a conflicting insert returns no row.
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, specialty, appt_date, time_slot_id,
			start_minute, end_minute, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'confirmed', now(), now())
		ON CONFLICT DO NOTHING
		RETURNING `+appointmentColumns,
		a.ID, a.DoctorID, a.PatientID, a.Specialty, timewindow.DateOf(a.Date), a.TimeSlotID,
		int32(a.StartTime), int32(a.EndTime))

	created, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrSlotTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListBookedWindows(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]timewindow.Window, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_minute, end_minute
		FROM appointments
		WHERE doctor_id = $1
		  AND appt_date = $2
		  AND status <> 'cancelled'
		ORDER BY start_minute
	`, doctorID, timewindow.DateOf(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []timewindow.Window
	for rows.Next() {
		var startMin, endMin int32
		if err := rows.Scan(&startMin, &endMin); err != nil {
			return nil, err
		}
		windows = append(windows, timewindow.Window{
			Start: timewindow.TimeOfDay(startMin),
			End:   timewindow.TimeOfDay(endMin),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return windows, nil
}

func (r *PgRepository) HasLiveAppointment(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND patient_id = $2 AND status = 'confirmed'
		)
	`, doctorID, patientID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check appointment relationship: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appt_date DESC, start_minute DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) Cancel(ctx context.Context, id, by uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancelled_at = now(),
		    cancelled_by = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'confirmed'
		RETURNING `+appointmentColumns, id, by)
	return scanAppointment(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
