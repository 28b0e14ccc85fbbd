package availability

import (
	"context"
	"errors"
	"fmt"

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

func scanDay(row pgx.Row) (*WeeklyAvailability, error) {
	var (
		d                WeeklyAvailability
		weekday          int16
		startMin, endMin int32
	)

	err := row.Scan(
		&d.DoctorID,
		&weekday,
		&d.IsActive,
		&startMin,
		&endMin,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDayNotFound
		}
		return nil, err
	}

	d.Weekday = timewindow.Weekday(weekday)
	d.StartTime = timewindow.TimeOfDay(startMin)
	d.EndTime = timewindow.TimeOfDay(endMin)
	return &d, nil
}

func (r *PgRepository) UpsertDay(ctx context.Context, day WeeklyAvailability) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO weekly_availability (doctor_id, weekday, is_active, start_minute, end_minute, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (doctor_id, weekday) DO UPDATE
		SET is_active = EXCLUDED.is_active,
		    start_minute = EXCLUDED.start_minute,
		    end_minute = EXCLUDED.end_minute,
		    updated_at = now()
	`, day.DoctorID, int16(day.Weekday), day.IsActive, int32(day.StartTime), int32(day.EndTime))
	if err != nil {
		return fmt.Errorf("upsert availability day: %w", err)
	}
	return nil
}

func (r *PgRepository) GetDay(ctx context.Context, doctorID uuid.UUID, weekday timewindow.Weekday) (*WeeklyAvailability, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT doctor_id, weekday, is_active, start_minute, end_minute, updated_at
		FROM weekly_availability
		WHERE doctor_id = $1 AND weekday = $2
	`, doctorID, int16(weekday))
	return scanDay(row)
}

func (r *PgRepository) ListWeek(ctx context.Context, doctorID uuid.UUID) ([]WeeklyAvailability, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT doctor_id, weekday, is_active, start_minute, end_minute, updated_at
		FROM weekly_availability
		WHERE doctor_id = $1
		ORDER BY weekday
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WeeklyAvailability
	for rows.Next() {
		d, err := scanDay(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
