package identity

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

var ErrPatientNotFound = errors.New("patient not found")

// PatientProfile is the patient's public card. Age is nil when no birth date
// is on file.
type PatientProfile struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Age       *int       `json:"age,omitempty"`
}

// PgDirectory answers existence and guardianship questions from the
// patients, doctors and patient_dependents tables.
type PgDirectory struct {
	pool db.Querier
}

func NewPgDirectory(pool db.Querier) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return d.exists(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id)
}

func (d *PgDirectory) DoctorExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return d.exists(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, id)
}

// IsGuardian reports whether guardianID may act for dependentID.
func (d *PgDirectory) IsGuardian(ctx context.Context, guardianID, dependentID uuid.UUID) (bool, error) {
	return d.exists(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM patient_dependents
			WHERE guardian_id = $1 AND dependent_id = $2
		)`, guardianID, dependentID)
}

// Patient loads the patient's profile with their age in whole years as of
// today's calendar date.
func (d *PgDirectory) Patient(ctx context.Context, id uuid.UUID, today time.Time) (*PatientProfile, error) {
	p := PatientProfile{ID: id}
	err := d.pool.QueryRow(ctx, `SELECT name, birth_date FROM patients WHERE id = $1`, id).
		Scan(&p.Name, &p.BirthDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	if p.BirthDate != nil {
		age, err := timewindow.AgeInYears(*p.BirthDate, today)
		if err != nil {
			return nil, fmt.Errorf("patient %s: %w", id, err)
		}
		p.Age = &age
	}
	return &p, nil
}

func (d *PgDirectory) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	if err := d.pool.QueryRow(ctx, query, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("directory lookup: %w", err)
	}
	return ok, nil
}
