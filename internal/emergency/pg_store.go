package emergency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-access-scheduling/internal/db"
)

type PgStore struct {
	pool db.Querier
}

func NewPgStore(pool db.Querier) *PgStore {
	return &PgStore{pool: pool}
}

const grantColumns = `id, patient_id, doctor_id, granted_by, reason, granted_at,
	expires_at, is_active, revoked_at, revoked_by`

func scanGrant(row pgx.Row) (*Grant, error) {
	var g Grant
	err := row.Scan(
		&g.ID,
		&g.PatientID,
		&g.DoctorID,
		&g.GrantedBy,
		&g.Reason,
		&g.GrantedAt,
		&g.ExpiresAt,
		&g.IsActive,
		&g.RevokedAt,
		&g.RevokedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGrantNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (s *PgStore) Insert(ctx context.Context, g Grant) (*Grant, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO emergency_access_grants (id, patient_id, doctor_id, granted_by, reason, granted_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		RETURNING `+grantColumns,
		g.ID, g.PatientID, g.DoctorID, g.GrantedBy, g.Reason, g.GrantedAt, g.ExpiresAt)

	created, err := scanGrant(row)
	if err != nil {
		return nil, fmt.Errorf("insert emergency grant: %w", err)
	}
	return created, nil
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (*Grant, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+grantColumns+`
		FROM emergency_access_grants
		WHERE id = $1
	`, id)
	g, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get emergency grant: %w", err)
	}
	return g, nil
}

func (s *PgStore) Revoke(ctx context.Context, id, revokedBy uuid.UUID, at time.Time) (*Grant, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE emergency_access_grants
		SET is_active = false, revoked_at = $2, revoked_by = $3
		WHERE id = $1 AND is_active
		RETURNING `+grantColumns,
		id, at, revokedBy)
	g, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("revoke emergency grant: %w", err)
	}
	return g, nil
}

func (s *PgStore) Supersede(ctx context.Context, pair Pair, keep, revokedBy uuid.UUID, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE emergency_access_grants g
		SET is_active = false, revoked_at = $4, revoked_by = $5
		FROM emergency_access_grants k
		WHERE k.id = $3
		  AND g.patient_id = $1 AND g.doctor_id = $2 AND g.is_active
		  AND (g.granted_at, g.id) < (k.granted_at, k.id)
	`, pair.PatientID, pair.DoctorID, keep, at, revokedBy)
	if err != nil {
		return 0, fmt.Errorf("supersede emergency grants: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) ListEffective(ctx context.Context, now time.Time) ([]Grant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+grantColumns+`
		FROM emergency_access_grants
		WHERE is_active AND (expires_at IS NULL OR expires_at > $1)
		ORDER BY granted_at DESC, id DESC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list emergency grants: %w", err)
	}
	return collectGrants(rows)
}

func (s *PgStore) ListEffectiveForPatient(ctx context.Context, patientID uuid.UUID, now time.Time) ([]Grant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+grantColumns+`
		FROM emergency_access_grants
		WHERE patient_id = $1 AND is_active AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY granted_at DESC, id DESC
	`, patientID, now)
	if err != nil {
		return nil, fmt.Errorf("list emergency grants for patient: %w", err)
	}
	return collectGrants(rows)
}

func collectGrants(rows pgx.Rows) ([]Grant, error) {
	defer rows.Close()

	var out []Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}
