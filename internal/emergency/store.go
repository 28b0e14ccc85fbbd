package emergency

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// GrantStore is the system of record for emergency grants.
type GrantStore interface {
	Insert(ctx context.Context, g Grant) (*Grant, error)
	Get(ctx context.Context, id uuid.UUID) (*Grant, error)
	// Revoke deactivates an active grant. It returns ErrGrantNotFound when no
	// active grant has that id.
	Revoke(ctx context.Context, id, revokedBy uuid.UUID, at time.Time) (*Grant, error)
	// Supersede revokes the pair's active grants that are older than keep by
	// (granted_at, id). A grant newer than keep is never touched.
	Supersede(ctx context.Context, pair Pair, keep, revokedBy uuid.UUID, at time.Time) (int64, error)
	// ListEffective returns grants active and unexpired at now, newest first.
	ListEffective(ctx context.Context, now time.Time) ([]Grant, error)
	ListEffectiveForPatient(ctx context.Context, patientID uuid.UUID, now time.Time) ([]Grant, error)
}
