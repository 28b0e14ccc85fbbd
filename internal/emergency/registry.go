package emergency

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-access-scheduling/internal/metrics"
)

var (
	ErrEmptyReason     = errors.New("reason must not be blank")
	ErrUnknownSubject  = errors.New("unknown patient or doctor")
	ErrInvalidDuration = errors.New("duration must be a positive number of hours")
	ErrGrantNotFound   = errors.New("emergency grant not found")
	// ErrIndexNotUpdated means the grant record was written but the access
	// index could not follow. The returned grant is valid; the index is
	// repaired by Reconcile.
	ErrIndexNotUpdated = errors.New("access index not updated")
)

// SystemActor is recorded as revoked_by when the registry itself retires a
// grant rather than an administrator.
var SystemActor = uuid.Nil

// SubjectDirectory confirms that grant subjects exist.
type SubjectDirectory interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	DoctorExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type GrantRequest struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	GrantedBy uuid.UUID
	Reason    string
	// DurationHours nil means the grant lasts until revoked.
	DurationHours *int
}

type Registry struct {
	store    GrantStore
	index    Index
	subjects SubjectDirectory
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func NewRegistry(store GrantStore, index Index, subjects SubjectDirectory, logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:    store,
		index:    index,
		subjects: subjects,
		logger:   logger.With().Str("component", "emergency_access").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now is the registry's clock.
func (r *Registry) Now() time.Time { return r.now() }

// Grant records a new grant for the pair and points the index at it. Earlier
// active grants of the same pair are superseded. If a concurrent, newer grant
// for the pair reached the index first, the new grant is the one superseded
// and is returned inactive.
//
// When the record is written but the index write fails, Grant returns the
// grant together with an error wrapping ErrIndexNotUpdated. Until repaired the
// pair reads as unauthorized.
func (r *Registry) Grant(ctx context.Context, req GrantRequest) (*Grant, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, ErrEmptyReason
	}
	if req.DurationHours != nil && *req.DurationHours <= 0 {
		return nil, ErrInvalidDuration
	}
	if err := r.checkSubjects(ctx, req.PatientID, req.DoctorID); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	draft := Grant{
		ID:        uuid.New(),
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		GrantedBy: req.GrantedBy,
		Reason:    reason,
		GrantedAt: now,
		IsActive:  true,
	}
	if req.DurationHours != nil {
		expires := now.Add(time.Duration(*req.DurationHours) * time.Hour)
		draft.ExpiresAt = &expires
	}

	g, err := r.store.Insert(ctx, draft)
	if err != nil {
		r.metrics.ObserveGrant("grant", "error")
		return nil, err
	}

	log := r.logger.Warn().
		Str("type", "emergency_access_grant").
		Str("grant_id", g.ID.String()).
		Str("patient_id", g.PatientID.String()).
		Str("doctor_id", g.DoctorID.String()).
		Str("granted_by", g.GrantedBy.String()).
		Str("reason", g.Reason)
	if g.ExpiresAt != nil {
		log = log.Time("expires_at", *g.ExpiresAt)
	}
	log.Msg("emergency access granted")

	applied, err := r.index.Put(ctx, g.Pair(), entryFor(*g))
	if err != nil {
		r.metrics.ObserveGrant("grant", "index_failed")
		r.logger.Error().Err(err).
			Str("grant_id", g.ID.String()).
			Msg("access index write failed after grant")
		return g, fmt.Errorf("%w: %w", ErrIndexNotUpdated, err)
	}

	keep, revokedBy := g.ID, g.GrantedBy
	if !applied {
		// a newer grant for the pair was indexed first and wins
		if current, ok, err := r.index.Get(ctx, g.Pair()); err == nil && ok {
			keep, revokedBy = current.GrantID, SystemActor
		}
	}

	n, err := r.store.Supersede(ctx, g.Pair(), keep, revokedBy, now)
	if err != nil {
		// the index already points at the newest grant; Reconcile retires the rest
		r.logger.Error().Err(err).
			Str("grant_id", g.ID.String()).
			Msg("supersede earlier grants")
	} else if n > 0 {
		r.logger.Info().
			Str("grant_id", g.ID.String()).
			Str("kept_grant_id", keep.String()).
			Int64("superseded", n).
			Msg("earlier emergency grants superseded")
	}

	if keep != g.ID {
		if current, err := r.store.Get(ctx, g.ID); err == nil {
			g = current
		}
	}

	r.metrics.ObserveGrant("grant", "ok")
	return g, nil
}

func (r *Registry) checkSubjects(ctx context.Context, patientID, doctorID uuid.UUID) error {
	if patientID == uuid.Nil || doctorID == uuid.Nil {
		return ErrUnknownSubject
	}
	ok, err := r.subjects.PatientExists(ctx, patientID)
	if err != nil {
		return fmt.Errorf("check patient: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: patient %s", ErrUnknownSubject, patientID)
	}
	ok, err = r.subjects.DoctorExists(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("check doctor: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: doctor %s", ErrUnknownSubject, doctorID)
	}
	return nil
}

// Revoke deactivates the grant and deletes its index entry. Revoking an
// already inactive grant retries the index delete and succeeds.
//
// If the index delete fails the grant stays revoked and the error wraps
// ErrIndexNotUpdated. The stale entry then says "active" but IsAuthorized
// keeps honoring the grant only until its own expiry; Reconcile removes it.
func (r *Registry) Revoke(ctx context.Context, grantID, revokedBy uuid.UUID) (*Grant, error) {
	g, err := r.store.Get(ctx, grantID)
	if err != nil {
		return nil, err
	}

	if g.IsActive {
		updated, err := r.store.Revoke(ctx, grantID, revokedBy, r.now().UTC())
		switch {
		case err == nil:
			g = updated
		case errors.Is(err, ErrGrantNotFound):
			// revoked concurrently; fall through to the index delete
		default:
			r.metrics.ObserveGrant("revoke", "error")
			return nil, err
		}
	}

	r.logger.Warn().
		Str("type", "emergency_access_revoke").
		Str("grant_id", g.ID.String()).
		Str("patient_id", g.PatientID.String()).
		Str("doctor_id", g.DoctorID.String()).
		Str("revoked_by", revokedBy.String()).
		Msg("emergency access revoked")

	if _, err := r.index.Delete(ctx, g.Pair(), g.ID); err != nil {
		r.metrics.ObserveGrant("revoke", "index_failed")
		r.logger.Warn().Err(err).
			Str("grant_id", g.ID.String()).
			Msg("access index delete failed after revoke; entry is stale")
		return g, fmt.Errorf("%w: %w", ErrIndexNotUpdated, err)
	}

	r.metrics.ObserveGrant("revoke", "ok")
	return g, nil
}

// IsAuthorized reports whether the doctor holds an effective emergency grant
// for the patient at now. It reads only the index and has no side effects. Any
// read error is returned with false; callers must deny.
func (r *Registry) IsAuthorized(ctx context.Context, patientID, doctorID uuid.UUID, now time.Time) (bool, error) {
	entry, ok, err := r.index.Get(ctx, Pair{PatientID: patientID, DoctorID: doctorID})
	if err != nil {
		return false, err
	}
	return ok && entry.EffectiveAt(now), nil
}

// ListActive returns the grants effective at now, most recent first.
func (r *Registry) ListActive(ctx context.Context, now time.Time) ([]Grant, error) {
	grants, err := r.store.ListEffective(ctx, now)
	if err != nil {
		return nil, err
	}
	return effectiveSorted(grants, now), nil
}

// ListForPatient is ListActive restricted to one patient.
func (r *Registry) ListForPatient(ctx context.Context, patientID uuid.UUID, now time.Time) ([]Grant, error) {
	grants, err := r.store.ListEffectiveForPatient(ctx, patientID, now)
	if err != nil {
		return nil, err
	}
	return effectiveSorted(grants, now), nil
}

func effectiveSorted(grants []Grant, now time.Time) []Grant {
	out := make([]Grant, 0, len(grants))
	for _, g := range grants {
		if g.EffectiveAt(now) {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[j].olderThan(out[i]) })
	return out
}

type ReconcileReport struct {
	Removed    int
	Restored   int
	Superseded int
}

// Reconcile brings the index back in line with the grant records: entries
// whose grant is revoked, expired or replaced are removed, effective grants
// missing from the index are restored, and duplicate active grants of a pair
// are superseded by the newest one.
func (r *Registry) Reconcile(ctx context.Context, now time.Time) (ReconcileReport, error) {
	var report ReconcileReport

	grants, err := r.store.ListEffective(ctx, now)
	if err != nil {
		return report, err
	}

	latest := make(map[Pair]Grant, len(grants))
	for _, g := range effectiveSorted(grants, now) {
		if _, seen := latest[g.Pair()]; !seen {
			latest[g.Pair()] = g
			continue
		}
		n, err := r.store.Supersede(ctx, g.Pair(), latest[g.Pair()].ID, SystemActor, now)
		if err != nil {
			return report, err
		}
		report.Superseded += int(n)
	}

	indexed := make(map[Pair]bool, len(latest))
	err = r.index.Scan(ctx, func(pair Pair, entry IndexEntry) error {
		want, ok := latest[pair]
		if ok && want.ID == entry.GrantID {
			indexed[pair] = true
			if !sameEntry(entry, entryFor(want)) {
				applied, err := r.index.Put(ctx, pair, entryFor(want))
				if err != nil {
					return err
				}
				if applied {
					report.Restored++
				}
			}
			return nil
		}

		current, err := r.store.Get(ctx, entry.GrantID)
		if err != nil && !errors.Is(err, ErrGrantNotFound) {
			return err
		}
		// a grant issued after the listing above is newer than want
		if err == nil && current.EffectiveAt(now) && (!ok || !current.olderThan(want)) {
			indexed[pair] = true
			return nil
		}

		// stale: clear it so a replacement below is not refused as older
		removed, err := r.index.Delete(ctx, pair, entry.GrantID)
		if err != nil {
			return err
		}
		if removed && !ok {
			report.Removed++
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	for pair, g := range latest {
		if indexed[pair] {
			continue
		}
		current, err := r.store.Get(ctx, g.ID)
		if err != nil || !current.EffectiveAt(now) {
			continue
		}
		applied, err := r.index.Put(ctx, pair, entryFor(*current))
		if err != nil {
			return report, err
		}
		if applied {
			report.Restored++
		}
	}

	r.metrics.ObserveReconcile("removed", report.Removed)
	r.metrics.ObserveReconcile("restored", report.Restored)
	r.metrics.ObserveReconcile("superseded", report.Superseded)
	if report != (ReconcileReport{}) {
		r.logger.Warn().
			Int("removed", report.Removed).
			Int("restored", report.Restored).
			Int("superseded", report.Superseded).
			Msg("access index reconciled")
	}
	return report, nil
}

func sameEntry(a, b IndexEntry) bool {
	if a.GrantID != b.GrantID || a.IsActive != b.IsActive || a.GrantedAt.UnixMicro() != b.GrantedAt.UnixMicro() {
		return false
	}
	if a.ExpiresAt == nil || b.ExpiresAt == nil {
		return a.ExpiresAt == nil && b.ExpiresAt == nil
	}
	return a.ExpiresAt.UnixMilli() == b.ExpiresAt.UnixMilli()
}
