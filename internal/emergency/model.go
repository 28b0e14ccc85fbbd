package emergency

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// Grant lets one doctor read one patient's records without an appointment.
// ExpiresAt nil means the grant holds until revoked.
type Grant struct {
	ID        uuid.UUID  `json:"id"`
	PatientID uuid.UUID  `json:"patient_id"`
	DoctorID  uuid.UUID  `json:"doctor_id"`
	GrantedBy uuid.UUID  `json:"granted_by"`
	Reason    string     `json:"reason"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	IsActive  bool       `json:"is_active"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	RevokedBy *uuid.UUID `json:"revoked_by,omitempty"`
}

// EffectiveAt reports whether the grant authorizes access at now.
func (g Grant) EffectiveAt(now time.Time) bool {
	return effective(g.IsActive, g.ExpiresAt, now)
}

func (g Grant) Pair() Pair { return Pair{PatientID: g.PatientID, DoctorID: g.DoctorID} }

// olderThan orders grants by (GrantedAt, ID), the order Postgres compares
// (granted_at, id) in.
func (g Grant) olderThan(o Grant) bool {
	return before(g.GrantedAt, g.ID, o.GrantedAt, o.ID)
}

func before(at time.Time, id uuid.UUID, otherAt time.Time, otherID uuid.UUID) bool {
	a, b := at.UnixMicro(), otherAt.UnixMicro()
	if a != b {
		return a < b
	}
	return bytes.Compare(id[:], otherID[:]) < 0
}

// Pair identifies the (patient, doctor) key of the access index.
type Pair struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
}

// IndexEntry is the denormalized lookup row for a pair. It carries its own
// activity and expiry so a stale row left by a failed delete still reads as
// unauthorized once the grant has lapsed. GrantedAt orders competing writes
// for the same pair.
type IndexEntry struct {
	GrantID   uuid.UUID
	GrantedAt time.Time
	IsActive  bool
	ExpiresAt *time.Time
}

func (e IndexEntry) EffectiveAt(now time.Time) bool {
	return effective(e.IsActive, e.ExpiresAt, now)
}

func entryFor(g Grant) IndexEntry {
	return IndexEntry{GrantID: g.ID, GrantedAt: g.GrantedAt, IsActive: g.IsActive, ExpiresAt: g.ExpiresAt}
}

func effective(active bool, expiresAt *time.Time, now time.Time) bool {
	return active && (expiresAt == nil || expiresAt.After(now))
}
