package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-access-scheduling/internal/access"
	"github.com/hackgods/clinic-access-scheduling/internal/emergency"
	"github.com/hackgods/clinic-access-scheduling/internal/identity"
)

type EmergencyRegistry interface {
	Grant(ctx context.Context, req emergency.GrantRequest) (*emergency.Grant, error)
	Revoke(ctx context.Context, grantID, revokedBy uuid.UUID) (*emergency.Grant, error)
	ListActive(ctx context.Context, now time.Time) ([]emergency.Grant, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID, now time.Time) ([]emergency.Grant, error)
	Now() time.Time
}

type Authorizer interface {
	Authorize(ctx context.Context, subject identity.Subject, scope access.Scope) (access.Decision, error)
}

type grantResponse struct {
	Grant        emergency.Grant `json:"grant"`
	IndexPending bool            `json:"index_pending,omitempty"`
}

// respondGrant answers 202 when the record changed but the index did not.
func (h *handlers) respondGrant(w http.ResponseWriter, r *http.Request, status int, g *emergency.Grant, err error) {
	if err != nil && (g == nil || !errors.Is(err, emergency.ErrIndexNotUpdated)) {
		h.handleError(w, r, err)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusAccepted, grantResponse{Grant: *g, IndexPending: true})
		return
	}
	writeJSON(w, status, grantResponse{Grant: *g})
}

func (h *handlers) grantEmergencyAccess(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}

	g, err := h.emergency.Grant(r.Context(), emergency.GrantRequest{
		PatientID:     patientID,
		DoctorID:      doctorID,
		GrantedBy:     subjectOf(r).ID,
		Reason:        req.Reason,
		DurationHours: req.DurationHours,
	})
	h.respondGrant(w, r, http.StatusCreated, g, err)
}

func (h *handlers) revokeEmergencyAccess(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	g, err := h.emergency.Revoke(r.Context(), id, subjectOf(r).ID)
	h.respondGrant(w, r, http.StatusOK, g, err)
}

func (h *handlers) listEmergencyAccess(w http.ResponseWriter, r *http.Request) {
	grants, err := h.emergency.ListActive(r.Context(), h.emergency.Now())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if grants == nil {
		grants = []emergency.Grant{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"grants": grants})
}

// listPatientEmergencyAccess shows a patient who can currently read their
// record under an emergency grant. Reasons stay admin-only.
func (h *handlers) listPatientEmergencyAccess(w http.ResponseWriter, r *http.Request) {
	patientID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	s := subjectOf(r)
	if !canActFor(s, patientID) {
		writeError(w, http.StatusForbidden, "forbidden", "only the patient or an admin may list this")
		return
	}

	grants, err := h.emergency.ListForPatient(r.Context(), patientID, h.emergency.Now())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	out := make([]emergency.Grant, 0, len(grants))
	for _, g := range grants {
		if !s.Is(identity.RoleAdmin) {
			g.Reason = ""
			g.GrantedBy = uuid.Nil
		}
		out = append(out, g)
	}
	writeJSON(w, http.StatusOK, map[string]any{"grants": out})
}

// checkAccess answers "may the caller open this record right now". It is
// evaluated fresh on every call.
func (h *handlers) checkAccess(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	patientID, err := uuid.Parse(q.Get("patient_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return
	}
	var dependentID uuid.UUID
	if v := q.Get("dependent_id"); v != "" {
		if dependentID, err = uuid.Parse(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_dependent_id", "dependent_id must be a valid UUID")
			return
		}
	}

	s := subjectOf(r)
	doctorID := s.ID
	if v := q.Get("doctor_id"); v != "" {
		if doctorID, err = uuid.Parse(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
	}

	scope := scopeFor(s, patientID, doctorID, dependentID)
	decision, err := h.authorizer.Authorize(r.Context(), s, scope)
	if err != nil {
		h.logger.Error().Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Msg("access check failed")
		writeError(w, http.StatusServiceUnavailable, "access_check_unavailable", retryMessage)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func scopeFor(s identity.Subject, patientID, doctorID, dependentID uuid.UUID) access.Scope {
	switch {
	case s.Is(identity.RoleDoctor) && dependentID != uuid.Nil:
		return access.DoctorReadOnlyDependentScope{DoctorID: doctorID, PatientID: patientID, DependentID: dependentID}
	case s.Is(identity.RoleDoctor):
		return access.DoctorReadOnlyScope{DoctorID: doctorID, PatientID: patientID}
	case dependentID != uuid.Nil:
		return access.DependentScope{GuardianID: patientID, DependentID: dependentID}
	default:
		return access.PatientScope{PatientID: patientID}
	}
}
