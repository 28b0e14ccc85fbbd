package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-access-scheduling/internal/identity"
)

type pair struct{ a, b uuid.UUID }

type stubChecks struct {
	appointments map[pair]bool // doctor, patient
	grants       map[pair]time.Time
	guardians    map[pair]bool // guardian, dependent
	err          error
}

func (s *stubChecks) HasAppointment(_ context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	return s.appointments[pair{doctorID, patientID}], s.err
}

func (s *stubChecks) IsAuthorized(_ context.Context, patientID, doctorID uuid.UUID, now time.Time) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	exp, ok := s.grants[pair{patientID, doctorID}]
	return ok && exp.After(now), nil
}

func (s *stubChecks) IsGuardian(_ context.Context, guardianID, dependentID uuid.UUID) (bool, error) {
	return s.guardians[pair{guardianID, dependentID}], s.err
}

func TestDocumentKey(t *testing.T) {
	p, d, doc := uuid.New(), uuid.New(), uuid.New()

	tests := []struct {
		scope    Scope
		key      string
		readOnly bool
	}{
		{PatientScope{PatientID: p}, "health_info/" + p.String(), false},
		{DependentScope{GuardianID: p, DependentID: d}, "health_info/" + p.String() + "/dependents/" + d.String(), false},
		{DoctorReadOnlyScope{DoctorID: doc, PatientID: p}, "health_info/" + p.String(), true},
		{DoctorReadOnlyDependentScope{DoctorID: doc, PatientID: p, DependentID: d}, "health_info/" + p.String() + "/dependents/" + d.String(), true},
	}
	for _, tt := range tests {
		key, err := DocumentKey(tt.scope)
		require.NoError(t, err)
		assert.Equal(t, tt.key, key)
		assert.Equal(t, tt.readOnly, ReadOnly(tt.scope))
	}

	_, err := DocumentKey(nil)
	assert.ErrorIs(t, err, ErrUnknownScope)
}

func TestAuthorize(t *testing.T) {
	now := time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC)
	patient, dependent, stranger := uuid.New(), uuid.New(), uuid.New()
	booked, onCall, other := uuid.New(), uuid.New(), uuid.New()
	admin := uuid.New()

	checks := &stubChecks{
		appointments: map[pair]bool{{booked, patient}: true},
		grants: map[pair]time.Time{
			{patient, onCall}:   now.Add(time.Hour),
			{patient, other}:    now.Add(-time.Minute),
			{dependent, onCall}: now.Add(time.Hour),
		},
		guardians: map[pair]bool{{patient, dependent}: true},
	}
	authz := NewAuthorizer(checks, checks, checks, zerolog.Nop(), WithClock(func() time.Time { return now }))

	asPatient := func(id uuid.UUID) identity.Subject { return identity.Subject{ID: id, Role: identity.RolePatient} }
	asDoctor := func(id uuid.UUID) identity.Subject { return identity.Subject{ID: id, Role: identity.RoleDoctor} }

	tests := []struct {
		name    string
		subject identity.Subject
		scope   Scope
		allowed bool
		path    string
	}{
		{"own record", asPatient(patient), PatientScope{PatientID: patient}, true, PathSelf},
		{"someone else's record", asPatient(stranger), PatientScope{PatientID: patient}, false, PathNone},
		{"guardian of dependent", asPatient(patient), DependentScope{GuardianID: patient, DependentID: dependent}, true, PathGuardian},
		{"not a guardian", asPatient(stranger), DependentScope{GuardianID: stranger, DependentID: dependent}, false, PathNone},
		{"doctor with appointment", asDoctor(booked), DoctorReadOnlyScope{DoctorID: booked, PatientID: patient}, true, PathAppointment},
		{"doctor with emergency grant", asDoctor(onCall), DoctorReadOnlyScope{DoctorID: onCall, PatientID: patient}, true, PathEmergency},
		{"doctor with expired grant", asDoctor(other), DoctorReadOnlyScope{DoctorID: other, PatientID: patient}, false, PathNone},
		{"doctor impersonating", asDoctor(other), DoctorReadOnlyScope{DoctorID: booked, PatientID: patient}, false, PathNone},
		{"dependent via guardian appointment", asDoctor(booked), DoctorReadOnlyDependentScope{DoctorID: booked, PatientID: patient, DependentID: dependent}, true, PathAppointment},
		{"dependent via emergency grant", asDoctor(onCall), DoctorReadOnlyDependentScope{DoctorID: onCall, PatientID: patient, DependentID: dependent}, true, PathEmergency},
		{"dependent of wrong patient", asDoctor(booked), DoctorReadOnlyDependentScope{DoctorID: booked, PatientID: stranger, DependentID: dependent}, false, PathNone},
		{"admin reads nothing", identity.Subject{ID: admin, Role: identity.RoleAdmin}, PatientScope{PatientID: patient}, false, PathNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := authz.Authorize(context.Background(), tt.subject, tt.scope)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.path, d.Path)
			if d.Allowed {
				assert.NotEmpty(t, d.DocumentKey)
			} else {
				assert.Empty(t, d.DocumentKey)
			}
		})
	}
}

func TestAuthorizeFailsClosed(t *testing.T) {
	doctor, patient := uuid.New(), uuid.New()
	checks := &stubChecks{err: errors.New("dial tcp: i/o timeout")}
	authz := NewAuthorizer(checks, checks, checks, zerolog.Nop())

	d, err := authz.Authorize(context.Background(),
		identity.Subject{ID: doctor, Role: identity.RoleDoctor},
		DoctorReadOnlyScope{DoctorID: doctor, PatientID: patient})
	require.Error(t, err)
	assert.False(t, d.Allowed)
	assert.Empty(t, d.DocumentKey)
}
