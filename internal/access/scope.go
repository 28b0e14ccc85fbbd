package access

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrUnknownScope = errors.New("unknown record scope")

// Scope names whose health record is being opened and by whom. The set is
// closed: PatientScope, DependentScope, DoctorReadOnlyScope and
// DoctorReadOnlyDependentScope.
type Scope interface {
	scope()
}

// PatientScope is a patient reading their own record.
type PatientScope struct {
	PatientID uuid.UUID
}

// DependentScope is a guardian reading a dependent's record.
type DependentScope struct {
	GuardianID  uuid.UUID
	DependentID uuid.UUID
}

// DoctorReadOnlyScope is a doctor reading a patient's record.
type DoctorReadOnlyScope struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
}

// DoctorReadOnlyDependentScope is a doctor reading the record of a patient's
// dependent.
type DoctorReadOnlyDependentScope struct {
	DoctorID    uuid.UUID
	PatientID   uuid.UUID
	DependentID uuid.UUID
}

func (PatientScope) scope()                 {}
func (DependentScope) scope()               {}
func (DoctorReadOnlyScope) scope()          {}
func (DoctorReadOnlyDependentScope) scope() {}

// DocumentKey is the storage key of the record the scope opens.
func DocumentKey(s Scope) (string, error) {
	switch s := s.(type) {
	case PatientScope:
		return patientKey(s.PatientID), nil
	case DependentScope:
		return dependentKey(s.GuardianID, s.DependentID), nil
	case DoctorReadOnlyScope:
		return patientKey(s.PatientID), nil
	case DoctorReadOnlyDependentScope:
		return dependentKey(s.PatientID, s.DependentID), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownScope, s)
	}
}

// ReadOnly reports whether the scope forbids writes.
func ReadOnly(s Scope) bool {
	switch s.(type) {
	case DoctorReadOnlyScope, DoctorReadOnlyDependentScope:
		return true
	default:
		return false
	}
}

func patientKey(patientID uuid.UUID) string {
	return "health_info/" + patientID.String()
}

func dependentKey(patientID, dependentID uuid.UUID) string {
	return patientKey(patientID) + "/dependents/" + dependentID.String()
}
