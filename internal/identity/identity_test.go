package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-access-scheduling/internal/timewindow"
)

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)
	want := Subject{ID: uuid.New(), Role: RoleDoctor}

	raw, err := tokens.Issue(want)
	require.NoError(t, err)

	got, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTokensRejects(t *testing.T) {
	issuer := NewTokens("test-secret", time.Hour)
	raw, err := issuer.Issue(Subject{ID: uuid.New(), Role: RolePatient})
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokens("other", time.Hour).Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		late := NewTokens("test-secret", time.Hour)
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := late.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role", func(t *testing.T) {
		bad, err := issuer.Issue(Subject{ID: uuid.New(), Role: Role("nurse")})
		require.NoError(t, err)
		_, err = issuer.Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Parse("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)
	admin := Subject{ID: uuid.New(), Role: RoleAdmin}
	patient := Subject{ID: uuid.New(), Role: RolePatient}

	var seen Subject
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Authenticate(tokens, zerolog.Nop())(RequireRole(RoleAdmin)(final))

	bearer := func(s Subject) string {
		raw, err := tokens.Issue(s)
		require.NoError(t, err)
		return "Bearer " + raw
	}

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", bearer(patient), http.StatusForbidden},
		{"admin", bearer(admin), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/emergency-access", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, admin, seen)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("doctor")
	require.NoError(t, err)
	assert.Equal(t, RoleDoctor, r)

	_, err = ParseRole("Doctor")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestPgDirectoryExists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	patient, doctor, dependent := uuid.New(), uuid.New(), uuid.New()
	mock.ExpectQuery("FROM patients").WithArgs(patient).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("FROM doctors").WithArgs(doctor).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("FROM patient_dependents").WithArgs(patient, dependent).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	dir := NewPgDirectory(mock)
	ctx := context.Background()

	ok, err := dir.PatientExists(ctx, patient)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dir.DoctorExists(ctx, doctor)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = dir.IsGuardian(ctx, patient, dependent)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgDirectoryPatientAge(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	today := time.Date(2026, time.October, 19, 23, 30, 0, 0, time.UTC)
	birthday := time.Date(1990, time.October, 20, 0, 0, 0, 0, time.UTC)
	adult, unknown, missing, future := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	tomorrow := today.AddDate(0, 0, 1)

	mock.ExpectQuery("FROM patients").WithArgs(adult).
		WillReturnRows(pgxmock.NewRows([]string{"name", "birth_date"}).AddRow("Ada", &birthday))
	mock.ExpectQuery("FROM patients").WithArgs(unknown).
		WillReturnRows(pgxmock.NewRows([]string{"name", "birth_date"}).AddRow("Bo", (*time.Time)(nil)))
	mock.ExpectQuery("FROM patients").WithArgs(missing).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM patients").WithArgs(future).
		WillReturnRows(pgxmock.NewRows([]string{"name", "birth_date"}).AddRow("Cy", &tomorrow))

	dir := NewPgDirectory(mock)
	ctx := context.Background()

	p, err := dir.Patient(ctx, adult, today)
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.Name)
	require.NotNil(t, p.Age)
	assert.Equal(t, 35, *p.Age, "birthday is tomorrow")

	p, err = dir.Patient(ctx, unknown, today)
	require.NoError(t, err)
	assert.Nil(t, p.Age)

	_, err = dir.Patient(ctx, missing, today)
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = dir.Patient(ctx, future, today)
	assert.ErrorIs(t, err, timewindow.ErrFutureDate)

	require.NoError(t, mock.ExpectationsWereMet())
}
