package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentRowColumns = []string{
	"id", "doctor_id", "patient_id", "specialty", "appt_date", "time_slot_id",
	"start_minute", "end_minute", "status", "created_at", "updated_at", "cancelled_at", "cancelled_by",
}

func TestPgCreateIfAbsentInserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	d := draftFor(uuid.New(), uuid.New())
	d.ID = uuid.New()
	now := time.Now()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(d.ID, d.DoctorID, d.PatientID, d.Specialty, monday, d.TimeSlotID, int32(600), int32(630)).
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns).
			AddRow(d.ID, d.DoctorID, d.PatientID, d.Specialty, monday, d.TimeSlotID,
				int32(600), int32(630), "confirmed", now, now, (*time.Time)(nil), (*uuid.UUID)(nil)))

	created, err := NewPgRepository(mock).CreateIfAbsent(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, created.Status)
	assert.Equal(t, tod(10, 0), created.StartTime)
	assert.Nil(t, created.CancelledAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateIfAbsentConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	d := draftFor(uuid.New(), uuid.New())
	d.ID = uuid.New()

	mock.ExpectQuery("ON CONFLICT DO NOTHING").
		WithArgs(d.ID, d.DoctorID, d.PatientID, d.Specialty, monday, d.TimeSlotID, int32(600), int32(630)).
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns))

	_, err = NewPgRepository(mock).CreateIfAbsent(context.Background(), d)
	assert.ErrorIs(t, err, ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListBookedWindows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	doctorID := uuid.New()
	mock.ExpectQuery("SELECT start_minute, end_minute").
		WithArgs(doctorID, monday).
		WillReturnRows(pgxmock.NewRows([]string{"start_minute", "end_minute"}).
			AddRow(int32(540), int32(570)).
			AddRow(int32(600), int32(630)))

	windows, err := NewPgRepository(mock).ListBookedWindows(context.Background(), doctorID, monday)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, tod(9, 0), windows[0].Start)
	assert.Equal(t, tod(10, 30), windows[1].End)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgHasLiveAppointment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	doctorID, patientID := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(doctorID, patientID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := NewPgRepository(mock).HasLiveAppointment(context.Background(), doctorID, patientID)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
