package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking-engine/internal/availability"
	"github.com/hackgods/clinic-booking-engine/internal/store"
)

var appointmentRowColumns = []string{
	"id", "patient_id", "provider_id", "specialty_id",
	"patient_name", "provider_name", "specialty_name", "location",
	"date", "time", "status", "created_at", "updated_at",
}

func newSQLMockRepo(t *testing.T) (*PgRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := store.New(store.NewSQLXAdapter(sqlx.NewDb(db, "postgres")), zerolog.Nop())
	return NewPgRepository(s), mock
}

func TestPgRepository_InsertAppointmentScansReturningRow(t *testing.T) {
	// arrange
	repo, mock := newSQLMockRepo(t)
	now := time.Date(2030, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO "appointments" .+ RETURNING`).
		WillReturnRows(sqlmock.NewRows(appointmentRowColumns).AddRow(
			"3f2504e0-4f89-41d3-9a0c-0305e82c3301", patientA, providerX, cardiology,
			"Maria", "Dr. Ana", "Cardiology", "Clinic 1",
			"2030-03-04", "14:00:00", "scheduled", now, now,
		))

	// act
	created, err := repo.InsertAppointment(context.Background(), Appointment{
		PatientID: patientA, ProviderID: providerX, SpecialtyID: cardiology,
		Date: mustDate(t, "2030-03-04"), Time: mustClock(t, "14:00"), Status: StatusScheduled,
	})

	// assert
	require.NoError(t, err)
	assert.Equal(t, "3f2504e0-4f89-41d3-9a0c-0305e82c3301", created.ID)
	assert.Equal(t, "14:00:00", created.Time.StoreString())
	assert.Equal(t, StatusScheduled, created.Status)
	assert.Equal(t, "Dr. Ana", created.ProviderName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_InsertAppointmentUniqueViolationThroughCommitter(t *testing.T) {
	repo, mock := newSQLMockRepo(t)
	mock.ExpectQuery(`INSERT INTO "appointments"`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "appointments_provider_slot_active_key"})

	_, err := NewCommitter(repo, zerolog.Nop()).Commit(context.Background(), Appointment{
		PatientID: patientA, ProviderID: providerX, SpecialtyID: cardiology,
		Date: mustDate(t, "2030-03-04"), Time: mustClock(t, "14:00"),
	})

	assert.ErrorIs(t, err, ErrProviderConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_UpdateStatusWithoutMatchIsNotFound(t *testing.T) {
	repo, mock := newSQLMockRepo(t)
	mock.ExpectQuery(`UPDATE "appointments" SET`).
		WillReturnRows(sqlmock.NewRows(appointmentRowColumns))

	_, err := repo.UpdateStatus(context.Background(), "3f2504e0-4f89-41d3-9a0c-0305e82c3301", ActiveStatuses, StatusCancelled)

	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPgRepository_Template(t *testing.T) {
	t.Run("parses slots and occupancy", func(t *testing.T) {
		repo, mock := newSQLMockRepo(t)
		mock.ExpectQuery(`FROM "availability_templates"`).
			WillReturnRows(sqlmock.NewRows([]string{"slots", "occupied"}).AddRow("08:00,09:30,13:00", "09:30"))

		tpl, err := repo.Template(context.Background(), providerX, mustDate(t, "2030-03-04"))

		require.NoError(t, err)
		assert.Len(t, tpl.Slots, 3)
		assert.Equal(t, "09:30", tpl.Occupied[0].String())
	})

	t.Run("missing record", func(t *testing.T) {
		repo, mock := newSQLMockRepo(t)
		mock.ExpectQuery(`FROM "availability_templates"`).
			WillReturnRows(sqlmock.NewRows([]string{"slots", "occupied"}))

		_, err := repo.Template(context.Background(), providerX, mustDate(t, "2030-03-04"))

		assert.ErrorIs(t, err, availability.ErrNoTemplate)
	})

	t.Run("day off has no slots", func(t *testing.T) {
		repo, mock := newSQLMockRepo(t)
		mock.ExpectQuery(`FROM "availability_templates"`).
			WillReturnRows(sqlmock.NewRows([]string{"slots", "occupied"}).AddRow("", ""))

		tpl, err := repo.Template(context.Background(), providerX, mustDate(t, "2030-03-04"))

		require.NoError(t, err)
		assert.Empty(t, tpl.Slots)
	})

	t.Run("malformed slot", func(t *testing.T) {
		repo, mock := newSQLMockRepo(t)
		mock.ExpectQuery(`FROM "availability_templates"`).
			WillReturnRows(sqlmock.NewRows([]string{"slots", "occupied"}).AddRow("08:00,noon", ""))

		_, err := repo.Template(context.Background(), providerX, mustDate(t, "2030-03-04"))

		assert.Error(t, err)
		assert.NotErrorIs(t, err, availability.ErrNoTemplate)
	})
}
