package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/donormatch/internal/model"
)

func setupMockApplicationDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresApplicationRepo) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresApplicationRepo(db)
}

func newApplication() *model.Application {
	now := time.Now()
	return &model.Application{
		ID:        uuid.New().String(),
		RequestID: uuid.New().String(),
		DonorID:   uuid.New().String(),
		Status:    model.ApplicationStatusApplied,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPostgresApplicationRepo_ImplementsInterface(t *testing.T) {
	var _ ApplicationRepository = (*PostgresApplicationRepo)(nil)
}

func TestPostgresApplicationRepo_Create_Success(t *testing.T) {
	db, mock, repo := setupMockApplicationDB(t)
	defer db.Close()

	app := newApplication()
	mock.ExpectExec(`INSERT INTO applications`).
		WithArgs(app.ID, app.RequestID, app.DonorID, app.Status, app.CreatedAt, app.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), app))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApplicationRepo_Create_DuplicateActive(t *testing.T) {
	db, mock, repo := setupMockApplicationDB(t)
	defer db.Close()

	app := newApplication()
	mock.ExpectExec(`INSERT INTO applications`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "applications_one_active"})

	err := repo.Create(context.Background(), app)

	assert.ErrorIs(t, err, ErrDuplicateActiveApplication)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApplicationRepo_Create_OtherUniqueViolationIsWrapped(t *testing.T) {
	db, mock, repo := setupMockApplicationDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO applications`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "applications_pkey"})

	err := repo.Create(context.Background(), newApplication())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateActiveApplication)
}

func TestPostgresApplicationRepo_Withdraw(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"applied row is withdrawn", 1, true},
		{"already withdrawn", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, repo := setupMockApplicationDB(t)
			defer db.Close()

			at := time.Now()
			mock.ExpectExec(`UPDATE applications SET status = 'Withdrawn', updated_at = \$2\s+WHERE id = \$1 AND status = 'Applied'`).
				WithArgs("a-1", at).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := repo.Withdraw(context.Background(), "a-1", at)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresApplicationRepo_FindActive_NotFound(t *testing.T) {
	db, mock, repo := setupMockApplicationDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM applications a\s+WHERE a.request_id = \$1 AND a.donor_id = \$2 AND a.status = 'Applied'`).
		WithArgs("r-1", "d-1").
		WillReturnError(sql.ErrNoRows)

	app, err := repo.FindActive(context.Background(), "r-1", "d-1")

	require.NoError(t, err)
	assert.Nil(t, app)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApplicationRepo_ListByRequestWithDonor(t *testing.T) {
	db, mock, repo := setupMockApplicationDB(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "request_id", "donor_id", "status", "created_at", "updated_at",
		"user_id", "email", "name", "phone", "blood_type", "city", "country", "last_donation_date", "photo_url",
		"r_blood_type", "r_urgency", "r_city",
	}).AddRow(
		"a-1", "r-1", "d-1", "Applied", now, now,
		"d-1", "donor@example.com", "Donor One", "0100", "O+", "Cairo", "Egypt", nil, "",
		"O+", "Critical", "Cairo",
	)
	mock.ExpectQuery(`WHERE a.request_id = \$1 ORDER BY a.created_at DESC`).
		WithArgs("r-1").
		WillReturnRows(rows)

	got, err := repo.ListByRequestWithDonor(context.Background(), "r-1")

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "donor@example.com", got[0].Donor.Email)
	assert.Equal(t, "0100", got[0].Donor.Phone)
	assert.Nil(t, got[0].Donor.LastDonationDate)
	assert.Equal(t, model.UrgencyCritical, got[0].RequestUrgency)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApplicationRepo_MalformedIDIsNotFound(t *testing.T) {
	db, mock, repo := setupMockApplicationDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM applications a WHERE a.id = \$1`).
		WithArgs("app-%").
		WillReturnError(badUUIDError("app-%"))
	mock.ExpectExec(`UPDATE applications SET status = 'Withdrawn'`).
		WithArgs("app-%", sqlmock.AnyArg()).
		WillReturnError(badUUIDError("app-%"))

	app, err := repo.FindByID(context.Background(), "app-%")
	require.NoError(t, err)
	assert.Nil(t, app)

	ok, err := repo.Withdraw(context.Background(), "app-%", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
