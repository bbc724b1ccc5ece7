package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/tbakker/linkcrm/internal/crm"
)

func TestCreateJob_InsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	job := crm.Job{
		ID:         "job-1",
		Kind:       crm.KindCompany,
		URLs:       []string{"https://linkedin.com/company/acme"},
		SnapshotID: "snap-1",
		Status:     crm.JobStatusPending,
		CreatedAt:  now,
	}

	mock.ExpectExec("INSERT INTO scrape_jobs").
		WithArgs(
			"job-1",
			"company",
			[]byte(`["https://linkedin.com/company/acme"]`),
			"snap-1",
			"pending",
			now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJob_NotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM scrape_jobs").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, crm.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJob_ScansTerminalRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	created := time.Unix(1700000000, 0).UTC()
	completed := created.Add(time.Minute)
	errText := ""

	mock.ExpectQuery("SELECT (.+) FROM scrape_jobs").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "kind", "urls", "snapshot_id", "status", "result", "error_text", "created_at", "completed_at",
		}).AddRow(
			"job-1", "company", []byte(`["https://linkedin.com/company/acme"]`), "snap-1",
			"completed", []byte(`[{"name":"Acme"}]`), &errText, created, &completed,
		))

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, crm.JobStatusCompleted, job.Status)
	require.Equal(t, crm.KindCompany, job.Kind)
	require.Len(t, job.Result, 1)
	require.Equal(t, "Acme", job.Result[0].NameOf())
	require.NotNil(t, job.CompletedAt)
	require.Equal(t, completed, *job.CompletedAt)
}

func TestCompleteJob_UpdatesRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	done := time.Unix(1700000100, 0).UTC()
	mock.ExpectExec("UPDATE scrape_jobs").
		WithArgs("job-1", "completed", []byte(`[{"name":"Acme"}]`), done).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.CompleteJob(context.Background(), "job-1", []crm.Record{{"name": "Acme"}}, done)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailJob_UnknownJob(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	done := time.Unix(1700000100, 0).UTC()
	mock.ExpectExec("UPDATE scrape_jobs").
		WithArgs("missing", "failed", "vendor exploded", done).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.FailJob(context.Background(), "missing", "vendor exploded", done)
	require.ErrorIs(t, err, crm.ErrJobNotFound)
}

func TestListJobs_FiltersByStatus(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	created := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT (.+) FROM scrape_jobs").
		WithArgs("pending", 50).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "kind", "urls", "snapshot_id", "status", "result", "error_text", "created_at", "completed_at",
		}).AddRow(
			"job-2", "profile", []byte(`["https://linkedin.com/in/jane"]`), "snap-2",
			"pending", []byte(nil), (*string)(nil), created, (*time.Time)(nil),
		))

	jobs, err := store.ListJobs(context.Background(), crm.JobStatusPending, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "job-2", jobs[0].ID)
	require.Empty(t, jobs[0].Result)
	require.Nil(t, jobs[0].CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
