package db

import (
	"context"
	"errors"
	"time"
)

// Import job statuses. pending/parsing/validating/importing may still be
// cancelled; completed, failed, and cancelled are terminal.
const (
	JobPending    = "pending"
	JobParsing    = "parsing"
	JobValidating = "validating"
	JobImporting  = "importing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobCancelled  = "cancelled"
)

// ImportJob is the durable record tracking one committed import.
type ImportJob struct {
	ID            string
	TenantID      string
	FormID        string
	CreatedBy     string
	FileHandle    string
	Status        string
	TotalRows     int
	ProcessedRows int
	SuccessCount  int
	ErrorCount    int
	ReportURI     *string
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// Terminal reports whether the job can no longer change state.
func (j ImportJob) Terminal() bool {
	switch j.Status {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// JobRepository persists import jobs. The executor is the single writer of
// progress fields; Cancel is the one exception and only flips the status.
type JobRepository interface {
	Create(ctx context.Context, j ImportJob) (ImportJob, error)
	Get(ctx context.Context, id string) (ImportJob, error)
	// UpdateProgress stores cumulative counters at a batch checkpoint.
	UpdateProgress(ctx context.Context, id string, processed, success, errCount int) error
	// Finish moves the job to a terminal status, recording completion time
	// and, when a report was generated, its storage URI.
	Finish(ctx context.Context, id, status string, reportURI *string) error
	// Cancel marks a non-terminal job cancelled; returns ErrConflict if the
	// job already reached a terminal status.
	Cancel(ctx context.Context, id string) (ImportJob, error)
}

func NewJobRepo(p *Pool) JobRepository { return &jobRepo{p: p} }

type jobRepo struct{ p *Pool }

const jobColumns = `id, tenant_id, form_id, created_by, file_handle, status,
       total_rows, processed_rows, success_count, error_count, report_uri,
       started_at, completed_at`

func (r *jobRepo) Create(ctx context.Context, j ImportJob) (ImportJob, error) {
	const q = `insert into import_job
       (id, tenant_id, form_id, created_by, file_handle, status, total_rows)
       values ($1, $2, $3, $4, $5, $6, $7)
       returning ` + jobColumns
	row := r.p.QueryRow(ctx, q, j.ID, j.TenantID, j.FormID, j.CreatedBy, j.FileHandle, j.Status, j.TotalRows)
	out, err := scanJob(row)
	if err != nil {
		return ImportJob{}, mapPgErr(err)
	}
	return out, nil
}

func (r *jobRepo) Get(ctx context.Context, id string) (ImportJob, error) {
	const q = `select ` + jobColumns + ` from import_job where id=$1`
	out, err := scanJob(r.p.QueryRow(ctx, q, id))
	if err != nil {
		return ImportJob{}, mapRowErr(err)
	}
	return out, nil
}

func (r *jobRepo) UpdateProgress(ctx context.Context, id string, processed, success, errCount int) error {
	const q = `update import_job
       set processed_rows=$1, success_count=$2, error_count=$3
       where id=$4`
	_, err := r.p.Exec(ctx, q, processed, success, errCount, id)
	return err
}

func (r *jobRepo) Finish(ctx context.Context, id, status string, reportURI *string) error {
	const q = `update import_job
       set status=$1, report_uri=$2, completed_at=now()
       where id=$3 and status not in ('completed','failed','cancelled')`
	_, err := r.p.Exec(ctx, q, status, reportURI, id)
	return err
}

func (r *jobRepo) Cancel(ctx context.Context, id string) (ImportJob, error) {
	const q = `update import_job
       set status='cancelled', completed_at=now()
       where id=$1 and status not in ('completed','failed','cancelled')
       returning ` + jobColumns
	out, err := scanJob(r.p.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(mapRowErr(err), ErrNotFound) {
			// Either the job does not exist or it is already terminal.
			if j, gerr := r.Get(ctx, id); gerr == nil {
				if j.Terminal() {
					return j, ErrConflict
				}
			}
			return ImportJob{}, ErrNotFound
		}
		return ImportJob{}, mapPgErr(err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (ImportJob, error) {
	var j ImportJob
	err := row.Scan(&j.ID, &j.TenantID, &j.FormID, &j.CreatedBy, &j.FileHandle, &j.Status,
		&j.TotalRows, &j.ProcessedRows, &j.SuccessCount, &j.ErrorCount, &j.ReportURI,
		&j.StartedAt, &j.CompletedAt)
	return j, err
}

// EnsureSchema creates the import_job table when it does not exist yet.
func EnsureSchema(ctx context.Context, p *Pool) error {
	const q = `create table if not exists import_job (
       id text primary key,
       tenant_id text not null,
       form_id text not null,
       created_by text not null,
       file_handle text not null,
       status text not null,
       total_rows int not null default 0,
       processed_rows int not null default 0,
       success_count int not null default 0,
       error_count int not null default 0,
       report_uri text,
       started_at timestamptz not null default now(),
       completed_at timestamptz
    )`
	_, err := p.Exec(ctx, q)
	return err
}
