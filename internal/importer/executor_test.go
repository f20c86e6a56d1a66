package importer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/form-imports/internal/db"
	"github.com/yourorg/form-imports/internal/reports"
	"github.com/yourorg/form-imports/internal/tabular"
	"github.com/yourorg/form-imports/internal/types"
)

type memFiles map[string][]byte

func (m memFiles) Download(_ context.Context, handle string) ([]byte, error) {
	b, ok := m[handle]
	if !ok {
		return nil, errors.New("no such file")
	}
	return b, nil
}

type memForms map[string]Form

func (m memForms) GetForm(_ context.Context, id string) (Form, error) {
	f, ok := m[id]
	if !ok {
		return Form{}, db.ErrNotFound
	}
	return f, nil
}

type memRecords struct {
	mu      sync.Mutex
	created []NewRecord
	failOn  map[int]error // row number -> persistence error
	onSave  func(n int)   // called after each successful create
}

func (m *memRecords) CreateRecord(_ context.Context, rec NewRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn[rec.RowNumber]; err != nil {
		return "", err
	}
	m.created = append(m.created, rec)
	if m.onSave != nil {
		m.onSave(len(m.created))
	}
	return rec.FormID + "-rec", nil
}

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]db.ImportJob
}

func newMemJobs() *memJobs { return &memJobs{jobs: make(map[string]db.ImportJob)} }

func (m *memJobs) Create(_ context.Context, j db.ImportJob) (db.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j.StartedAt = time.Now()
	m.jobs[j.ID] = j
	return j, nil
}

func (m *memJobs) Get(_ context.Context, id string) (db.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return db.ImportJob{}, db.ErrNotFound
	}
	return j, nil
}

func (m *memJobs) UpdateProgress(_ context.Context, id string, processed, success, errCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.ProcessedRows, j.SuccessCount, j.ErrorCount = processed, success, errCount
	m.jobs[id] = j
	return nil
}

func (m *memJobs) Finish(_ context.Context, id, status string, reportURI *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	if !j.Terminal() {
		now := time.Now()
		j.Status, j.ReportURI, j.CompletedAt = status, reportURI, &now
		m.jobs[id] = j
	}
	return nil
}

func (m *memJobs) Cancel(_ context.Context, id string) (db.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return db.ImportJob{}, db.ErrNotFound
	}
	if j.Terminal() {
		return j, db.ErrConflict
	}
	j.Status = db.JobCancelled
	m.jobs[id] = j
	return j, nil
}

func (m *memJobs) only() db.ImportJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		return j
	}
	return db.ImportJob{}
}

func contactForm() Form {
	return Form{
		ID:       "form-1",
		TenantID: "t-1",
		Name:     "Contacts",
		Fields: []types.FieldDefinition{
			{ID: "name", Label: "Name", Type: types.FieldText, Required: true},
			{ID: "email", Label: "Email", Type: types.FieldEmail, Required: true},
			{ID: "age", Label: "Age", Type: types.FieldNumber},
		},
	}
}

func newTestExecutor(t *testing.T, files memFiles, recs *memRecords, jobs *memJobs) *Executor {
	t.Helper()
	rs, err := reports.Open("", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })
	return &Executor{
		Files:   files,
		Forms:   memForms{"form-1": contactForm()},
		Records: recs,
		Jobs:    jobs,
		Reports: rs,
		Log:     zap.NewNop(),
	}
}

var contactMapping = types.ColumnMapping{"Name": "name", "Email": "email", "Age": "age"}

func TestCommitAllRowsSucceed(t *testing.T) {
	files := memFiles{"contacts.csv": []byte("Name,Email,Age\nAlice,a@example.com,30\nBob,b@example.com,25\n")}
	recs := &memRecords{}
	jobs := newMemJobs()
	e := newTestExecutor(t, files, recs, jobs)

	res, err := e.Commit(context.Background(), "t-1", "form-1", "contacts.csv", "u-1", contactMapping, CommitOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 0, res.Failed)
	assert.Empty(t, res.Errors)
	assert.Nil(t, res.ErrorReport)
	require.Len(t, recs.created, 2)
	assert.Equal(t, "t-1", recs.created[0].TenantID)
	assert.Equal(t, "Alice", recs.created[0].Values["name"])
	assert.Equal(t, 30.0, recs.created[0].Values["age"])

	j := jobs.only()
	assert.Equal(t, db.JobCompleted, j.Status)
	assert.Equal(t, 2, j.ProcessedRows)
	assert.Equal(t, 2, j.SuccessCount)
	assert.NotNil(t, j.CompletedAt)
}

func TestCommitRowFailureDoesNotAbort(t *testing.T) {
	// Row 2 is missing the required email; rows 1 and 3 import.
	files := memFiles{"f.csv": []byte("Name,Email\nAlice,a@example.com\nBob,\nCara,c@example.com\n")}
	recs := &memRecords{}
	jobs := newMemJobs()
	e := newTestExecutor(t, files, recs, jobs)

	res, err := e.Commit(context.Background(), "t-1", "form-1", "f.csv",
		"u-1", types.ColumnMapping{"Name": "name", "Email": "email"}, CommitOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Row)
	assert.Equal(t, "Email", res.Errors[0].FieldLabel)

	require.NotNil(t, res.ErrorReport)
	assert.Equal(t, 1, res.ErrorReport.RowCount)
	assert.Contains(t, res.ErrorReport.FileName, "contacts-import-errors-")

	j := jobs.only()
	assert.Equal(t, db.JobCompleted, j.Status, "completed means finished, not fully successful")
	assert.Equal(t, 1, j.ErrorCount)
}

func TestCommitPersistenceErrorCountsAsRowError(t *testing.T) {
	files := memFiles{"f.csv": []byte("Name,Email\nAlice,a@example.com\nBob,b@example.com\n")}
	recs := &memRecords{failOn: map[int]error{2: errors.New("store rejected")}}
	jobs := newMemJobs()
	e := newTestExecutor(t, files, recs, jobs)

	res, err := e.Commit(context.Background(), "t-1", "form-1", "f.csv",
		"u-1", types.ColumnMapping{"Name": "name", "Email": "email"}, CommitOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "store rejected")
	assert.Equal(t, "Record", res.Errors[0].FieldLabel,
		"store rejections must be attributable in the error report")
}

func TestCommitInvalidMappingCreatesNoJob(t *testing.T) {
	files := memFiles{"f.csv": []byte("Name\nAlice\n")}
	jobs := newMemJobs()
	e := newTestExecutor(t, files, &memRecords{}, jobs)

	_, err := e.Commit(context.Background(), "t-1", "form-1", "f.csv",
		"u-1", types.ColumnMapping{"Name": "name"}, CommitOptions{})
	require.ErrorIs(t, err, ErrMappingInvalid)
	assert.Empty(t, jobs.jobs)
}

func TestCommitParseErrorCreatesNoJob(t *testing.T) {
	files := memFiles{"f.csv": []byte("Name,Name\nAlice,Smith\n")}
	jobs := newMemJobs()
	e := newTestExecutor(t, files, &memRecords{}, jobs)

	_, err := e.Commit(context.Background(), "t-1", "form-1", "f.csv",
		"u-1", contactMapping, CommitOptions{})
	var dup *tabular.DuplicateHeaderError
	require.ErrorAs(t, err, &dup)
	assert.Empty(t, jobs.jobs)
}

func TestCommitCancellationStopsAtBatchBoundary(t *testing.T) {
	rows := "Name,Email\n"
	for i := 0; i < 6; i++ {
		rows += "P,p@example.com\n"
	}
	files := memFiles{"f.csv": []byte(rows)}
	jobs := newMemJobs()
	recs := &memRecords{}
	e := newTestExecutor(t, files, recs, jobs)
	e.BatchSize = 2

	// Cancel the job while the second batch is being processed; the
	// executor notices at the next boundary.
	recs.onSave = func(n int) {
		if n == 3 {
			j := jobs.only()
			_, err := jobs.Cancel(context.Background(), j.ID)
			require.NoError(t, err)
		}
	}

	res, err := e.Commit(context.Background(), "t-1", "form-1", "f.csv",
		"u-1", types.ColumnMapping{"Name": "name", "Email": "email"}, CommitOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Imported, "second batch finishes, third never starts")
	j := jobs.only()
	assert.Equal(t, db.JobCancelled, j.Status)
	assert.Equal(t, 4, j.ProcessedRows, "checkpoint reflects the last completed batch")
	assert.Len(t, recs.created, 4, "already-persisted rows are not rolled back")
}

func TestProcessRowPure(t *testing.T) {
	fields := map[string]types.FieldDefinition{
		"name":  {ID: "name", Label: "Name", Type: types.FieldText, Required: true},
		"email": {ID: "email", Label: "Email", Type: types.FieldEmail, Required: true},
	}
	m := types.ColumnMapping{"Name": "name", "Email": "email"}

	good := ProcessRow(fields, m, map[string]string{"Name": "Alice", "Email": "a@example.com"}, 1)
	assert.Empty(t, good.Errors)
	assert.Equal(t, "Alice", good.Values["name"])

	bad := ProcessRow(fields, m, map[string]string{"Name": "Bob", "Email": "nope"}, 2)
	require.Len(t, bad.Errors, 1)
	assert.Equal(t, 2, bad.Errors[0].Row)
	assert.Equal(t, "email", bad.Errors[0].FieldID)
}
