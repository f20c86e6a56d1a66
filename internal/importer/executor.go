package importer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/form-imports/internal/db"
	"github.com/yourorg/form-imports/internal/metrics"
	"github.com/yourorg/form-imports/internal/reports"
	"github.com/yourorg/form-imports/internal/tabular"
	"github.com/yourorg/form-imports/internal/transform"
	"github.com/yourorg/form-imports/internal/types"
)

// BatchSize is how many rows are processed between job checkpoints.
// Batching exists for progress reporting and cancellation, not parallelism:
// rows are persisted strictly in order.
const BatchSize = 100

// ErrMappingInvalid wraps structural mapping failures; no job is created.
var ErrMappingInvalid = errors.New("column mapping is invalid")

// Form is the target schema as seen by the pipeline.
type Form struct {
	ID       string
	TenantID string
	Name     string
	Version  int
	Fields   []types.FieldDefinition
}

// FormSource resolves a form's current schema.
type FormSource interface {
	GetForm(ctx context.Context, formID string) (Form, error)
}

// NewRecord is one row's worth of persisted data: the store creates the
// parent record first, then its field values, as a single ordered unit.
type NewRecord struct {
	TenantID  string
	FormID    string
	JobID     string
	CreatedBy string
	RowNumber int
	Values    map[string]any // field ID -> canonical value
}

// RecordStore persists typed records.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec NewRecord) (string, error)
}

// FileSource downloads raw spreadsheet bytes by opaque handle.
type FileSource interface {
	Download(ctx context.Context, handle string) ([]byte, error)
}

// ArtifactSink persists generated error reports and returns a handle for
// later download. Optional; when absent, reports are only returned inline.
type ArtifactSink interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// Executor drives parse -> map-check -> transform -> validate -> persist for
// committed imports. It is the sole writer of job progress.
type Executor struct {
	Files     FileSource
	Forms     FormSource
	Records   RecordStore
	Jobs      db.JobRepository
	Reports   *reports.Store
	Artifacts ArtifactSink
	Log       *zap.Logger

	// BatchSize overrides the checkpoint interval when > 0 (tests).
	BatchSize int
	// Now overrides the clock (tests).
	Now func() time.Time
}

// CommitOptions tunes a committed import. Rows whose every cell is blank are
// always dropped at parse time; SkipEmptyRows is accepted for API symmetry.
type CommitOptions struct {
	SkipEmptyRows bool `json:"skipEmptyRows"`
}

// CommitResult is the synchronous summary of a committed import. Errors is
// capped at ErrorPreviewCap; the full accounting lives in the error report.
type CommitResult struct {
	JobID       string           `json:"jobId"`
	Imported    int              `json:"imported"`
	Failed      int              `json:"failed"`
	Errors      []types.RowError `json:"errors,omitempty"`
	ErrorReport *reports.Report  `json:"errorReport,omitempty"`
}

func (e *Executor) batchSize() int {
	if e.BatchSize > 0 {
		return e.BatchSize
	}
	return BatchSize
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Commit runs a committed import end to end. The file is re-downloaded and
// re-validated rather than trusting an earlier validate call: the handle may
// point at a re-uploaded object and the schema may have drifted, and the
// pipeline is deterministic so the re-run is safe.
func (e *Executor) Commit(ctx context.Context, tenantID, formID, fileHandle, createdBy string,
	mapping types.ColumnMapping, opts CommitOptions) (CommitResult, error) {

	form, err := e.Forms.GetForm(ctx, formID)
	if err != nil {
		return CommitResult{}, fmt.Errorf("load form %s: %w", formID, err)
	}
	data, err := e.Files.Download(ctx, fileHandle)
	if err != nil {
		return CommitResult{}, fmt.Errorf("download %s: %w", fileHandle, err)
	}
	table, err := tabular.Parse(data, fileHandle)
	if err != nil {
		return CommitResult{}, err
	}
	if check := ValidateMapping(mapping, form.Fields); !check.IsValid {
		return CommitResult{}, fmt.Errorf("%w: %s", ErrMappingInvalid, strings.Join(check.Errors, "; "))
	}

	job, err := e.Jobs.Create(ctx, db.ImportJob{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		FormID:     formID,
		CreatedBy:  createdBy,
		FileHandle: fileHandle,
		Status:     db.JobImporting,
		TotalRows:  table.RowCount,
	})
	if err != nil {
		return CommitResult{}, fmt.Errorf("create job: %w", err)
	}
	metrics.JobsStarted.Inc()
	e.Log.Info("import started",
		zap.String("job", job.ID), zap.String("form", formID), zap.Int("rows", table.RowCount))

	fieldsByID := make(map[string]types.FieldDefinition, len(form.Fields))
	for _, f := range form.Fields {
		fieldsByID[f.ID] = f
	}

	res := CommitResult{JobID: job.ID}
	cancelled := false
	processed, errSeq := 0, 0

	size := e.batchSize()
	for start := 0; start < len(table.Rows); start += size {
		end := start + size
		if end > len(table.Rows) {
			end = len(table.Rows)
		}
		for i, row := range table.Rows[start:end] {
			rowNum := start + i + 1
			outcome := ProcessRow(fieldsByID, mapping, row, rowNum)
			if len(outcome.Errors) == 0 {
				_, perr := e.Records.CreateRecord(ctx, NewRecord{
					TenantID:  tenantID,
					FormID:    formID,
					JobID:     job.ID,
					CreatedBy: createdBy,
					RowNumber: rowNum,
					Values:    outcome.Values,
				})
				if perr != nil {
					// A rejected write is bookkept exactly like a bad cell.
					outcome.Errors = append(outcome.Errors, types.RowError{
						Row:        rowNum,
						FieldLabel: "Record",
						Message:    "record could not be saved: " + perr.Error(),
					})
				}
			}
			if len(outcome.Errors) == 0 {
				res.Imported++
				metrics.RowsImported.Inc()
			} else {
				res.Failed++
				metrics.RowsFailed.Inc()
				for _, re := range outcome.Errors {
					if rerr := e.Reports.Append(job.ID, errSeq, re); rerr != nil {
						e.Log.Warn("stage row error", zap.String("job", job.ID), zap.Error(rerr))
					}
					errSeq++
					if len(res.Errors) < ErrorPreviewCap {
						res.Errors = append(res.Errors, re)
					}
				}
			}
			processed++
		}

		if err := e.Jobs.UpdateProgress(ctx, job.ID, processed, res.Imported, res.Failed); err != nil {
			e.Log.Warn("checkpoint", zap.String("job", job.ID), zap.Error(err))
		}
		// Cancellation is polled at batch boundaries only; completed rows in
		// prior batches stay committed.
		if cur, err := e.Jobs.Get(ctx, job.ID); err == nil && cur.Status == db.JobCancelled {
			cancelled = true
			break
		}
	}

	if cancelled {
		metrics.JobsCancelled.Inc()
		e.Log.Info("import cancelled",
			zap.String("job", job.ID), zap.Int("processed", processed))
		return res, nil
	}

	var reportURI *string
	if res.Failed > 0 {
		staged, err := e.Reports.Collect(job.ID)
		if err != nil {
			e.Log.Warn("collect errors", zap.String("job", job.ID), zap.Error(err))
			staged = res.Errors
		}
		rep := reports.Build(form.Name, staged, e.now())
		res.ErrorReport = &rep
		reportURI = &rep.FileName
		if e.Artifacts != nil {
			if uri, err := e.Artifacts.Upload(ctx, job.ID+"/"+rep.FileName, rep.Raw); err != nil {
				e.Log.Warn("upload report", zap.String("job", job.ID), zap.Error(err))
			} else {
				reportURI = &uri
			}
		}
	}
	if err := e.Jobs.Finish(ctx, job.ID, db.JobCompleted, reportURI); err != nil {
		e.Log.Warn("finish job", zap.String("job", job.ID), zap.Error(err))
	}
	metrics.JobsCompleted.Inc()
	e.Log.Info("import completed",
		zap.String("job", job.ID), zap.Int("imported", res.Imported), zap.Int("failed", res.Failed))
	return res, nil
}

// RowOutcome is the pure result of processing one row: either a full set of
// canonical values or the errors that disqualify the row.
type RowOutcome struct {
	Values map[string]any
	Errors []types.RowError
}

// ProcessRow validates and transforms one row against the mapping. Pure: no
// I/O, no shared state; the batch driver folds outcomes into job updates.
func ProcessRow(fieldsByID map[string]types.FieldDefinition, m types.ColumnMapping,
	row map[string]string, rowNum int) RowOutcome {

	out := RowOutcome{Values: make(map[string]any)}
	cols := make([]string, 0, len(m))
	for c := range m {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	for _, col := range cols {
		id := m[col]
		if id == types.SkipColumn || id == "" {
			continue
		}
		field, known := fieldsByID[id]
		if !known || !field.Type.Importable() {
			continue
		}
		raw := row[col]
		if e := CheckCell(field, raw, rowNum); e != nil {
			out.Errors = append(out.Errors, *e)
			continue
		}
		tr := transform.Transform(field, raw)
		if !tr.OK {
			e := cellError(field, rowNum, strings.TrimSpace(raw), tr.Err, "")
			out.Errors = append(out.Errors, *e)
			continue
		}
		if tr.Value != nil {
			out.Values[field.ID] = tr.Value
		}
	}
	return out
}
