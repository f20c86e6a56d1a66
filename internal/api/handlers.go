// Package api exposes the import pipeline over HTTP. Handlers stay thin:
// parse the request, call into the pipeline packages, shape the response.
package api

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/form-imports/internal/cache"
	"github.com/yourorg/form-imports/internal/db"
	"github.com/yourorg/form-imports/internal/detect"
	"github.com/yourorg/form-imports/internal/importer"
	"github.com/yourorg/form-imports/internal/mapping"
	"github.com/yourorg/form-imports/internal/metrics"
	"github.com/yourorg/form-imports/internal/reports"
	"github.com/yourorg/form-imports/internal/storage"
	"github.com/yourorg/form-imports/internal/tabular"
	"github.com/yourorg/form-imports/internal/types"
)

// Handler carries the pipeline dependencies shared by all routes.
type Handler struct {
	Objects    storage.ObjectStore
	UploadBase string // URI base new uploads are written under
	Forms      importer.FormSource
	Jobs       db.JobRepository
	Executor   *importer.Executor
	Reports    *reports.Store
	Schemas    *cache.Cache[importer.Form]
	SampleSize int
	Log        *zap.Logger
}

// Register wires all import routes under /api/v1.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	v1.POST("/files", h.Upload)
	v1.POST("/files/analyze", h.Analyze)
	v1.POST("/forms/:formId/imports/parse", h.ParseForMapping)
	v1.POST("/forms/:formId/imports/validate", h.Validate)
	v1.POST("/forms/:formId/imports", h.Commit)
	v1.GET("/imports/:jobId", h.GetJob)
	v1.POST("/imports/:jobId/cancel", h.CancelJob)
	v1.GET("/imports/:jobId/report", h.DownloadReport)
}

func tenantID(c *gin.Context) (string, bool) {
	t := strings.TrimSpace(c.GetHeader("X-Tenant-ID"))
	if t == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-Tenant-ID header"})
		return "", false
	}
	return t, true
}

// getForm resolves a form schema through the TTL cache.
func (h *Handler) getForm(c *gin.Context, formID string) (importer.Form, bool) {
	if form, ok := h.Schemas.Get(formID); ok {
		return form, true
	}
	form, err := h.Forms.GetForm(c.Request.Context(), formID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "form not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return importer.Form{}, false
	}
	h.Schemas.Set(formID, form)
	return form, true
}

// download fetches a stored file handle, translating failures to responses.
func (h *Handler) download(c *gin.Context, handle string) ([]byte, bool) {
	data, err := storage.Download(c.Request.Context(), h.Objects, handle)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found: " + handle})
		}
		return nil, false
	}
	return data, true
}

// parse decodes spreadsheet bytes, translating parse failures to responses.
func (h *Handler) parse(c *gin.Context, data []byte, filename string) (*tabular.Table, bool) {
	table, err := tabular.Parse(data, filename)
	if err != nil {
		var dup *tabular.DuplicateHeaderError
		switch {
		case errors.As(err, &dup):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":      "duplicate column headers",
				"duplicates": dup.Names,
			})
		case errors.Is(err, tabular.ErrNoData), errors.Is(err, tabular.ErrNoSheets):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "file parsing error: " + err.Error()})
		}
		return nil, false
	}
	metrics.FilesParsed.Inc()
	return table, true
}

// Upload accepts a multipart spreadsheet and stores it, returning the opaque
// handle the rest of the pipeline works from.
func (h *Handler) Upload(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file upload error: " + err.Error()})
		return
	}
	defer file.Close()

	if err := storage.CheckUpload(header.Filename, header.Size); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, storage.ErrTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	ext := strings.ToLower(path.Ext(header.Filename))
	handle := strings.TrimRight(h.UploadBase, "/") + "/" + tenant + "/" + uuid.NewString() + ext
	uri, err := h.Objects.Put(c.Request.Context(), handle, file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store file: " + err.Error()})
		return
	}
	h.Log.Info("file uploaded",
		zap.String("tenant", tenant), zap.String("name", header.Filename), zap.Int64("size", header.Size))
	c.JSON(http.StatusCreated, gin.H{
		"fileHandle": uri,
		"fileName":   header.Filename,
		"size":       header.Size,
	})
}

type analyzeRequest struct {
	FileHandle string `json:"fileHandle" binding:"required"`
	FileName   string `json:"fileName"`
}

// Analyze parses an uploaded file and infers a form schema from its columns,
// for the create-form-from-spreadsheet flow.
func (h *Handler) Analyze(c *gin.Context) {
	if _, ok := tenantID(c); !ok {
		return
	}
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, ok := h.download(c, req.FileHandle)
	if !ok {
		return
	}
	name := req.FileName
	if name == "" {
		name = req.FileHandle
	}
	table, ok := h.parse(c, data, name)
	if !ok {
		return
	}

	res := detect.Detector{SampleSize: h.SampleSize}.Detect(table)
	c.JSON(http.StatusOK, gin.H{
		"columns":           table.Columns,
		"fields":            res.Fields,
		"warnings":          res.Warnings,
		"sampleSize":        res.SampleSize,
		"suggestedFormName": detect.SuggestFormName(name, table.Columns),
		"rowCount":          table.RowCount,
		"preview":           table.Preview,
	})
}

type parseRequest struct {
	FileHandle string `json:"fileHandle" binding:"required"`
	FileName   string `json:"fileName"`
}

// ParseForMapping parses a file against an existing form and proposes a
// column mapping for the review screen.
func (h *Handler) ParseForMapping(c *gin.Context) {
	if _, ok := tenantID(c); !ok {
		return
	}
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	form, ok := h.getForm(c, c.Param("formId"))
	if !ok {
		return
	}
	data, ok := h.download(c, req.FileHandle)
	if !ok {
		return
	}
	name := req.FileName
	if name == "" {
		name = req.FileHandle
	}
	table, ok := h.parse(c, data, name)
	if !ok {
		return
	}

	am := mapping.AutoMap(table.Columns, form.Fields)
	c.JSON(http.StatusOK, gin.H{
		"columns":         table.Columns,
		"rowCount":        table.RowCount,
		"preview":         table.Preview,
		"mapping":         am.Mapping,
		"suggestions":     am.Suggestions,
		"unmappedColumns": am.UnmappedColumns,
		"unmappedFields":  am.UnmappedFields,
	})
}

type validateRequest struct {
	FileHandle string              `json:"fileHandle" binding:"required"`
	FileName   string              `json:"fileName"`
	Mapping    types.ColumnMapping `json:"mapping" binding:"required"`
}

// Validate runs the structural mapping check and, when it passes, the full
// per-row data pass. Nothing is persisted.
func (h *Handler) Validate(c *gin.Context) {
	if _, ok := tenantID(c); !ok {
		return
	}
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	form, ok := h.getForm(c, c.Param("formId"))
	if !ok {
		return
	}
	if check := importer.ValidateMapping(req.Mapping, form.Fields); !check.IsValid {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"mappingErrors": check.Errors})
		return
	}
	data, ok := h.download(c, req.FileHandle)
	if !ok {
		return
	}
	name := req.FileName
	if name == "" {
		name = req.FileHandle
	}
	table, ok := h.parse(c, data, name)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, importer.QuickValidation(table.Rows, form.Fields, req.Mapping))
}

type commitRequest struct {
	FileHandle string                 `json:"fileHandle" binding:"required"`
	Mapping    types.ColumnMapping    `json:"mapping" binding:"required"`
	CreatedBy  string                 `json:"createdBy" binding:"required"`
	Options    importer.CommitOptions `json:"options"`
}

// Commit runs a committed import synchronously and returns the summary.
func (h *Handler) Commit(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.Executor.Commit(c.Request.Context(), tenant, c.Param("formId"),
		req.FileHandle, req.CreatedBy, req.Mapping, req.Options)
	if err != nil {
		var dup *tabular.DuplicateHeaderError
		switch {
		case errors.Is(err, importer.ErrMappingInvalid):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.As(err, &dup), errors.Is(err, tabular.ErrNoData), errors.Is(err, tabular.ErrNoSheets):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, db.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "form not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	// The next parse/validate should see the schema the commit ran against.
	h.Schemas.Invalidate(c.Param("formId"))
	c.JSON(http.StatusOK, res)
}

func jobView(j db.ImportJob) gin.H {
	pct := 0.0
	if j.TotalRows > 0 {
		pct = float64(j.ProcessedRows) / float64(j.TotalRows) * 100
	}
	out := gin.H{
		"jobId":         j.ID,
		"formId":        j.FormID,
		"status":        j.Status,
		"totalRows":     j.TotalRows,
		"processedRows": j.ProcessedRows,
		"successCount":  j.SuccessCount,
		"errorCount":    j.ErrorCount,
		"percentage":    pct,
		"startedAt":     j.StartedAt,
	}
	if j.CompletedAt != nil {
		out["completedAt"] = j.CompletedAt
	}
	if j.ReportURI != nil {
		out["hasErrorReport"] = true
	}
	return out
}

// GetJob reports a job's progress.
func (h *Handler) GetJob(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}
	job, err := h.Jobs.Get(c.Request.Context(), c.Param("jobId"))
	if err != nil || job.TenantID != tenant {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, jobView(job))
}

// CancelJob requests cancellation of a running import. The executor honors it
// at the next batch boundary; rows already persisted stay persisted.
func (h *Handler) CancelJob(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}
	id := c.Param("jobId")
	if job, err := h.Jobs.Get(c.Request.Context(), id); err != nil || job.TenantID != tenant {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	job, err := h.Jobs.Cancel(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "job already " + job.Status})
		case errors.Is(err, db.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, jobView(job))
}

// DownloadReport serves a completed job's error report CSV.
func (h *Handler) DownloadReport(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}
	job, err := h.Jobs.Get(c.Request.Context(), c.Param("jobId"))
	if err != nil || job.TenantID != tenant {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if job.ReportURI == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no error report for this job"})
		return
	}

	name := path.Base(*job.ReportURI)
	if strings.Contains(*job.ReportURI, "://") {
		if data, err := storage.Download(c.Request.Context(), h.Objects, *job.ReportURI); err == nil {
			c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
			c.Data(http.StatusOK, "text/csv", data)
			return
		}
		h.Log.Warn("report artifact unavailable, rebuilding",
			zap.String("job", job.ID), zap.String("uri", *job.ReportURI))
	}

	// No artifact store (or it lost the object): rebuild from staged errors.
	staged, err := h.Reports.Collect(job.ID)
	if err != nil || len(staged) == 0 {
		c.JSON(http.StatusGone, gin.H{"error": "error report is no longer available"})
		return
	}
	formName := "import"
	if form, err := h.Forms.GetForm(c.Request.Context(), job.FormID); err == nil {
		formName = form.Name
	}
	rep := reports.Build(formName, staged, job.StartedAt)
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "text/csv", rep.Raw)
}
