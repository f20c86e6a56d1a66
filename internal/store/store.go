// Package store is the gorm-backed document store behind the import
// pipeline's FormSource and RecordStore collaborators.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yourorg/form-imports/internal/db"
	"github.com/yourorg/form-imports/internal/importer"
	"github.com/yourorg/form-imports/internal/models"
	"github.com/yourorg/form-imports/internal/types"
)

// ErrNotFound indicates the requested document does not exist. It is the
// shared db sentinel so callers can match it regardless of which layer
// produced it.
var ErrNotFound = db.ErrNotFound

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{db: db} }

// Migrate creates or updates the document tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.Form{}, &models.FormField{}, &models.Record{}, &models.RecordValue{})
}

// GetForm loads a form's schema in field position order.
func (s *Store) GetForm(ctx context.Context, formID string) (importer.Form, error) {
	var form models.Form
	err := s.db.WithContext(ctx).Preload("Fields").First(&form, "id = ?", formID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return importer.Form{}, ErrNotFound
	}
	if err != nil {
		return importer.Form{}, fmt.Errorf("load form: %w", err)
	}

	sort.Slice(form.Fields, func(i, j int) bool { return form.Fields[i].Position < form.Fields[j].Position })
	out := importer.Form{
		ID:       form.ID,
		TenantID: form.TenantID,
		Name:     form.Name,
		Version:  form.Version,
		Fields:   make([]types.FieldDefinition, 0, len(form.Fields)),
	}
	for _, f := range form.Fields {
		out.Fields = append(out.Fields, types.FieldDefinition{
			ID:        f.ID,
			Label:     f.Label,
			Type:      types.FieldType(f.Type),
			Required:  f.Required,
			Options:   f.Options,
			Min:       f.Min,
			Max:       f.Max,
			MinLength: f.MinLength,
			MaxLength: f.MaxLength,
			MaxRating: f.MaxRating,
		})
	}
	return out, nil
}

// CreateRecord persists one imported row: the parent record first, then its
// field values, in a single transaction so the pair is atomic from the
// pipeline's point of view.
func (s *Store) CreateRecord(ctx context.Context, rec importer.NewRecord) (string, error) {
	id := uuid.NewString()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parent := models.Record{
			ID:        id,
			TenantID:  rec.TenantID,
			FormID:    rec.FormID,
			CreatedBy: rec.CreatedBy,
			RowNumber: rec.RowNumber,
		}
		if rec.JobID != "" {
			parent.ImportJobID = &rec.JobID
		}
		if err := tx.Create(&parent).Error; err != nil {
			return err
		}

		fieldIDs := make([]string, 0, len(rec.Values))
		for fid := range rec.Values {
			fieldIDs = append(fieldIDs, fid)
		}
		sort.Strings(fieldIDs)
		for _, fid := range fieldIDs {
			encoded, err := json.Marshal(rec.Values[fid])
			if err != nil {
				return fmt.Errorf("encode value for field %s: %w", fid, err)
			}
			child := models.RecordValue{RecordID: id, FieldID: fid, Value: string(encoded)}
			if err := tx.Create(&child).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}
	return id, nil
}
