// Package mapping matches spreadsheet columns to form fields with tiered
// fuzzy matching. The matcher is greedy and column-first: it never attempts a
// globally optimal assignment, so two columns can claim the same field; the
// structural validation pass is responsible for rejecting that.
package mapping

import (
	"strings"

	"github.com/yourorg/form-imports/internal/tabular"
	"github.com/yourorg/form-imports/internal/types"
)

// Tier buckets how certain an automatic match is.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Suggestion annotates one automatic match for UI disclosure. It does not
// gate whether the mapping is used.
type Suggestion struct {
	SourceColumn string `json:"sourceColumn"`
	FieldID      string `json:"fieldId"`
	FieldLabel   string `json:"fieldLabel"`
	Tier         Tier   `json:"confidence"`
}

// Result is the outcome of one auto-mapping run over a fixed input; rerunning
// with the same input yields the same result.
type Result struct {
	Mapping         types.ColumnMapping `json:"mapping"`
	Suggestions     []Suggestion        `json:"suggestions,omitempty"`
	UnmappedColumns []string            `json:"unmappedColumns,omitempty"`
	UnmappedFields  []string            `json:"unmappedFields,omitempty"`
}

// AutoMap matches source columns against the form's fields. File-like field
// types are never mapping targets. UnmappedFields lists required importable
// fields no column matched.
func AutoMap(columns []string, fields []types.FieldDefinition) Result {
	type candidate struct {
		field types.FieldDefinition
		norm  string
	}
	candidates := make([]candidate, 0, len(fields))
	for _, f := range fields {
		if !f.Type.Importable() {
			continue
		}
		candidates = append(candidates, candidate{field: f, norm: tabular.NormalizeName(f.Label)})
	}

	res := Result{Mapping: make(types.ColumnMapping, len(columns))}
	for _, col := range columns {
		norm := tabular.NormalizeName(col)

		matched := false
		for _, tier := range []Tier{TierHigh, TierMedium, TierLow} {
			for _, c := range candidates {
				if !matches(tier, norm, c.norm) {
					continue
				}
				res.Mapping[col] = c.field.ID
				res.Suggestions = append(res.Suggestions, Suggestion{
					SourceColumn: col,
					FieldID:      c.field.ID,
					FieldLabel:   c.field.Label,
					Tier:         tier,
				})
				matched = true
				break
			}
			if matched {
				break
			}
		}
		if !matched {
			res.UnmappedColumns = append(res.UnmappedColumns, col)
		}
	}

	mappedIDs := make(map[string]bool, len(res.Mapping))
	for _, id := range res.Mapping {
		mappedIDs[id] = true
	}
	for _, c := range candidates {
		if c.field.Required && !mappedIDs[c.field.ID] {
			res.UnmappedFields = append(res.UnmappedFields, c.field.ID)
		}
	}
	return res
}

func matches(tier Tier, col, field string) bool {
	if col == "" || field == "" {
		return false
	}
	switch tier {
	case TierHigh:
		return col == field
	case TierMedium:
		return strings.Contains(col, field) || strings.Contains(field, col)
	case TierLow:
		return sharesWord(col, field)
	}
	return false
}

func sharesWord(a, b string) bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(a) {
		words[w] = true
	}
	for _, w := range strings.Fields(b) {
		if words[w] {
			return true
		}
	}
	return false
}
