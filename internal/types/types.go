package types

// FieldType enumerates the form field types known to the import pipeline.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldTextarea    FieldType = "textarea"
	FieldNumber      FieldType = "number"
	FieldCurrency    FieldType = "currency"
	FieldEmail       FieldType = "email"
	FieldPhone       FieldType = "phone"
	FieldURL         FieldType = "url"
	FieldDate        FieldType = "date"
	FieldTime        FieldType = "time"
	FieldDatetime    FieldType = "datetime"
	FieldCheckbox    FieldType = "checkbox"
	FieldRadio       FieldType = "radio"
	FieldDropdown    FieldType = "dropdown"
	FieldMultiSelect FieldType = "multi_select"
	FieldRating      FieldType = "rating"
	FieldScale       FieldType = "scale"
	FieldFile        FieldType = "file"
	FieldSignature   FieldType = "signature"
	FieldAttachment  FieldType = "attachment"
)

// Importable reports whether values can be loaded into a field of this type
// from a spreadsheet. File-like fields carry uploaded binaries, not cell text.
func (t FieldType) Importable() bool {
	switch t {
	case FieldFile, FieldSignature, FieldAttachment:
		return false
	}
	return true
}

// FieldDefinition is one typed column of a target form's schema, as returned
// by the form source. Constraint pointers are nil when the rule is absent.
type FieldDefinition struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Type      FieldType `json:"type"`
	Required  bool      `json:"required"`
	Options   []string  `json:"options,omitempty"`
	Min       *float64  `json:"min,omitempty"`
	Max       *float64  `json:"max,omitempty"`
	MinLength *int      `json:"minLength,omitempty"`
	MaxLength *int      `json:"maxLength,omitempty"`
	MaxRating int       `json:"maxRating,omitempty"`
}

// SkipColumn is the mapping target meaning "ignore this source column".
const SkipColumn = "__skip__"

// ColumnMapping assigns source column names to target field IDs (or SkipColumn).
type ColumnMapping map[string]string

// RowError is a single cell-level validation or transform failure,
// tied to a 1-based data row number.
type RowError struct {
	Row        int    `json:"row"`
	FieldLabel string `json:"field"`
	FieldID    string `json:"fieldId"`
	FieldType  string `json:"fieldType,omitempty"`
	Value      string `json:"value"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}
