// Package importer holds the import pipeline's validation passes and the
// committed-import executor. Per-cell logic is pure; the executor owns the
// only mutable state, the job record.
package importer

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"

	"github.com/yourorg/form-imports/internal/transform"
	"github.com/yourorg/form-imports/internal/types"
)

// ErrorPreviewCap bounds the error list returned from the pre-commit
// validation pass. The commit pass is not capped; every row's outcome is
// reflected in the job record and error report.
const ErrorPreviewCap = 100

// MappingCheck is the result of the structural pass. An invalid mapping is a
// hard precondition failure that blocks the data pass and commit.
type MappingCheck struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors,omitempty"`
}

// ValidateMapping checks the mapping independent of any data: every required
// importable field must be targeted by at least one column, and no field may
// be targeted by more than one column.
func ValidateMapping(m types.ColumnMapping, fields []types.FieldDefinition) MappingCheck {
	byID := make(map[string]types.FieldDefinition, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
	}

	targets := make(map[string][]string)
	for col, id := range m {
		if id == types.SkipColumn || id == "" {
			continue
		}
		targets[id] = append(targets[id], col)
	}

	var errs []string
	for id, cols := range targets {
		if _, known := byID[id]; !known {
			errs = append(errs, fmt.Sprintf("mapping references unknown field %q", id))
			continue
		}
		if len(cols) > 1 {
			sort.Strings(cols)
			errs = append(errs, fmt.Sprintf("field %q is mapped from multiple columns: %s",
				byID[id].Label, strings.Join(cols, ", ")))
		}
	}
	for _, f := range fields {
		if f.Required && f.Type.Importable() && len(targets[f.ID]) == 0 {
			errs = append(errs, fmt.Sprintf("required field %q has no column mapped to it", f.Label))
		}
	}
	sort.Strings(errs)
	return MappingCheck{IsValid: len(errs) == 0, Errors: errs}
}

// ValidationResult summarizes the exhaustive per-row data pass.
// InvalidRowCount counts distinct rows with at least one error, never the
// raw error count.
type ValidationResult struct {
	ValidRowCount   int              `json:"validRowCount"`
	InvalidRowCount int              `json:"invalidRowCount"`
	Errors          []types.RowError `json:"errors,omitempty"`
	Warnings        []string         `json:"warnings,omitempty"`
	SkippedFields   []string         `json:"skippedFields,omitempty"`
}

// QuickValidation runs every row through the mapped fields' type and
// constraint rules without mutating anything. The error list is capped at
// ErrorPreviewCap entries for UI preview; counts are derived before capping.
func QuickValidation(rows []map[string]string, fields []types.FieldDefinition, m types.ColumnMapping) ValidationResult {
	byID := make(map[string]types.FieldDefinition, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
	}

	var res ValidationResult
	skipped := make(map[string]bool)
	var all []types.RowError
	badRows := make(map[int]bool)

	for i, row := range rows {
		rowNum := i + 1
		for _, col := range sortedColumns(m) {
			id := m[col]
			if id == types.SkipColumn || id == "" {
				continue
			}
			field, known := byID[id]
			if !known {
				continue
			}
			if !field.Type.Importable() {
				if !skipped[field.Label] {
					skipped[field.Label] = true
					res.SkippedFields = append(res.SkippedFields, field.Label)
				}
				continue
			}
			if e := CheckCell(field, row[col], rowNum); e != nil {
				all = append(all, *e)
				badRows[rowNum] = true
			}
		}
	}

	res.InvalidRowCount = len(badRows)
	res.ValidRowCount = len(rows) - len(badRows)
	if len(all) > ErrorPreviewCap {
		all = all[:ErrorPreviewCap]
	}
	res.Errors = all
	sort.Strings(res.SkippedFields)
	return res
}

// sortedColumns fixes iteration order over the mapping so error ordering is
// deterministic.
func sortedColumns(m types.ColumnMapping) []string {
	cols := make([]string, 0, len(m))
	for c := range m {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 ().\-]{5,19}$`)
)

// CheckCell validates one raw cell against its target field. It returns nil
// when the value is acceptable, otherwise a RowError with a human-readable
// correction suggestion. rowNum is the 1-based data row number.
func CheckCell(field types.FieldDefinition, raw string, rowNum int) *types.RowError {
	v := strings.TrimSpace(raw)
	if v == "" {
		if field.Required {
			return cellError(field, rowNum, v, "required value is missing", "provide a value for this field")
		}
		return nil
	}

	if e := checkType(field, v, rowNum); e != nil {
		return e
	}

	// Length rules apply after the type rule regardless of type.
	if field.MinLength != nil && len(v) < *field.MinLength {
		return cellError(field, rowNum, v,
			fmt.Sprintf("value is shorter than %d characters", *field.MinLength),
			fmt.Sprintf("use at least %d characters", *field.MinLength))
	}
	if field.MaxLength != nil && len(v) > *field.MaxLength {
		return cellError(field, rowNum, v,
			fmt.Sprintf("value is longer than %d characters", *field.MaxLength),
			fmt.Sprintf("use at most %d characters", *field.MaxLength))
	}
	return nil
}

func checkType(field types.FieldDefinition, v string, rowNum int) *types.RowError {
	switch field.Type {
	case types.FieldNumber, types.FieldCurrency:
		n, err := transform.ParseNumber(v)
		if err != nil {
			return cellError(field, rowNum, v, "not a valid number", "enter a number such as 1234.56")
		}
		if field.Min != nil && n < *field.Min {
			return cellError(field, rowNum, v,
				fmt.Sprintf("below the minimum of %v", *field.Min),
				fmt.Sprintf("use a value of %v or more", *field.Min))
		}
		if field.Max != nil && n > *field.Max {
			return cellError(field, rowNum, v,
				fmt.Sprintf("above the maximum of %v", *field.Max),
				fmt.Sprintf("use a value of %v or less", *field.Max))
		}
	case types.FieldEmail:
		if !isValidEmail(v) {
			return cellError(field, rowNum, v, "not a valid email address", "use the form name@example.com")
		}
	case types.FieldPhone:
		if !phoneRe.MatchString(v) {
			return cellError(field, rowNum, v, "not a valid phone number", "use digits with an optional leading +")
		}
	case types.FieldURL:
		if !isValidURL(v) {
			return cellError(field, rowNum, v, "not a valid URL", "use an absolute URL such as https://example.com")
		}
	case types.FieldDate, types.FieldDatetime:
		if _, err := transform.ParseDate(v); err != nil {
			return cellError(field, rowNum, v, "not a recognized date", "use the format YYYY-MM-DD")
		}
	case types.FieldCheckbox:
		if _, recognized := transform.ParseBool(v); !recognized {
			return cellError(field, rowNum, v, "not a yes/no value", "use yes, no, true, or false")
		}
	case types.FieldDropdown, types.FieldRadio:
		if !matchesOption(field.Options, v) {
			return cellError(field, rowNum, v, "not one of the allowed options", optionsHint(field.Options))
		}
	case types.FieldMultiSelect:
		for _, tok := range transform.SplitMulti(v) {
			if !matchesOption(field.Options, tok) {
				return cellError(field, rowNum, v,
					fmt.Sprintf("%q is not one of the allowed options", tok), optionsHint(field.Options))
			}
		}
	case types.FieldRating:
		max := field.MaxRating
		if max <= 0 {
			max = 5
		}
		if n, ok := asInt(v); !ok || n < 1 || n > max {
			return cellError(field, rowNum, v,
				fmt.Sprintf("not a whole number between 1 and %d", max),
				fmt.Sprintf("use a rating from 1 to %d", max))
		}
	case types.FieldScale:
		lo, hi := 1, 10
		if field.Min != nil {
			lo = int(*field.Min)
		}
		if field.Max != nil {
			hi = int(*field.Max)
		}
		if n, ok := asInt(v); !ok || n < lo || n > hi {
			return cellError(field, rowNum, v,
				fmt.Sprintf("not a whole number between %d and %d", lo, hi),
				fmt.Sprintf("use a value from %d to %d", lo, hi))
		}
	}
	return nil
}

func cellError(field types.FieldDefinition, rowNum int, value, message, suggestion string) *types.RowError {
	return &types.RowError{
		Row:        rowNum,
		FieldLabel: field.Label,
		FieldID:    field.ID,
		FieldType:  string(field.Type),
		Value:      value,
		Message:    message,
		Suggestion: suggestion,
	}
}

func isValidEmail(v string) bool {
	if !emailRe.MatchString(v) {
		return false
	}
	at := strings.LastIndexByte(v, '@')
	_, err := idna.Lookup.ToASCII(v[at+1:])
	return err == nil
}

func isValidURL(v string) bool {
	u, err := url.Parse(v)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	_, err = idna.Lookup.ToASCII(u.Hostname())
	return err == nil
}

func matchesOption(options []string, v string) bool {
	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o), v) {
			return true
		}
	}
	return false
}

func optionsHint(options []string) string {
	return "use one of: " + strings.Join(options, ", ")
}

func asInt(v string) (int, bool) {
	n, err := transform.ParseNumber(v)
	if err != nil {
		return 0, false
	}
	if n != math.Trunc(n) {
		return 0, false
	}
	return int(n), true
}
