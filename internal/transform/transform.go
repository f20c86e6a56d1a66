// Package transform coerces raw spreadsheet cell text into the canonical
// typed representation for a form field. Coercion is pure and independent of
// validation: a value may transform cleanly and still be rejected by a
// business rule, and an empty cell always transforms to nil.
package transform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/form-imports/internal/types"
)

// Result is the outcome of transforming one cell. Value is nil for empty
// input; Err is set only when OK is false.
type Result struct {
	OK    bool
	Value any
	Err   string
}

func ok(v any) Result      { return Result{OK: true, Value: v} }
func fail(msg string) Result { return Result{Err: msg} }

// Transform coerces raw into the canonical value for the field's type.
func Transform(field types.FieldDefinition, raw string) Result {
	v := strings.TrimSpace(raw)
	if v == "" {
		// Absence is never a transform error, only possibly a validation one.
		return ok(nil)
	}

	switch field.Type {
	case types.FieldNumber, types.FieldCurrency, types.FieldRating, types.FieldScale:
		n, err := ParseNumber(v)
		if err != nil {
			return fail(fmt.Sprintf("%q is not a number", v))
		}
		return ok(n)
	case types.FieldDate, types.FieldDatetime:
		t, err := ParseDate(v)
		if err != nil {
			return fail(fmt.Sprintf("%q is not a recognized date", v))
		}
		return ok(t.UTC().Format(time.RFC3339))
	case types.FieldCheckbox:
		b, recognized := ParseBool(v)
		if !recognized {
			return fail(fmt.Sprintf("%q is not a yes/no value", v))
		}
		return ok(b)
	case types.FieldMultiSelect:
		return ok(SplitMulti(v))
	default:
		return ok(v)
	}
}

var errNotNumeric = errors.New("not numeric")

// currencyStripper removes currency symbols, grouping spaces, and plus signs
// before the numeric grammar is applied.
var currencyStripper = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", " ", "", " ", "", "+", "")

// ParseNumber parses a decimal under a locale-tolerant grammar. When both
// "." and "," appear, whichever comes later in the string is the decimal
// point (US "1,234.56" vs EU "1.234,56"). A lone comma is a decimal point
// only if at most two digits follow the last comma; otherwise it groups
// thousands.
func ParseNumber(s string) (float64, error) {
	v := currencyStripper.Replace(strings.TrimSpace(s))
	if v == "" {
		return 0, errNotNumeric
	}

	lastDot := strings.LastIndexByte(v, '.')
	lastComma := strings.LastIndexByte(v, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// EU form: dot groups, comma is the decimal point.
			v = strings.ReplaceAll(v, ".", "")
			v = strings.Replace(v, ",", ".", 1)
		} else {
			v = strings.ReplaceAll(v, ",", "")
		}
	case lastComma >= 0:
		if len(v)-lastComma-1 <= 2 {
			v = strings.ReplaceAll(v[:lastComma], ",", "") + "." + v[lastComma+1:]
		} else {
			v = strings.ReplaceAll(v, ",", "")
		}
	}

	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errNotNumeric
	}
	return n, nil
}

// dateLayouts are tried in order after native ISO parsing. US month-first
// wins over day-first when both could apply.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
}

var errNotDate = errors.New("not a date")

// ParseDate parses a date or datetime under the multi-format grammar and
// returns it in UTC.
func ParseDate(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return time.Time{}, errNotDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errNotDate
}

// ParseBool maps boolean-ish tokens to a bool. The second return reports
// whether the token was recognized at all; the empty string reads as false.
func ParseBool(s string) (value, recognized bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "y", "on":
		return true, true
	case "false", "no", "0", "n", "off", "":
		return false, true
	}
	return false, false
}

// SplitMulti splits a multi-select cell on commas or semicolons, trimming
// tokens and dropping empties.
func SplitMulti(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
