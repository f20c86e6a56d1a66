// Package detect infers form field definitions from spreadsheet columns.
// Detection is a heuristic over a bounded sample of rows, not an exhaustive
// scan; callers are told the sample size used so the inferred flags are not
// mistaken for guarantees.
package detect

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/yourorg/form-imports/internal/tabular"
	"github.com/yourorg/form-imports/internal/transform"
	"github.com/yourorg/form-imports/internal/types"
)

// DefaultSampleSize bounds how many rows are examined per column.
const DefaultSampleSize = 100

// Field is one inferred field. A detection run produces fresh values; they
// are never mutated afterwards.
type Field struct {
	Name        string          `json:"name"`
	Label       string          `json:"label"`
	Type        types.FieldType `json:"type"`
	Required    bool            `json:"required"`
	Options     []string        `json:"options,omitempty"`
	Confidence  float64         `json:"confidence"`
	Suggestions []Suggestion    `json:"suggestions,omitempty"`
}

// Suggestion is an alternate type guess with the reason it is plausible.
type Suggestion struct {
	Type   types.FieldType `json:"type"`
	Reason string          `json:"reason"`
}

// Result carries the inferred fields plus per-column warnings and the sample
// size the heuristics ran over.
type Result struct {
	Fields     []Field  `json:"fields"`
	Warnings   []string `json:"warnings,omitempty"`
	SampleSize int      `json:"sampleSize"`
}

// Detector holds detection tuning. The zero value uses DefaultSampleSize.
type Detector struct {
	SampleSize int
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)

var (
	phoneTokens = []string{"phone", "contact", "mobile", "tel"}
	urlTokens   = []string{"url", "website", "link"}
	dateTokens  = []string{"date", "time", "created", "updated", "birthday", "dob"}
	boolWords   = map[string]bool{
		"true": true, "false": true, "yes": true, "no": true,
		"1": true, "0": true, "y": true, "n": true,
	}
)

// Detect infers a field per column of the table.
func (d Detector) Detect(t *tabular.Table) Result {
	sample := d.SampleSize
	if sample <= 0 {
		sample = DefaultSampleSize
	}
	rows := t.Rows
	if len(rows) > sample {
		rows = rows[:sample]
	}

	res := Result{SampleSize: sample}
	for _, col := range t.Columns {
		var values []string
		empties := 0
		for _, row := range rows {
			v := strings.TrimSpace(row[col])
			if v == "" {
				empties++
				continue
			}
			values = append(values, v)
		}
		if empties > len(rows)/2 {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("column %q is empty in %d of %d sampled rows", col, empties, len(rows)))
		}

		f := detectColumn(col, values)
		f.Required = empties == 0 && len(rows) > 0
		res.Fields = append(res.Fields, f)
	}
	return res
}

// detectColumn applies the ordered rule list; the first rule that matches
// with sufficient support wins.
func detectColumn(header string, values []string) Field {
	f := Field{Name: tabular.MachineName(header), Label: header}
	name := tabular.NormalizeName(header)

	switch {
	case containsAny(name, "email", "mail") && ratio(values, isEmail) >= 0.8:
		f.Type = types.FieldEmail
		f.Confidence = 0.95
	case containsAny(name, phoneTokens...):
		// Phone formats are too varied internationally to pattern-check;
		// the header name alone is the signal.
		f.Type = types.FieldText
		f.Confidence = 0.7
		f.Suggestions = append(f.Suggestions, Suggestion{
			Type: types.FieldPhone, Reason: "column name suggests phone numbers"})
	case containsAny(name, urlTokens...):
		f.Type = types.FieldText
		f.Confidence = 0.7
		f.Suggestions = append(f.Suggestions, Suggestion{
			Type: types.FieldURL, Reason: "column name suggests links"})
	case containsAny(name, dateTokens...) && ratio(values, isDate) >= 0.7:
		f.Type = types.FieldDate
		f.Confidence = 0.85
	case looksBoolean(values):
		f.Type = types.FieldCheckbox
		f.Confidence = 0.9
	case isCategorical(values):
		f.Type = types.FieldDropdown
		f.Confidence = 0.8
		f.Options = distinctSorted(values)
	case ratio(values, isNumeric) >= 0.9 && len(values) > 0:
		f.Type = types.FieldNumber
		f.Confidence = 0.85
	case avgLen(values) > 100:
		f.Type = types.FieldTextarea
		f.Confidence = 0.7
	default:
		f.Type = types.FieldText
		f.Confidence = 0.6
	}
	return f
}

func containsAny(s string, tokens ...string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

func isEmail(v string) bool { return emailRe.MatchString(v) }

func isDate(v string) bool {
	_, err := transform.ParseDate(v)
	return err == nil
}

func isNumeric(v string) bool {
	_, err := transform.ParseNumber(v)
	return err == nil
}

// ratio is the share of values satisfying pred; zero when the sample is empty
// so empty columns never satisfy a threshold rule.
func ratio(values []string, pred func(string) bool) float64 {
	if len(values) == 0 {
		return 0
	}
	n := 0
	for _, v := range values {
		if pred(v) {
			n++
		}
	}
	return float64(n) / float64(len(values))
}

func looksBoolean(values []string) bool {
	lowered := make([]string, len(values))
	for i, v := range values {
		lowered[i] = strings.ToLower(v)
	}
	distinct := distinctSorted(lowered)
	if len(distinct) != 2 {
		return false
	}
	for _, v := range distinct {
		if !boolWords[v] {
			return false
		}
	}
	return true
}

func isCategorical(values []string) bool {
	if len(values) == 0 {
		return false
	}
	distinct := distinctSorted(values)
	if len(distinct) < 3 || len(distinct) > 20 {
		return false
	}
	if avgLen(values) >= 30 {
		return false
	}
	return float64(len(distinct))/float64(len(values)) < 0.3
}

func distinctSorted(values []string) []string {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func avgLen(values []string) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0
	for _, v := range values {
		total += len(v)
	}
	return float64(total) / float64(len(values))
}

var genericNameTokens = []string{"import", "data", "export"}

var adminColumnTokens = []string{"id", "created", "updated"}

// SuggestFormName proposes a form name from the source filename, falling back
// to the first non-administrative column label when the filename is generic
// (e.g. "data_export_2024.xlsx").
func SuggestFormName(filename string, columns []string) string {
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	cleaned := strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(base))

	if cleaned != "" && !containsAny(strings.ToLower(cleaned), genericNameTokens...) {
		return cleaned
	}
	for _, col := range columns {
		if !containsAny(tabular.NormalizeName(col), adminColumnTokens...) {
			return col + " Import"
		}
	}
	return "Imported Form"
}
