package detect

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/form-imports/internal/tabular"
	"github.com/yourorg/form-imports/internal/types"
)

func tableFrom(t *testing.T, columns []string, rows ...[]string) *tabular.Table {
	t.Helper()
	var b strings.Builder
	b.WriteString(strings.Join(columns, ",") + "\n")
	for _, r := range rows {
		b.WriteString(strings.Join(r, ",") + "\n")
	}
	tbl, err := tabular.Parse([]byte(b.String()), "test.csv")
	require.NoError(t, err)
	return tbl
}

func fieldByLabel(t *testing.T, res Result, label string) Field {
	t.Helper()
	for _, f := range res.Fields {
		if f.Label == label {
			return f
		}
	}
	t.Fatalf("no field with label %q", label)
	return Field{}
}

func TestDetectEmailColumn(t *testing.T) {
	tbl := tableFrom(t, []string{"Email Address"},
		[]string{"a@example.com"}, []string{"b@example.org"}, []string{"c@test.io"})
	res := Detector{}.Detect(tbl)

	f := fieldByLabel(t, res, "Email Address")
	assert.Equal(t, types.FieldEmail, f.Type)
	assert.Equal(t, "email_address", f.Name)
	assert.True(t, f.Required)
}

func TestDetectEmailHeaderWithJunkValues(t *testing.T) {
	// Header says email but values do not; name alone is not enough.
	tbl := tableFrom(t, []string{"Email"},
		[]string{"hello"}, []string{"world"}, []string{"nope"})
	f := fieldByLabel(t, Detector{}.Detect(tbl), "Email")
	assert.Equal(t, types.FieldText, f.Type)
}

func TestDetectPhoneByNameOnly(t *testing.T) {
	tbl := tableFrom(t, []string{"Mobile Number"},
		[]string{"+1 555 0100"}, []string{"whatever"})
	f := fieldByLabel(t, Detector{}.Detect(tbl), "Mobile Number")
	assert.Equal(t, types.FieldText, f.Type)
	require.Len(t, f.Suggestions, 1)
	assert.Equal(t, types.FieldPhone, f.Suggestions[0].Type)
}

func TestDetectDateColumn(t *testing.T) {
	tbl := tableFrom(t, []string{"Created At"},
		[]string{"2024-01-15"}, []string{"2024-02-20"}, []string{"15/03/2024"})
	f := fieldByLabel(t, Detector{}.Detect(tbl), "Created At")
	assert.Equal(t, types.FieldDate, f.Type)
}

func TestDetectCheckbox(t *testing.T) {
	tbl := tableFrom(t, []string{"Active"},
		[]string{"Yes"}, []string{"no"}, []string{"YES"}, []string{"No"})
	f := fieldByLabel(t, Detector{}.Detect(tbl), "Active")
	assert.Equal(t, types.FieldCheckbox, f.Type)
}

func TestDetectDropdownWithOptions(t *testing.T) {
	rows := make([][]string, 0, 30)
	for i := 0; i < 10; i++ {
		rows = append(rows, []string{"red"}, []string{"green"}, []string{"blue"})
	}
	tbl := tableFrom(t, []string{"Color"}, rows...)
	f := fieldByLabel(t, Detector{}.Detect(tbl), "Color")
	assert.Equal(t, types.FieldDropdown, f.Type)
	assert.Equal(t, []string{"blue", "green", "red"}, f.Options)
}

func TestDetectNumber(t *testing.T) {
	tbl := tableFrom(t, []string{"Amount"},
		[]string{"10"}, []string{"1500.25"}, []string{"19"}, []string{"7"})
	f := fieldByLabel(t, Detector{}.Detect(tbl), "Amount")
	assert.Equal(t, types.FieldNumber, f.Type)
}

func TestDetectTextareaForLongValues(t *testing.T) {
	long := strings.Repeat("lorem ipsum ", 20)
	tbl := tableFrom(t, []string{"Notes"}, []string{long}, []string{long + "x"})
	f := fieldByLabel(t, Detector{}.Detect(tbl), "Notes")
	assert.Equal(t, types.FieldTextarea, f.Type)
}

func TestDetectDefaultText(t *testing.T) {
	tbl := tableFrom(t, []string{"Whatever"},
		[]string{"alpha"}, []string{"beta"})
	f := fieldByLabel(t, Detector{}.Detect(tbl), "Whatever")
	assert.Equal(t, types.FieldText, f.Type)
	assert.Equal(t, 0.6, f.Confidence)
}

func TestDetectConfidenceBounds(t *testing.T) {
	tbl := tableFrom(t, []string{"Email", "Phone", "Color", "Notes"},
		[]string{"a@b.co", "x", "red", "hi"},
		[]string{"c@d.co", "y", "blue", "yo"})
	res := Detector{}.Detect(tbl)
	for _, f := range res.Fields {
		assert.GreaterOrEqual(t, f.Confidence, 0.0, f.Label)
		assert.LessOrEqual(t, f.Confidence, 1.0, f.Label)
	}
}

func TestDetectRequiredAndEmptyWarning(t *testing.T) {
	tbl := tableFrom(t, []string{"Name", "Nickname"},
		[]string{"Alice", ""},
		[]string{"Bob", ""},
		[]string{"Cara", "C"})
	res := Detector{}.Detect(tbl)

	assert.True(t, fieldByLabel(t, res, "Name").Required)
	assert.False(t, fieldByLabel(t, res, "Nickname").Required)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Nickname")
}

func TestDetectSampleSizeEchoed(t *testing.T) {
	rows := make([][]string, 0, 12)
	for i := 0; i < 12; i++ {
		rows = append(rows, []string{fmt.Sprintf("v%d", i)})
	}
	tbl := tableFrom(t, []string{"Col"}, rows...)
	res := Detector{SampleSize: 10}.Detect(tbl)
	assert.Equal(t, 10, res.SampleSize)
}

func TestSuggestFormName(t *testing.T) {
	assert.Equal(t, "customer contacts", SuggestFormName("customer_contacts.xlsx", nil))
	assert.Equal(t, "Full Name Import",
		SuggestFormName("data_export_2024.csv", []string{"Record ID", "Created At", "Full Name"}))
	assert.Equal(t, "Imported Form",
		SuggestFormName("import.csv", []string{"id", "updated_at"}))
}
