package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	xls "github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// PreviewRows is how many surviving data rows Parse keeps as a preview.
const PreviewRows = 5

var (
	// ErrNoSheets indicates an Excel payload with zero readable sheets.
	ErrNoSheets = errors.New("workbook has no sheets")
	// ErrNoData indicates a file with no data rows after the header row.
	ErrNoData = errors.New("no data rows after header")
)

// DuplicateHeaderError reports header names that appear more than once after
// blank-header substitution. Ambiguous column identity is fatal.
type DuplicateHeaderError struct {
	Names []string
}

func (e *DuplicateHeaderError) Error() string {
	return fmt.Sprintf("duplicate column headers: %s", strings.Join(e.Names, ", "))
}

// Table is the decoded form of one spreadsheet: unique ordered columns,
// data rows keyed by column name, and a short preview. Rows where every
// cell is empty are dropped before RowCount is computed.
type Table struct {
	Columns  []string            `json:"columns"`
	Rows     []map[string]string `json:"rows"`
	RowCount int                 `json:"rowCount"`
	Preview  []map[string]string `json:"preview"`
}

// Parse decodes raw spreadsheet bytes into a Table. Format is chosen by file
// extension first, then content signature (zip container means xlsx, an OLE
// compound file means legacy xls); anything else is treated as delimited text.
// Only the first sheet of a workbook is read.
func Parse(data []byte, filename string) (*Table, error) {
	ext := strings.ToLower(path.Ext(filename))

	var grid [][]string
	var err error
	switch {
	case ext == ".xlsx" || bytes.HasPrefix(data, []byte("PK\x03\x04")):
		grid, err = readXLSX(data)
	case ext == ".xls" || bytes.HasPrefix(data, []byte{0xD0, 0xCF, 0x11, 0xE0}):
		grid, err = readXLS(data)
	default:
		grid, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}
	return fromGrid(grid)
}

func fromGrid(grid [][]string) (*Table, error) {
	if len(grid) == 0 {
		return nil, ErrNoData
	}

	columns := make([]string, len(grid[0]))
	seen := make(map[string]int, len(grid[0]))
	var dups []string
	for i, h := range grid[0] {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Column_%d", i+1)
		}
		if n := seen[name]; n == 1 {
			dups = append(dups, name)
		}
		seen[name]++
		columns[i] = name
	}
	if len(dups) > 0 {
		return nil, &DuplicateHeaderError{Names: dups}
	}

	rows := make([]map[string]string, 0, len(grid)-1)
	for _, rec := range grid[1:] {
		row := make(map[string]string, len(columns))
		empty := true
		for i, col := range columns {
			var v string
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			if v != "" {
				empty = false
			}
			row[col] = v
		}
		if empty {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	preview := rows
	if len(preview) > PreviewRows {
		preview = preview[:PreviewRows]
	}
	return &Table{Columns: columns, Rows: rows, RowCount: len(rows), Preview: preview}, nil
}

func readCSV(data []byte) ([][]string, error) {
	br := bufio.NewReader(bytes.NewReader(data))
	sample, _ := br.Peek(4096)
	cr := csv.NewReader(br)
	cr.Comma = detectDelimiter(sample)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var grid [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		grid = append(grid, rec)
	}
	return grid, nil
}

// detectDelimiter picks the most frequent of tab/semicolon/comma in the
// sample so European semicolon CSVs and TSV exports decode without options.
func detectDelimiter(b []byte) rune {
	cComma := bytes.Count(b, []byte{','})
	cTab := bytes.Count(b, []byte{'\t'})
	cSemi := bytes.Count(b, []byte{';'})
	if cTab > cComma && cTab > cSemi {
		return '\t'
	}
	if cSemi > cComma {
		return ';'
	}
	return ','
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	defer rows.Close()

	var grid [][]string
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
		}
		for i, v := range cols {
			if iso, ok := normalizeTemporal(v); ok {
				cols[i] = iso
			}
		}
		grid = append(grid, cols)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return grid, nil
}

func readXLS(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	if wb.NumSheets() == 0 {
		return nil, ErrNoSheets
	}
	sh := wb.GetSheet(0)
	if sh == nil {
		return nil, ErrNoSheets
	}
	grid := make([][]string, 0, sh.MaxRow+1)
	for i := 0; i <= int(sh.MaxRow); i++ {
		row := sh.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		rec := make([]string, row.LastCol()+1)
		for j := 0; j <= row.LastCol(); j++ {
			v := row.Col(j)
			if iso, ok := normalizeTemporal(v); ok {
				v = iso
			}
			rec[j] = v
		}
		grid = append(grid, rec)
	}
	return grid, nil
}

// excelDisplayLayouts are the display formats Excel applies to date-styled
// cells; formatted cell text matching one of these is rewritten to ISO-8601.
var excelDisplayLayouts = []string{
	"1/2/06 15:04",
	"1/2/2006 15:04",
	"1-2-06",
	"01-02-06",
	"1/2/06",
	"1/2/2006",
	"2006/01/02",
	"2-Jan-06",
	"2-Jan-2006",
	"Jan-06",
	"2006-01-02 15:04:05",
}

func normalizeTemporal(s string) (string, bool) {
	v := strings.TrimSpace(s)
	if v == "" || !strings.ContainsAny(v, "/-") {
		return "", false
	}
	for _, layout := range excelDisplayLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC().Format(time.RFC3339), true
		}
	}
	return "", false
}
