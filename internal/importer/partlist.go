package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/xuri/excelize/v2"
)

// ColumnMapping maps part list columns to their indices. -1 marks a column
// that is not present.
type ColumnMapping struct {
	ID       int
	Label    int
	Width    int
	Height   int
	Quantity int
}

// headerAliases maps each column role to the lowercase header names accepted
// for it.
var headerAliases = map[string][]string{
	"id":       {"id", "part id", "partid", "code", "sku"},
	"label":    {"label", "name", "part", "part name", "description", "desc", "piece", "item"},
	"width":    {"width", "w", "length", "len", "x"},
	"height":   {"height", "h", "depth", "d", "y"},
	"quantity": {"quantity", "qty", "count", "num", "amount", "pcs", "pieces"},
}

// positional is used when the first row is not a recognizable header.
var positional = ColumnMapping{ID: -1, Label: 0, Width: 1, Height: 2, Quantity: 3}

var delimiterNames = map[rune]string{',': "comma", ';': "semicolon", '\t': "tab", '|': "pipe"}

// DetectCSVDelimiter returns the delimiter among comma, semicolon, tab and
// pipe that splits the data into the most consistent multi-column rows.
func DetectCSVDelimiter(data []byte) rune {
	best, bestScore := ',', 0
	for _, delim := range []rune{',', ';', '\t', '|'} {
		records, err := readCSV(bytes.NewReader(data), delim)
		if err != nil || len(records) == 0 || len(records[0]) < 2 {
			continue
		}
		width := len(records[0])
		consistent := 0
		for _, row := range records {
			if len(row) == width {
				consistent++
			}
		}
		if score := consistent*10 + width; score > bestScore {
			best, bestScore = delim, score
		}
	}
	return best
}

// DetectColumns matches a header row against headerAliases, case-insensitively.
// When no cell matches it returns the positional mapping
// (label, width, height, quantity) and false.
func DetectColumns(row []string) (ColumnMapping, bool) {
	m := ColumnMapping{ID: -1, Label: -1, Width: -1, Height: -1, Quantity: -1}
	slots := map[string]*int{
		"id": &m.ID, "label": &m.Label, "width": &m.Width, "height": &m.Height, "quantity": &m.Quantity,
	}

	matched := false
	for i, cell := range row {
		name := strings.ToLower(strings.TrimSpace(cell))
		for role, aliases := range headerAliases {
			for _, alias := range aliases {
				if name != alias {
					continue
				}
				matched = true
				if slot := slots[role]; *slot == -1 {
					*slot = i
				}
			}
		}
	}
	if !matched {
		return positional, false
	}
	return m, true
}

// ImportCSV reads a part list from a CSV file with any of the supported
// delimiters.
func ImportCSV(path string) ImportResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot open file: %v", err)}}
	}
	return ImportCSVData(data)
}

// ImportCSVData reads a part list from CSV bytes, detecting the delimiter.
func ImportCSVData(data []byte) ImportResult {
	if len(bytes.TrimSpace(data)) == 0 {
		return ImportResult{Errors: []string{"File is empty"}}
	}

	var warnings []string
	delim := DetectCSVDelimiter(data)
	if delim != ',' {
		warnings = append(warnings, fmt.Sprintf("Detected %s delimiter", delimiterNames[delim]))
	}
	records, err := readCSV(bytes.NewReader(data), delim)
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot read CSV: %v", err)}}
	}
	return importRows(records, "Line", warnings)
}

// ImportCSVFromReader reads a part list with a known delimiter.
func ImportCSVFromReader(r io.Reader, delimiter rune) ImportResult {
	records, err := readCSV(r, delimiter)
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot read CSV: %v", err)}}
	}
	return importRows(records, "Line", nil)
}

// ImportExcel reads a part list from the first worksheet of an XLSX file.
func ImportExcel(path string) ImportResult {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot open Excel file: %v", err)}}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ImportResult{Errors: []string{"Excel file has no sheets"}}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot read Excel data: %v", err)}}
	}
	return importRows(rows, "Row", nil)
}

func readCSV(r io.Reader, delim rune) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

// importRows turns rows into rectangular parts. The first row is skipped when
// it is a header, or when its width cell is not numeric.
func importRows(rows [][]string, rowPrefix string, warnings []string) ImportResult {
	result := ImportResult{Warnings: warnings}
	if len(rows) == 0 {
		result.Errors = append(result.Errors, "File is empty")
		return result
	}

	mapping, hasHeader := DetectColumns(rows[0])
	first := 0
	switch {
	case hasHeader:
		first = 1
		result.Warnings = append(result.Warnings, "Detected header row, skipping")
		var missing []string
		if mapping.Width == -1 {
			missing = append(missing, "Width")
		}
		if mapping.Height == -1 {
			missing = append(missing, "Height")
		}
		if len(missing) > 0 {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Required columns not found in header: %s", strings.Join(missing, ", ")))
			return result
		}
	case len(rows[0]) >= 3:
		if _, err := strconv.ParseFloat(cell(rows[0], positional.Width), 64); err != nil {
			first = 1
			result.Warnings = append(result.Warnings, "Detected header row, skipping")
		}
	}

	seen := map[string]bool{}
	for i := first; i < len(rows); i++ {
		if blank(rows[i]) {
			continue
		}
		where := fmt.Sprintf("%s %d", rowPrefix, i+1)
		part, err := parseRow(rows[i], mapping, len(result.Parts))
		if err != "" {
			result.Errors = append(result.Errors, where+": "+err)
			continue
		}
		if seen[part.ID] {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: Duplicate part id '%s'", where, part.ID))
			continue
		}
		seen[part.ID] = true
		result.Parts = append(result.Parts, part)
	}
	return result
}

// parseRow builds a rectangular part from one row. Quantity defaults to 1
// when its column is missing or blank.
func parseRow(row []string, m ColumnMapping, index int) (model.Part, string) {
	label := cell(row, m.Label)
	if label == "" {
		label = fmt.Sprintf("Part %d", index+1)
	}

	width, errMsg := parseDimension(row, m.Width, "width")
	if errMsg != "" {
		return model.Part{}, errMsg
	}
	height, errMsg := parseDimension(row, m.Height, "height")
	if errMsg != "" {
		return model.Part{}, errMsg
	}

	qty := 1
	if s := cell(row, m.Quantity); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return model.Part{}, fmt.Sprintf("Invalid quantity '%s'", s)
		}
		if n <= 0 {
			return model.Part{}, "Quantity must be positive"
		}
		qty = n
	}

	part := model.NewPart(label, model.Rect(width, height), qty)
	if id := cell(row, m.ID); id != "" {
		part.ID = id
	}
	return part, ""
}

func parseDimension(row []string, idx int, name string) (float64, string) {
	s := cell(row, idx)
	if s == "" {
		return 0, fmt.Sprintf("Missing %s value", name)
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, fmt.Sprintf("Invalid %s '%s'", name, s)
	}
	if v <= 0 {
		return 0, fmt.Sprintf("%s must be positive", strings.ToUpper(name[:1])+name[1:])
	}
	return v, ""
}

// cell returns the trimmed value at idx, or "" when idx is out of range.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
