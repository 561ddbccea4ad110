package imports

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JaimeStill/mrv/pkg/problem"
)

// column aliases accepted in dataset headers, matched case-insensitively.
var aliases = map[string]string{
	"plot_id":       "plot_id",
	"plot":          "plot_id",
	"plot_no":       "plot_id",
	"tree_number":   "tree_number",
	"tree_no":       "tree_number",
	"tree":          "tree_number",
	"species_code":  "species_code",
	"species":       "species_code",
	"diameter":      "diameter",
	"dbh":           "diameter",
	"dbh_cm":        "diameter",
	"height":        "height",
	"height_m":      "height",
	"ht":            "height",
	"physiography":  "physiography",
	"physio":        "physiography",
	"slope_percent": "slope_percent",
	"slope":         "slope_percent",
}

var requiredColumns = []string{"plot_id", "tree_number", "species_code", "diameter"}

// Parse reads a dataset in the given format. The first non-empty row is the
// header. Values that fail to parse mark their row with an error; a header
// missing a required column fails the whole file.
func Parse(format Format, r io.Reader) ([]Row, error) {
	var (
		table [][]string
		err   error
	)
	switch format {
	case FormatCSV:
		table, err = readCSV(r)
	case FormatXLSX:
		table, err = readXLSX(r)
	default:
		return nil, problem.Invalid("unsupported file format", problem.FieldError{
			Field:   "filename",
			Message: "must end in .csv or .xlsx",
		})
	}
	if err != nil {
		return nil, problem.Invalid("unreadable dataset", problem.FieldError{Field: "file", Message: err.Error()})
	}

	return parseTable(table)
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr.ReadAll()
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func parseTable(table [][]string) ([]Row, error) {
	start := 0
	for start < len(table) && blank(table[start]) {
		start++
	}
	if start == len(table) {
		return nil, problem.Invalid("dataset is empty", problem.FieldError{Field: "file", Message: "no header row"})
	}

	header := make([]string, len(table[start]))
	present := make(map[string]bool)
	for i, h := range table[start] {
		name := strings.ToLower(strings.TrimSpace(h))
		name = strings.ReplaceAll(name, " ", "_")
		if canonical, ok := aliases[name]; ok {
			name = canonical
			present[canonical] = true
		}
		header[i] = name
	}

	var fields []problem.FieldError
	for _, c := range requiredColumns {
		if !present[c] {
			fields = append(fields, problem.FieldError{Field: c, Message: "column is required"})
		}
	}
	if len(fields) > 0 {
		return nil, problem.Invalid("dataset header is missing required columns", fields...)
	}

	var rows []Row
	for i := start + 1; i < len(table); i++ {
		if blank(table[i]) {
			continue
		}
		rows = append(rows, parseRow(len(rows)+1, header, table[i]))
	}
	return rows, nil
}

func parseRow(number int, header, cells []string) Row {
	row := Row{RowNumber: number}
	var errs []string

	num := func(col, v string) *float64 {
		if v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			errs = append(errs, fmt.Sprintf("%s %q is not a number", col, v))
			return nil
		}
		return &f
	}

	for i, col := range header {
		v := ""
		if i < len(cells) {
			v = strings.TrimSpace(cells[i])
		}
		switch col {
		case "plot_id":
			row.PlotID = v
		case "tree_number":
			if v == "" {
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("tree_number %q is not an integer", v))
				continue
			}
			row.TreeNumber = n
		case "species_code":
			row.SpeciesCode = v
		case "diameter":
			row.Diameter = num(col, v)
		case "height":
			row.Height = num(col, v)
		case "physiography":
			row.Physiography = v
		case "slope_percent":
			row.SlopePercent = num(col, v)
		case "":
		default:
			if v == "" {
				continue
			}
			if row.Attributes == nil {
				row.Attributes = make(map[string]string)
			}
			row.Attributes[col] = v
		}
	}

	row.Error = strings.Join(errs, "; ")
	return row
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
