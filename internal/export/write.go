package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/pkg/formatting"
)

const sheetName = "TreeBiometrics"

func write(format Format, recs []records.Record) (*bytes.Buffer, error) {
	if format == FormatXLSX {
		return writeXLSX(recs)
	}
	return writeCSV(recs)
}

func writeCSV(recs []records.Record) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, err
	}

	line := make([]string, len(header))
	for _, r := range recs {
		for i, v := range row(r) {
			line[i] = cell(v)
		}
		if err := w.Write(line); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return &buf, w.Error()
}

func cell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		return formatting.FormatMeasure(&v, -1)
	default:
		return fmt.Sprint(v)
	}
}

func writeXLSX(recs []records.Record) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, err
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return nil, err
	}

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := sw.SetRow("A1", headerRow); err != nil {
		return nil, err
	}

	for i, r := range recs {
		addr, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := sw.SetRow(addr, row(r)); err != nil {
			return nil, fmt.Errorf("write row %d: %w", r.RowNumber, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return nil, err
	}
	return f.WriteToBuffer()
}
