package output

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/geoflow/pkg/ingest/core"
	"github.com/logflow/geoflow/pkg/table"
)

const (
	sheetName = "master"
	// maxSheetRows is the Excel row limit, header included.
	maxSheetRows = 1048576
)

// WriteXLSX writes t to a single-sheet workbook. Null cells are left blank.
func WriteXLSX(ctx context.Context, t *table.Table, path string) (*core.SinkResult, error) {
	if t.Len()+1 > maxSheetRows {
		return nil, fmt.Errorf("%d rows exceed the sheet limit of %d", t.Len(), maxSheetRows-1)
	}
	columns := t.Columns()

	return writeAtomic(path, "xlsx", int64(t.Len()), func(w io.Writer) error {
		f := excelize.NewFile()
		defer f.Close()

		if err := f.SetSheetName("Sheet1", sheetName); err != nil {
			return err
		}
		sw, err := f.NewStreamWriter(sheetName)
		if err != nil {
			return err
		}

		header := make([]interface{}, len(columns))
		for i, c := range columns {
			header[i] = c
		}
		if err := sw.SetRow("A1", header); err != nil {
			return err
		}

		values := make([]interface{}, len(columns))
		for i, row := range t.Rows() {
			if i%4096 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			for j, col := range columns {
				values[j] = cellValue(row, col)
			}
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return err
			}
			if err := sw.SetRow(cell, values); err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
		}

		if err := sw.Flush(); err != nil {
			return err
		}
		return f.Write(w)
	})
}

func cellValue(row *table.Record, col string) interface{} {
	v, _ := row.Get(col)
	switch v.(type) {
	case nil, string, bool, int64, int, float64:
		return v
	default:
		return table.FormatValue(v)
	}
}
