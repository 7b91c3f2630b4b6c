package output

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/logflow/geoflow/pkg/ingest/core"
	"github.com/logflow/geoflow/pkg/table"
)

// WriteCSV writes t as comma-separated text. The header is the column
// union and null cells are empty.
func WriteCSV(ctx context.Context, t *table.Table, path string) (*core.SinkResult, error) {
	columns := t.Columns()

	return writeAtomic(path, "csv", int64(t.Len()), func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if len(columns) > 0 {
			if err := cw.Write(columns); err != nil {
				return err
			}
		}

		record := make([]string, len(columns))
		for i, row := range t.Rows() {
			if i%4096 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			for j, col := range columns {
				v, _ := row.Get(col)
				record[j] = table.FormatValue(v)
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}

		cw.Flush()
		return cw.Error()
	})
}
