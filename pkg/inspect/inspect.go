// Package inspect describes a consolidated CSV with DuckDB: its inferred
// schema and where its geolocated rows sit.
package inspect

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

// Coordinate column candidates, in preference order for ties.
var (
	LatCandidates = []string{"_lat", "lat", "latitude", "y"}
	LonCandidates = []string{"_lon", "lon", "longitude", "x"}

	// GeometryCandidates hold GeoJSON geometries or [lon, lat] pairs and
	// are used when no latitude/longitude pair is present.
	GeometryCandidates = []string{"geometry", "geom", "coordinates"}
)

// numberPattern pulls the first number out of text such as "1.35N".
const numberPattern = `([-+]?\d*\.\d+|[-+]?\d+)`

// Column is one inferred column.
type Column struct {
	Name string
	Type string
}

// Report is the result of inspecting one CSV.
type Report struct {
	Path    string
	Rows    int64
	Columns []Column

	// LatColumn and LonColumn are empty when no candidate is present.
	LatColumn string
	LonColumn string

	// Extracted is set when a chosen column held no plain numbers and its
	// values were read by pulling the first number out of the text.
	Extracted bool

	// GeometryColumn names the geometry column the coordinates were read
	// from when no latitude/longitude pair is present.
	GeometryColumn string

	// Geolocated counts rows where both coordinates parse as numbers.
	Geolocated int64
	CenterLat  float64
	CenterLon  float64

	Duration time.Duration
}

// Inspector runs inspection queries on an in-memory DuckDB.
type Inspector struct {
	db *sql.DB
}

// New opens an in-memory DuckDB.
func New() (*Inspector, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	return &Inspector{db: db}, nil
}

// Close releases resources.
func (i *Inspector) Close() error {
	return i.db.Close()
}

// Inspect describes the CSV at path.
func (i *Inspector) Inspect(ctx context.Context, path string) (*Report, error) {
	start := time.Now()
	report := &Report{Path: path}

	columns, err := i.describe(ctx, path)
	if err != nil {
		return nil, err
	}
	report.Columns = columns

	// Text mode so numeric checks see every raw value.
	source := fmt.Sprintf("read_csv_auto('%s', header=true, all_varchar=true)", escapePath(path))
	if err := i.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+source).Scan(&report.Rows); err != nil {
		return nil, fmt.Errorf("row count failed: %w", err)
	}

	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c.Name] = true
	}

	counts, err := i.numericCounts(ctx, source, present)
	if err != nil {
		return nil, err
	}
	report.LatColumn = chooseBest(counts, LatCandidates)
	report.LonColumn = chooseBest(counts, LonCandidates)

	if report.LatColumn == "" || report.LonColumn == "" {
		report.LatColumn, report.LonColumn = "", ""
		for _, g := range GeometryCandidates {
			if present[g] {
				report.GeometryColumn = g
				break
			}
		}
		if report.GeometryColumn != "" {
			if err := i.geometryCenter(ctx, source, report); err != nil {
				return nil, err
			}
		}
		report.Duration = time.Since(start)
		return report, nil
	}

	lat := numericExpr(report.LatColumn, counts, report)
	lon := numericExpr(report.LonColumn, counts, report)
	query := fmt.Sprintf(`
		SELECT COUNT(*), COALESCE(AVG(%s), 0), COALESCE(AVG(%s), 0)
		FROM %s
		WHERE %s IS NOT NULL AND %s IS NOT NULL
	`, lat, lon, source, lat, lon)
	if err := i.db.QueryRowContext(ctx, query).Scan(&report.Geolocated, &report.CenterLat, &report.CenterLon); err != nil {
		return nil, fmt.Errorf("coordinate summary failed: %w", err)
	}

	report.Duration = time.Since(start)
	return report, nil
}

// numericExpr casts a coordinate column, or extracts the first number from
// its text when no value casts directly.
func numericExpr(col string, counts map[string]int64, report *Report) string {
	if counts[col] > 0 {
		return fmt.Sprintf(`TRY_CAST(%s AS DOUBLE)`, quoteIdent(col))
	}
	report.Extracted = true
	return fmt.Sprintf(`TRY_CAST(NULLIF(regexp_extract(%s, '%s', 1), '') AS DOUBLE)`, quoteIdent(col), numberPattern)
}

// geometryCenter reads [lon, lat] from a geometry column. A value is either
// an object with a "coordinates" pair or a bare pair; anything else, such
// as polygon rings, is not geolocated.
func (i *Inspector) geometryCenter(ctx context.Context, source string, report *Report) error {
	col := quoteIdent(report.GeometryColumn)
	rows, err := i.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE %s IS NOT NULL`, col, source, col))
	if err != nil {
		return fmt.Errorf("geometry scan failed: %w", err)
	}
	defer rows.Close()

	var sumLat, sumLon float64
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		lon, lat, ok := pairOf(raw)
		if !ok {
			continue
		}
		report.Geolocated++
		sumLat += lat
		sumLon += lon
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("geometry scan failed: %w", err)
	}
	if report.Geolocated > 0 {
		report.CenterLat = sumLat / float64(report.Geolocated)
		report.CenterLon = sumLon / float64(report.Geolocated)
	}
	return nil
}

func pairOf(raw string) (lon, lat float64, ok bool) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return 0, 0, false
	}
	if obj, isObj := v.(map[string]any); isObj {
		v = obj["coordinates"]
	}
	pair, isList := v.([]any)
	if !isList || len(pair) < 2 {
		return 0, 0, false
	}
	lon, okLon := pair[0].(float64)
	lat, okLat := pair[1].(float64)
	return lon, lat, okLon && okLat
}

func (i *Inspector) describe(ctx context.Context, path string) ([]Column, error) {
	rows, err := i.db.QueryContext(ctx, fmt.Sprintf(
		`DESCRIBE SELECT * FROM read_csv_auto('%s', header=true, sample_size=1000)`,
		escapePath(path)))
	if err != nil {
		return nil, fmt.Errorf("describe failed: %w", err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var name, dtype string
		var null, key, dflt, extra interface{}
		if err := rows.Scan(&name, &dtype, &null, &key, &dflt, &extra); err != nil {
			return nil, err
		}
		columns = append(columns, Column{Name: name, Type: dtype})
	}
	return columns, rows.Err()
}

// numericCounts counts the values that parse as numbers in every present
// coordinate candidate.
func (i *Inspector) numericCounts(ctx context.Context, source string, present map[string]bool) (map[string]int64, error) {
	var names []string
	for _, c := range append(append([]string{}, LatCandidates...), LonCandidates...) {
		if present[c] {
			names = append(names, c)
		}
	}
	counts := make(map[string]int64, len(names))
	if len(names) == 0 {
		return counts, nil
	}

	exprs := make([]string, len(names))
	for j, n := range names {
		exprs[j] = fmt.Sprintf(`COUNT(TRY_CAST(%s AS DOUBLE))`, quoteIdent(n))
	}

	values := make([]int64, len(names))
	dest := make([]any, len(names))
	for j := range values {
		dest[j] = &values[j]
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), source)
	if err := i.db.QueryRowContext(ctx, query).Scan(dest...); err != nil {
		return nil, fmt.Errorf("numeric count failed: %w", err)
	}
	for j, n := range names {
		counts[n] = values[j]
	}
	return counts, nil
}

// chooseBest returns the candidate with the most numeric values. Ties go
// to the earlier candidate; absent candidates are not in counts.
func chooseBest(counts map[string]int64, candidates []string) string {
	best, most := "", int64(-1)
	for _, c := range candidates {
		n, ok := counts[c]
		if ok && n > most {
			best, most = c, n
		}
	}
	return best
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func escapePath(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}
