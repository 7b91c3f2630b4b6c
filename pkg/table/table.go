// Package table holds the in-memory master table: ordered records, rows
// tagged with their source, and the running column union.
package table

import (
	"encoding/json"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Reserved column names added by the pipeline.
const (
	ColSourceFile = "_source_file"
	ColRootKey    = "_root_key"
	ColGeomType   = "_geom_type"
	ColLon        = "_lon"
	ColLat        = "_lat"
)

// MetaColumns lists the pipeline columns in the order they are pinned
// when meta-columns-first output is requested.
var MetaColumns = []string{ColSourceFile, ColRootKey, ColGeomType, ColLon, ColLat}

// Value is a scalar cell: nil, string, int64, float64 or bool.
type Value = any

// Record is an ordered column -> value mapping.
type Record struct {
	m *orderedmap.OrderedMap[string, Value]
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{m: orderedmap.New[string, Value]()}
}

// Set stores a value. New keys are appended; existing keys keep their position.
func (r *Record) Set(key string, v Value) {
	r.m.Set(key, v)
}

// Get returns the value for key and whether the key is present.
func (r *Record) Get(key string) (Value, bool) {
	return r.m.Get(key)
}

// Keys returns the column names in insertion order.
func (r *Record) Keys() []string {
	keys := make([]string, 0, r.m.Len())
	for pair := r.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of columns in the record.
func (r *Record) Len() int {
	return r.m.Len()
}

// Table is an ordered sequence of rows plus the union of their columns.
type Table struct {
	columns []string
	index   map[string]int
	rows    []*Record
}

// New creates an empty table.
func New() *Table {
	return &Table{index: make(map[string]int)}
}

// Append adds a row and extends the column union with any unseen keys.
func (t *Table) Append(r *Record) {
	for pair := r.m.Oldest(); pair != nil; pair = pair.Next() {
		t.addColumn(pair.Key)
	}
	t.rows = append(t.rows, r)
}

// AppendTable appends every row of other, in order.
func (t *Table) AppendTable(other *Table) {
	for _, col := range other.columns {
		t.addColumn(col)
	}
	t.rows = append(t.rows, other.rows...)
}

func (t *Table) addColumn(name string) {
	if _, ok := t.index[name]; ok {
		return
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
}

// Columns returns the column union in order of first appearance.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// HasColumn reports whether any row carried the column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Rows returns the rows in order. The slice must not be modified.
func (t *Table) Rows() []*Record {
	return t.rows
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Cell returns the value of column for row i; missing columns read as nil.
func (t *Table) Cell(i int, column string) Value {
	v, _ := t.rows[i].Get(column)
	return v
}

// PinColumns moves the given columns, where present, to the front of the
// header while keeping the relative order of the rest.
func (t *Table) PinColumns(names []string) {
	front := make([]string, 0, len(names))
	pinned := make(map[string]bool, len(names))
	for _, n := range names {
		if t.HasColumn(n) && !pinned[n] {
			front = append(front, n)
			pinned[n] = true
		}
	}
	rest := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		if !pinned[c] {
			rest = append(rest, c)
		}
	}
	t.columns = append(front, rest...)
	for i, c := range t.columns {
		t.index[c] = i
	}
}

// FormatValue renders a cell as text. Nil renders as the empty string.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
