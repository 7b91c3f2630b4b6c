package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(kv ...any) *Record {
	r := NewRecord()
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

func TestRecord_KeepsInsertionOrder(t *testing.T) {
	r := record("b", 1, "a", 2, "c", 3)
	r.Set("a", 20)

	assert.Equal(t, []string{"b", "a", "c"}, r.Keys())
	v, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 20, v)
}

func TestTable_ColumnUnionFirstAppearance(t *testing.T) {
	tbl := New()
	tbl.Append(record("id", "1", "name", "a"))
	tbl.Append(record("name", "b", "extra", true))
	tbl.Append(record("id", "3"))

	assert.Equal(t, []string{"id", "name", "extra"}, tbl.Columns())
	assert.Equal(t, 3, tbl.Len())
	assert.Nil(t, tbl.Cell(2, "name"))
	assert.Equal(t, true, tbl.Cell(1, "extra"))
}

func TestTable_AppendTablePreservesOrder(t *testing.T) {
	a := New()
	a.Append(record("x", "a1"))
	a.Append(record("x", "a2"))
	b := New()
	b.Append(record("y", "b1"))

	master := New()
	master.AppendTable(a)
	master.AppendTable(b)

	require.Equal(t, 3, master.Len())
	assert.Equal(t, "a1", master.Cell(0, "x"))
	assert.Equal(t, "a2", master.Cell(1, "x"))
	assert.Equal(t, "b1", master.Cell(2, "y"))
	assert.Equal(t, []string{"x", "y"}, master.Columns())
}

func TestTable_PinColumns(t *testing.T) {
	tbl := New()
	tbl.Append(record("name", "a", ColSourceFile, "f", ColLon, 1.0, ColGeomType, "Point"))

	tbl.PinColumns(MetaColumns)

	assert.Equal(t, []string{ColSourceFile, ColGeomType, ColLon, "name"}, tbl.Columns())
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   Value
		want string
	}{
		{nil, ""},
		{"txt", "txt"},
		{true, "true"},
		{int64(42), "42"},
		{1.5, "1.5"},
		{float64(3), "3"},
		{[]any{1.0, "a"}, `[1,"a"]`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.in))
	}
}
