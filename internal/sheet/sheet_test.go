package sheet

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestTable_Records(t *testing.T) {
	table := NewTable(" 會員編號 ", "會員姓名", "電話")
	table.Append("101", " Alice ")
	table.Append("102")
	table.Append("", "  ")

	assert.Equal(t, 0, table.Column("會員編號"))
	assert.Equal(t, -1, table.Column("生日"))
	assert.NoError(t, table.Require("會員編號", "電話"))
	err := table.Require("生日", "教練")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "生日, 教練")

	assert.Equal(t, "Alice", table.Record(0).Get("會員姓名"))
	assert.Equal(t, "", table.Record(1).Get("會員姓名"), "short rows read as empty")
	assert.Equal(t, "", table.Record(0).Get("生日"))
	assert.False(t, table.Record(0).Blank())
	assert.True(t, table.Record(2).Blank())

	row := table.RowFrom(map[string]string{"電話": "0912345678", "會員編號": "103", "extra": "x"})
	assert.Equal(t, []string{"103", "", "0912345678"}, row)
}

func TestTable_CloneIsDeep(t *testing.T) {
	table := NewTable("a")
	table.Append("1")
	clone := table.Clone()
	clone.Rows[0][0] = "2"
	clone.Header[0] = "b"
	assert.Equal(t, "1", table.Rows[0][0])
	assert.Equal(t, "a", table.Header[0])
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.ReadSheet(ctx, "A")
	assert.ErrorIs(t, err, ErrSheetNotFound)

	require.NoError(t, m.EnsureSheet(ctx, "A", []string{"x"}))
	table, err := m.ReadSheet(ctx, "A")
	require.NoError(t, err)
	table.Append("1")
	got, _ := m.ReadSheet(ctx, "A")
	assert.Equal(t, 0, got.Len(), "reads return copies")

	require.NoError(t, m.WriteSheet(ctx, "A", table))
	got, _ = m.ReadSheet(ctx, "A")
	assert.Equal(t, 1, got.Len())

	boom := errors.New("boom")
	m.FailWrites["A"] = boom
	assert.ErrorIs(t, m.WriteSheet(ctx, "A", table), boom)
}

func TestMemory_Snapshot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := NewTable("x")
	a.Append("1")
	require.NoError(t, m.WriteSheet(ctx, "B", a))
	require.NoError(t, m.WriteSheet(ctx, "A", NewTable("y")))

	dst := filepath.Join(t.TempDir(), "snap.xlsx")
	require.NoError(t, m.Snapshot(ctx, dst))

	f, err := excelize.OpenFile(dst)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"A", "B"}, f.GetSheetList())
	v, err := f.GetCellValue("B", "A2")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestCellValue(t *testing.T) {
	assert.Equal(t, "0912345678", CellValue(Text, "0912345678"))
	assert.Equal(t, 4000.0, CellValue(Number, "4000"))
	assert.Equal(t, 333.33, CellValue(Number, " 333.33 "))
	assert.Equal(t, 45432.0, CellValue(Date, "2024-05-20"))
	assert.Equal(t, 45432.0, CellValue(Date, "45432"), "serial days pass through")
	assert.Equal(t, "", CellValue(Number, ""))
	assert.Equal(t, "NaN", CellValue(Number, "NaN"))
	assert.Equal(t, "abc", CellValue(Date, "abc"))
}

func TestClone_CopiesTypes(t *testing.T) {
	table := NewTable("堂數")
	table.Types = map[string]ColumnType{"堂數": Number}
	c := table.Clone()
	c.Types["堂數"] = Text
	assert.Equal(t, Number, table.TypeOf(0))
	assert.Equal(t, Text, NewTable("x").TypeOf(0))
}
