package heap

import (
	"path/filepath"
	"testing"

	"github.com/quanla/pagestore/internal/bufferpool"
	"github.com/quanla/pagestore/internal/disk"
	"github.com/quanla/pagestore/internal/record"
	"github.com/stretchr/testify/require"
)

func newTestBPM(t *testing.T, capacity int) bufferpool.BufferPool {
	t.Helper()
	dm, err := disk.Open(filepath.Join(t.TempDir(), "test.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return bufferpool.NewSharedBPM(dm, capacity)
}

func testSchema() record.Schema {
	return record.Schema{Cols: []record.Column{
		{Name: "id", Type: record.ColInt32},
		{Name: "name", Type: record.ColText},
	}}
}

func TestTableInsertAndGet(t *testing.T) {
	bpm := newTestBPM(t, 8)
	table, err := NewTable(bpm, testSchema())
	require.NoError(t, err)

	id, err := table.InsertTuple([]any{int32(1), "alice"})
	require.NoError(t, err)

	row, err := table.GetTuple(id)
	require.NoError(t, err)
	require.Equal(t, int32(1), row[0].(int32))
	require.Equal(t, "alice", row[1].(string))
}

func TestTableScanVisitsAllRows(t *testing.T) {
	bpm := newTestBPM(t, 8)
	table, err := NewTable(bpm, testSchema())
	require.NoError(t, err)

	want := map[int32]string{}
	for i := int32(0); i < 20; i++ {
		name := "row"
		_, err := table.InsertTuple([]any{i, name})
		require.NoError(t, err)
		want[i] = name
	}

	seen := map[int32]string{}
	require.NoError(t, table.Scan(func(id RowID, row []any) error {
		seen[row[0].(int32)] = row[1].(string)
		return nil
	}))
	require.Equal(t, want, seen)
}

func TestTableExtendsChainWhenPageFull(t *testing.T) {
	bpm := newTestBPM(t, 8)
	table, err := NewTable(bpm, testSchema())
	require.NoError(t, err)

	longName := make([]byte, 500)
	for i := range longName {
		longName[i] = 'x'
	}

	var lastPage disk.PageID
	for i := 0; i < 50; i++ {
		id, err := table.InsertTuple([]any{int32(i), string(longName)})
		require.NoError(t, err)
		lastPage = id.PageID
	}
	require.NotEqual(t, table.FirstPageID(), lastPage)
}

func TestTableOverflowRoundTrip(t *testing.T) {
	bpm := newTestBPM(t, 8)
	table, err := NewTable(bpm, testSchema())
	require.NoError(t, err)

	big := make([]byte, disk.PageSize*2)
	for i := range big {
		big[i] = byte(i)
	}

	id, err := table.InsertTuple([]any{int32(7), string(big)})
	require.NoError(t, err)

	row, err := table.GetTuple(id)
	require.NoError(t, err)
	require.Equal(t, string(big), row[1].(string))
}

func TestOpenTableRecoversTail(t *testing.T) {
	bpm := newTestBPM(t, 8)
	table, err := NewTable(bpm, testSchema())
	require.NoError(t, err)

	longName := make([]byte, 500)
	for i := 0; i < 50; i++ {
		_, err := table.InsertTuple([]any{int32(i), string(longName)})
		require.NoError(t, err)
	}

	reopened, err := OpenTable(bpm, testSchema(), table.FirstPageID())
	require.NoError(t, err)
	require.Equal(t, table.tailPageID, reopened.tailPageID)
}
