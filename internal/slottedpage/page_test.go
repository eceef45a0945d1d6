package slottedpage

import (
	"testing"

	"github.com/quanla/pagestore/internal/disk"
	"github.com/stretchr/testify/require"
)

func newTestPage() Page {
	buf := make([]byte, disk.PageSize)
	return New(buf, TypeHeap, disk.InvalidPageID)
}

func TestInsertAndGetRecord(t *testing.T) {
	p := newTestPage()

	s0, ok := p.InsertRecord([]byte("hello"))
	require.True(t, ok)
	s1, ok := p.InsertRecord([]byte("world!"))
	require.True(t, ok)

	require.Equal(t, 2, p.SlotCount())

	got0, err := p.GetRecord(s0)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got0)

	got1, err := p.GetRecord(s1)
	require.NoError(t, err)
	require.Equal(t, []byte("world!"), got1)
}

func TestInsertFailsWhenFull(t *testing.T) {
	p := newTestPage()
	rec := make([]byte, 100)
	count := 0
	for {
		if _, ok := p.InsertRecord(rec); !ok {
			break
		}
		count++
	}
	require.Greater(t, count, 0)
	_, ok := p.InsertRecord(rec)
	require.False(t, ok)
}

func TestDeleteRecordTombstones(t *testing.T) {
	p := newTestPage()
	s, ok := p.InsertRecord([]byte("gone"))
	require.True(t, ok)

	require.NoError(t, p.DeleteRecord(s))
	_, err := p.GetRecord(s)
	require.ErrorIs(t, err, ErrBadSlot)
}

func TestUpdateRecordInPlaceAndRelocated(t *testing.T) {
	p := newTestPage()
	s, ok := p.InsertRecord([]byte("short"))
	require.True(t, ok)

	require.NoError(t, p.UpdateRecord(s, []byte("ab")))
	got, err := p.GetRecord(s)
	require.NoError(t, err)
	require.Equal(t, []byte("ab"), got)

	require.NoError(t, p.UpdateRecord(s, []byte("a much longer replacement value")))
	got, err = p.GetRecord(s)
	require.NoError(t, err)
	require.Equal(t, []byte("a much longer replacement value"), got)
}

func TestNextPageIDRoundTrip(t *testing.T) {
	buf := make([]byte, disk.PageSize)
	p := New(buf, TypeHeap, disk.PageID(42))
	require.Equal(t, disk.PageID(42), p.NextPageID())
	p.SetNextPageID(disk.PageID(7))
	require.Equal(t, disk.PageID(7), p.NextPageID())
}
