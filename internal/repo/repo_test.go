package repo

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verveworks/verve/internal/lang"
	"github.com/verveworks/verve/internal/value"
)

func order(id string, amount float64, status string) value.Map {
	return value.MapOf(
		value.P("id", value.Str(id)),
		value.P("amount", value.Num(amount)),
		value.P("status", value.Str(status)),
	)
}

func TestStore_CreatedThenUpdated(t *testing.T) {
	m := NewManager()

	ev := m.Store("orders", order("o1", 10, "open"))
	assert.Equal(t, Created, ev.Type)
	assert.Equal(t, "o1", ev.EntityID)
	assert.Nil(t, ev.Old)
	assert.Equal(t, int64(1), ev.Seq)

	ev = m.Store("orders", order("o1", 10, "paid"))
	assert.Equal(t, Updated, ev.Type)
	require.NotNil(t, ev.Old)
	oldStatus, _ := value.At(ev.Old, "status")
	assert.Equal(t, value.Str("open"), oldStatus)
	newStatus, _ := value.At(ev.New, "status")
	assert.Equal(t, value.Str("paid"), newStatus)
	assert.Equal(t, int64(2), ev.Seq)

	assert.Equal(t, 1, m.Len("orders"))
}

func TestStore_NoIDAlwaysCreates(t *testing.T) {
	m := NewManager()

	anon := value.MapOf(value.P("amount", value.Num(1)))
	ev1 := m.Store("events", anon)
	ev2 := m.Store("events", anon)
	assert.Equal(t, Created, ev1.Type)
	assert.Equal(t, Created, ev2.Type)
	assert.Equal(t, 2, m.Len("events"))
}

func TestRetrieve_MostRecentFirst(t *testing.T) {
	m := NewManager()
	m.Store("orders", order("o1", 10, "open"))
	m.Store("orders", order("o2", 20, "open"))
	m.Store("orders", order("o3", 30, "paid"))

	got, err := m.Retrieve("orders", nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	first, _ := value.At(got[0], "id")
	assert.Equal(t, value.Str("o3"), first)
	last, _ := value.At(got[2], "id")
	assert.Equal(t, value.Str("o1"), last)
}

func TestRetrieve_UpdateMovesToFront(t *testing.T) {
	m := NewManager()
	m.Store("orders", order("o1", 10, "open"))
	m.Store("orders", order("o2", 20, "open"))
	m.Store("orders", order("o1", 10, "paid"))

	got, err := m.Retrieve("orders", nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	first, _ := value.At(got[0], "id")
	assert.Equal(t, value.Str("o1"), first)
}

func TestRetrieve_Filtered(t *testing.T) {
	m := NewManager()
	m.Store("orders", order("o1", 10, "open"))
	m.Store("orders", order("o2", 20, "paid"))
	m.Store("orders", order("o3", 30, "open"))

	got, err := m.Retrieve("orders", &lang.Predicate{
		Path: "status", Op: lang.OpEq, Operand: value.Str("open"),
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRetrieve_AbsentRepositoryIsEmpty(t *testing.T) {
	m := NewManager()
	got, err := m.Retrieve("nothing", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDelete(t *testing.T) {
	m := NewManager()
	m.Store("orders", order("o1", 10, "open"))
	m.Store("orders", order("o2", 20, "open"))

	ev, found, err := m.Delete("orders", &lang.Predicate{
		Path: "id", Op: lang.OpEq, Operand: value.Str("o1"),
	})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Deleted, ev.Type)
	assert.Equal(t, "o1", ev.EntityID)
	require.NotNil(t, ev.Old)
	assert.Equal(t, 1, m.Len("orders"))

	_, found, err = m.Delete("orders", &lang.Predicate{
		Path: "id", Op: lang.OpEq, Operand: value.Str("o9"),
	})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete_NilFilterTakesMostRecent(t *testing.T) {
	m := NewManager()
	m.Store("orders", order("o1", 10, "open"))
	m.Store("orders", order("o2", 20, "open"))

	ev, found, err := m.Delete("orders", nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "o2", ev.EntityID)
}

func TestStore_ClockStamps(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewManagerAt(func() time.Time { return fixed })

	ev := m.Store("orders", order("o1", 10, "open"))
	assert.Equal(t, fixed, ev.At)
}

func TestStore_ConcurrentSequencing(t *testing.T) {
	m := NewManager()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Store("events", value.MapOf(value.P("n", value.Num(1))))
		}()
	}
	wg.Wait()

	assert.Equal(t, n, m.Len("events"))
}
