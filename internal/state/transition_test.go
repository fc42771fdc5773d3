package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verveworks/verve/internal/value"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestAccept(t *testing.T) {
	obj := value.MapOf(
		value.P("id", value.Str("o1")),
		value.P("status", value.Str("open")),
	)

	updated, rec, err := Accept(obj, "order", "status", "open", "paid", now)
	require.NoError(t, err)

	got, _ := value.At(updated, "status")
	assert.Equal(t, value.Str("paid"), got)

	// Original untouched.
	orig, _ := value.At(obj, "status")
	assert.Equal(t, value.Str("open"), orig)

	assert.Equal(t, "order", rec.Object)
	assert.Equal(t, "status", rec.Field)
	assert.Equal(t, "open", rec.From)
	assert.Equal(t, "paid", rec.To)
	assert.Equal(t, "o1", rec.EntityID)
	assert.Equal(t, now, rec.At)
	assert.True(t, value.Equal(updated, rec.Snapshot))
}

func TestAccept_Mismatch(t *testing.T) {
	obj := value.MapOf(value.P("status", value.Str("shipped")))

	_, _, err := Accept(obj, "order", "status", "open", "paid", now)
	require.Error(t, err)

	var me *MismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "shipped", me.Current)
	assert.Equal(t, "open", me.Expected)
}

func TestAccept_CaseSensitive(t *testing.T) {
	// State matching is case-sensitive, unlike guard matching.
	obj := value.MapOf(value.P("status", value.Str("Open")))

	_, _, err := Accept(obj, "order", "status", "open", "paid", now)
	var me *MismatchError
	require.ErrorAs(t, err, &me)
}

func TestAccept_MissingField(t *testing.T) {
	obj := value.MapOf(value.P("id", value.Str("o1")))

	_, _, err := Accept(obj, "order", "status", "open", "paid", now)
	var me *MismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "", me.Current)
}

func TestAccept_NestedField(t *testing.T) {
	obj := value.MapOf(
		value.P("fulfillment", value.MapOf(value.P("stage", value.Str("packing")))),
	)

	updated, rec, err := Accept(obj, "order", "fulfillment.stage", "packing", "shipped", now)
	require.NoError(t, err)

	got, _ := value.At(updated, "fulfillment.stage")
	assert.Equal(t, value.Str("shipped"), got)
	assert.Equal(t, "packing", rec.From)
}

func TestPayload(t *testing.T) {
	obj := value.MapOf(
		value.P("id", value.Str("o1")),
		value.P("status", value.Str("open")),
	)
	_, rec, err := Accept(obj, "order", "status", "open", "paid", now)
	require.NoError(t, err)

	payload := rec.Payload()
	from, _ := value.At(payload, "from")
	to, _ := value.At(payload, "to")
	entityID, _ := value.At(payload, "entity_id")
	assert.Equal(t, value.Str("open"), from)
	assert.Equal(t, value.Str("paid"), to)
	assert.Equal(t, value.Str("o1"), entityID)

	entity, ok := value.At(payload, "entity")
	require.True(t, ok)
	status, _ := value.At(entity, "status")
	assert.Equal(t, value.Str("paid"), status)
}
