package wsclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherchat/backend/internal/models"
)

func TestStore_UpsertReconcilesByTempID(t *testing.T) {
	s := NewStore()

	// Optimistic entry: tempId only, no durable id yet.
	s.Upsert("bob", models.MessagePayload{
		TempID:     "t1",
		FromUserID: "alice",
		ToUserID:   "bob",
		Message:    "hi",
		Status:     models.DeliverySending,
		CreatedAt:  time.Now(),
	})
	require.Equal(t, 1, s.Len("bob"))

	// Server echo: same tempId, durable id and authoritative timestamp.
	s.Upsert("bob", models.MessagePayload{
		ID:         "m1",
		TempID:     "t1",
		FromUserID: "alice",
		ToUserID:   "bob",
		Message:    "hi",
		Status:     models.DeliverySent,
		CreatedAt:  time.Now(),
	})

	msgs := s.Messages("bob")
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, models.DeliverySent, msgs[0].Status)
}

func TestStore_RedeliveryIsIdempotent(t *testing.T) {
	s := NewStore()

	confirmed := models.MessagePayload{
		ID:        "m1",
		TempID:    "t1",
		Message:   "hi",
		Status:    models.DeliverySent,
		CreatedAt: time.Now(),
	}
	s.Upsert("bob", confirmed)
	s.Upsert("bob", confirmed)
	s.Upsert("bob", confirmed)

	assert.Equal(t, 1, s.Len("bob"))
}

func TestStore_OrderIsTimestampThenID(t *testing.T) {
	s := NewStore()
	base := time.Now()

	s.Upsert("bob", models.MessagePayload{ID: "m3", Message: "third", CreatedAt: base.Add(2 * time.Second)})
	s.Upsert("bob", models.MessagePayload{ID: "m1", Message: "first", CreatedAt: base})
	// Same timestamp as m1: id breaks the tie.
	s.Upsert("bob", models.MessagePayload{ID: "m2", Message: "second", CreatedAt: base})

	msgs := s.Messages("bob")
	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
	assert.Equal(t, "m3", msgs[2].ID)
}

func TestStore_MergeHistoryKeepsLiveMessages(t *testing.T) {
	s := NewStore()
	base := time.Now()

	// A live message arrived before the history fetch finished.
	s.Upsert("bob", models.MessagePayload{ID: "m9", Message: "live", CreatedAt: base.Add(time.Minute)})

	s.Merge("bob", []models.MessagePayload{
		{ID: "m1", Message: "old", CreatedAt: base},
		{ID: "m9", Message: "live", CreatedAt: base.Add(time.Minute)},
	})

	msgs := s.Messages("bob")
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m9", msgs[1].ID)
}

func TestStore_SetStatus(t *testing.T) {
	s := NewStore()
	s.Upsert("bob", models.MessagePayload{TempID: "t1", Status: models.DeliverySending, CreatedAt: time.Now()})

	assert.True(t, s.SetStatus("bob", "t1", models.DeliveryFailed))
	assert.Equal(t, models.DeliveryFailed, s.Messages("bob")[0].Status)

	assert.False(t, s.SetStatus("bob", "missing", models.DeliveryFailed))
	assert.False(t, s.SetStatus("nobody", "t1", models.DeliveryFailed))
}
