package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGetDelete(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got, "отсутствующая сессия отдаётся как nil, nil")

	sess := &Session{Identity: "u1", Scene: "search", Step: 2}
	require.NoError(t, sess.SetState(map[string]string{"query": "K20A"}))
	require.NoError(t, store.Put(ctx, sess))

	got, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "search", got.Scene)
	assert.Equal(t, 2, got.Step)

	var state map[string]string
	require.NoError(t, got.DecodeState(&state))
	assert.Equal(t, "K20A", state["query"])

	require.NoError(t, store.Delete(ctx, "u1"))
	got, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	current := time.Now()
	store.now = func() time.Time { return current }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Session{Identity: "u1", Scene: "search"}))

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, got)

	current = current.Add(2 * time.Minute)
	got, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got, "истёкшая сессия неотличима от отсутствующей")
}

func TestSession_ClearDropsSceneOnly(t *testing.T) {
	sess := &Session{Identity: "u1", Scene: "order", Step: 3}
	require.NoError(t, sess.SetState(map[string]int{"qty": 2}))

	sess.Clear()
	assert.Equal(t, "u1", sess.Identity)
	assert.False(t, sess.InScene())
	assert.Equal(t, 0, sess.Step)
	assert.Empty(t, sess.State)
}
