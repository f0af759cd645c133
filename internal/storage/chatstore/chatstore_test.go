package chatstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
)

func chat(t *testing.T, name, text string, at time.Time) domain.ChatMessage {
	t.Helper()
	msg, err := domain.NewChatMessage(domain.Peer{ID: domain.UserID("u-" + name), Name: name}, text, at)
	require.NoError(t, err)
	return msg
}

// exerciseStore checks ordering, room isolation and the history limit of a store built with limit 2.
func exerciseStore(t *testing.T, store core.ChatStore) {
	req := require.New(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	// Given
	a := chat(t, "Alice", "first", at)
	b := chat(t, "Bob", "second", at.Add(time.Second))
	c := chat(t, "Alice", "third", at.Add(2*time.Second))
	other := chat(t, "Carol", "elsewhere", at)

	// When
	req.NoError(store.Append(ctx, "r1", a))
	req.NoError(store.Append(ctx, "r1", b))
	req.NoError(store.Append(ctx, "r2", other))
	req.NoError(store.Append(ctx, "r1", c))

	// Then
	got, err := store.History(ctx, "r1")
	req.NoError(err)
	req.Equal([]domain.ChatMessage{b, c}, got)

	got, err = store.History(ctx, "r2")
	req.NoError(err)
	req.Equal([]domain.ChatMessage{other}, got)

	got, err = store.History(ctx, "empty")
	req.NoError(err)
	req.Empty(got)
}

func TestMemory_History(t *testing.T) {
	store := NewMemory(2)
	defer store.Close()
	exerciseStore(t, store)
}

func TestBadger_History(t *testing.T) {
	store, err := OpenBadger("", 2)
	require.NoError(t, err)
	defer store.Close()
	exerciseStore(t, store)
}

func TestBadger_RoomPrefixDoesNotLeak(t *testing.T) {
	req := require.New(t)

	// Given
	store, err := OpenBadger(t.TempDir(), 10)
	req.NoError(err)
	defer store.Close()
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	// When
	req.NoError(store.Append(context.Background(), "r1", chat(t, "Alice", "in r1", at)))
	req.NoError(store.Append(context.Background(), "r10", chat(t, "Bob", "in r10", at)))
	req.NoError(store.Append(context.Background(), "team", chat(t, "Alice", "in team", at)))
	req.NoError(store.Append(context.Background(), "team:secret", chat(t, "Bob", "in team:secret", at)))

	// Then
	for room, want := range map[domain.RoomID]string{
		"r1":          "in r1",
		"team":        "in team",
		"team:secret": "in team:secret",
	} {
		got, err := store.History(context.Background(), room)
		req.NoError(err)
		req.Len(got, 1, room)
		req.Equal(want, got[0].Text)
	}
}

func TestRedis_History(t *testing.T) {
	addr := os.Getenv("CONFERENCE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CONFERENCE_TEST_REDIS_ADDR not set")
	}
	store := NewRedis(addr, "", 0, 2)
	defer store.Close()
	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))
	for _, room := range []string{"r1", "r2", "empty"} {
		require.NoError(t, store.rc.Del(ctx, redisKey(domain.RoomID(room))).Err())
	}
	exerciseStore(t, store)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(Options{Backend: "cassandra"})
	require.Error(t, err)
}
