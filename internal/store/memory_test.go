package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ninjadash54/simonsays/internal/game"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	s := game.NewSession(game.NewDriver(game.NewEngine()))

	require.NoError(t, st.Save(ctx, s))
	got, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Same(t, s, got)
	require.Equal(t, 1, st.Len())

	require.NoError(t, st.Delete(ctx, s.ID))
	_, err = st.Get(ctx, s.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, st.Delete(ctx, "missing"))
}

func TestMemoryStoreRejectsAnonymousSession(t *testing.T) {
	require.Error(t, NewMemoryStore().Save(context.Background(), &game.Session{}))
}

func TestPruneDropsIdleSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st := NewMemoryStore().(*memory)
	st.now = func() time.Time { return now }

	idle := game.NewSession(game.NewDriver(game.NewEngine()))
	busy := game.NewSession(game.NewDriver(game.NewEngine()))
	require.NoError(t, st.Save(ctx, idle))
	require.NoError(t, st.Save(ctx, busy))

	now = now.Add(20 * time.Minute)
	_, err := st.Get(ctx, busy.ID)
	require.NoError(t, err)

	now = now.Add(15 * time.Minute)
	require.Equal(t, 1, st.Prune(ctx, 30*time.Minute))
	_, err = st.Get(ctx, idle.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = st.Get(ctx, busy.ID)
	require.NoError(t, err)
	require.Equal(t, 0, st.Prune(ctx, 30*time.Minute))
}
