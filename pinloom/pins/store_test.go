package pins

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pinloom/pinloom/config"
	"github.com/ZanzyTHEbar/pinloom/pinloom/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.Open(context.Background(), config.DatabaseConfig{
		DSN:  filepath.Join(t.TempDir(), "pins.db"),
		Type: db.TypeSQLite,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := NewStore(conn)
	clock := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return store
}

func TestStore_CreateAppliesDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pin, err := store.Create(ctx, "user-1", NewPin{
		Title:          "  Sunset ",
		Description:    "Golden hour over the bay",
		ImageURL:       "https://ik.example.com/sunset.jpg",
		FileID:         " file_123 ",
		Hashtags:       []string{"#Sunset", "sea", "sunset", " "},
		Transformation: &Transformation{Height: 10, Width: 10, Quality: 80},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, pin.ID)
	assert.Equal(t, "Sunset", pin.Title)
	assert.Equal(t, []string{"sunset", "sea"}, pin.Hashtags)
	assert.Equal(t, Transformation{Height: DefaultHeight, Width: DefaultWidth, Quality: 80}, pin.Transformation)

	got, err := store.Get(ctx, pin.ID)
	require.NoError(t, err)
	assert.Equal(t, pin.Title, got.Title)
	assert.Equal(t, pin.Hashtags, got.Hashtags)
	assert.Equal(t, "file_123", got.FileID)
	assert.Equal(t, pin.Transformation, got.Transformation)
	assert.True(t, pin.CreatedAt.Equal(got.CreatedAt))
}

func TestStore_CreateValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cases := []NewPin{
		{Description: "d", ImageURL: "u"},
		{Title: "t", ImageURL: "u"},
		{Title: "t", Description: "d", ImageURL: "   "},
	}
	for _, in := range cases {
		_, err := store.Create(ctx, "user-1", in)
		assert.ErrorIs(t, err, ErrMissingFields)
	}

	_, err := store.Create(ctx, "", NewPin{Title: "t", Description: "d", ImageURL: "u"})
	assert.Error(t, err)

	pin, err := store.Create(ctx, "user-1", NewPin{Title: "t", Description: "d", ImageURL: "u",
		Transformation: &Transformation{Quality: 500}})
	require.NoError(t, err)
	assert.Equal(t, DefaultQuality, pin.Transformation.Quality)
	assert.Equal(t, []string{}, pin.Hashtags)
	assert.Empty(t, pin.FileID, "fileId is optional")
}

func TestStore_ListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	empty, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for _, title := range []string{"first", "second", "third"} {
		_, err := store.Create(ctx, "user-1", NewPin{Title: title, Description: "d", ImageURL: "u"})
		require.NoError(t, err)
	}

	pins, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pins, 3)
	assert.Equal(t, "third", pins[0].Title)
	assert.Equal(t, "first", pins[2].Title)

	pins, err = store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, pins, 2)
}

func TestStore_GetAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	pin, err := store.Create(ctx, "owner", NewPin{Title: "t", Description: "d", ImageURL: "u"})
	require.NoError(t, err)

	assert.ErrorIs(t, store.Delete(ctx, "intruder", pin.ID), ErrForbidden)
	assert.ErrorIs(t, store.Delete(ctx, "owner", "missing"), ErrNotFound)
	require.NoError(t, store.Delete(ctx, "owner", pin.ID))

	_, err = store.Get(ctx, pin.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
