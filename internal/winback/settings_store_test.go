package winback

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSettingsStore(t *testing.T) (*SettingsStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewSettingsStore(client)
	store.now = func() time.Time { return testNow }
	return store, mr
}

func TestSettingsStoreGetDefaults(t *testing.T) {
	store, _ := newTestSettingsStore(t)

	settings, err := store.Get(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", settings.TenantID)
	assert.False(t, settings.Enabled)
	assert.Empty(t, settings.Steps)
	assert.NotNil(t, settings.Steps)
}

func TestSettingsStoreSaveSortsAndIndexes(t *testing.T) {
	store, mr := newTestSettingsStore(t)

	saved, err := store.Save(context.Background(), &Settings{
		TenantID: "tenant-1",
		Enabled:  true,
		Steps: []StepConfig{
			{DayOffset: 60, Channel: ChannelEmail, Template: "Still here"},
			{DayOffset: 14, Channel: ChannelSMS, Template: "Hi {{firstName}}"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 14, saved.Steps[0].DayOffset)
	assert.Equal(t, testNow, saved.UpdatedAt)
	assert.True(t, mr.Exists("winback:settings:tenant-1"))

	loaded, err := store.Get(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, 14, loaded.Steps[0].DayOffset)
	assert.Equal(t, 60, loaded.Steps[1].DayOffset)
	assert.True(t, loaded.Enabled)

	tenants, err := store.Tenants(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant-1"}, tenants)
}

func TestSettingsStoreRejectedUpdateKeepsPrevious(t *testing.T) {
	store, _ := newTestSettingsStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, &Settings{
		TenantID: "tenant-1",
		Enabled:  true,
		Steps:    []StepConfig{{DayOffset: 14, Channel: ChannelSMS, Template: "first"}},
	})
	require.NoError(t, err)

	_, err = store.Save(ctx, &Settings{
		TenantID: "tenant-1",
		Enabled:  true,
		Steps: []StepConfig{
			{DayOffset: 14, Channel: ChannelSMS, Template: "a"},
			{DayOffset: 14, Channel: ChannelEmail, Template: "b"},
			{DayOffset: 30, Channel: "FAX", Template: ""},
		},
	})
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Problems, 3)

	loaded, err := store.Get(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, "first", loaded.Steps[0].Template)
}

func TestSettingsStoreGetCorruptBlob(t *testing.T) {
	store, mr := newTestSettingsStore(t)
	require.NoError(t, mr.Set("winback:settings:tenant-1", "{not json"))

	_, err := store.Get(context.Background(), "tenant-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal settings")
}

func TestSettingsStoreSaveRedisDown(t *testing.T) {
	store, mr := newTestSettingsStore(t)
	mr.Close()

	_, err := store.Save(context.Background(), &Settings{
		TenantID: "tenant-1",
		Steps:    []StepConfig{{DayOffset: 14, Channel: ChannelSMS, Template: "x"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save settings")
}
