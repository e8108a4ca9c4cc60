package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/franckalain/fooddeclare/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBackends(t *testing.T) map[string]DB {
	t.Helper()

	sqlite, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	file, err := NewFileStore(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)

	return map[string]DB{
		"sqlite": sqlite,
		"file":   file,
		"memory": NewMemoryStore(),
	}
}

func TestStore_LoadMissingKey(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			data, err := db.Load(context.Background(), KeyItems)
			require.NoError(t, err)
			assert.Nil(t, data)
		})
	}
}

func TestStore_SaveAndOverwrite(t *testing.T) {
	ctx := context.Background()
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Save(ctx, KeyCountry, []byte(`"Japan"`)))
			require.NoError(t, db.Save(ctx, KeyCountry, []byte(`"Canada"`)))

			data, err := db.Load(ctx, KeyCountry)
			require.NoError(t, err)
			assert.Equal(t, `"Canada"`, string(data))
		})
	}
}

func TestScanHistory_NewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			for i, status := range []string{models.ScanCompleted, models.ScanFailed, models.ScanCompleted} {
				require.NoError(t, db.SaveScan(ctx, &models.ScanRecord{
					ID:        string(rune('a' + i)),
					Kind:      models.InputText,
					Status:    status,
					Query:     "noodles",
					CreatedAt: base.Add(time.Duration(i) * time.Minute),
				}))
			}

			scans, err := db.RecentScans(ctx, 2)
			require.NoError(t, err)
			require.Len(t, scans, 2)
			assert.Equal(t, "c", scans[0].ID)
			assert.Equal(t, "b", scans[1].ID)
			assert.Equal(t, models.ScanFailed, scans[1].Status)
			assert.Equal(t, models.InputText, scans[1].Kind)
			assert.True(t, scans[0].CreatedAt.Equal(base.Add(2*time.Minute)))
		})
	}
}

func TestFileStore_RejectsPathKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	err = store.Save(context.Background(), "../escape", []byte("x"))
	assert.Error(t, err)
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), KeyItems, []byte("[]")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, KeyItems+".json", entries[0].Name())
}

func TestMemoryStore_FailSaves(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, KeyItems, []byte("[1]")))

	store.FailSaves(assert.AnError)
	assert.ErrorIs(t, store.Save(ctx, KeyItems, []byte("[2]")), assert.AnError)

	data, err := store.Load(ctx, KeyItems)
	require.NoError(t, err)
	assert.Equal(t, "[1]", string(data))
}

func TestNewDB_UnknownType(t *testing.T) {
	_, err := NewDB("redis", "")
	assert.Error(t, err)
}
