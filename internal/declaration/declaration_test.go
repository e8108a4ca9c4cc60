package declaration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/franckalain/fooddeclare/internal/database"
	apperrors "github.com/franckalain/fooddeclare/internal/errors"
	"github.com/franckalain/fooddeclare/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id string) models.DeclaredItem {
	return models.DeclaredItem{
		ID:        id,
		Brand:     "Acme",
		Name:      "Crackers " + id,
		Weight:    "200g",
		Quantity:  1,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func ids(items []models.DeclaredItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func storedIDs(t *testing.T, store database.Store) []string {
	t.Helper()
	data, err := store.Load(context.Background(), database.KeyItems)
	require.NoError(t, err)
	var items []models.DeclaredItem
	require.NoError(t, json.Unmarshal(data, &items))
	return ids(items)
}

func TestLog_CreatePrependsAndWritesThrough(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	l := NewLog(store)

	require.NoError(t, l.Create(ctx, item("a")))
	require.NoError(t, l.Create(ctx, item("b")))

	assert.Equal(t, []string{"b", "a"}, ids(l.Items()))
	assert.Equal(t, []string{"b", "a"}, storedIDs(t, store))
}

func TestLog_CreateDuplicatePanics(t *testing.T) {
	l := NewLog(database.NewMemoryStore())
	require.NoError(t, l.Create(context.Background(), item("a")))

	assert.Panics(t, func() {
		_ = l.Create(context.Background(), item("a"))
	})
	assert.Equal(t, 1, l.Len())
}

func TestLog_Update(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	l := NewLog(store)
	require.NoError(t, l.Create(ctx, item("a")))
	require.NoError(t, l.Create(ctx, item("b")))

	fields := item("a").Fields()
	fields.Quantity = 3
	fields.Name = "Rice Crackers"
	updated, err := l.Update(ctx, "a", fields)
	require.NoError(t, err)

	assert.Equal(t, "a", updated.ID)
	assert.Equal(t, item("a").CreatedAt, updated.CreatedAt)
	assert.Equal(t, 3, updated.Quantity)

	got, ok := l.Get("a")
	require.True(t, ok)
	assert.Equal(t, updated, got)
	assert.Equal(t, []string{"b", "a"}, ids(l.Items()))

	other, _ := l.Get("b")
	assert.Equal(t, item("b"), other)
}

func TestLog_UpdateMissing(t *testing.T) {
	l := NewLog(database.NewMemoryStore())

	_, err := l.Update(context.Background(), "ghost", item("ghost").Fields())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	assert.Zero(t, l.Len())
}

func TestLog_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := NewLog(database.NewMemoryStore())
	require.NoError(t, l.Create(ctx, item("a")))
	require.NoError(t, l.Create(ctx, item("b")))

	require.NoError(t, l.Delete(ctx, "a"))
	before := l.Items()
	require.NoError(t, l.Delete(ctx, "a"))
	assert.Equal(t, before, l.Items())
	assert.Equal(t, []string{"b"}, ids(l.Items()))
}

func TestLog_Clear(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	l := NewLog(store)
	require.NoError(t, l.Create(ctx, item("a")))
	require.NoError(t, l.Create(ctx, item("b")))

	require.NoError(t, l.Clear(ctx))
	assert.Empty(t, l.Items())
	assert.Empty(t, storedIDs(t, store))

	require.NoError(t, l.Clear(ctx))
	assert.Empty(t, l.Items())
}

func TestLog_ItemsIsACopy(t *testing.T) {
	ctx := context.Background()
	l := NewLog(database.NewMemoryStore())
	require.NoError(t, l.Create(ctx, item("a")))

	items := l.Items()
	items[0].Name = "changed"

	got, _ := l.Get("a")
	assert.Equal(t, "Crackers a", got.Name)
}

func TestLog_PersistenceFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	l := NewLog(store)
	require.NoError(t, l.Create(ctx, item("a")))

	store.FailSaves(errors.New("quota exceeded"))

	err := l.Create(ctx, item("b"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePersistence))
	assert.Equal(t, []string{"b", "a"}, ids(l.Items()))

	err = l.Delete(ctx, "a")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePersistence))
	assert.Equal(t, []string{"b"}, ids(l.Items()))

	// the store still has the last successful write
	assert.Equal(t, []string{"a"}, storedIDs(t, store))
}

func TestLog_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		l := NewLog(database.NewMemoryStore())
		require.NoError(t, l.Load(ctx))
		assert.Empty(t, l.Items())
	})

	t.Run("round trip", func(t *testing.T) {
		store := database.NewMemoryStore()
		first := NewLog(store)
		require.NoError(t, first.Create(ctx, item("a")))
		require.NoError(t, first.Create(ctx, item("b")))

		second := NewLog(store)
		require.NoError(t, second.Load(ctx))
		assert.Equal(t, first.Items(), second.Items())
	})

	t.Run("corrupt", func(t *testing.T) {
		store := database.NewMemoryStore()
		require.NoError(t, store.Save(ctx, database.KeyItems, []byte("{not json")))

		l := NewLog(store)
		require.NoError(t, l.Load(ctx))
		assert.Empty(t, l.Items())
	})

	t.Run("duplicates dropped", func(t *testing.T) {
		store := database.NewMemoryStore()
		data, err := json.Marshal([]models.DeclaredItem{item("a"), item("b"), item("a"), item("")})
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, database.KeyItems, data))

		l := NewLog(store)
		require.NoError(t, l.Load(ctx))
		assert.Equal(t, []string{"a", "b"}, ids(l.Items()))
	})
}

// Any sequence of create, update and delete leaves exactly one entry per surviving id.
func TestLog_RandomSequencesKeepIDsUnique(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		l := NewLog(database.NewMemoryStore())
		alive := map[string]bool{}
		next := 0

		for step := 0; step < 200; step++ {
			id := fmt.Sprintf("id-%d", rng.Intn(next+1))
			switch rng.Intn(3) {
			case 0:
				id = fmt.Sprintf("id-%d", next)
				next++
				require.NoError(t, l.Create(ctx, item(id)))
				alive[id] = true
			case 1:
				_, err := l.Update(ctx, id, item(id).Fields())
				if alive[id] {
					require.NoError(t, err)
				} else {
					require.Error(t, err)
				}
			case 2:
				require.NoError(t, l.Delete(ctx, id))
				delete(alive, id)
			}
		}

		got := ids(l.Items())
		want := make([]string, 0, len(alive))
		for id := range alive {
			want = append(want, id)
		}
		sort.Strings(got)
		sort.Strings(want)
		assert.Equal(t, want, got)
	}
}

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()

	p := NewPreferences(store)
	require.NoError(t, p.Load(ctx))
	assert.Equal(t, DefaultCountry, p.Country())

	require.NoError(t, p.SetCountry(ctx, "Japan"))
	err := p.SetCountry(ctx, "Atlantis")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	assert.Equal(t, "Japan", p.Country())

	reloaded := NewPreferences(store)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, "Japan", reloaded.Country())
}

func TestPreferences_LegacyAndUnknownValues(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()

	require.NoError(t, store.Save(ctx, database.KeyCountry, []byte("Canada")))
	p := NewPreferences(store)
	require.NoError(t, p.Load(ctx))
	assert.Equal(t, "Canada", p.Country())

	require.NoError(t, store.Save(ctx, database.KeyCountry, []byte(`"Narnia"`)))
	p = NewPreferences(store)
	require.NoError(t, p.Load(ctx))
	assert.Equal(t, DefaultCountry, p.Country())
}

func TestPreferences_SaveFailure(t *testing.T) {
	store := database.NewMemoryStore()
	store.FailSaves(errors.New("disk full"))
	p := NewPreferences(store)

	err := p.SetCountry(context.Background(), "Spain")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePersistence))
	assert.Equal(t, "Spain", p.Country())
}

func TestCountries(t *testing.T) {
	all := Countries()
	assert.Len(t, all, 27)
	assert.True(t, sort.StringsAreSorted(all))

	all[0] = "Mutated"
	assert.Equal(t, "Australia", Countries()[0])

	assert.Equal(t, []string{"South Africa", "South Korea"}, SearchCountries(" south "))
	assert.Equal(t, []string{"United Arab Emirates", "United Kingdom", "United States"}, SearchCountries("UNITED"))
	assert.Len(t, SearchCountries(""), 27)
	assert.Empty(t, SearchCountries("zz"))
}
