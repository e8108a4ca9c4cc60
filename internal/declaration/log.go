// Package declaration holds the list of declared items and the user's
// preferences, both written through to a database.Store.
package declaration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/franckalain/fooddeclare/internal/database"
	apperrors "github.com/franckalain/fooddeclare/internal/errors"
	"github.com/franckalain/fooddeclare/internal/models"
	"github.com/rs/zerolog/log"
)

// Log is the in-memory item collection, most recent first. It is the
// source of truth for the session; every mutation is written through to
// the store and a failed write does not undo the mutation.
type Log struct {
	store database.Store
	key   string

	mu    sync.RWMutex
	items []models.DeclaredItem
}

// NewLog creates an empty log persisted under database.KeyItems
func NewLog(store database.Store) *Log {
	return &Log{store: store, key: database.KeyItems}
}

// Load replaces the collection with the stored one. Missing data yields an
// empty list; unreadable or corrupt data is logged and also yields an
// empty list.
func (l *Log) Load(ctx context.Context) error {
	data, err := l.store.Load(ctx, l.key)
	if err != nil {
		l.replace(nil)
		log.Warn().Err(err).Str("key", l.key).Msg("Failed to load items, starting empty")
		return apperrors.NewPersistenceError("failed to load saved items", err)
	}
	if len(data) == 0 {
		l.replace(nil)
		return nil
	}

	var items []models.DeclaredItem
	if err := json.Unmarshal(data, &items); err != nil {
		l.replace(nil)
		log.Warn().Err(err).Str("key", l.key).Msg("Saved items are corrupt, starting empty")
		return nil
	}

	// keep the first occurrence of an id so uniqueness holds after a bad write
	seen := make(map[string]bool, len(items))
	kept := items[:0]
	for _, it := range items {
		if it.ID == "" || seen[it.ID] {
			log.Warn().Str("id", it.ID).Msg("Dropping duplicate or anonymous saved item")
			continue
		}
		seen[it.ID] = true
		kept = append(kept, it)
	}

	l.replace(kept)
	log.Info().Int("count", len(kept)).Msg("Items loaded")
	return nil
}

func (l *Log) replace(items []models.DeclaredItem) {
	l.mu.Lock()
	l.items = items
	l.mu.Unlock()
}

// Create prepends item. An id already in the collection is a programming
// error and panics.
func (l *Log) Create(ctx context.Context, item models.DeclaredItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.indexOf(item.ID) >= 0 {
		panic(fmt.Sprintf("declaration: duplicate item id %q", item.ID))
	}
	l.items = append([]models.DeclaredItem{item}, l.items...)

	log.Debug().Str("id", item.ID).Msg("Item created")
	return l.persist(ctx)
}

// Update replaces the mutable fields of the item with the given id.
// It returns a not_found AppError when there is no such item.
func (l *Log) Update(ctx context.Context, id string, fields models.ItemFields) (models.DeclaredItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(id)
	if i < 0 {
		return models.DeclaredItem{}, apperrors.NewNotFoundError(fmt.Sprintf("item %s not found", id), nil)
	}
	updated := l.items[i].WithFields(fields)
	l.items[i] = updated

	log.Debug().Str("id", id).Msg("Item updated")
	return updated, l.persist(ctx)
}

// Delete removes the item with the given id. Unknown ids are a no-op.
func (l *Log) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(id)
	if i < 0 {
		return nil
	}
	l.items = append(l.items[:i:i], l.items[i+1:]...)

	log.Debug().Str("id", id).Msg("Item deleted")
	return l.persist(ctx)
}

// Clear removes every item. Clearing an empty list does nothing.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.items) == 0 {
		return nil
	}
	l.items = nil

	log.Info().Msg("Item list cleared")
	return l.persist(ctx)
}

// Items returns a copy of the collection, most recent first
func (l *Log) Items() []models.DeclaredItem {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot()
}

// Get returns the item with the given id
func (l *Log) Get(id string) (models.DeclaredItem, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.indexOf(id); i >= 0 {
		return l.items[i], true
	}
	return models.DeclaredItem{}, false
}

// Len returns the number of items
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

func (l *Log) indexOf(id string) int {
	for i := range l.items {
		if l.items[i].ID == id {
			return i
		}
	}
	return -1
}

// snapshot must be called with mu held
func (l *Log) snapshot() []models.DeclaredItem {
	out := make([]models.DeclaredItem, len(l.items))
	copy(out, l.items)
	return out
}

// persist writes the collection through; it must be called with mu held
func (l *Log) persist(ctx context.Context) error {
	items := l.items
	if items == nil {
		items = []models.DeclaredItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return apperrors.NewInternalError("failed to encode items", err)
	}
	if err := l.store.Save(ctx, l.key, data); err != nil {
		log.Warn().Err(err).Int("count", len(items)).Msg("Failed to save items, keeping changes in memory")
		return apperrors.NewPersistenceError("changes could not be saved", err)
	}
	return nil
}
