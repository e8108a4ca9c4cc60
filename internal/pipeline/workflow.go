package pipeline

import (
	"context"
	"errors"
	"sync"

	apperrors "github.com/franckalain/fooddeclare/internal/errors"
	"github.com/franckalain/fooddeclare/internal/models"
	"github.com/rs/zerolog/log"
)

// State is the position of the scan workflow
type State string

const (
	StateReady      State = "ready"
	StateProcessing State = "processing"
	StateEditing    State = "editing"
)

var (
	// ErrBusy is returned when a scan or form is already open
	ErrBusy = errors.New("a scan is already in progress")
	// ErrStale is returned by Scan when the workflow was cancelled while recognition ran
	ErrStale = errors.New("scan was abandoned")
	// ErrNotEditing is returned by form operations outside the Editing state
	ErrNotEditing = errors.New("no record is being edited")
)

// ItemLog is the list the workflow commits into
type ItemLog interface {
	Create(ctx context.Context, item models.DeclaredItem) error
	Update(ctx context.Context, id string, fields models.ItemFields) (models.DeclaredItem, error)
	Get(id string) (models.DeclaredItem, bool)
}

// Workflow is the scan state machine: Ready -> Processing -> Editing -> Ready.
// Only one scan may be in flight; a scan cancelled while processing is
// discarded when its result arrives.
type Workflow struct {
	resolver   Resolver
	reconciler *Reconciler
	items      ItemLog

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
	record *EditableRecord
}

// NewWorkflow creates a workflow in the Ready state
func NewWorkflow(resolver Resolver, reconciler *Reconciler, items ItemLog) *Workflow {
	return &Workflow{
		resolver:   resolver,
		reconciler: reconciler,
		items:      items,
		state:      StateReady,
	}
}

// State returns the current state
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Current returns a copy of the record being edited
func (w *Workflow) Current() (EditableRecord, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateEditing || w.record == nil {
		return EditableRecord{}, false
	}
	return *w.record, true
}

// Scan resolves in and opens the resulting draft for editing. It blocks
// for the duration of recognition. If Cancel runs meanwhile the
// recognition context is cancelled and ErrStale is returned.
func (w *Workflow) Scan(ctx context.Context, in models.PendingInput) (EditableRecord, error) {
	w.mu.Lock()
	if w.state != StateReady {
		w.mu.Unlock()
		return EditableRecord{}, ErrBusy
	}
	w.state = StateProcessing
	w.gen++
	gen := w.gen
	scanCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	log.Debug().Uint64("generation", gen).Str("kind", string(in.Kind)).Msg("Scan started")
	draft := w.resolver.Resolve(scanCtx, in)

	w.mu.Lock()
	defer w.mu.Unlock()
	cancel()

	if w.gen != gen {
		log.Debug().Uint64("generation", gen).Msg("Dropping result of abandoned scan")
		return EditableRecord{}, ErrStale
	}

	w.cancel = nil
	rec := OpenForCreate(&draft)
	w.record = &rec
	w.state = StateEditing
	return rec, nil
}

// Manual opens a blank record
func (w *Workflow) Manual() (EditableRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateReady {
		return EditableRecord{}, ErrBusy
	}
	rec := OpenForCreate(nil)
	w.record = &rec
	w.state = StateEditing
	return rec, nil
}

// Edit opens the committed item id
func (w *Workflow) Edit(id string) (EditableRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateReady {
		return EditableRecord{}, ErrBusy
	}
	item, ok := w.items.Get(id)
	if !ok {
		return EditableRecord{}, apperrors.NewNotFoundError("item not found", nil)
	}
	rec := OpenForEdit(item)
	w.record = &rec
	w.state = StateEditing
	return rec, nil
}

// Step moves the quantity of the open record by delta, flooring at 1
func (w *Workflow) Step(delta int) (EditableRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateEditing || w.record == nil {
		return EditableRecord{}, ErrNotEditing
	}
	w.record.Step(delta)
	return *w.record, nil
}

// Save applies fields to the open record and commits it, creating or
// updating the item. A validation failure keeps the form open. A
// persistence failure still returns the item, which stays in the list.
func (w *Workflow) Save(ctx context.Context, fields models.ItemFields) (models.DeclaredItem, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateEditing || w.record == nil {
		return models.DeclaredItem{}, ErrNotEditing
	}

	w.record.Apply(fields)

	var existing *string
	if id, ok := w.record.ExistingID(); ok {
		existing = &id
	}

	item, err := w.reconciler.Commit(*w.record, existing)
	if err != nil {
		return models.DeclaredItem{}, err
	}

	if existing != nil {
		item, err = w.items.Update(ctx, *existing, item.Fields())
		if err != nil && apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			w.reset()
			return models.DeclaredItem{}, err
		}
	} else {
		err = w.items.Create(ctx, item)
	}

	w.reset()
	log.Info().Str("id", item.ID).Bool("edit", existing != nil).Msg("Item saved")
	return item, err
}

// Cancel returns to Ready from any state, discarding the open record and
// abandoning a scan in flight.
func (w *Workflow) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateReady {
		log.Debug().Str("from", string(w.state)).Msg("Workflow cancelled")
	}
	w.gen++
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.reset()
}

func (w *Workflow) reset() {
	w.record = nil
	w.state = StateReady
}
