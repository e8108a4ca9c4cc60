package pipeline

import (
	"errors"
	"math"
	"strings"
	"time"

	apperrors "github.com/franckalain/fooddeclare/internal/errors"
	"github.com/franckalain/fooddeclare/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Origin tells Open what an editable record starts from: Blank,
// FromDraft or FromExisting.
type Origin interface {
	origin()
}

// Blank is a manual entry with every field defaulted
type Blank struct{}

// FromDraft starts from a recognition outcome
type FromDraft struct {
	Draft models.ScanDraft
}

// FromExisting starts from a committed item
type FromExisting struct {
	Item models.DeclaredItem
}

func (Blank) origin()        {}
func (FromDraft) origin()    {}
func (FromExisting) origin() {}

// EditableRecord is the form the user edits before committing
type EditableRecord struct {
	Brand       string          `json:"brand"`
	Name        string          `json:"name"`
	Ingredients string          `json:"ingredients"`
	Weight      string          `json:"weight"`
	Quantity    int             `json:"quantity"`
	Preview     *models.Preview `json:"preview,omitempty"`

	// Completeness and FailureReason describe the draft the record was opened from
	Completeness  models.Completeness `json:"completeness,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`

	// set only when opened for edit
	existingID string
	createdAt  time.Time
}

// ExistingID returns the id of the item being edited, if any
func (r *EditableRecord) ExistingID() (string, bool) {
	return r.existingID, r.existingID != ""
}

// Increment adds one to the quantity
func (r *EditableRecord) Increment() {
	r.Quantity++
}

// Decrement removes one from the quantity, never going below 1
func (r *EditableRecord) Decrement() {
	if r.Quantity > 1 {
		r.Quantity--
	}
}

// Step moves the quantity by delta in one go, saturating at the largest
// int and never going below 1
func (r *EditableRecord) Step(delta int) {
	q := r.Quantity
	if delta > 0 && q > math.MaxInt-delta {
		q = math.MaxInt
	} else {
		q += delta
	}
	if q < 1 {
		q = 1
	}
	r.Quantity = q
}

// Fields returns the mutable fields as entered
func (r *EditableRecord) Fields() models.ItemFields {
	return models.ItemFields{
		Brand:       r.Brand,
		Name:        r.Name,
		Ingredients: r.Ingredients,
		Weight:      r.Weight,
		Quantity:    r.Quantity,
		Preview:     r.Preview,
	}
}

// Apply replaces the mutable fields with f
func (r *EditableRecord) Apply(f models.ItemFields) {
	r.Brand = f.Brand
	r.Name = f.Name
	r.Ingredients = f.Ingredients
	r.Weight = f.Weight
	r.Quantity = f.Quantity
	r.Preview = f.Preview
}

// Open builds an editable record from any origin
func Open(o Origin) EditableRecord {
	switch v := o.(type) {
	case FromDraft:
		return EditableRecord{
			Brand:       v.Draft.Brand,
			Name:        v.Draft.Name,
			Ingredients: v.Draft.Ingredients,
			Weight:      v.Draft.Weight,
			Quantity:    v.Draft.Quantity,
			Preview:     v.Draft.Preview,

			Completeness:  v.Draft.Completeness,
			FailureReason: v.Draft.FailureReason,
		}
	case FromExisting:
		return EditableRecord{
			Brand:       v.Item.Brand,
			Name:        v.Item.Name,
			Ingredients: v.Item.Ingredients,
			Weight:      v.Item.Weight,
			Quantity:    v.Item.Quantity,
			Preview:     v.Item.Preview,
			existingID:  v.Item.ID,
			createdAt:   v.Item.CreatedAt,
		}
	default:
		return EditableRecord{Quantity: 1, Completeness: models.DraftBlank}
	}
}

// OpenForCreate copies draft verbatim, or returns a blank record when draft is nil
func OpenForCreate(draft *models.ScanDraft) EditableRecord {
	if draft == nil {
		return Open(Blank{})
	}
	return Open(FromDraft{Draft: *draft})
}

// OpenForEdit copies the mutable fields of item and carries its id and creation time
func OpenForEdit(item models.DeclaredItem) EditableRecord {
	return Open(FromExisting{Item: item})
}

// commitForm is what a record must satisfy to be committed
type commitForm struct {
	Brand    string `validate:"required"`
	Name     string `validate:"required"`
	Weight   string `validate:"required"`
	Quantity int    `validate:"min=1"`
}

// Reconciler validates editable records and turns them into committed items
type Reconciler struct {
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// ReconcilerOption configures a Reconciler
type ReconcilerOption func(*Reconciler)

// WithClock overrides time.Now
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// WithIDGenerator overrides uuid generation
func WithIDGenerator(newID func() string) ReconcilerOption {
	return func(r *Reconciler) { r.newID = newID }
}

// NewReconciler creates a reconciler minting uuids and using the wall clock
func NewReconciler(opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		validate: validator.New(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Commit validates record and produces a DeclaredItem. Brand, name and
// weight must be non-blank and quantity at least 1; invalid input is
// rejected with a ValidationError, never corrected. With existingID the
// item keeps that id and the original creation time; otherwise a new id
// and timestamp are minted.
func (c *Reconciler) Commit(record EditableRecord, existingID *string) (models.DeclaredItem, error) {
	item := models.DeclaredItem{
		Brand:       strings.TrimSpace(record.Brand),
		Name:        strings.TrimSpace(record.Name),
		Ingredients: strings.TrimSpace(record.Ingredients),
		Weight:      strings.TrimSpace(record.Weight),
		Quantity:    record.Quantity,
		Preview:     record.Preview,
	}

	if err := c.check(item); err != nil {
		return models.DeclaredItem{}, err
	}

	if existingID != nil {
		if *existingID == "" || *existingID != record.existingID {
			return models.DeclaredItem{}, apperrors.NewConflictError("record was not opened for this item", nil)
		}
		item.ID = *existingID
		item.CreatedAt = record.createdAt
		return item, nil
	}

	item.ID = c.newID()
	item.CreatedAt = c.now()
	return item, nil
}

func (c *Reconciler) check(item models.DeclaredItem) error {
	err := c.validate.Struct(commitForm{
		Brand:    item.Brand,
		Name:     item.Name,
		Weight:   item.Weight,
		Quantity: item.Quantity,
	})
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewInternalError("failed to validate record", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return apperrors.NewValidationError(fields...)
}
