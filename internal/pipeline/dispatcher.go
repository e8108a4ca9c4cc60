// Package pipeline resolves pending inputs into drafts, reconciles drafts
// and existing items into editable records, and drives the scan workflow.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/franckalain/fooddeclare/internal/ml"
	"github.com/franckalain/fooddeclare/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single recognition call
const DefaultTimeout = 30 * time.Second

// Recognizer is the part of ml.Model the dispatcher uses
type Recognizer interface {
	RecognizeImage(ctx context.Context, data []byte, mimeType string) (*models.ProductInfo, error)
	RecognizeText(ctx context.Context, query string) (*models.ProductInfo, error)
}

// ScanRecorder stores one history row per resolved input
type ScanRecorder interface {
	SaveScan(ctx context.Context, scan *models.ScanRecord) error
}

// Resolver turns a pending input into a draft
type Resolver interface {
	Resolve(ctx context.Context, in models.PendingInput) models.ScanDraft
}

// Dispatcher sends pending inputs to the recognition service and always
// returns a draft. Failures produce a partial draft holding whatever the
// user supplied.
type Dispatcher struct {
	recognizer Recognizer
	timeout    time.Duration
	recorder   ScanRecorder
	now        func() time.Time
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithScanRecorder records every resolve in r
func WithScanRecorder(r ScanRecorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithDispatcherClock overrides time.Now
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher. A non-positive timeout selects DefaultTimeout.
func NewDispatcher(r Recognizer, timeout time.Duration, opts ...DispatcherOption) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := &Dispatcher{recognizer: r, timeout: timeout, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resolve runs recognition for in. It never fails: a recognition error,
// timeout or malformed answer yields a partial draft.
func (d *Dispatcher) Resolve(ctx context.Context, in models.PendingInput) models.ScanDraft {
	start := d.now()
	info, err := d.recognize(ctx, in)

	var draft models.ScanDraft
	if err != nil {
		draft = failedDraft(in, err)
		log.Warn().
			Err(err).
			Str("kind", string(in.Kind)).
			Msg("Recognition failed, returning partial draft")
	} else {
		draft = completedDraft(in, info)
		log.Info().
			Str("kind", string(in.Kind)).
			Str("name", draft.Name).
			Dur("elapsed", d.now().Sub(start)).
			Msg("Recognition completed")
	}

	d.record(ctx, in, draft, err)
	return draft
}

func (d *Dispatcher) recognize(ctx context.Context, in models.PendingInput) (info *models.ProductInfo, err error) {
	if d.recognizer == nil {
		return nil, errors.New("no recognition service configured")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			info, err = nil, fmt.Errorf("recognition panicked: %v", r)
		}
	}()

	switch in.Kind {
	case models.InputImage:
		if len(in.Payload) == 0 {
			return nil, errors.New("image input has no payload")
		}
		info, err = d.recognizer.RecognizeImage(ctx, in.Payload, in.MIMEType)
	case models.InputText:
		if strings.TrimSpace(in.Query) == "" {
			return nil, errors.New("text input has no query")
		}
		info, err = d.recognizer.RecognizeText(ctx, in.Query)
	default:
		return nil, fmt.Errorf("unknown input kind %q", in.Kind)
	}

	if err == nil && info == nil {
		err = ml.ErrMalformedResponse
	}
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("recognition timed out after %s: %w", d.timeout, err)
	}
	return info, err
}

func completedDraft(in models.PendingInput, info *models.ProductInfo) models.ScanDraft {
	draft := models.ScanDraft{
		Brand:        strings.TrimSpace(info.Brand),
		Name:         strings.TrimSpace(info.Name),
		Ingredients:  strings.TrimSpace(info.Ingredients),
		Weight:       strings.TrimSpace(info.Weight),
		Quantity:     info.Quantity,
		Completeness: models.DraftComplete,
	}
	if draft.Quantity < 1 {
		draft.Quantity = 1
	}

	switch in.Kind {
	case models.InputImage:
		draft.Preview = in.Preview
	case models.InputText:
		if draft.Name == "" {
			draft.Name = in.Query
		}
	}
	return draft
}

func failedDraft(in models.PendingInput, err error) models.ScanDraft {
	draft := models.ScanDraft{
		Quantity:      1,
		Completeness:  models.DraftPartial,
		FailureReason: failureReason(err),
	}
	switch in.Kind {
	case models.InputImage:
		draft.Preview = in.Preview
	case models.InputText:
		draft.Name = in.Query
	}
	return draft
}

// failureReason is the short message shown next to a partial draft
func failureReason(err error) string {
	switch {
	case errors.Is(err, ml.ErrNotFood):
		return "The item could not be identified as a food product."
	case errors.Is(err, context.DeadlineExceeded):
		return "Recognition took too long."
	case errors.Is(err, ml.ErrMalformedResponse):
		return "The recognition service returned an unreadable answer."
	default:
		return "Recognition is unavailable right now."
	}
}

func (d *Dispatcher) record(ctx context.Context, in models.PendingInput, draft models.ScanDraft, err error) {
	if d.recorder == nil {
		return
	}

	scan := &models.ScanRecord{
		ID:        uuid.New().String(),
		Kind:      in.Kind,
		Status:    models.ScanCompleted,
		Query:     in.Query,
		Name:      draft.Name,
		CreatedAt: d.now(),
	}
	if err != nil {
		scan.Status = models.ScanFailed
		scan.Error = err.Error()
	}

	if rerr := d.recorder.SaveScan(context.WithoutCancel(ctx), scan); rerr != nil {
		log.Warn().Err(rerr).Str("scan_id", scan.ID).Msg("Failed to record scan")
	}
}

var _ Resolver = (*Dispatcher)(nil)
