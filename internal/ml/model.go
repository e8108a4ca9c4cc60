package ml

import (
	"context"
	"errors"
	"fmt"

	"github.com/franckalain/fooddeclare/internal/models"
)

var (
	// ErrNotFood is returned when the service declines the input, e.g. it is not a food product
	ErrNotFood = errors.New("input was not recognized as a food product")
	// ErrMalformedResponse is returned when the service answer cannot be parsed
	ErrMalformedResponse = errors.New("malformed recognition response")
	// ErrNotLoaded is returned when a model is used before Load
	ErrNotLoaded = errors.New("model not loaded")
)

// Model recognizes food products from an image or a text description
type Model interface {
	// Load initializes the model with its configuration
	Load(ctx context.Context) error
	// RecognizeImage extracts product details from an encoded image
	RecognizeImage(ctx context.Context, data []byte, mimeType string) (*models.ProductInfo, error)
	// RecognizeText looks up product details for a free-text query
	RecognizeText(ctx context.Context, query string) (*models.ProductInfo, error)
	// Close releases the underlying client
	Close() error
}

// ModelFactory creates a new model instance based on configuration
type ModelFactory interface {
	CreateModel() (Model, error)
}

// NewModel creates a model for cfg.Type. The model still has to be loaded.
func NewModel(cfg Config) (Model, error) {
	var factory ModelFactory

	switch cfg.Type {
	case "google":
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid google config: %w", err)
		}
		factory = NewGoogleModelFactory(cfg)
	default:
		return nil, fmt.Errorf("unsupported model type: %s", cfg.Type)
	}
	return factory.CreateModel()
}
