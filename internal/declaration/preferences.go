package declaration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/franckalain/fooddeclare/internal/database"
	apperrors "github.com/franckalain/fooddeclare/internal/errors"
	"github.com/rs/zerolog/log"
)

// Preferences holds the last chosen destination country
type Preferences struct {
	store database.Store

	mu      sync.RWMutex
	country string
}

// NewPreferences creates preferences set to DefaultCountry
func NewPreferences(store database.Store) *Preferences {
	return &Preferences{store: store, country: DefaultCountry}
}

// Load reads the saved country. Missing, corrupt or unknown values keep the default.
func (p *Preferences) Load(ctx context.Context) error {
	data, err := p.store.Load(ctx, database.KeyCountry)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load destination country")
		return apperrors.NewPersistenceError("failed to load destination country", err)
	}
	if len(data) == 0 {
		return nil
	}

	var country string
	if err := json.Unmarshal(data, &country); err != nil {
		// older saves stored the bare name
		country = string(data)
	}
	if !IsCountry(country) {
		log.Warn().Str("country", country).Msg("Ignoring unknown saved destination country")
		return nil
	}

	p.mu.Lock()
	p.country = country
	p.mu.Unlock()
	return nil
}

// Country returns the destination country
func (p *Preferences) Country() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.country
}

// SetCountry changes and saves the destination country. Unknown names are
// rejected; a failed save keeps the new value in memory.
func (p *Preferences) SetCountry(ctx context.Context, country string) error {
	if !IsCountry(country) {
		return apperrors.NewValidationError("country")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.country = country

	data, err := json.Marshal(country)
	if err != nil {
		return fmt.Errorf("failed to encode country: %w", err)
	}
	if err := p.store.Save(ctx, database.KeyCountry, data); err != nil {
		log.Warn().Err(err).Msg("Failed to save destination country")
		return apperrors.NewPersistenceError("destination country could not be saved", err)
	}
	log.Info().Str("country", country).Msg("Destination country set")
	return nil
}
