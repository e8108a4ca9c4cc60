package main

import (
	"context"
	"fmt"

	"github.com/franckalain/fooddeclare/internal/access"
	"github.com/franckalain/fooddeclare/internal/camera"
	"github.com/franckalain/fooddeclare/internal/config"
	"github.com/franckalain/fooddeclare/internal/database"
	"github.com/franckalain/fooddeclare/internal/declaration"
	"github.com/franckalain/fooddeclare/internal/ml"
	"github.com/franckalain/fooddeclare/internal/pipeline"
	"github.com/rs/zerolog/log"
)

// app holds the components shared by every command
type app struct {
	db    database.DB
	items *declaration.Log
	prefs *declaration.Preferences
	model ml.Model
}

// openApp opens the store and loads the list and preferences from it.
// Unreadable stored data is logged and replaced by an empty list.
func openApp(ctx context.Context) (*app, error) {
	db, err := database.NewDB(cfg.Store.Type, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a := &app{
		db:    db,
		items: declaration.NewLog(db),
		prefs: declaration.NewPreferences(db),
	}
	if err := a.items.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("Starting with an empty declaration list")
	}
	if err := a.prefs.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("Using the default destination country")
	}
	log.Debug().Str("store", cfg.Store.Type).Int("items", a.items.Len()).Msg("Store opened")
	return a, nil
}

// loadModel creates and loads the recognition model
func (a *app) loadModel(ctx context.Context) error {
	model, err := ml.NewModel(mlConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create ML model: %w", err)
	}
	if err := model.Load(ctx); err != nil {
		return fmt.Errorf("failed to load ML model: %w", err)
	}
	a.model = model
	return nil
}

func (a *app) dispatcher() *pipeline.Dispatcher {
	var recognizer pipeline.Recognizer
	if a.model != nil {
		recognizer = a.model
	}
	return pipeline.NewDispatcher(recognizer, cfg.ML.Timeout, pipeline.WithScanRecorder(a.db))
}

// advisor returns a customs advisor when the model can hold a conversation
func (a *app) advisor() *ml.Advisor {
	chat, ok := a.model.(ml.Chatter)
	if !ok {
		return nil
	}
	return ml.NewAdvisor(chat)
}

func (a *app) close() {
	if a.model != nil {
		if err := a.model.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close ML model")
		}
	}
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close store")
	}
}

func mlConfig(c *config.Config) ml.Config {
	return ml.Config{
		Type:            c.ML.Type,
		ProjectID:       c.ML.ProjectID,
		Location:        c.ML.Location,
		CredentialsFile: c.ML.CredentialsFile,
		Model:           c.ML.Model,
		Temperature:     c.ML.Temperature,
		Timeout:         c.ML.Timeout,
	}
}

func cameraConstraints(c *config.Config) camera.Constraints {
	return camera.Constraints{
		Facing: camera.Facing(c.Camera.Facing),
		Width:  c.Camera.Width,
		Height: c.Camera.Height,
	}
}

// accessGate returns nil when access control is disabled
func accessGate(c *config.Config) *access.Gate {
	if !c.Access.Enabled {
		return nil
	}
	return access.NewGate(access.Config{
		Endpoint:    c.Access.Endpoint,
		BypassCodes: c.Access.BypassCodes,
		Codes:       c.Access.Codes,
		Timeout:     c.Access.Timeout,
	})
}
