package server

import (
	"github.com/franckalain/fooddeclare/internal/camera"
	"github.com/franckalain/fooddeclare/internal/ml"
	"github.com/franckalain/fooddeclare/internal/models"
	"github.com/franckalain/fooddeclare/internal/pipeline"
)

// Inbound message payloads

type unlockRequest struct {
	Code     string `json:"code"`
	DeviceID string `json:"device_id"`
}

type cameraDeniedRequest struct {
	Reason string `json:"reason"`
}

type imageRequest struct {
	Image string `json:"image"` // base64, optionally as a data: URL
}

type searchRequest struct {
	Query string `json:"query"`
}

type idRequest struct {
	ID string `json:"id"`
}

type stepRequest struct {
	Delta int `json:"delta"`
}

type saveRequest struct {
	Brand         string `json:"brand"`
	Name          string `json:"name"`
	Ingredients   string `json:"ingredients"`
	Weight        string `json:"weight"`
	Quantity      int    `json:"quantity"`
	RemovePreview bool   `json:"remove_preview"`
}

type countryRequest struct {
	Country string `json:"country"`
	Query   string `json:"query"`
}

type askRequest struct {
	Message string        `json:"message"`
	History []ml.ChatTurn `json:"history"`
}

type scansRequest struct {
	Limit int `json:"limit"`
}

// Outbound message payloads

type unlockResponse struct {
	Valid    bool   `json:"valid"`
	Message  string `json:"message,omitempty"`
	DeviceID string `json:"device_id"`
}

type cameraStatusResponse struct {
	Status camera.Status `json:"status"`
	Error  string        `json:"error,omitempty"`
}

type draftResponse struct {
	State  pipeline.State          `json:"state"`
	Record pipeline.EditableRecord `json:"record"`
	// EditingID is set when an existing item is being edited
	EditingID string `json:"editing_id,omitempty"`
}

type itemsResponse struct {
	Items   []models.DeclaredItem `json:"items"`
	Country string                `json:"country"`
}

type savedResponse struct {
	Item    models.DeclaredItem `json:"item"`
	Warning string              `json:"warning,omitempty"`
}

type validationResponse struct {
	Fields []string `json:"fields"`
}

type countriesResponse struct {
	Countries []string `json:"countries"`
	Selected  string   `json:"selected"`
}

type answerResponse struct {
	Text string `json:"text"`
}

type sessionResponse struct {
	Locked   bool   `json:"locked"`
	DeviceID string `json:"device_id"`
	Country  string `json:"country"`
}

type stateResponse struct {
	State pipeline.State `json:"state"`
}

type scanStartedResponse struct {
	Kind    models.InputKind `json:"kind"`
	Query   string           `json:"query,omitempty"`
	Preview string           `json:"preview,omitempty"` // data: URL
}
