package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/franckalain/fooddeclare/internal/access"
	"github.com/franckalain/fooddeclare/internal/camera"
	"github.com/franckalain/fooddeclare/internal/capture"
	"github.com/franckalain/fooddeclare/internal/declaration"
	apperrors "github.com/franckalain/fooddeclare/internal/errors"
	"github.com/franckalain/fooddeclare/internal/models"
	"github.com/franckalain/fooddeclare/internal/pipeline"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const persistenceWarning = "The list could not be saved to storage. Changes are kept until the server restarts."

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// session is one websocket client: its own camera and scan workflow over
// the shared declaration list
type session struct {
	id   string
	srv  *Server
	conn *websocket.Conn

	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	unlocked bool
	deviceID string

	remote   *remoteDevice
	camera   *camera.Manager
	workflow *pipeline.Workflow
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxRequestBodySize)

	sess := s.newSession(conn, r.URL.Query().Get("device_id"))
	s.clients.Store(sess.id, sess)
	defer func() {
		s.clients.Delete(sess.id)
		sess.close()
	}()

	log.Info().Str("client_id", sess.id).Msg("Client connected")
	sess.sendMessage("session", sessionResponse{
		Locked:   !sess.isUnlocked(),
		DeviceID: sess.deviceID,
		Country:  s.country(),
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("client_id", sess.id).Msg("Error reading message")
			}
			break
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Debug().Err(err).Msg("Error parsing message")
			sess.sendError("Invalid message format")
			continue
		}
		sess.handleMessage(msg)
	}
	log.Info().Str("client_id", sess.id).Msg("Client disconnected")
}

func (s *Server) newSession(conn *websocket.Conn, deviceID string) *session {
	if deviceID == "" {
		deviceID = access.NewDeviceID()
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:       uuid.New().String(),
		srv:      s,
		conn:     conn,
		ctx:      ctx,
		cancel:   cancel,
		unlocked: s.deps.Gate == nil,
		deviceID: deviceID,
		workflow: pipeline.NewWorkflow(s.deps.Resolver, s.deps.Reconciler, s.deps.Items),
	}
	sess.remote = newRemoteDevice(sess.sendMessage)
	sess.camera = camera.NewManager(sess.remote, s.deps.Camera, s.deps.JPEGQuality)
	return sess
}

func (c *session) isUnlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unlocked
}

func (c *session) handleMessage(msg inboundMessage) {
	switch msg.Type {
	case "unlock":
		c.handleUnlock(msg.Data)
		return
	case "get_countries":
		c.handleGetCountries(msg.Data)
		return
	}

	if !c.isUnlocked() {
		c.sendError("Enter an access code to continue")
		return
	}

	switch msg.Type {
	case "camera_start":
		c.handleCameraStart()
	case "camera_granted":
		c.handleCameraAnswer(nil)
	case "camera_denied":
		var req cameraDeniedRequest
		_ = decodeData(msg.Data, &req)
		c.handleCameraAnswer(fmt.Errorf("%w: %s", errDenied, req.Reason))
	case "camera_frame":
		c.handleCameraFrame(msg.Data)
	case "camera_capture":
		c.handleCameraCapture()
	case "camera_stop":
		c.camera.Stop()
		c.sendCameraStatus()
	case "upload":
		c.handleUpload(msg.Data)
	case "search":
		c.handleSearch(msg.Data)
	case "manual":
		c.sendDraft(c.workflow.Manual())
	case "edit":
		var req idRequest
		if err := decodeData(msg.Data, &req); err != nil {
			c.sendError("Invalid item id")
			return
		}
		c.sendDraft(c.workflow.Edit(req.ID))
	case "step_quantity":
		var req stepRequest
		if err := decodeData(msg.Data, &req); err != nil {
			c.sendError("Invalid quantity step")
			return
		}
		c.sendDraft(c.workflow.Step(req.Delta))
	case "save":
		c.handleSave(msg.Data)
	case "cancel":
		c.workflow.Cancel()
		c.sendMessage("workflow_state", stateResponse{State: c.workflow.State()})
	case "delete":
		c.handleDelete(msg.Data)
	case "clear":
		c.handleClear()
	case "get_items":
		c.sendMessage("items", c.srv.itemsPayload())
	case "set_country":
		c.handleSetCountry(msg.Data)
	case "ask":
		c.handleAsk(msg.Data)
	case "get_scans":
		c.handleGetScans(msg.Data)
	default:
		c.sendError("Unknown message type")
	}
}

func (c *session) handleUnlock(data json.RawMessage) {
	var req unlockRequest
	if err := decodeData(data, &req); err != nil {
		c.sendError("Invalid message format")
		return
	}

	c.mu.Lock()
	if req.DeviceID != "" {
		c.deviceID = req.DeviceID
	}
	deviceID := c.deviceID
	c.mu.Unlock()

	res, err := c.srv.unlock(c.ctx, req.Code, deviceID)
	if err != nil {
		c.sendMessage("unlock_result", unlockResponse{Valid: false, Message: access.MsgInvalidCode, DeviceID: deviceID})
		return
	}
	if res.Valid {
		c.mu.Lock()
		c.unlocked = true
		c.mu.Unlock()
	}
	c.sendMessage("unlock_result", unlockResponse{Valid: res.Valid, Message: res.Message, DeviceID: deviceID})
}

func (c *session) handleCameraStart() {
	go func() {
		var err error
		if c.camera.Status() == camera.StatusFailed {
			err = c.camera.Retry(c.ctx)
		} else {
			err = c.camera.Start(c.ctx)
		}
		switch {
		case errors.Is(err, camera.ErrStopped), errors.Is(err, context.Canceled):
			return
		case errors.Is(err, camera.ErrNotIdle):
			c.sendError("Camera is already active")
			return
		}
		c.sendCameraStatus()
	}()
}

func (c *session) handleCameraAnswer(err error) {
	if !c.remote.answer(err) {
		log.Debug().Str("client_id", c.id).Msg("Camera answer without a pending request")
	}
}

func (c *session) handleCameraFrame(data json.RawMessage) {
	var req imageRequest
	if err := decodeData(data, &req); err != nil {
		c.sendError("Invalid frame")
		return
	}
	raw, err := decodeImageData(req.Image)
	if err != nil {
		c.sendError("Invalid frame")
		return
	}
	img, _, err := capture.DecodeImage(raw)
	if err != nil {
		c.sendError("Invalid frame")
		return
	}
	if !c.remote.pushFrame(img) {
		log.Debug().Str("client_id", c.id).Msg("Frame dropped, no open stream")
	}
}

func (c *session) handleCameraCapture() {
	frame, err := c.camera.Capture()
	if err != nil {
		c.sendError(errorMessage(err, "Camera is not ready"))
		return
	}
	c.camera.Stop()
	c.sendCameraStatus()

	in, err := capture.FromCapturedFrame(frame)
	if err != nil {
		c.sendError("Captured frame could not be read")
		return
	}
	c.startScan(in)
}

func (c *session) handleUpload(data json.RawMessage) {
	var req imageRequest
	if err := decodeData(data, &req); err != nil {
		c.sendError("Invalid image data")
		return
	}
	raw, err := decodeImageData(req.Image)
	if err != nil {
		c.sendError("Invalid image data")
		return
	}
	in, err := capture.FromUploadedFile(raw)
	if err != nil {
		c.sendError("Please choose an image file")
		return
	}
	c.startScan(in)
}

func (c *session) handleSearch(data json.RawMessage) {
	var req searchRequest
	if err := decodeData(data, &req); err != nil {
		c.sendError("Invalid search")
		return
	}
	in, ok := capture.FromTypedQuery(req.Query)
	if !ok {
		return
	}
	c.startScan(in)
}

// startScan hands in to the workflow in the background; the draft is sent
// when recognition returns unless the scan was cancelled meanwhile
func (c *session) startScan(in models.PendingInput) {
	if c.workflow.State() != pipeline.StateReady {
		c.sendError(pipeline.ErrBusy.Error())
		return
	}

	c.sendMessage("scan_started", scanStartedResponse{
		Kind:    in.Kind,
		Query:   in.Query,
		Preview: in.Preview.DataURL(),
	})

	go func() {
		rec, err := c.workflow.Scan(c.ctx, in)
		if errors.Is(err, pipeline.ErrStale) {
			return
		}
		c.sendDraft(rec, err)
	}()
}

func (c *session) handleSave(data json.RawMessage) {
	var req saveRequest
	if err := decodeData(data, &req); err != nil {
		c.sendError("Invalid item")
		return
	}
	current, ok := c.workflow.Current()
	if !ok {
		c.sendError(pipeline.ErrNotEditing.Error())
		return
	}

	preview := current.Preview
	if req.RemovePreview {
		preview = nil
	}
	item, err := c.workflow.Save(c.ctx, models.ItemFields{
		Brand:       req.Brand,
		Name:        req.Name,
		Ingredients: req.Ingredients,
		Weight:      req.Weight,
		Quantity:    req.Quantity,
		Preview:     preview,
	})

	var verr *apperrors.ValidationError
	switch {
	case err == nil:
		c.sendMessage("item_saved", savedResponse{Item: item})
	case errors.As(err, &verr):
		c.sendMessage("validation_error", validationResponse{Fields: verr.Fields})
		return
	case apperrors.IsType(err, apperrors.ErrorTypePersistence):
		c.sendMessage("item_saved", savedResponse{Item: item, Warning: persistenceWarning})
	case apperrors.IsType(err, apperrors.ErrorTypeNotFound):
		c.sendError("This item was removed from the list")
	default:
		c.sendError(errorMessage(err, "Failed to save item"))
		return
	}
	c.srv.broadcastItems()
}

func (c *session) handleDelete(data json.RawMessage) {
	var req idRequest
	if err := decodeData(data, &req); err != nil || req.ID == "" {
		c.sendError("Invalid item id")
		return
	}
	if err := c.srv.deps.Items.Delete(c.ctx, req.ID); err != nil {
		c.sendMessage("warning", persistenceWarning)
	}
	c.srv.broadcastItems()
}

func (c *session) handleClear() {
	if err := c.srv.deps.Items.Clear(c.ctx); err != nil {
		c.sendMessage("warning", persistenceWarning)
	}
	c.srv.broadcastItems()
}

func (c *session) handleSetCountry(data json.RawMessage) {
	var req countryRequest
	if err := decodeData(data, &req); err != nil {
		c.sendError("Invalid country")
		return
	}
	if c.srv.deps.Prefs == nil {
		c.sendError("Country selection is unavailable")
		return
	}

	err := c.srv.deps.Prefs.SetCountry(c.ctx, req.Country)
	switch {
	case apperrors.IsType(err, apperrors.ErrorTypeValidation):
		c.sendMessage("validation_error", validationResponse{Fields: []string{"country"}})
		return
	case err != nil:
		c.sendMessage("warning", persistenceWarning)
	}
	c.srv.broadcastItems()
}

func (c *session) handleGetCountries(data json.RawMessage) {
	var req countryRequest
	_ = decodeData(data, &req)
	c.sendMessage("countries", countriesResponse{
		Countries: declaration.SearchCountries(req.Query),
		Selected:  c.srv.country(),
	})
}

func (c *session) handleAsk(data json.RawMessage) {
	var req askRequest
	if err := decodeData(data, &req); err != nil {
		c.sendError("Invalid question")
		return
	}
	country := c.srv.country()
	go func() {
		text := c.srv.deps.Advisor.Ask(c.ctx, req.History, req.Message, country)
		if text == "" {
			return
		}
		c.sendMessage("answer", answerResponse{Text: text})
	}()
}

func (c *session) handleGetScans(data json.RawMessage) {
	var req scansRequest
	_ = decodeData(data, &req)
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if c.srv.deps.Scans == nil {
		c.sendMessage("scans", []*models.ScanRecord{})
		return
	}

	scans, err := c.srv.deps.Scans.RecentScans(c.ctx, req.Limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load scan history")
		c.sendError("Failed to retrieve scan history")
		return
	}
	c.sendMessage("scans", scans)
}

func (c *session) sendDraft(rec pipeline.EditableRecord, err error) {
	if err != nil {
		c.sendError(errorMessage(err, "Something went wrong"))
		return
	}
	resp := draftResponse{State: c.workflow.State(), Record: rec}
	if id, ok := rec.ExistingID(); ok {
		resp.EditingID = id
	}
	c.sendMessage("draft", resp)
}

func (c *session) sendCameraStatus() {
	resp := cameraStatusResponse{Status: c.camera.Status()}
	if resp.Status == camera.StatusFailed {
		resp.Error = errorMessage(c.camera.Err(), "Camera unavailable")
	}
	c.sendMessage("camera_status", resp)
}

func (c *session) sendMessage(messageType string, data any) {
	msg := map[string]any{
		"type": messageType,
		"data": data,
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Debug().Err(err).Str("type", messageType).Msg("Error sending message")
	}
}

func (c *session) sendError(message string) {
	msg := map[string]any{
		"type":    "error",
		"message": message,
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Debug().Err(err).Msg("Error sending error message")
	}
}

// close releases the camera, abandons any scan and closes the connection
func (c *session) close() {
	c.camera.Stop()
	c.workflow.Cancel()
	c.cancel()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.Close()
}

func (s *Server) itemsPayload() itemsResponse {
	return itemsResponse{Items: s.deps.Items.Items(), Country: s.country()}
}

func (s *Server) broadcastItems() {
	s.broadcast("items", s.itemsPayload())
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

// decodeImageData accepts raw base64 or a data: URL
func decodeImageData(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		_, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, errors.New("malformed data URL")
		}
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return data, nil
}

// errorMessage picks the user-facing text of err
func errorMessage(err error, fallback string) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	switch {
	case errors.Is(err, pipeline.ErrBusy), errors.Is(err, pipeline.ErrNotEditing):
		return err.Error()
	}
	return fallback
}
