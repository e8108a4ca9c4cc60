package camera

import (
	"context"
	"errors"
	"image"
	"sync"

	apperrors "github.com/franckalain/fooddeclare/internal/errors"
	"github.com/rs/zerolog/log"
)

// Status is the lifecycle state of a camera session
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRequesting Status = "requesting"
	StatusLive       Status = "live"
	StatusFailed     Status = "failed"
)

// Facing selects which physical camera is preferred
type Facing string

const (
	FacingRear  Facing = "rear"
	FacingFront Facing = "front"
)

// Constraints describe the stream the session asks the device for
type Constraints struct {
	Facing Facing `json:"facing"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DefaultConstraints prefers the rear camera at 1280x720
func DefaultConstraints() Constraints {
	return Constraints{Facing: FacingRear, Width: 1280, Height: 720}
}

// Device grants access to a camera
type Device interface {
	// Open blocks until the stream is granted, denied, or ctx is done
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an open camera handle. Close must be called exactly once.
type Stream interface {
	Frame() (image.Image, error)
	Close() error
}

var (
	// ErrNotIdle is returned by Start when a session is already requesting, live or failed
	ErrNotIdle = errors.New("camera session is not idle")
	// ErrNotLive is returned by Capture when there is no live stream
	ErrNotLive = errors.New("camera session is not live")
	// ErrStopped is returned by Start when Stop ran while the device was being opened
	ErrStopped = errors.New("camera session stopped during acquisition")
)

// Manager owns the camera stream and its lifecycle.
// At most one stream is held at any time and Stop always releases it.
type Manager struct {
	device      Device
	constraints Constraints
	quality     int

	mu      sync.Mutex
	status  Status
	stream  Stream
	cancel  context.CancelFunc
	gen     uint64
	lastErr error
}

// NewManager creates an idle manager for device. quality is the JPEG
// quality used by Capture.
func NewManager(device Device, constraints Constraints, quality int) *Manager {
	if quality < 1 || quality > 100 {
		quality = 90
	}
	return &Manager{
		device:      device,
		constraints: constraints,
		quality:     quality,
		status:      StatusIdle,
	}
}

// Start requests the camera. It is only valid from Idle; in any other
// state it returns ErrNotIdle and changes nothing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status != StatusIdle {
		status := m.status
		m.mu.Unlock()
		log.Debug().Str("status", string(status)).Msg("Camera start ignored")
		return ErrNotIdle
	}
	m.status = StatusRequesting
	m.gen++
	gen := m.gen
	reqCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	log.Debug().Str("facing", string(m.constraints.Facing)).Msg("Requesting camera")
	stream, err := m.device.Open(reqCtx, m.constraints)

	m.mu.Lock()
	defer m.mu.Unlock()
	cancel()

	if m.gen != gen {
		// Stop ran while the device was opening
		if stream != nil {
			closeStream(stream)
		}
		return ErrStopped
	}
	m.cancel = nil

	if err != nil {
		m.status = StatusFailed
		m.lastErr = apperrors.NewAcquisitionError("camera unavailable or permission denied", err)
		log.Warn().Err(err).Msg("Camera acquisition failed")
		return m.lastErr
	}
	if stream == nil {
		m.status = StatusFailed
		m.lastErr = apperrors.NewAcquisitionError("camera returned no stream", nil)
		return m.lastErr
	}

	m.stream = stream
	m.status = StatusLive
	m.lastErr = nil
	log.Info().Msg("Camera live")
	return nil
}

// Stop releases the stream if one is held and returns to Idle.
// It is idempotent and may be called from any state.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.stream != nil {
		closeStream(m.stream)
		m.stream = nil
	}
	if m.status != StatusIdle {
		log.Debug().Str("from", string(m.status)).Msg("Camera stopped")
	}
	m.status = StatusIdle
	m.lastErr = nil
}

// Retry stops the session and starts it again
func (m *Manager) Retry(ctx context.Context) error {
	m.Stop()
	return m.Start(ctx)
}

// Capture samples one frame from the live stream and encodes it as JPEG,
// scaled to fit the requested resolution. The state is unchanged.
func (m *Manager) Capture() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusLive || m.stream == nil {
		return nil, apperrors.NewConflictError("no live camera stream to capture from", ErrNotLive)
	}

	frame, err := m.stream.Frame()
	if err != nil {
		return nil, apperrors.NewAcquisitionError("failed to read camera frame", err)
	}

	data, err := EncodeJPEG(Scale(frame, m.constraints.Width, m.constraints.Height), m.quality)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode camera frame", err)
	}
	log.Debug().Int("size", len(data)).Msg("Frame captured")
	return data, nil
}

// Status returns the current lifecycle state
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// HasStream reports whether a stream handle is currently held
func (m *Manager) HasStream() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream != nil
}

// Err returns the acquisition error that put the session in Failed
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func closeStream(s Stream) {
	if err := s.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close camera stream")
	}
}
