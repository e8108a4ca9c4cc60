package server

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/franckalain/fooddeclare/internal/camera"
)

var (
	errNoFrame      = errors.New("no camera frame received yet")
	errStreamClosed = errors.New("camera stream closed")
	errDenied       = errors.New("camera permission denied")
)

// remoteDevice is a camera.Device backed by the browser on the other end
// of a websocket. Open sends camera_request and waits for camera_granted
// or camera_denied; frames arrive as camera_frame messages.
type remoteDevice struct {
	send func(msgType string, data any)

	mu      sync.Mutex
	pending chan error
	active  *remoteStream
}

func newRemoteDevice(send func(msgType string, data any)) *remoteDevice {
	return &remoteDevice{send: send}
}

// Open asks the client for its camera and blocks until it answers
func (d *remoteDevice) Open(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	answer := make(chan error, 1)
	d.mu.Lock()
	d.pending = answer
	d.mu.Unlock()

	d.send("camera_request", c)

	select {
	case err := <-answer:
		if err != nil {
			return nil, err
		}
		s := &remoteStream{dev: d}
		d.mu.Lock()
		d.active = s
		d.mu.Unlock()
		return s, nil
	case <-ctx.Done():
		d.mu.Lock()
		if d.pending == answer {
			d.pending = nil
		}
		d.mu.Unlock()
		d.send("camera_release", nil)
		return nil, ctx.Err()
	}
}

// answer resolves the outstanding request; without one it does nothing
func (d *remoteDevice) answer(err error) bool {
	d.mu.Lock()
	ch := d.pending
	d.pending = nil
	d.mu.Unlock()

	if ch == nil {
		return false
	}
	ch <- err
	return true
}

// pushFrame stores the latest frame on the open stream
func (d *remoteDevice) pushFrame(img image.Image) bool {
	d.mu.Lock()
	s := d.active
	d.mu.Unlock()

	if s == nil {
		return false
	}
	return s.setFrame(img)
}

func (d *remoteDevice) release(s *remoteStream) {
	d.mu.Lock()
	if d.active == s {
		d.active = nil
	}
	d.mu.Unlock()
	d.send("camera_release", nil)
}

type remoteStream struct {
	dev *remoteDevice

	mu     sync.Mutex
	frame  image.Image
	closed bool
}

func (s *remoteStream) setFrame(img image.Image) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.frame = img
	return true
}

// Frame returns the latest frame sent by the client
func (s *remoteStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errStreamClosed
	}
	if s.frame == nil {
		return nil, errNoFrame
	}
	return s.frame, nil
}

// Close tells the client to stop its camera
func (s *remoteStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errStreamClosed
	}
	s.closed = true
	s.frame = nil
	s.mu.Unlock()

	s.dev.release(s)
	return nil
}

var _ camera.Device = (*remoteDevice)(nil)
