package access

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	apperrors "github.com/franckalain/fooddeclare/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_RemoteVerify(t *testing.T) {
	var got verifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "text/plain;charset=utf-8", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		switch got.Code {
		case "X7K9-M2P4":
			w.Write([]byte(`{"valid":true}`))
		case "USED-0001":
			w.Write([]byte(`{"valid":false}`))
		default:
			w.Write([]byte(`{"valid":false,"message":"Code bound to another device"}`))
		}
	}))
	defer srv.Close()

	g := NewGate(Config{Endpoint: srv.URL})
	ctx := context.Background()

	res, err := g.Validate(ctx, "  x7k9-m2p4 ", "DEV-1")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, verifyRequest{Action: "verify", Code: "X7K9-M2P4", DeviceID: "DEV-1"}, got)

	res, err = g.Validate(ctx, "used-0001", "DEV-1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, MsgUsedCode, res.Message)

	res, err = g.Validate(ctx, "OTHER", "DEV-1")
	require.NoError(t, err)
	assert.Equal(t, Result{Valid: false, Message: "Code bound to another device"}, res)
}

func TestGate_ConnectionFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"html body", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("<html>login</html>")) }},
		{"slow", func(w http.ResponseWriter, r *http.Request) { time.Sleep(300 * time.Millisecond) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			g := NewGate(Config{Endpoint: srv.URL, Timeout: 100 * time.Millisecond})
			res, err := g.Validate(context.Background(), "ABC", "DEV-1")
			require.NoError(t, err)
			assert.Equal(t, Result{Valid: false, Message: MsgConnectionFailed}, res)
		})
	}
}

func TestGate_BypassSkipsRemote(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	g := NewGate(Config{Endpoint: srv.URL, BypassCodes: []string{"raff-test"}})
	res, err := g.Validate(context.Background(), "RAFF-TEST", "DEV-1")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.False(t, called)
}

func TestGate_LocalCodes(t *testing.T) {
	g := NewGate(Config{Codes: []string{"Q3L8-R5T1"}})

	res, err := g.Validate(context.Background(), "q3l8-r5t1", "DEV-1")
	require.NoError(t, err)
	assert.True(t, res.Valid)

	res, err = g.Validate(context.Background(), "nope", "DEV-1")
	require.NoError(t, err)
	assert.Equal(t, Result{Valid: false, Message: MsgInvalidCode}, res)
}

func TestGate_BlankCode(t *testing.T) {
	_, err := NewGate(Config{}).Validate(context.Background(), "   ", "DEV-1")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestNewDeviceID(t *testing.T) {
	id := newDeviceID(time.UnixMilli(1700000000000))
	assert.Regexp(t, regexp.MustCompile(`^DEV-[0-9A-F]{7}-LOYW3V28$`), id)
	assert.NotEqual(t, NewDeviceID(), NewDeviceID())
}
