// Package access validates one-time access codes against a remote authority.
package access

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/franckalain/fooddeclare/internal/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Messages shown to the user
const (
	MsgConnectionFailed = "Connection failed. Please check internet."
	MsgUsedCode         = "Invalid or used code"
	MsgInvalidCode      = "Invalid code. Please try again."
)

// Result is the outcome of a code check
type Result struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// Config configures a Gate
type Config struct {
	Endpoint    string
	BypassCodes []string
	Codes       []string
	Timeout     time.Duration
}

// Gate checks access codes. Bypass codes are always accepted. With an
// endpoint the code is verified remotely, binding it to a device;
// otherwise it is looked up in the local code list.
type Gate struct {
	endpoint string
	bypass   map[string]bool
	codes    map[string]bool
	client   *http.Client
}

// NewGate creates a gate from cfg
func NewGate(cfg Config) *Gate {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gate{
		endpoint: cfg.Endpoint,
		bypass:   codeSet(cfg.BypassCodes),
		codes:    codeSet(cfg.Codes),
		client:   &http.Client{Timeout: timeout},
	}
}

func codeSet(codes []string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		if n := Normalize(c); n != "" {
			set[n] = true
		}
	}
	return set
}

// Normalize trims and upper-cases a code
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type verifyRequest struct {
	Action   string `json:"action"`
	Code     string `json:"code"`
	DeviceID string `json:"deviceId"`
}

// Validate checks code for deviceID. Only a blank code is an error;
// transport problems come back as an invalid Result with MsgConnectionFailed.
func (g *Gate) Validate(ctx context.Context, code, deviceID string) (Result, error) {
	normalized := Normalize(code)
	if normalized == "" {
		return Result{}, apperrors.NewValidationError("code")
	}

	if g.bypass[normalized] {
		log.Info().Str("device_id", deviceID).Msg("Access granted by bypass code")
		return Result{Valid: true}, nil
	}

	if g.endpoint == "" {
		if g.codes[normalized] {
			return Result{Valid: true}, nil
		}
		return Result{Valid: false, Message: MsgInvalidCode}, nil
	}

	res, err := g.verify(ctx, normalized, deviceID)
	if err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("Access code verification failed")
		return Result{Valid: false, Message: MsgConnectionFailed}, nil
	}
	if !res.Valid && res.Message == "" {
		res.Message = MsgUsedCode
	}
	log.Info().Bool("valid", res.Valid).Str("device_id", deviceID).Msg("Access code verified")
	return res, nil
}

func (g *Gate) verify(ctx context.Context, code, deviceID string) (Result, error) {
	body, err := json.Marshal(verifyRequest{Action: "verify", Code: code, DeviceID: deviceID})
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	// text/plain keeps script endpoints from requiring a CORS preflight
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	resp, err := g.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return res, nil
}

// NewDeviceID returns an identifier of the form DEV-XXXXXXX-<base36 time>
func NewDeviceID() string {
	return newDeviceID(time.Now())
}

func newDeviceID(now time.Time) string {
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:7]
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return "DEV-" + random + "-" + stamp
}
