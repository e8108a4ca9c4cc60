// Package capture turns camera frames, uploaded files and typed queries
// into PendingInput values for recognition.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/franckalain/fooddeclare/internal/camera"
	apperrors "github.com/franckalain/fooddeclare/internal/errors"
	"github.com/franckalain/fooddeclare/internal/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

const (
	// PreviewMaxDimension bounds the width and height of generated previews
	PreviewMaxDimension = 1024
	// MaxImagePixels bounds the declared width*height of an image before it is decoded
	MaxImagePixels = 50_000_000
	previewQuality = 85
)

// ErrImageTooLarge is returned for images whose declared size exceeds MaxImagePixels
var ErrImageTooLarge = errors.New("image dimensions too large")

// DecodeImage decodes untrusted image bytes. The header is read first and
// images declaring more than MaxImagePixels are rejected without decoding.
func DecodeImage(data []byte) (image.Image, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, format, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// FromCapturedFrame wraps a JPEG frame produced by the camera session
func FromCapturedFrame(data []byte) (models.PendingInput, error) {
	return fromImage(data, "camera")
}

// FromUploadedFile wraps the bytes of a user-selected file. The type is
// sniffed from the content; only decodable images are accepted.
func FromUploadedFile(data []byte) (models.PendingInput, error) {
	return fromImage(data, "upload")
}

// FromTypedQuery wraps a free-text product description. Blank text yields ok=false.
func FromTypedQuery(text string) (models.PendingInput, bool) {
	query := strings.TrimSpace(text)
	if query == "" {
		return models.PendingInput{}, false
	}
	return models.PendingInput{Kind: models.InputText, Query: query}, true
}

func fromImage(data []byte, source string) (models.PendingInput, error) {
	if len(data) == 0 {
		return models.PendingInput{}, apperrors.NewValidationError("image")
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		log.Debug().Str("source", source).Str("mime_type", mtype.String()).Msg("Rejected non-image input")
		return models.PendingInput{}, apperrors.NewValidationError("image")
	}
	mimeType := baseMIME(mtype.String())

	preview, err := makePreview(data, mimeType)
	if err != nil {
		log.Debug().Err(err).Str("source", source).Str("mime_type", mimeType).Msg("Image cannot be previewed")
		return models.PendingInput{}, apperrors.NewValidationError("image")
	}

	log.Debug().
		Str("source", source).
		Str("mime_type", mimeType).
		Int("size", len(data)).
		Int("preview_size", len(preview.Data)).
		Msg("Image input normalized")

	return models.PendingInput{
		Kind:     models.InputImage,
		Payload:  data,
		MIMEType: mimeType,
		Preview:  preview,
	}, nil
}

// makePreview returns a JPEG or PNG rendition of data no larger than
// PreviewMaxDimension on either side. Small JPEG inputs, and small PNG
// inputs the PDF renderer can embed, are used as is.
func makePreview(data []byte, mimeType string) (*models.Preview, error) {
	img, _, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	fits := b.Dx() <= PreviewMaxDimension && b.Dy() <= PreviewMaxDimension
	if fits && (mimeType == "image/jpeg" || mimeType == "image/png" && embeddablePNG(data)) {
		return &models.Preview{MIMEType: mimeType, Data: data}, nil
	}

	scaled := camera.Scale(img, PreviewMaxDimension, PreviewMaxDimension)
	out, err := camera.EncodeJPEG(scaled, previewQuality)
	if err != nil {
		return nil, err
	}
	return &models.Preview{MIMEType: "image/jpeg", Data: out}, nil
}

// embeddablePNG reports whether the PNG header declares a non-interlaced
// image of at most 8 bits per channel, the only kind fpdf can embed.
// IHDR follows the 8-byte signature: length, type, width, height, then
// bit depth at offset 24 and interlace method at offset 28.
func embeddablePNG(data []byte) bool {
	if len(data) < 29 || string(data[12:16]) != "IHDR" {
		return false
	}
	return data[24] <= 8 && data[28] == 0
}

func baseMIME(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		return strings.TrimSpace(m[:i])
	}
	return m
}
