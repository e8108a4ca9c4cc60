package capture

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	apperrors "github.com/franckalain/fooddeclare/internal/errors"
	"github.com/franckalain/fooddeclare/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		img.Set(y%w, y, color.RGBA{G: 180, A: 255})
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// patchIHDR rewrites one byte of a PNG header and fixes the chunk CRC
func patchIHDR(data []byte, offset int, value byte) []byte {
	out := append([]byte(nil), data...)
	out[offset] = value
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

// withDimensions rewrites the width and height declared by a PNG header
func withDimensions(data []byte, w, h uint32) []byte {
	out := append([]byte(nil), data...)
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestFromCapturedFrame(t *testing.T) {
	data := encodeJPEG(t, testImage(640, 480))

	in, err := FromCapturedFrame(data)
	require.NoError(t, err)
	assert.Equal(t, models.InputImage, in.Kind)
	assert.Equal(t, "image/jpeg", in.MIMEType)
	assert.Equal(t, data, in.Payload)
	require.NotNil(t, in.Preview)
	assert.Equal(t, data, in.Preview.Data)
	assert.Empty(t, in.Query)
}

func TestFromUploadedFile_LargeImageGetsThumbnail(t *testing.T) {
	data := encodePNG(t, testImage(3000, 2000))

	in, err := FromUploadedFile(data)
	require.NoError(t, err)
	assert.Equal(t, "image/png", in.MIMEType)
	assert.Equal(t, data, in.Payload)

	require.NotNil(t, in.Preview)
	assert.Equal(t, "image/jpeg", in.Preview.MIMEType)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(in.Preview.Data))
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Width)
	assert.Equal(t, 683, cfg.Height)
}

func TestFromUploadedFile_GIFPreviewIsReencoded(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 32, 32), []color.Color{color.Black, color.White})
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, pal, nil))

	in, err := FromUploadedFile(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "image/gif", in.MIMEType)
	assert.Equal(t, "image/jpeg", in.Preview.MIMEType)
}

func TestFromUploadedFile_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text", []byte("definitely not a picture")},
		{"pdf", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")},
		{"truncated png", encodePNG(t, testImage(10, 10))[:20]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromUploadedFile(tt.data)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
		})
	}
}

func TestFromTypedQuery(t *testing.T) {
	in, ok := FromTypedQuery("  instant noodles \n")
	require.True(t, ok)
	assert.Equal(t, models.InputText, in.Kind)
	assert.Equal(t, "instant noodles", in.Query)
	assert.Nil(t, in.Preview)
	assert.Nil(t, in.Payload)

	for _, blank := range []string{"", "   ", "\t\n"} {
		_, ok := FromTypedQuery(blank)
		assert.False(t, ok, "%q", blank)
	}
}

func TestFromUploadedFile_InterlacedPNGIsReencoded(t *testing.T) {
	data := patchIHDR(encodePNG(t, testImage(1, 1)), 28, 1)
	_, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err, "fixture must stay a valid PNG")

	in, err := FromUploadedFile(data)
	require.NoError(t, err)
	assert.Equal(t, "image/png", in.MIMEType)
	assert.Equal(t, data, in.Payload)
	require.NotNil(t, in.Preview)
	assert.Equal(t, "image/jpeg", in.Preview.MIMEType)
	assert.NotEqual(t, data, in.Preview.Data)
}

func TestEmbeddablePNG(t *testing.T) {
	plain := encodePNG(t, testImage(4, 4))

	assert.True(t, embeddablePNG(plain))
	assert.False(t, embeddablePNG(patchIHDR(plain, 28, 1)), "interlaced")
	assert.False(t, embeddablePNG(patchIHDR(plain, 24, 16)), "16-bit")
	assert.False(t, embeddablePNG(plain[:20]), "truncated")
}

func TestDecodeImage_RejectsHugeDimensions(t *testing.T) {
	data := withDimensions(encodePNG(t, testImage(1, 1)), 100000, 100000)

	_, _, err := DecodeImage(data)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = FromUploadedFile(data)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestDecodeImage(t *testing.T) {
	img, format, err := DecodeImage(encodeJPEG(t, testImage(32, 16)))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 32, img.Bounds().Dx())

	_, _, err = DecodeImage([]byte("not an image"))
	assert.Error(t, err)
}
