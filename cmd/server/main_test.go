package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/franckalain/fooddeclare/internal/config"
	"github.com/franckalain/fooddeclare/internal/database"
	"github.com/franckalain/fooddeclare/internal/declaration"
	"github.com/franckalain/fooddeclare/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedItems(t *testing.T, dir string, items ...models.DeclaredItem) {
	t.Helper()
	store, err := database.NewFileStore(dir)
	require.NoError(t, err)
	log := declaration.NewLog(store)
	require.NoError(t, log.Load(context.Background()))
	for _, item := range items {
		require.NoError(t, log.Create(context.Background(), item))
	}
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	store := []string{"--store-type", "file", "--store-path", dir}

	out, err := execute(t, append([]string{"list"}, store...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Destination: "+declaration.DefaultCountry)
	assert.Contains(t, out, "No items declared")

	seedItems(t, dir,
		models.DeclaredItem{ID: "a", Brand: "Arnott's", Name: "Tim Tam", Weight: "200g", Quantity: 2, CreatedAt: time.Now()},
		models.DeclaredItem{ID: "b", Brand: "Bega", Name: "Vegemite", Weight: "380g", Quantity: 1, CreatedAt: time.Now()},
	)

	out, err = execute(t, append([]string{"list"}, store...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Tim Tam")
	assert.Contains(t, out, "Vegemite")

	pdfPath := filepath.Join(t.TempDir(), "out.pdf")
	out, err = execute(t, append([]string{"export", "--out", pdfPath}, store...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 2 items")
	data, err := os.ReadFile(pdfPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	_, err = execute(t, append([]string{"delete", "missing"}, store...)...)
	assert.Error(t, err)

	out, err = execute(t, append([]string{"delete", "a"}, store...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted a")

	_, err = execute(t, append([]string{"clear"}, store...)...)
	assert.ErrorContains(t, err, "--yes")

	out, err = execute(t, append([]string{"clear", "--yes"}, store...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 1 items")
}

func TestPendingInput(t *testing.T) {
	in, err := pendingInput("", "  lamingtons ")
	require.NoError(t, err)
	assert.Equal(t, models.InputText, in.Kind)
	assert.Equal(t, "lamingtons", in.Query)

	_, err = pendingInput("", "   ")
	assert.Error(t, err)

	_, err = pendingInput(filepath.Join(t.TempDir(), "missing.jpg"), "")
	assert.Error(t, err)
}

func TestConfigConversions(t *testing.T) {
	var c config.Config
	c.ML.Type = "google"
	c.ML.ProjectID = "proj"
	c.ML.Location = "europe-west1"
	c.ML.Temperature = 0.2
	c.ML.Timeout = 10 * time.Second
	c.Camera.Facing = "front"
	c.Camera.Width = 640
	c.Camera.Height = 480

	mc := mlConfig(&c)
	assert.Equal(t, "proj", mc.ProjectID)
	assert.Equal(t, "europe-west1", mc.Location)
	assert.Equal(t, float32(0.2), mc.Temperature)
	assert.Equal(t, 10*time.Second, mc.Timeout)

	cc := cameraConstraints(&c)
	assert.Equal(t, 640, cc.Width)
	assert.Equal(t, "front", string(cc.Facing))

	assert.Nil(t, accessGate(&c))
	c.Access.Enabled = true
	c.Access.Codes = []string{"ABC"}
	assert.NotNil(t, accessGate(&c))
}
