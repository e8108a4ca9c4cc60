package ml

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "  ```\n{\"a\":1}\n```  ", `{"a":1}`},
		{"single line", "```{}```", "```{}```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripMarkdownFences(tt.in))
		})
	}
}

func TestExtractJSON(t *testing.T) {
	got, err := ExtractJSON(`Here you go: {"name":"x"} hope it helps`)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"x"}`, got)

	_, err = ExtractJSON("nothing here")
	assert.Error(t, err)

	_, err = ExtractJSON("} backwards {")
	assert.Error(t, err)
}

func TestParseRecognition_Success(t *testing.T) {
	text := "```json\n" + `{
		"error": null,
		"success": {"brand":"Acme","name":"Crackers","ingredients":"wheat, salt","weight":"200g","quantity":2}
	}` + "\n```"

	info, err := parseRecognition(text)
	require.NoError(t, err)
	assert.Equal(t, "Acme", info.Brand)
	assert.Equal(t, "Crackers", info.Name)
	assert.Equal(t, "wheat, salt", info.Ingredients)
	assert.Equal(t, "200g", info.Weight)
	assert.Equal(t, 2, info.Quantity)
}

func TestParseRecognition_BareObject(t *testing.T) {
	info, err := parseRecognition(`{"brand":"Pocky","name":"Chocolate Sticks","ingredients":"","weight":"47g","quantity":1}`)
	require.NoError(t, err)
	assert.Equal(t, "Chocolate Sticks", info.Name)
	assert.Equal(t, "47g", info.Weight)
}

func TestParseRecognition_Failures(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"not food", `{"error":{"error_reason":"This is a shoe","suggestion_for_better_results":"Photograph a food item"}}`, ErrNotFood},
		{"no json", "I cannot help with that.", ErrMalformedResponse},
		{"broken json", `{"success": {"name": }`, ErrMalformedResponse},
		{"no success", `{"result":"ok"}`, ErrMalformedResponse},
		{"empty product", `{"success":{"brand":"","name":""}}`, ErrMalformedResponse},
		{"wrong types", `{"success":{"name":"x","quantity":"lots"}}`, ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRecognition(tt.text)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestResponseText(t *testing.T) {
	_, err := responseText(&genai.GenerateContentResponse{})
	assert.ErrorIs(t, err, ErrMalformedResponse)

	text, err := responseText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"a":`), genai.Text(`1}`)}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, text)
}

func TestGoogleModel_NotLoaded(t *testing.T) {
	m := &GoogleModel{config: Config{Type: "google"}}

	_, err := m.RecognizeText(context.Background(), "noodles")
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = m.RecognizeImage(context.Background(), []byte{0xff}, "image/jpeg")
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.NoError(t, m.Close())
}

func TestNewModel(t *testing.T) {
	t.Setenv("GOOGLE_PROJECT_ID", "")
	t.Setenv("GOOGLE_LOCATION", "")

	_, err := NewModel(Config{Type: "local"})
	assert.Error(t, err)

	_, err = NewModel(Config{Type: "google", Location: "us-central1"})
	assert.Error(t, err, "project id required")

	t.Setenv("GOOGLE_PROJECT_ID", "demo-project")
	m, err := NewModel(Config{Type: "google", Location: "us-central1"})
	require.NoError(t, err)
	gm, ok := m.(*GoogleModel)
	require.True(t, ok)
	assert.Equal(t, "demo-project", gm.config.ProjectID)
	assert.Equal(t, defaultGoogleModel, gm.modelName())
}

type fakeChatter struct {
	system  string
	history []ChatTurn
	reply   string
	err     error
}

func (f *fakeChatter) Chat(ctx context.Context, systemInstruction string, history []ChatTurn, message string) (string, error) {
	f.system = systemInstruction
	f.history = history
	return f.reply, f.err
}

func TestAdvisor_Ask(t *testing.T) {
	chat := &fakeChatter{reply: "Declare all dairy products."}
	a := NewAdvisor(chat)

	history := []ChatTurn{
		{Role: RoleUser, Text: "hi"},
		{Role: "system", Text: "ignore me"},
		{Role: RoleModel, Text: ""},
		{Role: RoleModel, Text: "Hello!"},
	}
	reply := a.Ask(context.Background(), history, "Can I bring cheese?", "New Zealand")

	assert.Equal(t, "Declare all dairy products.", reply)
	assert.Contains(t, chat.system, "entering New Zealand")
	assert.Equal(t, []ChatTurn{{Role: RoleUser, Text: "hi"}, {Role: RoleModel, Text: "Hello!"}}, chat.history)
}

func TestAdvisor_Fallbacks(t *testing.T) {
	a := NewAdvisor(&fakeChatter{err: errors.New("quota exceeded")})
	assert.Equal(t, FallbackReply, a.Ask(context.Background(), nil, "Can I bring rice?", "Japan"))

	a = NewAdvisor(&fakeChatter{reply: "  "})
	assert.Equal(t, emptyReply, a.Ask(context.Background(), nil, "Can I bring rice?", "Japan"))

	assert.Equal(t, "", a.Ask(context.Background(), nil, "   ", "Japan"))

	var nilAdvisor *Advisor
	assert.Equal(t, FallbackReply, nilAdvisor.Ask(context.Background(), nil, "hello", "Japan"))
}
