package ml

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/franckalain/fooddeclare/internal/models"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const defaultGoogleModel = "gemini-2.5-flash"

const responseFormat = `Format the response as a JSON object with exactly one of "error" or "success" populated.
If the input is not a food or drink product, or it cannot be identified, populate "error".
Do not wrap the JSON in Markdown code blocks.
{
	"error": {
		"error_reason": "string",
		"suggestion_for_better_results": "string"
	},
	"success": {
		"brand": "string",
		"name": "string",
		"ingredients": "string",
		"weight": "string, net weight or volume as printed, e.g. 50g or 330ml",
		"quantity": number
	}
}`

const imagePrompt = `Analyze this food product image.
1. Identify the exact brand and product name from the packaging.
2. Read the net weight or volume.
3. Read the full ingredient list; if it is not visible, give the official list for this product.
Quantity is the number of identical packages visible, at least 1.

` + responseFormat

const textPromptTemplate = `The user is looking for the details of this food product: %q.
1. Identify the brand and accurate product name.
2. Give the exact commercial net weight for this product.
3. Give the full ingredient list.
Quantity is 1 unless the description names a count.

` + responseFormat

// GoogleModel implements the Model interface for Google's Vertex AI
type GoogleModel struct {
	config Config
	client *genai.Client
	model  *genai.GenerativeModel
}

// GoogleModelFactory implements ModelFactory for Google models
type GoogleModelFactory struct {
	config Config
}

// NewGoogleModelFactory creates a new Google model factory
func NewGoogleModelFactory(config Config) *GoogleModelFactory {
	return &GoogleModelFactory{config: config}
}

// CreateModel creates a new Google model instance
func (f *GoogleModelFactory) CreateModel() (Model, error) {
	return &GoogleModel{config: f.config}, nil
}

// Load initializes the Vertex AI client
func (m *GoogleModel) Load(ctx context.Context) error {
	opts := []option.ClientOption{}
	if m.config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(m.config.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, m.config.ProjectID, m.config.Location, opts...)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	m.client = client
	m.model = m.newGenerativeModel()
	log.Info().
		Str("project", m.config.ProjectID).
		Str("location", m.config.Location).
		Str("model", m.modelName()).
		Msg("Vertex AI model loaded")
	return nil
}

func (m *GoogleModel) modelName() string {
	if m.config.Model == "" {
		return defaultGoogleModel
	}
	return m.config.Model
}

func (m *GoogleModel) newGenerativeModel() *genai.GenerativeModel {
	gm := m.client.GenerativeModel(m.modelName())
	gm.SetTemperature(m.config.Temperature)
	return gm
}

// RecognizeImage asks the model to identify the product in an image
func (m *GoogleModel) RecognizeImage(ctx context.Context, data []byte, mimeType string) (*models.ProductInfo, error) {
	if m.model == nil {
		return nil, ErrNotLoaded
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	log.Debug().Int("size", len(data)).Str("mime_type", mimeType).Msg("Calling the model with an image")
	resp, err := m.model.GenerateContent(ctx, genai.Blob{MIMEType: mimeType, Data: data}, genai.Text(imagePrompt))
	if err != nil {
		return nil, fmt.Errorf("failed to call ai: %w", err)
	}
	return m.parseResponse(resp)
}

// RecognizeText asks the model for the details of a described product
func (m *GoogleModel) RecognizeText(ctx context.Context, query string) (*models.ProductInfo, error) {
	if m.model == nil {
		return nil, ErrNotLoaded
	}

	log.Debug().Str("query", query).Msg("Calling the model with a query")
	resp, err := m.model.GenerateContent(ctx, genai.Text(fmt.Sprintf(textPromptTemplate, query)))
	if err != nil {
		return nil, fmt.Errorf("failed to call ai: %w", err)
	}
	return m.parseResponse(resp)
}

func (m *GoogleModel) parseResponse(resp *genai.GenerateContentResponse) (*models.ProductInfo, error) {
	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	return parseRecognition(text)
}

// Chat sends message in a conversation that starts with history, under
// the given system instruction, and returns the model's reply.
func (m *GoogleModel) Chat(ctx context.Context, systemInstruction string, history []ChatTurn, message string) (string, error) {
	if m.client == nil {
		return "", ErrNotLoaded
	}

	gm := m.newGenerativeModel()
	gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemInstruction)}}

	cs := gm.StartChat()
	for _, turn := range history {
		cs.History = append(cs.History, &genai.Content{
			Role:  turn.Role,
			Parts: []genai.Part{genai.Text(turn.Text)},
		})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("failed to send chat message: %w", err)
	}
	return responseText(resp)
}

// Close closes the Vertex AI client
func (m *GoogleModel) Close() error {
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	m.model = nil
	return err
}

// responseText concatenates the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no response generated", ErrMalformedResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no content in response", ErrMalformedResponse)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no text in response", ErrMalformedResponse)
	}
	return sb.String(), nil
}

var (
	_ Model   = (*GoogleModel)(nil)
	_ Chatter = (*GoogleModel)(nil)
)
