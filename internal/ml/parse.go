package ml

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/franckalain/fooddeclare/internal/models"
)

// StripMarkdownFences removes ```json ... ``` or ``` ... ``` wrapping from text
func StripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return text
	}

	end := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			end = i
			break
		}
	}
	return strings.Join(lines[1:end], "\n")
}

// ExtractJSON returns the text between the first { and the last }
func ExtractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	if start == -1 {
		return "", fmt.Errorf("no JSON object found")
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return "", fmt.Errorf("no closing } found")
	}
	return text[start : end+1], nil
}

// ParseJSON strips fences, extracts the JSON object and unmarshals it into T
func ParseJSON[T any](raw string) (T, error) {
	var zero T

	jsonStr, err := ExtractJSON(StripMarkdownFences(raw))
	if err != nil {
		return zero, fmt.Errorf("%w (raw length: %d)", err, len(raw))
	}

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		preview := jsonStr
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return zero, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview)
	}
	return result, nil
}

type recognitionError struct {
	ErrorReason string `json:"error_reason"`
	Suggestion  string `json:"suggestion_for_better_results"`
}

// parseRecognition reads the model answer. It accepts the wrapped
// {"error":{...}} / {"success":{...}} form and a bare product object.
func parseRecognition(text string) (*models.ProductInfo, error) {
	raw, err := ParseJSON[map[string]json.RawMessage](text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if errRaw, ok := raw["error"]; ok && string(errRaw) != "null" {
		var rerr recognitionError
		if err := json.Unmarshal(errRaw, &rerr); err != nil {
			return nil, fmt.Errorf("%w: invalid error object: %v", ErrMalformedResponse, err)
		}
		if rerr.ErrorReason != "" {
			return nil, fmt.Errorf("%w: %s; suggestion: %s", ErrNotFood, rerr.ErrorReason, rerr.Suggestion)
		}
	}

	body, ok := raw["success"]
	if !ok || string(body) == "null" {
		if _, bare := raw["name"]; !bare {
			return nil, fmt.Errorf("%w: missing success object", ErrMalformedResponse)
		}
		body, err = json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	var info models.ProductInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: invalid success object: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(info.Name) == "" && strings.TrimSpace(info.Brand) == "" {
		return nil, fmt.Errorf("%w: neither brand nor name in response", ErrMalformedResponse)
	}
	return &info, nil
}
