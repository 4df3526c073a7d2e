package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

const classifierPrompt = `You analyze one message from a personal journaling conversation.
Identify emotions, Internal Family Systems parts (e.g. Protector, Exile, Manager),
and core human needs (e.g. Safety, Connection, Autonomy) expressed in the text.
Only report items clearly present. Intensity is 0..1. Respond with JSON only.

Message:
`

// GeminiClassifier classifies transcripts with a Gemini model.
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

// NewGeminiClassifier builds a Gemini-backed Pipeline. An empty model selects
// the default flash model.
func NewGeminiClassifier(ctx context.Context, apiKey, model string) (*GeminiClassifier, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("detect: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("detect: create gemini client: %w", err)
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiClassifier{client: client, model: model}, nil
}

func itemSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"label":     {Type: genai.TypeString},
				"category":  {Type: genai.TypeString},
				"intensity": {Type: genai.TypeNumber},
			},
			Required: []string{"label"},
		},
	}
}

// AddMessage implements Pipeline.
func (g *GeminiClassifier) AddMessage(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return &Result{}, nil
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"emotions": itemSchema(),
				"parts":    itemSchema(),
				"needs":    itemSchema(),
			},
			Required: []string{"emotions", "parts", "needs"},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(classifierPrompt+text), config)
	if err != nil {
		return nil, fmt.Errorf("detect: gemini classify: %w", err)
	}

	payload := strings.TrimSpace(resp.Text())
	if payload == "" {
		return nil, fmt.Errorf("detect: gemini returned empty response")
	}

	var result Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("detect: decode gemini response: %w", err)
	}
	result.normalize()
	return &result, nil
}
