package classify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiProvider classifies with Google's Gemini models.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY not set")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	m := client.GenerativeModel(model)
	m.SetTemperature(0.2)
	return &GeminiProvider{client: client, model: m, name: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini:" + p.name }

func (p *GeminiProvider) Classify(ctx context.Context, text string) (string, error) {
	resp, err := p.model.GenerateContent(ctx, genai.Text(systemPrompt+"\n"+Prompt(text)))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no response from Gemini API")
	}
	return fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]), nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
