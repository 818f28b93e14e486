package reply

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini generates replies with a single GenerateContent call.
type Gemini struct {
	apiKey string
	model  string
}

func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{apiKey: strings.TrimSpace(apiKey), model: strings.TrimSpace(model)}
}

func (g *Gemini) Reply(ctx context.Context, req Request) (string, error) {
	if g.apiKey == "" {
		return "", fmt.Errorf("%w: api key is not configured", ErrRemoteRequest)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("%w: create client: %w", ErrRemoteRequest, err)
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(Prompt(req)), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(SystemInstruction(req.ContactName))},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: generate content: %w", ErrRemoteRequest, err)
	}
	return normalizeReply(resp.Text())
}
