package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Gemini narrates turns through Google's generative models.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini builds a Gemini-backed engine. Close must be called to release
// the underlying client.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create generative client: %w", err)
	}
	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Narrate sends one action with its scene context and parses the reply.
// Malformed model output is not an error; it degrades to a raw outcome.
func (g *Gemini) Narrate(ctx context.Context, action string, scene Scene) (Outcome, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(BuildPrompt(action, scene)))
	if err != nil {
		if isRateLimited(err) {
			return Outcome{}, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return Outcome{}, fmt.Errorf("generate narration: %w", err)
	}

	text := flattenResponse(resp)
	if text == "" {
		return Outcome{}, errors.New("generate narration: empty response")
	}
	return ParseOutcome(text), nil
}

// Close releases the generative client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

func isRateLimited(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests
}

func flattenResponse(resp *genai.GenerateContentResponse) string {
	var text string
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				text += string(txt)
			}
		}
	}
	return text
}
