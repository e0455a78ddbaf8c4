// Package gemini provides a Gemini chat-completion backend for examgen.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"examgen"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Completer implements examgen.Completer on the Gemini API
type Completer struct {
	APIKey string
	Model  string
}

func New(apiKey, model string) *Completer {
	return &Completer{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

// Complete sends system messages as the system instruction and the rest as
// user parts, asking for a JSON response
func (c *Completer) Complete(ctx context.Context, messages []examgen.Message, maxTokens int, temperature float32) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("%w: GEMINI_API_KEY is empty", examgen.ErrMissingCredential)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(c.APIKey))
	if err != nil {
		return "", fmt.Errorf("gemini: failed to create client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(c.Model)
	if m == nil {
		return "", errors.New("gemini: model is nil")
	}
	m.GenerationConfig = generationConfig(maxTokens, temperature)

	system, user := splitMessages(messages)
	if len(system) > 0 {
		m.SystemInstruction = &genai.Content{Parts: system}
	}
	if len(user) == 0 {
		return "", errors.New("gemini: no user content")
	}

	resp, err := m.GenerateContent(ctx, user...)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	txt := firstText(resp)
	if txt == "" {
		return "", errors.New("gemini: empty response")
	}
	examgen.VerboseLog("Received %d characters from %s", len(txt), c.Model)
	return txt, nil
}

func generationConfig(maxTokens int, temperature float32) genai.GenerationConfig {
	cfg := genai.GenerationConfig{
		Temperature:      ptrFloat32(temperature),
		ResponseMIMEType: "application/json",
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = ptrInt32(int32(maxTokens))
	}
	return cfg
}

func splitMessages(messages []examgen.Message) (system, user []genai.Part) {
	for _, msg := range messages {
		if msg.Role == examgen.RoleSystem {
			system = append(system, genai.Text(msg.Content))
		} else {
			user = append(user, genai.Text(msg.Content))
		}
	}
	return system, user
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
func ptrInt32(v int32) *int32       { return &v }
