package examgen

import (
	"context"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one chat turn
type Message struct {
	Role    string
	Content string
}

// Completer is a chat-completion provider. It returns the model's text as is.
type Completer interface {
	Complete(ctx context.Context, messages []Message, maxTokens int, temperature float32) (string, error)
}

// Embedder turns texts into fixed-length L2-normalized vectors
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAICompleter calls an OpenAI-compatible chat completion endpoint
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a completer. An empty baseURL uses the OpenAI
// API; OpenRouter and other compatible gateways work through baseURL.
func NewOpenAICompleter(apiKey, baseURL, model string) *OpenAICompleter {
	return &OpenAICompleter{
		client: openai.NewClientWithConfig(openAIConfig(apiKey, baseURL)),
		model:  model,
	}
}

// Complete implements Completer
func (c *OpenAICompleter) Complete(ctx context.Context, messages []Message, maxTokens int, temperature float32) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openAIRole(m.Role),
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	VerboseLog("Received response from %s with %d choices (%d tokens)", c.model, len(resp.Choices), resp.Usage.TotalTokens)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", c.model)
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIRole(role string) string {
	switch role {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates an embedder. dimensions <= 0 keeps the model's
// native size.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(openAIConfig(apiKey, baseURL)),
		model:      model,
		dimensions: dimensions,
	}
}

// Embed implements Embedder
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = NormalizeVector(d.Embedding)
	}
	return vectors, nil
}

func openAIConfig(apiKey, baseURL string) openai.ClientConfig {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return cfg
}

// NormalizeVector scales v to unit length. A zero vector is returned as is.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// CosineDistance returns 1 - cosine similarity of a and b
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return math.NaN()
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
