package gemini

import (
	"context"
	"errors"
	"testing"

	"examgen"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessages(t *testing.T) {
	system, user := splitMessages([]examgen.Message{
		{Role: examgen.RoleSystem, Content: "be strict"},
		{Role: examgen.RoleUser, Content: "make questions"},
	})
	assert.Equal(t, []genai.Part{genai.Text("be strict")}, system)
	assert.Equal(t, []genai.Part{genai.Text("make questions")}, user)
}

func TestGenerationConfig(t *testing.T) {
	cfg := generationConfig(2200, 0.4)
	require.NotNil(t, cfg.MaxOutputTokens)
	require.NotNil(t, cfg.Temperature)
	assert.Equal(t, int32(2200), *cfg.MaxOutputTokens)
	assert.InDelta(t, 0.4, *cfg.Temperature, 1e-6)
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)

	assert.Nil(t, generationConfig(0, 0).MaxOutputTokens)
}

func TestFirstText(t *testing.T) {
	assert.Equal(t, "", firstText(nil))
	assert.Equal(t, "", firstText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: nil},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"questions":[]}`)}}},
		},
	}
	assert.Equal(t, `{"questions":[]}`, firstText(resp))
}

func TestCompleteRequiresKey(t *testing.T) {
	_, err := New("  ", "gemini-1.5-flash").Complete(context.Background(), nil, 100, 0)
	assert.True(t, errors.Is(err, examgen.ErrMissingCredential))
}
