package examgen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuestionSet(t *testing.T) {
	set := ParseQuestionSet("```json\n{\"questions\":[{\"stem\":\"a\"},{\"stem\":\"b\"}]}\n```")
	require.Len(t, set, 2)
	assert.Equal(t, map[string]any{"stem": "a"}, set[0])

	assert.Equal(t, []any{"not json at all"}, ParseQuestionSet("not json at all"))
	assert.Equal(t, []any{}, ParseQuestionSet(`{"items":[1]}`))
}

func TestParseVerdict(t *testing.T) {
	v := ParseVerdict(`{"winner":"A","rationale":"closer to the bank"}`)
	assert.Equal(t, "A", v["winner"])

	assert.Equal(t, map[string]any{"raw": "A is better"}, ParseVerdict("A is better"))
	assert.Equal(t, map[string]any{"raw": "null"}, ParseVerdict("null"))
	assert.Equal(t, map[string]any{"raw": "[1,2]"}, ParseVerdict("[1,2]"))
}

func TestCompare(t *testing.T) {
	ix := &fakeIndex{hits: []RetrievedExample{
		{Document: "Which pigment absorbs light?", Metadata: Metadata{Source: "bank"}, Distance: 0.1},
		{Document: "Unrelated far question", Metadata: Metadata{Source: "bank"}, Distance: 0.9},
	}}
	completer := &fakeCompleter{responses: []string{
		`{"questions":[{"stem":"rag question"}]}`,
		`plain prose answer`,
		`{"winner":"A","rationale":"uses the bank style"}`,
	}}
	logDir := t.TempDir()
	cfg := DefaultCompareConfig()
	cfg.LogDir = logDir

	cmp, err := NewComparer(NewRetriever(ix), completer, nil, nil, cfg).Compare(context.Background(), testParams())
	require.NoError(t, err)

	assert.Equal(t, []int{6}, ix.topNs)
	// top-k keeps the far hit; there is no adaptive cutoff
	assert.Equal(t, "- (bank) Which pigment absorbs light?\n- (bank) Unrelated far question", cmp.RetrievedBlock)
	assert.Equal(t, []any{map[string]any{"stem": "rag question"}}, cmp.RAGSet)
	assert.Equal(t, []any{"plain prose answer"}, cmp.NoRAGSet)
	assert.Equal(t, "A", cmp.Judge["winner"])
	assert.Equal(t, "science", cmp.Subject)
	assert.Equal(t, QTypeMCQ, cmp.QType)

	require.Len(t, completer.calls, 3)
	assert.Equal(t, []int{1800, 1800, 800}, completer.maxTokens)
	assert.Equal(t, []float32{0.6, 0.6, 0.0}, completer.temps)

	assert.Contains(t, completer.prompt(0), "Which pigment absorbs light?")
	assert.NotContains(t, completer.prompt(1), "Which pigment absorbs light?")

	judgePrompt := completer.prompt(2)
	assert.Equal(t, judgeSystemPrompt, completer.calls[2][0].Content)
	assert.Contains(t, judgePrompt, `"stem": "rag question"`)
	assert.Contains(t, judgePrompt, `"plain prose answer"`)
	assert.Contains(t, judgePrompt, "- (bank) Which pigment absorbs light?")
	assert.False(t, strings.Contains(judgePrompt, "{{"))

	transcript, err := os.ReadFile(filepath.Join(logDir, "compare-"+string(DeriveKey(testParams()))+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(transcript), "LLM REQUEST (judge)")
	assert.Contains(t, string(transcript), "LLM RESPONSE (generate/norag)")
}

func TestCompareUnparseableVerdict(t *testing.T) {
	completer := &fakeCompleter{responses: []string{`{"questions":[]}`, `{"questions":[]}`, "Set A wins."}}
	cmp, err := NewComparer(NewRetriever(&fakeIndex{}), completer, nil, nil, DefaultCompareConfig()).Compare(context.Background(), testParams())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"raw": "Set A wins."}, cmp.Judge)
	assert.Equal(t, "", cmp.RetrievedBlock)
}

func TestCompareLabelsRunsWithEmptyRetrieval(t *testing.T) {
	logDir := t.TempDir()
	cfg := DefaultCompareConfig()
	cfg.LogDir = logDir
	completer := &fakeCompleter{responses: []string{`{"questions":[]}`, `{"questions":[]}`, `{"winner":"tie"}`}}

	_, err := NewComparer(NewRetriever(&fakeIndex{}), completer, nil, nil, cfg).Compare(context.Background(), testParams())
	require.NoError(t, err)

	transcript, err := os.ReadFile(filepath.Join(logDir, "compare-"+string(DeriveKey(testParams()))+".log"))
	require.NoError(t, err)
	text := string(transcript)
	assert.Contains(t, text, "LLM REQUEST (generate/rag)")
	assert.Contains(t, text, "LLM REQUEST (generate/norag)")
	assert.Less(t, strings.Index(text, "(generate/rag)"), strings.Index(text, "(generate/norag)"))
}

func TestCompareErrors(t *testing.T) {
	_, err := NewComparer(NewRetriever(&fakeIndex{err: errors.New("down")}), &fakeCompleter{}, nil, nil, DefaultCompareConfig()).
		Compare(context.Background(), testParams())
	assert.True(t, errors.Is(err, ErrIndexUnavailable))

	completer := &fakeCompleter{err: errors.New("rate limited")}
	_, err = NewComparer(NewRetriever(&fakeIndex{}), completer, nil, nil, DefaultCompareConfig()).
		Compare(context.Background(), testParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Len(t, completer.calls, 1)

	p := testParams()
	p.Subject = ""
	_, err = NewComparer(NewRetriever(&fakeIndex{}), &fakeCompleter{}, nil, nil, DefaultCompareConfig()).Compare(context.Background(), p)
	assert.True(t, errors.Is(err, ErrInvalidParams))
}
