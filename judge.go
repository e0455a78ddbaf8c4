package examgen

import (
	"context"
	"encoding/json"
	"fmt"
)

const judgeSystemPrompt = "You are an impartial exam-quality judge that outputs JSON only."

// CompareConfig holds the comparison tunables
type CompareConfig struct {
	TopK             int
	GenMaxTokens     int
	GenTemperature   float32
	JudgeMaxTokens   int
	JudgeTemperature float32
	LogDir           string
}

// DefaultCompareConfig returns top_k 6, generation at 0.6/1800 tokens and a
// deterministic judge at 0.0/800 tokens
func DefaultCompareConfig() CompareConfig {
	return CompareConfig{
		TopK:             6,
		GenMaxTokens:     1800,
		GenTemperature:   0.6,
		JudgeMaxTokens:   800,
		JudgeTemperature: 0.0,
	}
}

// Comparison is one pairwise evaluation of retrieval-augmented against plain
// generation
type Comparison struct {
	Subject        string         `json:"subject"`
	Topic          string         `json:"topic"`
	QType          QType          `json:"qtype"`
	Difficulty     Difficulty     `json:"difficulty"`
	RetrievedBlock string         `json:"retrieved_block"`
	RAGSet         []any          `json:"rag_set"`
	NoRAGSet       []any          `json:"norag_set"`
	Judge          map[string]any `json:"judge"`
}

// Comparer generates a question set with and without retrieved context and
// asks a judge model which is better
type Comparer struct {
	retriever *Retriever
	completer Completer
	generate  *PromptTemplate
	judge     *PromptTemplate
	cfg       CompareConfig
}

// NewComparer wires a comparer. Nil templates select the embedded defaults.
func NewComparer(retriever *Retriever, completer Completer, generate, judge *PromptTemplate, cfg CompareConfig) *Comparer {
	if generate == nil {
		generate = DefaultQuestionTemplate()
	}
	if judge == nil {
		judge = DefaultJudgeTemplate()
	}
	return &Comparer{
		retriever: retriever,
		completer: completer,
		generate:  generate,
		judge:     judge,
		cfg:       cfg,
	}
}

// Compare runs both generations and the judge. The retrieved block is a
// plain top-k list without the adaptive cutoff.
func (c *Comparer) Compare(ctx context.Context, params GenerationParams) (*Comparison, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	llmLog := c.openTranscript(params)
	defer llmLog.Close()

	examples, err := c.retriever.TopK(ctx, params.Topic, params.Subject, c.cfg.TopK)
	if err != nil {
		return nil, err
	}
	retrieved := RenderExamples(examples)

	ragSet, err := c.generateSet(ctx, llmLog, "generate/rag", params, retrieved)
	if err != nil {
		return nil, fmt.Errorf("retrieval-augmented generation failed: %w", err)
	}
	noRAGSet, err := c.generateSet(ctx, llmLog, "generate/norag", params, "")
	if err != nil {
		return nil, fmt.Errorf("plain generation failed: %w", err)
	}

	ragJSON, err := marshalIndent(ragSet)
	if err != nil {
		return nil, err
	}
	noRAGJSON, err := marshalIndent(noRAGSet)
	if err != nil {
		return nil, err
	}

	prompt, err := c.judge.Render(JudgePromptFields{
		Params:         params,
		RetrievedBlock: retrieved,
		RAGBlock:       string(ragJSON),
		NoRAGBlock:     string(noRAGJSON),
	})
	if err != nil {
		return nil, err
	}

	llmLog.LogLLMRequest("judge", prompt)
	text, err := c.completer.Complete(ctx, []Message{
		{Role: RoleSystem, Content: judgeSystemPrompt},
		{Role: RoleUser, Content: prompt},
	}, c.cfg.JudgeMaxTokens, c.cfg.JudgeTemperature)
	if err != nil {
		return nil, fmt.Errorf("judge completion failed: %w", err)
	}
	llmLog.LogLLMResponse("judge", text)

	return &Comparison{
		Subject:        params.Subject,
		Topic:          params.Topic,
		QType:          params.QType,
		Difficulty:     params.Difficulty,
		RetrievedBlock: retrieved,
		RAGSet:         ragSet,
		NoRAGSet:       noRAGSet,
		Judge:          ParseVerdict(text),
	}, nil
}

func (c *Comparer) generateSet(ctx context.Context, llmLog *LLMLogger, module string, params GenerationParams, retrieved string) ([]any, error) {
	prompt, err := c.generate.Render(QuestionPromptFields{
		Params:         params,
		RetrievedBlock: retrieved,
	})
	if err != nil {
		return nil, err
	}

	llmLog.LogLLMRequest(module, prompt)
	text, err := c.completer.Complete(ctx, []Message{
		{Role: RoleSystem, Content: generatorSystemPrompt},
		{Role: RoleUser, Content: prompt},
	}, c.cfg.GenMaxTokens, c.cfg.GenTemperature)
	if err != nil {
		return nil, err
	}
	llmLog.LogLLMResponse(module, text)

	return ParseQuestionSet(text), nil
}

func (c *Comparer) openTranscript(params GenerationParams) *LLMLogger {
	if c.cfg.LogDir == "" {
		return &LLMLogger{}
	}
	l, err := NewLLMLogger(c.cfg.LogDir, "compare-"+DeriveKey(params), params)
	if err != nil {
		Log().Warnf("LLM transcript disabled: %v", err)
		return &LLMLogger{}
	}
	return l
}

// ParseQuestionSet extracts the "questions" array as loosely typed values.
// Text that is not JSON becomes a one-element set holding the text; a JSON
// object without questions becomes an empty set.
func ParseQuestionSet(text string) []any {
	var envelope struct {
		Questions []any `json:"questions"`
	}
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &envelope); err != nil {
		return []any{text}
	}
	if envelope.Questions == nil {
		return []any{}
	}
	return envelope.Questions
}

// ParseVerdict decodes the judge's JSON object, or wraps the text as
// {"raw": text} when it is not one
func ParseVerdict(text string) map[string]any {
	var verdict map[string]any
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &verdict); err != nil || verdict == nil {
		return map[string]any{"raw": text}
	}
	return verdict
}
