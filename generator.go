package examgen

import (
	"context"
	"fmt"
	"path/filepath"
)

const generatorSystemPrompt = "You are a strict exam question generator that outputs pure JSON."

// GeneratorConfig holds the orchestrator's tunables
type GeneratorConfig struct {
	Retrieve     RetrieveOptions
	HistoryLimit int
	HistoryLines int
	MaxTokens    int
	Temperature  float32
	OutputDir    string
	// LogDir receives one LLM transcript per generation. Empty disables them.
	LogDir string
}

// DefaultGeneratorConfig returns the defaults used by the CLI
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Retrieve:     DefaultRetrieveOptions(),
		HistoryLimit: 20,
		HistoryLines: 6,
		MaxTokens:    2200,
		Temperature:  0.4,
		OutputDir:    "outputs",
	}
}

// GenerateRequest is one generation invocation
type GenerateRequest struct {
	Params   GenerationParams
	UseCache bool
	// OutPath overrides the JSONL output path; the CSV sits next to it.
	OutPath string
	// MaxK overrides the configured candidate count when positive.
	MaxK int
}

// Result is the outcome of a generation
type Result struct {
	Key       CacheKey
	Records   []QuestionRecord
	FromCache bool
	// Degraded is set when the model output could not be parsed and Records
	// holds the single raw-text fallback.
	Degraded bool
	Outputs  OutputPaths
}

// Generator orchestrates cache lookup, retrieval, prompting, the model call
// and persistence for one question batch at a time
type Generator struct {
	retriever *Retriever
	history   HistoryLog
	cache     *CacheSession
	completer Completer
	template  *PromptTemplate
	cfg       GeneratorConfig
}

// NewGenerator wires the orchestrator. A nil template selects the embedded
// question prompt.
func NewGenerator(retriever *Retriever, history HistoryLog, cache *CacheSession, completer Completer, template *PromptTemplate, cfg GeneratorConfig) *Generator {
	if template == nil {
		template = DefaultQuestionTemplate()
	}
	return &Generator{
		retriever: retriever,
		history:   history,
		cache:     cache,
		completer: completer,
		template:  template,
		cfg:       cfg,
	}
}

// Generate runs one request. Index failures, completion transport failures
// and template errors abort it; an unparseable model response does not.
// Every cache miss is cached, including a degraded raw-text batch.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	params := req.Params
	if err := params.Validate(); err != nil {
		return nil, err
	}

	key := DeriveKey(params)
	outPath := req.OutPath
	if outPath == "" {
		outPath = DefaultOutputPath(g.cfg.OutputDir, params)
	}

	if req.UseCache {
		if records, ok := g.cache.Lookup(key); ok {
			Log().Infof("Cache hit for %s/%s (%s)", params.Subject, params.Topic, key)
			outputs, err := ExportRecords(outPath, records)
			if err != nil {
				return nil, err
			}
			return &Result{Key: key, Records: records, FromCache: true, Outputs: outputs}, nil
		}
	}

	llmLog := g.openTranscript(key, params)
	defer llmLog.Close()

	opts := g.cfg.Retrieve
	if req.MaxK > 0 {
		opts.MaxK = req.MaxK
	}
	examples, err := g.retriever.Retrieve(ctx, params.Topic, params.Subject, opts)
	if err != nil {
		return nil, err
	}
	if len(examples) == 0 {
		Log().Warnf("No examples retrieved for %s/%s, generating without context", params.Subject, params.Topic)
	}

	recent, err := g.history.Tail(ctx, g.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	prompt, err := g.template.Render(QuestionPromptFields{
		Params:         params,
		RetrievedBlock: RenderExamples(examples),
		HistoryBlock:   RenderHistory(recent, g.cfg.HistoryLines),
	})
	if err != nil {
		return nil, err
	}

	llmLog.LogLLMRequest("generator", prompt)
	text, err := g.completer.Complete(ctx, []Message{
		{Role: RoleSystem, Content: generatorSystemPrompt},
		{Role: RoleUser, Content: prompt},
	}, g.cfg.MaxTokens, g.cfg.Temperature)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}
	llmLog.LogLLMResponse("generator", text)

	out := ParseModelOutput(text, params.QType)
	records := Normalize(params, out)
	degraded := out.Kind == OutputRaw
	if degraded {
		Log().Warnf("Model output for %s/%s was not valid: %s", params.Subject, params.Topic, out.Reason)
	}
	for _, note := range out.Notes {
		Log().Warnf("Model output for %s/%s repaired: %s", params.Subject, params.Topic, note)
		llmLog.Logf("Repaired: %s\n", note)
	}
	llmLog.LogOutcome(out.Kind.String(), len(records))

	g.cache.Insert(key, records)
	if err := g.history.Append(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to append history: %w", err)
	}
	outputs, err := ExportRecords(outPath, records)
	if err != nil {
		return nil, err
	}

	return &Result{Key: key, Records: records, Degraded: degraded, Outputs: outputs}, nil
}

// Flush writes pending cache inserts
func (g *Generator) Flush(ctx context.Context) error {
	return g.cache.Flush(ctx)
}

func (g *Generator) openTranscript(key CacheKey, params GenerationParams) *LLMLogger {
	if g.cfg.LogDir == "" {
		return &LLMLogger{}
	}
	l, err := NewLLMLogger(filepath.Clean(g.cfg.LogDir), key, params)
	if err != nil {
		Log().Warnf("LLM transcript disabled: %v", err)
		return &LLMLogger{}
	}
	return l
}
