package examgen

import (
	"embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

//go:embed prompts/*.txt
var promptFS embed.FS

const (
	defaultQuestionPrompt = "prompts/qg_prompt.txt"
	defaultJudgePrompt    = "prompts/judge_rubric.txt"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// TemplateFields is the closed set of field groups a PromptTemplate can
// render. Implemented by QuestionPromptFields and JudgePromptFields.
type TemplateFields interface {
	templateValues() map[string]string
}

// QuestionPromptFields fills the question generation template
type QuestionPromptFields struct {
	Params         GenerationParams
	RetrievedBlock string
	HistoryBlock   string
}

func (f QuestionPromptFields) templateValues() map[string]string {
	return map[string]string{
		"subject":         f.Params.Subject,
		"topic":           f.Params.Topic,
		"qtype":           string(f.Params.QType),
		"difficulty":      string(f.Params.Difficulty),
		"bloom_level":     string(f.Params.BloomLevel),
		"n":               strconv.Itoa(f.Params.N),
		"retrieved_block": f.RetrievedBlock,
		"history_block":   f.HistoryBlock,
	}
}

// JudgePromptFields fills the pairwise judge template
type JudgePromptFields struct {
	Params         GenerationParams
	RetrievedBlock string
	RAGBlock       string
	NoRAGBlock     string
}

func (f JudgePromptFields) templateValues() map[string]string {
	return map[string]string{
		"subject":         f.Params.Subject,
		"topic":           f.Params.Topic,
		"qtype":           string(f.Params.QType),
		"difficulty":      string(f.Params.Difficulty),
		"bloom_level":     string(f.Params.BloomLevel),
		"n":               strconv.Itoa(f.Params.N),
		"retrieved_block": f.RetrievedBlock,
		"rag_block":       f.RAGBlock,
		"norag_block":     f.NoRAGBlock,
	}
}

// PromptTemplate is a text with {{name}} placeholders
type PromptTemplate struct {
	name string
	text string
}

// NewPromptTemplate wraps text; name is used in error messages
func NewPromptTemplate(name, text string) *PromptTemplate {
	return &PromptTemplate{name: name, text: text}
}

// LoadPromptTemplate reads a template file. An empty path selects the
// embedded question prompt.
func LoadPromptTemplate(path string) (*PromptTemplate, error) {
	if path == "" {
		return DefaultQuestionTemplate(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt template: %w", err)
	}
	return NewPromptTemplate(path, string(data)), nil
}

// LoadJudgeTemplate reads a judge template file. An empty path selects the
// embedded rubric.
func LoadJudgeTemplate(path string) (*PromptTemplate, error) {
	if path == "" {
		return DefaultJudgeTemplate(), nil
	}
	return LoadPromptTemplate(path)
}

// DefaultQuestionTemplate returns the embedded question generation prompt
func DefaultQuestionTemplate() *PromptTemplate {
	return mustEmbedded(defaultQuestionPrompt)
}

// DefaultJudgeTemplate returns the embedded judge rubric
func DefaultJudgeTemplate() *PromptTemplate {
	return mustEmbedded(defaultJudgePrompt)
}

func mustEmbedded(name string) *PromptTemplate {
	data, err := promptFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("embedded prompt %s missing: %v", name, err))
	}
	return NewPromptTemplate(name, string(data))
}

// Placeholders lists the distinct placeholder names in the template
func (t *PromptTemplate) Placeholders() []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(t.text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

// Render substitutes every placeholder. A placeholder outside the field set
// fails with ErrTemplateField instead of being left in the output.
func (t *PromptTemplate) Render(fields TemplateFields) (string, error) {
	values := fields.templateValues()

	missing := map[string]bool{}
	out := placeholderRe.ReplaceAllStringFunc(t.text, func(token string) string {
		name := placeholderRe.FindStringSubmatch(token)[1]
		v, ok := values[name]
		if !ok {
			missing[name] = true
			return token
		}
		return v
	})

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return "", fmt.Errorf("%w in %s: %s", ErrTemplateField, t.name, strings.Join(names, ", "))
	}
	return out, nil
}
