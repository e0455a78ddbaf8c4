package examgen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// QType is the kind of question being generated
type QType string

const (
	QTypeMCQ QType = "mcq"
	QTypeTF  QType = "tf"
)

// Difficulty of a generated question
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// BloomLevel is the pedagogical taxonomy tag attached to each question
type BloomLevel string

const (
	BloomRemember   BloomLevel = "remember"
	BloomUnderstand BloomLevel = "understand"
	BloomApply      BloomLevel = "apply"
	BloomAnalyze    BloomLevel = "analyze"
	BloomEvaluate   BloomLevel = "evaluate"
	BloomCreate     BloomLevel = "create"
)

// TrueFalseOptions is the only option set a tf question may carry
var TrueFalseOptions = []string{"True", "False"}

// GenerationParams describes one generation request. It is treated as an
// immutable value and is the only input to cache key derivation.
type GenerationParams struct {
	Subject    string     `json:"subject" validate:"required"`
	Topic      string     `json:"topic" validate:"required"`
	QType      QType      `json:"qtype" validate:"oneof=mcq tf"`
	Difficulty Difficulty `json:"difficulty" validate:"oneof=easy medium hard"`
	BloomLevel BloomLevel `json:"bloom_level" validate:"oneof=remember understand apply analyze evaluate create"`
	N          int        `json:"n" validate:"gt=0"`
}

// QuestionRecord is a normalized, persisted question
type QuestionRecord struct {
	ID          string     `json:"id"`
	Subject     string     `json:"subject"`
	Topic       string     `json:"topic"`
	Type        QType      `json:"type"`
	Stem        string     `json:"stem"`
	Options     []string   `json:"options"`
	AnswerIdx   int        `json:"answer_idx"`
	Explanation string     `json:"explanation"`
	BloomLevel  BloomLevel `json:"bloom_level"`
	Difficulty  Difficulty `json:"difficulty"`
}

// Metadata is the tag set stored next to every indexed question document
type Metadata struct {
	Subject string `json:"subject"`
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Source  string `json:"source"`
}

// Document is a question bank entry ready to be upserted into an Index
type Document struct {
	ID       string
	Text     string
	Metadata Metadata
}

// RetrievedExample is a transient similarity search hit. Smaller distance
// means closer.
type RetrievedExample struct {
	Document string   `json:"document"`
	Metadata Metadata `json:"metadata"`
	Distance float64  `json:"distance"`
}

// QuestionItem is one question as emitted by the model, before normalization
type QuestionItem struct {
	Stem        string       `json:"stem" validate:"required"`
	Options     []string     `json:"options"`
	AnswerIdx   *AnswerIndex `json:"answer_idx"`
	Explanation string       `json:"explanation"`
}

// AnswerIndex accepts the integer, float and numeric-string spellings models
// use for answer_idx. Anything else decodes to InvalidAnswer.
type AnswerIndex int

// InvalidAnswer marks an answer_idx that could not be read as an index
const InvalidAnswer AnswerIndex = -1

// UnmarshalJSON implements json.Unmarshaler
func (a *AnswerIndex) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("failed to decode answer_idx: %w", err)
	}

	switch t := v.(type) {
	case json.Number:
		*a = numberToIndex(t.String())
	case string:
		*a = numberToIndex(strings.TrimSpace(t))
	default:
		*a = InvalidAnswer
	}
	return nil
}

func numberToIndex(s string) AnswerIndex {
	if i, err := strconv.Atoi(s); err == nil {
		return AnswerIndex(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) {
		return AnswerIndex(int(f))
	}
	return InvalidAnswer
}
