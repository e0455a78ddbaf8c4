package examgen

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OutputKind tags a parsed model response
type OutputKind int

const (
	// OutputBatch is a schema-valid list of questions
	OutputBatch OutputKind = iota
	// OutputRaw is a response that failed validation; only the text is kept
	OutputRaw
)

func (k OutputKind) String() string {
	switch k {
	case OutputBatch:
		return "batch"
	case OutputRaw:
		return "raw"
	default:
		return fmt.Sprintf("OutputKind(%d)", int(k))
	}
}

// ModelOutput is the result of validating a completion. Questions is set for
// OutputBatch; Raw always holds the original text and Reason explains an
// OutputRaw classification. Notes lists item-level repairs in a batch.
type ModelOutput struct {
	Kind      OutputKind
	Questions []QuestionItem
	Raw       string
	Reason    string
	Notes     []string
}

// ParseModelOutput validates a completion against the questions schema: a
// JSON object with a non-empty "questions" array of objects. Items without
// a stem are dropped; the batch falls back to OutputRaw only when the shape
// is wrong or no item is left. Answer indices are checked by Normalize.
// Markdown code fences around the JSON are tolerated.
func ParseModelOutput(text string, qtype QType) ModelOutput {
	raw := func(reason string) ModelOutput {
		return ModelOutput{Kind: OutputRaw, Raw: text, Reason: reason}
	}

	var envelope struct {
		Questions *[]json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &envelope); err != nil {
		return raw(fmt.Sprintf("not a JSON object: %v", err))
	}
	if envelope.Questions == nil {
		return raw("missing questions field")
	}
	if len(*envelope.Questions) == 0 {
		return raw("empty questions array")
	}

	var notes []string
	items := make([]QuestionItem, 0, len(*envelope.Questions))
	for i, msg := range *envelope.Questions {
		var item QuestionItem
		if err := json.Unmarshal(msg, &item); err != nil {
			return raw(fmt.Sprintf("question %d: %v", i, err))
		}
		if err := validate.Struct(item); err != nil {
			notes = append(notes, fmt.Sprintf("question %d: dropped, no stem", i))
			continue
		}
		if qtype == QTypeMCQ && !answerInRange(item) {
			notes = append(notes, fmt.Sprintf("question %d: answer_idx missing or outside options, set to 0", i))
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return raw("no question has a stem")
	}

	return ModelOutput{Kind: OutputBatch, Questions: items, Raw: text, Notes: notes}
}

func answerInRange(item QuestionItem) bool {
	return item.AnswerIdx != nil && int(*item.AnswerIdx) >= 0 && int(*item.AnswerIdx) < len(item.Options)
}

// Normalize turns a parsed model output into records for params. tf items
// get options ["True","False"] and an answer_idx outside {0,1} becomes 0;
// any other answer_idx that is missing or outside the options becomes 0.
// A raw output becomes a single record whose stem is the raw text.
func Normalize(params GenerationParams, out ModelOutput) []QuestionRecord {
	if out.Kind == OutputRaw {
		return []QuestionRecord{newRecord(params, 0, out.Raw, []string{}, 0, "")}
	}

	records := make([]QuestionRecord, 0, len(out.Questions))
	for i, q := range out.Questions {
		options := append([]string{}, q.Options...)
		if params.QType == QTypeTF {
			options = append([]string{}, TrueFalseOptions...)
		}

		answer := 0
		if q.AnswerIdx != nil {
			answer = int(*q.AnswerIdx)
		}
		if answer < 0 || answer >= len(options) {
			answer = 0
		}
		records = append(records, newRecord(params, i, q.Stem, options, answer, q.Explanation))
	}
	return records
}

func newRecord(params GenerationParams, ordinal int, stem string, options []string, answer int, explanation string) QuestionRecord {
	return QuestionRecord{
		ID:          RecordID(params, ordinal),
		Subject:     params.Subject,
		Topic:       params.Topic,
		Type:        params.QType,
		Stem:        stem,
		Options:     options,
		AnswerIdx:   answer,
		Explanation: explanation,
		BloomLevel:  params.BloomLevel,
		Difficulty:  params.Difficulty,
	}
}

// RecordID composes subject, topic, bloom level and the in-batch ordinal.
// Ids repeat across separate generations with the same parameters.
func RecordID(params GenerationParams, ordinal int) string {
	return fmt.Sprintf("gen-%s-%s-%s-%d", params.Subject, params.Topic, params.BloomLevel, ordinal)
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
