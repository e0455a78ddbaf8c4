package examgen

import (
	"fmt"
	"strings"
)

// RenderExamples formats retrieved examples as "- (<source>) <document>"
// lines. No examples renders as "".
func RenderExamples(examples []RetrievedExample) string {
	lines := make([]string, 0, len(examples))
	for _, ex := range examples {
		lines = append(lines, fmt.Sprintf("- (%s) %s", ex.Metadata.Source, ex.Document))
	}
	return strings.Join(lines, "\n")
}

// RenderHistory formats the most recent maxLines records as
// "* [<subject>/<topic>] <stem>" lines, oldest first.
func RenderHistory(records []QuestionRecord, maxLines int) string {
	if maxLines <= 0 || len(records) == 0 {
		return ""
	}
	if len(records) > maxLines {
		records = records[len(records)-maxLines:]
	}

	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, fmt.Sprintf("* [%s/%s] %s", rec.Subject, rec.Topic, rec.Stem))
	}
	return strings.Join(lines, "\n")
}
