package examgen

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// OutputPaths are the two per-batch output files
type OutputPaths struct {
	JSONL string `json:"jsonl"`
	CSV   string `json:"csv"`
}

// csvHeader is the tabular export column order
var csvHeader = []string{"id", "subject", "topic", "type", "stem", "options", "answer_idx", "explanation", "bloom_level", "difficulty"}

// utf8BOM lets spreadsheet tools detect the encoding of the CSV export
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DefaultOutputPath names the JSONL output after the parameter tuple
func DefaultOutputPath(dir string, p GenerationParams) string {
	name := fmt.Sprintf("%s_%s_%s_%s_%s_%d.jsonl",
		safeName(p.Subject), safeName(p.Topic), p.QType, p.Difficulty, p.BloomLevel, p.N)
	return filepath.Join(dir, name)
}

// CompareOutputPath names the comparison output after its parameters
func CompareOutputPath(dir string, p GenerationParams) string {
	name := fmt.Sprintf("compare_%s_%s_%s_%s.jsonl", safeName(p.Subject), safeName(p.Topic), p.QType, p.Difficulty)
	return filepath.Join(dir, name)
}

// CSVPathFor derives the tabular export path from a JSONL path
func CSVPathFor(jsonlPath string) string {
	if strings.HasSuffix(jsonlPath, ".jsonl") {
		return strings.TrimSuffix(jsonlPath, ".jsonl") + ".csv"
	}
	return jsonlPath + ".csv"
}

func safeName(s string) string {
	return strings.NewReplacer("/", "-", "\\", "-").Replace(s)
}

// ExportRecords writes records to jsonlPath and its CSV sibling
func ExportRecords(jsonlPath string, records []QuestionRecord) (OutputPaths, error) {
	paths := OutputPaths{JSONL: jsonlPath, CSV: CSVPathFor(jsonlPath)}
	if err := WriteJSONL(paths.JSONL, records); err != nil {
		return OutputPaths{}, err
	}
	if err := WriteRecordsCSV(paths.CSV, records); err != nil {
		return OutputPaths{}, err
	}
	return paths, nil
}

// WriteJSONL writes one JSON value per line, replacing path
func WriteJSONL[T any](path string, items []T) error {
	var buf bytes.Buffer
	for i, item := range items {
		line, err := marshalLine(item)
		if err != nil {
			return fmt.Errorf("failed to marshal line %d: %w", i, err)
		}
		buf.Write(line)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WriteRecordsCSV writes records as a UTF-8 CSV with a BOM and header row.
// Options are stored as a JSON array.
func WriteRecordsCSV(path string, records []QuestionRecord) error {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, rec := range records {
		options, err := json.Marshal(nonNil(rec.Options))
		if err != nil {
			return fmt.Errorf("failed to marshal options for %s: %w", rec.ID, err)
		}
		row := []string{
			rec.ID,
			rec.Subject,
			rec.Topic,
			string(rec.Type),
			rec.Stem,
			string(options),
			strconv.Itoa(rec.AnswerIdx),
			rec.Explanation,
			string(rec.BloomLevel),
			string(rec.Difficulty),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row %s: %w", rec.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// marshalLine encodes v as a single JSON line without HTML escaping
func marshalLine(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
