package examgen

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// IngestChunkSize is the number of documents sent to the index per upsert
const IngestChunkSize = 1000

// BankRow is one question in the unified bank schema. Fields beyond these
// are ignored.
type BankRow struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Stem    string `json:"stem"`
	Source  string `json:"source"`
}

// ReadBankJSONL reads a question bank file, one row per line. Blank lines
// are skipped; a malformed line or a row without id is an error.
func ReadBankJSONL(path string) ([]BankRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bank file: %w", err)
	}
	defer f.Close()

	var rows []BankRow
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row BankRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if row.ID == "" {
			return nil, fmt.Errorf("%s:%d: missing id", path, lineNo)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bank file: %w", err)
	}
	return rows, nil
}

// BuildDocumentText is the compact text that gets embedded for a row
func BuildDocumentText(row BankRow) string {
	return fmt.Sprintf("[subject:%s] [topic:%s] %s (source:%s)",
		row.Subject, row.Topic, strings.TrimSpace(row.Stem), row.Source)
}

// DocumentsFromRows converts bank rows to index documents. A non-empty
// subject replaces every row's subject tag; type defaults to mcq.
func DocumentsFromRows(rows []BankRow, subject string) []Document {
	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		if subject != "" {
			row.Subject = subject
		}
		if row.Type == "" {
			row.Type = string(QTypeMCQ)
		}
		docs = append(docs, Document{
			ID:   row.ID,
			Text: BuildDocumentText(row),
			Metadata: Metadata{
				Subject: row.Subject,
				Topic:   row.Topic,
				Type:    row.Type,
				Source:  row.Source,
			},
		})
	}
	return docs
}

// Ingest upserts docs into index in chunks of chunkSize and returns the
// number written
func Ingest(ctx context.Context, index Index, docs []Document, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		chunkSize = IngestChunkSize
	}

	written := 0
	for start := 0; start < len(docs); start += chunkSize {
		end := min(start+chunkSize, len(docs))
		if err := index.Upsert(ctx, docs[start:end]); err != nil {
			return written, fmt.Errorf("failed to upsert documents %d-%d: %w", start, end-1, err)
		}
		written = end
		VerboseLog("Upserted %d/%d documents", written, len(docs))
	}
	return written, nil
}
