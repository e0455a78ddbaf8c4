package examgen

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// HistoryLog is the append-only log of every record ever generated
type HistoryLog interface {
	Append(ctx context.Context, records []QuestionRecord) error
	// Tail returns the last n records in chronological order; n <= 0 means all
	Tail(ctx context.Context, n int) ([]QuestionRecord, error)
}

// FileHistory stores the history log as one JSON record per line
type FileHistory struct {
	path string
}

// NewFileHistory creates a history log backed by path
func NewFileHistory(path string) *FileHistory {
	return &FileHistory{path: path}
}

// Append implements HistoryLog
func (h *FileHistory) Append(ctx context.Context, records []QuestionRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	var buf bytes.Buffer
	for _, rec := range records {
		line, err := marshalLine(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal history record %s: %w", rec.ID, err)
		}
		buf.Write(line)
	}

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("failed to append history: %w", err)
	}
	return f.Close()
}

// Tail implements HistoryLog. Blank and malformed lines are skipped.
func (h *FileHistory) Tail(ctx context.Context, n int) ([]QuestionRecord, error) {
	f, err := os.Open(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []QuestionRecord{}, nil
		}
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	records := []QuestionRecord{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	skipped := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec QuestionRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	if skipped > 0 {
		VerboseLog("Skipped %d malformed history lines in %s", skipped, h.path)
	}

	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	return records, nil
}
