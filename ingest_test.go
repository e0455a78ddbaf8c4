package examgen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBank(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bank.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadBankJSONL(t *testing.T) {
	path := writeBank(t, `{"id":"b1","subject":"science","topic":"cells","type":"tf","stem":"Cells have walls.","source":"textbook","answer":"x"}

{"id":"b2","subject":"science","topic":"cells","stem":"  What is a ribosome?  ","source":"quiz"}
`)
	rows, err := ReadBankJSONL(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, BankRow{ID: "b1", Subject: "science", Topic: "cells", Type: "tf", Stem: "Cells have walls.", Source: "textbook"}, rows[0])
}

func TestReadBankJSONLErrors(t *testing.T) {
	_, err := ReadBankJSONL(writeBank(t, "{\"id\":\"b1\"}\n{broken\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2:")

	_, err = ReadBankJSONL(writeBank(t, `{"stem":"no id"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id")

	_, err = ReadBankJSONL(filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.Error(t, err)
}

func TestDocumentsFromRows(t *testing.T) {
	rows := []BankRow{
		{ID: "b1", Subject: "bio", Topic: "cells", Stem: "  What is a ribosome? ", Source: "quiz"},
		{ID: "b2", Subject: "bio", Topic: "cells", Type: "tf", Stem: "Cells divide.", Source: "book"},
	}

	docs := DocumentsFromRows(rows, "")
	require.Len(t, docs, 2)
	assert.Equal(t, Document{
		ID:       "b1",
		Text:     "[subject:bio] [topic:cells] What is a ribosome? (source:quiz)",
		Metadata: Metadata{Subject: "bio", Topic: "cells", Type: "mcq", Source: "quiz"},
	}, docs[0])
	assert.Equal(t, "tf", docs[1].Metadata.Type)

	docs = DocumentsFromRows(rows, "science")
	for _, d := range docs {
		assert.Equal(t, "science", d.Metadata.Subject)
		assert.Contains(t, d.Text, "[subject:science]")
	}
	assert.Equal(t, "bio", rows[0].Subject)
}

func TestIngestChunks(t *testing.T) {
	docs := make([]Document, 5)
	for i := range docs {
		docs[i] = Document{ID: string(rune('a' + i))}
	}

	ix := &fakeIndex{}
	n, err := Ingest(context.Background(), ix, docs, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.Len(t, ix.upserts, 3)
	assert.Len(t, ix.upserts[0], 2)
	assert.Len(t, ix.upserts[2], 1)

	ix = &fakeIndex{}
	n, err = Ingest(context.Background(), ix, docs, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, ix.upserts, 1)

	n, err = Ingest(context.Background(), &fakeIndex{err: errors.New("disk full")}, docs, 2)
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Contains(t, err.Error(), "disk full")
}
