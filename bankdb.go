package examgen

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// BankDB is a local similarity index over a question bank, stored in sqlite.
// Vectors live next to the document text and queries scan the collection.
type BankDB struct {
	db         *sql.DB
	collection string
	embedder   Embedder
}

// OpenBankDB opens the index at dbPath for one collection
func OpenBankDB(dbPath, collection string, embedder Embedder) (*BankDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	bank := &BankDB{db: db, collection: collection, embedder: embedder}
	if err := bank.CreateTables(); err != nil {
		db.Close()
		return nil, err
	}
	return bank, nil
}

// Close closes the database connection
func (b *BankDB) Close() error {
	return b.db.Close()
}

// Collection returns the collection name this handle reads and writes
func (b *BankDB) Collection() string {
	return b.collection
}

// CreateTables creates the necessary tables if they don't exist
func (b *BankDB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			text TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			topic TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			embedding BLOB NOT NULL,
			PRIMARY KEY (collection, id),
			FOREIGN KEY (collection) REFERENCES collections(name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_subject ON documents(collection, subject)`,
	}

	for _, query := range queries {
		if _, err := b.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// Upsert embeds docs and inserts or replaces them by id, creating the
// collection on first use
func (b *BankDB) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := b.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO collections (name, created_at) VALUES (?, ?)",
		b.collection, time.Now(),
	); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (collection, id, text, subject, topic, type, source, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			text = excluded.text, subject = excluded.subject, topic = excluded.topic,
			type = excluded.type, source = excluded.source, embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, d := range docs {
		blob, err := encodeVector(vectors[i])
		if err != nil {
			return err
		}
		m := d.Metadata
		if _, err := stmt.ExecContext(ctx, b.collection, d.ID, d.Text, m.Subject, m.Topic, m.Type, m.Source, blob); err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// Query returns the topN documents closest to text by cosine distance.
// A collection that was never written to is reported as ErrIndexUnavailable.
func (b *BankDB) Query(ctx context.Context, text string, topN int, subject string) ([]RetrievedExample, error) {
	exists, err := b.collectionExists(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: collection %q does not exist", ErrIndexUnavailable, b.collection)
	}
	if topN <= 0 {
		return nil, nil
	}

	vectors, err := b.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}
	query := vectors[0]

	sqlQuery := "SELECT text, subject, topic, type, source, embedding FROM documents WHERE collection = ?"
	args := []any{b.collection}
	if subject != "" {
		sqlQuery += " AND subject = ?"
		args = append(args, subject)
	}

	rows, err := b.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var hits []RetrievedExample
	for rows.Next() {
		var (
			ex   RetrievedExample
			blob []byte
		)
		if err := rows.Scan(&ex.Document, &ex.Metadata.Subject, &ex.Metadata.Topic, &ex.Metadata.Type, &ex.Metadata.Source, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, err
		}
		ex.Distance = CosineDistance(query, vec)
		if math.IsNaN(ex.Distance) {
			continue
		}
		hits = append(hits, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > topN {
		hits = hits[:topN]
	}
	return hits, nil
}

// Count returns the number of documents in the collection
func (b *BankDB) Count(ctx context.Context) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE collection = ?", b.collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func (b *BankDB) collectionExists(ctx context.Context) (bool, error) {
	var exists bool
	err := b.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM collections WHERE name = ?)", b.collection).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	return exists, nil
}

func encodeVector(v []float32) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("failed to encode vector: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("corrupt vector: %d bytes", len(blob))
	}
	v := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return v, nil
}
