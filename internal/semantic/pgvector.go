package semantic

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/mlibrary/internal/model"
)

// PGVectorIndex stores chunks in the library_chunks table and ranks them by
// cosine distance.
type PGVectorIndex struct {
	db *sql.DB
}

func NewPGVectorIndex(db *sql.DB) *PGVectorIndex {
	return &PGVectorIndex{db: db}
}

func (p *PGVectorIndex) Name() string { return "pgvector" }

func (p *PGVectorIndex) Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) (err error) {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d != %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	const query = `
		INSERT INTO library_chunks (entry_id, page_number, chunk_index, title, author, content, embedding, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (entry_id, chunk_index) DO UPDATE SET
			page_number = EXCLUDED.page_number,
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			mtime = EXCLUDED.mtime
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	now := time.Now().Unix()
	for i, ch := range chunks {
		if _, err = stmt.ExecContext(ctx, ch.EntryID, ch.PageNumber, ch.ChunkIndex, ch.Title, ch.Author,
			ch.Text, pgvector.NewVector(vectors[i]), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PGVectorIndex) DeleteEntry(ctx context.Context, entryID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM library_chunks WHERE entry_id = $1`, entryID)
	return err
}

func (p *PGVectorIndex) Search(ctx context.Context, vector []float32, entryID string, limit int) ([]model.ChunkMatch, error) {
	query := `
		SELECT entry_id, page_number, chunk_index, title, author, content, 1 - (embedding <=> $1) AS score
		FROM library_chunks`
	args := []interface{}{pgvector.NewVector(vector)}
	if entryID != "" {
		query += ` WHERE entry_id = $2`
		args = append(args, entryID)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	matches := make([]model.ChunkMatch, 0)
	for rows.Next() {
		var m model.ChunkMatch
		var score float64
		if err := rows.Scan(&m.EntryID, &m.PageNumber, &m.ChunkIndex, &m.Title, &m.Author, &m.Text, &score); err != nil {
			return nil, err
		}
		m.Score = float32(score)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
