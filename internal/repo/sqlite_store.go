package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/xxxsen/mlibrary/internal/model"
)

// SQLiteStore keeps the catalog in sqlite with an FTS5 table over pages.
type SQLiteStore struct {
	*sqlStore
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{sqlStore: &sqlStore{db: db, d: sqliteDialect{}}}
}

type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }

func (sqliteDialect) finalize(query string, args []interface{}) (string, []interface{}) {
	return query, args
}

func (sqliteDialect) likeExpr(column string) string {
	return column + ` LIKE ? ESCAPE '\'`
}

func (sqliteDialect) tagExpr() string {
	return `EXISTS (SELECT 1 FROM json_each(entries.custom_tags) WHERE json_each.value LIKE ? ESCAPE '\')`
}

func (sqliteDialect) readTxOptions() *sql.TxOptions {
	return nil
}

func (d sqliteDialect) replaceFullText(ctx context.Context, tx *sql.Tx, entryID string, pages map[model.Section][]string) error {
	if err := d.deleteFullText(ctx, tx, entryID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO pages_fts (entry_id, section, page, content) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, section := range model.Sections {
		for i, content := range pages[section] {
			if _, err := stmt.ExecContext(ctx, entryID, string(section), i+1, content); err != nil {
				return err
			}
		}
	}
	return nil
}

func (sqliteDialect) deleteFullText(ctx context.Context, q querier, entryID string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM pages_fts WHERE entry_id = ?", entryID)
	return err
}

func (sqliteDialect) search(ctx context.Context, q querier, query model.KeywordQuery) ([]model.SearchHit, error) {
	match := parseWebQuery(query.Query).fts5()
	if match == "" {
		return []model.SearchHit{}, nil
	}
	var sb strings.Builder
	sb.WriteString(`
		SELECT pages_fts.entry_id, e.title, pages_fts.section, pages_fts.page,
			snippet(pages_fts, 3, '>>>', '<<<', '...', 32)
		FROM pages_fts
		JOIN entries e ON e.id = pages_fts.entry_id
		WHERE pages_fts MATCH ?`)
	args := []interface{}{match}
	if query.EntryID != "" {
		sb.WriteString(" AND pages_fts.entry_id = ?")
		args = append(args, query.EntryID)
	}
	if query.Section != "" {
		sb.WriteString(" AND pages_fts.section = ?")
		args = append(args, string(query.Section))
	}
	sb.WriteString(" ORDER BY bm25(pages_fts) ASC, pages_fts.entry_id ASC, pages_fts.section ASC, pages_fts.page ASC LIMIT ?")
	args = append(args, query.Limit)
	return scanHits(ctx, q, sb.String(), args)
}
