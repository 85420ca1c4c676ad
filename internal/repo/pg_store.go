package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/xxxsen/mlibrary/internal/model"
	"github.com/xxxsen/mlibrary/internal/pkg/dbutil"
)

// PGStore keeps the catalog in postgres. Full text comes from the generated
// pages.tsv column.
type PGStore struct {
	*sqlStore
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{sqlStore: &sqlStore{db: db, d: pgDialect{}}}
}

type pgDialect struct{}

func (pgDialect) name() string { return "postgres" }

func (pgDialect) finalize(query string, args []interface{}) (string, []interface{}) {
	return dbutil.Finalize(query, args)
}

func (pgDialect) likeExpr(column string) string {
	return column + ` ILIKE ? ESCAPE '\'`
}

func (pgDialect) tagExpr() string {
	return `EXISTS (SELECT 1 FROM jsonb_array_elements_text(entries.custom_tags::jsonb) AS t(tag) WHERE t.tag ILIKE ? ESCAPE '\')`
}

func (pgDialect) readTxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
}

func (pgDialect) replaceFullText(ctx context.Context, tx *sql.Tx, entryID string, pages map[model.Section][]string) error {
	return nil
}

func (pgDialect) deleteFullText(ctx context.Context, q querier, entryID string) error {
	return nil
}

const pgHeadlineOptions = "StartSel=>>>,StopSel=<<<,MaxFragments=1,MaxWords=32,MinWords=8"

func (d pgDialect) search(ctx context.Context, q querier, query model.KeywordQuery) ([]model.SearchHit, error) {
	// websearch_to_tsquery would match every page for a purely negative query
	if parseWebQuery(query.Query).empty() {
		return []model.SearchHit{}, nil
	}
	var sb strings.Builder
	sb.WriteString(`
		SELECT p.entry_id, e.title, p.section, p.page,
			ts_headline('english', p.content, q.query, '` + pgHeadlineOptions + `')
		FROM pages p
		JOIN entries e ON e.id = p.entry_id
		CROSS JOIN websearch_to_tsquery('english', ?) AS q(query)
		WHERE p.tsv @@ q.query`)
	args := []interface{}{query.Query}
	if query.EntryID != "" {
		sb.WriteString(" AND p.entry_id = ?")
		args = append(args, query.EntryID)
	}
	if query.Section != "" {
		sb.WriteString(" AND p.section = ?")
		args = append(args, string(query.Section))
	}
	sb.WriteString(" ORDER BY ts_rank(p.tsv, q.query) DESC, p.entry_id ASC, p.section ASC, p.page ASC LIMIT ?")
	args = append(args, query.Limit)
	sqlStr, args := d.finalize(sb.String(), args)
	return scanHits(ctx, q, sqlStr, args)
}
