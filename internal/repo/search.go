package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xxxsen/mlibrary/internal/model"
)

func scanHits(ctx context.Context, q querier, sqlStr string, args []interface{}) ([]model.SearchHit, error) {
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("search pages: %w", err)
	}
	defer rows.Close()
	hits := make([]model.SearchHit, 0)
	for rows.Next() {
		var (
			hit     model.SearchHit
			section string
			page    sql.NullInt64
		)
		if err := rows.Scan(&hit.EntryID, &hit.Title, &section, &page, &hit.Snippet); err != nil {
			return nil, err
		}
		hit.Section = model.Section(section)
		hit.Page = int(page.Int64)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// NewContentStore picks the backend matching the database driver.
func NewContentStore(driver string, db *sql.DB) (ContentStore, error) {
	switch driver {
	case "postgres":
		return NewPGStore(db), nil
	case "sqlite", "":
		return NewSQLiteStore(db), nil
	}
	return nil, fmt.Errorf("unsupported content store driver: %s", driver)
}
