package repo

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/mlibrary/internal/model"
	"github.com/xxxsen/mlibrary/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mlibrary/internal/pkg/errors"
)

// ContentStore is the authoritative catalog of entries, pages and chapters.
type ContentStore interface {
	PutEntry(ctx context.Context, rec *model.EntryRecord) error
	ListEntries(ctx context.Context, filter model.EntryFilter, skip, limit int) ([]model.Entry, int, error)
	GetEntry(ctx context.Context, id string) (*model.Entry, []model.Chapter, error)
	GetEntriesByIDs(ctx context.Context, ids []string) (map[string]*model.Entry, error)
	GetPage(ctx context.Context, id string, section model.Section, n int) (*model.Page, int, error)
	GetPages(ctx context.Context, id string, section model.Section, from, to int) ([]model.Page, int, error)
	GetSection(ctx context.Context, id string, section model.Section) (*model.Entry, []string, error)
	Search(ctx context.Context, q model.KeywordQuery) ([]model.SearchHit, error)
	DeleteEntry(ctx context.Context, id string) error
	CountEntries(ctx context.Context) (int, error)
	SaveIndexState(ctx context.Context, state *model.IndexState) error
	GetIndexState(ctx context.Context, id string) (*model.IndexState, error)
	ListIndexStates(ctx context.Context, statuses []model.IndexStatus, limit int) ([]model.IndexState, error)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// dialect holds what differs between the storage engines.
type dialect interface {
	name() string
	finalize(query string, args []interface{}) (string, []interface{})
	likeExpr(column string) string
	// tagExpr matches one element of the custom_tags json array.
	tagExpr() string
	readTxOptions() *sql.TxOptions
	replaceFullText(ctx context.Context, tx *sql.Tx, entryID string, pages map[model.Section][]string) error
	deleteFullText(ctx context.Context, q querier, entryID string) error
	search(ctx context.Context, q querier, query model.KeywordQuery) ([]model.SearchHit, error)
}

const insertBatchSize = 200

var entryFields = []string{
	"id", "title", "author", "publication_year", "genre", "custom_tags",
	"shortsummary_pages", "summary_pages", "fulltext_pages",
}

type sqlStore struct {
	db *sql.DB
	d  dialect
}

func (s *sqlStore) PutEntry(ctx context.Context, rec *model.EntryRecord) (err error) {
	if rec == nil || rec.Entry.ID == "" {
		return fmt.Errorf("%w: entry id is required", appErr.ErrInvalid)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	now := time.Now().Unix()
	if err = s.upsertEntry(ctx, tx, &rec.Entry, now); err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	for _, table := range []string{"pages", "chapters"} {
		if err = s.exec(ctx, tx, builder.BuildDelete, table, map[string]interface{}{"entry_id": rec.Entry.ID}); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err = s.insertPages(ctx, tx, rec.Entry.ID, rec.Pages); err != nil {
		return fmt.Errorf("insert pages: %w", err)
	}
	if err = s.insertChapters(ctx, tx, rec.Entry.ID, rec.Chapters); err != nil {
		return fmt.Errorf("insert chapters: %w", err)
	}
	if err = s.d.replaceFullText(ctx, tx, rec.Entry.ID, rec.Pages); err != nil {
		return fmt.Errorf("index full text: %w", err)
	}
	if err = s.saveIndexState(ctx, tx, &model.IndexState{EntryID: rec.Entry.ID, Status: model.IndexPending, Mtime: now}); err != nil {
		return fmt.Errorf("reset index state: %w", err)
	}
	return tx.Commit()
}

// upsertEntry takes the row lock that serializes writers of the same id.
func (s *sqlStore) upsertEntry(ctx context.Context, tx *sql.Tx, e *model.Entry, now int64) error {
	rawTags, err := encodeTags(e.CustomTags)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO entries (id, title, author, publication_year, genre, custom_tags,
			shortsummary_pages, summary_pages, fulltext_pages, ctime, mtime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			publication_year = excluded.publication_year,
			genre = excluded.genre,
			custom_tags = excluded.custom_tags,
			shortsummary_pages = excluded.shortsummary_pages,
			summary_pages = excluded.summary_pages,
			fulltext_pages = excluded.fulltext_pages,
			mtime = excluded.mtime
	`
	var year interface{}
	if e.PublicationYear != nil {
		year = *e.PublicationYear
	}
	var genre interface{}
	if e.Genre != nil {
		genre = *e.Genre
	}
	q, args := s.d.finalize(query, []interface{}{
		e.ID, e.Title, e.Author, year, genre, rawTags,
		e.ShortSummaryPages, e.SummaryPages, e.FullTextPages, now, now,
	})
	_, err = tx.ExecContext(ctx, q, args...)
	return err
}

func (s *sqlStore) insertPages(ctx context.Context, tx *sql.Tx, entryID string, pages map[model.Section][]string) error {
	rows := make([]map[string]interface{}, 0, insertBatchSize)
	for _, section := range model.Sections {
		for i, content := range pages[section] {
			rows = append(rows, map[string]interface{}{
				"entry_id": entryID,
				"section":  string(section),
				"page":     i + 1,
				"content":  content,
			})
			if len(rows) == insertBatchSize {
				if err := s.insertRows(ctx, tx, "pages", rows); err != nil {
					return err
				}
				rows = rows[:0]
			}
		}
	}
	return s.insertRows(ctx, tx, "pages", rows)
}

func (s *sqlStore) insertChapters(ctx context.Context, tx *sql.Tx, entryID string, chapters []model.Chapter) error {
	rows := make([]map[string]interface{}, 0, insertBatchSize)
	for i, ch := range chapters {
		rows = append(rows, map[string]interface{}{
			"entry_id": entryID,
			"seq":      i,
			"section":  string(ch.Section),
			"page":     ch.Page,
			"heading":  ch.Heading,
			"level":    ch.Level,
		})
		if len(rows) == insertBatchSize {
			if err := s.insertRows(ctx, tx, "chapters", rows); err != nil {
				return err
			}
			rows = rows[:0]
		}
	}
	return s.insertRows(ctx, tx, "chapters", rows)
}

func (s *sqlStore) insertRows(ctx context.Context, q querier, table string, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	sqlStr, args, err := builder.BuildInsert(table, rows)
	if err != nil {
		return err
	}
	sqlStr, args = s.d.finalize(sqlStr, args)
	_, err = q.ExecContext(ctx, sqlStr, args...)
	return err
}

func (s *sqlStore) exec(ctx context.Context, q querier, build func(string, map[string]interface{}) (string, []interface{}, error), table string, where map[string]interface{}) error {
	sqlStr, args, err := build(table, where)
	if err != nil {
		return err
	}
	sqlStr, args = s.d.finalize(sqlStr, args)
	_, err = q.ExecContext(ctx, sqlStr, args...)
	return err
}

func (s *sqlStore) buildFilter(filter model.EntryFilter) map[string]interface{} {
	where := map[string]interface{}{}
	like := func(key, column, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		where["_custom_"+key] = builder.Custom(s.d.likeExpr(column), "%"+escapeLike(value)+"%")
	}
	like("title", "title", filter.Title)
	like("author", "author", filter.Author)
	like("genre", "genre", filter.Genre)
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		where["_custom_tag"] = builder.Custom(s.d.tagExpr(), "%"+escapeLike(tag)+"%")
	}
	if filter.YearMin != nil {
		where["publication_year >="] = *filter.YearMin
	}
	if filter.YearMax != nil {
		where["publication_year <="] = *filter.YearMax
	}
	return where
}

func (s *sqlStore) ListEntries(ctx context.Context, filter model.EntryFilter, skip, limit int) ([]model.Entry, int, error) {
	tx, err := s.db.BeginTx(ctx, s.d.readTxOptions())
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	countWhere := s.buildFilter(filter)
	sqlStr, args, err := builder.BuildSelect("entries", countWhere, []string{"COUNT(*)"})
	if err != nil {
		return nil, 0, err
	}
	sqlStr, args = s.d.finalize(sqlStr, args)
	var total int
	if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	where := s.buildFilter(filter)
	where["_orderby"] = "title asc, id asc"
	if limit > 0 {
		where["_limit"] = []uint{uint(max(skip, 0)), uint(limit)}
	}
	sqlStr, args, err = builder.BuildSelect("entries", where, entryFields)
	if err != nil {
		return nil, 0, err
	}
	sqlStr, args = s.d.finalize(sqlStr, args)
	rows, err := tx.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]model.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *sqlStore) GetEntry(ctx context.Context, id string) (*model.Entry, []model.Chapter, error) {
	tx, err := s.db.BeginTx(ctx, s.d.readTxOptions())
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	entry, err := s.getEntry(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	sqlStr, args, err := builder.BuildSelect("chapters", map[string]interface{}{
		"entry_id": id,
		"_orderby": "seq asc",
	}, []string{"section", "page", "heading", "level"})
	if err != nil {
		return nil, nil, err
	}
	sqlStr, args = s.d.finalize(sqlStr, args)
	rows, err := tx.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	chapters := make([]model.Chapter, 0)
	for rows.Next() {
		var ch model.Chapter
		var section string
		if err := rows.Scan(&section, &ch.Page, &ch.Heading, &ch.Level); err != nil {
			return nil, nil, err
		}
		ch.Section = model.Section(section)
		chapters = append(chapters, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return entry, chapters, nil
}

func (s *sqlStore) getEntry(ctx context.Context, q querier, id string) (*model.Entry, error) {
	sqlStr, args, err := builder.BuildSelect("entries", map[string]interface{}{"id": id}, entryFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = s.d.finalize(sqlStr, args)
	entry, err := scanEntry(q.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return entry, nil
}

func (s *sqlStore) GetEntriesByIDs(ctx context.Context, ids []string) (map[string]*model.Entry, error) {
	res := make(map[string]*model.Entry, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	query, args, err := sqlx.In("SELECT "+strings.Join(entryFields, ", ")+" FROM entries WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query, args = s.d.finalize(query, args)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res[entry.ID] = entry
	}
	return res, rows.Err()
}

func (s *sqlStore) GetPage(ctx context.Context, id string, section model.Section, n int) (*model.Page, int, error) {
	pages, total, err := s.readPages(ctx, id, section, n, n)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return &model.Page{}, 0, nil
	}
	if n < 1 || n > total || len(pages) == 0 {
		return nil, total, fmt.Errorf("%w: page %d out of range (1-%d)", appErr.ErrPageOutOfRange, n, total)
	}
	return &pages[0], total, nil
}

func (s *sqlStore) GetPages(ctx context.Context, id string, section model.Section, from, to int) ([]model.Page, int, error) {
	return s.readPages(ctx, id, section, from, to)
}

func (s *sqlStore) GetSection(ctx context.Context, id string, section model.Section) (*model.Entry, []string, error) {
	tx, err := s.db.BeginTx(ctx, s.d.readTxOptions())
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()
	entry, err := s.getEntry(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	pages, err := s.queryPages(ctx, tx, id, section, 1, entry.PageCount(section))
	if err != nil {
		return nil, nil, err
	}
	contents := make([]string, 0, len(pages))
	for _, p := range pages {
		contents = append(contents, p.Content)
	}
	return entry, contents, nil
}

// readPages returns pages in [from,to] and the section's total from one snapshot.
func (s *sqlStore) readPages(ctx context.Context, id string, section model.Section, from, to int) ([]model.Page, int, error) {
	if !section.Valid() {
		return nil, 0, fmt.Errorf("%w: %s", appErr.ErrInvalidSection, section)
	}
	tx, err := s.db.BeginTx(ctx, s.d.readTxOptions())
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback() }()
	entry, err := s.getEntry(ctx, tx, id)
	if err != nil {
		return nil, 0, err
	}
	total := entry.PageCount(section)
	if total == 0 || to < from {
		return []model.Page{}, total, nil
	}
	pages, err := s.queryPages(ctx, tx, id, section, from, to)
	if err != nil {
		return nil, 0, err
	}
	return pages, total, nil
}

func (s *sqlStore) queryPages(ctx context.Context, q querier, id string, section model.Section, from, to int) ([]model.Page, error) {
	sqlStr, args, err := builder.BuildSelect("pages", map[string]interface{}{
		"entry_id": id,
		"section":  string(section),
		"page >=":  from,
		"page <=":  to,
		"_orderby": "page asc",
	}, []string{"page", "content"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = s.d.finalize(sqlStr, args)
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	pages := make([]model.Page, 0)
	for rows.Next() {
		var p model.Page
		if err := rows.Scan(&p.Number, &p.Content); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (s *sqlStore) Search(ctx context.Context, q model.KeywordQuery) ([]model.SearchHit, error) {
	if q.Section != "" && !q.Section.Valid() {
		return nil, fmt.Errorf("%w: %s", appErr.ErrInvalidSection, q.Section)
	}
	return s.d.search(ctx, s.db, q)
}

func (s *sqlStore) DeleteEntry(ctx context.Context, id string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	sqlStr, args, err := builder.BuildDelete("entries", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = s.d.finalize(sqlStr, args)
	res, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		err = appErr.ErrNotFound
		return err
	}
	if err = s.d.deleteFullText(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqlStore) CountEntries(ctx context.Context) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// SaveIndexState reports ErrNotFound once the entry is gone.
func (s *sqlStore) SaveIndexState(ctx context.Context, state *model.IndexState) error {
	if err := s.saveIndexState(ctx, s.db, state); err != nil {
		if dbutil.IsForeignKeyViolation(err) {
			return appErr.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *sqlStore) saveIndexState(ctx context.Context, q querier, state *model.IndexState) error {
	if state.Mtime == 0 {
		state.Mtime = time.Now().Unix()
	}
	const query = `
		INSERT INTO index_states (entry_id, status, chunk_count, last_error, mtime)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (entry_id) DO UPDATE SET
			status = excluded.status,
			chunk_count = excluded.chunk_count,
			last_error = excluded.last_error,
			mtime = excluded.mtime
	`
	sqlStr, args := s.d.finalize(query, []interface{}{
		state.EntryID, string(state.Status), state.ChunkCount, state.LastError, state.Mtime,
	})
	_, err := q.ExecContext(ctx, sqlStr, args...)
	return err
}

func (s *sqlStore) GetIndexState(ctx context.Context, id string) (*model.IndexState, error) {
	sqlStr, args, err := builder.BuildSelect("index_states", map[string]interface{}{"entry_id": id},
		[]string{"entry_id", "status", "chunk_count", "last_error", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = s.d.finalize(sqlStr, args)
	state, err := scanIndexState(s.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return state, nil
}

func (s *sqlStore) ListIndexStates(ctx context.Context, statuses []model.IndexStatus, limit int) ([]model.IndexState, error) {
	where := map[string]interface{}{"_orderby": "mtime asc"}
	if len(statuses) > 0 {
		in := make([]interface{}, 0, len(statuses))
		for _, st := range statuses {
			in = append(in, string(st))
		}
		where["status in"] = in
	}
	if limit > 0 {
		where["_limit"] = []uint{0, uint(limit)}
	}
	sqlStr, args, err := builder.BuildSelect("index_states", where,
		[]string{"entry_id", "status", "chunk_count", "last_error", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = s.d.finalize(sqlStr, args)
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	states := make([]model.IndexState, 0)
	for rows.Next() {
		state, err := scanIndexState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *state)
	}
	return states, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*model.Entry, error) {
	var (
		e       model.Entry
		year    sql.NullInt64
		genre   sql.NullString
		rawTags string
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Author, &year, &genre, &rawTags,
		&e.ShortSummaryPages, &e.SummaryPages, &e.FullTextPages); err != nil {
		return nil, err
	}
	if year.Valid {
		v := int(year.Int64)
		e.PublicationYear = &v
	}
	if genre.Valid {
		v := genre.String
		e.Genre = &v
	}
	e.CustomTags = []string{}
	if rawTags != "" {
		if err := json.Unmarshal([]byte(rawTags), &e.CustomTags); err != nil {
			return nil, fmt.Errorf("decode custom_tags: %w", err)
		}
	}
	return &e, nil
}

func scanIndexState(row scanner) (*model.IndexState, error) {
	var state model.IndexState
	var status string
	if err := row.Scan(&state.EntryID, &status, &state.ChunkCount, &state.LastError, &state.Mtime); err != nil {
		return nil, err
	}
	state.Status = model.IndexStatus(status)
	return &state, nil
}

// encodeTags keeps '&', '<' and '>' literal so the stored text is what
// tag filters compare against.
func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tags); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func escapeLike(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(value)
}
