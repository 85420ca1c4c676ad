package repo_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mlibrary/internal/model"
	appErr "github.com/xxxsen/mlibrary/internal/pkg/errors"
	"github.com/xxxsen/mlibrary/internal/repo"
	"github.com/xxxsen/mlibrary/internal/testutil"
)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func newRecord(id, title string, fulltext ...string) *model.EntryRecord {
	rec := &model.EntryRecord{
		Entry: model.Entry{
			ID:              id,
			Title:           title,
			Author:          "Jane Doe",
			PublicationYear: intPtr(2001),
			Genre:           strPtr("Science Fiction"),
			CustomTags:      []string{"space", "Classic"},
		},
		Pages: map[model.Section][]string{
			model.SectionShortSummary: {"A short summary of " + title},
			model.SectionSummary:      {},
			model.SectionFullText:     fulltext,
		},
		Chapters: []model.Chapter{
			{Section: model.SectionShortSummary, Page: 1, Heading: "Overview", Level: 1},
			{Section: model.SectionFullText, Page: 1, Heading: "Chapter One", Level: 2},
		},
	}
	rec.Entry.ShortSummaryPages = 1
	rec.Entry.FullTextPages = len(fulltext)
	return rec
}

// runStoreSuite exercises the store contract shared by both engines.
func runStoreSuite(t *testing.T, store repo.ContentStore) {
	ctx := context.Background()

	t.Run("put and get", func(t *testing.T) {
		rec := newRecord("aaaa000000000001", "Dune", "the spice must flow", "desert planet arrakis", "the end")
		require.NoError(t, store.PutEntry(ctx, rec))

		entry, chapters, err := store.GetEntry(ctx, rec.Entry.ID)
		require.NoError(t, err)
		require.Equal(t, "Dune", entry.Title)
		require.Equal(t, 2001, *entry.PublicationYear)
		require.Equal(t, "Science Fiction", *entry.Genre)
		require.Equal(t, []string{"space", "Classic"}, entry.CustomTags)
		require.Equal(t, 3, entry.FullTextPages)
		require.Equal(t, 0, entry.SummaryPages)
		require.Len(t, chapters, 2)
		require.Equal(t, model.SectionShortSummary, chapters[0].Section)
		require.Equal(t, "Chapter One", chapters[1].Heading)

		state, err := store.GetIndexState(ctx, rec.Entry.ID)
		require.NoError(t, err)
		require.Equal(t, model.IndexPending, state.Status)
	})

	t.Run("pages", func(t *testing.T) {
		page, total, err := store.GetPage(ctx, "aaaa000000000001", model.SectionFullText, 2)
		require.NoError(t, err)
		require.Equal(t, 3, total)
		require.Equal(t, 2, page.Number)
		require.Equal(t, "desert planet arrakis", page.Content)

		_, _, err = store.GetPage(ctx, "aaaa000000000001", model.SectionFullText, 4)
		require.ErrorIs(t, err, appErr.ErrPageOutOfRange)

		page, total, err = store.GetPage(ctx, "aaaa000000000001", model.SectionSummary, 1)
		require.NoError(t, err)
		require.Equal(t, 0, total)
		require.Equal(t, "", page.Content)

		pages, total, err := store.GetPages(ctx, "aaaa000000000001", model.SectionFullText, 2, 10)
		require.NoError(t, err)
		require.Equal(t, 3, total)
		require.Len(t, pages, 2)
		require.Equal(t, 3, pages[1].Number)

		_, _, err = store.GetPage(ctx, "missing", model.SectionFullText, 1)
		require.ErrorIs(t, err, appErr.ErrNotFound)
		_, _, err = store.GetPages(ctx, "aaaa000000000001", model.Section("appendix"), 1, 2)
		require.ErrorIs(t, err, appErr.ErrInvalidSection)

		entry, contents, err := store.GetSection(ctx, "aaaa000000000001", model.SectionFullText)
		require.NoError(t, err)
		require.Equal(t, "Dune", entry.Title)
		require.Equal(t, []string{"the spice must flow", "desert planet arrakis", "the end"}, contents)
	})

	t.Run("replace keeps count", func(t *testing.T) {
		rec := newRecord("aaaa000000000001", "Dune", "only one page now")
		require.NoError(t, store.PutEntry(ctx, rec))
		count, err := store.CountEntries(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, count)

		_, total, err := store.GetPages(ctx, "aaaa000000000001", model.SectionFullText, 1, 5)
		require.NoError(t, err)
		require.Equal(t, 1, total)

		hits, err := store.Search(ctx, model.KeywordQuery{Query: "arrakis", Limit: 10})
		require.NoError(t, err)
		require.Empty(t, hits)
	})

	t.Run("list and filter", func(t *testing.T) {
		require.NoError(t, store.PutEntry(ctx, newRecord("bbbb000000000002", "Foundation", "psychohistory")))
		rec := newRecord("cccc000000000003", "Anathem", "the concent")
		rec.Entry.PublicationYear = intPtr(2008)
		rec.Entry.Genre = nil
		require.NoError(t, store.PutEntry(ctx, rec))

		items, total, err := store.ListEntries(ctx, model.EntryFilter{}, 0, 20)
		require.NoError(t, err)
		require.Equal(t, 3, total)
		require.Equal(t, []string{"Anathem", "Dune", "Foundation"}, []string{items[0].Title, items[1].Title, items[2].Title})
		require.Nil(t, items[0].Genre)

		items, total, err = store.ListEntries(ctx, model.EntryFilter{}, 1, 1)
		require.NoError(t, err)
		require.Equal(t, 3, total)
		require.Len(t, items, 1)
		require.Equal(t, "Dune", items[0].Title)

		items, total, err = store.ListEntries(ctx, model.EntryFilter{Title: "dun"}, 0, 20)
		require.NoError(t, err)
		require.Equal(t, 1, total)
		require.Equal(t, "Dune", items[0].Title)

		_, total, err = store.ListEntries(ctx, model.EntryFilter{Tag: "classic", YearMin: intPtr(2005)}, 0, 20)
		require.NoError(t, err)
		require.Equal(t, 1, total)

		_, total, err = store.ListEntries(ctx, model.EntryFilter{Genre: "fiction", YearMax: intPtr(2001)}, 0, 20)
		require.NoError(t, err)
		require.Equal(t, 2, total)

		_, total, err = store.ListEntries(ctx, model.EntryFilter{Title: "100%_"}, 0, 20)
		require.NoError(t, err)
		require.Equal(t, 0, total)

		byID, err := store.GetEntriesByIDs(ctx, []string{"bbbb000000000002", "cccc000000000003", "nope"})
		require.NoError(t, err)
		require.Len(t, byID, 2)
		require.Equal(t, "Foundation", byID["bbbb000000000002"].Title)
	})

	t.Run("keyword search", func(t *testing.T) {
		hits, err := store.Search(ctx, model.KeywordQuery{Query: "psychohistory", Limit: 10})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		require.Equal(t, "bbbb000000000002", hits[0].EntryID)
		require.Equal(t, "Foundation", hits[0].Title)
		require.Equal(t, model.SectionFullText, hits[0].Section)
		require.Equal(t, 1, hits[0].Page)
		require.Contains(t, hits[0].Snippet, ">>>")

		hits, err = store.Search(ctx, model.KeywordQuery{Query: "summary", Section: model.SectionShortSummary, EntryID: "cccc000000000003", Limit: 10})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		require.Equal(t, model.SectionShortSummary, hits[0].Section)

		hits, err = store.Search(ctx, model.KeywordQuery{Query: "zzqxunmatchable", Limit: 10})
		require.NoError(t, err)
		require.Empty(t, hits)

		_, err = store.Search(ctx, model.KeywordQuery{Query: "x", Section: "bogus", Limit: 10})
		require.ErrorIs(t, err, appErr.ErrInvalidSection)
	})

	t.Run("index states", func(t *testing.T) {
		require.NoError(t, store.SaveIndexState(ctx, &model.IndexState{
			EntryID: "bbbb000000000002", Status: model.IndexDegraded, LastError: "embedder down",
		}))
		require.NoError(t, store.SaveIndexState(ctx, &model.IndexState{
			EntryID: "cccc000000000003", Status: model.IndexIndexed, ChunkCount: 4,
		}))
		states, err := store.ListIndexStates(ctx, []model.IndexStatus{model.IndexDegraded, model.IndexPending}, 10)
		require.NoError(t, err)
		ids := make([]string, 0, len(states))
		for _, st := range states {
			ids = append(ids, st.EntryID)
		}
		require.ElementsMatch(t, []string{"aaaa000000000001", "bbbb000000000002"}, ids)

		err = store.SaveIndexState(ctx, &model.IndexState{EntryID: "nope", Status: model.IndexIndexed})
		require.ErrorIs(t, err, appErr.ErrNotFound)
	})

	t.Run("delete cascades", func(t *testing.T) {
		require.NoError(t, store.DeleteEntry(ctx, "aaaa000000000001"))
		_, _, err := store.GetEntry(ctx, "aaaa000000000001")
		require.ErrorIs(t, err, appErr.ErrNotFound)
		_, err = store.GetIndexState(ctx, "aaaa000000000001")
		require.ErrorIs(t, err, appErr.ErrNotFound)
		items, total, err := store.ListEntries(ctx, model.EntryFilter{}, 0, 20)
		require.NoError(t, err)
		require.Equal(t, 2, total)
		for _, item := range items {
			require.NotEqual(t, "aaaa000000000001", item.ID)
		}
		hits, err := store.Search(ctx, model.KeywordQuery{Query: "page", Limit: 10})
		require.NoError(t, err)
		require.Empty(t, hits)

		require.ErrorIs(t, store.DeleteEntry(ctx, "aaaa000000000001"), appErr.ErrNotFound)
	})

	t.Run("query syntax", func(t *testing.T) {
		require.NoError(t, store.PutEntry(ctx, newRecord("dddd000000000004", "Cats", "the cat sat alone")))
		require.NoError(t, store.PutEntry(ctx, newRecord("eeee000000000005", "Both", "the cat chased the dog")))

		tests := []struct {
			query string
			want  []string
		}{
			{query: "cat -dog", want: []string{"dddd000000000004"}},
			{query: "cat dog", want: []string{"eeee000000000005"}},
			{query: "chased OR alone", want: []string{"dddd000000000004", "eeee000000000005"}},
			{query: `"cat chased"`, want: []string{"eeee000000000005"}},
			{query: `"chased cat"`, want: []string{}},
			{query: `cat -"chased the dog"`, want: []string{"dddd000000000004"}},
			{query: "-dog", want: []string{}},
		}
		for _, tt := range tests {
			hits, err := store.Search(ctx, model.KeywordQuery{Query: tt.query, Section: model.SectionFullText, Limit: 10})
			require.NoError(t, err, tt.query)
			ids := make([]string, 0, len(hits))
			for _, hit := range hits {
				ids = append(ids, hit.EntryID)
			}
			require.ElementsMatch(t, tt.want, ids, tt.query)
		}
	})

	t.Run("tag filter", func(t *testing.T) {
		rec := newRecord("ffff000000000006", "Lab Notes", "beakers")
		rec.Entry.CustomTags = []string{"R&D", "<draft>"}
		require.NoError(t, store.PutEntry(ctx, rec))

		entry, _, err := store.GetEntry(ctx, "ffff000000000006")
		require.NoError(t, err)
		require.Equal(t, []string{"R&D", "<draft>"}, entry.CustomTags)

		tests := []struct {
			tag   string
			total int
		}{
			{tag: "R&D", total: 1},
			{tag: "r&d", total: 1},
			{tag: "<draft>", total: 1},
			{tag: `D","<`, total: 0},
			{tag: "space", total: 4},
		}
		for _, tt := range tests {
			_, total, err := store.ListEntries(ctx, model.EntryFilter{Tag: tt.tag}, 0, 20)
			require.NoError(t, err, tt.tag)
			require.Equal(t, tt.total, total, tt.tag)
		}
	})
}

func TestSQLiteStore(t *testing.T) {
	db, cleanup := testutil.OpenSQLiteDB(t)
	defer cleanup()
	runStoreSuite(t, repo.NewSQLiteStore(db))
}

func TestPGStore(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	resetPG(t, db)
	runStoreSuite(t, repo.NewPGStore(db))
}

func resetPG(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, table := range []string{"index_states", "chapters", "pages", "entries"} {
		_, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table))
		require.NoError(t, err)
	}
}

func TestNewContentStore(t *testing.T) {
	db, cleanup := testutil.OpenSQLiteDB(t)
	defer cleanup()
	store, err := repo.NewContentStore("sqlite", db)
	require.NoError(t, err)
	require.IsType(t, &repo.SQLiteStore{}, store)
	_, err = repo.NewContentStore("mysql", db)
	require.Error(t, err)
}
