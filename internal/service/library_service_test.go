package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mlibrary/internal/config"
	"github.com/xxxsen/mlibrary/internal/filestore"
	"github.com/xxxsen/mlibrary/internal/library"
	"github.com/xxxsen/mlibrary/internal/metrics"
	"github.com/xxxsen/mlibrary/internal/model"
	appErr "github.com/xxxsen/mlibrary/internal/pkg/errors"
	"github.com/xxxsen/mlibrary/internal/repo"
	"github.com/xxxsen/mlibrary/internal/semantic"
	"github.com/xxxsen/mlibrary/internal/service"
	"github.com/xxxsen/mlibrary/internal/testutil"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

func (fakeEmbedder) ModelName() string { return "fake:test" }

type memIndex struct {
	mu      sync.Mutex
	chunks  map[string][]model.Chunk
	failErr error
}

func newMemIndex() *memIndex { return &memIndex{chunks: map[string][]model.Chunk{}} }

func (m *memIndex) Name() string { return "memory" }

func (m *memIndex) setFail(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

func (m *memIndex) Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	for _, ch := range chunks {
		m.chunks[ch.EntryID] = append(m.chunks[ch.EntryID], ch)
	}
	return nil
}

func (m *memIndex) DeleteEntry(ctx context.Context, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	delete(m.chunks, entryID)
	return nil
}

func (m *memIndex) Search(ctx context.Context, vector []float32, entryID string, limit int) ([]model.ChunkMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	ids := make([]string, 0, len(m.chunks))
	for id := range m.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	res := make([]model.ChunkMatch, 0)
	for _, id := range ids {
		if entryID != "" && id != entryID {
			continue
		}
		for _, ch := range m.chunks[id] {
			if len(res) >= limit {
				return res, nil
			}
			res = append(res, model.ChunkMatch{Chunk: ch, Score: 0.9})
		}
	}
	return res, nil
}

type env struct {
	svc   *service.LibraryService
	store repo.ContentStore
	index *memIndex
}

func newEnv(t *testing.T, pageMaxChars int, files filestore.Store) *env {
	t.Helper()
	db, cleanup := testutil.OpenSQLiteDB(t)
	t.Cleanup(cleanup)
	store := repo.NewSQLiteStore(db)
	index := newMemIndex()
	indexer := semantic.NewIndexer(index, fakeEmbedder{}, store, semantic.NewChunker(200, 40))
	svc := service.NewLibraryService(store, indexer, files, metrics.New(), service.Options{
		PageMaxChars: pageMaxChars,
		IndexTimeout: 5 * time.Second,
		Driver:       config.DriverSQLite,
	})
	return &env{svc: svc, store: store, index: index}
}

func newDoc(title, short, summary, full string) []byte {
	return []byte(fmt.Sprintf("---\ntitle: %s\nauthor: Test Author\npublication_year: 1990\ngenre: Essay\ncustom_tags: [alpha, beta]\n---\n%s\n---\n%s\n---\n%s\n",
		title, short, summary, full))
}

// blocks joins n paragraphs of exactly width characters.
func blocks(n, width int, prefix string) string {
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		head := fmt.Sprintf("%s %d ", prefix, i+1)
		parts = append(parts, head+strings.Repeat("x", width-len(head)))
	}
	return strings.Join(parts, "\n\n")
}

func TestUploadAndRead(t *testing.T) {
	e := newEnv(t, 4000, nil)
	ctx := context.Background()

	short := "# Overview\n\n" + blocks(1, 40, "short")
	summary := "## Part One\n\n" + blocks(30, 98, "summary")
	full := "# Chapter One\n\n" + blocks(60, 98, "full") + "\n\n# Chapter Two\n\n" + blocks(60, 98, "more")
	res, err := e.svc.Upload(ctx, newDoc("Sizes", short, summary, full))
	require.NoError(t, err)
	require.Equal(t, model.IndexIndexed, res.IndexStatus)
	require.Equal(t, 1, res.Entry.ShortSummaryPages)
	require.Equal(t, 1, res.Entry.SummaryPages)
	require.GreaterOrEqual(t, res.Entry.FullTextPages, 3)

	detail, err := e.svc.GetEntry(ctx, res.EntryID)
	require.NoError(t, err)
	require.Equal(t, "Sizes", detail.Title)
	require.Equal(t, model.IndexIndexed, detail.IndexStatus)
	require.Len(t, detail.Chapters, 4)
	order := make(map[model.Section]int, len(model.Sections))
	for i, section := range model.Sections {
		order[section] = i
	}
	for i := 1; i < len(detail.Chapters); i++ {
		prev, cur := detail.Chapters[i-1], detail.Chapters[i]
		require.True(t, order[prev.Section] < order[cur.Section] ||
			(prev.Section == cur.Section && prev.Page <= cur.Page))
	}
	require.Equal(t, "Chapter Two", detail.Chapters[3].Heading)
	require.Greater(t, detail.Chapters[3].Page, 1)

	page, err := e.svc.GetPage(ctx, service.PageParams{EntryID: res.EntryID, Section: "fulltext", Page: 1})
	require.NoError(t, err)
	require.Equal(t, 1, page.PageNumber)
	require.Equal(t, res.Entry.FullTextPages, page.TotalPages)
	require.True(t, strings.HasPrefix(page.Content, "# Chapter One"))
	require.LessOrEqual(t, len([]rune(page.Content)), 4000)

	page, err = e.svc.GetPage(ctx, service.PageParams{EntryID: res.EntryID, Section: "shortsummary", Format: "html"})
	require.NoError(t, err)
	require.Contains(t, page.Content, "<h1")
	require.Equal(t, service.FormatHTML, page.Format)

	_, err = e.svc.GetPage(ctx, service.PageParams{EntryID: res.EntryID, Section: "appendix", Page: 1})
	require.ErrorIs(t, err, appErr.ErrInvalidSection)
	_, err = e.svc.GetPage(ctx, service.PageParams{EntryID: res.EntryID, Section: "summary", Page: 2})
	require.ErrorIs(t, err, appErr.ErrPageOutOfRange)
	_, err = e.svc.GetPage(ctx, service.PageParams{EntryID: res.EntryID, Section: "summary", Page: 1, Format: "pdf"})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = e.svc.GetPage(ctx, service.PageParams{EntryID: "0000000000000000", Section: "summary", Page: 1})
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestEmptySection(t *testing.T) {
	e := newEnv(t, 4000, nil)
	ctx := context.Background()
	res, err := e.svc.Upload(ctx, newDoc("Empty", "short text", "", "full text"))
	require.NoError(t, err)
	require.Equal(t, 0, res.Entry.SummaryPages)

	page, err := e.svc.GetPage(ctx, service.PageParams{EntryID: res.EntryID, Section: "summary", Page: 7})
	require.NoError(t, err)
	require.Equal(t, 0, page.PageNumber)
	require.Equal(t, 0, page.TotalPages)
	require.Equal(t, "", page.Content)

	pages, err := e.svc.GetPages(ctx, service.PagesParams{EntryID: res.EntryID, Section: "summary"})
	require.NoError(t, err)
	require.Equal(t, 0, pages.FromPage)
	require.Equal(t, 0, pages.ToPage)
	require.Equal(t, 0, pages.TotalPages)
	require.Empty(t, pages.Pages)
}

func TestGetPagesClamping(t *testing.T) {
	e := newEnv(t, 100, nil)
	ctx := context.Background()
	res, err := e.svc.Upload(ctx, newDoc("Five", "s", "m", blocks(5, 80, "page")))
	require.NoError(t, err)
	require.Equal(t, 5, res.Entry.FullTextPages)

	tests := []struct {
		name     string
		from, to int
		wantFrom int
		wantTo   int
		wantErr  error
	}{
		{name: "defaults", wantFrom: 1, wantTo: 5},
		{name: "past end", from: 1, to: 999, wantFrom: 1, wantTo: 5},
		{name: "negative from", from: -3, to: 2, wantFrom: 1, wantTo: 2},
		{name: "to before from", from: 4, to: 2, wantFrom: 4, wantTo: 4},
		{name: "from past end", from: 6, to: 8, wantErr: appErr.ErrPageOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.svc.GetPages(ctx, service.PagesParams{EntryID: res.EntryID, Section: "fulltext", FromPage: tt.from, ToPage: tt.to})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantFrom, got.FromPage)
			require.Equal(t, tt.wantTo, got.ToPage)
			require.Equal(t, 5, got.TotalPages)
			require.Len(t, got.Pages, tt.wantTo-tt.wantFrom+1)
			for i, p := range got.Pages {
				require.Equal(t, tt.wantFrom+i, p.Number)
			}
		})
	}
}

func TestGetPagesSpanCap(t *testing.T) {
	e := newEnv(t, 100, nil)
	ctx := context.Background()
	res, err := e.svc.Upload(ctx, newDoc("Many", "s", "m", blocks(25, 80, "page")))
	require.NoError(t, err)
	got, err := e.svc.GetPages(ctx, service.PagesParams{EntryID: res.EntryID, Section: "fulltext", FromPage: 3, ToPage: 100})
	require.NoError(t, err)
	require.Equal(t, 3, got.FromPage)
	require.Equal(t, 12, got.ToPage)
	require.Len(t, got.Pages, 10)
}

func TestIdempotentUpload(t *testing.T) {
	e := newEnv(t, 4000, nil)
	ctx := context.Background()
	doc := newDoc("Same", "short", "summary", "full")
	first, err := e.svc.Upload(ctx, doc)
	require.NoError(t, err)
	second, err := e.svc.Upload(ctx, doc)
	require.NoError(t, err)
	require.Equal(t, first.EntryID, second.EntryID)

	status, err := e.svc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, status.TotalEntries)
	require.Equal(t, "memory", status.SemanticBackend)
	require.True(t, status.SemanticEnabled)

	third, err := e.svc.Upload(ctx, newDoc("Same", "short", "summary", "full!"))
	require.NoError(t, err)
	require.NotEqual(t, first.EntryID, third.EntryID)
	status, err = e.svc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, status.TotalEntries)
}

func TestUploadMalformed(t *testing.T) {
	e := newEnv(t, 4000, nil)
	ctx := context.Background()
	_, err := e.svc.Upload(ctx, []byte("---\ntitle: x\n---\nno more separators"))
	require.ErrorIs(t, err, appErr.ErrMalformedDocument)
	for _, raw := range [][]byte{nil, []byte("   \n\t")} {
		_, err = e.svc.Upload(ctx, raw)
		require.ErrorIs(t, err, appErr.ErrMalformedDocument)
	}
	_, err = e.svc.Upload(ctx, []byte("---\nauthor: x\n---\na\n---\nb\n---\nc"))
	require.ErrorIs(t, err, appErr.ErrMalformedDocument)
}

func TestListAndDelete(t *testing.T) {
	e := newEnv(t, 4000, nil)
	ctx := context.Background()
	for _, title := range []string{"Beta Book", "Alpha Book", "Gamma Notes"} {
		_, err := e.svc.Upload(ctx, newDoc(title, "short", "summary", "full of "+title))
		require.NoError(t, err)
	}

	list, err := e.svc.ListEntries(ctx, service.ListEntriesParams{Limit: 1000, Skip: -5})
	require.NoError(t, err)
	require.Equal(t, 3, list.Total)
	require.Equal(t, 100, list.Limit)
	require.Equal(t, 0, list.Skip)
	require.Equal(t, "Alpha Book", list.Entries[0].Title)

	list, err = e.svc.ListEntries(ctx, service.ListEntriesParams{Title: "book"})
	require.NoError(t, err)
	require.Equal(t, 2, list.Total)
	require.Equal(t, 20, list.Limit)

	target := list.Entries[0].ID
	del, err := e.svc.Delete(ctx, target)
	require.NoError(t, err)
	require.Equal(t, "ok", del.Status)
	require.Contains(t, del.Message, "Alpha Book")

	_, err = e.svc.GetEntry(ctx, target)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = e.svc.Delete(ctx, target)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	list, err = e.svc.ListEntries(ctx, service.ListEntriesParams{})
	require.NoError(t, err)
	require.Equal(t, 2, list.Total)
	for _, item := range list.Entries {
		require.NotEqual(t, target, item.ID)
	}
	e.index.mu.Lock()
	_, ok := e.index.chunks[target]
	e.index.mu.Unlock()
	require.False(t, ok)
}

func TestKeywordSearch(t *testing.T) {
	e := newEnv(t, 4000, nil)
	ctx := context.Background()
	res, err := e.svc.Upload(ctx, newDoc("Dune", "desert planet", "spice politics", "the spice must flow"))
	require.NoError(t, err)

	found, err := e.svc.Search(ctx, service.SearchParams{Query: "spice"})
	require.NoError(t, err)
	require.Equal(t, 2, found.TotalResults)
	for _, hit := range found.Results {
		require.Equal(t, res.EntryID, hit.EntryID)
		require.Equal(t, "Dune", hit.Title)
	}

	found, err = e.svc.Search(ctx, service.SearchParams{Query: "spice", Section: "fulltext", EntryID: res.EntryID})
	require.NoError(t, err)
	require.Equal(t, 1, found.TotalResults)
	require.Equal(t, 1, found.Results[0].Page)

	found, err = e.svc.Search(ctx, service.SearchParams{Query: "qqzzyxnothing"})
	require.NoError(t, err)
	require.Equal(t, 0, found.TotalResults)
	require.NotNil(t, found.Results)

	_, err = e.svc.Search(ctx, service.SearchParams{Query: "  "})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = e.svc.Search(ctx, service.SearchParams{Query: "spice", Section: "chapter"})
	require.ErrorIs(t, err, appErr.ErrInvalidSection)
}

func TestSemanticSearch(t *testing.T) {
	e := newEnv(t, 4000, nil)
	ctx := context.Background()
	res, err := e.svc.Upload(ctx, newDoc("Meaning", "s", "m", "a passage about the meaning of life and other things"))
	require.NoError(t, err)

	// stale chunks the catalog no longer backs
	require.NoError(t, e.index.Upsert(ctx, []model.Chunk{
		{EntryID: "ffffffffffffffff", PageNumber: 1, ChunkIndex: 0, Text: "gone"},
		{EntryID: res.EntryID, PageNumber: 9, ChunkIndex: 7, Text: "beyond the end"},
	}, [][]float32{{1}, {1}}))

	found, err := e.svc.SemanticSearch(ctx, service.SearchParams{Query: "purpose", Limit: 500})
	require.NoError(t, err)
	require.Equal(t, 1, found.TotalResults)
	hit := found.Results[0]
	require.Equal(t, res.EntryID, hit.EntryID)
	require.Equal(t, "Meaning", hit.Title)
	require.Equal(t, "Test Author", hit.Author)
	require.Equal(t, model.SectionFullText, hit.Section)
	require.Equal(t, 1, hit.PageNumber)
	require.Equal(t, 0, hit.ChunkIndex)

	found, err = e.svc.SemanticSearch(ctx, service.SearchParams{Query: "purpose", Section: "summary"})
	require.NoError(t, err)
	require.Empty(t, found.Results)

	_, err = e.svc.SemanticSearch(ctx, service.SearchParams{Query: "purpose", Section: "bogus"})
	require.ErrorIs(t, err, appErr.ErrInvalidSection)
}

func TestSemanticSearchSkipsStaleHitsWithinLimit(t *testing.T) {
	e := newEnv(t, 4000, nil)
	ctx := context.Background()
	res, err := e.svc.Upload(ctx, newDoc("Tides", "s", "m", "the moon pulls the tides"))
	require.NoError(t, err)

	// sorts ahead of the real entry, so it takes the first slot
	require.NoError(t, e.index.Upsert(ctx, []model.Chunk{
		{EntryID: "0000000000000000", PageNumber: 1, ChunkIndex: 0, Text: "gone"},
	}, [][]float32{{1}}))

	found, err := e.svc.SemanticSearch(ctx, service.SearchParams{Query: "moon", Limit: 1})
	require.NoError(t, err)
	require.Equal(t, 1, found.TotalResults)
	require.Equal(t, res.EntryID, found.Results[0].EntryID)
}

// deletingEmbedder deletes the entry being indexed on its first document embed.
type deletingEmbedder struct {
	once   sync.Once
	delete func()
}

func (d *deletingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if taskType == "RETRIEVAL_DOCUMENT" {
		d.once.Do(d.delete)
	}
	return []float32{1, 1}, nil
}

func (d *deletingEmbedder) ModelName() string { return "fake:deleting" }

func TestDeleteDuringIndexing(t *testing.T) {
	db, cleanup := testutil.OpenSQLiteDB(t)
	t.Cleanup(cleanup)
	store := repo.NewSQLiteStore(db)
	index := newMemIndex()
	ctx := context.Background()
	doc := newDoc("Ephemeral", "s", "m", "written and removed at once")

	var (
		svc       *service.LibraryService
		deleteErr error
	)
	embedder := &deletingEmbedder{}
	embedder.delete = func() {
		_, deleteErr = svc.Delete(ctx, library.EntryID(doc))
	}
	indexer := semantic.NewIndexer(index, embedder, store, semantic.NewChunker(200, 40))
	svc = service.NewLibraryService(store, indexer, nil, nil, service.Options{IndexTimeout: 5 * time.Second})

	res, err := svc.Upload(ctx, doc)
	require.NoError(t, err)
	require.NoError(t, deleteErr)
	require.Equal(t, model.IndexRemoved, res.IndexStatus)

	_, err = svc.GetEntry(ctx, res.EntryID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	index.mu.Lock()
	require.Empty(t, index.chunks[res.EntryID])
	index.mu.Unlock()
}

func TestFailingIndex(t *testing.T) {
	e := newEnv(t, 4000, nil)
	ctx := context.Background()
	e.index.setFail(errors.New("vector store down"))

	res, err := e.svc.Upload(ctx, newDoc("Resilient", "s", "m", "readable despite the index"))
	require.NoError(t, err)
	require.Equal(t, model.IndexDegraded, res.IndexStatus)

	page, err := e.svc.GetPage(ctx, service.PageParams{EntryID: res.EntryID, Section: "fulltext", Page: 1})
	require.NoError(t, err)
	require.Equal(t, "readable despite the index", page.Content)

	detail, err := e.svc.GetEntry(ctx, res.EntryID)
	require.NoError(t, err)
	require.Equal(t, model.IndexDegraded, detail.IndexStatus)

	_, err = e.svc.SemanticSearch(ctx, service.SearchParams{Query: "index"})
	require.ErrorIs(t, err, appErr.ErrIndexDegraded)

	e.index.setFail(nil)
	reindexed, err := e.svc.Reindex(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, reindexed.Processed)
	require.Equal(t, 1, reindexed.Indexed)

	detail, err = e.svc.GetEntry(ctx, res.EntryID)
	require.NoError(t, err)
	require.Equal(t, model.IndexIndexed, detail.IndexStatus)

	reindexed, err = e.svc.Reindex(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 0, reindexed.Processed)
}

func TestSource(t *testing.T) {
	files, err := filestore.New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	e := newEnv(t, 4000, files)
	ctx := context.Background()
	doc := newDoc("Archived", "s", "m", "f")
	res, err := e.svc.Upload(ctx, doc)
	require.NoError(t, err)

	rc, err := e.svc.Source(ctx, res.EntryID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, doc, data)

	_, err = e.svc.Delete(ctx, res.EntryID)
	require.NoError(t, err)
	_, err = e.svc.Source(ctx, res.EntryID)
	require.ErrorIs(t, err, appErr.ErrNotFound)

	plain := newEnv(t, 4000, nil)
	res, err = plain.svc.Upload(ctx, doc)
	require.NoError(t, err)
	_, err = plain.svc.Source(ctx, res.EntryID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestDisabledSemantic(t *testing.T) {
	db, cleanup := testutil.OpenSQLiteDB(t)
	defer cleanup()
	store := repo.NewSQLiteStore(db)
	svc := service.NewLibraryService(store, nil, nil, nil, service.Options{})
	ctx := context.Background()

	res, err := svc.Upload(ctx, newDoc("Plain", "s", "m", "f"))
	require.NoError(t, err)
	require.Equal(t, model.IndexDisabled, res.IndexStatus)
	_, err = svc.SemanticSearch(ctx, service.SearchParams{Query: "f"})
	require.ErrorIs(t, err, appErr.ErrIndexDegraded)

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, "none", status.SemanticBackend)
	require.False(t, status.SemanticEnabled)
}
