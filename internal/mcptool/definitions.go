package mcptool

import "github.com/mark3labs/mcp-go/mcp"

const sectionHelp = "Content section: shortsummary, summary or fulltext."

var listEntriesTool = mcp.NewTool("list_entries",
	mcp.WithDescription("List library entries with optional filters. Returns entries, total, skip and limit."),
	mcp.WithNumber("skip", mcp.Description("Number of entries to skip (default 0).")),
	mcp.WithNumber("limit", mcp.Description("Max entries to return (default 20, max 100).")),
	mcp.WithString("title", mcp.Description("Case-insensitive substring of the title.")),
	mcp.WithString("author", mcp.Description("Case-insensitive substring of the author.")),
	mcp.WithString("genre", mcp.Description("Case-insensitive substring of the genre.")),
	mcp.WithString("tag", mcp.Description("Substring of any custom tag.")),
	mcp.WithNumber("year_min", mcp.Description("Earliest publication year, inclusive.")),
	mcp.WithNumber("year_max", mcp.Description("Latest publication year, inclusive.")),
)

var getEntryTool = mcp.NewTool("get_entry",
	mcp.WithDescription("Get the metadata, page counts and chapter index of one entry."),
	mcp.WithString("entry_id", mcp.Required(), mcp.Description("The entry id (16 hex chars).")),
)

var getPageTool = mcp.NewTool("get_page",
	mcp.WithDescription("Read one page of a section. A total_pages of 0 means the section is empty."),
	mcp.WithString("entry_id", mcp.Required(), mcp.Description("The entry id (16 hex chars).")),
	mcp.WithString("section", mcp.Required(), mcp.Description(sectionHelp)),
	mcp.WithNumber("page", mcp.Description("Page number, 1-based (default 1).")),
	mcp.WithString("format", mcp.Description("markdown (default) or html.")),
)

var getPagesTool = mcp.NewTool("get_pages",
	mcp.WithDescription("Read consecutive pages of a section, at most 10 per call. The range is clamped to the section."),
	mcp.WithString("entry_id", mcp.Required(), mcp.Description("The entry id (16 hex chars).")),
	mcp.WithString("section", mcp.Required(), mcp.Description(sectionHelp)),
	mcp.WithNumber("from_page", mcp.Description("First page, 1-based (default 1).")),
	mcp.WithNumber("to_page", mcp.Description("Last page, inclusive (default 5).")),
	mcp.WithString("format", mcp.Description("markdown (default) or html.")),
)

var searchContentTool = mcp.NewTool("search_content",
	mcp.WithDescription("Keyword full-text search. Snippets mark matches between >>> and <<<. Each hit names a page readable with get_page."),
	mcp.WithString("query", mcp.Required(), mcp.Description("Search terms. Quoted phrases, OR and -negation are supported.")),
	mcp.WithString("entry_id", mcp.Description("Limit the search to one entry.")),
	mcp.WithString("section", mcp.Description(sectionHelp)),
	mcp.WithNumber("limit", mcp.Description("Max results (default 20, max 50).")),
)

var semanticSearchTool = mcp.NewTool("semantic_search",
	mcp.WithDescription("Meaning-based search over fulltext passages. Each hit names a fulltext page readable with get_page."),
	mcp.WithString("query", mcp.Required(), mcp.Description("Natural language description of what to find.")),
	mcp.WithString("entry_id", mcp.Description("Limit the search to one entry.")),
	mcp.WithString("section", mcp.Description("Only fulltext is indexed.")),
	mcp.WithNumber("limit", mcp.Description("Max results (default 10, max 50).")),
)

var uploadEntryTool = mcp.NewTool("upload_entry",
	mcp.WithDescription("Store a library entry document, replacing an entry with identical content."),
	mcp.WithString("content", mcp.Required(), mcp.Description("The full document text with front matter and three sections.")),
)

var deleteEntryTool = mcp.NewTool("delete_entry",
	mcp.WithDescription("Delete an entry with all of its pages and chapters."),
	mcp.WithString("entry_id", mcp.Required(), mcp.Description("The entry id (16 hex chars).")),
)
