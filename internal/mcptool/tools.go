package mcptool

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mlibrary/internal/pkg/errcode"
	"github.com/xxxsen/mlibrary/internal/service"
)

const ServerName = "mlibrary"

type toolError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// NewServer exposes the library gateway as protocol tools.
func NewServer(library *service.LibraryService) *server.MCPServer {
	s := server.NewMCPServer(ServerName, service.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.AddTools(Tools(library)...)
	return s
}

// NewHTTPHandler serves the tools over streamable HTTP.
func NewHTTPHandler(s *server.MCPServer) *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s, server.WithStateLess(true))
}

func Tools(library *service.LibraryService) []server.ServerTool {
	t := &tools{library: library}
	return []server.ServerTool{
		{Tool: listEntriesTool, Handler: t.listEntries},
		{Tool: getEntryTool, Handler: t.getEntry},
		{Tool: getPageTool, Handler: t.getPage},
		{Tool: getPagesTool, Handler: t.getPages},
		{Tool: searchContentTool, Handler: t.searchContent},
		{Tool: semanticSearchTool, Handler: t.semanticSearch},
		{Tool: uploadEntryTool, Handler: t.uploadEntry},
		{Tool: deleteEntryTool, Handler: t.deleteEntry},
	}
}

type tools struct {
	library *service.LibraryService
}

func (t *tools) listEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := service.ListEntriesParams{
		Skip:    req.GetInt("skip", 0),
		Limit:   req.GetInt("limit", 0),
		Title:   req.GetString("title", ""),
		Author:  req.GetString("author", ""),
		Genre:   req.GetString("genre", ""),
		Tag:     req.GetString("tag", ""),
		YearMin: optionalInt(req, "year_min"),
		YearMax: optionalInt(req, "year_max"),
	}
	res, err := t.library.ListEntries(ctx, params)
	return respond(ctx, req, res, err)
}

func (t *tools) getEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.library.GetEntry(ctx, req.GetString("entry_id", ""))
	return respond(ctx, req, res, err)
}

func (t *tools) getPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := service.PageParams{
		EntryID: req.GetString("entry_id", ""),
		Section: req.GetString("section", ""),
		Page:    req.GetInt("page", 1),
		Format:  req.GetString("format", ""),
	}
	res, err := t.library.GetPage(ctx, params)
	return respond(ctx, req, res, err)
}

func (t *tools) getPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := service.PagesParams{
		EntryID:  req.GetString("entry_id", ""),
		Section:  req.GetString("section", ""),
		FromPage: req.GetInt("from_page", 0),
		ToPage:   req.GetInt("to_page", 0),
		Format:   req.GetString("format", ""),
	}
	res, err := t.library.GetPages(ctx, params)
	return respond(ctx, req, res, err)
}

func (t *tools) searchContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.library.Search(ctx, searchParams(req))
	return respond(ctx, req, res, err)
}

func (t *tools) semanticSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.library.SemanticSearch(ctx, searchParams(req))
	return respond(ctx, req, res, err)
}

func (t *tools) uploadEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.library.Upload(ctx, []byte(req.GetString("content", "")))
	return respond(ctx, req, res, err)
}

func (t *tools) deleteEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.library.Delete(ctx, req.GetString("entry_id", ""))
	return respond(ctx, req, res, err)
}

func searchParams(req mcp.CallToolRequest) service.SearchParams {
	return service.SearchParams{
		Query:   req.GetString("query", ""),
		EntryID: req.GetString("entry_id", ""),
		Section: req.GetString("section", ""),
		Limit:   req.GetInt("limit", 0),
	}
}

func optionalInt(req mcp.CallToolRequest, key string) *int {
	args := req.GetArguments()
	if v, ok := args[key]; !ok || v == nil {
		return nil
	}
	n := req.GetInt(key, 0)
	return &n
}

// respond turns a gateway return pair into a tool result. Gateway errors are
// tool errors, never protocol errors.
func respond(ctx context.Context, req mcp.CallToolRequest, v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		code := errcode.FromError(err)
		logger := logutil.GetLogger(ctx).With(zap.String("tool", req.Params.Name), zap.Int("code", code), zap.Error(err))
		if code == errcode.ErrInternal {
			logger.Error("tool call failed")
		} else {
			logger.Debug("tool call rejected")
		}
		raw, _ := json.Marshal(toolError{Error: errcode.Message(err), Code: code})
		return mcp.NewToolResultError(string(raw)), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
