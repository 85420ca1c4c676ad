package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mlibrary/internal/pkg/errcode"
	"github.com/xxxsen/mlibrary/internal/pkg/response"
	"github.com/xxxsen/mlibrary/internal/service"
)

type LibraryHandler struct {
	library       *service.LibraryService
	maxUploadSize int64
}

func NewLibraryHandler(library *service.LibraryService, maxUploadSize int64) *LibraryHandler {
	return &LibraryHandler{library: library, maxUploadSize: maxUploadSize}
}

func (h *LibraryHandler) List(c *gin.Context) {
	var params service.ListEntriesParams
	if err := c.ShouldBindQuery(&params); err != nil {
		invalidParam(c, err)
		return
	}
	res, err := h.library.ListEntries(c.Request.Context(), params)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *LibraryHandler) Get(c *gin.Context) {
	res, err := h.library.GetEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *LibraryHandler) Page(c *gin.Context) {
	var params service.PageParams
	if err := c.ShouldBindQuery(&params); err != nil {
		invalidParam(c, err)
		return
	}
	params.EntryID = c.Param("id")
	res, err := h.library.GetPage(c.Request.Context(), params)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *LibraryHandler) Pages(c *gin.Context) {
	var params service.PagesParams
	if err := c.ShouldBindQuery(&params); err != nil {
		invalidParam(c, err)
		return
	}
	params.EntryID = c.Param("id")
	res, err := h.library.GetPages(c.Request.Context(), params)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *LibraryHandler) Source(c *gin.Context) {
	rc, err := h.library.Source(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, -1, "text/markdown; charset=utf-8", rc, map[string]string{
		"Content-Disposition": `attachment; filename="` + c.Param("id") + `.md"`,
	})
}

func (h *LibraryHandler) Delete(c *gin.Context) {
	res, err := h.library.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *LibraryHandler) Upload(c *gin.Context) {
	if h.maxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+uploadOverhead)
	}
	file, err := c.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			response.Error(c, errcode.ErrInvalidFile, uploadTooLargeMessage(h.maxUploadSize))
			return
		}
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.maxUploadSize > 0 && file.Size > h.maxUploadSize {
		response.Error(c, errcode.ErrInvalidFile, uploadTooLargeMessage(h.maxUploadSize))
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	raw, err := io.ReadAll(opened)
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to read file")
		return
	}
	res, err := h.library.Upload(c.Request.Context(), raw)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *LibraryHandler) Search(c *gin.Context) {
	var params service.SearchParams
	if err := c.ShouldBindQuery(&params); err != nil {
		invalidParam(c, err)
		return
	}
	res, err := h.library.Search(c.Request.Context(), params)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *LibraryHandler) SemanticSearch(c *gin.Context) {
	var params service.SearchParams
	if err := c.ShouldBindJSON(&params); err != nil {
		invalidParam(c, err)
		return
	}
	res, err := h.library.SemanticSearch(c.Request.Context(), params)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *LibraryHandler) Status(c *gin.Context) {
	res, err := h.library.Status(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}
