// Keyword HTTP handlers.
//
// This file exposes REST endpoints for keyword resources:
//   - POST   /keywords        (create)
//   - GET    /keywords        (list, paginated, optional substring filter)
//   - DELETE /keywords/{id}   (remove)
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dkhv/tg-monitor/internal/domain"
	"github.com/dkhv/tg-monitor/internal/services"
	"github.com/dkhv/tg-monitor/internal/utils"
)

// KeywordService defines keyword CRUD operations consumed by HTTP handlers.
type KeywordService interface {
	Add(ctx context.Context, keyword string) (*domain.Keyword, error)
	Delete(ctx context.Context, id int64) error
	ListPage(ctx context.Context, q string, page, pageSize int) ([]domain.Keyword, int64, error)
}

//
// DTOs
//

// CreateKeywordRequest is the JSON payload for adding a keyword.
type CreateKeywordRequest struct {
	// Keyword is the word or phrase to match, original spelling kept.
	Keyword string `json:"keyword" binding:"required,min=1,max=255"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListKeywordsResponse wraps a page of keywords and pagination information.
type ListKeywordsResponse struct {
	Keywords   []domain.Keyword `json:"keywords"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// atoiDefault parses s or returns def on empty or invalid input.
func atoiDefault(s string, def int) int {
	return utils.AtoiDefault(s, def)
}

func isConflict(err error) bool   { return errors.Is(err, services.ErrKeywordExists) }
func isBadKeyword(err error) bool { return errors.Is(err, services.ErrKeywordEmpty) }
func isNotFound(err error) bool   { return errors.Is(err, services.ErrKeywordNotFound) }

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = atoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = atoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// CreateKeyword adds a keyword to the monitored set.
func (h *Handlers) CreateKeyword(c *gin.Context) {
	var req CreateKeywordRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Keyword) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "keyword required (1-255 chars)")
		return
	}

	kw, err := h.kwSvc.Add(c.Request.Context(), req.Keyword)
	switch {
	case isConflict(err):
		fail(c, http.StatusConflict, ErrCodeConflict, "keyword already exists")
		return
	case isBadKeyword(err):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "keyword is empty")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, kw)
}

// ListKeywords returns a paginated page of keywords, optionally filtered by
// the q query parameter (substring match on the normalized form).
func (h *Handlers) ListKeywords(c *gin.Context) {
	page, pageSize := clampPagination(c)
	q := strings.TrimSpace(c.Query("q"))

	items, total, err := h.kwSvc.ListPage(c.Request.Context(), q, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListKeywordsResponse{
		Keywords: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}

// DeleteKeyword removes a keyword by numeric id.
func (h *Handlers) DeleteKeyword(c *gin.Context) {
	id := int64(atoiDefault(c.Param("id"), 0))
	if id <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "keyword id must be a positive integer")
		return
	}

	if err := h.kwSvc.Delete(c.Request.Context(), id); err != nil {
		if isNotFound(err) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "keyword not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
