package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/interlock-api/internal/middleware"
	"github.com/sjperalta/interlock-api/internal/repository"
	"github.com/sjperalta/interlock-api/internal/services"
)

// respondError maps service sentinels to status codes
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrDuplicate):
		status = http.StatusConflict
	case errors.Is(err, services.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrMalformedInput):
		status = http.StatusBadRequest
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// uintParam parses a positive numeric path parameter, answering 400 when it is not one
func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// actorOr returns the caller id from the actor header, falling back to fallback
func actorOr(c *gin.Context, fallback uint) uint {
	if id := middleware.GetUserID(c); id != 0 {
		return id
	}
	return fallback
}

// listQuery builds a ListQuery from page, per_page, sort_by, sort_dir and the named filters
func listQuery(c *gin.Context, filters ...string) *repository.ListQuery {
	query := repository.NewListQuery()
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && page > 0 {
		query.Page = page
	}
	if perPage, err := strconv.Atoi(c.DefaultQuery("per_page", "20")); err == nil && perPage > 0 {
		query.PerPage = min(perPage, 200)
	}
	query.SortBy = c.Query("sort_by")
	query.SortDir = strings.ToLower(c.Query("sort_dir"))
	for _, key := range filters {
		if val := c.Query(key); val != "" {
			query.Filters[key] = val
		}
	}
	return query
}

func pagination(query *repository.ListQuery, total int64) gin.H {
	return gin.H{"total": total, "page": query.Page, "per_page": query.PerPage}
}
