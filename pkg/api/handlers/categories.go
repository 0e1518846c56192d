package handlers

import (
	"net/http"

	"github.com/jordanlanch/leaddesk/pkg/analytics"
	"github.com/jordanlanch/leaddesk/pkg/categories"
	"github.com/labstack/echo/v4"
)

// CategoryHandler manages lead categories.
type CategoryHandler struct {
	categories *categories.Service
	analytics  *analytics.Service
}

// NewCategoryHandler creates a new category handler
func NewCategoryHandler(svc *categories.Service, stats *analytics.Service) *CategoryHandler {
	return &CategoryHandler{categories: svc, analytics: stats}
}

// List returns every category with its lead count.
func (h *CategoryHandler) List(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := h.categories.List(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Get returns one category.
func (h *CategoryHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	cat, err := h.categories.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cat)
}

// Create adds a category. Names are unique.
func (h *CategoryHandler) Create(c echo.Context) error {
	var req categories.CategoryRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	cat, err := h.categories.Create(ctx, req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, cat)
}

// Update replaces a category.
func (h *CategoryHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req categories.CategoryRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	cat, err := h.categories.Update(ctx, id, req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cat)
}

// Delete removes a category and its lead links.
func (h *CategoryHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.categories.Delete(ctx, id); err != nil {
		return fail(c, err)
	}
	h.analytics.Invalidate(ctx)
	return deleted(c, id, "Category")
}
