package handlers

import (
	"net/http"

	"github.com/jordanlanch/leaddesk/pkg/landing"
	"github.com/labstack/echo/v4"
)

// LandingHandler manages landing pages and serves them publicly.
type LandingHandler struct {
	pages *landing.Service
}

// NewLandingHandler creates a new landing page handler
func NewLandingHandler(svc *landing.Service) *LandingHandler {
	return &LandingHandler{pages: svc}
}

// List returns every page, or only those of ?user_id=.
func (h *LandingHandler) List(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	pages, err := h.pages.List(ctx, queryInt(c, "user_id", 0))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, pages)
}

// Get returns one page.
func (h *LandingHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := h.pages.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// Create adds a page. An empty slug is derived from the title.
func (h *LandingHandler) Create(c echo.Context) error {
	var req landing.PageRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := h.pages.Create(ctx, req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, page)
}

// Update replaces a page.
func (h *LandingHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req landing.PageRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := h.pages.Update(ctx, id, req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// Delete removes a page.
func (h *LandingHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.pages.Delete(ctx, id); err != nil {
		return fail(c, err)
	}
	return deleted(c, id, "Landing page")
}

// Public serves an active page by slug and counts the view.
func (h *LandingHandler) Public(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := h.pages.BySlug(ctx, c.Param("slug"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}
