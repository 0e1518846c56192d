package handlers

import (
	"net/http"

	"github.com/jordanlanch/leaddesk/pkg/integrations"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/labstack/echo/v4"
)

// IntegrationHandler manages provider settings and outbound contact.
type IntegrationHandler struct {
	store      *integrations.Store
	dispatcher *integrations.Dispatcher
	log        logger.Logger
}

// NewIntegrationHandler creates a new integration handler
func NewIntegrationHandler(store *integrations.Store, dispatcher *integrations.Dispatcher, log logger.Logger) *IntegrationHandler {
	return &IntegrationHandler{store: store, dispatcher: dispatcher, log: log}
}

// List returns every provider with secrets masked.
func (h *IntegrationHandler) List(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	settings, err := h.store.List(ctx)
	if err != nil {
		return fail(c, err)
	}
	for i := range settings {
		settings[i] = settings[i].Redacted()
	}
	return c.JSON(http.StatusOK, settings)
}

// Get returns one provider with secrets masked.
func (h *IntegrationHandler) Get(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	setting, err := h.store.Get(ctx, c.Param("provider"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, setting.Redacted())
}

// Save replaces the settings of a provider.
func (h *IntegrationHandler) Save(c echo.Context) error {
	var req integrations.SaveRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	setting, err := h.store.Save(ctx, c.Param("provider"), req)
	if err != nil {
		return fail(c, err)
	}
	h.log.Info("integration saved", "provider", setting.Provider, "enabled", setting.Enabled, "actor_id", currentUserID(c))
	return c.JSON(http.StatusOK, setting.Redacted())
}

// Contact godoc
// @Summary Message a lead
// @Description Sends once over WhatsApp or email. A delivery failure is logged on the lead and answered with 502.
// @Tags Integrations
// @Accept json
// @Produce json
// @Param body body integrations.ContactRequest true "Message"
// @Success 200 {object} integrations.ContactResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 502 {object} integrations.ContactResult
// @Router /api/v1/admin/contact [post]
func (h *IntegrationHandler) Contact(c echo.Context) error {
	var req integrations.ContactRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.dispatcher.ContactLead(ctx, req, currentUserID(c))
	if err != nil {
		return fail(c, err)
	}
	if !res.Sent {
		return c.JSON(http.StatusBadGateway, res)
	}
	return c.JSON(http.StatusOK, res)
}
