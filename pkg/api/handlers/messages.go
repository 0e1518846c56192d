package handlers

import (
	"net/http"

	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/messaging"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/labstack/echo/v4"
)

// MessageHandler serves direct messages and announcements.
type MessageHandler struct {
	messages *messaging.Service
	log      logger.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(svc *messaging.Service, log logger.Logger) *MessageHandler {
	return &MessageHandler{messages: svc, log: log}
}

type unreadResponse struct {
	Unread int `json:"unread"`
}

// Send delivers a direct message from the caller to a member.
func (h *MessageHandler) Send(c echo.Context) error {
	var req messaging.SendRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	msg, err := h.messages.Send(ctx, req, currentUserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// Inbox lists the caller's messages, newest first. ?unread=true keeps only
// unread ones.
func (h *MessageHandler) Inbox(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	msgs, err := h.messages.Inbox(ctx, currentUserID(c), queryBool(c, "unread"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, msgs)
}

// UnreadCount returns the number of unread messages of the caller.
func (h *MessageHandler) UnreadCount(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	n, err := h.messages.UnreadCount(ctx, currentUserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, unreadResponse{Unread: n})
}

// MarkRead marks one of the caller's messages as read.
func (h *MessageHandler) MarkRead(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.messages.MarkRead(ctx, id, currentUserID(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: "Message marked as read"})
}

// Delete removes one of the caller's messages.
func (h *MessageHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.messages.Delete(ctx, id, currentUserID(c)); err != nil {
		return fail(c, err)
	}
	return deleted(c, id, "Message")
}

// Announce publishes an announcement to every member.
func (h *MessageHandler) Announce(c echo.Context) error {
	var req messaging.AnnounceRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	a, err := h.messages.Announce(ctx, req, currentUserID(c))
	if err != nil {
		return fail(c, err)
	}
	h.log.Info("announcement published", "announcement_id", a.ID, "priority", string(a.Priority))
	return c.JSON(http.StatusCreated, a)
}

// Announcements lists the announcements that have not expired.
func (h *MessageHandler) Announcements(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := h.messages.Active(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// DeleteAnnouncement removes an announcement.
func (h *MessageHandler) DeleteAnnouncement(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.messages.DeleteAnnouncement(ctx, id); err != nil {
		return fail(c, err)
	}
	return deleted(c, id, "Announcement")
}
