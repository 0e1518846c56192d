package handlers

import (
	"net/http"

	"github.com/jordanlanch/leaddesk/pkg/training"
	"github.com/labstack/echo/v4"
)

// TrainingHandler manages training materials and certificates.
type TrainingHandler struct {
	training *training.Service
}

// NewTrainingHandler creates a new training handler
func NewTrainingHandler(svc *training.Service) *TrainingHandler {
	return &TrainingHandler{training: svc}
}

// Materials lists every material for admins.
func (h *TrainingHandler) Materials(c echo.Context) error {
	return h.materials(c, false)
}

// PublishedMaterials lists the materials visible to members.
func (h *TrainingHandler) PublishedMaterials(c echo.Context) error {
	return h.materials(c, true)
}

func (h *TrainingHandler) materials(c echo.Context, publishedOnly bool) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := h.training.ListMaterials(ctx, publishedOnly)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// GetMaterial returns one material.
func (h *TrainingHandler) GetMaterial(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	m, err := h.training.GetMaterial(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// CreateMaterial adds a material.
func (h *TrainingHandler) CreateMaterial(c echo.Context) error {
	var req training.MaterialRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	m, err := h.training.CreateMaterial(ctx, req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// UpdateMaterial replaces a material.
func (h *TrainingHandler) UpdateMaterial(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req training.MaterialRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	m, err := h.training.UpdateMaterial(ctx, id, req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// DeleteMaterial removes a material.
func (h *TrainingHandler) DeleteMaterial(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.training.DeleteMaterial(ctx, id); err != nil {
		return fail(c, err)
	}
	return deleted(c, id, "Material")
}

// Issue issues a certificate to a member.
func (h *TrainingHandler) Issue(c echo.Context) error {
	var req training.IssueRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	cert, err := h.training.Issue(ctx, req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, cert)
}

// MemberCertificates lists the certificates of the member in the path.
func (h *TrainingHandler) MemberCertificates(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	return h.certificates(c, id)
}

// MyCertificates lists the caller's certificates.
func (h *TrainingHandler) MyCertificates(c echo.Context) error {
	return h.certificates(c, currentUserID(c))
}

func (h *TrainingHandler) certificates(c echo.Context, userID int) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := h.training.Certificates(ctx, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Revoke deletes a certificate.
func (h *TrainingHandler) Revoke(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.training.Revoke(ctx, id); err != nil {
		return fail(c, err)
	}
	return deleted(c, id, "Certificate")
}
