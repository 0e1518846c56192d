package handlers

import (
	"net/http"

	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/landing"
	"github.com/jordanlanch/leaddesk/pkg/team"
	"github.com/labstack/echo/v4"
)

// ReferralHandler resolves public referral links.
type ReferralHandler struct {
	team    *team.Service
	landing *landing.Service
}

// NewReferralHandler creates a new referral handler
func NewReferralHandler(members *team.Service, pages *landing.Service) *ReferralHandler {
	return &ReferralHandler{team: members, landing: pages}
}

type referralResponse struct {
	ReferralCode string         `json:"referral_code"`
	MemberName   string         `json:"member_name"`
	Pages        []landing.Page `json:"pages"`
}

// Resolve returns the member behind a referral token and their active pages.
// Inactive members resolve as not found.
func (h *ReferralHandler) Resolve(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.team.GetByReferralToken(ctx, c.Param("token"))
	if err != nil {
		return fail(c, err)
	}
	if !user.IsActive() {
		return fail(c, domain.NewNotFoundError("referral"))
	}

	pages, err := h.landing.List(ctx, user.ID)
	if err != nil {
		return fail(c, err)
	}
	active := make([]landing.Page, 0, len(pages))
	for _, p := range pages {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return c.JSON(http.StatusOK, referralResponse{
		ReferralCode: user.ReferralToken,
		MemberName:   user.Name,
		Pages:        active,
	})
}
