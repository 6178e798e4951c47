package payout

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes operational payout endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a new payout handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterAdminRoutes sets up operator-only routes. The caller mounts these
// behind whatever admin gate the deployment uses.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/sweep", h.Sweep)
}

// Sweep handles POST /v1/admin/sweep: an on-demand sweep pass, same code path
// as the timer. Useful after a gateway outage to release the backlog without
// waiting out the interval.
func (h *Handler) Sweep(c *gin.Context) {
	released := h.service.SweepAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"releasedCentavos": released})
}
