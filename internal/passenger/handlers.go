package passenger

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/facilmilha/facilmilha/internal/logging"
	"github.com/facilmilha/facilmilha/internal/validation"
)

// Handler provides HTTP endpoints for passenger lists.
type Handler struct {
	service *Service
}

// NewHandler creates a new passenger handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up passenger routes behind the identity middleware.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.PUT("/requests/:id/passengers", h.Replace)
	r.GET("/requests/:id/passengers", h.List)
}

// ReplaceRequest carries a full passenger list.
type ReplaceRequest struct {
	Passengers []PassengerInput `json:"passengers" binding:"required"`
}

// Replace handles PUT /v1/requests/:id/passengers
func (h *Handler) Replace(c *gin.Context) {
	var req ReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	passengers, err := h.service.Replace(c.Request.Context(),
		c.Param("id"), c.GetString("accountID"), req.Passengers)
	if err != nil {
		var verrs validation.ValidationErrors
		switch {
		case errors.Is(err, ErrNoPassengers):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "At least one passenger is required",
			})
		case errors.As(err, &verrs):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": verrs.Error(),
			})
		case errors.Is(err, ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Only the request owner can edit passengers",
			})
		case errors.Is(err, ErrRequestFrozen):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "invalid_status",
				"message": "Passengers are locked after ticket issuance",
			})
		default:
			// No passenger fields in the log line.
			logging.L(c.Request.Context()).Error("failed to replace passengers",
				"request_id", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to save passengers",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"passengers": passengers})
}

// List handles GET /v1/requests/:id/passengers
func (h *Handler) List(c *gin.Context) {
	passengers, err := h.service.List(c.Request.Context(), c.Param("id"), c.GetString("accountID"))
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Passenger details are not available for this account",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load passengers",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"passengers": passengers})
}
