package rating

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for ratings.
type Handler struct {
	service *Service
}

// NewHandler creates a new rating handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up rating routes behind the identity middleware.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/offers/:id/rating", h.Rate)
	r.GET("/accounts/:id/ratings", h.List)
	r.GET("/accounts/:id/ratings/summary", h.Summarize)
}

// RateRequest carries the rater's score and optional comment.
type RateRequest struct {
	Stars   int    `json:"stars" binding:"required"`
	Comment string `json:"comment"`
}

// Rate handles POST /v1/offers/:id/rating
func (h *Handler) Rate(c *gin.Context) {
	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	rating, err := h.service.Rate(c.Request.Context(),
		c.Param("id"), c.GetString("accountID"), req.Stars, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidStars):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "Stars must be between 1 and 5",
			})
		case errors.Is(err, ErrNotCompleted):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "invalid_status",
				"message": "Only completed orders can be rated",
			})
		case errors.Is(err, ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Only the buyer or seller can rate this order",
			})
		case errors.Is(err, ErrAlreadyRated):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_rated",
				"message": "You already rated this order",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to save rating",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"rating": rating})
}

// List handles GET /v1/accounts/:id/ratings
func (h *Handler) List(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	ratings, err := h.service.Received(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load ratings",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ratings": ratings})
}

// Summarize handles GET /v1/accounts/:id/ratings/summary
func (h *Handler) Summarize(c *gin.Context) {
	summary, err := h.service.SummaryFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load rating summary",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}
