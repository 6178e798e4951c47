package account

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for account profiles.
type Handler struct {
	service *Service
}

// NewHandler creates a new account handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up account routes. The caller mounts these behind the
// identity middleware, which sets "accountID" from the auth layer.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/profile", h.GetProfile)
	r.PUT("/profile", h.UpdateProfile)
}

// UpdateProfileRequest carries mutable profile fields.
type UpdateProfileRequest struct {
	Name       string `json:"name"`
	PixKey     string `json:"pixKey"`
	PixKeyType string `json:"pixKeyType"`
}

// GetProfile handles GET /v1/profile
func (h *Handler) GetProfile(c *gin.Context) {
	acct, err := h.service.Get(c.Request.Context(), c.GetString("accountID"))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Account not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load profile",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": acct})
}

// UpdateProfile handles PUT /v1/profile
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	acct, err := h.service.UpdateProfile(c.Request.Context(),
		c.GetString("accountID"), req.Name, req.PixKey, PixKeyType(req.PixKeyType))
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Account not found",
			})
		case errors.Is(err, ErrInvalidPixKey):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "Invalid PIX key or key type",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to update profile",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": acct})
}
