package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/facilmilha/facilmilha/internal/metrics"
)

// Handler provides HTTP endpoints for wallet operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new wallet handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up wallet routes behind the identity middleware.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallet", h.GetWallet)
	r.GET("/wallet/history", h.GetHistory)
	r.POST("/wallet/withdraw", h.Withdraw)
}

// WithdrawRequest carries a withdrawal order.
type WithdrawRequest struct {
	AmountCentavos int64  `json:"amountCentavos" binding:"required"`
	PixKey         string `json:"pixKey" binding:"required"`
	PixKeyType     string `json:"pixKeyType"`
}

// GetWallet handles GET /v1/wallet
func (h *Handler) GetWallet(c *gin.Context) {
	w, err := h.service.GetByAccount(c.Request.Context(), c.GetString("accountID"))
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Wallet not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load wallet",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"wallet": w})
}

// GetHistory handles GET /v1/wallet/history
func (h *Handler) GetHistory(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	history, err := h.service.History(c.Request.Context(), c.GetString("accountID"), limit)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Wallet not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": history})
}

// Withdraw handles POST /v1/wallet/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	txn, err := h.service.Withdraw(c.Request.Context(),
		c.GetString("accountID"), req.AmountCentavos, req.PixKey, req.PixKeyType)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			metrics.WithdrawalsTotal.WithLabelValues("invalid").Inc()
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "Amount must be greater than zero",
			})
		case errors.Is(err, ErrInsufficientFunds):
			metrics.WithdrawalsTotal.WithLabelValues("insufficient_funds").Inc()
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "insufficient_funds",
				"message": "Available balance is lower than the requested amount",
			})
		case errors.Is(err, ErrWalletNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Wallet not found",
			})
		default:
			metrics.WithdrawalsTotal.WithLabelValues("error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to process withdrawal",
			})
		}
		return
	}

	metrics.WithdrawalsTotal.WithLabelValues("ok").Inc()
	c.JSON(http.StatusCreated, gin.H{"transaction": txn})
}
