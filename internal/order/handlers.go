package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/facilmilha/facilmilha/internal/logging"
	"github.com/facilmilha/facilmilha/internal/validation"
)

// Handler provides HTTP endpoints for the marketplace order flow.
type Handler struct {
	service *Service
}

// NewHandler creates a new order handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up order routes behind the identity middleware.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/requests", h.CreateRequest)
	r.GET("/requests", h.ListOpen)
	r.GET("/requests/mine", h.ListMine)
	r.GET("/requests/:id", h.GetRequest)
	r.DELETE("/requests/:id", h.CancelRequest)
	r.GET("/requests/:id/offers", h.ListOffers)
	r.POST("/requests/:id/offers", h.CreateOffer)

	r.POST("/offers/:id/accept", h.AcceptOffer)
	r.POST("/offers/:id/reject", h.RejectOffer)
	r.POST("/offers/:id/charge", h.GenerateCharge)
	r.POST("/offers/:id/proof", h.SubmitProof)
	r.POST("/offers/:id/confirm-receipt", h.ConfirmReceipt)

	r.GET("/sales", h.ListSales)
}

// CreateRequest handles POST /v1/requests
func (h *Handler) CreateRequest(c *gin.Context) {
	var in CreateRequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	in.BuyerID = c.GetString("accountID")

	req, err := h.service.CreateRequest(c.Request.Context(), in)
	if err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": verrs.Error(),
			})
			return
		}
		logging.L(c.Request.Context()).Error("failed to create flight request", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to create request",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"request": req})
}

// ListOpen handles GET /v1/requests
func (h *Handler) ListOpen(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	requests, err := h.service.ListOpen(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list requests",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// ListMine handles GET /v1/requests/mine
func (h *Handler) ListMine(c *gin.Context) {
	requests, err := h.service.ListByBuyer(c.Request.Context(), c.GetString("accountID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list requests",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// GetRequest handles GET /v1/requests/:id
func (h *Handler) GetRequest(c *gin.Context) {
	req, err := h.service.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Request not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load request",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": req})
}

// CancelRequest handles DELETE /v1/requests/:id
func (h *Handler) CancelRequest(c *gin.Context) {
	result, err := h.service.CancelRequest(c.Request.Context(), c.Param("id"), c.GetString("accountID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to cancel request",
		})
		return
	}

	if !result.OK {
		switch result.Reason {
		case "not_found":
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Request not found",
			})
		case "not_authorized":
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Only the request owner can cancel it",
			})
		default:
			c.JSON(http.StatusConflict, gin.H{
				"error":   "not_cancellable",
				"message": "Request can no longer be canceled",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"canceled": true})
}

// ListOffers handles GET /v1/requests/:id/offers
func (h *Handler) ListOffers(c *gin.Context) {
	offers, err := h.service.OffersForRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list offers",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"offers": offers})
}

// CreateOffer handles POST /v1/requests/:id/offers
func (h *Handler) CreateOffer(c *gin.Context) {
	var in CreateOfferInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	in.SellerID = c.GetString("accountID")
	in.FlightRequestID = c.Param("id")

	offer, err := h.service.CreateOffer(c.Request.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "Amount must be greater than zero",
			})
		case errors.Is(err, ErrRequestNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Request not found",
			})
		case errors.Is(err, ErrInvalidStatus):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "invalid_status",
				"message": "Request is not open for offers",
			})
		default:
			logging.L(c.Request.Context()).Error("failed to create offer", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to create offer",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"offer": offer})
}

// AcceptOffer handles POST /v1/offers/:id/accept
func (h *Handler) AcceptOffer(c *gin.Context) {
	offer, err := h.service.AcceptOffer(c.Request.Context(), c.Param("id"), c.GetString("accountID"))
	if err != nil {
		h.renderTransitionError(c, err, "Offer can no longer be accepted")
		return
	}

	c.JSON(http.StatusOK, gin.H{"offer": offer})
}

// RejectOffer handles POST /v1/offers/:id/reject
func (h *Handler) RejectOffer(c *gin.Context) {
	offer, err := h.service.RejectOffer(c.Request.Context(), c.Param("id"), c.GetString("accountID"))
	if err != nil {
		h.renderTransitionError(c, err, "Offer can no longer be rejected")
		return
	}

	c.JSON(http.StatusOK, gin.H{"offer": offer})
}

// ChargeRequest carries the buyer's document for gateway charge creation.
type ChargeRequest struct {
	Document string `json:"document" binding:"required"`
}

// GenerateCharge handles POST /v1/offers/:id/charge
func (h *Handler) GenerateCharge(c *gin.Context) {
	var req ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	charge, err := h.service.GenerateCharge(c.Request.Context(),
		c.Param("id"), c.GetString("accountID"), req.Document)
	if err != nil {
		if h.tryRenderKnown(c, err, "Offer is not awaiting payment") {
			return
		}
		logging.L(c.Request.Context()).Error("failed to generate charge",
			"offer_id", c.Param("id"), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "gateway_error",
			"message": "Failed to create payment charge",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"charge": charge})
}

// ProofRequest carries the seller's proof of ticket issuance.
type ProofRequest struct {
	PNR      string `json:"pnr" binding:"required"`
	ProofURL string `json:"proofUrl"`
}

// SubmitProof handles POST /v1/offers/:id/proof
func (h *Handler) SubmitProof(c *gin.Context) {
	var req ProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	offer, err := h.service.SubmitProof(c.Request.Context(),
		c.Param("id"), c.GetString("accountID"), req.PNR, req.ProofURL)
	if err != nil {
		if errors.Is(err, ErrInvalidPNR) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "Locator must be exactly 6 letters or digits",
			})
			return
		}
		h.renderTransitionError(c, err, "Offer is not awaiting issuance")
		return
	}

	c.JSON(http.StatusOK, gin.H{"offer": offer})
}

// ConfirmReceipt handles POST /v1/offers/:id/confirm-receipt
func (h *Handler) ConfirmReceipt(c *gin.Context) {
	offer, err := h.service.ConfirmReceipt(c.Request.Context(), c.Param("id"), c.GetString("accountID"))
	if err != nil {
		if h.tryRenderKnown(c, err, "Offer is not awaiting receipt confirmation") {
			return
		}
		logging.L(c.Request.Context()).Error("failed to confirm receipt",
			"offer_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to confirm receipt",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"offer": offer})
}

// ListSales handles GET /v1/sales
func (h *Handler) ListSales(c *gin.Context) {
	sales, err := h.service.ListSales(c.Request.Context(), c.GetString("accountID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list sales",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sales": sales})
}

func (h *Handler) renderTransitionError(c *gin.Context, err error, conflictMsg string) {
	if h.tryRenderKnown(c, err, conflictMsg) {
		return
	}
	logging.L(c.Request.Context()).Error("order transition failed",
		"offer_id", c.Param("id"), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "Operation failed",
	})
}

// tryRenderKnown maps domain errors to responses. Returns false when the
// error is unexpected and the caller should render its own fallback.
func (h *Handler) tryRenderKnown(c *gin.Context, err error, conflictMsg string) bool {
	switch {
	case errors.Is(err, ErrOfferNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Offer not found",
		})
	case errors.Is(err, ErrRequestNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Request not found",
		})
	case errors.Is(err, ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Not allowed to act on this offer",
		})
	case errors.Is(err, ErrInvalidStatus):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_status",
			"message": conflictMsg,
		})
	default:
		return false
	}
	return true
}
