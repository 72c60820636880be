package addressbook

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/safeshield/internal/logging"
)

// Handler provides HTTP endpoints for the address book
type Handler struct {
	store Store
}

// NewHandler creates a new address book handler
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up address book routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/chains/:chainId/address-book", h.List)
	r.POST("/chains/:chainId/address-book", h.Add)
	r.DELETE("/chains/:chainId/address-book/:address", h.Remove)
}

// AddRequest is the body of POST /chains/:chainId/address-book
type AddRequest struct {
	Address string `json:"address" binding:"required"`
	Name    string `json:"name"`
}

// List handles GET /chains/:chainId/address-book
func (h *Handler) List(c *gin.Context) {
	chainID := c.Param("chainId")
	if validateChain(chainID) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_chain", "message": "chainId must be numeric"})
		return
	}

	entries, err := h.store.List(c.Request.Context(), chainID)
	if err != nil {
		logging.L(c.Request.Context()).Error("list address book failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to list address book"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// Add handles POST /chains/:chainId/address-book
func (h *Handler) Add(c *gin.Context) {
	var req AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	entry := &Entry{ChainID: c.Param("chainId"), Address: req.Address, Name: req.Name}
	if err := h.store.Add(c.Request.Context(), entry); err != nil {
		switch {
		case errors.Is(err, ErrInvalidAddress):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_address", "message": "Invalid Ethereum address"})
		case errors.Is(err, ErrInvalidChain):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_chain", "message": "chainId must be numeric"})
		default:
			logging.L(c.Request.Context()).Error("add address book entry failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to add entry"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"entry": entry})
}

// Remove handles DELETE /chains/:chainId/address-book/:address
func (h *Handler) Remove(c *gin.Context) {
	err := h.store.Remove(c.Request.Context(), c.Param("chainId"), c.Param("address"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Address not in address book"})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("remove address book entry failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to remove entry"})
		return
	}
	c.Status(http.StatusNoContent)
}
