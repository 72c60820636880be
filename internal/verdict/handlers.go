package verdict

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/logging"
	"github.com/mbd888/safeshield/internal/pagination"
)

// Handler serves the verdict history
type Handler struct {
	store Store
}

// NewHandler creates a new verdict history handler
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up verdict routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/chains/:chainId/safes/:safe/shield/history", h.History)
}

// History handles GET /chains/:chainId/safes/:safe/shield/history
func (h *Handler) History(c *gin.Context) {
	safe := c.Param("safe")
	if !analysis.IsAddress(safe) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_address", "message": "Invalid Safe address"})
		return
	}

	limit := DefaultLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = ClampLimit(parsed)
		}
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor", "message": "Invalid pagination cursor"})
		return
	}

	// Fetch one extra row to learn whether another page exists
	verdicts, err := h.store.ListBySafe(c.Request.Context(), c.Param("chainId"), safe, limit+1, cursor)
	if err != nil {
		logging.L(c.Request.Context()).Error("list verdicts failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to load history"})
		return
	}
	verdicts, next, hasMore := pagination.ComputePage(verdicts, limit, Key)

	c.JSON(http.StatusOK, gin.H{
		"safe":       analysis.Checksum(safe),
		"verdicts":   verdicts,
		"count":      len(verdicts),
		"nextCursor": next,
		"hasMore":    hasMore,
	})
}
