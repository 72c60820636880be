package shield

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/hypernative"
	"github.com/mbd888/safeshield/internal/logging"
)

// Handler provides the analysis endpoints
type Handler struct {
	service *Service
}

// NewHandler creates a new analysis handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up analysis routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	safes := r.Group("/chains/:chainId/safes/:safe/shield")
	safes.POST("/recipients", h.AnalyzeRecipients)
	safes.POST("/contract", h.AnalyzeContract)
	safes.POST("/threat", h.AnalyzeThreat)
	safes.POST("/analyze", h.Analyze)

	r.GET("/shield/descriptions", h.ListDescriptions)
}

type recipientsBody struct {
	Recipients []string `json:"recipients" binding:"required"`
	OwnedSafes []string `json:"ownedSafes"`
}

// AnalyzeRecipients handles POST /chains/:chainId/safes/:safe/shield/recipients
func (h *Handler) AnalyzeRecipients(c *gin.Context) {
	var body recipientsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "recipients is required"})
		return
	}

	res, err := h.service.AnalyzeRecipients(c.Request.Context(), RecipientRequest{
		ChainID:    c.Param("chainId"),
		Safe:       c.Param("safe"),
		Recipients: body.Recipients,
		OwnedSafes: body.OwnedSafes,
	}, nil)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"safe":    analysis.Checksum(c.Param("safe")),
		"results": res.Data,
		"visible": VisibleResults(res.Data, h.service.Descriptions()),
		"error":   res.ErrorString(),
		"loading": res.Loading,
	})
}

// AnalyzeContract handles POST /chains/:chainId/safes/:safe/shield/contract
func (h *Handler) AnalyzeContract(c *gin.Context) {
	var tx analysis.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid transaction body"})
		return
	}

	res, err := h.service.AnalyzeContract(c.Request.Context(), ContractRequest{
		ChainID:     c.Param("chainId"),
		Safe:        c.Param("safe"),
		Transaction: tx,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"safe":    analysis.Checksum(c.Param("safe")),
		"results": res.Data,
		"visible": VisibleResults(res.Data, h.service.Descriptions()),
		"error":   res.ErrorString(),
		"loading": res.Loading,
	})
}

// AnalyzeThreat handles POST /chains/:chainId/safes/:safe/shield/threat
func (h *Handler) AnalyzeThreat(c *gin.Context) {
	var tx analysis.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid transaction body"})
		return
	}

	res, err := h.service.AnalyzeThreat(c.Request.Context(), hypernative.SessionID(c), ThreatRequest{
		ChainID:     c.Param("chainId"),
		Safe:        c.Param("safe"),
		Transaction: tx,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"safe":    analysis.Checksum(c.Param("safe")),
		"results": res.Data,
		"visible": VisibleThreatResults(res.Data),
		"error":   res.ErrorString(),
		"loading": res.Loading,
	})
}

type analyzeBody struct {
	Recipients       []string              `json:"recipients"`
	OwnedSafes       []string              `json:"ownedSafes"`
	Transaction      *analysis.Transaction `json:"transaction"`
	SimulationFailed bool                  `json:"simulationFailed"`
}

// Analyze handles POST /chains/:chainId/safes/:safe/shield/analyze
func (h *Handler) Analyze(c *gin.Context) {
	var body analyzeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	report, err := h.service.Analyze(c.Request.Context(), hypernative.SessionID(c), FullRequest{
		ChainID:          c.Param("chainId"),
		Safe:             c.Param("safe"),
		Recipients:       body.Recipients,
		OwnedSafes:       body.OwnedSafes,
		Transaction:      body.Transaction,
		SimulationFailed: body.SimulationFailed,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListDescriptions handles GET /shield/descriptions
func (h *Handler) ListDescriptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"descriptions": h.service.Descriptions().Phrases()})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	case errors.Is(err, hypernative.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "hypernative_login_required", "message": "Log in to Hypernative to run threat analysis"})
	case errors.Is(err, ErrThreatDisabled), errors.Is(err, ErrContractDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not_configured", "message": err.Error()})
	default:
		logging.L(c.Request.Context()).Error("analysis failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Analysis failed"})
	}
}
