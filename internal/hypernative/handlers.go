package hypernative

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/safeshield/internal/idgen"
	"github.com/mbd888/safeshield/internal/logging"
)

// Session identification. Browsers use the cookie, API clients the header.
const (
	SessionCookie = "shield_session"
	SessionHeader = "X-Shield-Session"
)

const sessionMaxAge = 30 * 24 * 60 * 60

// SessionID returns the caller's session id, or "" if none was sent.
func SessionID(c *gin.Context) string {
	if id := c.GetHeader(SessionHeader); id != "" {
		return id
	}
	if id, err := c.Cookie(SessionCookie); err == nil {
		return id
	}
	return ""
}

// Handler provides the Hypernative login endpoints
type Handler struct {
	auth         *Authenticator
	secureCookie bool
}

// NewHandler creates a new login handler
func NewHandler(auth *Authenticator, secureCookie bool) *Handler {
	return &Handler{auth: auth, secureCookie: secureCookie}
}

// RegisterRoutes sets up login routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/hypernative/login", h.Login)
	r.GET("/hypernative/callback", h.Callback)
	r.GET("/hypernative/session", h.Session)
	r.DELETE("/hypernative/session", h.Logout)
}

// Login handles GET /hypernative/login. It returns the authorization URL, or
// redirects to it when called with ?redirect=true.
func (h *Handler) Login(c *gin.Context) {
	sessionID := SessionID(c)
	if sessionID == "" {
		sessionID = idgen.New()
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, sessionID, sessionMaxAge, "/", "", h.secureCookie, true)

	authURL, state := h.auth.Begin(sessionID)
	if c.Query("redirect") == "true" {
		c.Redirect(http.StatusFound, authURL)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authUrl":   authURL,
		"state":     state,
		"sessionId": sessionID,
	})
}

// Callback handles GET /hypernative/callback. It must arrive from the session
// that started the login.
func (h *Handler) Callback(c *gin.Context) {
	if e := c.Query("error"); e != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization_denied", "message": e})
		return
	}
	state, code := c.Query("state"), c.Query("code")
	if state == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "state and code are required"})
		return
	}

	sessionID, tok, err := h.auth.Complete(c.Request.Context(), SessionID(c), state, code)
	if errors.Is(err, ErrInvalidState) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_state", "message": "Login expired or already completed"})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Warn("hypernative login failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "token_exchange_failed", "message": "Could not complete Hypernative login"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"sessionId":     sessionID,
		"expiresAt":     tok.Expiry,
	})
}

// Session handles GET /hypernative/session
func (h *Handler) Session(c *gin.Context) {
	tok, err := ValidToken(c.Request.Context(), h.auth.Tokens(), SessionID(c))
	if errors.Is(err, ErrNotAuthenticated) {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("token lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to read session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "expiresAt": tok.Expiry})
}

// Logout handles DELETE /hypernative/session
func (h *Handler) Logout(c *gin.Context) {
	if sessionID := SessionID(c); sessionID != "" {
		if err := h.auth.Logout(c.Request.Context(), sessionID); err != nil {
			logging.L(c.Request.Context()).Error("logout failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to log out"})
			return
		}
	}
	c.SetCookie(SessionCookie, "", -1, "/", "", h.secureCookie, true)
	c.Status(http.StatusNoContent)
}
