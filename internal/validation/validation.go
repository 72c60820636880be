// Package validation provides input validation middleware for the Safe Shield API.
package validation

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20

// MaxChainIDLength bounds the decimal chain id path parameter.
const MaxChainIDLength = 20

var (
	// ethAddressRegex validates Ethereum addresses
	ethAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	chainIDRegex    = regexp.MustCompile(`^[0-9]+$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidEthAddress checks if a string is a 0x-prefixed Ethereum address
func IsValidEthAddress(addr string) bool {
	return ethAddressRegex.MatchString(addr)
}

// IsValidChainID checks if a string is a decimal chain id
func IsValidChainID(id string) bool {
	return len(id) <= MaxChainIDLength && chainIDRegex.MatchString(id)
}

// PathParamsMiddleware rejects malformed :chainId, :safe and :address path
// parameters before they reach a handler. Routes without them pass through.
func PathParamsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.Param("chainId"); id != "" && !IsValidChainID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_chain",
				"message": "chainId must be a decimal chain id",
			})
			return
		}
		for _, name := range []string{"safe", "address"} {
			if addr := c.Param(name); addr != "" && !IsValidEthAddress(addr) {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":   "invalid_address",
					"message": name + " must be a valid Ethereum address (0x + 40 hex chars)",
				})
				return
			}
		}
		c.Next()
	}
}
