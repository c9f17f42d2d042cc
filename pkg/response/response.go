package response

import (
	"log"
	"net/http"

	"anoa.com/threadline/pkg/apperror"
	"github.com/gin-gonic/gin"
)

// ContextUserID is the gin context key the auth middleware stores the user id under.
const ContextUserID = "user_id"

// GetUserID retrieves the authenticated user ID from the context
func GetUserID(c *gin.Context) (uint, error) {
	raw, exists := c.Get(ContextUserID)
	if !exists {
		return 0, apperror.ErrUnauthorized
	}

	userID, ok := raw.(uint)
	if !ok || userID == 0 {
		return 0, apperror.ErrUnauthorized
	}

	return userID, nil
}

// OptionalUserID returns the viewer id when the request carried a valid token.
func OptionalUserID(c *gin.Context) *uint {
	userID, err := GetUserID(c)
	if err != nil {
		return nil
	}
	return &userID
}

// ResponseError standardized error response
func ResponseError(c *gin.Context, err error) {
	code := apperror.MapErrorToStatus(err)

	// Log internal errors
	if code == http.StatusInternalServerError {
		log.Printf("[Internal Error]: %v", err)
		c.JSON(code, gin.H{"error": apperror.ErrInternal.Error()})
		return
	}

	c.JSON(code, gin.H{"error": err.Error()})
}
