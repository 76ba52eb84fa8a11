package httpapi

import (
	"errors"
	"net/http"

	"webhook-recorder/internal/store"

	"github.com/gin-gonic/gin"
)

const (
	MsgStoreUnavailable = "Could not connect to database!"
	MsgStoreRead        = "Could not read from database!"
)

// AbortStoreError maps a store failure to its HTTP response:
// 422 when no session could be opened, 500 for anything after that.
func AbortStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrConnectionFailed) {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"message": MsgStoreUnavailable})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": MsgStoreRead})
}
