package middleware

import (
	"net/http"

	"streampay-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last error a handler attached with c.Error. BaseError maps
// to its CoreStatus HTTP code; anything else is an opaque 500.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil {
			return
		}

		if v, ok := err.Err.(errutil.BaseError); ok {
			c.JSON(v.Code.HTTPStatus(), v.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": "internal error",
			},
		})
	}
}
