package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"streampay-controlplane/pkg/errutil"
)

func newTestEngine(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(Error())
	engine.GET("/test", handler)
	return engine
}

func doRequest(t *testing.T, engine *gin.Engine) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	engine.ServeHTTP(rec, req)
	return rec
}

func TestErrorMapsDomainStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"insufficient funds", errutil.InsufficientFunds("balance cannot cover stake"), http.StatusUnprocessableEntity},
		{"invalid state", errutil.InvalidState("session already closed"), http.StatusConflict},
		{"no funds available", errutil.NoFundsAvailable("nothing to withdraw"), http.StatusUnprocessableEntity},
		{"verification failed", errutil.VerificationFailed("oracle rejected payment", nil), http.StatusBadGateway},
		{"consistency violation", errutil.ConsistencyViolation("balance chain broken"), http.StatusInternalServerError},
		{"not found", errutil.NotFound("video not found", nil), http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestEngine(func(c *gin.Context) {
				c.Error(tc.err)
			})
			rec := doRequest(t, engine)
			require.Equal(t, tc.want, rec.Code)
			require.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestErrorHidesUnknownErrors(t *testing.T) {
	engine := newTestEngine(func(c *gin.Context) {
		c.Error(errors.New("pq: connection reset"))
	})
	rec := doRequest(t, engine)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "connection reset")
}

func TestErrorPassThroughOnSuccess(t *testing.T) {
	engine := newTestEngine(func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	rec := doRequest(t, engine)
	require.Equal(t, http.StatusOK, rec.Code)
}
