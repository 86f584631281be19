package viewing

import (
	"net/http"
	"time"

	"streampay-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type startSessionRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
	VideoID       string `json:"video_id" binding:"required"`
}

type checkpointRequest struct {
	WatchedSeconds *int64 `json:"watched_seconds" binding:"required"`
}

type closeRequest struct {
	WatchedSeconds *int64 `json:"watched_seconds" binding:"required"`
}

type sessionResponse struct {
	SessionToken   string          `json:"session_token"`
	VideoID        string          `json:"video_id"`
	Status         SessionStatus   `json:"status"`
	StakedAmount   decimal.Decimal `json:"staked_amount"`
	WatchedSeconds int64           `json:"watched_seconds"`
	AmountCharged  decimal.Decimal `json:"amount_charged"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        *time.Time      `json:"end_time,omitempty"`
}

type closeResponse struct {
	sessionResponse
	RefundAmount decimal.Decimal `json:"refund_amount"`
}

func RegisterRoutes(engine *gin.Engine, svc *Service) {
	v1 := engine.Group("/v1")
	v1.POST("/sessions", startSession(svc))
	v1.POST("/sessions/:token/checkpoint", checkpoint(svc))
	v1.POST("/sessions/:token/close", closeSession(svc))
	v1.GET("/sessions/:token", getSession(svc))
}

func toSessionResponse(s *ViewSession) sessionResponse {
	return sessionResponse{
		SessionToken:   s.SessionToken,
		VideoID:        s.VideoID,
		Status:         s.Status,
		StakedAmount:   s.StakedAmount,
		WatchedSeconds: s.WatchedSeconds,
		AmountCharged:  s.AmountCharged,
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
	}
}

func startSession(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(errutil.ValidationFailed("invalid request body", err))
			return
		}

		result, err := svc.Stake(c.Request.Context(), req.WalletAddress, req.VideoID)
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusCreated, toSessionResponse(result.Session))
	}
}

func checkpoint(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req checkpointRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(errutil.ValidationFailed("invalid request body", err))
			return
		}

		session, err := svc.Checkpoint(c.Request.Context(), c.Param("token"), *req.WatchedSeconds)
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, toSessionResponse(session))
	}
}

func closeSession(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req closeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(errutil.ValidationFailed("invalid request body", err))
			return
		}

		result, err := svc.Close(c.Request.Context(), c.Param("token"), *req.WatchedSeconds)
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, closeResponse{
			sessionResponse: toSessionResponse(result.Session),
			RefundAmount:    result.RefundAmount,
		})
	}
}

func getSession(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := svc.GetByToken(c.Request.Context(), c.Param("token"))
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, toSessionResponse(session))
	}
}
