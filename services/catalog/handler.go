package catalog

import (
	"net/http"

	"streampay-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type publishRequest struct {
	CreatorWallet   string          `json:"creator_wallet" binding:"required"`
	Title           string          `json:"title" binding:"required"`
	PricePerSecond  decimal.Decimal `json:"price_per_second"`
	DurationSeconds int64           `json:"duration_seconds"`
	SourcePath      string          `json:"source_path"`
}

func RegisterRoutes(engine *gin.Engine, svc *Service) {
	v1 := engine.Group("/v1")
	v1.POST("/videos", publishVideo(svc))
	v1.GET("/videos/:id", getVideo(svc))
}

func publishVideo(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req publishRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(errutil.BadRequest("invalid request body", err))
			return
		}

		video, err := svc.Publish(c.Request.Context(), PublishInput{
			CreatorWallet:   req.CreatorWallet,
			Title:           req.Title,
			PricePerSecond:  req.PricePerSecond,
			DurationSeconds: req.DurationSeconds,
			SourcePath:      req.SourcePath,
		})
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusCreated, video)
	}
}

func getVideo(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		video, err := svc.GetVideo(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, video)
	}
}
