package funding

import (
	"net/http"
	"time"

	"streampay-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type depositRequest struct {
	WalletAddress string          `json:"wallet_address" binding:"required"`
	PaymentRef    string          `json:"payment_ref" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
}

type depositResponse struct {
	EntryID      string          `json:"entry_id"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

func RegisterRoutes(engine *gin.Engine, svc *Service) {
	v1 := engine.Group("/v1")
	v1.POST("/deposits", createDeposit(svc))
}

func createDeposit(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req depositRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(errutil.ValidationFailed("invalid request body", err))
			return
		}

		entry, err := svc.Deposit(c.Request.Context(), req.WalletAddress, req.PaymentRef, req.Amount)
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusCreated, depositResponse{
			EntryID:      entry.ID,
			Amount:       entry.Amount,
			BalanceAfter: entry.BalanceAfter,
			CreatedAt:    entry.CreatedAt,
		})
	}
}
