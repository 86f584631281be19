package ledger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type balanceResponse struct {
	AccountID     string          `json:"account_id"`
	WalletAddress string          `json:"wallet_address"`
	Balance       decimal.Decimal `json:"balance"`
	Frozen        bool            `json:"frozen"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type entryResponse struct {
	ID            string          `json:"id"`
	Kind          EntryKind       `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	VideoID       string          `json:"video_id,omitempty"`
	SessionID     string          `json:"session_id,omitempty"`
	ExternalRef   *string         `json:"external_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func RegisterRoutes(engine *gin.Engine, svc *Service) {
	v1 := engine.Group("/v1")
	v1.GET("/accounts/:wallet/balance", getBalance(svc))
	v1.GET("/accounts/:wallet/entries", listEntries(svc))
}

func getBalance(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := svc.GetAccountByWallet(c.Request.Context(), c.Param("wallet"))
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, balanceResponse{
			AccountID:     account.ID,
			WalletAddress: account.WalletAddress,
			Balance:       account.Balance,
			Frozen:        account.Frozen,
			UpdatedAt:     account.UpdatedAt,
		})
	}
}

func listEntries(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		account, err := svc.GetAccountByWallet(ctx, c.Param("wallet"))
		if err != nil {
			c.Error(err)
			return
		}

		entries, err := svc.ListEntries(ctx, account.ID)
		if err != nil {
			c.Error(err)
			return
		}

		out := make([]entryResponse, 0, len(entries))
		for _, e := range entries {
			out = append(out, entryResponse{
				ID:            e.ID,
				Kind:          e.Kind,
				Amount:        e.Amount,
				BalanceBefore: e.BalanceBefore,
				BalanceAfter:  e.BalanceAfter,
				VideoID:       e.VideoID,
				SessionID:     e.SessionID,
				ExternalRef:   e.ExternalRef,
				CreatedAt:     e.CreatedAt,
			})
		}

		c.JSON(http.StatusOK, gin.H{"data": out})
	}
}
