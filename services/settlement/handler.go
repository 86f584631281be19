package settlement

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type earningsResponse struct {
	CreatorAccountID string          `json:"creator_account_id"`
	TotalEarnings    decimal.Decimal `json:"total_earnings"`
	Reserved         decimal.Decimal `json:"reserved"`
	Available        decimal.Decimal `json:"available"`
}

type settlementResponse struct {
	ID               string           `json:"id"`
	Code             string           `json:"code"`
	CreatorAccountID string           `json:"creator_account_id"`
	Amount           decimal.Decimal  `json:"amount"`
	Status           SettlementStatus `json:"status"`
	TxReference      string           `json:"tx_reference,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	RequestedAt      time.Time        `json:"requested_at"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}

func RegisterRoutes(engine *gin.Engine, svc *Service) {
	v1 := engine.Group("/v1")
	v1.GET("/creators/:id/earnings", getEarnings(svc))
	v1.GET("/creators/:id/settlements", listSettlements(svc))
	v1.POST("/creators/:id/settlements", requestSettlement(svc))
	v1.GET("/settlements/:id", getSettlement(svc))
}

func toSettlementResponse(s *Settlement) settlementResponse {
	return settlementResponse{
		ID:               s.ID,
		Code:             s.Code,
		CreatorAccountID: s.CreatorAccountID,
		Amount:           s.Amount,
		Status:           s.Status,
		TxReference:      s.TxReference,
		ErrorMessage:     s.ErrorMessage,
		RequestedAt:      s.RequestedAt,
		ProcessedAt:      s.ProcessedAt,
		CompletedAt:      s.CompletedAt,
	}
}

func getEarnings(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		earnings, err := svc.AvailableEarnings(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, earningsResponse{
			CreatorAccountID: earnings.CreatorAccountID,
			TotalEarnings:    earnings.TotalEarnings,
			Reserved:         earnings.Reserved,
			Available:        earnings.Available,
		})
	}
}

func listSettlements(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := svc.ListByCreator(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.Error(err)
			return
		}

		out := make([]settlementResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, toSettlementResponse(row))
		}
		c.JSON(http.StatusOK, gin.H{"data": out})
	}
}

// The settlement amount is computed server-side, so the request takes no body.
func requestSettlement(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		settlement, err := svc.RequestSettlement(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusCreated, toSettlementResponse(settlement))
	}
}

func getSettlement(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		settlement, err := svc.GetSettlement(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, toSettlementResponse(settlement))
	}
}
