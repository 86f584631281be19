package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"streampay-controlplane/pkg/config"
	"streampay-controlplane/pkg/db/option"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PayoutRequest is what the external payout agent needs to move real money.
// The destination is the creator's wallet address; internal account IDs mean
// nothing outside this service.
type PayoutRequest struct {
	SettlementID      string          `json:"settlement_id"`
	Code              string          `json:"code"`
	DestinationWallet string          `json:"destination_wallet"`
	Amount            decimal.Decimal `json:"amount"`
}

type PayoutReceipt struct {
	TxReference string `json:"tx_reference"`
}

type PayoutAgent interface {
	RequestPayout(ctx context.Context, req PayoutRequest) (*PayoutReceipt, error)
}

type httpPayoutAgent struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPPayoutAgent(cfg *config.Config) PayoutAgent {
	return &httpPayoutAgent{
		baseURL: cfg.PayoutAgent.BaseURL,
		apiKey:  cfg.PayoutAgent.APIKey,
		client:  &http.Client{Timeout: cfg.PayoutAgent.Timeout},
	}
}

func (a *httpPayoutAgent) RequestPayout(ctx context.Context, payout PayoutRequest) (*PayoutReceipt, error) {
	body, err := json.Marshal(payout)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/payouts", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	// Idempotency key lets the agent dedupe a retried dispatch of the same
	// settlement.
	req.Header.Set("Idempotency-Key", payout.SettlementID)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("payout agent returned status %d", resp.StatusCode)
	}

	var receipt PayoutReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Processor drives reserved settlements through the external payout agent.
type Processor struct {
	service *Service
	agent   PayoutAgent
	timeout time.Duration
}

type ProcessorParams struct {
	fx.In
	Service *Service
	Agent   PayoutAgent
	Config  *config.Config
}

func NewProcessor(p ProcessorParams) *Processor {
	return &Processor{
		service: p.Service,
		agent:   p.Agent,
		timeout: p.Config.PayoutAgent.Timeout,
	}
}

// ProcessPending claims up to batchSize PENDING settlements and dispatches
// each to the payout agent. The PROCESSING flip commits before the external
// call, so a crash mid-dispatch leaves an auditable in-flight row rather than
// a silently re-claimable one. One failing settlement never stops the batch.
func (p *Processor) ProcessPending(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 50
	}

	candidates, err := p.service.settlements.Find(ctx, &Settlement{Status: StatusPending},
		option.WithSortBy(option.QuerySortBy{SortBy: "requested_at", OrderBy: "asc", Allow: map[string]bool{"requested_at": true}}),
		option.WithLimit(batchSize),
	)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, candidate := range candidates {
		settlement, err := p.claim(ctx, candidate.ID)
		if err != nil {
			zap.L().Error("failed to claim settlement", zap.String("settlement_id", candidate.ID), zap.Error(err))
			continue
		}
		if settlement == nil {
			// Another worker claimed it between the scan and the lock.
			continue
		}

		if err := p.dispatch(ctx, settlement); err != nil {
			zap.L().Error("settlement dispatch failed",
				zap.String("settlement_id", settlement.ID),
				zap.String("code", settlement.Code),
				zap.Error(err),
			)
			continue
		}
		completed++
	}

	return completed, nil
}

// claim flips one PENDING settlement to PROCESSING in its own transaction.
// Returns (nil, nil) when the row is no longer PENDING.
func (p *Processor) claim(ctx context.Context, settlementID string) (*Settlement, error) {
	var claimed *Settlement
	err := p.service.db.Transaction(func(tx *gorm.DB) error {
		settlement, err := p.service.settlements.WithTrx(tx).FindOne(ctx, &Settlement{ID: settlementID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if settlement == nil || settlement.Status != StatusPending {
			return nil
		}

		now := time.Now().UTC()
		if err := p.service.settlements.WithTrx(tx).Update(ctx, settlement.ID, map[string]any{
			"status":       StatusProcessing,
			"processed_at": now,
			"updated_at":   now,
		}); err != nil {
			return err
		}

		settlement.Status = StatusProcessing
		settlement.ProcessedAt = &now
		claimed = settlement
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (p *Processor) dispatch(ctx context.Context, settlement *Settlement) error {
	creator, err := p.service.ledger.GetAccount(ctx, settlement.CreatorAccountID)
	if err != nil {
		if ferr := p.finish(ctx, settlement.ID, StatusFailed, "", err.Error()); ferr != nil {
			return ferr
		}
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	receipt, err := p.agent.RequestPayout(callCtx, PayoutRequest{
		SettlementID:      settlement.ID,
		Code:              settlement.Code,
		DestinationWallet: creator.WalletAddress,
		Amount:            settlement.Amount,
	})
	if err != nil {
		if ferr := p.finish(ctx, settlement.ID, StatusFailed, "", err.Error()); ferr != nil {
			return ferr
		}
		return err
	}

	if err := p.finish(ctx, settlement.ID, StatusCompleted, receipt.TxReference, ""); err != nil {
		return err
	}

	zap.L().Info("settlement completed",
		zap.String("settlement_id", settlement.ID),
		zap.String("code", settlement.Code),
		zap.String("tx_reference", receipt.TxReference),
	)
	return nil
}

// finish records the terminal status, guarded on the row still being
// PROCESSING so a duplicate dispatch cannot rewrite a settled outcome.
func (p *Processor) finish(ctx context.Context, settlementID string, status SettlementStatus, txReference, errorMessage string) error {
	return p.service.db.Transaction(func(tx *gorm.DB) error {
		settlement, err := p.service.settlements.WithTrx(tx).FindOne(ctx, &Settlement{ID: settlementID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if settlement == nil || settlement.Status != StatusProcessing {
			return nil
		}

		now := time.Now().UTC()
		updates := map[string]any{
			"status":     status,
			"updated_at": now,
		}
		if status == StatusCompleted {
			updates["tx_reference"] = txReference
			updates["completed_at"] = now
		}
		if status == StatusFailed {
			updates["error_message"] = errorMessage
		}
		return p.service.settlements.WithTrx(tx).Update(ctx, settlementID, updates)
	})
}
