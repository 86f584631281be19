package funding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"streampay-controlplane/pkg/config"

	"github.com/shopspring/decimal"
)

// PaymentVerification is the oracle's view of one external payment.
type PaymentVerification struct {
	PaymentRef string          `json:"payment_ref"`
	Verified   bool            `json:"verified"`
	Settled    bool            `json:"settled"`
	Amount     decimal.Decimal `json:"amount"`
}

// PaymentOracle confirms that an external payment actually happened and
// settled before any ledger balance is created from it.
type PaymentOracle interface {
	VerifyPayment(ctx context.Context, paymentRef string) (*PaymentVerification, error)
}

type httpOracle struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPOracle(cfg *config.Config) PaymentOracle {
	return &httpOracle{
		baseURL: cfg.PaymentOracle.BaseURL,
		apiKey:  cfg.PaymentOracle.APIKey,
		client:  &http.Client{Timeout: cfg.PaymentOracle.Timeout},
	}
}

func (o *httpOracle) VerifyPayment(ctx context.Context, paymentRef string) (*PaymentVerification, error) {
	body, err := json.Marshal(map[string]string{"payment_ref": paymentRef})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/payments/verify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payment oracle returned status %d", resp.StatusCode)
	}

	var verification PaymentVerification
	if err := json.NewDecoder(resp.Body).Decode(&verification); err != nil {
		return nil, err
	}
	return &verification, nil
}
