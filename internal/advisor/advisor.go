// Package advisor integrates an optional external advisory service that can
// enrich classification decisions with better wording. It is never on the
// mandatory path: failures are logged and swallowed by callers.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/amplafin/contaflow/internal/common"
	"github.com/amplafin/contaflow/internal/model"
)

// Advisor enriches a decision's explanatory text. Implementations must not
// change accounts, confidence or escalation flags.
type Advisor interface {
	Enrich(ctx context.Context, txn model.BankTransaction, decision model.Decision) (model.Decision, error)
}

// Disabled is the default advisor; it returns the decision untouched.
type Disabled struct{}

// Enrich implements Advisor.
func (Disabled) Enrich(_ context.Context, _ model.BankTransaction, decision model.Decision) (model.Decision, error) {
	return decision, nil
}

// HTTPAdvisor posts the decision context to a configured endpoint.
type HTTPAdvisor struct {
	client   *http.Client
	endpoint string
}

// NewHTTPAdvisor creates an advisor for the given endpoint.
func NewHTTPAdvisor(endpoint string, timeout time.Duration) *HTTPAdvisor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAdvisor{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type enrichRequest struct {
	Description string   `json:"description"`
	Direction   string   `json:"direction"`
	EntryType   string   `json:"entry_type"`
	Reasoning   string   `json:"reasoning"`
	Question    string   `json:"question,omitempty"`
	Options     []string `json:"options,omitempty"`
	Amount      float64  `json:"amount"`
	Confidence  float64  `json:"confidence"`
}

type enrichResponse struct {
	Reasoning string `json:"reasoning"`
	Question  string `json:"question"`
}

// Enrich implements Advisor. Only reasoning and question text from the
// response are merged back; everything else in the decision is preserved.
func (a *HTTPAdvisor) Enrich(ctx context.Context, txn model.BankTransaction, decision model.Decision) (model.Decision, error) {
	payload, err := json.Marshal(enrichRequest{
		Description: txn.Description,
		Direction:   string(txn.Direction),
		EntryType:   decision.EntryType,
		Reasoning:   decision.Reasoning,
		Question:    decision.Question,
		Options:     decision.Options,
		Amount:      txn.Amount,
		Confidence:  decision.Confidence,
	})
	if err != nil {
		return decision, fmt.Errorf("%w: encoding request: %v", common.ErrExternalService, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return decision, fmt.Errorf("%w: building request: %v", common.ErrExternalService, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return decision, fmt.Errorf("%w: %v", common.ErrExternalService, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decision, fmt.Errorf("%w: unexpected status %d", common.ErrExternalService, resp.StatusCode)
	}

	var enriched enrichResponse
	if err := json.NewDecoder(resp.Body).Decode(&enriched); err != nil {
		return decision, fmt.Errorf("%w: decoding response: %v", common.ErrExternalService, err)
	}

	if enriched.Reasoning != "" {
		decision.Reasoning = enriched.Reasoning
	}
	if enriched.Question != "" && decision.NeedsConfirmation {
		decision.Question = enriched.Question
	}
	return decision, nil
}
