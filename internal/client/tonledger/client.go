package tonledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"wagercourt/internal/escrow"
)

// Client implements escrow.Ledger against the external settlement gateway.
// The gateway serializes per dispute id and keys every mutation by
// transaction id, so retries are safe end to end.
type Client struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Code   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger gateway error (%d/%s): %s", e.Status, e.Code, e.Body)
}

func NewClient(httpClient *http.Client, host string) *Client {
	host = strings.TrimRight(host, "/")
	return &Client{
		host:       host,
		httpClient: httpClient,
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type balanceBody struct {
	Balance string `json:"balance"`
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		return body, nil
	}
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	if mapped := mapCode(eb.Code); mapped != nil {
		return nil, mapped
	}
	return nil, &APIError{Status: resp.StatusCode, Code: eb.Code, Body: string(body)}
}

func mapCode(code string) error {
	switch code {
	case "exists":
		return escrow.ErrExists
	case "not_found":
		return escrow.ErrNotFound
	case "amount_mismatch":
		return escrow.ErrAmountMismatch
	case "already_matched":
		return escrow.ErrAlreadyMatched
	case "not_matched":
		return escrow.ErrNotMatched
	case "already_refunded":
		return escrow.ErrAlreadyRefunded
	case "already_settled":
		return escrow.ErrAlreadySettled
	case "outcome_conflict":
		return escrow.ErrOutcomeConflict
	case "unknown_party":
		return escrow.ErrUnknownParty
	}
	return nil
}

type custodyRequest struct {
	Party  string `json:"party"`
	Amount string `json:"amount"`
}

type settleRequest struct {
	Draw   bool   `json:"draw"`
	Winner string `json:"winner,omitempty"`
}

func (c *Client) Deposit(ctx context.Context, disputeID, party string, amount decimal.Decimal) error {
	_, err := c.do(ctx, http.MethodPost, "/v1/escrows/"+disputeID+"/deposit",
		custodyRequest{Party: party, Amount: amount.String()})
	return err
}

func (c *Client) MatchDeposit(ctx context.Context, disputeID, party string, amount decimal.Decimal) error {
	_, err := c.do(ctx, http.MethodPost, "/v1/escrows/"+disputeID+"/match",
		custodyRequest{Party: party, Amount: amount.String()})
	return err
}

func (c *Client) Refund(ctx context.Context, disputeID, party string) error {
	_, err := c.do(ctx, http.MethodPost, "/v1/escrows/"+disputeID+"/refund",
		custodyRequest{Party: party})
	return err
}

func (c *Client) Settle(ctx context.Context, disputeID string, outcome escrow.Outcome) error {
	_, err := c.do(ctx, http.MethodPost, "/v1/escrows/"+disputeID+"/settle",
		settleRequest{Draw: outcome.Draw, Winner: outcome.Winner})
	return err
}

func (c *Client) Balance(ctx context.Context, disputeID string) (decimal.Decimal, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/escrows/"+disputeID+"/balance", nil)
	if err != nil {
		return decimal.Zero, err
	}
	var bb balanceBody
	if err := json.Unmarshal(body, &bb); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode balance: %w", err)
	}
	if bb.Balance == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(bb.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid balance %q: %w", bb.Balance, err)
	}
	return value, nil
}
