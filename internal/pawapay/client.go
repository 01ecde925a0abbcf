// Package pawapay polls the gateway for the status of a deposit whose
// callback never arrived.
package pawapay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/punchamoorthee/callbackops/internal/domain"
	"github.com/shopspring/decimal"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	now     func() time.Time
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

type depositStatus struct {
	DepositID       string          `json:"depositId"`
	Status          string          `json:"status"`
	RequestedAmount decimal.Decimal `json:"requestedAmount"`
	DepositedAmount decimal.Decimal `json:"depositedAmount"`
	Currency        string          `json:"currency"`
	Correspondent   string          `json:"correspondent"`
	Created         string          `json:"created"`
	FailureReason   *struct {
		FailureCode    string `json:"failureCode"`
		FailureMessage string `json:"failureMessage"`
	} `json:"failureReason"`
}

// Deposit fetches the gateway's view of a deposit as a callback event, so it
// can be reconciled exactly like a delivered callback.
func (c *Client) Deposit(ctx context.Context, depositID string) (*domain.CallbackEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/deposits/"+url.PathEscape(depositID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deposit status request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read deposit status: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("deposit %s: %w", depositID, domain.ErrTransactionNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deposit status for %s: unexpected status %d", depositID, resp.StatusCode)
	}

	// The gateway answers with a list holding zero or one deposit.
	var deposits []depositStatus
	if err := json.Unmarshal(body, &deposits); err != nil {
		return nil, fmt.Errorf("decode deposit status: %w", err)
	}
	if len(deposits) == 0 {
		return nil, fmt.Errorf("deposit %s: %w", depositID, domain.ErrTransactionNotFound)
	}
	d := deposits[0]

	status, err := domain.ParseCallbackStatus(d.Status)
	if err != nil {
		return nil, err
	}
	amount := d.DepositedAmount
	if amount.IsZero() {
		amount = d.RequestedAmount
	}
	ev := &domain.CallbackEvent{
		Kind:          domain.KindDeposit,
		ExternalID:    d.DepositID,
		Status:        status,
		Amount:        amount,
		Currency:      d.Currency,
		Correspondent: d.Correspondent,
		Created:       d.Created,
		ReceivedAt:    c.now().UTC(),
		Raw:           body,
	}
	if ev.ExternalID == "" {
		ev.ExternalID = depositID
	}
	if d.FailureReason != nil {
		ev.FailureReason = d.FailureReason.FailureMessage
		if ev.FailureReason == "" {
			ev.FailureReason = d.FailureReason.FailureCode
		}
	}
	return ev, nil
}
