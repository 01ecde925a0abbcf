package callback

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/punchamoorthee/callbackops/internal/domain"
	"github.com/punchamoorthee/callbackops/internal/models"
)

// Parse resolves a raw callback body into a CallbackEvent. The identifier
// field that was present decides the event kind; nothing downstream looks
// at field presence again.
func Parse(body []byte, receivedAt time.Time) (*domain.CallbackEvent, error) {
	var p models.CallbackPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON body", domain.ErrValidation)
	}

	ev := &domain.CallbackEvent{
		Currency:          strings.TrimSpace(p.Currency),
		Correspondent:     strings.TrimSpace(p.Correspondent),
		Amount:            p.Amount,
		FailureReason:     failureReason(p),
		CustomerTimestamp: p.CustomerTimestamp,
		Created:           p.Created,
		ReceivedAt:        receivedAt,
		Raw:               json.RawMessage(append([]byte(nil), body...)),
	}

	switch {
	case strings.TrimSpace(p.RefundID) != "":
		ev.Kind = domain.KindRefund
		ev.ExternalID = strings.TrimSpace(p.RefundID)
		ev.DepositID = strings.TrimSpace(p.DepositID)
	case strings.TrimSpace(p.PayoutID) != "":
		ev.Kind = domain.KindPayout
		ev.ExternalID = strings.TrimSpace(p.PayoutID)
	case strings.TrimSpace(p.DepositID) != "":
		ev.Kind = domain.KindDeposit
		ev.ExternalID = strings.TrimSpace(p.DepositID)
	case strings.TrimSpace(p.ID) != "":
		ev.Kind = domain.KindGeneric
		ev.ExternalID = strings.TrimSpace(p.ID)
	default:
		return nil, fmt.Errorf("%w: missing id/depositId/payoutId/refundId", domain.ErrValidation)
	}

	if strings.TrimSpace(p.Status) == "" {
		return ev, fmt.Errorf("%w: missing status", domain.ErrValidation)
	}
	status, err := domain.ParseCallbackStatus(p.Status)
	if err != nil {
		return ev, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	ev.Status = status

	if ev.Amount.IsNegative() {
		return ev, fmt.Errorf("%w: negative amount", domain.ErrValidation)
	}
	return ev, nil
}

// failureReason accepts both a plain string and the gateway's
// {failureCode, failureMessage} object.
func failureReason(p models.CallbackPayload) string {
	if len(p.FailureReason) > 0 && string(p.FailureReason) != "null" {
		var s string
		if err := json.Unmarshal(p.FailureReason, &s); err == nil {
			return strings.TrimSpace(s)
		}
		var obj struct {
			FailureCode    string `json:"failureCode"`
			FailureMessage string `json:"failureMessage"`
		}
		if err := json.Unmarshal(p.FailureReason, &obj); err == nil {
			if obj.FailureMessage != "" {
				return obj.FailureMessage
			}
			return obj.FailureCode
		}
	}
	return strings.TrimSpace(p.Reason)
}
