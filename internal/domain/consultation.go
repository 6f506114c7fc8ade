/**
 * @description
 * Consultation records as served by the external record store, and the release
 * state derived from their timestamps.
 */
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ConsultationState is the escrow lifecycle position of a consultation.
type ConsultationState string

const (
	StatePendingDelivery           ConsultationState = "pending_delivery"
	StateDeliveredAwaitingHoldback ConsultationState = "delivered_awaiting_holdback"
	StateReadyForRelease           ConsultationState = "ready_for_release"
	StateReleased                  ConsultationState = "released"
	StateReleaseFailed             ConsultationState = "release_failed"
)

// Consultation is the subset of a consultation record the release job needs.
type Consultation struct {
	ID                  string     `json:"id"`
	AmountRaw           string     `json:"amountRaw"`
	SpecialistAccount   string     `json:"specialistAccount"`
	SpecialistAmountRaw *string    `json:"specialistAmountRaw,omitempty"`
	PlatformAmountRaw   *string    `json:"platformAmountRaw,omitempty"`
	DeliveredAt         *time.Time `json:"deliveredAt,omitempty"`
	ReleaseAfterAt      *time.Time `json:"releaseAfterAt,omitempty"`
	ReleasedAt          *time.Time `json:"releasedAt,omitempty"`
}

// State derives the lifecycle state at now. release_failed is never derived from
// the record alone; it is observed through the payout journal.
func (c Consultation) State(now time.Time) ConsultationState {
	switch {
	case c.ReleasedAt != nil:
		return StateReleased
	case c.DeliveredAt == nil:
		return StatePendingDelivery
	case c.ReleaseAfterAt != nil && c.ReleaseAfterAt.After(now):
		return StateDeliveredAwaitingHoldback
	default:
		return StateReadyForRelease
	}
}

// UnmarshalJSON accepts camelCase and snake_case keys, "_id" for the identifier and
// amounts encoded as either strings or integers.
func (c *Consultation) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		fields[strings.ToLower(strings.ReplaceAll(k, "_", ""))] = v
	}
	pick := func(keys ...string) json.RawMessage {
		for _, k := range keys {
			if v, ok := fields[k]; ok && string(v) != "null" {
				return v
			}
		}
		return nil
	}

	var out Consultation
	var err error
	if out.ID, err = jsonText(pick("id", "consultationid")); err != nil {
		return fmt.Errorf("consultation id: %w", err)
	}
	if out.AmountRaw, err = jsonText(pick("amountraw", "amount", "grossamountraw")); err != nil {
		return fmt.Errorf("consultation %s amount: %w", out.ID, err)
	}
	if out.SpecialistAccount, err = jsonText(pick("specialistaccount", "specialistaccountid", "specialistnearaccount")); err != nil {
		return fmt.Errorf("consultation %s specialist account: %w", out.ID, err)
	}
	if out.SpecialistAmountRaw, err = optionalText(pick("specialistamountraw")); err != nil {
		return fmt.Errorf("consultation %s specialist amount: %w", out.ID, err)
	}
	if out.PlatformAmountRaw, err = optionalText(pick("platformamountraw")); err != nil {
		return fmt.Errorf("consultation %s platform amount: %w", out.ID, err)
	}
	for _, tf := range []struct {
		dst  **time.Time
		keys []string
	}{
		{&out.DeliveredAt, []string{"deliveredat"}},
		{&out.ReleaseAfterAt, []string{"releaseafterat"}},
		{&out.ReleasedAt, []string{"releasedat"}},
	} {
		v := pick(tf.keys...)
		if v == nil {
			continue
		}
		var ts time.Time
		if err := json.Unmarshal(v, &ts); err != nil {
			return fmt.Errorf("consultation %s %s: %w", out.ID, tf.keys[0], err)
		}
		*tf.dst = &ts
	}

	*c = out
	return nil
}

// jsonText reads a JSON string or number as text. Numbers keep their literal form
// so large integer amounts are never routed through float64.
func jsonText(v json.RawMessage) (string, error) {
	if v == nil {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("expected string or number, got %s", string(v))
}

func optionalText(v json.RawMessage) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s, err := jsonText(v)
	if err != nil || s == "" {
		return nil, err
	}
	return &s, nil
}
