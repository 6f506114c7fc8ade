package nearclient

import (
	"encoding/json"
	"fmt"
)

// FinalExecutionOutcome is the subset of broadcast_tx_commit output the services inspect.
type FinalExecutionOutcome struct {
	Status             json.RawMessage          `json:"status"`
	TransactionOutcome ExecutionOutcomeWithID   `json:"transaction_outcome"`
	ReceiptsOutcome    []ExecutionOutcomeWithID `json:"receipts_outcome"`
}

type ExecutionOutcomeWithID struct {
	ID      string           `json:"id"`
	Outcome ExecutionOutcome `json:"outcome"`
}

type ExecutionOutcome struct {
	Logs       []string        `json:"logs"`
	ReceiptIDs []string        `json:"receipt_ids"`
	GasBurnt   uint64          `json:"gas_burnt"`
	ExecutorID string          `json:"executor_id"`
	Status     json.RawMessage `json:"status"`
}

// failureOf returns the Failure payload of an execution status, if any.
// Statuses are either bare strings ("Unknown") or single-key objects.
func failureOf(status json.RawMessage) json.RawMessage {
	if len(status) == 0 || status[0] != '{' {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(status, &fields); err != nil {
		return nil
	}
	if f, ok := fields["Failure"]; ok {
		return f
	}
	return nil
}

// Failure returns the first failure in the final status or any receipt outcome.
func (o *FinalExecutionOutcome) Failure() json.RawMessage {
	if f := failureOf(o.Status); f != nil {
		return f
	}
	for _, r := range o.ReceiptsOutcome {
		if f := failureOf(r.Outcome.Status); f != nil {
			return f
		}
	}
	return nil
}

// TxFailure reports a transaction that was accepted but failed during execution.
type TxFailure struct {
	Hash    string
	Failure json.RawMessage
}

func (e *TxFailure) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.Hash, string(e.Failure))
}
