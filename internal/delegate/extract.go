package delegate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/near"
)

// TransferMethod is the token method whose arguments carry the money movement.
const TransferMethod = "ft_transfer"

var (
	ErrNoTransfer          = errors.New("no ft_transfer action in delegate")
	ErrInvalidTransferArgs = errors.New("ft_transfer arguments are not readable")
)

// Transfer is the parsed argument set of an ft_transfer call.
type Transfer struct {
	ReceiverID string
	Amount     string
	Memo       *string
}

// The token contract matches these names exactly and ignores anything else.
var transferArgNames = []string{"receiver_id", "amount", "memo"}

// FindTransfer returns the first ft_transfer in the delegate. Arguments are read by
// exact key; a repeated key, or any other key that differs from a known one only by
// case, is refused so the checked destination is the one the contract will pay.
func FindTransfer(signed *near.SignedDelegateAction) (*Transfer, error) {
	if signed == nil {
		return nil, ErrNoTransfer
	}
	for _, action := range signed.DelegateAction.Actions {
		fc := action.FunctionCall
		if action.Kind != near.ActionFunctionCall || fc == nil || fc.MethodName != TransferMethod {
			continue
		}
		return parseTransferArgs(fc.Args)
	}
	return nil, ErrNoTransfer
}

func parseTransferArgs(raw []byte) (*Transfer, error) {
	args, err := decodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransferArgs, err)
	}
	for key := range args {
		for _, name := range transferArgNames {
			if key != name && strings.EqualFold(key, name) {
				return nil, fmt.Errorf("%w: key %q shadows %q", ErrInvalidTransferArgs, key, name)
			}
		}
	}

	var t Transfer
	if v, ok := args["receiver_id"]; ok {
		if err := json.Unmarshal(v, &t.ReceiverID); err != nil {
			return nil, fmt.Errorf("%w: receiver_id: %v", ErrInvalidTransferArgs, err)
		}
	}
	if v, ok := args["amount"]; ok {
		t.Amount = amountText(v)
	}
	if v, ok := args["memo"]; ok {
		if err := json.Unmarshal(v, &t.Memo); err != nil {
			return nil, fmt.Errorf("%w: memo: %v", ErrInvalidTransferArgs, err)
		}
	}
	return &t, nil
}

// ExtractTransfer is FindTransfer for callers that only need presence: ok is false
// when there is no ft_transfer or its arguments are refused.
func ExtractTransfer(signed *near.SignedDelegateAction) (*Transfer, bool) {
	t, err := FindTransfer(signed)
	if err != nil {
		return nil, false
	}
	return t, true
}

// amountText accepts the standard string form and tolerates a bare JSON number;
// anything else yields text the amount parser will reject.
func amountText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// ExtractTransferDestination returns the ft_transfer receiver_id.
func ExtractTransferDestination(signed *near.SignedDelegateAction) (string, bool) {
	transfer, ok := ExtractTransfer(signed)
	if !ok || transfer.ReceiverID == "" {
		return "", false
	}
	return transfer.ReceiverID, true
}

// ExtractTransferMemo returns the ft_transfer memo, if one was supplied.
func ExtractTransferMemo(signed *near.SignedDelegateAction) (string, bool) {
	transfer, ok := ExtractTransfer(signed)
	if !ok || transfer.Memo == nil {
		return "", false
	}
	return *transfer.Memo, true
}
