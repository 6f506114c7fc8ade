/**
 * @description
 * Tagged action variants and their Borsh encoding.
 * Decoding is strict: unknown tags, oversized vectors and nested delegates are rejected.
 */
package near

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/borsh"
)

// ActionKind is the Borsh enum tag of an Action.
type ActionKind uint8

const (
	ActionCreateAccount ActionKind = iota
	ActionDeployContract
	ActionFunctionCall
	ActionTransfer
	ActionStake
	ActionAddKey
	ActionDeleteKey
	ActionDeleteAccount
	ActionDelegate
)

var (
	ErrUnknownAction  = errors.New("unknown action tag")
	ErrNestedDelegate = errors.New("delegate actions cannot be nested")
	ErrUnknownKey     = errors.New("unknown access key permission tag")
)

func (k ActionKind) String() string {
	switch k {
	case ActionCreateAccount:
		return "CreateAccount"
	case ActionDeployContract:
		return "DeployContract"
	case ActionFunctionCall:
		return "FunctionCall"
	case ActionTransfer:
		return "Transfer"
	case ActionStake:
		return "Stake"
	case ActionAddKey:
		return "AddKey"
	case ActionDeleteKey:
		return "DeleteKey"
	case ActionDeleteAccount:
		return "DeleteAccount"
	case ActionDelegate:
		return "Delegate"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// Action is one ledger instruction. Exactly the field matching Kind is set;
// CreateAccount carries no payload.
type Action struct {
	Kind ActionKind

	DeployContract *DeployContractAction
	FunctionCall   *FunctionCallAction
	Transfer       *TransferAction
	Stake          *StakeAction
	AddKey         *AddKeyAction
	DeleteKey      *DeleteKeyAction
	DeleteAccount  *DeleteAccountAction
	Delegate       *SignedDelegateAction
}

type DeployContractAction struct {
	Code []byte
}

type FunctionCallAction struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    *big.Int
}

type TransferAction struct {
	Deposit *big.Int
}

type StakeAction struct {
	Stake     *big.Int
	PublicKey PublicKey
}

type AddKeyAction struct {
	PublicKey PublicKey
	AccessKey AccessKey
}

type DeleteKeyAction struct {
	PublicKey PublicKey
}

type DeleteAccountAction struct {
	BeneficiaryID string
}

// AccessKey is the key record attached by AddKey.
type AccessKey struct {
	Nonce      uint64
	Permission AccessKeyPermission
}

// AccessKeyPermission is FullAccess when FunctionCall is nil.
type AccessKeyPermission struct {
	FunctionCall *FunctionCallPermission
}

type FunctionCallPermission struct {
	Allowance   *big.Int
	ReceiverID  string
	MethodNames []string
}

// NewFunctionCall builds a FunctionCall action.
func NewFunctionCall(method string, args []byte, gas uint64, deposit *big.Int) Action {
	if deposit == nil {
		deposit = new(big.Int)
	}
	return Action{
		Kind: ActionFunctionCall,
		FunctionCall: &FunctionCallAction{
			MethodName: method,
			Args:       args,
			Gas:        gas,
			Deposit:    new(big.Int).Set(deposit),
		},
	}
}

// NewDelegate wraps a signed delegate as an action.
func NewDelegate(signed *SignedDelegateAction) Action {
	return Action{Kind: ActionDelegate, Delegate: signed}
}

func encodePublicKey(w *borsh.Writer, pk PublicKey) error {
	n, err := pk.Type.publicKeyLen()
	if err != nil {
		return err
	}
	if len(pk.Data) != n {
		return fmt.Errorf("%w: %s public key must be %d bytes", ErrInvalidKey, pk.Type, n)
	}
	w.WriteU8(uint8(pk.Type))
	w.WriteFixed(pk.Data)
	return nil
}

func decodePublicKey(r *borsh.Reader) (PublicKey, error) {
	tag, err := r.ReadU8()
	if err != nil {
		return PublicKey{}, err
	}
	kt := KeyType(tag)
	n, err := kt.publicKeyLen()
	if err != nil {
		return PublicKey{}, err
	}
	data, err := r.ReadFixed(n)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKey{Type: kt, Data: data}, nil
}

func encodeSignature(w *borsh.Writer, sig Signature) error {
	n, err := sig.Type.signatureLen()
	if err != nil {
		return err
	}
	if len(sig.Data) != n {
		return fmt.Errorf("%w: %s signature must be %d bytes", ErrInvalidKey, sig.Type, n)
	}
	w.WriteU8(uint8(sig.Type))
	w.WriteFixed(sig.Data)
	return nil
}

func decodeSignature(r *borsh.Reader) (Signature, error) {
	tag, err := r.ReadU8()
	if err != nil {
		return Signature{}, err
	}
	kt := KeyType(tag)
	n, err := kt.signatureLen()
	if err != nil {
		return Signature{}, err
	}
	data, err := r.ReadFixed(n)
	if err != nil {
		return Signature{}, err
	}
	return Signature{Type: kt, Data: data}, nil
}

func encodeActions(w *borsh.Writer, actions []Action, allowDelegate bool) error {
	w.WriteU32(uint32(len(actions)))
	for i := range actions {
		if err := encodeAction(w, &actions[i], allowDelegate); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

func decodeActions(r *borsh.Reader, allowDelegate bool) ([]Action, error) {
	// every action is at least its one-byte tag
	n, err := r.ReadLength(1)
	if err != nil {
		return nil, err
	}
	actions := make([]Action, 0, n)
	for i := 0; i < n; i++ {
		a, err := decodeAction(r, allowDelegate)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func encodeAction(w *borsh.Writer, a *Action, allowDelegate bool) error {
	w.WriteU8(uint8(a.Kind))
	switch a.Kind {
	case ActionCreateAccount:
		return nil
	case ActionDeployContract:
		if a.DeployContract == nil {
			return missingPayload(a.Kind)
		}
		w.WriteBytes(a.DeployContract.Code)
		return nil
	case ActionFunctionCall:
		fc := a.FunctionCall
		if fc == nil {
			return missingPayload(a.Kind)
		}
		w.WriteString(fc.MethodName)
		w.WriteBytes(fc.Args)
		w.WriteU64(fc.Gas)
		return w.WriteU128(fc.Deposit)
	case ActionTransfer:
		if a.Transfer == nil {
			return missingPayload(a.Kind)
		}
		return w.WriteU128(a.Transfer.Deposit)
	case ActionStake:
		if a.Stake == nil {
			return missingPayload(a.Kind)
		}
		if err := w.WriteU128(a.Stake.Stake); err != nil {
			return err
		}
		return encodePublicKey(w, a.Stake.PublicKey)
	case ActionAddKey:
		if a.AddKey == nil {
			return missingPayload(a.Kind)
		}
		if err := encodePublicKey(w, a.AddKey.PublicKey); err != nil {
			return err
		}
		return encodeAccessKey(w, a.AddKey.AccessKey)
	case ActionDeleteKey:
		if a.DeleteKey == nil {
			return missingPayload(a.Kind)
		}
		return encodePublicKey(w, a.DeleteKey.PublicKey)
	case ActionDeleteAccount:
		if a.DeleteAccount == nil {
			return missingPayload(a.Kind)
		}
		w.WriteString(a.DeleteAccount.BeneficiaryID)
		return nil
	case ActionDelegate:
		if !allowDelegate {
			return ErrNestedDelegate
		}
		if a.Delegate == nil {
			return missingPayload(a.Kind)
		}
		return a.Delegate.encode(w)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownAction, uint8(a.Kind))
	}
}

func decodeAction(r *borsh.Reader, allowDelegate bool) (Action, error) {
	tag, err := r.ReadU8()
	if err != nil {
		return Action{}, err
	}
	a := Action{Kind: ActionKind(tag)}
	switch a.Kind {
	case ActionCreateAccount:
	case ActionDeployContract:
		code, err := r.ReadBytes()
		if err != nil {
			return Action{}, err
		}
		a.DeployContract = &DeployContractAction{Code: code}
	case ActionFunctionCall:
		method, err := r.ReadString()
		if err != nil {
			return Action{}, err
		}
		args, err := r.ReadBytes()
		if err != nil {
			return Action{}, err
		}
		gas, err := r.ReadU64()
		if err != nil {
			return Action{}, err
		}
		deposit, err := r.ReadU128()
		if err != nil {
			return Action{}, err
		}
		a.FunctionCall = &FunctionCallAction{MethodName: method, Args: args, Gas: gas, Deposit: deposit}
	case ActionTransfer:
		deposit, err := r.ReadU128()
		if err != nil {
			return Action{}, err
		}
		a.Transfer = &TransferAction{Deposit: deposit}
	case ActionStake:
		stake, err := r.ReadU128()
		if err != nil {
			return Action{}, err
		}
		pk, err := decodePublicKey(r)
		if err != nil {
			return Action{}, err
		}
		a.Stake = &StakeAction{Stake: stake, PublicKey: pk}
	case ActionAddKey:
		pk, err := decodePublicKey(r)
		if err != nil {
			return Action{}, err
		}
		ak, err := decodeAccessKey(r)
		if err != nil {
			return Action{}, err
		}
		a.AddKey = &AddKeyAction{PublicKey: pk, AccessKey: ak}
	case ActionDeleteKey:
		pk, err := decodePublicKey(r)
		if err != nil {
			return Action{}, err
		}
		a.DeleteKey = &DeleteKeyAction{PublicKey: pk}
	case ActionDeleteAccount:
		beneficiary, err := r.ReadString()
		if err != nil {
			return Action{}, err
		}
		a.DeleteAccount = &DeleteAccountAction{BeneficiaryID: beneficiary}
	case ActionDelegate:
		if !allowDelegate {
			return Action{}, ErrNestedDelegate
		}
		signed, err := decodeSignedDelegate(r)
		if err != nil {
			return Action{}, err
		}
		a.Delegate = signed
	default:
		return Action{}, fmt.Errorf("%w: %d", ErrUnknownAction, tag)
	}
	return a, nil
}

func encodeAccessKey(w *borsh.Writer, ak AccessKey) error {
	w.WriteU64(ak.Nonce)
	fc := ak.Permission.FunctionCall
	if fc == nil {
		w.WriteU8(1)
		return nil
	}
	w.WriteU8(0)
	if fc.Allowance == nil {
		w.WriteU8(0)
	} else {
		w.WriteU8(1)
		if err := w.WriteU128(fc.Allowance); err != nil {
			return err
		}
	}
	w.WriteString(fc.ReceiverID)
	w.WriteU32(uint32(len(fc.MethodNames)))
	for _, m := range fc.MethodNames {
		w.WriteString(m)
	}
	return nil
}

func decodeAccessKey(r *borsh.Reader) (AccessKey, error) {
	nonce, err := r.ReadU64()
	if err != nil {
		return AccessKey{}, err
	}
	tag, err := r.ReadU8()
	if err != nil {
		return AccessKey{}, err
	}
	switch tag {
	case 1:
		return AccessKey{Nonce: nonce}, nil
	case 0:
	default:
		return AccessKey{}, fmt.Errorf("%w: %d", ErrUnknownKey, tag)
	}

	perm := &FunctionCallPermission{}
	hasAllowance, err := r.ReadOption()
	if err != nil {
		return AccessKey{}, err
	}
	if hasAllowance {
		if perm.Allowance, err = r.ReadU128(); err != nil {
			return AccessKey{}, err
		}
	}
	if perm.ReceiverID, err = r.ReadString(); err != nil {
		return AccessKey{}, err
	}
	// each method name carries at least a u32 length prefix
	n, err := r.ReadLength(4)
	if err != nil {
		return AccessKey{}, err
	}
	for i := 0; i < n; i++ {
		m, err := r.ReadString()
		if err != nil {
			return AccessKey{}, err
		}
		perm.MethodNames = append(perm.MethodNames, m)
	}
	return AccessKey{Nonce: nonce, Permission: AccessKeyPermission{FunctionCall: perm}}, nil
}

func missingPayload(kind ActionKind) error {
	return fmt.Errorf("%s action has no payload", kind)
}
