package tokenclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/near"
)

type viewerStub struct {
	results map[string][]byte
	calls   []string
}

func (v *viewerStub) CallFunction(ctx context.Context, accountID, method string, args interface{}) ([]byte, error) {
	payload, _ := json.Marshal(args)
	v.calls = append(v.calls, accountID+"."+method+":"+string(payload))
	if out, ok := v.results[method]; ok {
		return out, nil
	}
	return nil, errors.New("unexpected view call")
}

type signerStub struct {
	accountID string
	receivers []string
	actions   [][]near.Action
	err       error
}

func (s *signerStub) AccountID() string { return s.accountID }

func (s *signerStub) SignAndSend(ctx context.Context, receiverID string, actions []near.Action) (string, error) {
	s.receivers = append(s.receivers, receiverID)
	s.actions = append(s.actions, actions)
	if s.err != nil {
		return "", s.err
	}
	return "hash-" + receiverID, nil
}

func TestParseAmount(t *testing.T) {
	valid := map[string]string{"0": "0", "10000000": "10000000", " 42 ": "42", "340282366920938463463374607431768211455": "340282366920938463463374607431768211455"}
	for in, want := range valid {
		got, err := ParseAmount(in)
		if err != nil {
			t.Fatalf("ParseAmount(%q) returned error: %v", in, err)
		}
		if got.String() != want {
			t.Fatalf("ParseAmount(%q) = %s, want %s", in, got, want)
		}
	}

	for _, in := range []string{"", "-1", "+1", "1.5", "1e6", "0x10", "10 000"} {
		if _, err := ParseAmount(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("ParseAmount(%q) expected ErrInvalidAmount, got %v", in, err)
		}
	}
}

func TestFtBalanceOf(t *testing.T) {
	viewer := &viewerStub{results: map[string][]byte{MethodBalanceOf: []byte(`"10000000"`)}}
	client := NewClient(viewer, "usdc.near", Options{})

	balance, err := client.FtBalanceOf(context.Background(), "escrow.near")
	if err != nil {
		t.Fatalf("FtBalanceOf returned error: %v", err)
	}
	if balance.String() != "10000000" {
		t.Fatalf("expected 10000000, got %s", balance)
	}
	if viewer.calls[0] != `usdc.near.ft_balance_of:{"account_id":"escrow.near"}` {
		t.Fatalf("unexpected view call %q", viewer.calls[0])
	}
}

func TestIsRegistered(t *testing.T) {
	t.Run("null means unregistered", func(t *testing.T) {
		viewer := &viewerStub{results: map[string][]byte{MethodStorageBalanceOf: []byte(`null`)}}
		registered, err := NewClient(viewer, "usdc.near", Options{}).IsRegistered(context.Background(), "usdc.near", "bob.near")
		if err != nil {
			t.Fatalf("IsRegistered returned error: %v", err)
		}
		if registered {
			t.Fatal("expected null storage balance to mean unregistered")
		}
	})

	t.Run("record means registered", func(t *testing.T) {
		viewer := &viewerStub{results: map[string][]byte{MethodStorageBalanceOf: []byte(`{"total":"1250000000000000000000","available":"0"}`)}}
		client := NewClient(viewer, "usdc.near", Options{})
		balance, err := client.StorageBalanceOf(context.Background(), "usdc.near", "bob.near")
		if err != nil {
			t.Fatalf("StorageBalanceOf returned error: %v", err)
		}
		if balance == nil || balance.Total != "1250000000000000000000" {
			t.Fatalf("unexpected storage balance %+v", balance)
		}
	})
}

func TestTransferAction(t *testing.T) {
	action, err := TransferAction("escrow.near", big.NewInt(10000000), "consultation:42")
	if err != nil {
		t.Fatalf("TransferAction returned error: %v", err)
	}
	fc := action.FunctionCall
	if action.Kind != near.ActionFunctionCall || fc == nil || fc.MethodName != MethodTransfer {
		t.Fatalf("unexpected action %+v", action)
	}
	if fc.Deposit.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected one yocto deposit, got %s", fc.Deposit)
	}
	if fc.Gas != TransferGas {
		t.Fatalf("expected %d gas, got %d", TransferGas, fc.Gas)
	}
	want := `{"receiver_id":"escrow.near","amount":"10000000","memo":"consultation:42"}`
	if string(fc.Args) != want {
		t.Fatalf("expected args %s, got %s", want, fc.Args)
	}

	noMemo, _ := TransferAction("escrow.near", big.NewInt(1), "")
	if bytes.Contains(noMemo.FunctionCall.Args, []byte("memo")) {
		t.Fatalf("expected memo to be omitted, got %s", noMemo.FunctionCall.Args)
	}

	if _, err := TransferAction("escrow.near", big.NewInt(-1), ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestStorageDepositAction(t *testing.T) {
	client := NewClient(&viewerStub{}, "usdc.near", Options{})
	action := client.StorageDepositAction("bob.near")
	fc := action.FunctionCall
	if fc.MethodName != MethodStorageDeposit {
		t.Fatalf("unexpected method %s", fc.MethodName)
	}
	if string(fc.Args) != `{"account_id":"bob.near","registration_only":true}` {
		t.Fatalf("unexpected args %s", fc.Args)
	}
	if fc.Deposit.String() != DefaultStorageDepositYocto {
		t.Fatalf("expected default storage deposit, got %s", fc.Deposit)
	}
}

func TestWritePathsRequireSigners(t *testing.T) {
	client := NewClient(&viewerStub{}, "usdc.near", Options{})
	ctx := context.Background()

	if _, err := client.RegisterAccount(ctx, "usdc.near", "bob.near"); !errors.Is(err, ErrRelayerNotConfigured) {
		t.Fatalf("expected ErrRelayerNotConfigured, got %v", err)
	}
	if _, err := client.ForwardDelegate(ctx, &near.SignedDelegateAction{}); !errors.Is(err, ErrRelayerNotConfigured) {
		t.Fatalf("expected ErrRelayerNotConfigured, got %v", err)
	}
	if _, err := client.TransferFromEscrow(ctx, "bob.near", big.NewInt(1), ""); !errors.Is(err, ErrEscrowNotConfigured) {
		t.Fatalf("expected ErrEscrowNotConfigured, got %v", err)
	}
}

func TestForwardDelegateTargetsSender(t *testing.T) {
	relayer := &signerStub{accountID: "relayer.near"}
	client := NewClient(&viewerStub{}, "usdc.near", Options{Relayer: relayer})
	signed := &near.SignedDelegateAction{DelegateAction: near.DelegateAction{SenderID: "alice.near", ReceiverID: "usdc.near"}}

	hash, err := client.ForwardDelegate(context.Background(), signed)
	if err != nil {
		t.Fatalf("ForwardDelegate returned error: %v", err)
	}
	if hash != "hash-alice.near" {
		t.Fatalf("unexpected hash %q", hash)
	}
	if relayer.receivers[0] != "alice.near" {
		t.Fatalf("expected transaction receiver alice.near, got %s", relayer.receivers[0])
	}
	if len(relayer.actions[0]) != 1 || relayer.actions[0][0].Kind != near.ActionDelegate || relayer.actions[0][0].Delegate != signed {
		t.Fatalf("expected exactly one delegate action, got %+v", relayer.actions[0])
	}
}

func TestTransferFromEscrowUsesEscrowSigner(t *testing.T) {
	relayer := &signerStub{accountID: "relayer.near"}
	escrow := &signerStub{accountID: "escrow.near"}
	client := NewClient(&viewerStub{}, "usdc.near", Options{Relayer: relayer, Escrow: escrow})

	if _, err := client.TransferFromEscrow(context.Background(), "dr.near", big.NewInt(8500000), "release:c1"); err != nil {
		t.Fatalf("TransferFromEscrow returned error: %v", err)
	}
	if len(relayer.receivers) != 0 {
		t.Fatal("relayer must not sign escrow transfers")
	}
	if escrow.receivers[0] != "usdc.near" {
		t.Fatalf("expected transfer to be sent to the token contract, got %s", escrow.receivers[0])
	}
}

func TestRegisterAccountWrapsSignerError(t *testing.T) {
	relayer := &signerStub{accountID: "relayer.near", err: errors.New("boom")}
	client := NewClient(&viewerStub{}, "usdc.near", Options{Relayer: relayer})

	_, err := client.RegisterAccount(context.Background(), "usdc.near", "bob.near")
	if err == nil || !errors.Is(err, relayer.err) {
		t.Fatalf("expected wrapped signer error, got %v", err)
	}
}
