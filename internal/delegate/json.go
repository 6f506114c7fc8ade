package delegate

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/near"
)

// DecodeJSON parses the JSON form of a signed delegate produced by browser wallets.
// Keys may be snake_case or camelCase, and byte fields may be a base64 string, a
// number array, a typed-array object ({"0":1,"1":2}) or a serialized Buffer
// ({"type":"Buffer","data":[...]}). Every form normalizes into the same near types.
func DecodeJSON(raw json.RawMessage) (*near.SignedDelegateAction, error) {
	top, err := parseFields(raw)
	if err != nil {
		return nil, malformed("envelope", err)
	}

	daRaw, ok := top.get("delegateaction")
	if !ok {
		return nil, malformed("envelope", fmt.Errorf("missing delegate_action"))
	}
	da, err := parseFields(daRaw)
	if err != nil {
		return nil, malformed("delegate_action", err)
	}

	var d near.DelegateAction
	if d.SenderID, err = da.requireString("senderid"); err != nil {
		return nil, malformed("sender_id", err)
	}
	if d.ReceiverID, err = da.requireString("receiverid"); err != nil {
		return nil, malformed("receiver_id", err)
	}
	if d.Nonce, err = da.requireUint64("nonce"); err != nil {
		return nil, malformed("nonce", err)
	}
	if d.MaxBlockHeight, err = da.requireUint64("maxblockheight"); err != nil {
		return nil, malformed("max_block_height", err)
	}
	pkRaw, ok := da.get("publickey")
	if !ok {
		return nil, malformed("public_key", fmt.Errorf("missing"))
	}
	if d.PublicKey, err = parsePublicKeyValue(pkRaw); err != nil {
		return nil, malformed("public_key", err)
	}

	actionsRaw, ok := da.get("actions")
	if !ok {
		return nil, malformed("actions", fmt.Errorf("missing"))
	}
	var actionList []json.RawMessage
	if err := json.Unmarshal(actionsRaw, &actionList); err != nil {
		return nil, malformed("actions", err)
	}
	for i, ar := range actionList {
		action, err := parseActionValue(ar)
		if err != nil {
			return nil, malformed(fmt.Sprintf("actions[%d]", i), err)
		}
		d.Actions = append(d.Actions, action)
	}
	if len(d.Actions) == 0 {
		return nil, ErrNoActions
	}

	sigRaw, ok := top.get("signature")
	if !ok {
		return nil, malformed("signature", fmt.Errorf("missing"))
	}
	sig, err := parseSignatureValue(sigRaw)
	if err != nil {
		return nil, malformed("signature", err)
	}

	signed := &near.SignedDelegateAction{DelegateAction: d, Signature: sig}
	// the relay forwards the Borsh form, so the normalized value must encode cleanly
	if _, err := signed.Bytes(); err != nil {
		return nil, malformed("envelope", err)
	}
	return signed, nil
}

func malformed(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, field, err)
}

// fields is a JSON object keyed by lowercased names with underscores removed, so
// "sender_id" and "senderId" both resolve to "senderid".
type fields map[string]json.RawMessage

func normalizeKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(k, "_", ""))
}

// parseFields refuses objects where two keys normalize to the same name, such as
// "sender_id" next to "senderId", so no spelling silently wins.
func parseFields(raw json.RawMessage) (fields, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	out := make(fields, len(m))
	spelled := make(map[string]string, len(m))
	for k, v := range m {
		name := normalizeKey(k)
		if prev, ok := spelled[name]; ok {
			a, b := prev, k
			if b < a {
				a, b = b, a
			}
			return nil, fmt.Errorf("%w: %q and %q", ErrDuplicateKey, a, b)
		}
		spelled[name] = k
		out[name] = v
	}
	return out, nil
}

func (f fields) get(key string) (json.RawMessage, bool) {
	v, ok := f[key]
	if !ok || len(v) == 0 || string(v) == "null" {
		return nil, false
	}
	return v, true
}

func (f fields) requireString(key string) (string, error) {
	raw, ok := f.get(key)
	if !ok {
		return "", fmt.Errorf("missing")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func (f fields) requireUint64(key string) (uint64, error) {
	raw, ok := f.get(key)
	if !ok {
		return 0, fmt.Errorf("missing")
	}
	n, err := parseBigValue(raw)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("%s does not fit in u64", n.String())
	}
	return n.Uint64(), nil
}

func (f fields) optionalBig(key string) (*big.Int, error) {
	raw, ok := f.get(key)
	if !ok {
		return new(big.Int), nil
	}
	return parseBigValue(raw)
}

// parseBigValue accepts a JSON integer or a decimal string.
func parseBigValue(raw json.RawMessage) (*big.Int, error) {
	text := strings.TrimSpace(string(raw))
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		text = strings.TrimSpace(s)
	}
	if text == "" || strings.HasPrefix(text, "-") {
		return nil, fmt.Errorf("invalid integer %q", text)
	}
	n, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", text)
	}
	return n, nil
}

// parseBytesValue normalizes every accepted byte representation.
func parseBytesValue(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return []byte{}, nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		if s == "" {
			return []byte{}, nil
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("bytes are not valid base64: %w", err)
		}
		return b, nil
	case '[':
		var nums []int
		if err := json.Unmarshal(trimmed, &nums); err != nil {
			return nil, err
		}
		return bytesFromInts(nums)
	case '{':
		obj, err := parseFields(trimmed)
		if err != nil {
			return nil, err
		}
		if data, ok := obj.get("data"); ok {
			return parseBytesValue(data)
		}
		return bytesFromIndexedObject(obj)
	default:
		return nil, fmt.Errorf("unsupported byte representation")
	}
}

func bytesFromInts(nums []int) ([]byte, error) {
	out := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("byte %d out of range: %d", i, n)
		}
		out[i] = byte(n)
	}
	return out, nil
}

// bytesFromIndexedObject reads {"0":..,"1":..}; indices must be exactly 0..n-1.
func bytesFromIndexedObject(obj fields) ([]byte, error) {
	indices := make([]int, 0, len(obj))
	values := make(map[int]int, len(obj))
	for k, v := range obj {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("unexpected typed-array key %q", k)
		}
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return nil, fmt.Errorf("typed-array value at %d: %w", idx, err)
		}
		indices = append(indices, idx)
		values[idx] = n
	}
	sort.Ints(indices)
	nums := make([]int, len(indices))
	for i, idx := range indices {
		if idx != i {
			return nil, fmt.Errorf("typed-array is missing index %d", i)
		}
		nums[i] = values[idx]
	}
	return bytesFromInts(nums)
}

// parsePublicKeyValue accepts "ed25519:<base58>", {"keyType":0,"data":...} or
// {"ed25519Key":{"data":...}}.
func parsePublicKeyValue(raw json.RawMessage) (near.PublicKey, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return near.ParsePublicKey(s)
	}
	kt, data, err := parseTypedBytes(raw, "key")
	if err != nil {
		return near.PublicKey{}, err
	}
	return near.NewPublicKey(kt, data)
}

func parseSignatureValue(raw json.RawMessage) (near.Signature, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return near.ParseSignature(s)
	}
	kt, data, err := parseTypedBytes(raw, "signature")
	if err != nil {
		return near.Signature{}, err
	}
	return near.NewSignature(kt, data)
}

func parseTypedBytes(raw json.RawMessage, suffix string) (near.KeyType, []byte, error) {
	obj, err := parseFields(raw)
	if err != nil {
		return 0, nil, err
	}
	for kt, name := range map[near.KeyType]string{near.KeyTypeED25519: "ed25519", near.KeyTypeSECP256K1: "secp256k1"} {
		if inner, ok := obj.get(name + suffix); ok {
			innerFields, err := parseFields(inner)
			if err != nil {
				return 0, nil, err
			}
			data, ok := innerFields.get("data")
			if !ok {
				return 0, nil, fmt.Errorf("missing data")
			}
			b, err := parseBytesValue(data)
			return kt, b, err
		}
	}

	var kt near.KeyType
	if ktRaw, ok := obj.get("keytype"); ok {
		n, err := parseBigValue(ktRaw)
		if err != nil || !n.IsUint64() || n.Uint64() > 255 {
			return 0, nil, fmt.Errorf("invalid key type")
		}
		kt = near.KeyType(n.Uint64())
	}
	data, ok := obj.get("data")
	if !ok {
		return 0, nil, fmt.Errorf("missing data")
	}
	b, err := parseBytesValue(data)
	return kt, b, err
}

// parseActionValue accepts {"functionCall":{...}}, {"FunctionCall":{...}},
// {"function_call":{...}} and the borsh-js form {"enum":"functionCall","functionCall":{...}}.
func parseActionValue(raw json.RawMessage) (near.Action, error) {
	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		if normalizeKey(bare) == "createaccount" {
			return near.Action{Kind: near.ActionCreateAccount}, nil
		}
		return near.Action{}, fmt.Errorf("unsupported action %q", bare)
	}

	obj, err := parseFields(raw)
	if err != nil {
		return near.Action{}, err
	}
	delete(obj, "enum")
	if len(obj) != 1 {
		return near.Action{}, fmt.Errorf("action must have exactly one variant, got %d", len(obj))
	}
	for name, body := range obj {
		return parseActionBody(name, body)
	}
	return near.Action{}, fmt.Errorf("empty action")
}

func parseActionBody(variant string, raw json.RawMessage) (near.Action, error) {
	body, err := parseFields(raw)
	if err != nil {
		return near.Action{}, err
	}
	switch variant {
	case "createaccount":
		return near.Action{Kind: near.ActionCreateAccount}, nil
	case "deploycontract":
		codeRaw, _ := body.get("code")
		code, err := parseBytesValue(codeRaw)
		if err != nil {
			return near.Action{}, fmt.Errorf("code: %w", err)
		}
		return near.Action{Kind: near.ActionDeployContract, DeployContract: &near.DeployContractAction{Code: code}}, nil
	case "functioncall":
		method, err := body.requireString("methodname")
		if err != nil {
			return near.Action{}, fmt.Errorf("method_name: %w", err)
		}
		argsRaw, _ := body.get("args")
		args, err := parseBytesValue(argsRaw)
		if err != nil {
			return near.Action{}, fmt.Errorf("args: %w", err)
		}
		gas, err := body.requireUint64("gas")
		if err != nil {
			return near.Action{}, fmt.Errorf("gas: %w", err)
		}
		deposit, err := body.optionalBig("deposit")
		if err != nil {
			return near.Action{}, fmt.Errorf("deposit: %w", err)
		}
		return near.NewFunctionCall(method, args, gas, deposit), nil
	case "transfer":
		deposit, err := body.optionalBig("deposit")
		if err != nil {
			return near.Action{}, fmt.Errorf("deposit: %w", err)
		}
		return near.Action{Kind: near.ActionTransfer, Transfer: &near.TransferAction{Deposit: deposit}}, nil
	case "stake":
		stake, err := body.optionalBig("stake")
		if err != nil {
			return near.Action{}, fmt.Errorf("stake: %w", err)
		}
		pk, err := requirePublicKey(body)
		if err != nil {
			return near.Action{}, err
		}
		return near.Action{Kind: near.ActionStake, Stake: &near.StakeAction{Stake: stake, PublicKey: pk}}, nil
	case "addkey":
		pk, err := requirePublicKey(body)
		if err != nil {
			return near.Action{}, err
		}
		akRaw, ok := body.get("accesskey")
		if !ok {
			return near.Action{}, fmt.Errorf("access_key: missing")
		}
		ak, err := parseAccessKeyValue(akRaw)
		if err != nil {
			return near.Action{}, fmt.Errorf("access_key: %w", err)
		}
		return near.Action{Kind: near.ActionAddKey, AddKey: &near.AddKeyAction{PublicKey: pk, AccessKey: ak}}, nil
	case "deletekey":
		pk, err := requirePublicKey(body)
		if err != nil {
			return near.Action{}, err
		}
		return near.Action{Kind: near.ActionDeleteKey, DeleteKey: &near.DeleteKeyAction{PublicKey: pk}}, nil
	case "deleteaccount":
		beneficiary, err := body.requireString("beneficiaryid")
		if err != nil {
			return near.Action{}, fmt.Errorf("beneficiary_id: %w", err)
		}
		return near.Action{Kind: near.ActionDeleteAccount, DeleteAccount: &near.DeleteAccountAction{BeneficiaryID: beneficiary}}, nil
	case "delegate", "signeddelegate":
		return near.Action{}, near.ErrNestedDelegate
	default:
		return near.Action{}, fmt.Errorf("unsupported action %q", variant)
	}
}

func requirePublicKey(body fields) (near.PublicKey, error) {
	raw, ok := body.get("publickey")
	if !ok {
		return near.PublicKey{}, fmt.Errorf("public_key: missing")
	}
	pk, err := parsePublicKeyValue(raw)
	if err != nil {
		return near.PublicKey{}, fmt.Errorf("public_key: %w", err)
	}
	return pk, nil
}

func parseAccessKeyValue(raw json.RawMessage) (near.AccessKey, error) {
	body, err := parseFields(raw)
	if err != nil {
		return near.AccessKey{}, err
	}
	var ak near.AccessKey
	if _, ok := body.get("nonce"); ok {
		if ak.Nonce, err = body.requireUint64("nonce"); err != nil {
			return near.AccessKey{}, err
		}
	}
	permRaw, ok := body.get("permission")
	if !ok {
		return near.AccessKey{}, fmt.Errorf("permission: missing")
	}

	var bare string
	if err := json.Unmarshal(permRaw, &bare); err == nil {
		if normalizeKey(bare) == "fullaccess" {
			return ak, nil
		}
		return near.AccessKey{}, fmt.Errorf("unsupported permission %q", bare)
	}
	perm, err := parseFields(permRaw)
	if err != nil {
		return near.AccessKey{}, err
	}
	delete(perm, "enum")
	if _, ok := perm["fullaccess"]; ok {
		return ak, nil
	}
	fcRaw, ok := perm.get("functioncall")
	if !ok {
		return near.AccessKey{}, fmt.Errorf("unsupported permission")
	}
	fc, err := parseFields(fcRaw)
	if err != nil {
		return near.AccessKey{}, err
	}
	p := &near.FunctionCallPermission{}
	if allowanceRaw, ok := fc.get("allowance"); ok {
		if p.Allowance, err = parseBigValue(allowanceRaw); err != nil {
			return near.AccessKey{}, fmt.Errorf("allowance: %w", err)
		}
	}
	if p.ReceiverID, err = fc.requireString("receiverid"); err != nil {
		return near.AccessKey{}, fmt.Errorf("receiver_id: %w", err)
	}
	if namesRaw, ok := fc.get("methodnames"); ok {
		if err := json.Unmarshal(namesRaw, &p.MethodNames); err != nil {
			return near.AccessKey{}, fmt.Errorf("method_names: %w", err)
		}
	}
	ak.Permission.FunctionCall = p
	return ak, nil
}
