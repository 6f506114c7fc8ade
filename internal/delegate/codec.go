/**
 * @description
 * Decoding and inspection of user-signed delegate envelopes.
 * Everything here is pure: malformed input is rejected before any network call is made.
 */
package delegate

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/near"
)

var (
	ErrMalformedBase64   = errors.New("signed delegate is not valid base64")
	ErrMalformedEnvelope = errors.New("signed delegate does not match the delegate schema")
	ErrNoActions         = errors.New("signed delegate contains no actions")
	ErrBadSignature      = errors.New("signed delegate signature does not match its public key")
)

// Decode parses a base64 Borsh-encoded signed delegate.
func Decode(encoded string) (*near.SignedDelegateAction, error) {
	raw, err := decodeBase64(encoded)
	if err != nil {
		return nil, err
	}
	signed, err := near.DecodeSignedDelegateAction(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if len(signed.DelegateAction.Actions) == 0 {
		return nil, ErrNoActions
	}
	return signed, nil
}

func decodeBase64(encoded string) ([]byte, error) {
	s := strings.TrimSpace(encoded)
	if s == "" {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedBase64)
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if raw, err := enc.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	return nil, ErrMalformedBase64
}

// Encode returns the canonical base64 Borsh encoding of signed.
func Encode(signed *near.SignedDelegateAction) (string, error) {
	raw, err := signed.Bytes()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// VerifySignature checks an ed25519 delegate signature against the embedded public key.
// secp256k1 delegates are left for the network to verify.
func VerifySignature(signed *near.SignedDelegateAction) error {
	pub := signed.DelegateAction.PublicKey
	sig := signed.Signature
	if pub.Type == near.KeyTypeSECP256K1 && sig.Type == near.KeyTypeSECP256K1 {
		return nil
	}
	if pub.Type != sig.Type {
		return fmt.Errorf("%w: %s key with %s signature", ErrBadSignature, pub.Type, sig.Type)
	}
	hash, err := signed.DelegateAction.SigningHash()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if !near.Verify(pub, hash[:], sig) {
		return ErrBadSignature
	}
	return nil
}
