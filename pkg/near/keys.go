package near

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// KeyType is the curve tag carried by public keys and signatures.
type KeyType uint8

const (
	KeyTypeED25519   KeyType = 0
	KeyTypeSECP256K1 KeyType = 1
)

var ErrInvalidKey = errors.New("invalid key")

func (k KeyType) String() string {
	switch k {
	case KeyTypeED25519:
		return "ed25519"
	case KeyTypeSECP256K1:
		return "secp256k1"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

func (k KeyType) publicKeyLen() (int, error) {
	switch k {
	case KeyTypeED25519:
		return ed25519.PublicKeySize, nil
	case KeyTypeSECP256K1:
		return 64, nil
	default:
		return 0, fmt.Errorf("%w: unknown key type %d", ErrInvalidKey, uint8(k))
	}
}

func (k KeyType) signatureLen() (int, error) {
	switch k {
	case KeyTypeED25519:
		return ed25519.SignatureSize, nil
	case KeyTypeSECP256K1:
		return 65, nil
	default:
		return 0, fmt.Errorf("%w: unknown signature type %d", ErrInvalidKey, uint8(k))
	}
}

func parseKeyType(prefix string) (KeyType, error) {
	switch prefix {
	case "ed25519":
		return KeyTypeED25519, nil
	case "secp256k1":
		return KeyTypeSECP256K1, nil
	default:
		return 0, fmt.Errorf("%w: unknown key type %q", ErrInvalidKey, prefix)
	}
}

// splitTyped splits "ed25519:<base58>" into its type and decoded bytes. A missing
// prefix means ed25519.
func splitTyped(s string) (KeyType, []byte, error) {
	s = strings.TrimSpace(s)
	prefix, data, found := strings.Cut(s, ":")
	if !found {
		prefix, data = "ed25519", s
	}
	kt, err := parseKeyType(prefix)
	if err != nil {
		return 0, nil, err
	}
	raw, err := base58.Decode(data)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return kt, raw, nil
}

// PublicKey is a curve-tagged public key.
type PublicKey struct {
	Type KeyType
	Data []byte
}

// ParsePublicKey parses "ed25519:<base58>" or "secp256k1:<base58>".
func ParsePublicKey(s string) (PublicKey, error) {
	kt, raw, err := splitTyped(s)
	if err != nil {
		return PublicKey{}, err
	}
	return NewPublicKey(kt, raw)
}

// NewPublicKey validates the key length for its type.
func NewPublicKey(kt KeyType, data []byte) (PublicKey, error) {
	n, err := kt.publicKeyLen()
	if err != nil {
		return PublicKey{}, err
	}
	if len(data) != n {
		return PublicKey{}, fmt.Errorf("%w: %s public key must be %d bytes, got %d", ErrInvalidKey, kt, n, len(data))
	}
	return PublicKey{Type: kt, Data: append([]byte(nil), data...)}, nil
}

func (p PublicKey) String() string {
	return p.Type.String() + ":" + base58.Encode(p.Data)
}

// Signature is a curve-tagged signature.
type Signature struct {
	Type KeyType
	Data []byte
}

// ParseSignature parses "ed25519:<base58>" or "secp256k1:<base58>".
func ParseSignature(s string) (Signature, error) {
	kt, raw, err := splitTyped(s)
	if err != nil {
		return Signature{}, err
	}
	return NewSignature(kt, raw)
}

// NewSignature validates the signature length for its type.
func NewSignature(kt KeyType, data []byte) (Signature, error) {
	n, err := kt.signatureLen()
	if err != nil {
		return Signature{}, err
	}
	if len(data) != n {
		return Signature{}, fmt.Errorf("%w: %s signature must be %d bytes, got %d", ErrInvalidKey, kt, n, len(data))
	}
	return Signature{Type: kt, Data: append([]byte(nil), data...)}, nil
}

func (s Signature) String() string {
	return s.Type.String() + ":" + base58.Encode(s.Data)
}

// KeyPair is an ed25519 signing identity.
type KeyPair struct {
	private ed25519.PrivateKey
}

// ParseKeyPair parses a secret key in "ed25519:<base58>" form. Both the 64-byte
// expanded form and a bare 32-byte seed are accepted.
func ParseKeyPair(s string) (*KeyPair, error) {
	kt, raw, err := splitTyped(s)
	if err != nil {
		return nil, err
	}
	if kt != KeyTypeED25519 {
		return nil, fmt.Errorf("%w: only ed25519 signing keys are supported", ErrInvalidKey)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return &KeyPair{private: ed25519.NewKeyFromSeed(raw)}, nil
	case ed25519.PrivateKeySize:
		priv := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		if !priv.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
			return nil, fmt.Errorf("%w: secret key does not match embedded public key", ErrInvalidKey)
		}
		return &KeyPair{private: priv}, nil
	default:
		return nil, fmt.Errorf("%w: secret key must be %d or %d bytes, got %d", ErrInvalidKey, ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}

// KeyPairFromSeed derives a key pair from a 32-byte seed.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes", ErrInvalidKey, ed25519.SeedSize)
	}
	return &KeyPair{private: ed25519.NewKeyFromSeed(seed)}, nil
}

// PublicKey returns the tagged public half.
func (k *KeyPair) PublicKey() PublicKey {
	pub := k.private.Public().(ed25519.PublicKey)
	return PublicKey{Type: KeyTypeED25519, Data: append([]byte(nil), pub...)}
}

// Sign signs message and returns a tagged signature.
func (k *KeyPair) Sign(message []byte) Signature {
	return Signature{Type: KeyTypeED25519, Data: ed25519.Sign(k.private, message)}
}

// Verify checks an ed25519 signature. Other curves report false.
func Verify(pub PublicKey, message []byte, sig Signature) bool {
	if pub.Type != KeyTypeED25519 || sig.Type != KeyTypeED25519 {
		return false
	}
	if len(pub.Data) != ed25519.PublicKeySize || len(sig.Data) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub.Data), message, sig.Data)
}
