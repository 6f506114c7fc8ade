/**
 * @description
 * Account identifier rules for the ledger network.
 */
package near

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	MinAccountIDLength = 2
	MaxAccountIDLength = 64
)

var (
	ErrInvalidAccountID = errors.New("invalid account id")

	accountIDPattern   = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)
	implicitPattern    = regexp.MustCompile(`^[0-9a-f]{64}$`)
	ethImplicitPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)
)

// ValidateAccountID checks the syntax of a ledger account id.
func ValidateAccountID(id string) error {
	if len(id) < MinAccountIDLength || len(id) > MaxAccountIDLength {
		return fmt.Errorf("%w: %q must be %d-%d characters", ErrInvalidAccountID, id, MinAccountIDLength, MaxAccountIDLength)
	}
	if !accountIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidAccountID, id)
	}
	return nil
}

// IsImplicitAccount reports whether id is a 64-hex ed25519 implicit account.
func IsImplicitAccount(id string) bool {
	return implicitPattern.MatchString(id)
}

// IsEthImplicitAccount reports whether id is an 0x-prefixed 20-byte implicit account.
func IsEthImplicitAccount(id string) bool {
	return ethImplicitPattern.MatchString(id)
}

// IsLedgerAddress reports whether id is usable as a payout destination: a valid
// account id that is either implicit or a named account under some parent.
// Bare top-level names like "42" or "user" are rejected since they are far more
// likely to be a database id than an on-chain address.
func IsLedgerAddress(id string) bool {
	if ValidateAccountID(id) != nil {
		return false
	}
	if IsImplicitAccount(id) || IsEthImplicitAccount(id) {
		return true
	}
	return strings.Contains(id, ".")
}
