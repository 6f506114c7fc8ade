/**
 * @description
 * Escrow split calculator. Pure integer arithmetic on raw token units.
 */
package escrow

import (
	"errors"
	"fmt"
	"math/big"
)

// DefaultSpecialistPercent is the specialist's share of every released escrow.
const DefaultSpecialistPercent = 85

var (
	ErrNegativeAmount = errors.New("escrow amount must not be negative")
	ErrInvalidPercent = errors.New("specialist percent must be between 0 and 100")
	ErrSplitMismatch  = errors.New("stored split does not sum to the gross amount")

	hundred = big.NewInt(100)
)

// Split is the two-way division of a gross escrow amount.
type Split struct {
	SpecialistAmount *big.Int
	PlatformAmount   *big.Int
}

// Total returns SpecialistAmount + PlatformAmount.
func (s Split) Total() *big.Int {
	return new(big.Int).Add(s.SpecialistAmount, s.PlatformAmount)
}

// SplitAmount divides gross using DefaultSpecialistPercent.
func SplitAmount(gross *big.Int) (Split, error) {
	return SplitWithPercent(gross, DefaultSpecialistPercent)
}

// SplitWithPercent divides gross so that the platform receives
// floor(gross*(100-pct)/100) and the specialist receives the rest, truncation
// remainder included.
func SplitWithPercent(gross *big.Int, specialistPercent int) (Split, error) {
	if gross == nil || gross.Sign() < 0 {
		return Split{}, ErrNegativeAmount
	}
	if specialistPercent < 0 || specialistPercent > 100 {
		return Split{}, fmt.Errorf("%w: %d", ErrInvalidPercent, specialistPercent)
	}
	platform := new(big.Int).Mul(gross, big.NewInt(int64(100-specialistPercent)))
	platform.Quo(platform, hundred)
	specialist := new(big.Int).Sub(gross, platform)
	return Split{SpecialistAmount: specialist, PlatformAmount: platform}, nil
}

// ResolveSplit prefers an already-stored split and falls back to recomputing.
// When only the specialist amount is stored the platform gets the difference.
// A stored split that does not add up to gross is an error, never silently fixed.
func ResolveSplit(gross, storedSpecialist, storedPlatform *big.Int, specialistPercent int) (Split, error) {
	if gross == nil || gross.Sign() < 0 {
		return Split{}, ErrNegativeAmount
	}
	if storedSpecialist == nil {
		return SplitWithPercent(gross, specialistPercent)
	}
	if storedSpecialist.Sign() < 0 || (storedPlatform != nil && storedPlatform.Sign() < 0) {
		return Split{}, ErrNegativeAmount
	}

	platform := storedPlatform
	if platform == nil {
		platform = new(big.Int).Sub(gross, storedSpecialist)
		if platform.Sign() < 0 {
			return Split{}, fmt.Errorf("%w: specialist %s exceeds gross %s", ErrSplitMismatch, storedSpecialist, gross)
		}
	}
	split := Split{SpecialistAmount: new(big.Int).Set(storedSpecialist), PlatformAmount: new(big.Int).Set(platform)}
	if split.Total().Cmp(gross) != 0 {
		return Split{}, fmt.Errorf("%w: %s + %s != %s", ErrSplitMismatch, split.SpecialistAmount, split.PlatformAmount, gross)
	}
	return split, nil
}
