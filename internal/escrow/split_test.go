package escrow

import (
	"errors"
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSplitAmount_ReferenceExample(t *testing.T) {
	split, err := SplitAmount(big.NewInt(10000000))
	if err != nil {
		t.Fatalf("SplitAmount returned error: %v", err)
	}
	if split.SpecialistAmount.String() != "8500000" || split.PlatformAmount.String() != "1500000" {
		t.Fatalf("expected 8500000/1500000, got %s/%s", split.SpecialistAmount, split.PlatformAmount)
	}
}

func TestSplitWithPercent_RemainderGoesToSpecialist(t *testing.T) {
	tests := []struct {
		gross      int64
		pct        int
		specialist string
		platform   string
	}{
		{gross: 0, pct: 85, specialist: "0", platform: "0"},
		{gross: 1, pct: 85, specialist: "1", platform: "0"},
		{gross: 7, pct: 85, specialist: "6", platform: "1"},
		{gross: 99, pct: 85, specialist: "85", platform: "14"},
		{gross: 100, pct: 100, specialist: "100", platform: "0"},
		{gross: 100, pct: 0, specialist: "0", platform: "100"},
	}
	for _, tc := range tests {
		split, err := SplitWithPercent(big.NewInt(tc.gross), tc.pct)
		if err != nil {
			t.Fatalf("SplitWithPercent(%d, %d) returned error: %v", tc.gross, tc.pct, err)
		}
		if split.SpecialistAmount.String() != tc.specialist || split.PlatformAmount.String() != tc.platform {
			t.Fatalf("SplitWithPercent(%d, %d) = %s/%s, want %s/%s", tc.gross, tc.pct, split.SpecialistAmount, split.PlatformAmount, tc.specialist, tc.platform)
		}
	}
}

func TestSplitWithPercent_RejectsInvalidInput(t *testing.T) {
	if _, err := SplitWithPercent(big.NewInt(-1), 85); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
	if _, err := SplitWithPercent(nil, 85); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount for nil, got %v", err)
	}
	if _, err := SplitWithPercent(big.NewInt(1), 101); !errors.Is(err, ErrInvalidPercent) {
		t.Fatalf("expected ErrInvalidPercent, got %v", err)
	}
}

func TestResolveSplit(t *testing.T) {
	gross := big.NewInt(10000000)

	t.Run("stored split wins", func(t *testing.T) {
		split, err := ResolveSplit(gross, big.NewInt(9000000), big.NewInt(1000000), 85)
		if err != nil {
			t.Fatalf("ResolveSplit returned error: %v", err)
		}
		if split.SpecialistAmount.String() != "9000000" || split.PlatformAmount.String() != "1000000" {
			t.Fatalf("expected stored 9000000/1000000, got %s/%s", split.SpecialistAmount, split.PlatformAmount)
		}
	})

	t.Run("specialist only derives platform", func(t *testing.T) {
		split, err := ResolveSplit(gross, big.NewInt(8000000), nil, 85)
		if err != nil {
			t.Fatalf("ResolveSplit returned error: %v", err)
		}
		if split.PlatformAmount.String() != "2000000" {
			t.Fatalf("expected derived platform 2000000, got %s", split.PlatformAmount)
		}
	})

	t.Run("missing split recomputes", func(t *testing.T) {
		split, err := ResolveSplit(gross, nil, nil, 85)
		if err != nil {
			t.Fatalf("ResolveSplit returned error: %v", err)
		}
		if split.SpecialistAmount.String() != "8500000" {
			t.Fatalf("expected recomputed 8500000, got %s", split.SpecialistAmount)
		}
	})

	t.Run("mismatched stored split errors", func(t *testing.T) {
		if _, err := ResolveSplit(gross, big.NewInt(8500000), big.NewInt(1), 85); !errors.Is(err, ErrSplitMismatch) {
			t.Fatalf("expected ErrSplitMismatch, got %v", err)
		}
		if _, err := ResolveSplit(gross, big.NewInt(20000000), nil, 85); !errors.Is(err, ErrSplitMismatch) {
			t.Fatalf("expected ErrSplitMismatch for oversized specialist amount, got %v", err)
		}
	})
}

func grossGen() gopter.Gen {
	return gen.UInt64().Map(func(v uint64) *big.Int {
		// widen beyond 64 bits so u128-scale amounts are covered
		return new(big.Int).Mul(new(big.Int).SetUint64(v), new(big.Int).SetUint64(v%1000+1))
	})
}

func TestSplitProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("specialist + platform == gross", prop.ForAll(
		func(gross *big.Int, pct int) bool {
			split, err := SplitWithPercent(gross, pct)
			if err != nil {
				return false
			}
			return split.Total().Cmp(gross) == 0
		},
		grossGen(),
		gen.IntRange(0, 100),
	))

	properties.Property("split is deterministic", prop.ForAll(
		func(gross *big.Int) bool {
			a, errA := SplitAmount(gross)
			b, errB := SplitAmount(gross)
			if errA != nil || errB != nil {
				return false
			}
			return a.SpecialistAmount.Cmp(b.SpecialistAmount) == 0 && a.PlatformAmount.Cmp(b.PlatformAmount) == 0
		},
		grossGen(),
	))

	properties.Property("no share is negative and the platform never gets the remainder", prop.ForAll(
		func(gross *big.Int, pct int) bool {
			split, err := SplitWithPercent(gross, pct)
			if err != nil {
				return false
			}
			if split.SpecialistAmount.Sign() < 0 || split.PlatformAmount.Sign() < 0 {
				return false
			}
			// platform*100 <= gross*(100-pct)
			lhs := new(big.Int).Mul(split.PlatformAmount, big.NewInt(100))
			rhs := new(big.Int).Mul(gross, big.NewInt(int64(100-pct)))
			return lhs.Cmp(rhs) <= 0
		},
		grossGen(),
		gen.IntRange(0, 100),
	))

	properties.Property("resolving a computed split is a no-op", prop.ForAll(
		func(gross *big.Int) bool {
			computed, err := SplitAmount(gross)
			if err != nil {
				return false
			}
			resolved, err := ResolveSplit(gross, computed.SpecialistAmount, computed.PlatformAmount, 50)
			if err != nil {
				return false
			}
			return resolved.SpecialistAmount.Cmp(computed.SpecialistAmount) == 0
		},
		grossGen(),
	))

	properties.TestingRun(t)
}
