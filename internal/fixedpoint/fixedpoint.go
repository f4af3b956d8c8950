package fixedpoint

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"

	"TradeLedger/internal/fault"
)

// DecimalConfig defines fixed-point precision for a value class.
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// AmountConfig covers notionals, transfer amounts, and termination values.
	AmountConfig = DecimalConfig{DecimalPrecision: 2, Scale: 100} // 0.01

	// RateConfig covers observed rates and accrual fractions.
	// 5.25% is stored as 52_500_000.
	RateConfig = DecimalConfig{DecimalPrecision: 9, Scale: 1_000_000_000} // 1e-9
)

// Pooled big.Int for 128-bit intermediate products.
var intPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

// MulDiv computes a*b/denominator using a 128-bit intermediate, truncating
// toward zero. Used when crossing between rate and amount scales.
func MulDiv(a, b, denominator int64) int64 {
	prod := intPool.Get().(*big.Int)
	prod.Mul(big.NewInt(a), big.NewInt(b))
	prod.Quo(prod, big.NewInt(denominator))
	result := prod.Int64()
	prod.SetInt64(0)
	intPool.Put(prod)
	return result
}

// Parse converts a decimal string ("131250.00", "0.0525", "-12.5") to a
// scaled int64 under cfg. Excess fractional digits are rejected, not rounded:
// the core stores caller-supplied values exactly or not at all.
func Parse(s string, cfg DecimalConfig) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty decimal", fault.ErrInvalidInput)
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("%w: malformed decimal %q", fault.ErrInvalidInput, s)
	}
	if len(frac) > cfg.DecimalPrecision {
		return 0, fmt.Errorf("%w: %q exceeds %d decimal places",
			fault.ErrInvalidInput, s, cfg.DecimalPrecision)
	}

	var v int64
	for _, c := range whole {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: malformed decimal %q", fault.ErrInvalidInput, s)
		}
		if v > (math.MaxInt64-9)/10 {
			return 0, fmt.Errorf("%w: %q overflows %d-place fixed point",
				fault.ErrInvalidInput, s, cfg.DecimalPrecision)
		}
		v = v*10 + int64(c-'0')
	}
	// Leave headroom for a full fractional part after scaling.
	if v > (math.MaxInt64-(cfg.Scale-1))/cfg.Scale {
		return 0, fmt.Errorf("%w: %q overflows %d-place fixed point",
			fault.ErrInvalidInput, s, cfg.DecimalPrecision)
	}
	v *= cfg.Scale

	fracScale := cfg.Scale
	for _, c := range frac {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: malformed decimal %q", fault.ErrInvalidInput, s)
		}
		fracScale /= 10
		v += int64(c-'0') * fracScale
	}

	if neg {
		v = -v
	}
	return v, nil
}

// Format renders a scaled int64 back to its decimal string form.
func Format(v int64, cfg DecimalConfig) string {
	neg := v < 0
	if neg {
		v = -v
	}
	whole := v / cfg.Scale
	frac := v % cfg.Scale

	out := fmt.Sprintf("%d.%0*d", whole, cfg.DecimalPrecision, frac)
	if neg {
		out = "-" + out
	}
	return out
}
