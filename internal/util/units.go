package util

import (
	"fmt"
	"math/big"
	"strings"
)

// TokenDecimals is the number of fractional digits of every on-chain amount.
const TokenDecimals = 18

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)

// ParseUnits converts a decimal string such as "1500" or "100.50" into base
// units with TokenDecimals fractional digits. More fractional digits than that,
// signs other than a leading '-', exponents and separators are rejected.
func ParseUnits(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}

	negative := false
	if s[0] == '-' {
		negative = true
		s = s[1:]
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if hasDot && frac == "" {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if len(frac) > TokenDecimals {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, TokenDecimals)
	}

	digits := whole + frac + strings.Repeat("0", TokenDecimals-len(frac))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if negative {
		v.Neg(v)
	}
	return v, nil
}

// ParsePositiveUnits is ParseUnits restricted to amounts greater than zero.
func ParsePositiveUnits(s string) (*big.Int, error) {
	v, err := ParseUnits(s)
	if err != nil {
		return nil, err
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return v, nil
}

// FormatUnits renders base units as a decimal string without trailing
// fractional zeros ("1500", "0.2", "75.5").
func FormatUnits(v *big.Int) string {
	if v == nil {
		return "0"
	}
	abs := new(big.Int).Abs(v)
	q, r := new(big.Int).QuoRem(abs, unit, new(big.Int))

	out := q.String()
	if r.Sign() != 0 {
		frac := fmt.Sprintf("%0*s", TokenDecimals, r.String())
		out += "." + strings.TrimRight(frac, "0")
	}
	if v.Sign() < 0 {
		out = "-" + out
	}
	return out
}

// Percent returns v * pct / 100, truncating toward zero.
func Percent(v *big.Int, pct int64) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(pct))
	return out.Quo(out, big.NewInt(100))
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
