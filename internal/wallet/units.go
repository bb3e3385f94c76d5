package wallet

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

var (
	weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	addressRe   = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// ParseEther converts a decimal ether amount such as "0.0005" to wei.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	r, ok := new(big.Rat).SetString(s)
	if !ok || strings.ContainsAny(s, "eE/") {
		return nil, fmt.Errorf("invalid ether amount %q", s)
	}
	if r.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %q", s)
	}
	wei := new(big.Rat).Mul(r, new(big.Rat).SetInt(weiPerEther))
	if !wei.IsInt() {
		return nil, fmt.Errorf("amount %q has more than 18 decimals", s)
	}
	return wei.Num(), nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	s := new(big.Rat).SetFrac(wei, weiPerEther).FloatString(18)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// ToHex renders n as a 0x-prefixed hex quantity.
func ToHex(n *big.Int) string {
	return "0x" + n.Text(16)
}

// ValidAddress reports whether s looks like a 20-byte hex address.
func ValidAddress(s string) bool {
	return addressRe.MatchString(s)
}
