package analysis

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IsAddress reports whether s is a 20-byte hex address with or without 0x.
func IsAddress(s string) bool {
	return common.IsHexAddress(strings.TrimSpace(s))
}

// Checksum returns the EIP-55 form of addr so that sources supplying the
// same account in different casings share one map key. Strings that are not
// hex addresses are returned trimmed but otherwise untouched.
func Checksum(addr string) string {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return addr
	}
	return common.HexToAddress(addr).Hex()
}

// ChecksumAll checksums every address, dropping duplicates while keeping
// first-seen order.
func ChecksumAll(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	seen := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		c := Checksum(a)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
