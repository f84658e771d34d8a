// Package address derives the program-controlled account addresses used by
// the treasury engine. Custodial and holder accounts are pure functions of
// their scope and inputs, so re-deriving an address always yields the value
// recorded at registration time.
package address

import (
	"crypto/sha256"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"
)

// Scope separates derivation namespaces so a user account and a group account
// built from the same seed bytes can never collide.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeGroup  Scope = "group"
	ScopeHolder Scope = "holder"
)

// prefix distinguishes treasury addresses from raw identities when both
// appear as ledger account keys.
const prefix = "tr1"

// Derive returns the deterministic address for the given scope and parts.
// The same inputs always produce the same address.
func Derive(scope Scope, parts ...string) string {
	h := sha3.New256()
	h.Write([]byte("treasury/"))
	h.Write([]byte(scope))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	digest := h.Sum(nil)
	body := digest[:20]

	// 4-byte checksum so truncated or mistyped addresses fail Valid.
	check := sha256.Sum256(body)
	payload := append(append([]byte(nil), body...), check[:4]...)

	return prefix + base58.Encode(payload)
}

// Valid reports whether s parses as a derived treasury address with an intact
// checksum. Plain wallet identities fail this check.
func Valid(s string) bool {
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return false
	}
	payload, err := base58.Decode(s[len(prefix):])
	if err != nil || len(payload) != 24 {
		return false
	}
	check := sha256.Sum256(payload[:20])
	for i := 0; i < 4; i++ {
		if payload[20+i] != check[i] {
			return false
		}
	}
	return true
}
