// Package currency defines the currency reference type used for all balances
// and payments.
package currency

import "fmt"

// Kind distinguishes the two on-chain currency representations.
type Kind string

const (
	// KindCoin references a native coin by its type tag.
	KindCoin Kind = "coin"
	// KindAsset references a fungible asset by its object address.
	KindAsset Kind = "asset"
)

// Ref identifies a currency. The zero value is invalid. Ref is comparable and
// safe to use as a map key.
type Ref struct {
	Kind Kind
	Code string
}

// Coin builds a native-coin reference from a type tag.
func Coin(typeTag string) Ref {
	return Ref{Kind: KindCoin, Code: typeTag}
}

// Asset builds a fungible-asset reference from an object address.
func Asset(addr string) Ref {
	return Ref{Kind: KindAsset, Code: addr}
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool {
	return r.Kind == "" && r.Code == ""
}

// String renders the reference as kind:code for logs and storage keys.
func (r Ref) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.Code)
}

// Parse rebuilds a Ref from its String form. It is the inverse of String for
// valid references.
func Parse(s string) (Ref, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			kind := Kind(s[:i])
			if kind != KindCoin && kind != KindAsset {
				return Ref{}, fmt.Errorf("unknown currency kind %q", s[:i])
			}
			if i+1 >= len(s) {
				return Ref{}, fmt.Errorf("currency code missing in %q", s)
			}
			return Ref{Kind: kind, Code: s[i+1:]}, nil
		}
	}
	return Ref{}, fmt.Errorf("malformed currency reference %q", s)
}
