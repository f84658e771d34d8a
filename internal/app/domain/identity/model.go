// Package identity defines the caller and account key types shared by every
// treasury domain.
package identity

// Identity names an external signer. Transactions arrive already
// authenticated, so an Identity value is trusted to be the sender it claims.
type Identity string

// Address keys a ledger account. An identity's own wallet account uses the
// identity string directly; custodial and holder accounts use derived
// addresses (see pkg/address).
type Address string

// Wallet returns the identity's personal wallet address.
func (id Identity) Wallet() Address {
	return Address(id)
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id == ""
}
