package address

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveIsDeterministic(t *testing.T) {
	a := Derive(ScopeUser, "alice", "salt-1")
	b := Derive(ScopeUser, "alice", "salt-1")
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "tr1"))
}

func TestDeriveSeparatesInputs(t *testing.T) {
	base := Derive(ScopeUser, "alice", "salt-1")

	assert.NotEqual(t, base, Derive(ScopeUser, "alice", "salt-2"))
	assert.NotEqual(t, base, Derive(ScopeUser, "bob", "salt-1"))
	assert.NotEqual(t, base, Derive(ScopeGroup, "alice", "salt-1"))

	// part boundaries matter: ("ab","c") must not equal ("a","bc")
	assert.NotEqual(t, Derive(ScopeUser, "ab", "c"), Derive(ScopeUser, "a", "bc"))
}

func TestValid(t *testing.T) {
	addr := Derive(ScopeHolder, "g1", "p1")
	assert.True(t, Valid(addr))

	assert.False(t, Valid(""))
	assert.False(t, Valid("tr1"))
	assert.False(t, Valid("alice-wallet"))
	assert.False(t, Valid(addr[:len(addr)-2]))

	// flip a body character to break the checksum
	corrupted := []byte(addr)
	if corrupted[5] == 'x' {
		corrupted[5] = 'y'
	} else {
		corrupted[5] = 'x'
	}
	assert.False(t, Valid(string(corrupted)))
}
