// Package payment holds engine-wide payment configuration.
package payment

import (
	"time"

	"github.com/custodia-network/treasury/internal/app/domain/currency"
	"github.com/custodia-network/treasury/internal/app/domain/identity"
)

// Config is the singleton payment configuration. LegacyFeeCurrency is the
// pre-allowlist fee currency kept for compatibility; once the allowlist is
// initialized, fee validation consults the allowlist instead.
type Config struct {
	LegacyFeeCurrency    currency.Ref
	FeeCollector         identity.Address
	AllowlistInitialized bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
