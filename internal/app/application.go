package app

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/custodia-network/treasury/internal/app/domain/identity"
	"github.com/custodia-network/treasury/internal/app/events"
	"github.com/custodia-network/treasury/internal/app/services/adminregistry"
	"github.com/custodia-network/treasury/internal/app/services/allowlist"
	daosvc "github.com/custodia-network/treasury/internal/app/services/dao"
	"github.com/custodia-network/treasury/internal/app/services/groups"
	"github.com/custodia-network/treasury/internal/app/services/payments"
	"github.com/custodia-network/treasury/internal/app/services/random"
	"github.com/custodia-network/treasury/internal/app/services/rewards"
	"github.com/custodia-network/treasury/internal/app/services/useraccounts"
	"github.com/custodia-network/treasury/internal/app/storage"
	"github.com/custodia-network/treasury/internal/app/storage/memory"
	"github.com/custodia-network/treasury/internal/app/system"
	"github.com/custodia-network/treasury/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to a
// shared in-memory implementation.
type Stores struct {
	Admin         storage.AdminStore
	PaymentConfig storage.PaymentConfigStore
	UserAccounts  storage.UserAccountStore
	Groups        storage.GroupStore
	Pools         storage.PoolStore
	Proposals     storage.ProposalStore
	Ledger        storage.LedgerStore
}

// Options carries optional composition inputs.
type Options struct {
	// Owner is recorded as both admin and reviewer on first start. Ignored
	// when the registry is already initialized.
	Owner identity.Identity

	Bus    events.Bus
	Clock  clockwork.Clock
	Beacon *random.Beacon
}

// Application ties the treasury services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Bus    events.Bus
	Beacon *random.Beacon

	Admins       *adminregistry.Service
	Allowlist    *allowlist.Service
	UserAccounts *useraccounts.Service
	Payments     *payments.Service
	Groups       *groups.Service
	Rewards      *rewards.Service
	DAO          *daosvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Admin == nil {
		stores.Admin = mem
	}
	if stores.PaymentConfig == nil {
		stores.PaymentConfig = mem
	}
	if stores.UserAccounts == nil {
		stores.UserAccounts = mem
	}
	if stores.Groups == nil {
		stores.Groups = mem
	}
	if stores.Pools == nil {
		stores.Pools = mem
	}
	if stores.Proposals == nil {
		stores.Proposals = mem
	}
	if stores.Ledger == nil {
		stores.Ledger = mem
	}

	bus := opts.Bus
	if bus == nil {
		bus = events.NewRingBus(0)
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	beacon := opts.Beacon
	if beacon == nil {
		var err error
		beacon, err = random.NewBeacon()
		if err != nil {
			return nil, fmt.Errorf("create randomness beacon: %w", err)
		}
	}

	manager := system.NewManager()

	adminService := adminregistry.New(stores.Admin, bus, log)
	allowlistService := allowlist.New(stores.PaymentConfig, adminService, bus, log)
	accountService := useraccounts.New(stores.UserAccounts, stores.Ledger, stores.PaymentConfig, adminService, bus, log)
	paymentService := payments.New(stores.Ledger, stores.PaymentConfig, adminService, accountService, bus, log)
	groupService := groups.New(stores.Groups, stores.Ledger, adminService, bus, log)
	rewardService := rewards.New(stores.Pools, stores.Ledger, adminService, groupService, accountService, beacon, clock, bus, log)
	daoService := daosvc.New(stores.Proposals, stores.Ledger, adminService, groupService, accountService, clock, bus, log)

	if !opts.Owner.IsZero() {
		err := adminService.Init(context.Background(), opts.Owner)
		if err != nil && err != adminregistry.ErrAlreadyInitialized {
			return nil, fmt.Errorf("initialize admin registry: %w", err)
		}
	}

	for _, name := range []string{"adminregistry", "allowlist", "useraccounts", "payments", "groups", "rewards", "dao"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager:      manager,
		log:          log,
		Bus:          bus,
		Beacon:       beacon,
		Admins:       adminService,
		Allowlist:    allowlistService,
		UserAccounts: accountService,
		Payments:     paymentService,
		Groups:       groupService,
		Rewards:      rewardService,
		DAO:          daoService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
