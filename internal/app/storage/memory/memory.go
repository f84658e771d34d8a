package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-network/treasury/internal/app/domain/admin"
	"github.com/custodia-network/treasury/internal/app/domain/currency"
	"github.com/custodia-network/treasury/internal/app/domain/dao"
	"github.com/custodia-network/treasury/internal/app/domain/group"
	"github.com/custodia-network/treasury/internal/app/domain/identity"
	"github.com/custodia-network/treasury/internal/app/domain/ledger"
	"github.com/custodia-network/treasury/internal/app/domain/payment"
	"github.com/custodia-network/treasury/internal/app/domain/reward"
	"github.com/custodia-network/treasury/internal/app/domain/useraccount"
	"github.com/custodia-network/treasury/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	adminState    admin.State
	adminStateSet bool

	paymentConfig     payment.Config
	paymentConfigSet  bool
	allowedCurrencies map[currency.Ref]struct{}

	userAccounts map[string]useraccount.Account
	groups       map[string]group.Group
	pools        map[string]reward.Pool
	proposals    map[string]dao.Proposal

	balances  map[string]int64
	transfers []ledger.Transfer
}

var _ storage.AdminStore = (*Store)(nil)
var _ storage.PaymentConfigStore = (*Store)(nil)
var _ storage.UserAccountStore = (*Store)(nil)
var _ storage.GroupStore = (*Store)(nil)
var _ storage.PoolStore = (*Store)(nil)
var _ storage.ProposalStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:            1,
		allowedCurrencies: make(map[currency.Ref]struct{}),
		userAccounts:      make(map[string]useraccount.Account),
		groups:            make(map[string]group.Group),
		pools:             make(map[string]reward.Pool),
		proposals:         make(map[string]dao.Proposal),
		balances:          make(map[string]int64),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func userKey(owner identity.Identity, salt string) string {
	return string(owner) + "\x00" + salt
}

func poolKey(groupID, poolID string) string {
	return groupID + "\x00" + poolID
}

func proposalKey(groupID, daoID string) string {
	return groupID + "\x00" + daoID
}

func balanceKey(addr identity.Address, ref currency.Ref) string {
	return string(addr) + "\x00" + ref.String()
}

// AdminStore implementation ---------------------------------------------------

func (s *Store) GetAdminState(_ context.Context) (admin.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.adminStateSet {
		return admin.State{}, fmt.Errorf("admin state: %w", storage.ErrNotFound)
	}
	return s.adminState, nil
}

func (s *Store) PutAdminState(_ context.Context, st admin.State) (admin.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if s.adminStateSet {
		st.CreatedAt = s.adminState.CreatedAt
	} else {
		st.CreatedAt = now
	}
	st.UpdatedAt = now

	s.adminState = st
	s.adminStateSet = true
	return st, nil
}

// PaymentConfigStore implementation -------------------------------------------

func (s *Store) GetPaymentConfig(_ context.Context) (payment.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.paymentConfigSet {
		return payment.Config{}, fmt.Errorf("payment config: %w", storage.ErrNotFound)
	}
	return s.paymentConfig, nil
}

func (s *Store) PutPaymentConfig(_ context.Context, cfg payment.Config) (payment.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if s.paymentConfigSet {
		cfg.CreatedAt = s.paymentConfig.CreatedAt
	} else {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	s.paymentConfig = cfg
	s.paymentConfigSet = true
	return cfg, nil
}

func (s *Store) AddAllowedCurrency(_ context.Context, ref currency.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.allowedCurrencies[ref]; ok {
		return fmt.Errorf("currency %s: %w", ref, storage.ErrAlreadyExists)
	}
	s.allowedCurrencies[ref] = struct{}{}
	return nil
}

func (s *Store) RemoveAllowedCurrency(_ context.Context, ref currency.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.allowedCurrencies[ref]; !ok {
		return fmt.Errorf("currency %s: %w", ref, storage.ErrNotFound)
	}
	delete(s.allowedCurrencies, ref)
	return nil
}

func (s *Store) IsCurrencyAllowed(_ context.Context, ref currency.Ref) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.allowedCurrencies[ref]
	return ok, nil
}

func (s *Store) ListAllowedCurrencies(_ context.Context) ([]currency.Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]currency.Ref, 0, len(s.allowedCurrencies))
	for ref := range s.allowedCurrencies {
		result = append(result, ref)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].String() < result[j].String() })
	return result, nil
}

// UserAccountStore implementation ---------------------------------------------

func (s *Store) CreateUserAccount(_ context.Context, acct useraccount.Account) (useraccount.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey(acct.Owner, acct.Salt)
	if _, exists := s.userAccounts[key]; exists {
		return useraccount.Account{}, fmt.Errorf("user account %s: %w", acct.Owner, storage.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	s.userAccounts[key] = acct
	return acct, nil
}

func (s *Store) GetUserAccount(_ context.Context, owner identity.Identity, salt string) (useraccount.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.userAccounts[userKey(owner, salt)]
	if !ok {
		return useraccount.Account{}, fmt.Errorf("user account %s: %w", owner, storage.ErrNotFound)
	}
	return acct, nil
}

func (s *Store) ListUserAccounts(_ context.Context, owner identity.Identity) ([]useraccount.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]useraccount.Account, 0)
	for _, acct := range s.userAccounts {
		if acct.Owner == owner {
			result = append(result, acct)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].Salt < result[j].Salt
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// GroupStore implementation ---------------------------------------------------

func (s *Store) CreateGroup(_ context.Context, grp group.Group) (group.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[grp.ID]; exists {
		return group.Group{}, fmt.Errorf("group %s: %w", grp.ID, storage.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	grp.CreatedAt = now
	grp.UpdatedAt = now

	s.groups[grp.ID] = grp
	return grp, nil
}

func (s *Store) GetGroup(_ context.Context, id string) (group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grp, ok := s.groups[id]
	if !ok {
		return group.Group{}, fmt.Errorf("group %s: %w", id, storage.ErrNotFound)
	}
	return grp, nil
}

func (s *Store) ListGroups(_ context.Context) ([]group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]group.Group, 0, len(s.groups))
	for _, grp := range s.groups {
		result = append(result, grp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) RenameGroup(_ context.Context, oldID, newID string) (group.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grp, ok := s.groups[oldID]
	if !ok {
		return group.Group{}, fmt.Errorf("group %s: %w", oldID, storage.ErrNotFound)
	}

	delete(s.groups, oldID)
	grp.ID = newID
	grp.UpdatedAt = time.Now().UTC()
	s.groups[newID] = grp
	return grp, nil
}

// PoolStore implementation ----------------------------------------------------

func (s *Store) CreatePool(_ context.Context, p reward.Pool) (reward.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := poolKey(p.GroupID, p.PoolID)
	if _, exists := s.pools[key]; exists {
		return reward.Pool{}, fmt.Errorf("pool %s/%s: %w", p.GroupID, p.PoolID, storage.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.ClaimedUsers = cloneIdentities(p.ClaimedUsers)

	s.pools[key] = p
	return clonePool(p), nil
}

func (s *Store) UpdatePool(_ context.Context, p reward.Pool) (reward.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := poolKey(p.GroupID, p.PoolID)
	original, ok := s.pools[key]
	if !ok {
		return reward.Pool{}, fmt.Errorf("pool %s/%s: %w", p.GroupID, p.PoolID, storage.ErrNotFound)
	}

	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	p.ClaimedUsers = cloneIdentities(p.ClaimedUsers)

	s.pools[key] = p
	return clonePool(p), nil
}

func (s *Store) GetPool(_ context.Context, groupID, poolID string) (reward.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[poolKey(groupID, poolID)]
	if !ok {
		return reward.Pool{}, fmt.Errorf("pool %s/%s: %w", groupID, poolID, storage.ErrNotFound)
	}
	return clonePool(p), nil
}

func (s *Store) ListPools(_ context.Context, groupID string) ([]reward.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]reward.Pool, 0)
	for _, p := range s.pools {
		if p.GroupID == groupID {
			result = append(result, clonePool(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PoolID < result[j].PoolID })
	return result, nil
}

func (s *Store) SettleClaim(_ context.Context, p reward.Pool, target identity.Address, payout int64, memo string) (ledger.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := poolKey(p.GroupID, p.PoolID)
	original, ok := s.pools[key]
	if !ok {
		return ledger.Transfer{}, fmt.Errorf("pool %s/%s: %w", p.GroupID, p.PoolID, storage.ErrNotFound)
	}

	// transferLocked validates before mutating, so a failed payout leaves the
	// pool record untouched as well
	recs, err := s.transferLocked(p.HolderAccount, p.Currency, []ledger.Leg{{To: target, Amount: payout}}, ledger.KindRewardClaim, memo)
	if err != nil {
		return ledger.Transfer{}, err
	}

	if p.Remaining() == 0 {
		delete(s.pools, key)
	} else {
		p.CreatedAt = original.CreatedAt
		p.UpdatedAt = time.Now().UTC()
		p.ClaimedUsers = cloneIdentities(p.ClaimedUsers)
		s.pools[key] = p
	}
	return recs[0], nil
}

func (s *Store) DeletePool(_ context.Context, groupID, poolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := poolKey(groupID, poolID)
	if _, ok := s.pools[key]; !ok {
		return fmt.Errorf("pool %s/%s: %w", groupID, poolID, storage.ErrNotFound)
	}
	delete(s.pools, key)
	return nil
}

// ProposalStore implementation ------------------------------------------------

func (s *Store) CreateProposal(_ context.Context, p dao.Proposal) (dao.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := proposalKey(p.GroupID, p.DaoID)
	if _, exists := s.proposals[key]; exists {
		return dao.Proposal{}, fmt.Errorf("proposal %s/%s: %w", p.GroupID, p.DaoID, storage.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	s.proposals[key] = cloneProposal(p)
	return cloneProposal(p), nil
}

func (s *Store) UpdateProposal(_ context.Context, p dao.Proposal) (dao.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := proposalKey(p.GroupID, p.DaoID)
	original, ok := s.proposals[key]
	if !ok {
		return dao.Proposal{}, fmt.Errorf("proposal %s/%s: %w", p.GroupID, p.DaoID, storage.ErrNotFound)
	}

	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	s.proposals[key] = cloneProposal(p)
	return cloneProposal(p), nil
}

func (s *Store) GetProposal(_ context.Context, groupID, daoID string) (dao.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[proposalKey(groupID, daoID)]
	if !ok {
		return dao.Proposal{}, fmt.Errorf("proposal %s/%s: %w", groupID, daoID, storage.ErrNotFound)
	}
	return cloneProposal(p), nil
}

func (s *Store) ListProposals(_ context.Context, groupID string) ([]dao.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]dao.Proposal, 0)
	for _, p := range s.proposals {
		if p.GroupID == groupID {
			result = append(result, cloneProposal(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DaoID < result[j].DaoID })
	return result, nil
}

// LedgerStore implementation --------------------------------------------------

func (s *Store) Deposit(_ context.Context, to identity.Address, ref currency.Ref, amount int64, kind ledger.TransferKind, memo string) (ledger.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount <= 0 {
		return ledger.Transfer{}, fmt.Errorf("deposit amount must be positive, got %d", amount)
	}

	s.balances[balanceKey(to, ref)] += amount
	rec := ledger.Transfer{
		ID:        s.nextIDLocked(),
		To:        to,
		Currency:  ref,
		Amount:    amount,
		Kind:      kind,
		Memo:      memo,
		CreatedAt: time.Now().UTC(),
	}
	s.transfers = append(s.transfers, rec)
	return rec, nil
}

func (s *Store) Transfer(_ context.Context, from, to identity.Address, ref currency.Ref, amount int64, kind ledger.TransferKind, memo string) (ledger.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.transferLocked(from, ref, []ledger.Leg{{To: to, Amount: amount}}, kind, memo)
	if err != nil {
		return ledger.Transfer{}, err
	}
	return recs[0], nil
}

func (s *Store) TransferBatch(_ context.Context, from identity.Address, ref currency.Ref, legs []ledger.Leg, kind ledger.TransferKind, memo string) ([]ledger.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transferLocked(from, ref, legs, kind, memo)
}

func (s *Store) transferLocked(from identity.Address, ref currency.Ref, legs []ledger.Leg, kind ledger.TransferKind, memo string) ([]ledger.Transfer, error) {
	var total int64
	for _, leg := range legs {
		if leg.Amount <= 0 {
			return nil, fmt.Errorf("transfer amount must be positive, got %d", leg.Amount)
		}
		total += leg.Amount
	}

	fromKey := balanceKey(from, ref)
	if s.balances[fromKey] < total {
		return nil, fmt.Errorf("account %s has %d of %s, need %d: %w",
			from, s.balances[fromKey], ref, total, storage.ErrInsufficientFunds)
	}

	now := time.Now().UTC()
	s.balances[fromKey] -= total
	recs := make([]ledger.Transfer, 0, len(legs))
	for _, leg := range legs {
		s.balances[balanceKey(leg.To, ref)] += leg.Amount
		recs = append(recs, ledger.Transfer{
			ID:        s.nextIDLocked(),
			From:      from,
			To:        leg.To,
			Currency:  ref,
			Amount:    leg.Amount,
			Kind:      kind,
			Memo:      memo,
			CreatedAt: now,
		})
	}
	s.transfers = append(s.transfers, recs...)
	return recs, nil
}

func (s *Store) Balance(_ context.Context, addr identity.Address, ref currency.Ref) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.balances[balanceKey(addr, ref)], nil
}

func (s *Store) ListTransfers(_ context.Context, addr identity.Address) ([]ledger.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ledger.Transfer, 0)
	for _, rec := range s.transfers {
		if rec.From == addr || rec.To == addr {
			result = append(result, rec)
		}
	}
	return result, nil
}

// clone helpers ---------------------------------------------------------------

func cloneIdentities(in []identity.Identity) []identity.Identity {
	if in == nil {
		return nil
	}
	out := make([]identity.Identity, len(in))
	copy(out, in)
	return out
}

func clonePool(p reward.Pool) reward.Pool {
	p.ClaimedUsers = cloneIdentities(p.ClaimedUsers)
	return p
}

func cloneProposal(p dao.Proposal) dao.Proposal {
	if p.Choices != nil {
		choices := make([]string, len(p.Choices))
		copy(choices, p.Choices)
		p.Choices = choices
	}
	if p.ChoiceWeights != nil {
		weights := make([]int64, len(p.ChoiceWeights))
		copy(weights, p.ChoiceWeights)
		p.ChoiceWeights = weights
	}
	if p.Votes != nil {
		votes := make([]dao.Vote, len(p.Votes))
		copy(votes, p.Votes)
		p.Votes = votes
	}
	return p
}
