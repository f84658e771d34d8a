package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

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

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.AdminStore = (*Store)(nil)
var _ storage.PaymentConfigStore = (*Store)(nil)
var _ storage.UserAccountStore = (*Store)(nil)
var _ storage.GroupStore = (*Store)(nil)
var _ storage.PoolStore = (*Store)(nil)
var _ storage.ProposalStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the treasury tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS treasury_admin_state (
	id                SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	admin_id          TEXT NOT NULL,
	pending_admin     TEXT NOT NULL DEFAULT '',
	reviewer_id       TEXT NOT NULL,
	pending_reviewer  TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS treasury_payment_config (
	id                    SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	legacy_fee_currency   TEXT NOT NULL DEFAULT '',
	fee_collector         TEXT NOT NULL DEFAULT '',
	allowlist_initialized BOOLEAN NOT NULL DEFAULT FALSE,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS treasury_allowed_currencies (
	currency TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS treasury_user_accounts (
	owner             TEXT NOT NULL,
	salt              TEXT NOT NULL,
	custodial_account TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (owner, salt)
);

CREATE TABLE IF NOT EXISTS treasury_groups (
	id                TEXT PRIMARY KEY,
	custodial_account TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS treasury_pools (
	group_id       TEXT NOT NULL,
	pool_id        TEXT NOT NULL,
	currency       TEXT NOT NULL,
	reward_amount  BIGINT NOT NULL,
	total_users    INTEGER NOT NULL,
	claimed_users  JSONB NOT NULL DEFAULT '[]',
	holder_account TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (group_id, pool_id)
);

CREATE TABLE IF NOT EXISTS treasury_proposals (
	group_id       TEXT NOT NULL,
	dao_id         TEXT NOT NULL,
	choices        JSONB NOT NULL,
	choice_weights JSONB NOT NULL,
	votes          JSONB NOT NULL DEFAULT '[]',
	currency       TEXT NOT NULL,
	voting_from    TIMESTAMPTZ NOT NULL,
	voting_to      TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (group_id, dao_id)
);

CREATE TABLE IF NOT EXISTS treasury_balances (
	address  TEXT NOT NULL,
	currency TEXT NOT NULL,
	amount   BIGINT NOT NULL CHECK (amount >= 0),
	PRIMARY KEY (address, currency)
);

CREATE TABLE IF NOT EXISTS treasury_transfers (
	id         TEXT PRIMARY KEY,
	from_addr  TEXT NOT NULL DEFAULT '',
	to_addr    TEXT NOT NULL,
	currency   TEXT NOT NULL,
	amount     BIGINT NOT NULL,
	kind       TEXT NOT NULL,
	memo       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS treasury_transfers_from_idx ON treasury_transfers (from_addr);
CREATE INDEX IF NOT EXISTS treasury_transfers_to_idx ON treasury_transfers (to_addr);
`

// --- AdminStore -------------------------------------------------------------

func (s *Store) GetAdminState(ctx context.Context) (admin.State, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT admin_id, pending_admin, reviewer_id, pending_reviewer, created_at, updated_at
		FROM treasury_admin_state
		WHERE id = 1
	`)

	var st admin.State
	err := row.Scan(&st.Admin, &st.PendingAdmin, &st.Reviewer, &st.PendingReviewer, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return admin.State{}, fmt.Errorf("admin state: %w", storage.ErrNotFound)
	}
	if err != nil {
		return admin.State{}, err
	}
	return st, nil
}

func (s *Store) PutAdminState(ctx context.Context, st admin.State) (admin.State, error) {
	now := time.Now().UTC()
	st.UpdatedAt = now
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO treasury_admin_state (id, admin_id, pending_admin, reviewer_id, pending_reviewer, created_at, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET admin_id = $1, pending_admin = $2, reviewer_id = $3, pending_reviewer = $4, updated_at = $6
	`, st.Admin, st.PendingAdmin, st.Reviewer, st.PendingReviewer, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return admin.State{}, err
	}
	return s.GetAdminState(ctx)
}

// --- PaymentConfigStore -----------------------------------------------------

func (s *Store) GetPaymentConfig(ctx context.Context) (payment.Config, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT legacy_fee_currency, fee_collector, allowlist_initialized, created_at, updated_at
		FROM treasury_payment_config
		WHERE id = 1
	`)

	var (
		cfg       payment.Config
		legacyFee string
	)
	err := row.Scan(&legacyFee, &cfg.FeeCollector, &cfg.AllowlistInitialized, &cfg.CreatedAt, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return payment.Config{}, fmt.Errorf("payment config: %w", storage.ErrNotFound)
	}
	if err != nil {
		return payment.Config{}, err
	}
	if legacyFee != "" {
		ref, err := currency.Parse(legacyFee)
		if err != nil {
			return payment.Config{}, err
		}
		cfg.LegacyFeeCurrency = ref
	}
	return cfg, nil
}

func (s *Store) PutPaymentConfig(ctx context.Context, cfg payment.Config) (payment.Config, error) {
	now := time.Now().UTC()
	cfg.UpdatedAt = now
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}

	legacyFee := ""
	if !cfg.LegacyFeeCurrency.IsZero() {
		legacyFee = cfg.LegacyFeeCurrency.String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO treasury_payment_config (id, legacy_fee_currency, fee_collector, allowlist_initialized, created_at, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET legacy_fee_currency = $1, fee_collector = $2, allowlist_initialized = $3, updated_at = $5
	`, legacyFee, cfg.FeeCollector, cfg.AllowlistInitialized, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		return payment.Config{}, err
	}
	return s.GetPaymentConfig(ctx)
}

func (s *Store) AddAllowedCurrency(ctx context.Context, ref currency.Ref) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO treasury_allowed_currencies (currency)
		VALUES ($1)
		ON CONFLICT (currency) DO NOTHING
	`, ref.String())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("currency %s: %w", ref, storage.ErrAlreadyExists)
	}
	return nil
}

func (s *Store) RemoveAllowedCurrency(ctx context.Context, ref currency.Ref) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM treasury_allowed_currencies WHERE currency = $1
	`, ref.String())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("currency %s: %w", ref, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) IsCurrencyAllowed(ctx context.Context, ref currency.Ref) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM treasury_allowed_currencies WHERE currency = $1
	`, ref.String())

	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListAllowedCurrencies(ctx context.Context) ([]currency.Ref, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT currency FROM treasury_allowed_currencies ORDER BY currency
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []currency.Ref
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		ref, err := currency.Parse(raw)
		if err != nil {
			return nil, err
		}
		result = append(result, ref)
	}
	return result, rows.Err()
}

// --- UserAccountStore -------------------------------------------------------

func (s *Store) CreateUserAccount(ctx context.Context, acct useraccount.Account) (useraccount.Account, error) {
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO treasury_user_accounts (owner, salt, custodial_account, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner, salt) DO NOTHING
	`, acct.Owner, acct.Salt, acct.CustodialAccount, acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return useraccount.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return useraccount.Account{}, fmt.Errorf("user account %s: %w", acct.Owner, storage.ErrAlreadyExists)
	}
	return acct, nil
}

func (s *Store) GetUserAccount(ctx context.Context, owner identity.Identity, salt string) (useraccount.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT owner, salt, custodial_account, created_at, updated_at
		FROM treasury_user_accounts
		WHERE owner = $1 AND salt = $2
	`, owner, salt)

	var acct useraccount.Account
	err := row.Scan(&acct.Owner, &acct.Salt, &acct.CustodialAccount, &acct.CreatedAt, &acct.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return useraccount.Account{}, fmt.Errorf("user account %s: %w", owner, storage.ErrNotFound)
	}
	if err != nil {
		return useraccount.Account{}, err
	}
	return acct, nil
}

func (s *Store) ListUserAccounts(ctx context.Context, owner identity.Identity) ([]useraccount.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner, salt, custodial_account, created_at, updated_at
		FROM treasury_user_accounts
		WHERE owner = $1
		ORDER BY created_at, salt
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []useraccount.Account
	for rows.Next() {
		var acct useraccount.Account
		if err := rows.Scan(&acct.Owner, &acct.Salt, &acct.CustodialAccount, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, acct)
	}
	return result, rows.Err()
}

// --- GroupStore -------------------------------------------------------------

func (s *Store) CreateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	now := time.Now().UTC()
	grp.CreatedAt = now
	grp.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO treasury_groups (id, custodial_account, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, grp.ID, grp.CustodialAccount, grp.CreatedAt, grp.UpdatedAt)
	if err != nil {
		return group.Group{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return group.Group{}, fmt.Errorf("group %s: %w", grp.ID, storage.ErrAlreadyExists)
	}
	return grp, nil
}

func (s *Store) GetGroup(ctx context.Context, id string) (group.Group, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, custodial_account, created_at, updated_at
		FROM treasury_groups
		WHERE id = $1
	`, id)

	var grp group.Group
	err := row.Scan(&grp.ID, &grp.CustodialAccount, &grp.CreatedAt, &grp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return group.Group{}, fmt.Errorf("group %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return group.Group{}, err
	}
	return grp, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]group.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, custodial_account, created_at, updated_at
		FROM treasury_groups
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []group.Group
	for rows.Next() {
		var grp group.Group
		if err := rows.Scan(&grp.ID, &grp.CustodialAccount, &grp.CreatedAt, &grp.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, grp)
	}
	return result, rows.Err()
}

func (s *Store) RenameGroup(ctx context.Context, oldID, newID string) (group.Group, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return group.Group{}, err
	}
	defer tx.Rollback()

	// any record already at the destination id is evicted
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM treasury_groups WHERE id = $1
	`, newID); err != nil {
		return group.Group{}, err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE treasury_groups
		SET id = $2, updated_at = $3
		WHERE id = $1
	`, oldID, newID, time.Now().UTC())
	if err != nil {
		return group.Group{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return group.Group{}, fmt.Errorf("group %s: %w", oldID, storage.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return group.Group{}, err
	}
	return s.GetGroup(ctx, newID)
}

// --- PoolStore --------------------------------------------------------------

func (s *Store) CreatePool(ctx context.Context, p reward.Pool) (reward.Pool, error) {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	claimedJSON, err := json.Marshal(claimedOrEmpty(p.ClaimedUsers))
	if err != nil {
		return reward.Pool{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO treasury_pools (group_id, pool_id, currency, reward_amount, total_users, claimed_users, holder_account, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (group_id, pool_id) DO NOTHING
	`, p.GroupID, p.PoolID, p.Currency.String(), p.RewardAmount, p.TotalUsers, claimedJSON, p.HolderAccount, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return reward.Pool{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return reward.Pool{}, fmt.Errorf("pool %s/%s: %w", p.GroupID, p.PoolID, storage.ErrAlreadyExists)
	}
	return p, nil
}

func (s *Store) UpdatePool(ctx context.Context, p reward.Pool) (reward.Pool, error) {
	p.UpdatedAt = time.Now().UTC()

	claimedJSON, err := json.Marshal(claimedOrEmpty(p.ClaimedUsers))
	if err != nil {
		return reward.Pool{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE treasury_pools
		SET currency = $3, reward_amount = $4, total_users = $5, claimed_users = $6, holder_account = $7, updated_at = $8
		WHERE group_id = $1 AND pool_id = $2
	`, p.GroupID, p.PoolID, p.Currency.String(), p.RewardAmount, p.TotalUsers, claimedJSON, p.HolderAccount, p.UpdatedAt)
	if err != nil {
		return reward.Pool{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return reward.Pool{}, fmt.Errorf("pool %s/%s: %w", p.GroupID, p.PoolID, storage.ErrNotFound)
	}
	return s.GetPool(ctx, p.GroupID, p.PoolID)
}

func (s *Store) GetPool(ctx context.Context, groupID, poolID string) (reward.Pool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT group_id, pool_id, currency, reward_amount, total_users, claimed_users, holder_account, created_at, updated_at
		FROM treasury_pools
		WHERE group_id = $1 AND pool_id = $2
	`, groupID, poolID)

	p, err := scanPool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return reward.Pool{}, fmt.Errorf("pool %s/%s: %w", groupID, poolID, storage.ErrNotFound)
	}
	return p, err
}

func (s *Store) ListPools(ctx context.Context, groupID string) ([]reward.Pool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, pool_id, currency, reward_amount, total_users, claimed_users, holder_account, created_at, updated_at
		FROM treasury_pools
		WHERE group_id = $1
		ORDER BY pool_id
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []reward.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) SettleClaim(ctx context.Context, p reward.Pool, target identity.Address, payout int64, memo string) (ledger.Transfer, error) {
	rec := ledger.Transfer{
		ID:        uuid.NewString(),
		From:      p.HolderAccount,
		To:        target,
		Currency:  p.Currency,
		Amount:    payout,
		Kind:      ledger.KindRewardClaim,
		Memo:      memo,
		CreatedAt: time.Now().UTC(),
	}

	claimedJSON, err := json.Marshal(claimedOrEmpty(p.ClaimedUsers))
	if err != nil {
		return ledger.Transfer{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Transfer{}, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE treasury_balances
		SET amount = amount - $3
		WHERE address = $1 AND currency = $2 AND amount >= $3
	`, p.HolderAccount, p.Currency.String(), payout)
	if err != nil {
		return ledger.Transfer{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ledger.Transfer{}, fmt.Errorf("account %s needs %d of %s: %w", p.HolderAccount, payout, p.Currency, storage.ErrInsufficientFunds)
	}
	if err := creditTx(ctx, tx, target, p.Currency, payout); err != nil {
		return ledger.Transfer{}, err
	}
	if err := insertTransferTx(ctx, tx, rec); err != nil {
		return ledger.Transfer{}, err
	}

	if p.Remaining() == 0 {
		result, err = tx.ExecContext(ctx, `
			DELETE FROM treasury_pools WHERE group_id = $1 AND pool_id = $2
		`, p.GroupID, p.PoolID)
	} else {
		result, err = tx.ExecContext(ctx, `
			UPDATE treasury_pools
			SET reward_amount = $3, claimed_users = $4, updated_at = $5
			WHERE group_id = $1 AND pool_id = $2
		`, p.GroupID, p.PoolID, p.RewardAmount, claimedJSON, rec.CreatedAt)
	}
	if err != nil {
		return ledger.Transfer{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ledger.Transfer{}, fmt.Errorf("pool %s/%s: %w", p.GroupID, p.PoolID, storage.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return ledger.Transfer{}, err
	}
	return rec, nil
}

func (s *Store) DeletePool(ctx context.Context, groupID, poolID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM treasury_pools WHERE group_id = $1 AND pool_id = $2
	`, groupID, poolID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("pool %s/%s: %w", groupID, poolID, storage.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPool(row rowScanner) (reward.Pool, error) {
	var (
		p           reward.Pool
		currencyRaw string
		claimedRaw  []byte
	)
	if err := row.Scan(&p.GroupID, &p.PoolID, &currencyRaw, &p.RewardAmount, &p.TotalUsers, &claimedRaw, &p.HolderAccount, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return reward.Pool{}, err
	}

	ref, err := currency.Parse(currencyRaw)
	if err != nil {
		return reward.Pool{}, err
	}
	p.Currency = ref

	if len(claimedRaw) > 0 {
		if err := json.Unmarshal(claimedRaw, &p.ClaimedUsers); err != nil {
			return reward.Pool{}, err
		}
	}
	return p, nil
}

func claimedOrEmpty(in []identity.Identity) []identity.Identity {
	if in == nil {
		return []identity.Identity{}
	}
	return in
}

// --- ProposalStore ----------------------------------------------------------

func (s *Store) CreateProposal(ctx context.Context, p dao.Proposal) (dao.Proposal, error) {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	choicesJSON, weightsJSON, votesJSON, err := marshalProposal(p)
	if err != nil {
		return dao.Proposal{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO treasury_proposals (group_id, dao_id, choices, choice_weights, votes, currency, voting_from, voting_to, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (group_id, dao_id) DO NOTHING
	`, p.GroupID, p.DaoID, choicesJSON, weightsJSON, votesJSON, p.Currency.String(), p.VotingFrom, p.VotingTo, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return dao.Proposal{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return dao.Proposal{}, fmt.Errorf("proposal %s/%s: %w", p.GroupID, p.DaoID, storage.ErrAlreadyExists)
	}
	return p, nil
}

func (s *Store) UpdateProposal(ctx context.Context, p dao.Proposal) (dao.Proposal, error) {
	p.UpdatedAt = time.Now().UTC()

	choicesJSON, weightsJSON, votesJSON, err := marshalProposal(p)
	if err != nil {
		return dao.Proposal{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE treasury_proposals
		SET choices = $3, choice_weights = $4, votes = $5, currency = $6, voting_from = $7, voting_to = $8, updated_at = $9
		WHERE group_id = $1 AND dao_id = $2
	`, p.GroupID, p.DaoID, choicesJSON, weightsJSON, votesJSON, p.Currency.String(), p.VotingFrom, p.VotingTo, p.UpdatedAt)
	if err != nil {
		return dao.Proposal{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return dao.Proposal{}, fmt.Errorf("proposal %s/%s: %w", p.GroupID, p.DaoID, storage.ErrNotFound)
	}
	return s.GetProposal(ctx, p.GroupID, p.DaoID)
}

func (s *Store) GetProposal(ctx context.Context, groupID, daoID string) (dao.Proposal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT group_id, dao_id, choices, choice_weights, votes, currency, voting_from, voting_to, created_at, updated_at
		FROM treasury_proposals
		WHERE group_id = $1 AND dao_id = $2
	`, groupID, daoID)

	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return dao.Proposal{}, fmt.Errorf("proposal %s/%s: %w", groupID, daoID, storage.ErrNotFound)
	}
	return p, err
}

func (s *Store) ListProposals(ctx context.Context, groupID string) ([]dao.Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, dao_id, choices, choice_weights, votes, currency, voting_from, voting_to, created_at, updated_at
		FROM treasury_proposals
		WHERE group_id = $1
		ORDER BY dao_id
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []dao.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func marshalProposal(p dao.Proposal) (choices, weights, votes []byte, err error) {
	if choices, err = json.Marshal(p.Choices); err != nil {
		return nil, nil, nil, err
	}
	if weights, err = json.Marshal(p.ChoiceWeights); err != nil {
		return nil, nil, nil, err
	}
	voteList := p.Votes
	if voteList == nil {
		voteList = []dao.Vote{}
	}
	if votes, err = json.Marshal(voteList); err != nil {
		return nil, nil, nil, err
	}
	return choices, weights, votes, nil
}

func scanProposal(row rowScanner) (dao.Proposal, error) {
	var (
		p           dao.Proposal
		choicesRaw  []byte
		weightsRaw  []byte
		votesRaw    []byte
		currencyRaw string
	)
	if err := row.Scan(&p.GroupID, &p.DaoID, &choicesRaw, &weightsRaw, &votesRaw, &currencyRaw, &p.VotingFrom, &p.VotingTo, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return dao.Proposal{}, err
	}

	ref, err := currency.Parse(currencyRaw)
	if err != nil {
		return dao.Proposal{}, err
	}
	p.Currency = ref

	if err := json.Unmarshal(choicesRaw, &p.Choices); err != nil {
		return dao.Proposal{}, err
	}
	if err := json.Unmarshal(weightsRaw, &p.ChoiceWeights); err != nil {
		return dao.Proposal{}, err
	}
	if len(votesRaw) > 0 {
		if err := json.Unmarshal(votesRaw, &p.Votes); err != nil {
			return dao.Proposal{}, err
		}
	}
	return p, nil
}

// --- LedgerStore ------------------------------------------------------------

func (s *Store) Deposit(ctx context.Context, to identity.Address, ref currency.Ref, amount int64, kind ledger.TransferKind, memo string) (ledger.Transfer, error) {
	if amount <= 0 {
		return ledger.Transfer{}, fmt.Errorf("deposit amount must be positive, got %d", amount)
	}

	rec := ledger.Transfer{
		ID:        uuid.NewString(),
		To:        to,
		Currency:  ref,
		Amount:    amount,
		Kind:      kind,
		Memo:      memo,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Transfer{}, err
	}
	defer tx.Rollback()

	if err := creditTx(ctx, tx, to, ref, amount); err != nil {
		return ledger.Transfer{}, err
	}
	if err := insertTransferTx(ctx, tx, rec); err != nil {
		return ledger.Transfer{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.Transfer{}, err
	}
	return rec, nil
}

func (s *Store) Transfer(ctx context.Context, from, to identity.Address, ref currency.Ref, amount int64, kind ledger.TransferKind, memo string) (ledger.Transfer, error) {
	recs, err := s.TransferBatch(ctx, from, ref, []ledger.Leg{{To: to, Amount: amount}}, kind, memo)
	if err != nil {
		return ledger.Transfer{}, err
	}
	return recs[0], nil
}

func (s *Store) TransferBatch(ctx context.Context, from identity.Address, ref currency.Ref, legs []ledger.Leg, kind ledger.TransferKind, memo string) ([]ledger.Transfer, error) {
	var total int64
	for _, leg := range legs {
		if leg.Amount <= 0 {
			return nil, fmt.Errorf("transfer amount must be positive, got %d", leg.Amount)
		}
		total += leg.Amount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE treasury_balances
		SET amount = amount - $3
		WHERE address = $1 AND currency = $2 AND amount >= $3
	`, from, ref.String(), total)
	if err != nil {
		return nil, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, fmt.Errorf("account %s needs %d of %s: %w", from, total, ref, storage.ErrInsufficientFunds)
	}

	now := time.Now().UTC()
	recs := make([]ledger.Transfer, 0, len(legs))
	for _, leg := range legs {
		if err := creditTx(ctx, tx, leg.To, ref, leg.Amount); err != nil {
			return nil, err
		}
		rec := ledger.Transfer{
			ID:        uuid.NewString(),
			From:      from,
			To:        leg.To,
			Currency:  ref,
			Amount:    leg.Amount,
			Kind:      kind,
			Memo:      memo,
			CreatedAt: now,
		}
		if err := insertTransferTx(ctx, tx, rec); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) Balance(ctx context.Context, addr identity.Address, ref currency.Ref) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT amount FROM treasury_balances WHERE address = $1 AND currency = $2
	`, addr, ref.String())

	var amount int64
	err := row.Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return amount, nil
}

func (s *Store) ListTransfers(ctx context.Context, addr identity.Address) ([]ledger.Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_addr, to_addr, currency, amount, kind, memo, created_at
		FROM treasury_transfers
		WHERE from_addr = $1 OR to_addr = $1
		ORDER BY created_at, id
	`, addr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Transfer
	for rows.Next() {
		var (
			rec         ledger.Transfer
			currencyRaw string
		)
		if err := rows.Scan(&rec.ID, &rec.From, &rec.To, &currencyRaw, &rec.Amount, &rec.Kind, &rec.Memo, &rec.CreatedAt); err != nil {
			return nil, err
		}
		ref, err := currency.Parse(currencyRaw)
		if err != nil {
			return nil, err
		}
		rec.Currency = ref
		result = append(result, rec)
	}
	return result, rows.Err()
}

func creditTx(ctx context.Context, tx *sql.Tx, to identity.Address, ref currency.Ref, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO treasury_balances (address, currency, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (address, currency) DO UPDATE
		SET amount = treasury_balances.amount + $3
	`, to, ref.String(), amount)
	return err
}

func insertTransferTx(ctx context.Context, tx *sql.Tx, rec ledger.Transfer) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO treasury_transfers (id, from_addr, to_addr, currency, amount, kind, memo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.From, rec.To, rec.Currency.String(), rec.Amount, rec.Kind, rec.Memo, rec.CreatedAt)
	return err
}
