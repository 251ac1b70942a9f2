package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qupredict/qupredict/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// Create inserts a new bet.
func (s *BetStore) Create(ctx context.Context, b domain.Bet) error {
	const query = `
		INSERT INTO bets (
			id, escrow_id, market_id, option_index, slots,
			payout_address, escrow_address, expected_amount_qu,
			deposit_amount_qu, deposit_tx_id, join_bet_tx_id,
			payout_amount_qu, sweep_tx_id, status,
			expires_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12, $13, $14,
			$15, $16, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.EscrowID, b.MarketID, b.Option, b.Slots,
		b.PayoutAddress, b.EscrowAddress, b.ExpectedAmountQu,
		b.DepositAmountQu, b.DepositTxID, b.JoinBetTxID,
		b.PayoutAmountQu, b.SweepTxID, string(b.Status),
		b.ExpiresAt, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create bet %s: %w", b.ID, err)
	}
	return nil
}

const betCols = `id, escrow_id, market_id, option_index, slots,
	payout_address, escrow_address, expected_amount_qu,
	deposit_amount_qu, deposit_tx_id, join_bet_tx_id,
	payout_amount_qu, sweep_tx_id, status,
	expires_at, created_at, updated_at`

func scanBet(row pgx.Row) (domain.Bet, error) {
	var b domain.Bet
	var status string
	err := row.Scan(
		&b.ID, &b.EscrowID, &b.MarketID, &b.Option, &b.Slots,
		&b.PayoutAddress, &b.EscrowAddress, &b.ExpectedAmountQu,
		&b.DepositAmountQu, &b.DepositTxID, &b.JoinBetTxID,
		&b.PayoutAmountQu, &b.SweepTxID, &status,
		&b.ExpiresAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return domain.Bet{}, err
	}
	b.Status = domain.BetStatus(status)
	return b, nil
}

func scanBetRows(rows pgx.Rows) ([]domain.Bet, error) {
	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// GetByID retrieves a single bet by its bet ID.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betCols+` FROM bets WHERE id = $1`, id)
	b, err := scanBet(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

// GetByEscrowID retrieves a single bet by its escrow ID.
func (s *BetStore) GetByEscrowID(ctx context.Context, escrowID string) (domain.Bet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betCols+` FROM bets WHERE escrow_id = $1`, escrowID)
	b, err := scanBet(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet by escrow %s: %w", escrowID, err)
	}
	return b, nil
}

// ListByMarket returns bets on a market with pagination.
func (s *BetStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets WHERE market_id = $1`
	args := []any{marketID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets by market: %w", err)
	}
	defer rows.Close()

	bets, err := scanBetRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan bets by market: %w", err)
	}
	return bets, nil
}

// ListByAddress returns bets paying out to the given address.
func (s *BetStore) ListByAddress(ctx context.Context, payoutAddress string, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets WHERE payout_address = $1 ORDER BY created_at DESC`
	args := []any{payoutAddress}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets by address: %w", err)
	}
	defer rows.Close()

	bets, err := scanBetRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan bets by address: %w", err)
	}
	return bets, nil
}

// ListLive returns every non-terminal bet, oldest first, for the engine's
// reconcile pass.
func (s *BetStore) ListLive(ctx context.Context) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+betCols+` FROM bets
		WHERE status IN ('awaiting_deposit', 'deposit_detected', 'joining_sc', 'active_in_sc', 'won_awaiting_sweep')
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list live bets: %w", err)
	}
	defer rows.Close()

	bets, err := scanBetRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan live bets: %w", err)
	}
	return bets, nil
}

// ListSettledBefore returns terminal bets last updated before the cutoff,
// oldest first, for archival.
func (s *BetStore) ListSettledBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+betCols+` FROM bets
		WHERE status IN ('lost', 'swept', 'completed', 'expired', 'refunded', 'failed')
		  AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled bets: %w", err)
	}
	defer rows.Close()

	bets, err := scanBetRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settled bets: %w", err)
	}
	return bets, nil
}

// Advance moves a bet from one status to the next and applies upd in the
// same write. The WHERE guard on the current status makes the transition
// optimistic: a writer holding a stale view matches no rows and gets
// ErrStaleTransition, so a bet can never move backwards.
func (s *BetStore) Advance(ctx context.Context, id string, from, to domain.BetStatus, upd domain.BetUpdate) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("postgres: advance bet %s: cannot transition %s to %s: %w",
			id, from, to, domain.ErrStaleTransition)
	}

	const query = `
		UPDATE bets SET
			status            = $3,
			deposit_amount_qu = COALESCE(NULLIF($4::bigint, 0), deposit_amount_qu),
			deposit_tx_id     = COALESCE(NULLIF($5, ''), deposit_tx_id),
			join_bet_tx_id    = COALESCE(NULLIF($6, ''), join_bet_tx_id),
			payout_amount_qu  = COALESCE(NULLIF($7::bigint, 0), payout_amount_qu),
			sweep_tx_id       = COALESCE(NULLIF($8, ''), sweep_tx_id),
			updated_at        = NOW()
		WHERE id = $1 AND status = $2`

	tag, err := s.pool.Exec(ctx, query,
		id, string(from), string(to),
		upd.DepositAmountQu, upd.DepositTxID, upd.JoinBetTxID,
		upd.PayoutAmountQu, upd.SweepTxID,
	)
	if err != nil {
		return fmt.Errorf("postgres: advance bet %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM bets WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check bet %s: %w", id, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrStaleTransition
	}
	return nil
}
