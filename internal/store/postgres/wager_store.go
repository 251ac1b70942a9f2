package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qupredict/qupredict/internal/domain"
)

// WagerStore implements domain.WagerStore using PostgreSQL.
type WagerStore struct {
	pool *pgxpool.Pool
}

// NewWagerStore creates a new WagerStore backed by the given connection pool.
func NewWagerStore(pool *pgxpool.Pool) *WagerStore {
	return &WagerStore{pool: pool}
}

// Create inserts a new flash wager.
func (s *WagerStore) Create(ctx context.Context, w domain.FlashWager) error {
	const query = `
		INSERT INTO wagers (
			id, round_id, payout_address, side,
			amount_qu, payout_qu, status, created_at, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		w.ID, w.RoundID, w.PayoutAddress, string(w.Side),
		w.AmountQu, w.PayoutQu, string(w.Status), w.CreatedAt, w.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create wager %s: %w", w.ID, err)
	}
	return nil
}

const wagerCols = `id, round_id, payout_address, side,
	amount_qu, payout_qu, status, created_at, settled_at`

func scanWager(row pgx.Row) (domain.FlashWager, error) {
	var w domain.FlashWager
	var side, status string
	err := row.Scan(
		&w.ID, &w.RoundID, &w.PayoutAddress, &side,
		&w.AmountQu, &w.PayoutQu, &status, &w.CreatedAt, &w.SettledAt,
	)
	if err != nil {
		return domain.FlashWager{}, err
	}
	w.Side = domain.FlashSide(side)
	w.Status = domain.WagerStatus(status)
	return w, nil
}

func scanWagerRows(rows pgx.Rows) ([]domain.FlashWager, error) {
	var wagers []domain.FlashWager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, err
		}
		wagers = append(wagers, w)
	}
	return wagers, rows.Err()
}

// GetByID retrieves a wager by its primary key.
func (s *WagerStore) GetByID(ctx context.Context, id string) (domain.FlashWager, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+wagerCols+` FROM wagers WHERE id = $1`, id)
	w, err := scanWager(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.FlashWager{}, domain.ErrNotFound
		}
		return domain.FlashWager{}, fmt.Errorf("postgres: get wager %s: %w", id, err)
	}
	return w, nil
}

// ListByRound returns wagers in a round with pagination.
func (s *WagerStore) ListByRound(ctx context.Context, roundID string, opts domain.ListOpts) ([]domain.FlashWager, error) {
	query := `SELECT ` + wagerCols + ` FROM wagers WHERE round_id = $1 ORDER BY created_at ASC`
	args := []any{roundID}
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
		return nil, fmt.Errorf("postgres: list wagers by round: %w", err)
	}
	defer rows.Close()

	wagers, err := scanWagerRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan wagers by round: %w", err)
	}
	return wagers, nil
}

// ListPending returns unsettled wagers in a round, oldest first.
func (s *WagerStore) ListPending(ctx context.Context, roundID string) ([]domain.FlashWager, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+wagerCols+` FROM wagers
		WHERE round_id = $1 AND status = $2
		ORDER BY created_at ASC`,
		roundID, string(domain.WagerStatusPending))
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending wagers: %w", err)
	}
	defer rows.Close()

	wagers, err := scanWagerRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan pending wagers: %w", err)
	}
	return wagers, nil
}

// Settle records the outcome and payout for a pending wager. Settling an
// already-settled wager fails with ErrStaleTransition.
func (s *WagerStore) Settle(ctx context.Context, id string, status domain.WagerStatus, payoutQu int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE wagers SET status = $2, payout_qu = $3, settled_at = NOW()
		WHERE id = $1 AND status = $4`,
		id, string(status), payoutQu, string(domain.WagerStatusPending))
	if err != nil {
		return fmt.Errorf("postgres: settle wager %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM wagers WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check wager %s: %w", id, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrStaleTransition
	}
	return nil
}
