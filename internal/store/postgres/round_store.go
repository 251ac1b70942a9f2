package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qupredict/qupredict/internal/domain"
)

// RoundStore implements domain.RoundStore using PostgreSQL.
type RoundStore struct {
	pool *pgxpool.Pool
}

// NewRoundStore creates a new RoundStore backed by the given connection pool.
func NewRoundStore(pool *pgxpool.Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

// Create inserts a new flash round.
func (s *RoundStore) Create(ctx context.Context, r domain.Round) error {
	const query = `
		INSERT INTO rounds (
			id, pair, open_price, close_price,
			opens_at, locks_at, closes_at, outcome,
			up_pool_qu, down_pool_qu, status,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11,
			$12, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		r.ID, r.Pair, r.OpenPrice, r.ClosePrice,
		r.OpensAt, r.LocksAt, r.ClosesAt, string(r.Outcome),
		r.UpPoolQu, r.DownPoolQu, string(r.Status),
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create round %s: %w", r.ID, err)
	}
	return nil
}

const roundCols = `id, pair, open_price, close_price,
	opens_at, locks_at, closes_at, outcome,
	up_pool_qu, down_pool_qu, status, created_at, updated_at`

func scanRound(row pgx.Row) (domain.Round, error) {
	var r domain.Round
	var outcome, status string
	err := row.Scan(
		&r.ID, &r.Pair, &r.OpenPrice, &r.ClosePrice,
		&r.OpensAt, &r.LocksAt, &r.ClosesAt, &outcome,
		&r.UpPoolQu, &r.DownPoolQu, &status, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return domain.Round{}, err
	}
	r.Outcome = domain.RoundOutcome(outcome)
	r.Status = domain.RoundStatus(status)
	return r, nil
}

// GetByID retrieves a round by its primary key.
func (s *RoundStore) GetByID(ctx context.Context, id string) (domain.Round, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+roundCols+` FROM rounds WHERE id = $1`, id)
	r, err := scanRound(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("postgres: get round %s: %w", id, err)
	}
	return r, nil
}

// Latest returns the most recently created round for the pair.
func (s *RoundStore) Latest(ctx context.Context, pair string) (domain.Round, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+roundCols+` FROM rounds WHERE pair = $1 ORDER BY created_at DESC LIMIT 1`, pair)
	r, err := scanRound(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("postgres: latest round %s: %w", pair, err)
	}
	return r, nil
}

// List returns rounds, newest first, optionally filtered by pair.
func (s *RoundStore) List(ctx context.Context, pair string, opts domain.ListOpts) ([]domain.Round, error) {
	query := `SELECT ` + roundCols + ` FROM rounds WHERE 1=1`
	args := []any{}
	argIdx := 1

	if pair != "" {
		query += fmt.Sprintf(" AND pair = $%d", argIdx)
		args = append(args, pair)
		argIdx++
	}
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
		return nil, fmt.Errorf("postgres: list rounds: %w", err)
	}
	defer rows.Close()

	var rounds []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan round: %w", err)
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list rounds rows: %w", err)
	}
	return rounds, nil
}

// SetStatus moves a round from one status to another with an optimistic
// guard on the current value.
func (s *RoundStore) SetStatus(ctx context.Context, id string, from, to domain.RoundStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rounds SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("postgres: set round %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.staleOrMissing(ctx, id)
	}
	return nil
}

// Resolve records the closing price and outcome and marks the round
// resolved. Rounds already in a terminal state are left untouched.
func (s *RoundStore) Resolve(ctx context.Context, id string, closePrice float64, outcome domain.RoundOutcome) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rounds SET status = $2, close_price = $3, outcome = $4, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($5, $6)`,
		id, string(domain.RoundStatusResolved), closePrice, string(outcome),
		string(domain.RoundStatusResolved), string(domain.RoundStatusCancelled))
	if err != nil {
		return fmt.Errorf("postgres: resolve round %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.staleOrMissing(ctx, id)
	}
	return nil
}

// AddToPool atomically adds amountQu to one side's pool. The open-status
// guard refuses additions once the round has locked.
func (s *RoundStore) AddToPool(ctx context.Context, id string, side domain.FlashSide, amountQu int64) error {
	col := "up_pool_qu"
	if side == domain.FlashSideDown {
		col = "down_pool_qu"
	}
	query := fmt.Sprintf(`
		UPDATE rounds SET %s = %s + $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`, col, col)

	tag, err := s.pool.Exec(ctx, query, id, amountQu, string(domain.RoundStatusOpen))
	if err != nil {
		return fmt.Errorf("postgres: add to round %s pool: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM rounds WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check round %s: %w", id, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrRoundLocked
	}
	return nil
}

// ListResolvedBefore returns resolved rounds last updated before the
// cutoff, oldest first, for archival.
func (s *RoundStore) ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Round, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+roundCols+` FROM rounds
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`, string(domain.RoundStatusResolved), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved rounds: %w", err)
	}
	defer rows.Close()

	var rounds []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan resolved round: %w", err)
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list resolved rounds rows: %w", err)
	}
	return rounds, nil
}

func (s *RoundStore) staleOrMissing(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM rounds WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check round %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrStaleTransition
}
