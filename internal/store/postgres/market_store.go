package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qupredict/qupredict/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Create inserts a market and its option rows in one transaction.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin create market: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const marketQuery = `
		INSERT INTO markets (
			id, question, description, market_type,
			min_bet_qu, max_slots_per_option, oracle_fee_bps,
			resolution_target, resolution_low, resolution_high,
			creator_address, close_date, end_date, status,
			winning_option, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, NOW()
		)`

	_, err = tx.Exec(ctx, marketQuery,
		m.ID, m.Question, m.Description, string(m.Type),
		m.MinBetQu, m.MaxSlotsPerOption, m.OracleFeeBps,
		m.ResolutionTarget, m.ResolutionLow, m.ResolutionHigh,
		m.CreatorAddress, m.CloseDate, m.EndDate, string(m.Status),
		m.WinningOption, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}

	const optionQuery = `
		INSERT INTO market_options (market_id, option_index, label, slots)
		VALUES ($1, $2, $3, $4)`
	for _, opt := range m.Options {
		if _, err := tx.Exec(ctx, optionQuery, m.ID, opt.Index, opt.Label, opt.Slots); err != nil {
			return fmt.Errorf("postgres: create market %s option %d: %w", m.ID, opt.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit create market %s: %w", m.ID, err)
	}
	return nil
}

const marketCols = `id, question, description, market_type,
	min_bet_qu, max_slots_per_option, oracle_fee_bps,
	resolution_target, resolution_low, resolution_high,
	creator_address, close_date, end_date, status,
	winning_option, created_at, updated_at`

// scanMarket scans a single market row into a domain.Market. Options are
// loaded separately.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var marketType, status string
	err := row.Scan(
		&m.ID, &m.Question, &m.Description, &marketType,
		&m.MinBetQu, &m.MaxSlotsPerOption, &m.OracleFeeBps,
		&m.ResolutionTarget, &m.ResolutionLow, &m.ResolutionHigh,
		&m.CreatorAddress, &m.CloseDate, &m.EndDate, &status,
		&m.WinningOption, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Type = domain.MarketType(marketType)
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// loadOptions fetches the option rows for the given market IDs, keyed by
// market ID and ordered by option index.
func (s *MarketStore) loadOptions(ctx context.Context, marketIDs []string) (map[string][]domain.MarketOption, error) {
	if len(marketIDs) == 0 {
		return map[string][]domain.MarketOption{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT market_id, option_index, label, slots
		FROM market_options
		WHERE market_id = ANY($1)
		ORDER BY market_id, option_index`, marketIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: load market options: %w", err)
	}
	defer rows.Close()

	options := make(map[string][]domain.MarketOption, len(marketIDs))
	for rows.Next() {
		var marketID string
		var opt domain.MarketOption
		if err := rows.Scan(&marketID, &opt.Index, &opt.Label, &opt.Slots); err != nil {
			return nil, fmt.Errorf("postgres: scan market option: %w", err)
		}
		options[marketID] = append(options[marketID], opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load market options rows: %w", err)
	}
	return options, nil
}

// GetByID retrieves a market with its options by primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}

	options, err := s.loadOptions(ctx, []string{id})
	if err != nil {
		return domain.Market{}, err
	}
	m.Options = options[id]
	return m, nil
}

// List returns markets with pagination and optional time filtering. An
// empty status matches all statuses.
func (s *MarketStore) List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(status))
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
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}

	ids := make([]string, 0, len(markets))
	for i := range markets {
		ids = append(ids, markets[i].ID)
	}
	options, err := s.loadOptions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range markets {
		markets[i].Options = options[markets[i].ID]
	}
	return markets, nil
}

// Count returns the number of markets, optionally filtered by status.
func (s *MarketStore) Count(ctx context.Context, status domain.MarketStatus) (int64, error) {
	var count int64
	var err error
	if status == "" {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&count)
	} else {
		err = s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM markets WHERE status = $1`, string(status)).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// SetStatus moves a market from one status to another with an optimistic
// guard on the current value.
func (s *MarketStore) SetStatus(ctx context.Context, id string, from, to domain.MarketStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE markets SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("postgres: set market %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.staleOrMissing(ctx, id)
	}
	return nil
}

// Resolve marks a market resolved and records the winning option. Markets
// already in a terminal state are left untouched.
func (s *MarketStore) Resolve(ctx context.Context, id string, winningOption int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE markets SET status = $2, winning_option = $3, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($4, $5)`,
		id, string(domain.MarketStatusResolved), winningOption,
		string(domain.MarketStatusResolved), string(domain.MarketStatusCancelled))
	if err != nil {
		return fmt.Errorf("postgres: resolve market %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.staleOrMissing(ctx, id)
	}
	return nil
}

// AddSlots atomically adjusts one option's slot count. The guard keeps the
// resulting count within [0, cap] so a concurrent placement can never lift
// an option above its cap.
func (s *MarketStore) AddSlots(ctx context.Context, marketID string, option int, delta, cap int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE market_options
		SET slots = slots + $3
		WHERE market_id = $1 AND option_index = $2
		  AND slots + $3 >= 0 AND slots + $3 <= $4`,
		marketID, option, delta, cap)
	if err != nil {
		return fmt.Errorf("postgres: add slots market %s option %d: %w", marketID, option, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM market_options WHERE market_id = $1 AND option_index = $2)`,
			marketID, option,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check option %s/%d: %w", marketID, option, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: market %s option %d: %w: slot cap reached", marketID, option, domain.ErrInvalidBet)
	}
	return nil
}

// ListEnded returns non-terminal markets whose betting close date has
// passed, oldest close first.
func (s *MarketStore) ListEnded(ctx context.Context, now time.Time) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+marketCols+` FROM markets
		WHERE status NOT IN ($1, $2) AND close_date <= $3
		ORDER BY close_date ASC`,
		string(domain.MarketStatusResolved), string(domain.MarketStatusCancelled), now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ended markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan ended market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list ended markets rows: %w", err)
	}

	ids := make([]string, 0, len(markets))
	for i := range markets {
		ids = append(ids, markets[i].ID)
	}
	options, err := s.loadOptions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range markets {
		markets[i].Options = options[markets[i].ID]
	}
	return markets, nil
}

// staleOrMissing distinguishes a guarded update that matched no rows:
// the market either does not exist or sits in a different status.
func (s *MarketStore) staleOrMissing(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM markets WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check market %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrStaleTransition
}
