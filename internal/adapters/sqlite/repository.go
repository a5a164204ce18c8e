package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kalshiEdgeBot/internal/domain"
	"kalshiEdgeBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.TradeRepository using SQLite. It is the
// queryable projection of the JSONL ledger: the ledger stays the audit
// source of truth, this store answers the HTTP query surface.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/edgebot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode keeps readers (the query surface) from blocking the writer.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// The Go driver benefits from a single connection; SQLite serialises
	// writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite trade store ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		ticker TEXT NOT NULL,
		side TEXT NOT NULL,
		price_cents INTEGER NOT NULL,
		contracts INTEGER NOT NULL,
		cost_cents INTEGER NOT NULL,
		edge REAL NOT NULL,
		our_prob REAL NOT NULL,
		regime TEXT NOT NULL,
		placed_at TIMESTAMP NOT NULL,
		result TEXT NOT NULL DEFAULT 'pending',
		pnl_cents INTEGER NOT NULL DEFAULT 0,
		settlement_value REAL NOT NULL DEFAULT 0,
		settled_at TIMESTAMP DEFAULT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_result ON trades (result);
	CREATE INDEX IF NOT EXISTS idx_trades_ticker_result ON trades (ticker, result);
	CREATE INDEX IF NOT EXISTS idx_trades_placed_at ON trades (placed_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite trade store")
		return r.db.Close()
	}
	return nil
}

// InsertTrade stores a newly placed trade in pending state.
func (r *Repository) InsertTrade(ctx context.Context, t *domain.Trade) error {
	const query = `
	INSERT INTO trades (id, ticker, side, price_cents, contracts, cost_cents, edge, our_prob, regime, placed_at, result)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.Ticker, string(t.Side), t.PriceCents, t.Contracts, t.CostCents,
		t.Edge, t.OurProb, string(t.Regime), t.PlacedAt.UTC(), string(domain.ResultPending))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: trade %s", ports.ErrDuplicateEntry, t.ID)
		}
		return fmt.Errorf("%w: insert trade: %v", ports.ErrQueryFailed, err)
	}
	return nil
}

// FindByID retrieves a trade by its ID.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Trade, error) {
	const query = selectTrade + ` WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: trade %s", ports.ErrNotFound, id)
	}
	return t, err
}

// FindPending retrieves all trades awaiting settlement, oldest first.
func (r *Repository) FindPending(ctx context.Context) ([]*domain.Trade, error) {
	const query = selectTrade + ` WHERE result = 'pending' ORDER BY placed_at ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: find pending: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// FindOpenByTicker retrieves the pending trade for a ticker, if any.
func (r *Repository) FindOpenByTicker(ctx context.Context, ticker string) (*domain.Trade, error) {
	const query = selectTrade + ` WHERE ticker = ? AND result = 'pending' LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, ticker)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// MarkSettled applies the one-way pending to won/lost transition. A
// second settlement of the same trade changes nothing and reports
// ErrDuplicateEntry so callers can treat it as a no-op.
func (r *Repository) MarkSettled(ctx context.Context, id string, result domain.ResultStatus, pnlCents int64, settlement float64, settledAt time.Time) error {
	if result != domain.ResultWon && result != domain.ResultLost {
		return fmt.Errorf("%w: settlement result must be won or lost, got %q", ports.ErrInvalidRequest, result)
	}

	const query = `
	UPDATE trades SET result = ?, pnl_cents = ?, settlement_value = ?, settled_at = ?
	WHERE id = ? AND result = 'pending'`

	res, err := r.db.ExecContext(ctx, query, string(result), pnlCents, settlement, settledAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: mark settled: %v", ports.ErrUpdateFailed, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ports.ErrUpdateFailed, err)
	}
	if affected == 0 {
		// Either unknown or already settled; distinguish for the caller.
		if _, ferr := r.FindByID(ctx, id); ferr != nil {
			return ferr
		}
		return fmt.Errorf("%w: trade %s already settled", ports.ErrDuplicateEntry, id)
	}
	return nil
}

// ListTrades retrieves trades matching the filter plus the total count
// ignoring pagination.
func (r *Repository) ListTrades(ctx context.Context, f ports.TradeFilter) ([]*domain.Trade, int, error) {
	var conds []string
	var args []interface{}

	if f.Ticker != "" {
		conds = append(conds, "ticker = ?")
		args = append(args, f.Ticker)
	}
	if f.Side != "" {
		conds = append(conds, "side = ?")
		args = append(args, string(f.Side))
	}
	if f.Result != "" {
		conds = append(conds, "result = ?")
		args = append(args, string(f.Result))
	}
	if !f.From.IsZero() {
		conds = append(conds, "placed_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		conds = append(conds, "placed_at <= ?")
		args = append(args, f.To.UTC())
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count trades: %v", ports.ErrQueryFailed, err)
	}

	// Sort column is mapped from a fixed set, never interpolated from
	// user input directly.
	sortCol := "placed_at"
	switch f.SortBy {
	case "", "timestamp":
	case "price":
		sortCol = "price_cents"
	case "edge":
		sortCol = "edge"
	case "pnl":
		sortCol = "pnl_cents"
	default:
		return nil, 0, fmt.Errorf("%w: unknown sort field %q", ports.ErrInvalidRequest, f.SortBy)
	}
	direction := "ASC"
	if f.SortDesc {
		direction = "DESC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := selectTrade + where + fmt.Sprintf(" ORDER BY %s %s LIMIT ? OFFSET ?", sortCol, direction)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list trades: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades, err := scanTrades(rows)
	if err != nil {
		return nil, 0, err
	}
	return trades, total, nil
}

// DailySummary aggregates per-day trade counts, win rate and PnL.
func (r *Repository) DailySummary(ctx context.Context) ([]ports.DailyStat, error) {
	const query = `
	SELECT
		DATE(placed_at) AS day,
		COUNT(*) AS trades,
		SUM(CASE WHEN result != 'pending' THEN 1 ELSE 0 END) AS settled,
		SUM(CASE WHEN result = 'won' THEN 1 ELSE 0 END) AS wins,
		SUM(pnl_cents) AS pnl_cents,
		SUM(cost_cents) AS volume_cents
	FROM trades
	GROUP BY DATE(placed_at)
	ORDER BY day ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: daily summary: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var stats []ports.DailyStat
	for rows.Next() {
		var s ports.DailyStat
		if err := rows.Scan(&s.Day, &s.Trades, &s.Settled, &s.Wins, &s.PnLCents, &s.VolumeCents); err != nil {
			return nil, fmt.Errorf("%w: scan daily stat: %v", ports.ErrQueryFailed, err)
		}
		if s.Settled > 0 {
			s.WinRate = float64(s.Wins) / float64(s.Settled)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: daily summary rows: %v", ports.ErrQueryFailed, err)
	}
	return stats, nil
}

// --- row scanning helpers ---

const selectTrade = `
	SELECT id, ticker, side, price_cents, contracts, cost_cents, edge, our_prob, regime, placed_at, result, pnl_cents, settlement_value, settled_at
	FROM trades`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (*domain.Trade, error) {
	var t domain.Trade
	var side, regime, result string
	var settledAt sql.NullTime

	err := row.Scan(&t.ID, &t.Ticker, &side, &t.PriceCents, &t.Contracts, &t.CostCents,
		&t.Edge, &t.OurProb, &regime, &t.PlacedAt, &result, &t.PnLCents, &t.Settlement, &settledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scan trade: %v", ports.ErrQueryFailed, err)
	}

	t.Side = domain.Side(side)
	t.Regime = domain.Regime(regime)
	t.Result = domain.ResultStatus(result)
	if settledAt.Valid {
		at := settledAt.Time
		t.SettledAt = &at
	}
	return &t, nil
}

func scanTrades(rows *sql.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate trades: %v", ports.ErrQueryFailed, err)
	}
	return trades, nil
}
