package signalstore

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"signal-enginev1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the durable signal store: WAL mode, single writer connection.
type SQLite struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *SQLite) DB() *sql.DB { return s.db }

// NewSQLite opens (or creates) the database at path and ensures the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer: serializes Create/UpdateResult races at the driver.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[signalstore] opened database at %s", path)
	return &SQLite{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			id                    TEXT    PRIMARY KEY,
			type                  TEXT    NOT NULL,
			price                 REAL    NOT NULL,
			time                  TEXT    NOT NULL,
			created_at            INTEGER NOT NULL,
			pair                  TEXT    NOT NULL,
			confidence            INTEGER NOT NULL,
			timeframe             INTEGER NOT NULL,
			martingale_step       INTEGER NOT NULL DEFAULT 0,
			martingale_multiplier REAL    NOT NULL DEFAULT 1.0,
			result                TEXT,
			profit_loss           REAL
		);

		CREATE INDEX IF NOT EXISTS idx_signals_pending
			ON signals (created_at DESC) WHERE result IS NULL;
	`)
	return err
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

const signalColumns = `id, type, price, time, created_at, pair, confidence,
	timeframe, martingale_step, martingale_multiplier, result, profit_loss`

func (s *SQLite) Create(ctx context.Context, sig *model.Signal) (*model.Signal, error) {
	// INSERT OR IGNORE makes creation idempotent on id; the follow-up read
	// returns whichever record actually won.
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO signals
			(id, type, price, time, created_at, pair, confidence,
			 timeframe, martingale_step, martingale_multiplier)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, string(sig.Type), sig.Price, sig.Time, sig.CreatedAt, sig.Pair,
		sig.Confidence, sig.Timeframe, sig.MartingaleStep, sig.MartingaleMultiplier,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite create signal: %w", err)
	}
	return s.GetByID(ctx, sig.ID)
}

func (s *SQLite) GetByID(ctx context.Context, id string) (*model.Signal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE id = ?`, id)
	sig, err := scanSignal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get signal: %w", err)
	}
	return sig, nil
}

func (s *SQLite) GetPending(ctx context.Context) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE result IS NULL ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite pending signals: %w", err)
	}
	defer rows.Close()
	return collectSignals(rows)
}

func (s *SQLite) GetAll(ctx context.Context) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+signalColumns+` FROM signals ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite all signals: %w", err)
	}
	defer rows.Close()
	return collectSignals(rows)
}

func (s *SQLite) UpdateResult(ctx context.Context, id string, result model.SignalResult, profitLoss float64) (*model.Signal, error) {
	// The result IS NULL guard makes resolution a no-op for signals that
	// were already resolved concurrently (e.g. by the backup pass).
	_, err := s.db.ExecContext(ctx,
		`UPDATE signals SET result = ?, profit_loss = ? WHERE id = ? AND result IS NULL`,
		string(result), profitLoss, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite update result: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *SQLite) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM signals`); err != nil {
		return fmt.Errorf("sqlite clear signals: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSignal(row rowScanner) (*model.Signal, error) {
	var (
		sig        model.Signal
		typ        string
		result     sql.NullString
		profitLoss sql.NullFloat64
	)
	err := row.Scan(&sig.ID, &typ, &sig.Price, &sig.Time, &sig.CreatedAt,
		&sig.Pair, &sig.Confidence, &sig.Timeframe, &sig.MartingaleStep,
		&sig.MartingaleMultiplier, &result, &profitLoss)
	if err != nil {
		return nil, err
	}
	sig.Type = model.SignalType(typ)
	if result.Valid {
		sig.Result = model.SignalResult(result.String)
	}
	if profitLoss.Valid {
		sig.ProfitLoss = profitLoss.Float64
	}
	return &sig, nil
}

func collectSignals(rows *sql.Rows) ([]model.Signal, error) {
	var out []model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan signal: %w", err)
		}
		out = append(out, *sig)
	}
	return out, rows.Err()
}
