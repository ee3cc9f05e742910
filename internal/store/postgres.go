package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/pkg/model"
	"github.com/Checker-Finance/ticker-bots/pkg/utils"
)

const pgErrUniqueViolation = "23505"

// PGPoolConfig tunes the pgx connection pool. Zero values keep pgx defaults.
type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// PGStore is the Postgres-backed pool store.
type PGStore struct {
	PG     *pgxpool.Pool
	logger *zap.Logger
}

// Compile-time interface check.
var _ Store = (*PGStore)(nil)

// NewPG connects to Postgres and returns a store over the bot_pool table.
func NewPG(ctx context.Context, pgURL string, poolCfg PGPoolConfig, logger *zap.Logger) (*PGStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	if poolCfg.MaxConns > 0 {
		cfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		cfg.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = poolCfg.MaxConnLifetime
	}
	if poolCfg.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}
	if poolCfg.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = poolCfg.HealthCheckPeriod
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pgPool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pgPool.Ping(connectCtx); err != nil {
		pgPool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	logger.Info("store.pg.connected", zap.String("dsn", utils.MaskDSN(pgURL)))
	return &PGStore{PG: pgPool, logger: logger}, nil
}

const entryColumns = `pool, client_id, token, ticker, asset_type, registered_at, claimed_at`

func (s *PGStore) FindBinding(ctx context.Context, pool model.PoolID, ticker string) (*model.PoolEntry, error) {
	const q = `
		SELECT ` + entryColumns + `
		FROM bot_pool
		WHERE pool = $1 AND ticker = $2
		LIMIT 1;
	`
	entry, err := scanEntry(s.PG.QueryRow(ctx, q, string(pool), ticker))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find binding for %q: %w", ticker, err)
	}
	return entry, nil
}

// claimQuery binds the oldest unclaimed row. The outer null-ticker predicate
// keeps the update conditional on the row still being unclaimed.
func claimQuery(lock string) string {
	return `
	UPDATE bot_pool
	SET ticker = $2, asset_type = $3, claimed_at = NOW()
	WHERE client_id = (
		SELECT client_id
		FROM bot_pool
		WHERE pool = $1 AND ticker IS NULL
		ORDER BY registered_at
		LIMIT 1
		` + lock + `
	)
	AND ticker IS NULL
	RETURNING ` + entryColumns + `;
`
}

var (
	// Racing claimers take distinct rows.
	claimSkipLocked = claimQuery("FOR UPDATE SKIP LOCKED")
	// SKIP LOCKED also skips rows whose holder later rolls back, so an empty
	// first pass is confirmed by waiting on the locks before reporting
	// exhaustion.
	claimWaitLocked = claimQuery("FOR UPDATE")
)

func (s *PGStore) ClaimUnclaimed(ctx context.Context, pool model.PoolID, ticker string, asset model.AssetType) (*model.PoolEntry, error) {
	tx, err := s.PG.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := scanEntry(tx.QueryRow(ctx, claimSkipLocked, string(pool), ticker, string(asset)))
	if errors.Is(err, pgx.ErrNoRows) {
		entry, err = scanEntry(tx.QueryRow(ctx, claimWaitLocked, string(pool), ticker, string(asset)))
	}
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, ErrPoolExhausted
		case isUniqueViolation(err):
			return nil, ErrTickerBound
		}
		s.logger.Error("store.pg.claim_failed",
			zap.String("pool", string(pool)),
			zap.String("ticker", ticker),
			zap.Error(err))
		return nil, fmt.Errorf("claim entry for %q: %w", ticker, err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrTickerBound
		}
		return nil, fmt.Errorf("commit claim for %q: %w", ticker, err)
	}
	return entry, nil
}

func (s *PGStore) InsertUnclaimed(ctx context.Context, pool model.PoolID, clientID, token string) error {
	_, err := s.PG.Exec(ctx, `
		INSERT INTO bot_pool (pool, client_id, token, ticker, asset_type)
		VALUES ($1, $2, $3, NULL, NULL);
	`, string(pool), clientID, token)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		s.logger.Error("store.pg.insert_failed", zap.String("client_id", clientID), zap.Error(err))
		return fmt.Errorf("insert unclaimed %q: %w", clientID, err)
	}
	return nil
}

func (s *PGStore) InsertBound(ctx context.Context, e model.PoolEntry) error {
	_, err := s.PG.Exec(ctx, `
		INSERT INTO bot_pool (pool, client_id, token, ticker, asset_type, claimed_at)
		VALUES ($1, $2, $3, $4, $5, NOW());
	`, string(e.Pool), e.ClientID, e.Token, e.Ticker, string(e.AssetType))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		s.logger.Error("store.pg.insert_failed", zap.String("client_id", e.ClientID), zap.Error(err))
		return fmt.Errorf("insert bound %q: %w", e.ClientID, err)
	}
	return nil
}

func (s *PGStore) HasCredential(ctx context.Context, clientID, token string) (bool, error) {
	var found bool
	err := s.PG.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM bot_pool WHERE client_id = $1 OR token = $2);
	`, clientID, token).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("lookup credential %q: %w", clientID, err)
	}
	return found, nil
}

func (s *PGStore) CountUnclaimed(ctx context.Context, pool model.PoolID) (int, error) {
	var n int
	err := s.PG.QueryRow(ctx, `
		SELECT COUNT(*) FROM bot_pool WHERE pool = $1 AND ticker IS NULL;
	`, string(pool)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unclaimed: %w", err)
	}
	return n, nil
}

func (s *PGStore) HealthCheck(ctx context.Context) error {
	if s.PG == nil {
		return fmt.Errorf("postgres not initialized")
	}
	if err := s.PG.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (s *PGStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	return nil
}

func scanEntry(row pgx.Row) (*model.PoolEntry, error) {
	var (
		e         model.PoolEntry
		pool      string
		ticker    *string
		assetType *string
	)
	if err := row.Scan(&pool, &e.ClientID, &e.Token, &ticker, &assetType, &e.RegisteredAt, &e.ClaimedAt); err != nil {
		return nil, err
	}
	e.Pool = model.PoolID(pool)
	if ticker != nil {
		e.Ticker = *ticker
	}
	if assetType != nil {
		e.AssetType = model.AssetType(*assetType)
	}
	return &e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}
