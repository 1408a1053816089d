package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nodeport-labs/swapd/pkg/model"
)

const historyKey = "swap:history"

// Store keeps a bounded, most-recent-first record of terminal swap
// executions. Appending beyond capacity evicts the oldest entries.
type Store interface {
	Append(ctx context.Context, entry model.HistoryEntry) error
	List(ctx context.Context) ([]model.HistoryEntry, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// HybridStore is Redis-first with an optional Postgres audit trail. The Redis
// list is the bounded history the UI reads; Postgres keeps every terminal
// execution as an immutable row and is never trimmed.
type HybridStore struct {
	redis    *redis.Client
	PG       *pgxpool.Pool
	logger   *zap.Logger
	capacity int64
}

// NewHybrid creates the store. pgURL may be empty to run without the audit
// trail.
func NewHybrid(redisAddr string, redisDB int, pgURL string, capacity int, logger *zap.Logger) (*HybridStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = 50
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger, capacity: int64(capacity)}, nil
}

// Append pushes the entry to the front and trims the list to capacity.
// A Postgres audit failure is logged, not propagated: the bounded history is
// the source of truth for the UI.
func (s *HybridStore) Append(ctx context.Context, entry model.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.LPush(ctx, historyKey, data)
	pipe.LTrim(ctx, historyKey, 0, s.capacity-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("history append failed: %w", err)
	}

	if s.PG != nil {
		if _, err := s.PG.Exec(ctx, `
			INSERT INTO swap.execution_event (
				rfq_id, from_asset, to_asset,
				from_amount, to_amount, exchange_rate,
				status, settlement_id, error_message, finalized_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, entry.RequestID, entry.FromAsset, entry.ToAsset,
			entry.FromAmount, entry.ToAmount, entry.ExchangeRate,
			string(entry.Status), entry.SettlementID, entry.ErrorMessage, entry.FinalizedAt,
		); err != nil {
			s.logger.Error("history.pg.insert_event_failed",
				zap.String("rfq_id", entry.RequestID),
				zap.Error(err))
		}
	}

	return nil
}

// List returns history entries, most recent first.
func (s *HybridStore) List(ctx context.Context) ([]model.HistoryEntry, error) {
	raw, err := s.redis.LRange(ctx, historyKey, 0, s.capacity-1).Result()
	if err != nil {
		return nil, fmt.Errorf("history list failed: %w", err)
	}

	entries := make([]model.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var e model.HistoryEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			s.logger.Warn("history.decode_failed", zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
