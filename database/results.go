package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"sealbot/executor"
)

// ResultStore 成功工作流结果的Postgres流水账 (可选组件)
// 未配置DSN时整体为nil，调用端不需要判空之外的处理
type ResultStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

const createResultsTable = `
CREATE TABLE IF NOT EXISTS workflow_results (
	id          BIGSERIAL PRIMARY KEY,
	wallet      TEXT NOT NULL,
	workflow    TEXT NOT NULL,
	shared_id   TEXT NOT NULL DEFAULT '',
	entry_id    TEXT NOT NULL DEFAULT '',
	blob_id     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewResultStore 连接Postgres并保证表结构存在
func NewResultStore(ctx context.Context, dsn string, logger *zap.Logger) (*ResultStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := pool.Exec(initCtx, createResultsTable); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("✅ 结果流水账已连接")
	return &ResultStore{pool: pool, logger: logger}, nil
}

// Record 记录一次成功的工作流结果
func (s *ResultStore) Record(ctx context.Context, wallet, workflow string, res *executor.Result) error {
	if s == nil {
		return nil
	}

	sharedID := res.AllowlistID
	if sharedID == "" {
		sharedID = res.SharedObjectID
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO workflow_results (wallet, workflow, shared_id, entry_id, blob_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		wallet, workflow, sharedID, res.EntryObjectID, res.BlobID)
	if err != nil {
		return err
	}

	s.logger.Debug("💾 工作流结果已落库",
		zap.String("wallet", wallet),
		zap.String("workflow", workflow),
		zap.String("blob", res.BlobID))
	return nil
}

// Close 释放连接池
func (s *ResultStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
