package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/zhiyou-ai/trip_planner/internal/domain"
)

// Archive 已完成计划的 postgres 归档。
// 归档失败不影响会话主流程，由调用方记录后吞掉。
type Archive struct {
	db *sql.DB
}

// NewArchive 建立连接并初始化表结构
func NewArchive(driver, source string) (*Archive, func(), error) {
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS plan_archive (
			session_id TEXT PRIMARY KEY,
			demand JSONB NOT NULL,
			plan JSONB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to init plan_archive table: %w", err)
	}

	cleanup := func() { db.Close() }
	return &Archive{db: db}, cleanup, nil
}

// SavePlan 写入或更新一条归档。同一会话的修改覆盖旧计划。
func (a *Archive) SavePlan(ctx context.Context, sessionID string, demand domain.UserDemand, plan *domain.TravelPlan) error {
	demandJSON, err := json.Marshal(demand)
	if err != nil {
		return err
	}
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return err
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO plan_archive (session_id, demand, plan)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id)
		DO UPDATE SET plan = EXCLUDED.plan, updated_at = CURRENT_TIMESTAMP
	`, sessionID, demandJSON, planJSON)
	return err
}
