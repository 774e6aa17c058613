package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vaxtrack/internal/domain"
)

// SqliteSessionsRepository 会话 Repository 实现（离线单机）
// sessions 表只保留最近一次登录：写入前清空旧记录
type SqliteSessionsRepository struct {
	db *sql.DB
}

// NewSqliteSessionsRepository 创建会话 Repository
func NewSqliteSessionsRepository(db *sql.DB) *SqliteSessionsRepository {
	return &SqliteSessionsRepository{db: db}
}

// 确保实现了接口
var _ SessionsRepository = (*SqliteSessionsRepository)(nil)

// SaveSession 覆盖写入最近一次登录（单事务，读方看不到"无会话"的中间态）
func (r *SqliteSessionsRepository) SaveSession(ctx context.Context, facilityID int64, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin session save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (facility_id, logged_in_at) VALUES (?, ?)`,
		facilityID, at,
	); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session save: %w", err)
	}
	return nil
}

// LatestSession 读回最近一次登录；无记录返回 ErrNotFound
func (r *SqliteSessionsRepository) LatestSession(ctx context.Context) (*domain.Session, error) {
	var s domain.Session
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id, facility_id, logged_in_at FROM sessions ORDER BY logged_in_at DESC LIMIT 1`,
	).Scan(&s.SessionID, &s.FacilityID, &s.LoggedInAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read latest session: %w", err)
	}
	return &s, nil
}

// ClearSessions 登出时清空会话表
func (r *SqliteSessionsRepository) ClearSessions(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	return nil
}
