package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vaxtrack/internal/domain"
)

// PostgresSessionsRepository 会话 Repository 实现（机构服务器部署）
type PostgresSessionsRepository struct {
	db *sql.DB
}

// NewPostgresSessionsRepository 创建会话 Repository
func NewPostgresSessionsRepository(db *sql.DB) *PostgresSessionsRepository {
	return &PostgresSessionsRepository{db: db}
}

// 确保实现了接口
var _ SessionsRepository = (*PostgresSessionsRepository)(nil)

// SaveSession 覆盖写入最近一次登录（单事务）
func (r *PostgresSessionsRepository) SaveSession(ctx context.Context, facilityID int64, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin session save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (facility_id, logged_in_at) VALUES ($1, $2)`,
		facilityID, at,
	); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session save: %w", err)
	}
	return nil
}

// LatestSession 读回最近一次登录
func (r *PostgresSessionsRepository) LatestSession(ctx context.Context) (*domain.Session, error) {
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
func (r *PostgresSessionsRepository) ClearSessions(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	return nil
}
