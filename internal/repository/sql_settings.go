package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLSettingsRepository settings 键值表（sqlite / postgres 共用，仅占位符不同）
type SQLSettingsRepository struct {
	db     *sql.DB
	driver string
}

// NewSQLSettingsRepository 创建 settings Repository
func NewSQLSettingsRepository(db *sql.DB, driver string) *SQLSettingsRepository {
	return &SQLSettingsRepository{db: db, driver: driver}
}

var _ SettingsRepository = (*SQLSettingsRepository)(nil)

func (r *SQLSettingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	query := `SELECT value FROM settings WHERE key = $1`
	if r.driver == "sqlite" {
		query = `SELECT value FROM settings WHERE key = ?`
	}
	var value string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

func (r *SQLSettingsRepository) SetSetting(ctx context.Context, key, value string) error {
	query := `INSERT INTO settings (key, value) VALUES ($1, $2)
	          ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	if r.driver == "sqlite" {
		query = `INSERT INTO settings (key, value) VALUES (?, ?)
		         ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	}
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}
