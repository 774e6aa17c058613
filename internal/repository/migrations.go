package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// 当前 schema 版本（记录在 settings 表的 schema_version 键）
const schemaVersion = 1

// sqliteDDL 离线单机部署的建表语句（modernc.org/sqlite）
var sqliteDDL = []string{
	`CREATE TABLE IF NOT EXISTS facilities (
		facility_id   INTEGER PRIMARY KEY AUTOINCREMENT,
		code          TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		region        TEXT NOT NULL DEFAULT '',
		district      TEXT NOT NULL DEFAULT '',
		password_hash BLOB NOT NULL,
		questions     TEXT NOT NULL DEFAULT '[]',
		created_at    TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS children (
		child_id     INTEGER PRIMARY KEY AUTOINCREMENT,
		facility_id  INTEGER NOT NULL,
		reg_no       TEXT NOT NULL,
		name         TEXT NOT NULL,
		dob          TIMESTAMP NOT NULL,
		sex          TEXT NOT NULL DEFAULT '',
		address      TEXT NOT NULL DEFAULT '',
		contact      TEXT NOT NULL DEFAULT '',
		is_defaulter INTEGER NOT NULL DEFAULT 0,
		created_at   TIMESTAMP NOT NULL,
		UNIQUE (facility_id, reg_no)
	)`,
	`CREATE TABLE IF NOT EXISTS vaccinations (
		dose_id      INTEGER PRIMARY KEY AUTOINCREMENT,
		child_id     INTEGER NOT NULL,
		facility_id  INTEGER NOT NULL,
		vaccine      TEXT NOT NULL,
		date_given   TIMESTAMP,
		batch_number TEXT NOT NULL DEFAULT '',
		place_given  TEXT NOT NULL DEFAULT '',
		remarks      TEXT NOT NULL DEFAULT '',
		next_visit   TIMESTAMP,
		status       TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vaccinations_child ON vaccinations (child_id)`,
	`CREATE INDEX IF NOT EXISTS idx_vaccinations_facility ON vaccinations (facility_id)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id   INTEGER PRIMARY KEY AUTOINCREMENT,
		facility_id  INTEGER NOT NULL,
		logged_in_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS backups (
		backup_id   TEXT PRIMARY KEY,
		taken_at    TIMESTAMP NOT NULL,
		child_count INTEGER NOT NULL,
		dose_count  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS password_recovery (
		attempt_id   INTEGER PRIMARY KEY AUTOINCREMENT,
		code         TEXT NOT NULL,
		succeeded    INTEGER NOT NULL,
		attempted_at TIMESTAMP NOT NULL
	)`,
}

// postgresDDL 机构服务器部署的建表语句（lib/pq）
var postgresDDL = []string{
	`CREATE TABLE IF NOT EXISTS facilities (
		facility_id   BIGSERIAL PRIMARY KEY,
		code          TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		region        TEXT NOT NULL DEFAULT '',
		district      TEXT NOT NULL DEFAULT '',
		password_hash BYTEA NOT NULL,
		questions     TEXT NOT NULL DEFAULT '[]',
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS children (
		child_id     BIGSERIAL PRIMARY KEY,
		facility_id  BIGINT NOT NULL,
		reg_no       TEXT NOT NULL,
		name         TEXT NOT NULL,
		dob          TIMESTAMPTZ NOT NULL,
		sex          TEXT NOT NULL DEFAULT '',
		address      TEXT NOT NULL DEFAULT '',
		contact      TEXT NOT NULL DEFAULT '',
		is_defaulter BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   TIMESTAMPTZ NOT NULL,
		UNIQUE (facility_id, reg_no)
	)`,
	`CREATE TABLE IF NOT EXISTS vaccinations (
		dose_id      BIGSERIAL PRIMARY KEY,
		child_id     BIGINT NOT NULL,
		facility_id  BIGINT NOT NULL,
		vaccine      TEXT NOT NULL,
		date_given   TIMESTAMPTZ,
		batch_number TEXT NOT NULL DEFAULT '',
		place_given  TEXT NOT NULL DEFAULT '',
		remarks      TEXT NOT NULL DEFAULT '',
		next_visit   TIMESTAMPTZ,
		status       TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vaccinations_child ON vaccinations (child_id)`,
	`CREATE INDEX IF NOT EXISTS idx_vaccinations_facility ON vaccinations (facility_id)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id   BIGSERIAL PRIMARY KEY,
		facility_id  BIGINT NOT NULL,
		logged_in_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS backups (
		backup_id   TEXT PRIMARY KEY,
		taken_at    TIMESTAMPTZ NOT NULL,
		child_count BIGINT NOT NULL,
		dose_count  BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS password_recovery (
		attempt_id   BIGSERIAL PRIMARY KEY,
		code         TEXT NOT NULL,
		succeeded    BOOLEAN NOT NULL,
		attempted_at TIMESTAMPTZ NOT NULL
	)`,
}

// settingsDDL settings 表先于其它表创建（schema_version 记录在这里）
const sqliteSettingsDDL = `CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

const postgresSettingsDDL = `CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// RunMigrations 建表并更新 schema_version
// driver: "sqlite" 或 "postgres"
func RunMigrations(ctx context.Context, db *sql.DB, driver string, logger *zap.Logger) error {
	var settingsDDL string
	var ddl []string
	switch driver {
	case "sqlite":
		settingsDDL = sqliteSettingsDDL
		ddl = sqliteDDL
	case "postgres":
		settingsDDL = postgresSettingsDDL
		ddl = postgresDDL
	default:
		return fmt.Errorf("unsupported driver: %s", driver)
	}

	if _, err := db.ExecContext(ctx, settingsDDL); err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}

	settings := NewSQLSettingsRepository(db, driver)
	current := 0
	if v, err := settings.GetSetting(ctx, "schema_version"); err == nil && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			current = n
		}
	}
	if current >= schemaVersion {
		logger.Debug("Schema up to date", zap.Int("version", current))
		return nil
	}

	logger.Info("Running database migrations",
		zap.String("driver", driver),
		zap.Int("from_version", current),
		zap.Int("to_version", schemaVersion),
	)
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}
	if err := settings.SetSetting(ctx, "schema_version", strconv.Itoa(schemaVersion)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	logger.Info("Database migrations completed")
	return nil
}
