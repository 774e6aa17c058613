package repository

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"  // postgres driver（机构服务器部署）
	_ "modernc.org/sqlite" // pure go sqlite driver（离线单机部署）

	"vaxtrack/internal/config"
)

// OpenSqlite 打开（必要时创建）离线数据库文件
func OpenSqlite(path string) (*sql.DB, error) {
	if path == "" {
		path = "vaxtrack.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// 单写者模型：串行化连接，保存的删-插序列之间不会交错
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return db, nil
}

// OpenPostgres 连接机构服务器数据库
func OpenPostgres(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
