package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config vaxtrack（离线免疫登记服务）配置
type Config struct {
	HTTP struct {
		Addr string
	}

	// DB.Driver: "sqlite"（默认，离线单机）或 "postgres"（机构服务器）
	DB struct {
		Driver     string
		SqlitePath string
		Postgres   DatabaseConfig
	}

	Log struct {
		Level  string
		Format string
	}

	// JWT 本地 UI 的会话令牌签名密钥
	JWTSecret string

	// 状态引擎的日窗口（默认 due-soon 7 天 / upcoming 30 天）
	DueSoonDays  int
	UpcomingDays int
}

// DatabaseConfig Postgres 连接配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
}

// DSN 拼接 lib/pq 连接串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Load 从环境变量加载配置（存在 .env 时先载入）
func Load() *Config {
	godotenv.Load()

	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8090")

	cfg.DB.Driver = getEnv("DB_DRIVER", "sqlite")
	cfg.DB.SqlitePath = getEnv("SQLITE_PATH", "vaxtrack.db")
	cfg.DB.Postgres.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Postgres.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.DB.Postgres.User = getEnv("DB_USER", "postgres")
	cfg.DB.Postgres.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Postgres.Database = getEnv("DB_NAME", "vaxtrack")
	cfg.DB.Postgres.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.DB.Postgres.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "4"), 4)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.JWTSecret = getEnv("JWT_SECRET", "vaxtrack-dev-secret")

	cfg.DueSoonDays = parseInt(getEnv("DUE_SOON_DAYS", "7"), 7)
	cfg.UpcomingDays = parseInt(getEnv("UPCOMING_DAYS", "30"), 30)

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
