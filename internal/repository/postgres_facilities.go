package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"vaxtrack/internal/domain"
)

// PostgresFacilitiesRepository 机构 Repository 实现（机构服务器部署，lib/pq）
type PostgresFacilitiesRepository struct {
	db *sql.DB
}

// NewPostgresFacilitiesRepository 创建机构 Repository
func NewPostgresFacilitiesRepository(db *sql.DB) *PostgresFacilitiesRepository {
	return &PostgresFacilitiesRepository{db: db}
}

// 确保实现了接口
var _ FacilitiesRepository = (*PostgresFacilitiesRepository)(nil)

// CreateFacility 新建机构；code 在存储前统一大写
func (r *PostgresFacilitiesRepository) CreateFacility(ctx context.Context, f *domain.Facility) (*domain.Facility, error) {
	questionsRaw, err := marshalQuestions(f.Questions)
	if err != nil {
		return nil, err
	}
	var id int64
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO facilities (code, name, region, district, password_hash, questions, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING facility_id`,
		strings.ToUpper(f.Code), f.Name, f.Region, f.District, f.PasswordHash, questionsRaw, f.CreatedAt,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create facility: %w", err)
	}
	created := *f
	created.FacilityID = id
	created.Code = strings.ToUpper(f.Code)
	return &created, nil
}

// GetFacilityByCode 按机构代码查询（比较前统一大写）
func (r *PostgresFacilitiesRepository) GetFacilityByCode(ctx context.Context, code string) (*domain.Facility, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT facility_id, code, name, region, district, password_hash, questions, created_at
		   FROM facilities WHERE code = $1`,
		strings.ToUpper(code),
	)
	f, err := scanFacility(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get facility by code: %w", err)
	}
	return f, nil
}

// GetFacilityByID 按主键查询
func (r *PostgresFacilitiesRepository) GetFacilityByID(ctx context.Context, facilityID int64) (*domain.Facility, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT facility_id, code, name, region, district, password_hash, questions, created_at
		   FROM facilities WHERE facility_id = $1`,
		facilityID,
	)
	f, err := scanFacility(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get facility: %w", err)
	}
	return f, nil
}

// UpdateFacilityPassword 更新密码哈希
func (r *PostgresFacilitiesRepository) UpdateFacilityPassword(ctx context.Context, facilityID int64, passwordHash []byte) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE facilities SET password_hash = $1 WHERE facility_id = $2`,
		passwordHash, facilityID,
	)
	if err != nil {
		return fmt.Errorf("failed to update facility password: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFacilities 返回全部机构
func (r *PostgresFacilitiesRepository) ListFacilities(ctx context.Context) ([]domain.Facility, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT facility_id, code, name, region, district, password_hash, questions, created_at
		   FROM facilities ORDER BY facility_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list facilities: %w", err)
	}
	defer rows.Close()

	var facilities []domain.Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan facility: %w", err)
		}
		facilities = append(facilities, *f)
	}
	return facilities, rows.Err()
}

// RecordRecoveryAttempt 追加一次找回尝试
func (r *PostgresFacilitiesRepository) RecordRecoveryAttempt(ctx context.Context, code string, succeeded bool, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_recovery (code, succeeded, attempted_at) VALUES ($1, $2, $3)`,
		strings.ToUpper(code), succeeded, at,
	)
	if err != nil {
		return fmt.Errorf("failed to record recovery attempt: %w", err)
	}
	return nil
}
