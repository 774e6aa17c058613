package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"vaxtrack/internal/domain"
)

// SqliteFacilitiesRepository 机构 Repository 实现（离线单机，modernc.org/sqlite）
type SqliteFacilitiesRepository struct {
	db *sql.DB
}

// NewSqliteFacilitiesRepository 创建机构 Repository
func NewSqliteFacilitiesRepository(db *sql.DB) *SqliteFacilitiesRepository {
	return &SqliteFacilitiesRepository{db: db}
}

// 确保实现了接口
var _ FacilitiesRepository = (*SqliteFacilitiesRepository)(nil)

const sqliteFacilityColumns = `facility_id, code, name, region, district, password_hash, questions, created_at`

func scanFacility(row interface{ Scan(...any) error }) (*domain.Facility, error) {
	var f domain.Facility
	var questionsRaw string
	if err := row.Scan(
		&f.FacilityID,
		&f.Code,
		&f.Name,
		&f.Region,
		&f.District,
		&f.PasswordHash,
		&questionsRaw,
		&f.CreatedAt,
	); err != nil {
		return nil, err
	}
	qs, err := unmarshalQuestions(questionsRaw)
	if err != nil {
		return nil, err
	}
	f.Questions = qs
	return &f, nil
}

// CreateFacility 新建机构；code 在存储前统一大写
func (r *SqliteFacilitiesRepository) CreateFacility(ctx context.Context, f *domain.Facility) (*domain.Facility, error) {
	questionsRaw, err := marshalQuestions(f.Questions)
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO facilities (code, name, region, district, password_hash, questions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		strings.ToUpper(f.Code), f.Name, f.Region, f.District, f.PasswordHash, questionsRaw, f.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create facility: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read facility id: %w", err)
	}
	created := *f
	created.FacilityID = id
	created.Code = strings.ToUpper(f.Code)
	return &created, nil
}

// GetFacilityByCode 按机构代码查询（比较前统一大写）
func (r *SqliteFacilitiesRepository) GetFacilityByCode(ctx context.Context, code string) (*domain.Facility, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sqliteFacilityColumns+` FROM facilities WHERE code = ?`,
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
func (r *SqliteFacilitiesRepository) GetFacilityByID(ctx context.Context, facilityID int64) (*domain.Facility, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sqliteFacilityColumns+` FROM facilities WHERE facility_id = ?`,
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

// UpdateFacilityPassword 更新密码哈希（修改密码 / 找回密码共用）
func (r *SqliteFacilitiesRepository) UpdateFacilityPassword(ctx context.Context, facilityID int64, passwordHash []byte) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE facilities SET password_hash = ? WHERE facility_id = ?`,
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

// ListFacilities 返回全部机构（备份/恢复使用）
func (r *SqliteFacilitiesRepository) ListFacilities(ctx context.Context) ([]domain.Facility, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteFacilityColumns+` FROM facilities ORDER BY facility_id`,
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

// RecordRecoveryAttempt 追加一次找回尝试（只记录，不锁定）
func (r *SqliteFacilitiesRepository) RecordRecoveryAttempt(ctx context.Context, code string, succeeded bool, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_recovery (code, succeeded, attempted_at) VALUES (?, ?, ?)`,
		strings.ToUpper(code), succeeded, at,
	)
	if err != nil {
		return fmt.Errorf("failed to record recovery attempt: %w", err)
	}
	return nil
}
