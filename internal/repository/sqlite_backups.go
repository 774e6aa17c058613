package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"vaxtrack/internal/domain"
)

// SqliteBackupsRepository 备份/恢复 Repository 实现（离线单机）
type SqliteBackupsRepository struct {
	db *sql.DB
}

// NewSqliteBackupsRepository 创建备份 Repository
func NewSqliteBackupsRepository(db *sql.DB) *SqliteBackupsRepository {
	return &SqliteBackupsRepository{db: db}
}

// 确保实现了接口
var _ BackupsRepository = (*SqliteBackupsRepository)(nil)

// RecordBackup 在 backups 表记录一次备份
func (r *SqliteBackupsRepository) RecordBackup(ctx context.Context, backupID string, takenAt time.Time, childCount, doseCount int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO backups (backup_id, taken_at, child_count, dose_count) VALUES (?, ?, ?, ?)`,
		backupID, takenAt, childCount, doseCount,
	)
	if err != nil {
		return fmt.Errorf("failed to record backup: %w", err)
	}
	return nil
}

// RestoreAll 单事务：清空三个集合后整体写入新数据
// 保留恢复文档里的主键，维持 child_id / dose_id 的关联
func (r *SqliteBackupsRepository) RestoreAll(ctx context.Context, facilities []domain.Facility, children []domain.Child, doses []domain.VaccinationDose) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin restore: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"vaccinations", "children", "facilities"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, f := range facilities {
		questionsRaw, err := marshalQuestions(f.Questions)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO facilities (facility_id, code, name, region, district, password_hash, questions, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.FacilityID, strings.ToUpper(f.Code), f.Name, f.Region, f.District, f.PasswordHash, questionsRaw, f.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to restore facility: %w", err)
		}
	}

	for _, c := range children {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO children (child_id, facility_id, reg_no, name, dob, sex, address, contact, is_defaulter, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ChildID, c.FacilityID, c.RegNo, c.Name, c.DOB, c.Sex, c.Address, c.Contact, c.IsDefaulter, c.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to restore child: %w", err)
		}
	}

	for _, d := range doses {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vaccinations (dose_id, child_id, facility_id, vaccine, date_given, batch_number, place_given, remarks, next_visit, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.DoseID, d.ChildID, d.FacilityID, d.Vaccine, d.DateGiven, d.BatchNumber, d.PlaceGiven, d.Remarks, d.NextVisit, d.Status,
		); err != nil {
			return fmt.Errorf("failed to restore dose: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit restore: %w", err)
	}
	return nil
}
