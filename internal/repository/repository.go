package repository

import (
	"context"
	"errors"
	"time"

	"vaxtrack/internal/domain"
)

// ErrNotFound 目标记录不存在（含跨机构访问被拒的场景）
var ErrNotFound = errors.New("record not found")

// ChildUpdate 儿童记录的部分更新载荷
// 只允许更新可编辑字段；RegNo / ChildID / FacilityID 不可变
type ChildUpdate struct {
	Name    *string
	DOB     *time.Time
	Sex     *string
	Address *string
	Contact *string
}

// FacilitiesRepository 机构表操作
type FacilitiesRepository interface {
	CreateFacility(ctx context.Context, f *domain.Facility) (*domain.Facility, error)
	GetFacilityByCode(ctx context.Context, code string) (*domain.Facility, error)
	GetFacilityByID(ctx context.Context, facilityID int64) (*domain.Facility, error)
	UpdateFacilityPassword(ctx context.Context, facilityID int64, passwordHash []byte) error
	ListFacilities(ctx context.Context) ([]domain.Facility, error)

	// RecordRecoveryAttempt 向 password_recovery 表追加一次找回尝试
	// 只记录，不做锁定/退避
	RecordRecoveryAttempt(ctx context.Context, code string, succeeded bool, at time.Time) error
}

// ChildrenRepository 儿童 + 剂次表操作
// 跨两张表的修改（DeleteChild / ReplaceChildDoses）必须在单个事务内完成
type ChildrenRepository interface {
	CreateChild(ctx context.Context, c *domain.Child) (*domain.Child, error)
	UpdateChild(ctx context.Context, facilityID, childID int64, fields ChildUpdate) (*domain.Child, error)

	// DeleteChild 原子删除：儿童记录与其全部剂次作为一个单元删除
	DeleteChild(ctx context.Context, facilityID, childID int64) error

	GetChild(ctx context.Context, facilityID, childID int64) (*domain.Child, error)

	// ListChildren 返回机构内全部儿童，剂次按程序表顺序挂载在 Doses 上
	ListChildren(ctx context.Context, facilityID int64) ([]domain.Child, error)

	ListDosesForChild(ctx context.Context, facilityID, childID int64) ([]domain.VaccinationDose, error)

	// ReplaceChildDoses 保存路径：先删除该儿童全部剂次，再整体插入新集合，单事务
	// 调用方提交的是完整快照（含已接种与未接种行），无需逐行 diff
	ReplaceChildDoses(ctx context.Context, facilityID, childID int64, doses []domain.VaccinationDose) ([]domain.VaccinationDose, error)

	// SetDefaulter 回写缓存的违约标记
	SetDefaulter(ctx context.Context, facilityID, childID int64, isDefaulter bool) error
}

// SessionsRepository 会话表操作（只保留最近一次登录）
type SessionsRepository interface {
	SaveSession(ctx context.Context, facilityID int64, at time.Time) error
	LatestSession(ctx context.Context) (*domain.Session, error)
	ClearSessions(ctx context.Context) error
}

// BackupsRepository 备份/恢复操作
type BackupsRepository interface {
	// RecordBackup 在 backups 表记录一次备份（元数据，不存文档本体）
	RecordBackup(ctx context.Context, backupID string, takenAt time.Time, childCount, doseCount int) error

	// RestoreAll 单事务内清空三个集合并整体写入新数据
	// 中途失败必须回滚，读方只能看到全旧或全新
	RestoreAll(ctx context.Context, facilities []domain.Facility, children []domain.Child, doses []domain.VaccinationDose) error
}

// SettingsRepository 键值设置表
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}
