package service

import (
	"context"
	"encoding/json"
	"time"

	"vaxtrack/internal/domain"
	"vaxtrack/internal/repository"
	"vaxtrack/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BackupService 备份/恢复服务接口
// 备份导出整个本地存储为单个 JSON 文档；恢复为全量替换。
type BackupService interface {
	Backup(ctx context.Context, now time.Time) (*BackupDocument, error)
	Restore(ctx context.Context, raw []byte) (*RestoreResult, error)
}

// BackupDocument 备份文档（JSON 序列化后交给调用方落盘/下载）
type BackupDocument struct {
	BackupID     string                   `json:"backup_id"`
	BackupDate   string                   `json:"backup_date"` // ISO-8601
	Facilities   []domain.Facility        `json:"facilities"`
	Children     []domain.Child           `json:"children"`
	Vaccinations []domain.VaccinationDose `json:"vaccinations"`
}

// RestoreResult 恢复结果计数
type RestoreResult struct {
	Facilities   int `json:"facilities"`
	Children     int `json:"children"`
	Vaccinations int `json:"vaccinations"`
}

// backupService 实现
type backupService struct {
	facilities repository.FacilitiesRepository
	children   repository.ChildrenRepository
	backups    repository.BackupsRepository
	sessions   repository.SessionsRepository
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewBackupService 创建 BackupService 实例
func NewBackupService(
	facilities repository.FacilitiesRepository,
	children repository.ChildrenRepository,
	backups repository.BackupsRepository,
	sessions repository.SessionsRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) BackupService {
	return &backupService{
		facilities: facilities,
		children:   children,
		backups:    backups,
		sessions:   sessions,
		metrics:    m,
		logger:     logger,
	}
}

// Backup 导出全部机构/儿童/剂次为一个备份文档，并在备份表记一笔元数据
func (s *backupService) Backup(ctx context.Context, now time.Time) (*BackupDocument, error) {
	facilities, err := s.facilities.ListFacilities(ctx)
	if err != nil {
		return nil, domain.NewStorageError("backup", err)
	}

	allChildren := []domain.Child{}
	allDoses := []domain.VaccinationDose{}
	for _, f := range facilities {
		children, err := s.children.ListChildren(ctx, f.FacilityID)
		if err != nil {
			return nil, domain.NewStorageError("backup", err)
		}
		for _, c := range children {
			allDoses = append(allDoses, c.Doses...)
			c.Doses = nil
			allChildren = append(allChildren, c)
		}
	}

	doc := &BackupDocument{
		BackupID:     uuid.NewString(),
		BackupDate:   now.Format(time.RFC3339),
		Facilities:   facilities,
		Children:     allChildren,
		Vaccinations: allDoses,
	}

	if err := s.backups.RecordBackup(ctx, doc.BackupID, now, len(allChildren), len(allDoses)); err != nil {
		return nil, domain.NewStorageError("record backup", err)
	}

	if s.metrics != nil {
		s.metrics.BackupsTaken.Inc()
	}
	s.logger.Info("Backup taken",
		zap.String("backup_id", doc.BackupID),
		zap.Int("facilities", len(facilities)),
		zap.Int("children", len(allChildren)),
		zap.Int("vaccinations", len(allDoses)),
	)
	return doc, nil
}

// Restore 从备份文档全量恢复
// 文档格式先于任何写入校验：children / vaccinations 键缺失即中止，数据不动。
// 替换在单事务内完成，中途失败回滚到恢复前的状态。
func (s *backupService) Restore(ctx context.Context, raw []byte) (*RestoreResult, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, domain.NewFormatError("backup file is not a valid JSON document")
	}
	if _, ok := keys["children"]; !ok {
		return nil, domain.NewFormatError("backup file is missing the children collection")
	}
	if _, ok := keys["vaccinations"]; !ok {
		return nil, domain.NewFormatError("backup file is missing the vaccinations collection")
	}

	var doc BackupDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, domain.NewFormatError("backup file does not match the expected document shape")
	}

	if err := s.backups.RestoreAll(ctx, doc.Facilities, doc.Children, doc.Vaccinations); err != nil {
		if s.metrics != nil {
			s.metrics.ErrorsCount.WithLabelValues("restore").Inc()
		}
		return nil, domain.NewStorageError("restore", err)
	}

	// 旧会话可能指向已被替换的机构，恢复后一律登出
	if err := s.sessions.ClearSessions(ctx); err != nil {
		s.logger.Warn("Failed to clear sessions after restore", zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.RestoreRuns.Inc()
	}
	s.logger.Info("Restore completed",
		zap.String("backup_id", doc.BackupID),
		zap.Int("facilities", len(doc.Facilities)),
		zap.Int("children", len(doc.Children)),
		zap.Int("vaccinations", len(doc.Vaccinations)),
	)
	return &RestoreResult{
		Facilities:   len(doc.Facilities),
		Children:     len(doc.Children),
		Vaccinations: len(doc.Vaccinations),
	}, nil
}
