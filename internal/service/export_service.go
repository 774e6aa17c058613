package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"vaxtrack/internal/domain"
	"vaxtrack/internal/repository"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const exportSheet = "Immunization Register"

// ExportService 免疫登记册导出服务接口
type ExportService interface {
	// ExportRegister 导出机构登记册为 xlsx 字节流（每个剂次一行）
	ExportRegister(ctx context.Context, facilityID int64, now time.Time) ([]byte, error)
}

// exportService 实现
type exportService struct {
	children repository.ChildrenRepository
	engine   *StatusEngine
	logger   *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(children repository.ChildrenRepository, engine *StatusEngine, logger *zap.Logger) ExportService {
	return &exportService{children: children, engine: engine, logger: logger}
}

// ExportRegister 生成登记册工作簿
func (s *exportService) ExportRegister(ctx context.Context, facilityID int64, now time.Time) ([]byte, error) {
	children, err := s.children.ListChildren(ctx, facilityID)
	if err != nil {
		return nil, domain.NewStorageError("export register", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Reg No", "Name", "Date of Birth", "Sex", "Vaccine", "Date Given", "Batch No", "Next Visit", "Status"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	rowIdx := 2
	for _, child := range children {
		statuses := s.engine.ClassifyDoses(child.Doses, now)
		for _, st := range statuses {
			row := []interface{}{
				child.RegNo,
				child.Name,
				child.DOB.Format("2006-01-02"),
				child.Sex,
				st.Dose.Vaccine,
				formatDate(st.Dose.DateGiven),
				st.Dose.BatchNumber,
				formatDate(st.Dose.NextVisit),
				string(st.Class),
			}
			for col, v := range row {
				cell, _ := excelize.CoordinatesToCellName(col+1, rowIdx)
				if err := f.SetCellValue(exportSheet, cell, v); err != nil {
					return nil, fmt.Errorf("failed to write row: %w", err)
				}
			}
			rowIdx++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	s.logger.Info("Register exported",
		zap.Int64("facility_id", facilityID),
		zap.Int("children", len(children)),
		zap.Int("rows", rowIdx-2),
	)
	return buf.Bytes(), nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
