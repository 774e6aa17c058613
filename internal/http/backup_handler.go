package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"vaxtrack/internal/service"

	"go.uber.org/zap"
)

// BackupHandler 备份/恢复/登记册导出 Handler
type BackupHandler struct {
	backupService service.BackupService
	exportService service.ExportService
	tokens        *TokenManager
	logger        *zap.Logger
}

// NewBackupHandler 创建 BackupHandler
func NewBackupHandler(backupService service.BackupService, exportService service.ExportService, tokens *TokenManager, logger *zap.Logger) *BackupHandler {
	return &BackupHandler{
		backupService: backupService,
		exportService: exportService,
		tokens:        tokens,
		logger:        logger,
	}
}

// Backup 导出备份文档
func (h *BackupHandler) Backup(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.tokens.FacilityFromRequest(w, r); !ok {
		return
	}
	doc, err := h.backupService.Backup(r.Context(), time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(doc))
}

// Restore 从上传的备份文档全量恢复
// 请求体就是备份文件本体（备份接口返回的 result 字段）
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.tokens.FacilityFromRequest(w, r); !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("failed to read backup file"))
		return
	}
	result, err := h.backupService.Restore(r.Context(), raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// ExportRegister 导出登记册 xlsx
func (h *BackupHandler) ExportRegister(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := h.tokens.FacilityFromRequest(w, r)
	if !ok {
		return
	}
	now := time.Now()
	data, err := h.exportService.ExportRegister(r.Context(), facilityID, now)
	if err != nil {
		writeError(w, err)
		return
	}
	filename := fmt.Sprintf("immunization-register-%s.xlsx", now.Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
