package domain

import "time"

// Session 当前机构会话（对应 sessions 表）
// 只保留最近一次登录记录：登录时覆盖写入，冷启动时读回以恢复机构上下文
type Session struct {
	SessionID  int64     `db:"session_id" json:"session_id"`
	FacilityID int64     `db:"facility_id" json:"facility_id"`
	LoggedInAt time.Time `db:"logged_in_at" json:"logged_in_at"`
}
