package service

import (
	"fmt"
	"time"

	"vaxtrack/internal/domain"
)

// GenerateRegNo 生成年度登记号，格式 NNN/YYYY
// 序号 = 当年已登记数 + 1（零填充 3 位）；跨年从 001 重新计数。
// 防御性地对全量儿童（不限当年）查重，撞号则顺延重试。
// 必须在插入时刻用最新儿童集合重新求值，不允许缓存。
// 序号超过 999 时自然变宽（1000/YYYY），登记号保持唯一。
func GenerateRegNo(existing []domain.Child, now time.Time) string {
	year := now.Year()
	seq := 0
	for _, c := range existing {
		if c.CreatedAt.Year() == year {
			seq++
		}
	}

	taken := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		taken[c.RegNo] = struct{}{}
	}

	for {
		seq++
		regNo := fmt.Sprintf("%03d/%d", seq, year)
		if _, exists := taken[regNo]; !exists {
			return regNo
		}
	}
}
