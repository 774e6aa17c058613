package service

import (
	"time"

	"vaxtrack/internal/domain"
)

// 剂次分类
type DoseClass string

const (
	ClassCompleted DoseClass = "completed" // 已接种
	ClassOverdue   DoseClass = "overdue"   // 已过预约日（违约）
	ClassDueSoon   DoseClass = "due-soon"  // 1–7 天内到期
	ClassUpcoming  DoseClass = "upcoming"  // 8–30 天内到期
	ClassScheduled DoseClass = "scheduled" // 已预约但在 30 天窗口外
	ClassNone      DoseClass = "none"      // 两个日期字段皆空
)

// DoseStatus 单剂次分类结果
type DoseStatus struct {
	Dose  domain.VaccinationDose `json:"dose"`
	Class DoseClass              `json:"class"`

	// DaysOverdue 仅 overdue 时有意义
	DaysOverdue int `json:"days_overdue,omitempty"`
	// DaysUntil 仅 due-soon / upcoming / scheduled 时有意义
	DaysUntil int `json:"days_until,omitempty"`
}

// ChildSummary 单儿童聚合结果：所属桶与用于展示的"代表剂次"
type ChildSummary struct {
	Child    domain.Child           `json:"child"`
	Bucket   DoseClass              `json:"bucket"`
	Featured domain.VaccinationDose `json:"featured"`
	Days     int                    `json:"days"` // overdue: 逾期天数；其余: 距到期天数
}

// Buckets 汇总视图的三个互斥桶（每儿童至多出现一次，overdue 优先级最高）
type Buckets struct {
	Defaulters []ChildSummary `json:"defaulters"`
	DueSoon    []ChildSummary `json:"due_soon"`
	Upcoming   []ChildSummary `json:"upcoming"`
}

// StatusEngine 状态引擎：对 (剂次集合, 当前日期) 的纯函数
// 日期按本地日历日比较（截断到天）
type StatusEngine struct {
	dueSoonDays  int
	upcomingDays int
}

// NewStatusEngine 创建状态引擎；窗口默认 7 / 30 天
func NewStatusEngine(dueSoonDays, upcomingDays int) *StatusEngine {
	if dueSoonDays <= 0 {
		dueSoonDays = 7
	}
	if upcomingDays <= dueSoonDays {
		upcomingDays = 30
	}
	return &StatusEngine{dueSoonDays: dueSoonDays, upcomingDays: upcomingDays}
}

// truncateToDay 取各自所在时区的日历日，统一映射到 UTC 午夜再比较。
// 记录里的日期是 UTC 午夜、now 是设备本地时间，混合时区下直接相减会
// 把不足一天的差值截掉，这里只比较年月日。
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dayDelta b 相对 a 的日历日差（a、b 同一天为 0）
func dayDelta(a, b time.Time) int {
	return int(truncateToDay(b).Sub(truncateToDay(a)).Hours() / 24)
}

// ClassifyDose 单剂次分类
func (e *StatusEngine) ClassifyDose(d domain.VaccinationDose, now time.Time) DoseStatus {
	if d.DateGiven != nil {
		return DoseStatus{Dose: d, Class: ClassCompleted}
	}
	if d.NextVisit == nil {
		return DoseStatus{Dose: d, Class: ClassNone}
	}
	delta := dayDelta(now, *d.NextVisit)
	switch {
	case delta < 0:
		return DoseStatus{Dose: d, Class: ClassOverdue, DaysOverdue: -delta}
	case delta == 0:
		// 当天到期：还没过期，也不满足 daysUntil > 0，不进任何桶
		return DoseStatus{Dose: d, Class: ClassScheduled, DaysUntil: 0}
	case delta <= e.dueSoonDays:
		return DoseStatus{Dose: d, Class: ClassDueSoon, DaysUntil: delta}
	case delta <= e.upcomingDays:
		return DoseStatus{Dose: d, Class: ClassUpcoming, DaysUntil: delta}
	default:
		// 窗口外：不进任何汇总桶，但仍是合法的已预约剂次
		return DoseStatus{Dose: d, Class: ClassScheduled, DaysUntil: delta}
	}
}

// ClassifyDoses 整组剂次分类（保持输入顺序）
func (e *StatusEngine) ClassifyDoses(doses []domain.VaccinationDose, now time.Time) []DoseStatus {
	out := make([]DoseStatus, 0, len(doses))
	for _, d := range doses {
		out = append(out, e.ClassifyDose(d, now))
	}
	return out
}

// IsDefaulter 任一剂次 overdue 即违约
func (e *StatusEngine) IsDefaulter(doses []domain.VaccinationDose, now time.Time) bool {
	for _, d := range doses {
		if e.ClassifyDose(d, now).Class == ClassOverdue {
			return true
		}
	}
	return false
}

// classifyChild 儿童归桶：overdue > due-soon > upcoming，代表剂次取
// 最小 nextVisit（并列时取输入顺序靠前者）
func (e *StatusEngine) classifyChild(c domain.Child, now time.Time) (ChildSummary, bool) {
	var best *DoseStatus
	rank := func(cl DoseClass) int {
		switch cl {
		case ClassOverdue:
			return 0
		case ClassDueSoon:
			return 1
		case ClassUpcoming:
			return 2
		}
		return 3
	}
	for i := range c.Doses {
		st := e.ClassifyDose(c.Doses[i], now)
		if rank(st.Class) == 3 {
			continue
		}
		if best == nil {
			cp := st
			best = &cp
			continue
		}
		switch {
		case rank(st.Class) < rank(best.Class):
			cp := st
			best = &cp
		case rank(st.Class) == rank(best.Class):
			// 同桶内取最小 nextVisit；严格小于才替换，保证并列先到先得
			if st.Dose.NextVisit.Before(*best.Dose.NextVisit) {
				cp := st
				best = &cp
			}
		}
	}
	if best == nil {
		return ChildSummary{}, false
	}
	days := best.DaysUntil
	if best.Class == ClassOverdue {
		days = best.DaysOverdue
	}
	return ChildSummary{Child: c, Bucket: best.Class, Featured: best.Dose, Days: days}, true
}

// Aggregate 汇总视图：按儿童身份去重，每儿童至多计入一个桶
func (e *StatusEngine) Aggregate(children []domain.Child, now time.Time) Buckets {
	var b Buckets
	for _, c := range children {
		summary, ok := e.classifyChild(c, now)
		if !ok {
			continue
		}
		switch summary.Bucket {
		case ClassOverdue:
			b.Defaulters = append(b.Defaulters, summary)
		case ClassDueSoon:
			b.DueSoon = append(b.DueSoon, summary)
		case ClassUpcoming:
			b.Upcoming = append(b.Upcoming, summary)
		}
	}
	return b
}
