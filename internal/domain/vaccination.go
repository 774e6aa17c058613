package domain

import "time"

// 剂次记录状态
const (
	DoseStatusPending   = "pending"
	DoseStatusCompleted = "completed"
	DoseStatusScheduled = "scheduled"
)

// VaccinationDose 剂次记录领域模型（对应 vaccinations 表）
// 不变式：
// - DateGiven 非空 => status=completed 且 NextVisit 为空
// - NextVisit 非空且 DateGiven 为空 => status=scheduled
// - 两者皆空的记录不落库
type VaccinationDose struct {
	// 主键（存储层自增）
	DoseID int64 `db:"dose_id" json:"dose_id"`

	ChildID    int64 `db:"child_id" json:"child_id"`
	FacilityID int64 `db:"facility_id" json:"facility_id"`

	// 疫苗标签，取自固定免疫程序表（如 "OPV1 at 6 weeks"）
	Vaccine string `db:"vaccine" json:"vaccine"`

	DateGiven   *time.Time `db:"date_given" json:"date_given,omitempty"`
	BatchNumber string     `db:"batch_number" json:"batch_number,omitempty"`
	PlaceGiven  string     `db:"place_given" json:"place_given,omitempty"`
	Remarks     string     `db:"remarks" json:"remarks,omitempty"`

	NextVisit *time.Time `db:"next_visit" json:"next_visit,omitempty"`

	Status string `db:"status" json:"status"`
}

// Meaningful 判断记录是否需要落库（两个关键日期均为空的行丢弃）
func (d VaccinationDose) Meaningful() bool {
	return d.DateGiven != nil || d.NextVisit != nil
}

// DeriveStatus 按不变式从两个日期字段推导状态
func (d VaccinationDose) DeriveStatus() string {
	if d.DateGiven != nil {
		return DoseStatusCompleted
	}
	if d.NextVisit != nil {
		return DoseStatusScheduled
	}
	return DoseStatusPending
}

// Normalize 返回满足不变式的副本：completed 清空 NextVisit，状态字段重算
func (d VaccinationDose) Normalize() VaccinationDose {
	if d.DateGiven != nil {
		d.NextVisit = nil
	}
	d.Status = d.DeriveStatus()
	return d
}
