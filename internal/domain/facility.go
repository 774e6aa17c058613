package domain

import "time"

// Facility 卫生机构领域模型（对应 facilities 表）
// 一个 Facility 是一个租户边界：所有 Child / VaccinationDose 都归属唯一机构
type Facility struct {
	// 主键（存储层自增）
	FacilityID int64 `db:"facility_id" json:"facility_id"`

	// 机构代码（全局唯一，存储前统一大写）
	Code string `db:"code" json:"code"`

	Name     string `db:"name" json:"name"`
	Region   string `db:"region" json:"region"`
	District string `db:"district" json:"district"`

	// 密码哈希（SHA256；不保存明文）
	PasswordHash []byte `db:"password_hash" json:"password_hash"`

	// 密保问题（有序，至少 2 组）
	Questions []SecurityQuestion `db:"-" json:"questions"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SecurityQuestion 密保问答对（答案比较前 trim + 小写，再哈希）
type SecurityQuestion struct {
	Question   string `db:"question" json:"question"`
	AnswerHash []byte `db:"answer_hash" json:"answer_hash"`
}
