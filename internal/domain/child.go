package domain

import "time"

// Child 儿童登记领域模型（对应 children 表）
type Child struct {
	// 主键（存储层自增）
	ChildID int64 `db:"child_id" json:"child_id"`

	// 所属机构
	FacilityID int64 `db:"facility_id" json:"facility_id"`

	// 登记号，格式 NNN/YYYY，同机构同年度内唯一
	RegNo string `db:"reg_no" json:"reg_no"`

	// 姓名（同机构内大小写不敏感去重，登记时的尽力防重，不是硬约束键）
	Name string `db:"name" json:"name"`

	// 出生日期（登记时不得晚于当天）
	DOB time.Time `db:"dob" json:"dob"`

	Sex     string `db:"sex" json:"sex"`
	Address string `db:"address" json:"address"`
	Contact string `db:"contact" json:"contact,omitempty"` // 可选联系方式

	// 缓存的违约标记：每次剂次替换后由状态引擎重算并回写
	IsDefaulter bool `db:"is_defaulter" json:"is_defaulter"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// 读取路径上挂载的剂次记录（不落库到 children 表）
	Doses []VaccinationDose `db:"-" json:"doses,omitempty"`
}

// EditKey 编辑缓冲使用的稳定代理键（数字主键在编辑视图中可能尚未加载）
func (c Child) EditKey() string {
	return c.RegNo + "|" + c.Name
}
