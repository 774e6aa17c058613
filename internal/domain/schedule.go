package domain

// Schedule 固定免疫程序表：33 个 (疫苗, 名义周龄/月龄) 条目，标签文本即编码
// 既是可登记疫苗的全集，也是展示顺序。编译期常量，永不修改。
var Schedule = []string{
	"BCG at Birth",
	"OPV0 at Birth",
	"OPV1 at 6 weeks",
	"DPT-HepB-Hib1 at 6 weeks",
	"PCV1 at 6 weeks",
	"Rotavirus1 at 6 weeks",
	"OPV2 at 10 weeks",
	"DPT-HepB-Hib2 at 10 weeks",
	"PCV2 at 10 weeks",
	"Rotavirus2 at 10 weeks",
	"OPV3 at 14 weeks",
	"DPT-HepB-Hib3 at 14 weeks",
	"PCV3 at 14 weeks",
	"IPV at 14 weeks",
	"Vitamin A at 6 months",
	"Measles-Rubella1 at 9 months",
	"Yellow Fever at 9 months",
	"Vitamin A at 12 months",
	"Deworming at 12 months",
	"Measles-Rubella2 at 18 months",
	"Vitamin A at 18 months",
	"Deworming at 18 months",
	"Vitamin A at 24 months",
	"Deworming at 24 months",
	"Vitamin A at 30 months",
	"Deworming at 30 months",
	"Vitamin A at 36 months",
	"Deworming at 36 months",
	"Vitamin A at 42 months",
	"Deworming at 42 months",
	"Vitamin A at 48 months",
	"Deworming at 48 months",
	"Deworming at 54 months",
}

// scheduleIndex 标签 -> 展示顺序
var scheduleIndex = func() map[string]int {
	m := make(map[string]int, len(Schedule))
	for i, v := range Schedule {
		m[v] = i
	}
	return m
}()

// IsScheduledVaccine 判断标签是否属于固定程序表
func IsScheduledVaccine(label string) bool {
	_, ok := scheduleIndex[label]
	return ok
}

// ScheduleOrder 返回标签的展示顺序；不在程序表内的排到末尾
func ScheduleOrder(label string) int {
	if i, ok := scheduleIndex[label]; ok {
		return i
	}
	return len(Schedule)
}
