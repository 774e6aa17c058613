package service

import (
	"testing"
	"time"

	"vaxtrack/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

func datePtr(t time.Time) *time.Time { return &t }

func doseNextVisit(vaccine string, visit time.Time) domain.VaccinationDose {
	return domain.VaccinationDose{Vaccine: vaccine, NextVisit: datePtr(visit)}.Normalize()
}

func doseGiven(vaccine string, given time.Time) domain.VaccinationDose {
	return domain.VaccinationDose{Vaccine: vaccine, DateGiven: datePtr(given)}.Normalize()
}

func TestClassifyDose(t *testing.T) {
	engine := NewStatusEngine(7, 30)

	t.Run("completed when date given is set", func(t *testing.T) {
		st := engine.ClassifyDose(doseGiven("BCG at Birth", testNow.AddDate(0, -2, 0)), testNow)
		assert.Equal(t, ClassCompleted, st.Class)
	})

	t.Run("none when both dates are empty", func(t *testing.T) {
		st := engine.ClassifyDose(domain.VaccinationDose{Vaccine: "OPV1 at 6 weeks"}, testNow)
		assert.Equal(t, ClassNone, st.Class)
	})

	t.Run("overdue when next visit was yesterday", func(t *testing.T) {
		st := engine.ClassifyDose(doseNextVisit("OPV1 at 6 weeks", testNow.AddDate(0, 0, -1)), testNow)
		assert.Equal(t, ClassOverdue, st.Class)
		assert.Equal(t, 1, st.DaysOverdue)
	})

	t.Run("due today is scheduled, not overdue and not due-soon", func(t *testing.T) {
		st := engine.ClassifyDose(doseNextVisit("OPV1 at 6 weeks", testNow), testNow)
		assert.Equal(t, ClassScheduled, st.Class)
		assert.Equal(t, 0, st.DaysUntil)
	})

	t.Run("due-soon inside the 7 day window", func(t *testing.T) {
		for _, days := range []int{1, 3, 7} {
			st := engine.ClassifyDose(doseNextVisit("OPV1 at 6 weeks", testNow.AddDate(0, 0, days)), testNow)
			assert.Equal(t, ClassDueSoon, st.Class, "days=%d", days)
			assert.Equal(t, days, st.DaysUntil)
		}
	})

	t.Run("upcoming between 8 and 30 days", func(t *testing.T) {
		for _, days := range []int{8, 15, 30} {
			st := engine.ClassifyDose(doseNextVisit("OPV1 at 6 weeks", testNow.AddDate(0, 0, days)), testNow)
			assert.Equal(t, ClassUpcoming, st.Class, "days=%d", days)
		}
	})

	t.Run("scheduled beyond the 30 day window", func(t *testing.T) {
		st := engine.ClassifyDose(doseNextVisit("OPV1 at 6 weeks", testNow.AddDate(0, 0, 45)), testNow)
		assert.Equal(t, ClassScheduled, st.Class)
		assert.Equal(t, 45, st.DaysUntil)
	})

	t.Run("calendar day comparison ignores time of day", func(t *testing.T) {
		// 预约日是明天 00:05，now 是今天 10:30：仍是 1 天后
		visit := time.Date(2024, 6, 16, 0, 5, 0, 0, time.UTC)
		st := engine.ClassifyDose(doseNextVisit("OPV1 at 6 weeks", visit), testNow)
		assert.Equal(t, ClassDueSoon, st.Class)
		assert.Equal(t, 1, st.DaysUntil)
	})

	t.Run("mixed time zones still compare by calendar date", func(t *testing.T) {
		// 记录里的日期是 UTC 午夜，now 是设备本地时间（UTC+3）
		kampala := time.FixedZone("EAT", 3*60*60)
		localNow := time.Date(2024, 6, 15, 10, 30, 0, 0, kampala)

		yesterday := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
		st := engine.ClassifyDose(doseNextVisit("OPV1 at 6 weeks", yesterday), localNow)
		assert.Equal(t, ClassOverdue, st.Class)
		assert.Equal(t, 1, st.DaysOverdue)

		tomorrow := time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC)
		st = engine.ClassifyDose(doseNextVisit("OPV1 at 6 weeks", tomorrow), localNow)
		assert.Equal(t, ClassDueSoon, st.Class)
		assert.Equal(t, 1, st.DaysUntil)

		today := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
		st = engine.ClassifyDose(doseNextVisit("OPV1 at 6 weeks", today), localNow)
		assert.Equal(t, ClassScheduled, st.Class)
		assert.Equal(t, 0, st.DaysUntil)
	})
}

func TestIsDefaulter(t *testing.T) {
	engine := NewStatusEngine(7, 30)

	doses := []domain.VaccinationDose{
		doseGiven("BCG at Birth", testNow.AddDate(0, -3, 0)),
		doseNextVisit("OPV1 at 6 weeks", testNow.AddDate(0, 0, 10)),
	}
	assert.False(t, engine.IsDefaulter(doses, testNow))

	doses = append(doses, doseNextVisit("DPT-HepB-Hib1 at 6 weeks", testNow.AddDate(0, 0, -2)))
	assert.True(t, engine.IsDefaulter(doses, testNow))
}

func TestAggregateBucketsAreMutuallyExclusive(t *testing.T) {
	engine := NewStatusEngine(7, 30)

	// 同一儿童既有逾期又有 due-soon 剂次：只进 defaulters
	child := domain.Child{
		ChildID: 1, Name: "Amina", RegNo: "001/2024",
		Doses: []domain.VaccinationDose{
			doseNextVisit("OPV1 at 6 weeks", testNow.AddDate(0, 0, -5)),
			doseNextVisit("DPT-HepB-Hib1 at 6 weeks", testNow.AddDate(0, 0, 3)),
		},
	}

	b := engine.Aggregate([]domain.Child{child}, testNow)
	require.Len(t, b.Defaulters, 1)
	assert.Empty(t, b.DueSoon)
	assert.Empty(t, b.Upcoming)
	assert.Equal(t, "OPV1 at 6 weeks", b.Defaulters[0].Featured.Vaccine)
	assert.Equal(t, 5, b.Defaulters[0].Days)
}

func TestAggregateFeaturedDoseIsEarliestVisit(t *testing.T) {
	engine := NewStatusEngine(7, 30)

	child := domain.Child{
		ChildID: 2, Name: "Kato", RegNo: "002/2024",
		Doses: []domain.VaccinationDose{
			doseNextVisit("Measles-Rubella1 at 9 months", testNow.AddDate(0, 0, 6)),
			doseNextVisit("OPV1 at 6 weeks", testNow.AddDate(0, 0, 2)),
			doseNextVisit("DPT-HepB-Hib1 at 6 weeks", testNow.AddDate(0, 0, 2)),
		},
	}

	b := engine.Aggregate([]domain.Child{child}, testNow)
	require.Len(t, b.DueSoon, 1)
	// 并列最早时取先出现的那剂
	assert.Equal(t, "OPV1 at 6 weeks", b.DueSoon[0].Featured.Vaccine)
	assert.Equal(t, 2, b.DueSoon[0].Days)
}

func TestAggregateSkipsChildrenOutsideAllWindows(t *testing.T) {
	engine := NewStatusEngine(7, 30)

	children := []domain.Child{
		{ChildID: 3, Name: "Ruth", Doses: []domain.VaccinationDose{
			doseGiven("BCG at Birth", testNow.AddDate(0, -1, 0)),
		}},
		{ChildID: 4, Name: "Okello", Doses: []domain.VaccinationDose{
			doseNextVisit("OPV1 at 6 weeks", testNow.AddDate(0, 0, 45)),
		}},
		{ChildID: 5, Name: "Grace", Doses: []domain.VaccinationDose{
			doseNextVisit("OPV1 at 6 weeks", testNow.AddDate(0, 0, 12)),
		}},
	}

	b := engine.Aggregate(children, testNow)
	assert.Empty(t, b.Defaulters)
	assert.Empty(t, b.DueSoon)
	require.Len(t, b.Upcoming, 1)
	assert.Equal(t, "Grace", b.Upcoming[0].Child.Name)
}
