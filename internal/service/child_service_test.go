package service

import (
	"context"
	"errors"
	"testing"

	"vaxtrack/internal/domain"
	"vaxtrack/internal/repository"
	"vaxtrack/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type childFixture struct {
	svc        ChildService
	mem        *repository.MemoryStore
	edits      store.EditBuffer
	facilityID int64
}

func newChildFixture(t *testing.T) *childFixture {
	t.Helper()
	mem := repository.NewMemoryStore()
	facility, err := mem.CreateFacility(context.Background(), &domain.Facility{
		Code:         "HC001",
		Name:         "Test Health Centre",
		PasswordHash: HashPassword("pass"),
		CreatedAt:    testNow,
	})
	require.NoError(t, err)

	edits := store.NewMemoryEditBuffer()
	svc := NewChildService(mem, NewStatusEngine(7, 30), edits, nil, zap.NewNop())
	return &childFixture{svc: svc, mem: mem, edits: edits, facilityID: facility.FacilityID}
}

func (f *childFixture) register(t *testing.T, name string) *domain.Child {
	t.Helper()
	child, err := f.svc.RegisterChild(context.Background(), f.facilityID, RegisterChildRequest{
		Name: name,
		DOB:  testNow.AddDate(0, -2, 0),
		Sex:  "F",
	}, testNow)
	require.NoError(t, err)
	return child
}

func TestRegisterChild(t *testing.T) {
	f := newChildFixture(t)
	ctx := context.Background()

	child := f.register(t, "Amina Nansubuga")
	assert.Equal(t, "001/2024", child.RegNo)
	assert.False(t, child.IsDefaulter)

	second := f.register(t, "Kato Brian")
	assert.Equal(t, "002/2024", second.RegNo)

	t.Run("rejects duplicate name case-insensitively", func(t *testing.T) {
		_, err := f.svc.RegisterChild(ctx, f.facilityID, RegisterChildRequest{
			Name: "  amina nansubuga ",
			DOB:  testNow.AddDate(0, -1, 0),
		}, testNow)
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "name", vErr.Field)
	})

	t.Run("rejects a future date of birth", func(t *testing.T) {
		_, err := f.svc.RegisterChild(ctx, f.facilityID, RegisterChildRequest{
			Name: "Future Baby",
			DOB:  testNow.AddDate(0, 0, 1),
		}, testNow)
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "dob", vErr.Field)
	})

	t.Run("rejects an empty name", func(t *testing.T) {
		_, err := f.svc.RegisterChild(ctx, f.facilityID, RegisterChildRequest{
			Name: "   ",
			DOB:  testNow.AddDate(0, -1, 0),
		}, testNow)
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
	})
}

func TestSaveDosesSnapshotSemantics(t *testing.T) {
	f := newChildFixture(t)
	ctx := context.Background()
	child := f.register(t, "Amina")

	given := testNow.AddDate(0, -1, 0)
	saved, err := f.svc.SaveDoses(ctx, f.facilityID, child.ChildID, []DoseInput{
		{Vaccine: "BCG at Birth", DateGiven: &given, BatchNumber: "B-12", PlaceGiven: "Static", Remarks: "ok"},
		{Vaccine: "OPV1 at 6 weeks", NextVisit: datePtr(testNow.AddDate(0, 0, 5))},
		{Vaccine: "DPT-HepB-Hib1 at 6 weeks"}, // 两个日期皆空，不落库
	}, nil, testNow)
	require.NoError(t, err)
	require.Len(t, saved, 2)

	// 第二次保存是全量替换，不是增量合并
	saved, err = f.svc.SaveDoses(ctx, f.facilityID, child.ChildID, []DoseInput{
		{Vaccine: "BCG at Birth", DateGiven: &given, BatchNumber: "B-12", PlaceGiven: "Static", Remarks: "ok"},
	}, nil, testNow)
	require.NoError(t, err)
	require.Len(t, saved, 1)

	doses, err := f.mem.ListDosesForChild(ctx, f.facilityID, child.ChildID)
	require.NoError(t, err)
	assert.Len(t, doses, 1)
	assert.Equal(t, domain.DoseStatusCompleted, doses[0].Status)
	assert.Nil(t, doses[0].NextVisit)
}

func TestSaveDosesValidation(t *testing.T) {
	f := newChildFixture(t)
	ctx := context.Background()
	child := f.register(t, "Amina")
	given := testNow.AddDate(0, 0, -1)

	t.Run("batch number required when dose was given", func(t *testing.T) {
		_, err := f.svc.SaveDoses(ctx, f.facilityID, child.ChildID, []DoseInput{
			{Vaccine: "BCG at Birth", DateGiven: &given, PlaceGiven: "Static", Remarks: "ok"},
		}, nil, testNow)
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "batch_number", vErr.Field)
	})

	t.Run("unknown vaccine label rejected", func(t *testing.T) {
		_, err := f.svc.SaveDoses(ctx, f.facilityID, child.ChildID, []DoseInput{
			{Vaccine: "Smallpox", NextVisit: datePtr(testNow.AddDate(0, 0, 5))},
		}, nil, testNow)
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
	})

	t.Run("unknown child rejected", func(t *testing.T) {
		_, err := f.svc.SaveDoses(ctx, f.facilityID, 9999, nil, nil, testNow)
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
	})
}

func TestSaveDosesRecomputesDefaulterFlag(t *testing.T) {
	f := newChildFixture(t)
	ctx := context.Background()
	child := f.register(t, "Amina")

	// 逾期预约 -> 违约
	_, err := f.svc.SaveDoses(ctx, f.facilityID, child.ChildID, []DoseInput{
		{Vaccine: "OPV1 at 6 weeks", NextVisit: datePtr(testNow.AddDate(0, 0, -3))},
	}, nil, testNow)
	require.NoError(t, err)

	got, err := f.mem.GetChild(ctx, f.facilityID, child.ChildID)
	require.NoError(t, err)
	assert.True(t, got.IsDefaulter)

	// 补种后重算 -> 不再违约
	given := testNow
	_, err = f.svc.SaveDoses(ctx, f.facilityID, child.ChildID, []DoseInput{
		{Vaccine: "OPV1 at 6 weeks", DateGiven: &given, BatchNumber: "B-7", PlaceGiven: "Outreach", Remarks: "late"},
	}, nil, testNow)
	require.NoError(t, err)

	got, err = f.mem.GetChild(ctx, f.facilityID, child.ChildID)
	require.NoError(t, err)
	assert.False(t, got.IsDefaulter)
}

func TestSaveDosesWithBooking(t *testing.T) {
	f := newChildFixture(t)
	ctx := context.Background()
	child := f.register(t, "Amina")
	given := testNow.AddDate(0, 0, -10)

	saved, err := f.svc.SaveDoses(ctx, f.facilityID, child.ChildID, []DoseInput{
		{Vaccine: "BCG at Birth", DateGiven: &given, BatchNumber: "B-1", PlaceGiven: "Static", Remarks: "ok"},
	}, &BookingRequest{
		Date:     testNow.AddDate(0, 0, 14),
		Vaccines: []string{"OPV1 at 6 weeks", "DPT-HepB-Hib1 at 6 weeks"},
	}, testNow)
	require.NoError(t, err)
	require.Len(t, saved, 3)

	scheduled := 0
	for _, d := range saved {
		if d.Status == domain.DoseStatusScheduled {
			scheduled++
			require.NotNil(t, d.NextVisit)
		}
	}
	assert.Equal(t, 2, scheduled)

	t.Run("cannot book a vaccine already given", func(t *testing.T) {
		_, err := f.svc.SaveDoses(ctx, f.facilityID, child.ChildID, []DoseInput{
			{Vaccine: "BCG at Birth", DateGiven: &given, BatchNumber: "B-1", PlaceGiven: "Static", Remarks: "ok"},
		}, &BookingRequest{
			Date:     testNow.AddDate(0, 0, 14),
			Vaccines: []string{"BCG at Birth"},
		}, testNow)
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
	})
}

func TestBookableVaccinesRespectsEditBuffer(t *testing.T) {
	f := newChildFixture(t)
	ctx := context.Background()
	child := f.register(t, "Amina")
	given := testNow.AddDate(0, 0, -10)

	_, err := f.svc.SaveDoses(ctx, f.facilityID, child.ChildID, []DoseInput{
		{Vaccine: "BCG at Birth", DateGiven: &given, BatchNumber: "B-1", PlaceGiven: "Static", Remarks: "ok"},
	}, nil, testNow)
	require.NoError(t, err)

	bookable, err := f.svc.BookableVaccines(ctx, f.facilityID, child.ChildID)
	require.NoError(t, err)
	assert.NotContains(t, bookable, "BCG at Birth")
	assert.Contains(t, bookable, "OPV1 at 6 weeks")

	// 正在编辑录入 OPV1 的接种日期：本次会话中不可再预约
	f.edits.TrackEdit(child.EditKey(), "OPV1 at 6 weeks", "2024-06-14")
	bookable, err = f.svc.BookableVaccines(ctx, f.facilityID, child.ChildID)
	require.NoError(t, err)
	assert.NotContains(t, bookable, "OPV1 at 6 weeks")

	// 丢弃未保存编辑后恢复可预约
	f.edits.Clear(child.EditKey())
	bookable, err = f.svc.BookableVaccines(ctx, f.facilityID, child.ChildID)
	require.NoError(t, err)
	assert.Contains(t, bookable, "OPV1 at 6 weeks")
}

func TestSaveDosesClearsEditBuffer(t *testing.T) {
	f := newChildFixture(t)
	ctx := context.Background()
	child := f.register(t, "Amina")

	f.edits.TrackEdit(child.EditKey(), "OPV1 at 6 weeks", "2024-06-14")
	require.NotEmpty(t, f.edits.ForChild(child.EditKey()))

	_, err := f.svc.SaveDoses(ctx, f.facilityID, child.ChildID, []DoseInput{
		{Vaccine: "OPV1 at 6 weeks", NextVisit: datePtr(testNow.AddDate(0, 0, 5))},
	}, nil, testNow)
	require.NoError(t, err)
	assert.Empty(t, f.edits.ForChild(child.EditKey()))
}

func TestDeleteChildRemovesDoses(t *testing.T) {
	f := newChildFixture(t)
	ctx := context.Background()
	child := f.register(t, "Amina")

	_, err := f.svc.SaveDoses(ctx, f.facilityID, child.ChildID, []DoseInput{
		{Vaccine: "OPV1 at 6 weeks", NextVisit: datePtr(testNow.AddDate(0, 0, 5))},
	}, nil, testNow)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteChild(ctx, f.facilityID, child.ChildID))

	_, err = f.mem.GetChild(ctx, f.facilityID, child.ChildID)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
	_, err = f.mem.ListDosesForChild(ctx, f.facilityID, child.ChildID)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestChildOperationsAreFacilityScoped(t *testing.T) {
	f := newChildFixture(t)
	ctx := context.Background()
	child := f.register(t, "Amina")

	other, err := f.mem.CreateFacility(ctx, &domain.Facility{Code: "HC002", Name: "Other", CreatedAt: testNow})
	require.NoError(t, err)

	_, err = f.svc.GetChild(ctx, other.FacilityID, child.ChildID)
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)

	err = f.svc.DeleteChild(ctx, other.FacilityID, child.ChildID)
	require.ErrorAs(t, err, &vErr)
}

func TestSummaryCounts(t *testing.T) {
	f := newChildFixture(t)
	ctx := context.Background()

	overdueChild := f.register(t, "Amina")
	dueSoonChild := f.register(t, "Kato")
	upToDateChild := f.register(t, "Ruth")

	_, err := f.svc.SaveDoses(ctx, f.facilityID, overdueChild.ChildID, []DoseInput{
		{Vaccine: "OPV1 at 6 weeks", NextVisit: datePtr(testNow.AddDate(0, 0, -2))},
	}, nil, testNow)
	require.NoError(t, err)

	_, err = f.svc.SaveDoses(ctx, f.facilityID, dueSoonChild.ChildID, []DoseInput{
		{Vaccine: "DPT-HepB-Hib1 at 6 weeks", NextVisit: datePtr(testNow.AddDate(0, 0, 4))},
	}, nil, testNow)
	require.NoError(t, err)

	given := testNow.AddDate(0, -1, 0)
	_, err = f.svc.SaveDoses(ctx, f.facilityID, upToDateChild.ChildID, []DoseInput{
		{Vaccine: "BCG at Birth", DateGiven: &given, BatchNumber: "B-1", PlaceGiven: "Static", Remarks: "ok"},
	}, nil, testNow)
	require.NoError(t, err)

	summary, err := f.svc.Summary(ctx, f.facilityID, testNow)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalChildren)
	assert.Equal(t, 1, summary.Defaulters)
	assert.Equal(t, 1, summary.DueSoon)
	assert.Equal(t, 0, summary.Upcoming)
}
