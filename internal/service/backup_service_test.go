package service

import (
	"context"
	"encoding/json"
	"testing"

	"vaxtrack/internal/domain"
	"vaxtrack/internal/repository"
	"vaxtrack/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type backupFixture struct {
	backup BackupService
	childs ChildService
	auth   AuthService
	mem    *repository.MemoryStore
}

func newBackupFixture(t *testing.T) *backupFixture {
	t.Helper()
	mem := repository.NewMemoryStore()
	logger := zap.NewNop()
	engine := NewStatusEngine(7, 30)
	return &backupFixture{
		backup: NewBackupService(mem, mem, mem, mem, nil, logger),
		childs: NewChildService(mem, engine, store.NewMemoryEditBuffer(), nil, logger),
		auth:   NewAuthService(mem, mem, nil, logger),
		mem:    mem,
	}
}

func (f *backupFixture) seed(t *testing.T) *domain.Facility {
	t.Helper()
	ctx := context.Background()
	facility, err := f.auth.RegisterFacility(ctx, RegisterFacilityRequest{
		Code: "HC001", Name: "Kyotera HC III", Password: "s3cret", ConfirmPassword: "s3cret",
		Questions: []QuestionAnswer{
			{Question: "Q1?", Answer: "a"},
			{Question: "Q2?", Answer: "b"},
		},
	}, testNow)
	require.NoError(t, err)

	child, err := f.childs.RegisterChild(ctx, facility.FacilityID, RegisterChildRequest{
		Name: "Amina", DOB: testNow.AddDate(0, -2, 0), Sex: "F",
	}, testNow)
	require.NoError(t, err)

	_, err = f.childs.SaveDoses(ctx, facility.FacilityID, child.ChildID, []DoseInput{
		{Vaccine: "OPV1 at 6 weeks", NextVisit: datePtr(testNow.AddDate(0, 0, 5))},
	}, nil, testNow)
	require.NoError(t, err)
	return facility
}

func TestBackupDocument(t *testing.T) {
	f := newBackupFixture(t)
	f.seed(t)

	doc, err := f.backup.Backup(context.Background(), testNow)
	require.NoError(t, err)

	assert.NotEmpty(t, doc.BackupID)
	assert.Equal(t, "2024-06-15T10:30:00Z", doc.BackupDate)
	assert.Len(t, doc.Facilities, 1)
	assert.Len(t, doc.Children, 1)
	assert.Len(t, doc.Vaccinations, 1)
	// 剂次单独成档，不嵌套在儿童里
	assert.Nil(t, doc.Children[0].Doses)
}

func TestRestoreRejectsMalformedDocuments(t *testing.T) {
	f := newBackupFixture(t)
	facility := f.seed(t)
	ctx := context.Background()

	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "this is not json"},
		{"missing children", `{"facilities":[],"vaccinations":[]}`},
		{"missing vaccinations", `{"facilities":[],"children":[]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.backup.Restore(ctx, []byte(tc.raw))
			var fErr *domain.FormatError
			require.ErrorAs(t, err, &fErr)
		})
	}

	// 格式校验先于任何写入：原有数据保持不动
	children, err := f.mem.ListChildren(ctx, facility.FacilityID)
	require.NoError(t, err)
	assert.Len(t, children, 1)
}

func TestBackupRestoreRoundtrip(t *testing.T) {
	f := newBackupFixture(t)
	facility := f.seed(t)
	ctx := context.Background()

	doc, err := f.backup.Backup(ctx, testNow)
	require.NoError(t, err)
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	// 恢复到一台空白设备
	target := newBackupFixture(t)
	result, err := target.backup.Restore(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Facilities)
	assert.Equal(t, 1, result.Children)
	assert.Equal(t, 1, result.Vaccinations)

	restored, err := target.mem.GetFacilityByCode(ctx, "HC001")
	require.NoError(t, err)
	assert.Equal(t, facility.FacilityID, restored.FacilityID)

	children, err := target.mem.ListChildren(ctx, restored.FacilityID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "Amina", children[0].Name)
	require.Len(t, children[0].Doses, 1)
	assert.Equal(t, "OPV1 at 6 weeks", children[0].Doses[0].Vaccine)

	// 恢复后一律回到登出态
	session, err := target.auth.Resume(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
}
