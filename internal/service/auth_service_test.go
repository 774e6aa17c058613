package service

import (
	"context"
	"testing"
	"time"

	"vaxtrack/internal/domain"
	"vaxtrack/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAuthFixture(t *testing.T) (AuthService, *repository.MemoryStore) {
	t.Helper()
	mem := repository.NewMemoryStore()
	return NewAuthService(mem, mem, nil, zap.NewNop()), mem
}

func registerTestFacility(t *testing.T, svc AuthService) *domain.Facility {
	t.Helper()
	facility, err := svc.RegisterFacility(context.Background(), RegisterFacilityRequest{
		Code:            "hc001",
		Name:            "Kyotera HC III",
		Region:          "Central",
		District:        "Kyotera",
		Password:        "s3cret",
		ConfirmPassword: "s3cret",
		Questions: []QuestionAnswer{
			{Question: "Mother's maiden name?", Answer: "Nakato"},
			{Question: "First duty station?", Answer: "Rakai"},
		},
	}, testNow)
	require.NoError(t, err)
	return facility
}

func TestRegisterFacility(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	facility := registerTestFacility(t, svc)
	assert.Equal(t, "HC001", facility.Code, "code is stored upper-cased")

	t.Run("registration logs the facility in", func(t *testing.T) {
		resumed, err := svc.Resume(ctx)
		require.NoError(t, err)
		require.NotNil(t, resumed)
		assert.Equal(t, facility.FacilityID, resumed.FacilityID)
	})

	t.Run("duplicate code rejected", func(t *testing.T) {
		_, err := svc.RegisterFacility(ctx, RegisterFacilityRequest{
			Code:            "HC001",
			Name:            "Another",
			Password:        "abcd",
			ConfirmPassword: "abcd",
			Questions: []QuestionAnswer{
				{Question: "Q1?", Answer: "a"},
				{Question: "Q2?", Answer: "b"},
			},
		}, testNow)
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "code", vErr.Field)
	})

	t.Run("short password rejected", func(t *testing.T) {
		_, err := svc.RegisterFacility(ctx, RegisterFacilityRequest{
			Code: "HC002", Name: "X", Password: "abc", ConfirmPassword: "abc",
			Questions: []QuestionAnswer{{Question: "Q1?", Answer: "a"}, {Question: "Q2?", Answer: "b"}},
		}, testNow)
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
	})

	t.Run("mismatched confirmation rejected", func(t *testing.T) {
		_, err := svc.RegisterFacility(ctx, RegisterFacilityRequest{
			Code: "HC002", Name: "X", Password: "abcd", ConfirmPassword: "abce",
			Questions: []QuestionAnswer{{Question: "Q1?", Answer: "a"}, {Question: "Q2?", Answer: "b"}},
		}, testNow)
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
	})

	t.Run("fewer than two security questions rejected", func(t *testing.T) {
		_, err := svc.RegisterFacility(ctx, RegisterFacilityRequest{
			Code: "HC002", Name: "X", Password: "abcd", ConfirmPassword: "abcd",
			Questions: []QuestionAnswer{{Question: "Q1?", Answer: "a"}},
		}, testNow)
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "questions", vErr.Field)
	})
}

func TestLogin(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()
	registerTestFacility(t, svc)

	t.Run("code is matched case-insensitively", func(t *testing.T) {
		facility, err := svc.Login(ctx, "hc001", "s3cret", testNow)
		require.NoError(t, err)
		assert.Equal(t, "HC001", facility.Code)
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		_, err := svc.Login(ctx, "HC001", "wrong", testNow)
		var aErr *domain.AuthError
		require.ErrorAs(t, err, &aErr)
	})

	t.Run("unknown code gets the same error as a wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, "HC999", "s3cret", testNow)
		var aErr *domain.AuthError
		require.ErrorAs(t, err, &aErr)
		assert.Equal(t, "invalid facility code or password", aErr.Reason)
	})
}

func TestResumeAndLogout(t *testing.T) {
	svc, mem := newAuthFixture(t)
	ctx := context.Background()

	t.Run("no session means logged out", func(t *testing.T) {
		facility, err := svc.Resume(ctx)
		require.NoError(t, err)
		assert.Nil(t, facility)
	})

	registered := registerTestFacility(t, svc)

	facility, err := svc.Resume(ctx)
	require.NoError(t, err)
	require.NotNil(t, facility)
	assert.Equal(t, registered.FacilityID, facility.FacilityID)

	require.NoError(t, svc.Logout(ctx))
	facility, err = svc.Resume(ctx)
	require.NoError(t, err)
	assert.Nil(t, facility)

	t.Run("stale session pointing at a missing facility falls back to logged out", func(t *testing.T) {
		require.NoError(t, mem.SaveSession(ctx, 9999, testNow))
		facility, err := svc.Resume(ctx)
		require.NoError(t, err)
		assert.Nil(t, facility)
	})
}

func TestChangePassword(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()
	facility := registerTestFacility(t, svc)

	t.Run("wrong current password rejected", func(t *testing.T) {
		err := svc.ChangePassword(ctx, facility.FacilityID, "nope", "newpass", "newpass")
		var aErr *domain.AuthError
		require.ErrorAs(t, err, &aErr)
	})

	require.NoError(t, svc.ChangePassword(ctx, facility.FacilityID, "s3cret", "newpass", "newpass"))

	_, err := svc.Login(ctx, "HC001", "s3cret", testNow)
	var aErr *domain.AuthError
	require.ErrorAs(t, err, &aErr)
	_, err = svc.Login(ctx, "HC001", "newpass", testNow)
	require.NoError(t, err)
}

func TestPasswordRecovery(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()
	registerTestFacility(t, svc)

	challenge, err := svc.RecoveryStart(ctx, "hc001")
	require.NoError(t, err)
	assert.Equal(t, []string{"Mother's maiden name?", "First duty station?"}, challenge.Questions)

	t.Run("all answers must be correct", func(t *testing.T) {
		_, err := svc.RecoveryVerify(ctx, "HC001", []string{"Nakato", "wrong"}, testNow)
		var aErr *domain.AuthError
		require.ErrorAs(t, err, &aErr)
	})

	t.Run("answer count must match", func(t *testing.T) {
		_, err := svc.RecoveryVerify(ctx, "HC001", []string{"Nakato"}, testNow)
		var aErr *domain.AuthError
		require.ErrorAs(t, err, &aErr)
	})

	// 答案比较忽略大小写与首尾空格
	token, err := svc.RecoveryVerify(ctx, "HC001", []string{"  NAKATO ", "rakai"}, testNow)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.NoError(t, svc.RecoveryReset(ctx, token, "brandnew", "brandnew", testNow))
	_, err = svc.Login(ctx, "HC001", "brandnew", testNow)
	require.NoError(t, err)

	t.Run("reset token is single use", func(t *testing.T) {
		err := svc.RecoveryReset(ctx, token, "again", "again", testNow)
		var aErr *domain.AuthError
		require.ErrorAs(t, err, &aErr)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		token, err := svc.RecoveryVerify(ctx, "HC001", []string{"Nakato", "Rakai"}, testNow)
		require.NoError(t, err)
		err = svc.RecoveryReset(ctx, token, "later", "later", testNow.Add(recoveryTokenTTL+time.Minute))
		var aErr *domain.AuthError
		require.ErrorAs(t, err, &aErr)
	})
}
