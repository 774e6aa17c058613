package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"vaxtrack/internal/repository"
	"vaxtrack/internal/service"
	"vaxtrack/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	mem := repository.NewMemoryStore()
	logger := zap.NewNop()
	engine := service.NewStatusEngine(7, 30)
	edits := store.NewMemoryEditBuffer()

	childService := service.NewChildService(mem, engine, edits, nil, logger)
	authService := service.NewAuthService(mem, mem, nil, logger)
	backupService := service.NewBackupService(mem, mem, mem, mem, nil, logger)
	exportService := service.NewExportService(mem, engine, logger)
	tokens := NewTokenManager("test-secret", time.Hour)

	router := NewRouter(logger)
	router.RegisterAuthRoutes(NewAuthHandler(authService, tokens, logger))
	router.RegisterChildRoutes(NewChildrenHandler(childService, edits, tokens, logger))
	router.RegisterBackupRoutes(NewBackupHandler(backupService, exportService, tokens, logger))
	router.RegisterOpsRoutes()
	return router
}

func doJSON(t *testing.T, router *Router, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) (int, map[string]any) {
	t.Helper()
	var envelope struct {
		Code   int             `json:"code"`
		Result json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	var result map[string]any
	if len(envelope.Result) > 0 && string(envelope.Result) != "null" {
		_ = json.Unmarshal(envelope.Result, &result)
	}
	return envelope.Code, result
}

func registerAndLogin(t *testing.T, router *Router) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"code":             "HC001",
		"name":             "Kyotera HC III",
		"password":         "s3cret",
		"confirm_password": "s3cret",
		"questions": []map[string]string{
			{"question": "Q1?", "answer": "a"},
			{"question": "Q2?", "answer": "b"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	code, result := decodeResult(t, rec)
	require.Equal(t, ResultSuccess, code)
	token, _ := result["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestAuthEndpoints(t *testing.T) {
	router := newTestRouter(t)
	registerAndLogin(t, router)

	t.Run("login with wrong password returns 401", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
			"code": "HC001", "password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		code, _ := decodeResult(t, rec)
		assert.Equal(t, ResultError, code)
	})

	t.Run("login succeeds with correct credentials", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
			"code": "hc001", "password": "s3cret",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		code, result := decodeResult(t, rec)
		assert.Equal(t, ResultSuccess, code)
		assert.NotEmpty(t, result["token"])
	})

	t.Run("session endpoint reflects the latest login", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/auth/session", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		code, result := decodeResult(t, rec)
		assert.Equal(t, ResultSuccess, code)
		require.NotNil(t, result)
		assert.NotEmpty(t, result["token"])
	})
}

func TestChildEndpointsRequireToken(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/children", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	code, _ := decodeResult(t, rec)
	assert.Equal(t, ResultTokenExpired, code)
}

func TestChildLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/children", token, map[string]any{
		"name": "Amina", "dob": "2024-04-01", "sex": "F",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	code, child := decodeResult(t, rec)
	require.Equal(t, ResultSuccess, code)
	childID := int64(child["child_id"].(float64))
	assert.Regexp(t, `^\d{3}/\d{4}$`, child["reg_no"])

	t.Run("future dob rejected", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/v1/children", token, map[string]any{
			"name": "Future", "dob": time.Now().AddDate(0, 0, 7).Format("2006-01-02"),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("save doses and read them back", func(t *testing.T) {
		visit := time.Now().AddDate(0, 0, 5).Format("2006-01-02")
		rec := doJSON(t, router, http.MethodPut,
			pathForChild(childID, "doses"), token, map[string]any{
				"doses": []map[string]any{
					{"vaccine": "OPV1 at 6 weeks", "next_visit": visit},
				},
			})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, router, http.MethodGet, pathForChild(childID, ""), token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		code, view := decodeResult(t, rec)
		require.Equal(t, ResultSuccess, code)
		statuses := view["statuses"].([]any)
		require.Len(t, statuses, 1)
		first := statuses[0].(map[string]any)
		assert.Equal(t, "due-soon", first["class"])
	})

	t.Run("summary shows the booked child", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/summary", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		_, summary := decodeResult(t, rec)
		assert.Equal(t, float64(1), summary["due_soon"])
	})

	t.Run("delete child", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodDelete, pathForChild(childID, ""), token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, router, http.MethodGet, pathForChild(childID, ""), token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestScheduleEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/schedule", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Code   int      `json:"code"`
		Result []string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, ResultSuccess, envelope.Code)
	assert.Contains(t, envelope.Result, "BCG at Birth")
	assert.Contains(t, envelope.Result, "Measles-Rubella1 at 9 months")
}

func pathForChild(childID int64, sub string) string {
	p := "/api/v1/children/" + strconv.FormatInt(childID, 10)
	if sub != "" {
		p += "/" + sub
	}
	return p
}
