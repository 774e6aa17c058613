package httpapi

import (
	"net/http"
	"time"

	"vaxtrack/internal/domain"
	"vaxtrack/internal/service"

	"go.uber.org/zap"
)

// AuthHandler 机构注册/登录/找回 Handler
type AuthHandler struct {
	authService service.AuthService
	tokens      *TokenManager
	logger      *zap.Logger
}

// NewAuthHandler 创建 AuthHandler
func NewAuthHandler(authService service.AuthService, tokens *TokenManager, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		tokens:      tokens,
		logger:      logger,
	}
}

// facilityView 对外暴露的机构视图（不含任何哈希字段）
type facilityView struct {
	FacilityID int64  `json:"facility_id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Region     string `json:"region"`
	District   string `json:"district"`
}

func toFacilityView(f *domain.Facility) facilityView {
	return facilityView{
		FacilityID: f.FacilityID,
		Code:       f.Code,
		Name:       f.Name,
		Region:     f.Region,
		District:   f.District,
	}
}

// loginResult 登录/注册/恢复会话的统一返回
type loginResult struct {
	Token    string       `json:"token"`
	Facility facilityView `json:"facility"`
}

// Register 机构注册（成功即登录）
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code            string `json:"code"`
		Name            string `json:"name"`
		Region          string `json:"region"`
		District        string `json:"district"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
		Questions       []struct {
			Question string `json:"question"`
			Answer   string `json:"answer"`
		} `json:"questions"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	req := service.RegisterFacilityRequest{
		Code:            body.Code,
		Name:            body.Name,
		Region:          body.Region,
		District:        body.District,
		Password:        body.Password,
		ConfirmPassword: body.ConfirmPassword,
	}
	for _, qa := range body.Questions {
		req.Questions = append(req.Questions, service.QuestionAnswer{Question: qa.Question, Answer: qa.Answer})
	}

	now := time.Now()
	facility, err := h.authService.RegisterFacility(r.Context(), req, now)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondLoggedIn(w, facility, now)
}

// Login 机构登录
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	now := time.Now()
	facility, err := h.authService.Login(r.Context(), body.Code, body.Password, now)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondLoggedIn(w, facility, now)
}

// Logout 登出
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.tokens.FacilityFromRequest(w, r); !ok {
		return
	}
	if err := h.authService.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"logged_out": true}))
}

// Session 冷启动会话恢复：有会话返回登录态，无会话返回空
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	facility, err := h.authService.Resume(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if facility == nil {
		writeJSON(w, http.StatusOK, Ok[any](nil))
		return
	}
	h.respondLoggedIn(w, facility, time.Now())
}

// ChangePassword 登录态下修改密码
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := h.tokens.FacilityFromRequest(w, r)
	if !ok {
		return
	}
	var body struct {
		OldPassword     string `json:"old_password"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if err := h.authService.ChangePassword(r.Context(), facilityID, body.OldPassword, body.NewPassword, body.ConfirmPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"changed": true}))
}

// RecoveryStart 找回第一步：取密保问题
func (h *AuthHandler) RecoveryStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	challenge, err := h.authService.RecoveryStart(r.Context(), body.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(challenge))
}

// RecoveryVerify 找回第二步：验证全部答案换取重置令牌
func (h *AuthHandler) RecoveryVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code    string   `json:"code"`
		Answers []string `json:"answers"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	token, err := h.authService.RecoveryVerify(r.Context(), body.Code, body.Answers, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"reset_token": token}))
}

// RecoveryReset 找回第三步：凭令牌重置密码
func (h *AuthHandler) RecoveryReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ResetToken      string `json:"reset_token"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if err := h.authService.RecoveryReset(r.Context(), body.ResetToken, body.NewPassword, body.ConfirmPassword, time.Now()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"reset": true}))
}

func (h *AuthHandler) respondLoggedIn(w http.ResponseWriter, facility *domain.Facility, now time.Time) {
	token, err := h.tokens.Issue(facility.FacilityID, facility.Code, now)
	if err != nil {
		h.logger.Error("Failed to issue session token", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(loginResult{
		Token:    token,
		Facility: toFacilityView(facility),
	}))
}
