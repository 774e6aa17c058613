package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"vaxtrack/internal/domain"
	"vaxtrack/internal/repository"
	"vaxtrack/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 找回密码的重置令牌有效期
const recoveryTokenTTL = 15 * time.Minute

// AuthService 机构注册/登录/密码找回服务接口
type AuthService interface {
	RegisterFacility(ctx context.Context, req RegisterFacilityRequest, now time.Time) (*domain.Facility, error)
	Login(ctx context.Context, code, password string, now time.Time) (*domain.Facility, error)
	Logout(ctx context.Context) error

	// Resume 冷启动恢复：读取最近会话并回到对应机构上下文
	// 没有会话或机构已不存在时返回 (nil, nil)，表示回到登出态
	Resume(ctx context.Context) (*domain.Facility, error)

	ChangePassword(ctx context.Context, facilityID int64, oldPassword, newPassword, confirm string) error

	// 三步找回：取问题 -> 全对验证换令牌 -> 凭令牌重置
	RecoveryStart(ctx context.Context, code string) (*RecoveryChallenge, error)
	RecoveryVerify(ctx context.Context, code string, answers []string, now time.Time) (string, error)
	RecoveryReset(ctx context.Context, token, newPassword, confirm string, now time.Time) error
}

// RegisterFacilityRequest 机构注册请求
type RegisterFacilityRequest struct {
	Code            string
	Name            string
	Region          string
	District        string
	Password        string
	ConfirmPassword string
	Questions       []QuestionAnswer
}

// QuestionAnswer 注册时提交的密保问答对（明文答案只在内存中短暂存在）
type QuestionAnswer struct {
	Question string
	Answer   string
}

// RecoveryChallenge 找回第一步返回的问题列表
type RecoveryChallenge struct {
	Code      string   `json:"code"`
	Questions []string `json:"questions"`
}

// recoveryGrant 已通过密保验证的重置授权
type recoveryGrant struct {
	facilityID int64
	expiresAt  time.Time
}

// authService 实现
type authService struct {
	facilities repository.FacilitiesRepository
	sessions   repository.SessionsRepository
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu     sync.Mutex
	grants map[string]recoveryGrant // 重置令牌 -> 授权
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(facilities repository.FacilitiesRepository, sessions repository.SessionsRepository, m *metrics.Metrics, logger *zap.Logger) AuthService {
	return &authService{
		facilities: facilities,
		sessions:   sessions,
		metrics:    m,
		logger:     logger,
		grants:     make(map[string]recoveryGrant),
	}
}

// HashPassword 密码哈希（SHA256，不存明文）
func HashPassword(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return sum[:]
}

// HashAnswer 密保答案哈希：先 trim + 小写归一化，输入时的大小写和首尾空格不影响匹配
func HashAnswer(answer string) []byte {
	normalized := strings.ToLower(strings.TrimSpace(answer))
	sum := sha256.Sum256([]byte(normalized))
	return sum[:]
}

func hashEqual(stored, candidate []byte) bool {
	return subtle.ConstantTimeCompare(stored, candidate) == 1
}

func validatePassword(password, confirm string) error {
	if len(password) < 4 {
		return domain.NewValidationError("password", "password must be at least 4 characters")
	}
	if password != confirm {
		return domain.NewValidationError("confirm_password", "passwords do not match")
	}
	return nil
}

// RegisterFacility 注册新机构并自动登录
func (s *authService) RegisterFacility(ctx context.Context, req RegisterFacilityRequest, now time.Time) (*domain.Facility, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, domain.NewValidationError("code", "facility code is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, domain.NewValidationError("name", "facility name is required")
	}
	if err := validatePassword(req.Password, req.ConfirmPassword); err != nil {
		return nil, err
	}
	if len(req.Questions) < 2 {
		return nil, domain.NewValidationError("questions", "at least 2 security questions are required")
	}
	questions := make([]domain.SecurityQuestion, 0, len(req.Questions))
	for _, qa := range req.Questions {
		if strings.TrimSpace(qa.Question) == "" || strings.TrimSpace(qa.Answer) == "" {
			return nil, domain.NewValidationError("questions", "security questions and answers cannot be empty")
		}
		questions = append(questions, domain.SecurityQuestion{
			Question:   strings.TrimSpace(qa.Question),
			AnswerHash: HashAnswer(qa.Answer),
		})
	}

	if _, err := s.facilities.GetFacilityByCode(ctx, code); err == nil {
		return nil, domain.NewValidationError("code", "facility code is already registered")
	} else if err != repository.ErrNotFound {
		return nil, domain.NewStorageError("register facility", err)
	}

	facility := &domain.Facility{
		Code:         code,
		Name:         strings.TrimSpace(req.Name),
		Region:       req.Region,
		District:     req.District,
		PasswordHash: HashPassword(req.Password),
		Questions:    questions,
		CreatedAt:    now,
	}
	created, err := s.facilities.CreateFacility(ctx, facility)
	if err != nil {
		return nil, domain.NewStorageError("register facility", err)
	}

	// 注册即登录
	if err := s.sessions.SaveSession(ctx, created.FacilityID, now); err != nil {
		return nil, domain.NewStorageError("save session", err)
	}

	if s.metrics != nil {
		s.metrics.Logins.Inc()
	}
	s.logger.Info("Facility registered",
		zap.Int64("facility_id", created.FacilityID),
		zap.String("code", created.Code),
	)
	return created, nil
}

// Login 机构登录
func (s *authService) Login(ctx context.Context, code, password string, now time.Time) (*domain.Facility, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || password == "" {
		return nil, domain.NewAuthError("facility code and password are required")
	}

	facility, err := s.facilities.GetFacilityByCode(ctx, code)
	if err != nil {
		if err == repository.ErrNotFound {
			// 机构不存在与密码错误用同一提示
			return nil, domain.NewAuthError("invalid facility code or password")
		}
		return nil, domain.NewStorageError("login", err)
	}
	if !hashEqual(facility.PasswordHash, HashPassword(password)) {
		return nil, domain.NewAuthError("invalid facility code or password")
	}

	if err := s.sessions.SaveSession(ctx, facility.FacilityID, now); err != nil {
		return nil, domain.NewStorageError("save session", err)
	}

	if s.metrics != nil {
		s.metrics.Logins.Inc()
	}
	s.logger.Info("Facility logged in",
		zap.Int64("facility_id", facility.FacilityID),
		zap.String("code", facility.Code),
	)
	return facility, nil
}

// Logout 清除会话
func (s *authService) Logout(ctx context.Context) error {
	if err := s.sessions.ClearSessions(ctx); err != nil {
		return domain.NewStorageError("logout", err)
	}
	return nil
}

// Resume 冷启动会话恢复
func (s *authService) Resume(ctx context.Context) (*domain.Facility, error) {
	session, err := s.sessions.LatestSession(ctx)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, nil
		}
		return nil, domain.NewStorageError("resume session", err)
	}
	facility, err := s.facilities.GetFacilityByID(ctx, session.FacilityID)
	if err != nil {
		if err == repository.ErrNotFound {
			// 会话指向的机构已被删除（如恢复备份后），回到登出态
			return nil, nil
		}
		return nil, domain.NewStorageError("resume session", err)
	}
	s.logger.Info("Session resumed",
		zap.Int64("facility_id", facility.FacilityID),
		zap.String("code", facility.Code),
	)
	return facility, nil
}

// ChangePassword 登录态下修改密码（需要旧密码）
func (s *authService) ChangePassword(ctx context.Context, facilityID int64, oldPassword, newPassword, confirm string) error {
	facility, err := s.facilities.GetFacilityByID(ctx, facilityID)
	if err != nil {
		if err == repository.ErrNotFound {
			return domain.NewAuthError("facility not found")
		}
		return domain.NewStorageError("change password", err)
	}
	if !hashEqual(facility.PasswordHash, HashPassword(oldPassword)) {
		return domain.NewAuthError("current password is incorrect")
	}
	if err := validatePassword(newPassword, confirm); err != nil {
		return err
	}
	if err := s.facilities.UpdateFacilityPassword(ctx, facilityID, HashPassword(newPassword)); err != nil {
		return domain.NewStorageError("change password", err)
	}
	s.logger.Info("Password changed", zap.Int64("facility_id", facilityID))
	return nil
}

// RecoveryStart 找回第一步：按机构代码取回密保问题
func (s *authService) RecoveryStart(ctx context.Context, code string) (*RecoveryChallenge, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	facility, err := s.facilities.GetFacilityByCode(ctx, code)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, domain.NewAuthError("facility code not found")
		}
		return nil, domain.NewStorageError("start recovery", err)
	}
	questions := make([]string, 0, len(facility.Questions))
	for _, q := range facility.Questions {
		questions = append(questions, q.Question)
	}
	return &RecoveryChallenge{Code: facility.Code, Questions: questions}, nil
}

// RecoveryVerify 找回第二步：全部答案正确才发放重置令牌
// 不返回哪一题答错；每次尝试（成功与否）都追加到找回记录表
func (s *authService) RecoveryVerify(ctx context.Context, code string, answers []string, now time.Time) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	facility, err := s.facilities.GetFacilityByCode(ctx, code)
	if err != nil {
		if err == repository.ErrNotFound {
			return "", domain.NewAuthError("facility code not found")
		}
		return "", domain.NewStorageError("verify recovery answers", err)
	}

	ok := len(answers) == len(facility.Questions)
	if ok {
		for i, q := range facility.Questions {
			if !hashEqual(q.AnswerHash, HashAnswer(answers[i])) {
				ok = false
			}
		}
	}

	if err := s.facilities.RecordRecoveryAttempt(ctx, facility.Code, ok, now); err != nil {
		s.logger.Warn("Failed to record recovery attempt",
			zap.String("code", facility.Code),
			zap.Error(err),
		)
	}

	if !ok {
		return "", domain.NewAuthError("one or more security answers are incorrect")
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.grants[token] = recoveryGrant{
		facilityID: facility.FacilityID,
		expiresAt:  now.Add(recoveryTokenTTL),
	}
	s.mu.Unlock()

	s.logger.Info("Recovery answers verified", zap.String("code", facility.Code))
	return token, nil
}

// RecoveryReset 找回第三步：凭一次性令牌设置新密码
func (s *authService) RecoveryReset(ctx context.Context, token, newPassword, confirm string, now time.Time) error {
	s.mu.Lock()
	grant, found := s.grants[token]
	if found {
		delete(s.grants, token)
	}
	s.mu.Unlock()

	if !found || now.After(grant.expiresAt) {
		return domain.NewAuthError("recovery token is invalid or expired")
	}
	if err := validatePassword(newPassword, confirm); err != nil {
		return err
	}
	if err := s.facilities.UpdateFacilityPassword(ctx, grant.facilityID, HashPassword(newPassword)); err != nil {
		return domain.NewStorageError("reset password", err)
	}
	s.logger.Info("Password reset via recovery", zap.Int64("facility_id", grant.facilityID))
	return nil
}
