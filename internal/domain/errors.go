package domain

import "fmt"

// 错误分类（对应前端提示方式）：
// - ValidationError: 业务规则/输入错误，展示给用户，不重试
// - AuthError:       凭证或密保答案错误，展示给用户，不重试
// - FormatError:     备份文档格式错误，恢复前即中止
// - StorageError:    底层存储失败，提示用户手动重试整个操作

// ValidationError 业务规则校验失败
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError 创建校验错误
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// AuthError 登录/密保验证失败
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return e.Reason }

// NewAuthError 创建认证错误
func NewAuthError(reason string) error {
	return &AuthError{Reason: reason}
}

// FormatError 备份文档格式错误
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return e.Reason }

// NewFormatError 创建格式错误
func NewFormatError(reason string) error {
	return &FormatError{Reason: reason}
}

// StorageError 底层存储失败（包装驱动错误）
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError 包装存储错误
func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
