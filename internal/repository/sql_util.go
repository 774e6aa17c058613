package repository

import (
	"encoding/json"
	"fmt"

	"vaxtrack/internal/domain"
)

// marshalQuestions 密保问答序列化为 JSON 存入 facilities.questions 列
func marshalQuestions(qs []domain.SecurityQuestion) (string, error) {
	if qs == nil {
		qs = []domain.SecurityQuestion{}
	}
	b, err := json.Marshal(qs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal security questions: %w", err)
	}
	return string(b), nil
}

// unmarshalQuestions 从 facilities.questions 列读回密保问答
func unmarshalQuestions(raw string) ([]domain.SecurityQuestion, error) {
	if raw == "" {
		return nil, nil
	}
	var qs []domain.SecurityQuestion
	if err := json.Unmarshal([]byte(raw), &qs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal security questions: %w", err)
	}
	return qs, nil
}
