package service

import (
	"fmt"
	"regexp"
	"testing"
	"time"

	"vaxtrack/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestGenerateRegNoFormat(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	regNo := GenerateRegNo(nil, now)
	assert.Equal(t, "001/2024", regNo)
	assert.Regexp(t, regexp.MustCompile(`^\d{3}/\d{4}$`), regNo)
}

func TestGenerateRegNoSequenceGrows(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	existing := []domain.Child{
		{RegNo: "001/2024", CreatedAt: now.AddDate(0, -1, 0)},
		{RegNo: "002/2024", CreatedAt: now.AddDate(0, 0, -3)},
	}
	assert.Equal(t, "003/2024", GenerateRegNo(existing, now))
}

func TestGenerateRegNoResetsAcrossYears(t *testing.T) {
	lastYear := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	existing := []domain.Child{
		{RegNo: "001/2023", CreatedAt: lastYear},
		{RegNo: "002/2023", CreatedAt: lastYear},
	}
	assert.Equal(t, "001/2024", GenerateRegNo(existing, now))
}

func TestGenerateRegNoSkipsCollisions(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	// 恢复备份后登记号可能与当年计数不一致：001 已被占用
	existing := []domain.Child{
		{RegNo: "001/2024", CreatedAt: now.AddDate(0, 0, -1)},
	}
	// 当年计数=1，下一号应为 002
	assert.Equal(t, "002/2024", GenerateRegNo(existing, now))

	// 002 也被外来数据占用时顺延到 003
	existing = append(existing, domain.Child{RegNo: "002/2024", CreatedAt: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)})
	assert.Equal(t, "003/2024", GenerateRegNo(existing, now))
}

func TestGenerateRegNoPadsBeyondThreeDigits(t *testing.T) {
	now := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)

	existing := make([]domain.Child, 0, 999)
	for i := 1; i <= 999; i++ {
		existing = append(existing, domain.Child{
			RegNo:     fmt.Sprintf("%03d/2024", i),
			CreatedAt: now.AddDate(0, 0, -1),
		})
	}
	assert.Equal(t, "1000/2024", GenerateRegNo(existing, now))
}
