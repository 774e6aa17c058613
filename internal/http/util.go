package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"vaxtrack/internal/domain"
)

const dateLayout = "2006-01-02"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError 按错误类别映射 HTTP 状态码，信封里的 message 可直接展示
func writeError(w http.ResponseWriter, err error) {
	var vErr *domain.ValidationError
	var aErr *domain.AuthError
	var fErr *domain.FormatError
	var sErr *domain.StorageError

	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, Fail(vErr.Error()))
	case errors.As(err, &aErr):
		writeJSON(w, http.StatusUnauthorized, Fail(aErr.Error()))
	case errors.As(err, &fErr):
		writeJSON(w, http.StatusBadRequest, Fail(fErr.Error()))
	case errors.As(err, &sErr):
		writeJSON(w, http.StatusInternalServerError, Fail("storage failure, please retry the operation"))
	default:
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
	}
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// parseDate 解析 YYYY-MM-DD；空串返回 nil
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
