package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
)

func queryParam(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

func queryError(key, msg string, cause error, extra map[string]any) error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, msg).WithDetails(details)
}

// ParseQueryInt returns defaultVal when the parameter is absent and rejects
// values outside [min, max] instead of clamping them.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := queryParam(r, key)
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, queryError(key, "query parameter must be numeric", err, nil)
	}
	if value < min || value > max {
		return 0, queryError(key, "query parameter out of range", nil, map[string]any{"min": min, "max": max})
	}
	return value, nil
}

// ParseQueryBool accepts the strconv.ParseBool spellings; absent is false.
func ParseQueryBool(r *http.Request, key string) (bool, error) {
	raw := queryParam(r, key)
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, queryError(key, "query parameter must be true or false", err, nil)
	}
	return value, nil
}

// ParseQueryEnum reads an optional filter and converts it with parse. An
// absent parameter yields nil.
func ParseQueryEnum[T any](r *http.Request, key string, parse func(string) (T, error)) (*T, error) {
	raw := queryParam(r, key)
	if raw == "" {
		return nil, nil
	}
	value, err := parse(raw)
	if err != nil {
		return nil, queryError(key, "invalid query parameter", err, nil)
	}
	return &value, nil
}

// ParseQueryString rejects values longer than maxLen instead of
// truncating them.
func ParseQueryString(r *http.Request, key string, maxLen int) (string, error) {
	raw := queryParam(r, key)
	if maxLen > 0 && len(raw) > maxLen {
		return "", queryError(key, "query parameter too long", nil, map[string]any{"max": maxLen})
	}
	return raw, nil
}

func ParseQueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	return ParseQueryEnum(r, key, uuid.Parse)
}
