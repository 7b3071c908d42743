package handler

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/mmeshcher/isp-mcp-gateway/internal/apperr"
	"github.com/mmeshcher/isp-mcp-gateway/internal/validation"
)

// args хранит аргументы вызова инструмента в том виде, в каком их прислал клиент.
type args map[string]any

func (a args) has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

func (a args) str(key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", apperr.Validation("argument %q must be a string", key)
	}
	return strings.TrimSpace(s), nil
}

func (a args) requiredStr(key string) (string, error) {
	s, err := a.str(key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", apperr.Validation("argument %q is required", key)
	}
	return s, nil
}

func (a args) integer(key string) (int, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return 0, apperr.Validation("argument %q must be an integer", key)
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, apperr.Validation("argument %q must be an integer", key)
		}
		return n, nil
	default:
		return 0, apperr.Validation("argument %q must be an integer", key)
	}
}

func (a args) positive(key string) (int64, error) {
	if !a.has(key) {
		return 0, apperr.Validation("argument %q is required", key)
	}
	n, err := a.integer(key)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, apperr.Validation("argument %q must be a positive integer", key)
	}
	return int64(n), nil
}

func (a args) serviceID(key string) (int64, error) {
	return validation.ServiceID(a[key])
}

// idString принимает идентификатор числом или строкой.
func (a args) idString(key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", nil
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), nil
	case float64:
		if x != math.Trunc(x) {
			return "", apperr.Validation("argument %q must be an integer id", key)
		}
		return strconv.FormatInt(int64(x), 10), nil
	default:
		return "", apperr.Validation("argument %q must be a string or number", key)
	}
}

// object принимает объект или строку с JSON-объектом.
func (a args) object(key string) (map[string]any, error) {
	switch x := a[key].(type) {
	case nil:
		return nil, apperr.Validation("argument %q is required", key)
	case map[string]any:
		return x, nil
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(x), &m); err != nil {
			return nil, apperr.Validation("argument %q must be a JSON object", key)
		}
		return m, nil
	default:
		return nil, apperr.Validation("argument %q must be an object", key)
	}
}
