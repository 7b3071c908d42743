// Package validation содержит проверки входных данных инструментов,
// выполняемые до любого обращения к внешнему API.
package validation

import (
	"encoding/json"
	"math"
	"net/mail"
	"strconv"
	"strings"

	"github.com/mmeshcher/isp-mcp-gateway/internal/apperr"
)

// IsValidServiceID проверяет, что идентификатор услуги является положительным целым.
func IsValidServiceID(id int64) bool {
	return id > 0
}

// ServiceID разбирает идентификатор услуги из значения аргумента инструмента:
// числа JSON, целого или строки из цифр.
func ServiceID(v any) (int64, error) {
	var id int64
	switch x := v.(type) {
	case nil:
		return 0, apperr.Validation("service id is required")
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return 0, apperr.Validation("service id must be an integer, got %v", x)
		}
		id = int64(x)
	case int:
		id = int64(x)
	case int64:
		id = x
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, apperr.Validation("service id must be an integer, got %q", x.String())
		}
		id = n
	case string:
		s := strings.TrimSpace(x)
		if !IsDigits(s) {
			return 0, apperr.Validation("service id must be a positive integer, got %q", x)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, apperr.Validation("service id is out of range: %q", x)
		}
		id = n
	default:
		return 0, apperr.Validation("service id has unsupported type %T", v)
	}

	if !IsValidServiceID(id) {
		return 0, apperr.Validation("service id must be a positive integer, got %d", id)
	}
	return id, nil
}

// IsDigits сообщает, состоит ли непустая строка только из цифр ASCII.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsEmail выполняет упрощённую проверку адреса электронной почты.
func IsEmail(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "@") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// RequireText проверяет, что обязательный текстовый аргумент не пуст.
func RequireText(name, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", apperr.Validation("%s is required", name)
	}
	return v, nil
}
