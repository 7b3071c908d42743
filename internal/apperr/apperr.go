// Package apperr описывает таксономию ошибок шлюза: ошибки валидации,
// сетевые ошибки, ошибки API внешней системы, таймауты и отсутствие записи.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind определяет категорию ошибки, по которой вызывающий код может принимать решения.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNetwork    Kind = "network"
	KindAPI        Kind = "api"
	KindTimeout    Kind = "timeout"
	KindNotFound   Kind = "not_found"
	KindUnknown    Kind = "unknown"
)

// Error описывает типизированную ошибку шлюза.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindAPI:
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation создаёт ошибку валидации входных данных.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Network создаёт ошибку отсутствия ответа от внешней системы.
func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Message: "no response from upstream", Err: err}
}

// Timeout создаёт ошибку истечения времени ожидания ответа.
func Timeout(err error) *Error {
	return &Error{Kind: KindTimeout, Message: "upstream request timed out", Err: err}
}

// API создаёт ошибку ответа внешней системы с кодом, отличным от 2xx.
func API(status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Kind: KindAPI, Status: status, Message: message}
}

// NotFound создаёт ошибку отсутствия записи там, где ожидалась ровно одна.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// FromContext классифицирует ошибку контекста: истёкший срок становится
// таймаутом, отмена остаётся некатегоризированной ошибкой.
func FromContext(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(err)
	}
	return fmt.Errorf("operation cancelled: %w", err)
}

// KindOf возвращает категорию ошибки или KindUnknown для нетипизированных ошибок.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusOf возвращает HTTP-статус ответа для ошибок API, иначе 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindAPI {
		return e.Status
	}
	return 0
}

// IsRetryable сообщает, стоит ли повторять запрос: сетевые ошибки,
// таймауты и ответы 5xx повторяются, ответы 4xx не повторяются никогда.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindAPI:
		return e.Status >= http.StatusInternalServerError
	default:
		return false
	}
}

// Hint возвращает подсказку для пользователя в зависимости от категории ошибки.
func Hint(err error) string {
	switch KindOf(err) {
	case KindValidation:
		return "Check the arguments and call the tool again."
	case KindNetwork:
		return "The ISP API is unreachable. Check the base URL and network connectivity."
	case KindTimeout:
		return "The ISP API did not answer in time. Try again later or raise ISP_API_TIMEOUT."
	case KindNotFound:
		return "No matching record was found. Verify the identifier."
	case KindAPI:
		switch status := StatusOf(err); {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return "The ISP API rejected the credential. Check ISP_API_KEY."
		case status == http.StatusNotFound:
			return "The record does not exist upstream. Verify the identifier."
		case status == http.StatusTooManyRequests:
			return "The ISP API is rate limiting requests. Wait before retrying."
		case status >= http.StatusInternalServerError:
			return "The ISP API failed internally. Try again later."
		default:
			return "The ISP API refused the request. Check the submitted values."
		}
	default:
		return ""
	}
}
