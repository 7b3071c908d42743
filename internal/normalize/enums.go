package normalize

import (
	"strings"

	"github.com/mmeshcher/isp-mcp-gateway/internal/model"
)

var clientStatusFromAPI = map[string]model.ClientStatus{
	"activo":     model.ClientStatusActive,
	"suspendido": model.ClientStatusSuspended,
	"cancelado":  model.ClientStatusCancelled,
	"cortado":    model.ClientStatusSuspended,
	"inactivo":   model.ClientStatusCancelled,
}

var clientStatusToAPI = map[model.ClientStatus]string{
	model.ClientStatusActive:    "Activo",
	model.ClientStatusSuspended: "Suspendido",
	model.ClientStatusCancelled: "Cancelado",
}

var ticketStatusFromCode = map[int64]model.TicketStatus{
	1: model.TicketStatusNew,
	2: model.TicketStatusInProgress,
	3: model.TicketStatusResolved,
	4: model.TicketStatusClosed,
}

var ticketStatusToCode = map[model.TicketStatus]int64{
	model.TicketStatusNew:        1,
	model.TicketStatusInProgress: 2,
	model.TicketStatusResolved:   3,
	model.TicketStatusClosed:     4,
}

var priorityFromCode = map[int64]model.TicketPriority{
	1: model.TicketPriorityLow,
	2: model.TicketPriorityNormal,
	3: model.TicketPriorityHigh,
	4: model.TicketPriorityVeryHigh,
}

var priorityToCode = map[model.TicketPriority]int64{
	model.TicketPriorityLow:      1,
	model.TicketPriorityNormal:   2,
	model.TicketPriorityHigh:     3,
	model.TicketPriorityVeryHigh: 4,
}

// Входные синонимы: канонические значения и их испанские варианты.
var (
	clientStatusAliases = map[string]model.ClientStatus{
		"active": model.ClientStatusActive, "activo": model.ClientStatusActive,
		"suspended": model.ClientStatusSuspended, "suspendido": model.ClientStatusSuspended,
		"cancelled": model.ClientStatusCancelled, "canceled": model.ClientStatusCancelled, "cancelado": model.ClientStatusCancelled,
	}
	ticketStatusAliases = map[string]model.TicketStatus{
		"new": model.TicketStatusNew, "nuevo": model.TicketStatusNew, "abierto": model.TicketStatusNew,
		"in_progress": model.TicketStatusInProgress, "en_progreso": model.TicketStatusInProgress, "en_proceso": model.TicketStatusInProgress,
		"resolved": model.TicketStatusResolved, "resuelto": model.TicketStatusResolved,
		"closed": model.TicketStatusClosed, "cerrado": model.TicketStatusClosed,
	}
	priorityAliases = map[string]model.TicketPriority{
		"low": model.TicketPriorityLow, "baja": model.TicketPriorityLow,
		"normal": model.TicketPriorityNormal, "media": model.TicketPriorityNormal,
		"high": model.TicketPriorityHigh, "alta": model.TicketPriorityHigh,
		"very_high": model.TicketPriorityVeryHigh, "muy_alta": model.TicketPriorityVeryHigh, "urgente": model.TicketPriorityVeryHigh,
	}
)

func aliasKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// ClientStatusFromAPI переводит строку состояния API в каноническое значение.
// Нераспознанные строки дают cancelled.
func ClientStatusFromAPI(s string) model.ClientStatus {
	if st, ok := clientStatusFromAPI[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st
	}
	return model.ClientStatusCancelled
}

// ClientStatusToAPI переводит каноническое состояние в строку API.
func ClientStatusToAPI(s model.ClientStatus) string {
	if v, ok := clientStatusToAPI[s]; ok {
		return v
	}
	return clientStatusToAPI[model.ClientStatusCancelled]
}

// TicketStatusFromAPI переводит код состояния заявки (число или строку) в каноническое значение.
// Нераспознанный код даёт new.
func TicketStatusFromAPI(v any) model.TicketStatus {
	if code, ok := toInt(v); ok {
		if st, ok := ticketStatusFromCode[code]; ok {
			return st
		}
		return model.TicketStatusNew
	}
	if s, ok := v.(string); ok {
		if st, ok := ParseTicketStatus(s); ok {
			return st
		}
	}
	return model.TicketStatusNew
}

// TicketStatusToCode переводит каноническое состояние заявки в код API.
func TicketStatusToCode(s model.TicketStatus) int64 {
	if code, ok := ticketStatusToCode[s]; ok {
		return code
	}
	return ticketStatusToCode[model.TicketStatusNew]
}

// PriorityFromAPI переводит код приоритета в каноническое значение. По умолчанию normal.
func PriorityFromAPI(v any) model.TicketPriority {
	if code, ok := toInt(v); ok {
		if p, ok := priorityFromCode[code]; ok {
			return p
		}
		return model.TicketPriorityNormal
	}
	if s, ok := v.(string); ok {
		if p, ok := ParseTicketPriority(s); ok {
			return p
		}
	}
	return model.TicketPriorityNormal
}

// PriorityToCode переводит канонический приоритет в код API.
func PriorityToCode(p model.TicketPriority) int64 {
	if code, ok := priorityToCode[p]; ok {
		return code
	}
	return priorityToCode[model.TicketPriorityNormal]
}

// ParseClientStatus разбирает пользовательский ввод состояния услуги.
func ParseClientStatus(s string) (model.ClientStatus, bool) {
	st, ok := clientStatusAliases[aliasKey(s)]
	return st, ok
}

// ParseTicketStatus разбирает пользовательский ввод состояния заявки.
func ParseTicketStatus(s string) (model.TicketStatus, bool) {
	st, ok := ticketStatusAliases[aliasKey(s)]
	return st, ok
}

// ParseTicketPriority разбирает пользовательский ввод приоритета.
func ParseTicketPriority(s string) (model.TicketPriority, bool) {
	p, ok := priorityAliases[aliasKey(s)]
	return p, ok
}
