// Package model содержит доменные сущности шлюза к API провайдера:
// абонентов, заявки, балансы и результат доменной операции.
package model

import "time"

// ClientStatus описывает каноническое состояние услуги абонента.
type ClientStatus string

const (
	ClientStatusActive    ClientStatus = "active"
	ClientStatusSuspended ClientStatus = "suspended"
	ClientStatusCancelled ClientStatus = "cancelled"
)

// ClientStatuses перечисляет все канонические состояния услуги.
var ClientStatuses = []ClientStatus{ClientStatusActive, ClientStatusSuspended, ClientStatusCancelled}

// TicketStatus описывает каноническое состояние заявки.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketStatuses перечисляет все канонические состояния заявки.
var TicketStatuses = []TicketStatus{TicketStatusNew, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed}

// IsFinal сообщает, завершена ли работа по заявке.
func (s TicketStatus) IsFinal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// TicketPriority описывает канонический приоритет заявки.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityNormal   TicketPriority = "normal"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityVeryHigh TicketPriority = "very_high"
)

// TicketPriorities перечисляет все канонические приоритеты.
var TicketPriorities = []TicketPriority{TicketPriorityLow, TicketPriorityNormal, TicketPriorityHigh, TicketPriorityVeryHigh}

// AccountTier описывает степень просрочки оплаты.
type AccountTier string

const (
	AccountTierCurrent         AccountTier = "current"
	AccountTierOverdue         AccountTier = "overdue"
	AccountTierSeverelyOverdue AccountTier = "severely_overdue"
)

// Zone описывает зону обслуживания.
type Zone struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Plan описывает тарифный план.
type Plan struct {
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	PriceFormatted string  `json:"priceFormatted"`
}

// Wifi описывает параметры беспроводной сети абонента.
type Wifi struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
	Channel  string `json:"channel"`
}

// Network описывает сетевую конфигурацию услуги.
type Network struct {
	IP           string `json:"ip"`
	MAC          string `json:"mac"`
	LANInterface string `json:"lanInterface"`
	RouterID     int64  `json:"routerId"`
	RouterName   string `json:"routerName"`
	Wifi         Wifi   `json:"wifi"`
}

// Technician описывает назначенного техника.
type Technician struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Client описывает одну услугу абонента. Идентификатор услуги неизменен.
type Client struct {
	ServiceID        int64        `json:"serviceId"`
	Username         string       `json:"username"`
	Name             string       `json:"name"`
	Email            string       `json:"email"`
	Phone            string       `json:"phone"`
	Address          string       `json:"address"`
	Locality         string       `json:"locality"`
	City             string       `json:"city"`
	Zone             Zone         `json:"zone"`
	Plan             Plan         `json:"plan"`
	Status           ClientStatus `json:"status"`
	InvoiceStatus    string       `json:"invoiceStatus"`
	InstallDate      string       `json:"installDate"`
	CutoffDate       string       `json:"cutoffDate"`
	LastChange       string       `json:"lastChange"`
	Balance          float64      `json:"balance"`
	BalanceFormatted string       `json:"balanceFormatted"`
	Network          Network      `json:"network"`
	Technician       Technician   `json:"technician"`
	Notes            string       `json:"notes"`
	Coordinates      string       `json:"coordinates"`
}

// Ticket описывает заявку в службу поддержки.
type Ticket struct {
	ID           int64          `json:"id"`
	ServiceID    int64          `json:"serviceId"`
	Subject      string         `json:"subject"`
	Description  string         `json:"description"`
	Status       TicketStatus   `json:"status"`
	Priority     TicketPriority `json:"priority"`
	TechnicianID string         `json:"technicianId"`
	CreatedAt    string         `json:"createdAt"`
	ClosedAt     string         `json:"closedAt,omitempty"`
}

// PendingInvoice описывает неоплаченный счёт.
type PendingInvoice struct {
	InvoiceID       string      `json:"invoiceId"`
	Amount          float64     `json:"amount"`
	AmountFormatted string      `json:"amountFormatted"`
	DueDate         string      `json:"dueDate"`
	DaysOverdue     int         `json:"daysOverdue"`
	Tier            AccountTier `json:"tier"`
}

// Balance содержит снимок финансового состояния услуги на момент запроса.
type Balance struct {
	ServiceID        int64            `json:"serviceId"`
	Balance          float64          `json:"balance"`
	BalanceFormatted string           `json:"balanceFormatted"`
	LastPaymentDate  string           `json:"lastPaymentDate"`
	Tier             AccountTier      `json:"tier"`
	PendingInvoices  []PendingInvoice `json:"pendingInvoices"`
}

// Result содержит единый результат доменной операции. Операции не возвращают ошибок,
// неудача описывается полями Success, Error и Kind.
type Result struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Hint      string    `json:"hint,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Debug     *Debug    `json:"debug,omitempty"`
}

// Debug содержит диагностические данные операции.
type Debug struct {
	Request      any           `json:"request,omitempty"`
	Response     any           `json:"response,omitempty"`
	Verification *Verification `json:"verification,omitempty"`
	Attempts     []Attempt     `json:"attempts,omitempty"`
}

// Attempt описывает исход одной попытки в цепочке повторов или кандидатов.
type Attempt struct {
	Number    int           `json:"number"`
	Name      string        `json:"name,omitempty"`
	Success   bool          `json:"success"`
	Found     bool          `json:"found"`
	Duration  time.Duration `json:"durationNs"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
}

// FieldCheck сравнивает отправленное и фактически сохранённое значение поля.
type FieldCheck struct {
	Field    string `json:"field"`
	Sent     any    `json:"sent"`
	Observed any    `json:"observed"`
	Match    bool   `json:"match"`
}

// Verification содержит отчёт о проверке записи повторным чтением.
type Verification struct {
	State      string       `json:"state"`
	Verified   bool         `json:"verified"`
	Fields     []FieldCheck `json:"fields,omitempty"`
	Mismatches []string     `json:"mismatches,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// UpdateOutcome содержит данные результата изменяющей операции: запись после
// повторного чтения и отчёт о сверке полей.
type UpdateOutcome struct {
	Record       any           `json:"record"`
	Verification *Verification `json:"verification"`
}
