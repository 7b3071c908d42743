package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/isp-mcp-gateway/internal/model"
	"github.com/mmeshcher/isp-mcp-gateway/internal/money"
)

// Пороги степени просрочки в днях.
const (
	overdueThreshold = 0
	severeThreshold  = 30
)

// Normalizer преобразует сырые записи API в доменные. Время берётся из now,
// суммы форматируются через money.
type Normalizer struct {
	money *money.Formatter
	now   func() time.Time
}

// New создаёт нормализатор.
func New(m *money.Formatter, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{money: m, now: now}
}

// amount читает сумму по первому найденному ключу. Строки, которые не являются
// простым числом, разбираются с учётом локали форматтера.
func (n *Normalizer) amount(m Record, keys ...string) float64 {
	v, ok := lookup(m, keys...)
	if !ok {
		return 0
	}
	if s, isStr := v.(string); isStr {
		s = strings.TrimSpace(s)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		if f, err := n.money.Parse(s); err == nil {
			return f
		}
	}
	f, _ := ToNumber(v)
	return f
}

// Client приводит запись абонента к model.Client.
func (n *Normalizer) Client(raw Record) model.Client {
	plan := nested(raw, "plan_internet")
	price := n.amount(plan, "precio")
	if len(plan) == 0 {
		price = n.amount(raw, "precio_plan")
	}
	balance := n.amount(raw, "saldo")

	c := model.Client{
		ServiceID:        integer(raw, "id_servicio", "id"),
		Username:         str(raw, "usuario"),
		Name:             strings.TrimSpace(str(raw, "nombre")),
		Email:            str(raw, "email"),
		Phone:            str(raw, "telefono"),
		Address:          str(raw, "direccion"),
		Locality:         str(raw, "localidad"),
		City:             str(raw, "ciudad"),
		Zone:             zoneOf(raw),
		Plan:             model.Plan{Name: firstNonEmpty(str(plan, "nombre"), str(raw, "plan")), Price: price, PriceFormatted: n.money.Format(price)},
		Status:           ClientStatusFromAPI(str(raw, "estado")),
		InvoiceStatus:    str(raw, "estado_facturas"),
		InstallDate:      str(raw, "fecha_instalacion"),
		CutoffDate:       str(raw, "fecha_corte"),
		LastChange:       str(raw, "ultimo_cambio"),
		Balance:          balance,
		BalanceFormatted: n.money.Format(balance),
		Network:          networkOf(raw),
		Technician:       technicianOf(raw),
		Notes:            str(raw, "comentarios"),
		Coordinates:      str(raw, "coordenadas"),
	}
	return c
}

func zoneOf(raw Record) model.Zone {
	if z := nested(raw, "zona"); len(z) > 0 {
		return model.Zone{ID: integer(z, "id"), Name: str(z, "nombre")}
	}
	return model.Zone{ID: integer(raw, "zona", "id_zona"), Name: str(raw, "zona_nombre")}
}

func networkOf(raw Record) model.Network {
	router := nested(raw, "router")
	wifi := nested(raw, "wifi")
	net := model.Network{
		IP:           str(raw, "ip"),
		MAC:          str(raw, "mac_cpe", "mac"),
		LANInterface: str(raw, "interfaz_lan"),
		RouterID:     integer(router, "id"),
		RouterName:   str(router, "nombre"),
		Wifi: model.Wifi{
			SSID:     firstNonEmpty(str(wifi, "ssid"), str(raw, "ssid")),
			Password: firstNonEmpty(str(wifi, "password"), str(raw, "password_ssid")),
			Channel:  str(wifi, "canal"),
		},
	}
	if len(router) == 0 {
		net.RouterID = integer(raw, "router")
	}
	return net
}

func technicianOf(raw Record) model.Technician {
	if t := nested(raw, "tecnico"); len(t) > 0 {
		return model.Technician{ID: integer(t, "id"), Name: str(t, "nombre")}
	}
	return model.Technician{ID: integer(raw, "tecnico"), Name: str(raw, "tecnico_nombre")}
}

// Ticket приводит запись заявки к model.Ticket.
func (n *Normalizer) Ticket(raw Record) model.Ticket {
	t := model.Ticket{
		ID:           integer(raw, "id_ticket", "id"),
		Subject:      str(raw, "asunto"),
		Description:  str(raw, "descripcion"),
		Status:       TicketStatusFromAPI(raw["estado"]),
		Priority:     PriorityFromAPI(raw["prioridad"]),
		TechnicianID: technicianRef(raw["tecnico"]),
		CreatedAt:    str(raw, "fecha_creacion", "fecha_inicio"),
		ClosedAt:     str(raw, "fecha_fin"),
	}
	if s := nested(raw, "servicio"); len(s) > 0 {
		t.ServiceID = integer(s, "id_servicio", "id")
	} else {
		t.ServiceID = integer(raw, "servicio", "id_servicio")
	}
	return t
}

func technicianRef(v any) string {
	if m, ok := v.(map[string]any); ok {
		return firstNonEmpty(toString(m["id"]), toString(m["usuario"]), toString(m["nombre"]))
	}
	return toString(v)
}

// Balance приводит ответ о задолженности к model.Balance.
func (n *Normalizer) Balance(raw Record, serviceID int64) model.Balance {
	now := n.now()

	var items []any
	if v, ok := lookup(raw, "facturas_pendientes", "facturas"); ok {
		items, _ = v.([]any)
	}

	invoices := make([]model.PendingInvoice, 0, len(items))
	maxDays := 0
	for _, item := range items {
		inv, ok := item.(map[string]any)
		if !ok {
			continue
		}
		due := str(inv, "fecha_vencimiento")
		days := 0
		if v, ok := lookup(inv, "dias_vencidos"); ok {
			d, _ := toInt(v)
			days = int(d)
		} else {
			days = DaysOverdue(due, now)
		}
		if days > maxDays {
			maxDays = days
		}
		amount := n.amount(inv, "monto", "total")
		invoices = append(invoices, model.PendingInvoice{
			InvoiceID:       str(inv, "id_factura", "id"),
			Amount:          amount,
			AmountFormatted: n.money.Format(amount),
			DueDate:         due,
			DaysOverdue:     days,
			Tier:            TierFor(days),
		})
	}

	total := n.amount(raw, "saldo", "saldo_total")
	if id := integer(raw, "id_servicio"); id > 0 {
		serviceID = id
	}

	return model.Balance{
		ServiceID:        serviceID,
		Balance:          total,
		BalanceFormatted: n.money.Format(total),
		LastPaymentDate:  str(raw, "fecha_ultimo_pago", "ultimo_pago"),
		Tier:             TierFor(maxDays),
		PendingInvoices:  invoices,
	}
}

// DaysOverdue вычисляет max(0, ceil((now - due) в днях)). Нераспознанная дата даёт 0.
func DaysOverdue(due string, now time.Time) int {
	t, ok := ParseDate(due)
	if !ok {
		return 0
	}
	days := math.Ceil(now.Sub(t).Hours() / 24)
	if days < 0 {
		return 0
	}
	return int(days)
}

// TierFor определяет степень просрочки по количеству дней.
func TierFor(days int) model.AccountTier {
	switch {
	case days <= overdueThreshold:
		return model.AccountTierCurrent
	case days <= severeThreshold:
		return model.AccountTierOverdue
	default:
		return model.AccountTierSeverelyOverdue
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
