package service

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmeshcher/isp-mcp-gateway/internal/apperr"
	"github.com/mmeshcher/isp-mcp-gateway/internal/model"
	"github.com/mmeshcher/isp-mcp-gateway/internal/normalize"
	"github.com/mmeshcher/isp-mcp-gateway/internal/validation"
	"github.com/mmeshcher/isp-mcp-gateway/internal/verify"
)

const (
	ticketDateLayout    = "2006-01-02 15:04"
	ticketClosedLayout  = "2006-01-02 15:04:05"
	ticketReasonField   = "motivo_cierre"
	ticketClosedAtField = "fecha_fin"
)

// ListTicketsInput задаёт фильтры списка заявок. Нулевой ServiceID означает все услуги.
type ListTicketsInput struct {
	ServiceID int64
	Status    string
	Limit     int
}

// TicketList содержит страницу заявок.
type TicketList struct {
	Total    int            `json:"total"`
	Returned int            `json:"returned"`
	Tickets  []model.Ticket `json:"tickets"`
}

// ListTickets возвращает заявки с необязательными фильтрами по услуге и состоянию.
func (s *Service) ListTickets(ctx context.Context, in ListTicketsInput) model.Result {
	const op = "list_tickets"

	params := url.Values{}
	if in.ServiceID != 0 {
		if !validation.IsValidServiceID(in.ServiceID) {
			return s.fail(ctx, op, apperr.Validation("invalid service id %d", in.ServiceID), nil)
		}
		params.Set("servicio", strconv.FormatInt(in.ServiceID, 10))
	}
	if in.Status != "" {
		st, ok := normalize.ParseTicketStatus(in.Status)
		if !ok {
			return s.fail(ctx, op, apperr.Validation("unknown ticket status %q", in.Status), nil)
		}
		params.Set("estado", strconv.FormatInt(normalize.TicketStatusToCode(st), 10))
	}

	body, err := s.api.Get(ctx, pathTickets, params, s.opts.TicketsTTL)
	if err != nil {
		return s.fail(ctx, op, err, nil)
	}
	raw, err := normalize.Decode(body)
	if err != nil {
		return s.fail(ctx, op, err, nil)
	}

	limit := clampLimit(in.Limit)
	tickets := make([]model.Ticket, 0, min(limit, len(raw.Records)))
	for _, rec := range raw.Records {
		if len(tickets) == limit {
			break
		}
		tickets = append(tickets, s.norm.Ticket(rec))
	}

	total := raw.Count
	if total < len(tickets) {
		total = len(tickets)
	}
	return s.ok(TicketList{Total: total, Returned: len(tickets), Tickets: tickets}, s.debugPayload(params.Encode(), nil))
}

// CreateTicketInput задаёт параметры новой заявки.
type CreateTicketInput struct {
	ServiceID    int64
	Subject      string
	Description  string
	Priority     string
	TechnicianID string
}

// CreateTicket открывает заявку для услуги.
func (s *Service) CreateTicket(ctx context.Context, in CreateTicketInput) model.Result {
	const op = "create_ticket"

	if !validation.IsValidServiceID(in.ServiceID) {
		return s.fail(ctx, op, apperr.Validation("invalid service id %d", in.ServiceID), nil)
	}
	subject, err := validation.RequireText("subject", in.Subject)
	if err != nil {
		return s.fail(ctx, op, err, nil)
	}
	description, err := validation.RequireText("description", in.Description)
	if err != nil {
		return s.fail(ctx, op, err, nil)
	}

	priority := model.TicketPriorityNormal
	if in.Priority != "" {
		p, ok := normalize.ParseTicketPriority(in.Priority)
		if !ok {
			return s.fail(ctx, op, apperr.Validation("unknown ticket priority %q", in.Priority), nil)
		}
		priority = p
	}

	payload := map[string]any{
		"servicio":     in.ServiceID,
		"asunto":       subject,
		"descripcion":  description,
		"prioridad":    normalize.PriorityToCode(priority),
		"estado":       normalize.TicketStatusToCode(model.TicketStatusNew),
		"fecha_inicio": s.clock.Now().Format(ticketDateLayout),
	}
	if tech := strings.TrimSpace(in.TechnicianID); tech != "" {
		payload["tecnico"] = technicianValue(tech)
	}

	resp, err := s.api.Post(ctx, pathTickets, payload)
	debug := s.debugPayload(payload, resp)
	if err != nil {
		return s.fail(ctx, op, err, debug)
	}
	s.invalidate(pathTickets)

	rec, ok, err := normalize.UnwrapOne(resp)
	if err != nil {
		return s.fail(ctx, op, err, debug)
	}
	if !ok {
		return s.empty("ticket created but upstream returned no record", debug)
	}
	return s.ok(s.norm.Ticket(rec), debug)
}

// UpdateTicketInput задаёт изменения заявки. Пустые поля не изменяются.
type UpdateTicketInput struct {
	TicketID     int64
	Status       string
	Priority     string
	TechnicianID string
	Subject      string
	Description  string
	Note         string
}

// UpdateTicket изменяет заявку. API принимает только полную запись, поэтому
// текущая заявка читается в обход кеша, изменения накладываются поверх,
// поля из списка запрета удаляются, затем запись отправляется PUT и сверяется.
func (s *Service) UpdateTicket(ctx context.Context, in UpdateTicketInput) model.Result {
	const op = "update_ticket"

	if in.TicketID <= 0 {
		return s.fail(ctx, op, apperr.Validation("invalid ticket id %d", in.TicketID), nil)
	}

	changes := map[string]any{}
	var status model.TicketStatus
	if in.Status != "" {
		st, ok := normalize.ParseTicketStatus(in.Status)
		if !ok {
			return s.fail(ctx, op, apperr.Validation("unknown ticket status %q", in.Status), nil)
		}
		status = st
		changes["estado"] = normalize.TicketStatusToCode(st)
	}
	if in.Priority != "" {
		p, ok := normalize.ParseTicketPriority(in.Priority)
		if !ok {
			return s.fail(ctx, op, apperr.Validation("unknown ticket priority %q", in.Priority), nil)
		}
		changes["prioridad"] = normalize.PriorityToCode(p)
	}
	if tech := strings.TrimSpace(in.TechnicianID); tech != "" {
		changes["tecnico"] = technicianValue(tech)
	}
	if subject := strings.TrimSpace(in.Subject); subject != "" {
		changes["asunto"] = subject
	}
	if description := strings.TrimSpace(in.Description); description != "" {
		changes["descripcion"] = description
	}
	note := strings.TrimSpace(in.Note)
	if len(changes) == 0 && note == "" {
		return s.fail(ctx, op, apperr.Validation("at least one field required"), nil)
	}

	path := ticketPath(in.TicketID)
	body, err := s.api.Get(ctx, path, nil, 0)
	if err != nil {
		if isNotFound(err) {
			return s.fail(ctx, op, apperr.NotFound("ticket %d not found", in.TicketID), nil)
		}
		return s.fail(ctx, op, err, nil)
	}
	current, ok, err := normalize.UnwrapOne(body)
	if err != nil {
		return s.fail(ctx, op, err, nil)
	}
	if !ok {
		return s.fail(ctx, op, apperr.NotFound("ticket %d not found", in.TicketID), nil)
	}

	merged := s.mergeTicket(current, changes, note, status)
	if note != "" {
		changes["descripcion"] = merged["descripcion"]
	}

	out, err := verify.Run(ctx, verify.Write{
		Fields: changes,
		Send: func(ctx context.Context) (json.RawMessage, error) {
			return s.api.Put(ctx, path, merged)
		},
		Reread: func(ctx context.Context) (json.RawMessage, error) {
			return s.api.Get(ctx, path, nil, 0)
		},
	})

	debug := s.debugPayload(merged, nil)
	if err != nil {
		return s.fail(ctx, op, err, debug)
	}
	s.invalidate(pathTickets)
	s.observeVerification(ctx, op, out)

	if debug != nil {
		debug.Response = out.Response
		debug.Verification = &out.Report
	}

	var record any
	if out.Record != nil {
		record = s.norm.Ticket(out.Record)
	}
	return s.ok(model.UpdateOutcome{Record: record, Verification: &out.Report}, debug)
}

// mergeTicket строит полную запись для PUT. Смена состояния всегда
// сопровождается кодом причины, а завершающее состояние ещё и датой закрытия.
func (s *Service) mergeTicket(current normalize.Record, changes map[string]any, note string, status model.TicketStatus) map[string]any {
	merged := make(map[string]any, len(current)+len(changes)+2)
	for k, v := range current {
		merged[k] = flattenRef(v)
	}
	for _, k := range s.opts.TicketWriteDenylist {
		delete(merged, k)
	}
	for k, v := range changes {
		merged[k] = v
	}

	now := s.clock.Now()
	if note != "" {
		desc, _ := merged["descripcion"].(string)
		entry := "[" + now.Format(ticketDateLayout) + "] " + note
		if strings.TrimSpace(desc) == "" {
			merged["descripcion"] = entry
		} else {
			merged["descripcion"] = desc + "\n\n" + entry
		}
	}

	if status != "" {
		merged[ticketReasonField] = s.opts.TicketReasonCode
		if status.IsFinal() {
			merged[ticketClosedAtField] = now.Format(ticketClosedLayout)
		}
	}
	return merged
}

// flattenRef заменяет вложенную ссылку вида {"id": ...} её идентификатором:
// при записи API ожидает плоские идентификаторы.
func flattenRef(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for _, key := range []string{"id", "id_servicio"} {
		if id, ok := m[key]; ok {
			return id
		}
	}
	return v
}

func technicianValue(tech string) any {
	if validation.IsDigits(tech) {
		if id, err := strconv.ParseInt(tech, 10, 64); err == nil {
			return id
		}
	}
	return tech
}
