package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/isp-mcp-gateway/internal/apperr"
	"github.com/mmeshcher/isp-mcp-gateway/internal/model"
	"github.com/mmeshcher/isp-mcp-gateway/internal/normalize"
	"github.com/mmeshcher/isp-mcp-gateway/internal/validation"
	"github.com/mmeshcher/isp-mcp-gateway/internal/verify"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Поля абонента, которые разрешено изменять через UpdateClient.
var clientWritableFields = map[string]bool{
	"nombre":      true,
	"email":       true,
	"telefono":    true,
	"direccion":   true,
	"localidad":   true,
	"ciudad":      true,
	"comentarios": true,
	"coordenadas": true,
	"ip":          true,
	"mac_cpe":     true,
}

// ClientWritableFields возвращает отсортированный список изменяемых полей абонента.
func ClientWritableFields() []string {
	out := make([]string, 0, len(clientWritableFields))
	for f := range clientWritableFields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// SearchClientsInput задаёт параметры поиска абонентов.
type SearchClientsInput struct {
	Query  string
	Email  string
	Status string
	Limit  int
}

// ClientList содержит страницу найденных абонентов.
type ClientList struct {
	Total    int            `json:"total"`
	Returned int            `json:"returned"`
	Clients  []model.Client `json:"clients"`
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

// SearchClients ищет абонентов по строке или email с необязательным фильтром по состоянию.
func (s *Service) SearchClients(ctx context.Context, in SearchClientsInput) model.Result {
	const op = "search_clients"

	email := strings.TrimSpace(in.Email)
	if email != "" && !validation.IsEmail(email) {
		return s.fail(ctx, op, apperr.Validation("invalid email %q", email), nil)
	}

	var status model.ClientStatus
	if in.Status != "" {
		st, ok := normalize.ParseClientStatus(in.Status)
		if !ok {
			return s.fail(ctx, op, apperr.Validation("unknown client status %q", in.Status), nil)
		}
		status = st
	}

	params := url.Values{}
	if q := strings.TrimSpace(in.Query); q != "" {
		params.Set("search", q)
	}
	if email != "" {
		params.Set("email", email)
	}
	if status != "" {
		params.Set("estado", normalize.ClientStatusToAPI(status))
	}

	body, err := s.api.Get(ctx, pathClients, params, s.opts.ClientsTTL)
	if err != nil {
		return s.fail(ctx, op, err, nil)
	}
	raw, err := normalize.Decode(body)
	if err != nil {
		return s.fail(ctx, op, err, nil)
	}

	limit := clampLimit(in.Limit)
	clients := make([]model.Client, 0, min(limit, len(raw.Records)))
	for _, rec := range raw.Records {
		c := s.norm.Client(rec)
		if status != "" && c.Status != status {
			continue
		}
		if len(clients) == limit {
			break
		}
		clients = append(clients, c)
	}

	total := raw.Count
	if total < len(clients) {
		total = len(clients)
	}
	return s.ok(ClientList{Total: total, Returned: len(clients), Clients: clients}, s.debugPayload(params.Encode(), nil))
}

// clientLookup читает абонента. found=false без ошибки означает, что абонент не найден.
type clientLookup func(ctx context.Context, ttl time.Duration) (normalize.Record, bool, error)

func (s *Service) lookupFor(identifier string) (clientLookup, error) {
	switch {
	case validation.IsDigits(identifier):
		id, err := strconv.ParseInt(identifier, 10, 64)
		if err != nil || !validation.IsValidServiceID(id) {
			return nil, apperr.Validation("invalid service id %q", identifier)
		}
		return func(ctx context.Context, ttl time.Duration) (normalize.Record, bool, error) {
			body, err := s.api.Get(ctx, clientPath(id), nil, ttl)
			if err != nil {
				if isNotFound(err) {
					return nil, false, nil
				}
				return nil, false, err
			}
			return normalize.UnwrapOne(body)
		}, nil

	case strings.Contains(identifier, "@"):
		if !validation.IsEmail(identifier) {
			return nil, apperr.Validation("invalid email %q", identifier)
		}
		params := url.Values{"email": {identifier}}
		return func(ctx context.Context, ttl time.Duration) (normalize.Record, bool, error) {
			body, err := s.api.Get(ctx, pathClients, params, ttl)
			if err != nil {
				return nil, false, err
			}
			records, err := normalize.UnwrapCollection(body)
			if err != nil {
				return nil, false, err
			}
			// Фильтр email может быть проигнорирован API, поэтому
			// принимается только точное совпадение адреса.
			for _, rec := range records {
				if e, _ := rec["email"].(string); strings.EqualFold(strings.TrimSpace(e), identifier) {
					return rec, true, nil
				}
			}
			return nil, false, nil
		}, nil

	default:
		params := url.Values{"search": {identifier}}
		return func(ctx context.Context, ttl time.Duration) (normalize.Record, bool, error) {
			body, err := s.api.Get(ctx, pathClients, params, ttl)
			if err != nil {
				return nil, false, err
			}
			return normalize.UnwrapOne(body)
		}, nil
	}
}

// GetClient ищет одного абонента по id услуги, email или строке поиска.
// Чтение повторяется до FetchAttempts раз с паузой attempt*FetchBackoff;
// кеш используется только в первой попытке. Если абонент так и не найден,
// возвращается успешный результат без данных. Журнал попыток всегда
// возвращается в Debug.
func (s *Service) GetClient(ctx context.Context, identifier string) model.Result {
	const op = "get_client"

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return s.fail(ctx, op, apperr.Validation("client identifier is required"), nil)
	}
	lookup, err := s.lookupFor(identifier)
	if err != nil {
		return s.fail(ctx, op, err, nil)
	}

	debug := &model.Debug{}
	var (
		lastErr error
		errored int
	)
	for attempt := 1; attempt <= s.opts.FetchAttempts; attempt++ {
		ttl := time.Duration(0)
		if attempt == 1 {
			ttl = s.opts.ClientsTTL
		}

		started := s.clock.Now()
		rec, found, err := lookup(ctx, ttl)
		a := model.Attempt{
			Number:    attempt,
			Success:   err == nil,
			Found:     found,
			Duration:  s.clock.Now().Sub(started),
			StartedAt: started,
		}
		if err != nil {
			a.Error = err.Error()
		}
		debug.Attempts = append(debug.Attempts, a)

		if err == nil && found {
			return s.ok(s.norm.Client(rec), debug)
		}
		if err != nil {
			lastErr = err
			errored++
			if !apperr.IsRetryable(err) {
				break
			}
		}

		if attempt < s.opts.FetchAttempts {
			s.log(ctx).Debug("client not found yet, retrying",
				zap.String("identifier", identifier),
				zap.Int("attempt", attempt),
			)
			if err := s.clock.Sleep(ctx, time.Duration(attempt)*s.opts.FetchBackoff); err != nil {
				return s.fail(ctx, op, apperr.FromContext(err), debug)
			}
		}
	}

	if errored == len(debug.Attempts) {
		return s.fail(ctx, op, lastErr, debug)
	}
	return s.empty(fmt.Sprintf("no client found for %q", identifier), debug)
}

// UpdateClient изменяет разрешённые поля абонента и сверяет результат повторным чтением.
func (s *Service) UpdateClient(ctx context.Context, serviceID int64, fields map[string]any) model.Result {
	const op = "update_client"

	if !validation.IsValidServiceID(serviceID) {
		return s.fail(ctx, op, apperr.Validation("invalid service id %d", serviceID), nil)
	}
	if len(fields) == 0 {
		return s.fail(ctx, op, apperr.Validation("at least one field required"), nil)
	}

	payload := make(map[string]any, len(fields))
	for k, v := range fields {
		if !clientWritableFields[k] {
			return s.fail(ctx, op, apperr.Validation("field %q cannot be updated, allowed: %s", k, strings.Join(ClientWritableFields(), ", ")), nil)
		}
		text, ok := v.(string)
		if !ok {
			return s.fail(ctx, op, apperr.Validation("field %q must be a string", k), nil)
		}
		if k == "email" && text != "" && !validation.IsEmail(text) {
			return s.fail(ctx, op, apperr.Validation("invalid email %q", text), nil)
		}
		payload[k] = text
	}

	return s.writeClient(ctx, op, serviceID, payload, payload, nil)
}

// ChangeServiceState меняет состояние услуги абонента. Причина обязательна и
// передаётся в API, но сверяется только состояние.
func (s *Service) ChangeServiceState(ctx context.Context, serviceID int64, status, reason string) model.Result {
	const op = "change_service_status"

	if !validation.IsValidServiceID(serviceID) {
		return s.fail(ctx, op, apperr.Validation("invalid service id %d", serviceID), nil)
	}
	st, ok := normalize.ParseClientStatus(status)
	if !ok {
		return s.fail(ctx, op, apperr.Validation("unknown client status %q", status), nil)
	}
	reason, err := validation.RequireText("reason", reason)
	if err != nil {
		return s.fail(ctx, op, err, nil)
	}

	estado := normalize.ClientStatusToAPI(st)
	payload := map[string]any{"estado": estado, "motivo": reason}
	fields := map[string]any{"estado": estado}
	eq := map[string]func(sent, observed any) bool{
		"estado": func(_, observed any) bool {
			o, _ := observed.(string)
			return normalize.ClientStatusFromAPI(o) == st
		},
	}
	return s.writeClient(ctx, op, serviceID, payload, fields, eq)
}

// methodUnsupported сообщает, что сервер не поддерживает метод или маршрут
// и имеет смысл попробовать другой. Ошибки авторизации и валидации
// возвращаются как есть.
func methodUnsupported(err error) bool {
	switch apperr.StatusOf(err) {
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return true
	}
	return false
}

func (s *Service) writeClient(ctx context.Context, op string, serviceID int64, payload, fields map[string]any, eq map[string]func(sent, observed any) bool) model.Result {
	path := clientPath(serviceID)
	var attempts []model.Attempt

	out, err := verify.Run(ctx, verify.Write{
		Fields: fields,
		Equal:  eq,
		Send: func(ctx context.Context) (json.RawMessage, error) {
			resp, log, err := verify.TryInOrderWhen(ctx, s.clock.Now, []verify.Candidate[json.RawMessage]{
				{Name: "PATCH " + path, Run: func(ctx context.Context) (json.RawMessage, error) { return s.api.Patch(ctx, path, payload) }},
				{Name: "PUT " + path, Run: func(ctx context.Context) (json.RawMessage, error) { return s.api.Put(ctx, path, payload) }},
			}, methodUnsupported)
			attempts = log
			return resp, err
		},
		Reread: func(ctx context.Context) (json.RawMessage, error) {
			return s.api.Get(ctx, path, nil, 0)
		},
	})

	debug := s.debugPayload(payload, nil)
	if debug != nil {
		debug.Attempts = attempts
	}
	if err != nil {
		return s.fail(ctx, op, err, debug)
	}
	s.invalidate(pathClients)
	s.observeVerification(ctx, op, out)

	if debug != nil {
		debug.Response = out.Response
		debug.Verification = &out.Report
	}

	var record any
	if out.Record != nil {
		record = s.norm.Client(out.Record)
	}
	return s.ok(model.UpdateOutcome{Record: record, Verification: &out.Report}, debug)
}
