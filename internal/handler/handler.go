// Package handler содержит MCP-инструменты шлюза и HTTP-маршруты для
// HTTP-транспорта.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/mmeshcher/isp-mcp-gateway/internal/apperr"
	"github.com/mmeshcher/isp-mcp-gateway/internal/logger"
	"github.com/mmeshcher/isp-mcp-gateway/internal/middleware"
	"github.com/mmeshcher/isp-mcp-gateway/internal/model"
	"github.com/mmeshcher/isp-mcp-gateway/internal/service"
)

// Service определяет контракт доменных операций, используемых инструментами.
type Service interface {
	SearchClients(ctx context.Context, in service.SearchClientsInput) model.Result
	GetClient(ctx context.Context, identifier string) model.Result
	GetBalance(ctx context.Context, serviceID int64) model.Result
	ListTickets(ctx context.Context, in service.ListTicketsInput) model.Result
	CreateTicket(ctx context.Context, in service.CreateTicketInput) model.Result
	UpdateTicket(ctx context.Context, in service.UpdateTicketInput) model.Result
	UpdateClient(ctx context.Context, serviceID int64, fields map[string]any) model.Result
	ChangeServiceState(ctx context.Context, serviceID int64, status, reason string) model.Result
	CacheStats(ctx context.Context) model.Result
}

// Handler реализует MCP-инструменты шлюза.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	mcp            *server.MCPServer
	tools          []server.ServerTool
}

// NewHandler создаёт обработчик и регистрирует инструменты в MCP-сервере.
func NewHandler(s Service, l *zap.Logger, auth *middleware.AuthMiddleware, name, version string) *Handler {
	h := &Handler{
		service:        s,
		logger:         l,
		authMiddleware: auth,
	}
	h.tools = h.toolset()
	h.mcp = server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	h.mcp.AddTools(h.tools...)
	return h
}

// MCPServer возвращает MCP-сервер с зарегистрированными инструментами.
func (h *Handler) MCPServer() *server.MCPServer {
	return h.mcp
}

// ToolNames возвращает имена зарегистрированных инструментов.
func (h *Handler) ToolNames() []string {
	names := make([]string, 0, len(h.tools))
	for _, t := range h.tools {
		names = append(names, t.Tool.Name)
	}
	return names
}

// toolFunc обрабатывает вызов инструмента над уже разобранными аргументами.
type toolFunc func(ctx context.Context, a args) model.Result

// wrap назначает вызову request_id, пишет журнал и отрисовывает результат.
func (h *Handler) wrap(name string, fn toolFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if logger.RequestIDFromContext(ctx) == "" {
			ctx = logger.WithRequestID(ctx, uuid.NewString())
		}
		log := logger.WithContext(ctx, h.logger).With(zap.String("tool", name))

		start := time.Now()
		res := fn(ctx, args(req.GetArguments()))

		log.Info("tool call",
			zap.Bool("success", res.Success),
			zap.String("kind", res.Kind),
			zap.Duration("duration", time.Since(start)),
		)
		return render(res)
	}
}

// render представляет результат как текст JSON; неуспешный результат
// помечается флагом isError и дополняется подсказкой.
func render(res model.Result) (*mcp.CallToolResult, error) {
	body, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	if res.Success {
		return mcp.NewToolResultText(string(body)), nil
	}

	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(res.Error)
	if res.Hint != "" {
		b.WriteString("\nHint: ")
		b.WriteString(res.Hint)
	}
	b.WriteString("\n\n")
	b.Write(body)
	return mcp.NewToolResultError(b.String()), nil
}

// rejected строит результат для аргументов, не прошедших проверку.
func rejected(err error) model.Result {
	return model.Result{
		Success:   false,
		Error:     err.Error(),
		Kind:      string(apperr.KindOf(err)),
		Hint:      apperr.Hint(err),
		Timestamp: time.Now(),
	}
}

func (h *Handler) searchClients(ctx context.Context, a args) model.Result {
	query, err := a.str("search")
	if err != nil {
		return rejected(err)
	}
	email, err := a.str("email")
	if err != nil {
		return rejected(err)
	}
	status, err := a.str("status")
	if err != nil {
		return rejected(err)
	}
	limit, err := a.integer("limit")
	if err != nil {
		return rejected(err)
	}

	return h.service.SearchClients(ctx, service.SearchClientsInput{
		Query:  query,
		Email:  email,
		Status: status,
		Limit:  limit,
	})
}

func (h *Handler) getClient(ctx context.Context, a args) model.Result {
	identifier, err := a.requiredStr("identifier")
	if err != nil {
		return rejected(err)
	}
	return h.service.GetClient(ctx, identifier)
}

func (h *Handler) getBalance(ctx context.Context, a args) model.Result {
	id, err := a.serviceID("service_id")
	if err != nil {
		return rejected(err)
	}
	return h.service.GetBalance(ctx, id)
}

func (h *Handler) listTickets(ctx context.Context, a args) model.Result {
	var in service.ListTicketsInput
	if a.has("service_id") {
		id, err := a.serviceID("service_id")
		if err != nil {
			return rejected(err)
		}
		in.ServiceID = id
	}
	status, err := a.str("status")
	if err != nil {
		return rejected(err)
	}
	limit, err := a.integer("limit")
	if err != nil {
		return rejected(err)
	}
	in.Status = status
	in.Limit = limit

	return h.service.ListTickets(ctx, in)
}

func (h *Handler) createTicket(ctx context.Context, a args) model.Result {
	id, err := a.serviceID("service_id")
	if err != nil {
		return rejected(err)
	}
	subject, err := a.requiredStr("subject")
	if err != nil {
		return rejected(err)
	}
	description, err := a.requiredStr("description")
	if err != nil {
		return rejected(err)
	}
	priority, err := a.str("priority")
	if err != nil {
		return rejected(err)
	}
	technician, err := a.idString("technician_id")
	if err != nil {
		return rejected(err)
	}

	return h.service.CreateTicket(ctx, service.CreateTicketInput{
		ServiceID:    id,
		Subject:      subject,
		Description:  description,
		Priority:     priority,
		TechnicianID: technician,
	})
}

func (h *Handler) updateTicket(ctx context.Context, a args) model.Result {
	id, err := a.positive("ticket_id")
	if err != nil {
		return rejected(err)
	}

	in := service.UpdateTicketInput{TicketID: id}
	for key, dst := range map[string]*string{
		"status":      &in.Status,
		"priority":    &in.Priority,
		"subject":     &in.Subject,
		"description": &in.Description,
		"note":        &in.Note,
	} {
		v, err := a.str(key)
		if err != nil {
			return rejected(err)
		}
		*dst = v
	}
	if in.TechnicianID, err = a.idString("technician_id"); err != nil {
		return rejected(err)
	}

	return h.service.UpdateTicket(ctx, in)
}

func (h *Handler) updateClient(ctx context.Context, a args) model.Result {
	id, err := a.serviceID("service_id")
	if err != nil {
		return rejected(err)
	}
	fields, err := a.object("fields")
	if err != nil {
		return rejected(err)
	}
	return h.service.UpdateClient(ctx, id, fields)
}

func (h *Handler) changeServiceStatus(ctx context.Context, a args) model.Result {
	id, err := a.serviceID("service_id")
	if err != nil {
		return rejected(err)
	}
	status, err := a.requiredStr("status")
	if err != nil {
		return rejected(err)
	}
	reason, err := a.requiredStr("reason")
	if err != nil {
		return rejected(err)
	}
	return h.service.ChangeServiceState(ctx, id, status, reason)
}

func (h *Handler) cacheStats(ctx context.Context, _ args) model.Result {
	return h.service.CacheStats(ctx)
}
