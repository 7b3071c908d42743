package handler

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mmeshcher/isp-mcp-gateway/internal/service"
)

const (
	clientStatusHelp   = "Service status: active, suspended, cancelled (Spanish aliases accepted: activo, suspendido, cancelado)."
	ticketStatusHelp   = "Ticket status: new, in_progress, resolved, closed (aliases: nuevo, en_progreso, resuelto, cerrado)."
	ticketPriorityHelp = "Priority: low, normal, high, very_high (aliases: baja, media, alta, muy_alta)."
)

func (h *Handler) toolset() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("search_clients",
				mcp.WithDescription("Search ISP clients by free text or email, optionally filtered by service status."),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("search", mcp.Description("Free-text search: name, username, address or phone.")),
				mcp.WithString("email", mcp.Description("Exact email address.")),
				mcp.WithString("status", mcp.Description(clientStatusHelp)),
				mcp.WithNumber("limit", mcp.Description("Maximum clients to return (default 20, max 100).")),
			),
			Handler: h.wrap("search_clients", h.searchClients),
		},
		{
			Tool: mcp.NewTool("get_client",
				mcp.WithDescription("Fetch one client by service id, email or search term. Retries a few times since new records can take a moment to appear."),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("identifier", mcp.Required(), mcp.Description("Service id (digits), email, or search text.")),
			),
			Handler: h.wrap("get_client", h.getClient),
		},
		{
			Tool: mcp.NewTool("get_client_balance",
				mcp.WithDescription("Get the balance, pending invoices and overdue tier of a service."),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithNumber("service_id", mcp.Required(), mcp.Description("Service id, a positive integer.")),
			),
			Handler: h.wrap("get_client_balance", h.getBalance),
		},
		{
			Tool: mcp.NewTool("list_tickets",
				mcp.WithDescription("List support tickets, optionally for one service and status."),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithNumber("service_id", mcp.Description("Service id to filter by.")),
				mcp.WithString("status", mcp.Description(ticketStatusHelp)),
				mcp.WithNumber("limit", mcp.Description("Maximum tickets to return (default 20, max 100).")),
			),
			Handler: h.wrap("list_tickets", h.listTickets),
		},
		{
			Tool: mcp.NewTool("create_ticket",
				mcp.WithDescription("Open a support ticket for a service."),
				mcp.WithNumber("service_id", mcp.Required(), mcp.Description("Service id, a positive integer.")),
				mcp.WithString("subject", mcp.Required(), mcp.Description("Short subject.")),
				mcp.WithString("description", mcp.Required(), mcp.Description("Problem description.")),
				mcp.WithString("priority", mcp.Description(ticketPriorityHelp)),
				mcp.WithString("technician_id", mcp.Description("Technician to assign.")),
			),
			Handler: h.wrap("create_ticket", h.createTicket),
		},
		{
			Tool: mcp.NewTool("update_ticket",
				mcp.WithDescription("Update a ticket and verify the stored result. A note is appended to the description with a timestamp."),
				mcp.WithNumber("ticket_id", mcp.Required(), mcp.Description("Ticket id.")),
				mcp.WithString("status", mcp.Description(ticketStatusHelp)),
				mcp.WithString("priority", mcp.Description(ticketPriorityHelp)),
				mcp.WithString("technician_id", mcp.Description("Technician to assign.")),
				mcp.WithString("subject", mcp.Description("New subject.")),
				mcp.WithString("description", mcp.Description("Replacement description.")),
				mcp.WithString("note", mcp.Description("Note to append to the description.")),
			),
			Handler: h.wrap("update_ticket", h.updateTicket),
		},
		{
			Tool: mcp.NewTool("update_client",
				mcp.WithDescription("Update client fields and report which ones the ISP actually stored. Writable fields: "+strings.Join(service.ClientWritableFields(), ", ")+"."),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithNumber("service_id", mcp.Required(), mcp.Description("Service id, a positive integer.")),
				mcp.WithObject("fields", mcp.Required(), mcp.Description("Field name to new string value, using ISP field names.")),
			),
			Handler: h.wrap("update_client", h.updateClient),
		},
		{
			Tool: mcp.NewTool("change_service_status",
				mcp.WithDescription("Activate, suspend or cancel a service. The reason is recorded upstream; the resulting status is verified."),
				mcp.WithDestructiveHintAnnotation(true),
				mcp.WithNumber("service_id", mcp.Required(), mcp.Description("Service id, a positive integer.")),
				mcp.WithString("status", mcp.Required(), mcp.Description(clientStatusHelp)),
				mcp.WithString("reason", mcp.Required(), mcp.Description("Why the status changes.")),
			),
			Handler: h.wrap("change_service_status", h.changeServiceStatus),
		},
		{
			Tool: mcp.NewTool("cache_stats",
				mcp.WithDescription("Show response cache statistics."),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: h.wrap("cache_stats", h.cacheStats),
		},
	}
}
