package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rohan-chari/tempo-backend/internal/domain"
	"github.com/rohan-chari/tempo-backend/internal/middleware"
	"github.com/rohan-chari/tempo-backend/internal/port"
	"github.com/rohan-chari/tempo-backend/internal/service"
)

// Server implements the Model Context Protocol (MCP) server.
// It exposes calendar tools to external AI agents acting for a signed-in user.
type Server struct {
	events  *service.EventService
	intents *service.IntentService
	audit   port.AuditWriter
	jwtCfg  middleware.JWTConfig
	port    string
}

// NewServer creates a new MCP server. audit may be nil.
func NewServer(events *service.EventService, intents *service.IntentService, audit port.AuditWriter, jwtCfg middleware.JWTConfig, port string) *Server {
	return &Server{
		events:  events,
		intents: intents,
		audit:   audit,
		jwtCfg:  jwtCfg,
		port:    port,
	}
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleRPC)
	mux.HandleFunc("/mcp/sse", s.handleSSE)
	return mux
}

// Start serves on the configured port until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("MCP server starting", "port", s.port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) authenticate(r *http.Request) (*domain.UserContext, error) {
	token := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			token = parts[1]
		}
	}
	if token == "" {
		return nil, port.ErrUnauthorized
	}
	claims, err := middleware.ValidateToken(token, s.jwtCfg)
	if err != nil {
		return nil, err
	}
	return claims.UserContext(), nil
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uc, err := s.authenticate(r)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(JSONRPCResponse{JSONRPC: "2.0", Error: &RPCError{Code: -32001, Message: "unauthorized"}})
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, -32700, "parse error")
		return
	}

	var result any

	switch req.Method {
	case "tools/list":
		result = s.listTools()
	case "tools/call":
		result, err = s.callTool(r.Context(), uc, req.Params)
	case "initialize":
		result = map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]string{
				"name":    "tempo",
				"version": "1.0.0",
			},
			"capabilities": map[string]any{
				"tools": map[string]bool{"listChanged": false},
			},
		}
	default:
		writeError(w, req.ID, -32601, "method not found")
		return
	}

	if err != nil {
		writeError(w, req.ID, -32603, err.Error())
		return
	}

	writeResult(w, req.ID, result)
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: endpoint\ndata: /mcp\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	<-r.Context().Done()
}

func (s *Server) listTools() map[string]any {
	tools := []Tool{
		{
			Name:        "list_events",
			Description: "List the user's calendar events, optionally within a date range or calendar",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"start_date": {"type": "string", "description": "ISO-8601 lower bound on event start"},
					"end_date": {"type": "string", "description": "ISO-8601 upper bound on event end"},
					"calendar_id": {"type": "string", "description": "Only events from this calendar"}
				}
			}`),
		},
		{
			Name:        "calendar_stats",
			Description: "Count the user's events per calendar and split them into upcoming and past",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {}
			}`),
		},
		{
			Name:        "parse_intent",
			Description: "Turn a natural-language calendar request into a structured intent",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"message": {"type": "string", "description": "What the user asked for"},
					"timezone": {"type": "string", "description": "IANA timezone, default UTC"}
				},
				"required": ["message"]
			}`),
		},
	}
	return map[string]any{"tools": tools}
}

func (s *Server) callTool(ctx context.Context, uc *domain.UserContext, params json.RawMessage) (any, error) {
	var req struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	s.record(uc, req.Name)

	switch req.Name {
	case "list_events":
		var args struct {
			StartDate  string `json:"start_date"`
			EndDate    string `json:"end_date"`
			CalendarID string `json:"calendar_id"`
		}
		if err := unmarshalArgs(req.Arguments, &args); err != nil {
			return nil, err
		}

		filter := domain.EventFilter{CalendarID: args.CalendarID}
		if args.StartDate != "" {
			t, err := service.ParseTimestamp(args.StartDate)
			if err != nil {
				return nil, fmt.Errorf("start_date: %w", err)
			}
			filter.StartDate = &t
		}
		if args.EndDate != "" {
			t, err := service.ParseTimestamp(args.EndDate)
			if err != nil {
				return nil, fmt.Errorf("end_date: %w", err)
			}
			filter.EndDate = &t
		}

		events, err := s.events.ListEvents(ctx, uc.Subject, filter)
		if err != nil {
			return nil, err
		}
		return textResult(events)

	case "calendar_stats":
		stats, err := s.events.ComputeStats(ctx, uc.Subject)
		if err != nil {
			return nil, err
		}
		return textResult(stats)

	case "parse_intent":
		var args struct {
			Message  string `json:"message"`
			Timezone string `json:"timezone"`
		}
		if err := unmarshalArgs(req.Arguments, &args); err != nil {
			return nil, err
		}
		if strings.TrimSpace(args.Message) == "" {
			return nil, errors.New("message is required")
		}
		loc := time.UTC
		if args.Timezone != "" {
			l, err := time.LoadLocation(args.Timezone)
			if err != nil {
				return nil, fmt.Errorf("timezone: %w", err)
			}
			loc = l
		}

		intent, err := s.intents.Translate(ctx, domain.IntentRequest{Message: args.Message, Now: time.Now(), Location: loc})
		if err != nil {
			return nil, err
		}
		return textResult(intent)

	default:
		return nil, fmt.Errorf("unknown tool: %s", req.Name)
	}
}

func (s *Server) record(uc *domain.UserContext, tool string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.WriteAudit(uc.Subject, domain.AuditActionMCPCall, "mcp", tool, "{}", "", ""); err != nil {
		slog.Error("failed to write mcp audit log", "error", err)
	}
}

func unmarshalArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// textResult wraps v as a single JSON text content block.
func textResult(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": string(b)},
		},
	}, nil
}

func writeResult(w http.ResponseWriter, id any, result any) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, id any, code int, message string) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
