// Package api exposes the MoveMate REST surface: voice ingestion, the
// ticket dashboard endpoints, the live ticket stream, and diagnostics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/movemate-io/movemate/internal/logbuf"
	"github.com/movemate-io/movemate/internal/pipeline"
	"github.com/movemate-io/movemate/internal/ticket"
	"github.com/movemate-io/movemate/pkg/protocol"
)

// maxUploadBytes caps voice uploads; the transcription provider rejects
// anything over 25 MB anyway.
const maxUploadBytes = 25 << 20

// Processor handles one conversation turn. Implemented by
// pipeline.Pipeline.
type Processor interface {
	HandleUtterance(ctx context.Context, audio []byte, filename, conversationID, ownerID string) (*pipeline.Result, error)
	HandleTranscript(ctx context.Context, transcript, conversationID, ownerID string) *pipeline.Result
}

// ConversationResetter discards accumulated conversation state.
type ConversationResetter interface {
	Delete(conversationID string)
}

// LogQuerier abstracts log entry querying to avoid coupling to logbuf
// directly.
type LogQuerier interface {
	Query(since time.Time, minLevel slog.Level, limit int) []logbuf.Entry
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth; empty disables auth
}

// Server is the MoveMate REST API server.
type Server struct {
	proc    Processor
	tickets ticket.Store
	convs   ConversationResetter
	hub     *ticket.Hub
	cfg     Config
	logger  *slog.Logger
	logs    LogQuerier
	mux     *http.ServeMux
	srv     *http.Server
	upg     websocket.Upgrader
}

// NewServer creates a new API server. hub, convs, and logs may be nil;
// the corresponding endpoints then report unavailable or empty.
func NewServer(proc Processor, tickets ticket.Store, convs ConversationResetter, hub *ticket.Hub, cfg Config, logger *slog.Logger, logs LogQuerier) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		proc:    proc,
		tickets: tickets,
		convs:   convs,
		hub:     hub,
		cfg:     cfg,
		logger:  logger,
		logs:    logs,
		upg: websocket.Upgrader{
			// Dashboard clients connect cross-origin; auth is the bearer key.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/process", s.requireAuth(s.handleProcess))
	mux.HandleFunc("GET /api/tickets", s.requireAuth(s.handleListTickets))
	mux.HandleFunc("GET /api/tickets/{id}", s.requireAuth(s.handleGetTicket))
	mux.HandleFunc("POST /api/tickets/{id}/status", s.requireAuth(s.handleUpdateStatus))
	mux.HandleFunc("POST /api/tickets/{id}/queue", s.requireAuth(s.handleUpdateQueue))
	mux.HandleFunc("GET /api/tickets/stream", s.requireAuth(s.handleStream))
	mux.HandleFunc("DELETE /api/conversations/{id}", s.requireAuth(s.handleResetConversation))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))

	s.mux = mux
	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// MountWebhook registers the call-platform webhook at
// POST /api/webhook/call. The handler carries its own auth, so the
// bearer middleware is not applied. Must be called before Start.
func (s *Server) MountWebhook(h http.Handler) {
	s.mux.Handle("POST /api/webhook/call", h)
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// processResponse is the JSON shape of one conversation turn.
type processResponse struct {
	Transcript     string                   `json:"transcript"`
	Reply          string                   `json:"reply"`
	Classification *protocol.Classification `json:"classification,omitempty"`
	Ticket         *protocol.Ticket         `json:"ticket,omitempty"`
	// Audio is the base64 MP3 of the spoken reply, omitted when
	// synthesis was skipped or failed.
	Audio []byte `json:"audio,omitempty"`
}

// handleProcess accepts one turn as multipart form data: either an
// "audio" file part or a "text" field, plus "conversation_id" and an
// optional "owner".
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	convID := r.FormValue("conversation_id")
	if convID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation_id is required"})
		return
	}
	owner := r.FormValue("owner")

	var res *pipeline.Result
	if text := r.FormValue("text"); text != "" {
		res = s.proc.HandleTranscript(r.Context(), text, convID, owner)
	} else {
		file, header, err := r.FormFile("audio")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "audio file or text field is required"})
			return
		}
		defer file.Close()
		audio, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reading audio upload"})
			return
		}

		res, err = s.proc.HandleUtterance(r.Context(), audio, header.Filename, convID, owner)
		if err != nil {
			s.logger.Error("utterance processing failed", "conversation", convID, "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "transcription failed"})
			return
		}
	}

	writeJSON(w, http.StatusOK, processResponse{
		Transcript:     res.Transcript,
		Reply:          res.Reply,
		Classification: res.Classification,
		Ticket:         res.Ticket,
		Audio:          res.Audio,
	})
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	filter := ticket.Filter{}
	q := r.URL.Query()
	if status := q.Get("status"); status != "" {
		ts := protocol.TicketStatus(status)
		if !protocol.ValidStatus(ts) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
			return
		}
		filter.Status = &ts
	}
	if team := q.Get("team"); team != "" {
		tm := protocol.Team(team)
		if !protocol.ValidTeam(tm) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid team"})
			return
		}
		filter.Team = tm
	}
	if q.Get("open") == "true" {
		filter.OpenOnly = true
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = n
		}
	}

	tickets, err := s.tickets.List(filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if tickets == nil {
		tickets = []*protocol.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.tickets.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ticket not found"})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type updateStatusRequest struct {
	Status protocol.TicketStatus `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if !protocol.ValidStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	if err := s.tickets.UpdateStatus(id, req.Status); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ticket not found"})
		return
	}
	t, err := s.tickets.Get(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type updateQueueRequest struct {
	Position int `json:"position"`
}

func (s *Server) handleUpdateQueue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req updateQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Position < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "position must be >= 1"})
		return
	}

	if err := s.tickets.UpdateQueuePosition(id, req.Position); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ticket not found"})
		return
	}
	t, err := s.tickets.Get(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleResetConversation(w http.ResponseWriter, r *http.Request) {
	if s.convs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "conversations unavailable"})
		return
	}
	s.convs.Delete(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleStream upgrades to a websocket and forwards ticket events until
// the client disconnects or the subscription buffer overflows.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "stream unavailable"})
		return
	}
	conn, err := s.upg.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := s.hub.Subscribe()
	defer cancel()

	// Reader goroutine: surfaces client disconnects and drains control
	// frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	limit := 200
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	minLevel := slog.LevelDebug
	if lvl := r.URL.Query().Get("level"); lvl != "" {
		switch strings.ToLower(lvl) {
		case "info":
			minLevel = slog.LevelInfo
		case "warn":
			minLevel = slog.LevelWarn
		case "error":
			minLevel = slog.LevelError
		}
	}

	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			since = time.UnixMilli(ms)
		}
	}

	entries := s.logs.Query(since, minLevel, limit)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
