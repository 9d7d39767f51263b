// Package webhook ingests call-platform events: during a phone call the
// platform streams extraction results as function calls, and the call's
// accumulated state is finalized into a ticket when the call ends.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/movemate-io/movemate/internal/conversation"
	"github.com/movemate-io/movemate/internal/ticket"
	"github.com/movemate-io/movemate/pkg/protocol"
)

// extractFunction is the function-call name carrying structured issue
// fields.
const extractFunction = "extract_issue_info"

// maxBodyBytes caps event payloads.
const maxBodyBytes = 1 << 20

// Config holds webhook authentication. If Secret is set, requests must
// carry an HMAC-SHA256 signature; otherwise BearerToken is checked; if
// both are empty the endpoint is open (development only).
type Config struct {
	// Secret for HMAC-SHA256 signature verification
	// (X-Hub-Signature-256 header).
	Secret string `json:"secret,omitempty"`
	// BearerToken for Authorization header auth. Used if Secret is empty.
	BearerToken string `json:"bearer_token,omitempty"`
}

// event is the call-platform envelope. Only the fields MoveMate reads
// are declared; everything else is ignored.
type event struct {
	Message struct {
		Type         string `json:"type"`
		FunctionCall struct {
			Name       string          `json:"name"`
			Parameters json.RawMessage `json:"parameters"`
		} `json:"functionCall"`
		Call struct {
			ID string `json:"id"`
		} `json:"call"`
		// Status accompanies status-update events ("in-progress", "ended").
		Status string `json:"status"`
	} `json:"message"`
}

// Handler processes call events against the conversation store and
// finalizes completed calls into tickets.
type Handler struct {
	cfg     Config
	convs   *conversation.Store
	tickets ticket.Store
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a webhook handler.
func New(cfg Config, convs *conversation.Store, tickets ticket.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:     cfg,
		convs:   convs,
		tickets: tickets,
		logger:  logger,
		now:     time.Now,
	}
}

// ServeHTTP accepts one call event. The platform retries on non-200 and
// stalls the call waiting for a response, so every authenticated,
// parseable event is fast-acked with 200 {"received":true} even when
// processing fails.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !h.authenticate(r, body) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var ev event
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	callID := ev.Message.Call.ID
	if callID == "" {
		http.Error(w, "missing call id", http.StatusBadRequest)
		return
	}

	switch ev.Message.Type {
	case "function-call", "function-call-result":
		h.handleFunctionCall(callID, ev)
	case "status-update":
		if ev.Message.Status == "ended" {
			h.finalize(r.Context(), callID)
		}
	case "end-of-call-report":
		h.finalize(r.Context(), callID)
	default:
		h.logger.Debug("ignoring call event", "type", ev.Message.Type, "call", callID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
}

func (h *Handler) handleFunctionCall(callID string, ev event) {
	if ev.Message.FunctionCall.Name != extractFunction {
		h.logger.Debug("ignoring function call", "function", ev.Message.FunctionCall.Name, "call", callID)
		return
	}

	var partial protocol.Classification
	if err := json.Unmarshal(ev.Message.FunctionCall.Parameters, &partial); err != nil {
		h.logger.Warn("unparseable extraction parameters", "call", callID, "error", err)
		return
	}
	if partial.Timestamp == "" {
		partial.Timestamp = h.now().UTC().Format(time.RFC3339)
	}

	merged := h.convs.Update(callID, partial)
	h.logger.Info("call extraction merged", "call", callID, "complete", merged.SchemaComplete())
}

// finalize creates a ticket from the call's accumulated state if it is
// complete, then discards the state either way. An incomplete call
// leaves no trace beyond the log.
func (h *Handler) finalize(ctx context.Context, callID string) {
	state := h.convs.Get(callID)
	defer h.convs.Delete(callID)

	if !state.SchemaComplete() {
		h.logger.Info("call ended without a complete record", "call", callID)
		return
	}

	created, err := h.tickets.CreateTicket(ctx, ticket.CreateRequest{
		Category:              state.Category,
		IssueType:             state.IssueType,
		Location:              state.Location,
		Urgency:               state.Urgency,
		Summary:               state.Summary,
		Owner:                 "call:" + callID,
		ConversationStartedAt: state.Timestamp,
	})
	if err != nil {
		h.logger.Error("call finalization failed", "call", callID, "error", err)
		return
	}
	h.logger.Info("call finalized into ticket",
		"call", callID, "ticket", created.ID, "team", created.Team)
}

func (h *Handler) authenticate(r *http.Request, body []byte) bool {
	if h.cfg.Secret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if sig == "" {
			sig = r.Header.Get("X-Signature-256")
		}
		return verifyHMAC(body, h.cfg.Secret, sig)
	}
	if h.cfg.BearerToken != "" {
		return r.Header.Get("Authorization") == "Bearer "+h.cfg.BearerToken
	}
	return true
}

// verifyHMAC checks an HMAC-SHA256 signature.
// Signature format: "sha256=<hex>"
func verifyHMAC(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}

	sig := strings.TrimPrefix(signature, "sha256=")
	expectedMAC, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expectedMAC)
}

// ComputeSignature generates an HMAC-SHA256 signature for testing and
// for configuring the call platform.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
