// ABOUTME: HTTP API handlers for the conversation engine facade.
// ABOUTME: JSON endpoints for ask, conversation lifecycle, and knowledge search.

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bthornemail/automata-converse/internal/conversation"
	"github.com/bthornemail/automata-converse/internal/knowledge"
)

// AskRequest is the JSON request body for POST /api/ask.
type AskRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// CreateConversationRequest is the JSON request body for POST /api/conversations.
type CreateConversationRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// CreateConversationResponse is the JSON response for POST /api/conversations.
type CreateConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

// SwitchResponse is the JSON response for POST /api/conversations/{id}/switch.
type SwitchResponse struct {
	Switched bool `json:"switched"`
}

// registerAPIRoutes registers the JSON API on the mux.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/ask", g.handleAsk)
	mux.HandleFunc("/api/conversations", g.handleConversations)
	mux.HandleFunc("/api/conversations/", g.handleConversationRoutes)
	mux.HandleFunc("/api/knowledge/search", g.handleKnowledgeSearch)
}

// handleAsk handles POST /api/ask. An unknown conversation id is a 404; an
// empty question is a 400. Everything else comes back as a well-formed reply.
func (g *Gateway) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "question is required")
		return
	}

	reply, err := g.engine.Ask(r.Context(), req.Question, req.ConversationID)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		g.logger.Error("ask failed", "conversation_id", req.ConversationID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, reply)
}

// handleConversations handles POST (create) and GET (list) on
// /api/conversations.
func (g *Gateway) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req CreateConversationRequest
		if r.Body != nil {
			// An empty body means the default user.
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		id := g.engine.CreateConversation(req.UserID)
		g.sendJSON(w, http.StatusCreated, CreateConversationResponse{ConversationID: id})

	case http.MethodGet:
		g.sendJSON(w, http.StatusOK, g.engine.ListConversations())

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleConversationRoutes dispatches /api/conversations/{id}/<action> and
// the import endpoint.
func (g *Gateway) handleConversationRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")

	if rest == "import" {
		g.handleImport(w, r)
		return
	}

	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		g.sendJSONError(w, http.StatusBadRequest, "conversation id required")
		return
	}

	switch action {
	case "history":
		g.handleHistory(w, r, id)
	case "switch":
		g.handleSwitch(w, r, id)
	case "export":
		g.handleExport(w, r, id)
	case "restore":
		g.handleRestore(w, r, id)
	default:
		g.sendJSONError(w, http.StatusNotFound, "unknown conversation endpoint")
	}
}

// handleHistory handles GET and DELETE on /api/conversations/{id}/history.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				g.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = parsed
		}

		turns, err := g.engine.GetHistory(id, limit)
		if err != nil {
			g.respondStoreError(w, id, err)
			return
		}
		g.sendJSON(w, http.StatusOK, turns)

	case http.MethodDelete:
		if err := g.engine.ClearHistory(id); err != nil {
			g.respondStoreError(w, id, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleSwitch handles POST /api/conversations/{id}/switch. An unknown id is
// a 200 with switched=false, matching the facade contract.
func (g *Gateway) handleSwitch(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	g.sendJSON(w, http.StatusOK, SwitchResponse{Switched: g.engine.SwitchConversation(id)})
}

// handleExport handles GET /api/conversations/{id}/export.
func (g *Gateway) handleExport(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snap, err := g.engine.ExportContext(id)
	if err != nil {
		g.respondStoreError(w, id, err)
		return
	}
	g.sendJSON(w, http.StatusOK, snap)
}

// handleImport handles POST /api/conversations/import. A malformed snapshot
// is a 400 with the validation failure in the body, never a silent empty
// conversation.
func (g *Gateway) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var snap conversation.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	conv, err := g.engine.ImportContext(&snap)
	if err != nil {
		if errors.Is(err, conversation.ErrMalformedSnapshot) {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		g.logger.Error("import failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, conversation.Summary{
		ID:           conv.ID,
		UserID:       conv.UserID,
		TurnCount:    len(conv.Turns),
		CurrentTopic: conv.CurrentTopic,
		UpdatedAt:    conv.UpdatedAt,
	})
}

// handleRestore handles POST /api/conversations/{id}/restore: loads the
// archived snapshot for the id and imports it over live state.
func (g *Gateway) handleRestore(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snap, err := g.archive.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, conversation.ErrMalformedSnapshot) {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		g.sendJSONError(w, http.StatusNotFound, "no archived snapshot for this conversation")
		return
	}

	conv, err := g.engine.ImportContext(snap)
	if err != nil {
		if errors.Is(err, conversation.ErrMalformedSnapshot) {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		g.logger.Error("restore failed", "conversation_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, conversation.Summary{
		ID:           conv.ID,
		UserID:       conv.UserID,
		TurnCount:    len(conv.Turns),
		CurrentTopic: conv.CurrentTopic,
		UpdatedAt:    conv.UpdatedAt,
	})
}

// handleKnowledgeSearch handles GET /api/knowledge/search?q=&kind=&dimension=.
func (g *Gateway) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	q := knowledge.Query{
		Keyword:   r.URL.Query().Get("q"),
		Dimension: r.URL.Query().Get("dimension"),
	}
	if kind := r.URL.Query().Get("kind"); kind != "" {
		q.Kinds = []knowledge.Kind{knowledge.Kind(kind)}
	}

	recs, err := g.knowledge.Find(r.Context(), q)
	if err != nil {
		g.logger.Error("knowledge search failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if recs == nil {
		recs = []*knowledge.Record{}
	}
	g.sendJSON(w, http.StatusOK, recs)
}

// respondStoreError maps a store error onto an HTTP status.
func (g *Gateway) respondStoreError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, conversation.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	g.logger.Error("conversation operation failed", "conversation_id", id, "error", err)
	g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
}

// sendJSON writes a JSON response.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("encoding response failed", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
