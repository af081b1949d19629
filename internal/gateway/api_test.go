// ABOUTME: HTTP API tests exercising the composed gateway over httptest:
// ABOUTME: ask, conversation lifecycle, restore, and knowledge search.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bthornemail/automata-converse/internal/config"
	"github.com/bthornemail/automata-converse/internal/conversation"
	"github.com/bthornemail/automata-converse/internal/engine"
	"github.com/bthornemail/automata-converse/internal/knowledge"
)

func newTestGateway(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Archive.Path = filepath.Join(t.TempDir(), "archive.db")
	cfg.Router.QueryTimeout = time.Second

	gw, err := New(cfg, slog.Default())
	require.NoError(t, err)

	srv := httptest.NewServer(gw.httpServer.Handler)
	t.Cleanup(func() {
		srv.Close()
		_ = gw.Shutdown(context.Background())
	})
	return gw, srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func askQuestion(t *testing.T, srv *httptest.Server, question, conversationID string) engine.Reply {
	t.Helper()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/ask", AskRequest{
		Question:       question,
		ConversationID: conversationID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "ask failed: %s", body)

	var reply engine.Reply
	require.NoError(t, json.Unmarshal(body, &reply))
	return reply
}

func TestAPI_Ask_AnswersQuestion(t *testing.T) {
	_, srv := newTestGateway(t)

	reply := askQuestion(t, srv, "What is 4D-Network-Agent?", "")

	assert.NotEmpty(t, reply.ConversationID)
	assert.NotEmpty(t, reply.Answer)
	assert.NotEmpty(t, reply.Citations)
	assert.False(t, reply.Clarification)
	assert.Greater(t, reply.Confidence, 0.5)
}

func TestAPI_Ask_EmptyQuestion(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/ask", AskRequest{Question: "   "})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "question is required")
}

func TestAPI_Ask_UnknownConversation(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/ask", AskRequest{
		Question:       "What is teleport?",
		ConversationID: "no-such-id",
	})

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_Conversations_CreateAndList(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/conversations", CreateConversationRequest{UserID: "alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created CreateConversationResponse
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.ConversationID)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/conversations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summaries []conversation.Summary
	require.NoError(t, json.Unmarshal(body, &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, created.ConversationID, summaries[0].ID)
	assert.Equal(t, "alice", summaries[0].UserID)
}

func TestAPI_History_GetAndDelete(t *testing.T) {
	_, srv := newTestGateway(t)

	reply := askQuestion(t, srv, "What is teleport?", "")
	base := fmt.Sprintf("%s/api/conversations/%s/history", srv.URL, reply.ConversationID)

	resp, body := doJSON(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var turns []conversation.Turn
	require.NoError(t, json.Unmarshal(body, &turns))
	require.Len(t, turns, 1)
	assert.Equal(t, "What is teleport?", turns[0].UserInput)

	resp, _ = doJSON(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	turns = nil
	require.NoError(t, json.Unmarshal(body, &turns))
	assert.Empty(t, turns)
}

func TestAPI_History_LimitValidation(t *testing.T) {
	_, srv := newTestGateway(t)
	reply := askQuestion(t, srv, "What is teleport?", "")

	url := fmt.Sprintf("%s/api/conversations/%s/history?limit=nope", srv.URL, reply.ConversationID)
	resp, _ := doJSON(t, http.MethodGet, url, nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_History_UnknownConversation(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/conversations/no-such-id/history", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_Switch(t *testing.T) {
	gw, srv := newTestGateway(t)

	first := gw.engine.CreateConversation("alice")
	gw.engine.CreateConversation("bob")

	resp, body := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/conversations/%s/switch", srv.URL, first), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var switched SwitchResponse
	require.NoError(t, json.Unmarshal(body, &switched))
	assert.True(t, switched.Switched)
	assert.Equal(t, first, gw.engine.ActiveConversation())

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/conversations/no-such-id/switch", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &switched))
	assert.False(t, switched.Switched)
	assert.Equal(t, first, gw.engine.ActiveConversation())
}

func TestAPI_ExportImport_RoundTrip(t *testing.T) {
	_, srv := newTestGateway(t)

	reply := askQuestion(t, srv, "What is 4D-Network-Agent?", "")

	resp, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/conversations/%s/export", srv.URL, reply.ConversationID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap conversation.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	require.NotNil(t, snap.Conversation)

	resp, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/conversations/%s/history", srv.URL, reply.ConversationID), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/conversations/import", snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary conversation.Summary
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, reply.ConversationID, summary.ID)
	assert.Equal(t, 1, summary.TurnCount)
}

func TestAPI_Import_MalformedSnapshot(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/conversations/import", map[string]any{"version": 1})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "error")
}

func TestAPI_Restore_FromArchiveCheckpoint(t *testing.T) {
	_, srv := newTestGateway(t)

	// Every committed turn checkpoints into the archive.
	reply := askQuestion(t, srv, "What is teleport?", "")

	resp, _ := doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/conversations/%s/history", srv.URL, reply.ConversationID), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/conversations/%s/restore", srv.URL, reply.ConversationID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary conversation.Summary
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, reply.ConversationID, summary.ID)
	assert.Equal(t, 1, summary.TurnCount)
}

func TestAPI_Restore_UnknownSnapshot(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/conversations/no-such-id/restore", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_KnowledgeSearch(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/knowledge/search?q=teleport", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recs []*knowledge.Record
	require.NoError(t, json.Unmarshal(body, &recs))
	require.NotEmpty(t, recs)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/knowledge/search?kind=agent&dimension=4D", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	recs = nil
	require.NoError(t, json.Unmarshal(body, &recs))
	require.NotEmpty(t, recs)
	for _, rec := range recs {
		assert.Equal(t, knowledge.KindAgent, rec.Kind)
		assert.Equal(t, "4D", rec.Dimension)
	}
}

func TestAPI_KnowledgeSearch_NoMatchesIsEmptyList(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/knowledge/search?q=zzzznothing", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(body))
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/ask", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
