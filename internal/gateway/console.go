// ABOUTME: Read-only HTML console: conversation listing and transcript views
// ABOUTME: with answers rendered from markdown via goldmark.

package gateway

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/bthornemail/automata-converse/internal/conversation"
)

const consolePageHTML = `<!DOCTYPE html>
<html>
<head>
	<title>converse console</title>
	<style>
		body { font-family: -apple-system, sans-serif; max-width: 860px; margin: 2em auto; padding: 0 1em; color: #222; }
		h1 { font-size: 1.3em; }
		table { border-collapse: collapse; width: 100%; }
		th, td { text-align: left; padding: 6px 10px; border-bottom: 1px solid #ddd; }
		th { color: #666; font-weight: 600; }
		a { color: #2a6cc4; text-decoration: none; }
		.empty { color: #888; font-style: italic; }
	</style>
</head>
<body>
	<h1>Conversations</h1>
	{{if .Conversations}}
	<table>
		<tr><th>ID</th><th>User</th><th>Turns</th><th>Topic</th><th>Updated</th></tr>
		{{range .Conversations}}
		<tr>
			<td><a href="/console/transcript?conversation_id={{.ID}}">{{.ID}}</a></td>
			<td>{{.UserID}}</td>
			<td>{{.TurnCount}}</td>
			<td>{{.CurrentTopic}}</td>
			<td>{{.UpdatedAt.Format "15:04:05"}}</td>
		</tr>
		{{end}}
	</table>
	{{else}}
	<p class="empty">No conversations yet.</p>
	{{end}}
</body>
</html>`

const transcriptPageHTML = `<!DOCTYPE html>
<html>
<head>
	<title>transcript {{.ConversationID}}</title>
	<style>
		body { font-family: -apple-system, sans-serif; max-width: 860px; margin: 2em auto; padding: 0 1em; color: #222; }
		h1 { font-size: 1.3em; }
		.turn { margin-bottom: 1.5em; }
		.question { font-weight: 600; }
		.answer { background: #f6f8fa; border-radius: 6px; padding: 0.5em 1em; margin-top: 0.4em; }
		.meta { color: #888; font-size: 0.85em; }
		a { color: #2a6cc4; text-decoration: none; }
	</style>
</head>
<body>
	<p><a href="/console">&larr; conversations</a></p>
	<h1>Transcript {{.ConversationID}}</h1>
	{{range .Turns}}
	<div class="turn">
		<div class="question">{{.UserInput}}</div>
		<div class="answer">{{.ResponseHTML}}</div>
		<div class="meta">{{.Timestamp.Format "15:04:05"}}{{if .IntentType}} &middot; {{.IntentType}}{{end}}</div>
	</div>
	{{end}}
</body>
</html>`

var (
	consoleTmpl    = template.Must(template.New("console").Parse(consolePageHTML))
	transcriptTmpl = template.Must(template.New("transcript").Parse(transcriptPageHTML))
)

// transcriptTurn is one turn prepared for rendering: the answer markdown is
// already converted to HTML.
type transcriptTurn struct {
	UserInput    string
	ResponseHTML template.HTML
	Timestamp    time.Time
	IntentType   string
}

// registerConsoleRoutes registers the HTML console on the mux.
func (g *Gateway) registerConsoleRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/console", g.handleConsole)
	mux.HandleFunc("/console/transcript", g.handleTranscript)
}

// handleConsole renders the conversation listing.
func (g *Gateway) handleConsole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	data := struct {
		Conversations []conversation.Summary
	}{Conversations: g.engine.ListConversations()}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := consoleTmpl.Execute(w, data); err != nil {
		g.logger.Error("rendering console failed", "error", err)
	}
}

// handleTranscript renders one conversation's turns with markdown answers
// converted to HTML.
func (g *Gateway) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("conversation_id")
	if id == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	turns, err := g.engine.GetHistory(id, 0)
	if err != nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}

	rendered := make([]transcriptTurn, 0, len(turns))
	for _, turn := range turns {
		rendered = append(rendered, transcriptTurn{
			UserInput:    turn.UserInput,
			ResponseHTML: g.renderMarkdown(turn.Response),
			Timestamp:    turn.Timestamp,
			IntentType:   intentLabel(turn.Intent),
		})
	}

	data := struct {
		ConversationID string
		Turns          []transcriptTurn
	}{ConversationID: id, Turns: rendered}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := transcriptTmpl.Execute(w, data); err != nil {
		g.logger.Error("rendering transcript failed", "error", err)
	}
}

// renderMarkdown converts answer markdown to HTML, falling back to the escaped
// source text when conversion fails.
func (g *Gateway) renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		g.logger.Warn("markdown conversion failed", "error", err)
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// intentLabel returns the turn's intent type for display, or "".
func intentLabel(in *conversation.Intent) string {
	if in == nil {
		return ""
	}
	return string(in.Type)
}
