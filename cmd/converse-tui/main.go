// ABOUTME: TUI client for asking questions through converse-gateway over HTTP.
// ABOUTME: Provides a readline-style loop with conversation management commands.

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
)

// askRequest is the JSON body sent to POST /api/ask.
type askRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// askReply is the JSON response from POST /api/ask.
type askReply struct {
	Answer              string     `json:"answer"`
	Citations           []citation `json:"citations"`
	FollowUpSuggestions []string   `json:"follow_up_suggestions"`
	RelatedEntities     []string   `json:"related_entities"`
	Confidence          float64    `json:"confidence"`
	ConversationID      string     `json:"conversation_id"`
	Clarification       bool       `json:"clarification"`
}

// citation identifies an answer source.
type citation struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	Type   string `json:"type"`
}

// turn is one history entry from GET /api/conversations/{id}/history.
type turn struct {
	UserInput string `json:"user_input"`
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
}

func main() {
	server := flag.String("server", "http://localhost:8420", "Gateway server URL")
	user := flag.String("user", "tui-user", "User id for new conversations")
	flag.Parse()

	fmt.Printf("converse-tui connected to %s\n", *server)
	fmt.Println("Ask a question and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *server, *user); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, server, user string) error {
	scanner := bufio.NewScanner(os.Stdin)
	var conversationID string

	for {
		// Prompt shows the short conversation id once one exists
		if conversationID != "" {
			fmt.Printf("[%s]> ", shortID(conversationID))
		} else {
			fmt.Print("> ")
		}

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if input == "/help" {
			printHelp()
			fmt.Println()
			continue
		}

		if input == "/new" {
			id, err := createConversation(ctx, server, user)
			if err != nil {
				fmt.Printf("[error] %v\n", err)
			} else {
				conversationID = id
				fmt.Printf("Started conversation %s\n", shortID(id))
			}
			fmt.Println()
			continue
		}

		if strings.HasPrefix(input, "/switch") {
			args := strings.TrimSpace(strings.TrimPrefix(input, "/switch"))
			if args == "" {
				fmt.Println("Usage: /switch <conversation_id>")
			} else if err := switchConversation(ctx, server, args); err != nil {
				fmt.Printf("[error] %v\n", err)
			} else {
				conversationID = args
				fmt.Printf("Switched to %s\n", shortID(args))
			}
			fmt.Println()
			continue
		}

		if input == "/history" {
			if conversationID == "" {
				fmt.Println("No conversation yet. Ask a question or /new first.")
			} else if err := fetchHistory(ctx, server, conversationID); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue
		}

		if strings.HasPrefix(input, "/export") {
			args := strings.TrimSpace(strings.TrimPrefix(input, "/export"))
			switch {
			case conversationID == "":
				fmt.Println("No conversation yet. Ask a question first.")
			case args == "":
				fmt.Println("Usage: /export <path>")
			default:
				if err := exportConversation(ctx, server, conversationID, args); err != nil {
					fmt.Printf("[error] %v\n", err)
				} else {
					fmt.Printf("Exported to %s\n", args)
				}
			}
			fmt.Println()
			continue
		}

		if input == "/clear" {
			if conversationID == "" {
				fmt.Println("No conversation yet.")
			} else if err := clearHistory(ctx, server, conversationID); err != nil {
				fmt.Printf("[error] %v\n", err)
			} else {
				fmt.Println("History cleared.")
			}
			fmt.Println()
			continue
		}

		// Everything else is a question
		reply, err := ask(ctx, server, input, conversationID)
		if err != nil {
			fmt.Printf("[error] %v\n", err)
			fmt.Println()
			continue
		}
		conversationID = reply.ConversationID
		printReply(reply)
		fmt.Println()
	}
}

// printHelp displays available commands.
func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /new             Start a fresh conversation")
	fmt.Println("  /switch <id>     Switch to another conversation")
	fmt.Println("  /history         Show the current conversation's turns")
	fmt.Println("  /export <path>   Save the conversation snapshot to a file")
	fmt.Println("  /clear           Clear the current conversation's history")
	fmt.Println("  /help            Show this help")
	fmt.Println("  /quit            Exit the TUI")
}

// printReply renders one answer with citations and suggestions.
func printReply(reply *askReply) {
	dim := color.New(color.Faint)
	yellow := color.New(color.FgYellow)

	if reply.Clarification {
		yellow.Println(reply.Answer)
	} else {
		fmt.Println(reply.Answer)
	}

	for _, c := range reply.Citations {
		dim.Printf("  [%s] %s (%s)\n", c.Type, c.Title, c.Source)
	}

	if len(reply.FollowUpSuggestions) > 0 {
		dim.Println("  You could ask:")
		for i, s := range reply.FollowUpSuggestions {
			dim.Printf("    %d. %s\n", i+1, s)
		}
	}

	dim.Printf("  confidence %.2f\n", reply.Confidence)
}

func ask(ctx context.Context, server, question, conversationID string) (*askReply, error) {
	bodyBytes, err := json.Marshal(askRequest{Question: question, ConversationID: conversationID})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/ask", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}

	var reply askReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &reply, nil
}

// createConversation starts a new conversation for the user.
func createConversation(ctx context.Context, server, user string) (string, error) {
	bodyBytes, err := json.Marshal(map[string]string{"user_id": user})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/conversations", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", serverError(resp)
	}

	var created struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	return created.ConversationID, nil
}

// switchConversation makes the server-side active conversation match ours.
func switchConversation(ctx context.Context, server, id string) error {
	url := fmt.Sprintf("%s/api/conversations/%s/switch", server, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}

	var result struct {
		Switched bool `json:"switched"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if !result.Switched {
		return fmt.Errorf("unknown conversation: %s", id)
	}
	return nil
}

// fetchHistory fetches and displays the current conversation's turns.
func fetchHistory(ctx context.Context, server, id string) error {
	url := fmt.Sprintf("%s/api/conversations/%s/history?limit=20", server, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}

	var turns []turn
	if err := json.NewDecoder(resp.Body).Decode(&turns); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	if len(turns) == 0 {
		fmt.Println("No history yet")
		return nil
	}

	blue := color.New(color.FgBlue)
	green := color.New(color.FgGreen)
	fmt.Println(strings.Repeat("-", 60))
	for _, tn := range turns {
		blue.Print("→ ")
		fmt.Println(tn.UserInput)
		green.Print("← ")
		fmt.Println(truncate(tn.Response, 200))
	}
	fmt.Println(strings.Repeat("-", 60))
	return nil
}

// exportConversation saves the conversation snapshot JSON to a local file.
func exportConversation(ctx context.Context, server, id, path string) error {
	url := fmt.Sprintf("%s/api/conversations/%s/export", server, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing snapshot file: %w", err)
	}
	return nil
}

// clearHistory empties the current conversation on the server.
func clearHistory(ctx context.Context, server, id string) error {
	url := fmt.Sprintf("%s/api/conversations/%s/history", server, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return serverError(resp)
	}
	return nil
}

// serverError extracts the error message from a JSON error body when present.
func serverError(resp *http.Response) error {
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			if msg, ok := errResp["error"]; ok {
				return fmt.Errorf("%s", msg)
			}
		}
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}

// shortID abbreviates a uuid for the prompt.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
