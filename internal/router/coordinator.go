// ABOUTME: Concurrent fan-out of route queries and merging of their answers
// ABOUTME: Joins per-route results under a timeout into one coordinated response

package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bthornemail/automata-converse/internal/conversation"
	"github.com/bthornemail/automata-converse/internal/intent"
	"github.com/bthornemail/automata-converse/internal/knowledge"
)

const (
	// DefaultQueryTimeout bounds one route's query.
	DefaultQueryTimeout = 10 * time.Second

	// DefaultAggregationPenalty scales merged confidence when more than one
	// source contributed.
	DefaultAggregationPenalty = 0.9
)

// FallbackAnswer is returned when every route fails or times out. Total
// failure is reflected in zero confidence, never in an error.
const FallbackAnswer = "I'm sorry, I couldn't find an answer to that right now. " +
	"Try rephrasing the question, or ask about a specific agent, function, or rule."

// AgentQuerier answers one route's query. The knowledge responder is the
// reference implementation.
type AgentQuerier interface {
	Answer(ctx context.Context, agentID string, ask knowledge.Ask) (*knowledge.Answer, error)
}

// Response is one route's successful result. Confidence is the route
// confidence capped by the answer's own confidence, so a weak answer from a
// strong route never inflates the merged score.
type Response struct {
	Route      Route                `json:"route"`
	Text       string               `json:"text"`
	Citations  []knowledge.Citation `json:"citations,omitempty"`
	Confidence float64              `json:"confidence"`
}

// CoordinatedResponse is the merged outcome of one fan-out.
type CoordinatedResponse struct {
	Primary      *Response            `json:"primary"`
	MergedAnswer string               `json:"merged_answer"`
	Citations    []knowledge.Citation `json:"citations,omitempty"`
	AgentsUsed   []string             `json:"agents_used"`
	Confidence   float64              `json:"confidence"`
}

// Coordinator queries every route concurrently and merges whatever returns
// before the per-route timeout.
type Coordinator struct {
	querier AgentQuerier
	timeout time.Duration
	penalty float64
	logger  *slog.Logger
}

// NewCoordinator creates a coordinator. A non-positive timeout falls back to
// DefaultQueryTimeout; a penalty outside (0, 1] falls back to
// DefaultAggregationPenalty.
func NewCoordinator(querier AgentQuerier, timeout time.Duration, penalty float64, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	if penalty <= 0 || penalty > 1 {
		penalty = DefaultAggregationPenalty
	}
	return &Coordinator{
		querier: querier,
		timeout: timeout,
		penalty: penalty,
		logger:  logger.With("component", "coordinator"),
	}
}

// Coordinate fans the intent's query out to every route, joins the results,
// and merges them: the highest-confidence response becomes primary, texts
// from multiple sources are concatenated with attribution headers, and the
// overall confidence is the best contribution scaled by the aggregation
// penalty when more than one source had to be merged. A route that fails or
// times out contributes nothing; total failure yields the apologetic
// fallback with confidence 0 and no agents used.
func (c *Coordinator) Coordinate(ctx context.Context, conversationID string, routes []Route, parsed *intent.ParsedIntent) *CoordinatedResponse {
	ask := buildAsk(parsed)
	results := make([]*Response, len(routes))

	g, gctx := errgroup.WithContext(ctx)
	for i, route := range routes {
		i, route := i, route
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, c.timeout)
			defer cancel()

			answer, err := c.querier.Answer(qctx, route.AgentID, ask)
			if err != nil {
				c.logger.Debug("route query failed",
					"conversation_id", conversationID,
					"agent_id", route.AgentID,
					"error", err)
				return nil
			}
			results[i] = &Response{
				Route:      route,
				Text:       answer.Text,
				Citations:  answer.Citations,
				Confidence: contribution(route, answer),
			}
			return nil
		})
	}
	// Route errors are absorbed above, so Wait only joins the fan-out.
	_ = g.Wait()

	succeeded := make([]*Response, 0, len(results))
	for _, resp := range results {
		if resp != nil {
			succeeded = append(succeeded, resp)
		}
	}

	if len(succeeded) == 0 {
		c.logger.Warn("all routes failed",
			"conversation_id", conversationID,
			"routes", len(routes))
		return &CoordinatedResponse{
			Primary:      &Response{Text: FallbackAnswer},
			MergedAnswer: FallbackAnswer,
			AgentsUsed:   []string{},
			Confidence:   0,
		}
	}

	return c.merge(conversationID, succeeded)
}

// merge folds the successful responses into one coordinated answer.
func (c *Coordinator) merge(conversationID string, succeeded []*Response) *CoordinatedResponse {
	primary := succeeded[0]
	for _, resp := range succeeded[1:] {
		if resp.Confidence > primary.Confidence {
			primary = resp
		}
	}

	agentsUsed := make([]string, 0, len(succeeded))
	var citations []knowledge.Citation
	for _, resp := range succeeded {
		agentsUsed = append(agentsUsed, resp.Route.AgentID)
		citations = append(citations, resp.Citations...)
	}

	mergedAnswer := primary.Text
	confidence := primary.Confidence
	if len(succeeded) > 1 {
		sections := make([]string, 0, len(succeeded))
		for _, resp := range succeeded {
			sections = append(sections, fmt.Sprintf("From %s:\n\n%s", resp.Route.AgentID, resp.Text))
		}
		mergedAnswer = strings.Join(sections, "\n\n")
		confidence *= c.penalty
	}

	c.logger.Debug("merged responses",
		"conversation_id", conversationID,
		"sources", len(succeeded),
		"primary_agent", primary.Route.AgentID,
		"confidence", confidence)

	return &CoordinatedResponse{
		Primary:      primary,
		MergedAnswer: mergedAnswer,
		Citations:    dedupeCitations(citations),
		AgentsUsed:   agentsUsed,
		Confidence:   confidence,
	}
}

// contribution caps the route confidence by the answer's own confidence.
func contribution(route Route, answer *knowledge.Answer) float64 {
	if answer.Confidence > 0 && answer.Confidence < route.Confidence {
		return answer.Confidence
	}
	return route.Confidence
}

// buildAsk lowers a parsed intent into the single query shared by every
// route this turn; only the target agent differs per route. Query types are
// collected across the expansion list so one fan-out answers the primary
// question and its sub-intents together.
func buildAsk(parsed *intent.ParsedIntent) knowledge.Ask {
	ask := knowledge.Ask{
		Question:  parsed.ResolvedQuestion,
		Kind:      knowledge.IntentKind(parsed.Type),
		Entity:    parsed.Entity,
		Dimension: parsed.Filter(conversation.FilterDimension),
		Topic:     parsed.Filter(conversation.FilterTopic),
	}
	if ask.Question == "" {
		ask.Question = parsed.Question
	}

	seen := make(map[string]bool)
	for _, in := range parsed.Intents() {
		if qt := in.Filter(conversation.FilterQueryType); qt != "" && !seen[qt] {
			seen[qt] = true
			ask.QueryTypes = append(ask.QueryTypes, qt)
		}
	}
	return ask
}

// dedupeCitations drops repeated source/title pairs, preserving order.
func dedupeCitations(cits []knowledge.Citation) []knowledge.Citation {
	if len(cits) < 2 {
		return cits
	}
	seen := make(map[string]bool, len(cits))
	out := cits[:0]
	for _, cit := range cits {
		key := cit.Source + "|" + cit.Title
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, cit)
	}
	return out
}
