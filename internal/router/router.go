// ABOUTME: Maps parsed intents to candidate response routes with confidence
// ABOUTME: Matches agent names, dimension tags, and capabilities against the knowledge store

package router

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/bthornemail/automata-converse/internal/conversation"
	"github.com/bthornemail/automata-converse/internal/intent"
	"github.com/bthornemail/automata-converse/internal/knowledge"
)

// Route confidence levels. An explicit name match outranks a dimension or
// capability match, which outrank the default catch-all.
const (
	ExactMatchConfidence      = 0.9
	PrefixMatchConfidence     = 0.7
	DimensionMatchConfidence  = 0.6
	CapabilityMatchConfidence = 0.5
	DefaultRouteConfidence    = 0.3

	// AffinityBoost is added (capped at 1) to a route whose agent already
	// answered for the same entity or topic in this conversation.
	AffinityBoost = 0.1
)

// Route is one candidate responder for an intent.
type Route struct {
	AgentID    string  `json:"agent_id"`
	Dimension  string  `json:"dimension,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Router builds the route set for a parsed intent by matching it against
// agent records in the knowledge store. Routing never fails: lookup errors
// are absorbed and at worst the default route remains.
type Router struct {
	conversations *conversation.Store
	store         knowledge.Store
	logger        *slog.Logger
}

// NewRouter creates a router over the given conversation and knowledge stores.
func NewRouter(conversations *conversation.Store, store knowledge.Store, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		conversations: conversations,
		store:         store,
		logger:        logger.With("component", "router"),
	}
}

// Routes evaluates the matching rules in order and unions the results:
// explicit entity match against known agent names, one route per agent
// sharing the intent's dimension filter, and every general-eval capable
// agent for function intents. When no rule produces a route the default
// catch-all route is returned, so the result is never empty. Routes are
// deduplicated by agent id keeping the highest confidence, boosted for
// routing affinity, and sorted by descending confidence.
func (r *Router) Routes(ctx context.Context, conversationID string, parsed *intent.ParsedIntent) []Route {
	var routes []Route

	if parsed.Entity != "" {
		routes = append(routes, r.entityRoutes(ctx, parsed.Entity)...)
	}
	if dim := parsed.Filter(conversation.FilterDimension); dim != "" {
		routes = append(routes, r.dimensionRoutes(ctx, dim)...)
	}
	if parsed.Type == conversation.IntentFunction {
		routes = append(routes, r.capabilityRoutes(ctx)...)
	}
	if len(routes) == 0 {
		routes = append(routes, Route{AgentID: knowledge.GeneralAgentID, Confidence: DefaultRouteConfidence})
	}

	routes = dedupeRoutes(routes)
	r.applyAffinity(conversationID, parsed, routes)

	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Confidence != routes[j].Confidence {
			return routes[i].Confidence > routes[j].Confidence
		}
		return routes[i].AgentID < routes[j].AgentID
	})

	r.logger.Debug("routed intent",
		"conversation_id", conversationID,
		"intent_type", parsed.Type,
		"entity", parsed.Entity,
		"routes", len(routes))
	return routes
}

// entityRoutes matches the intent's target entity against agent names:
// a case-insensitive exact match first, then a prefix match either way
// ("4D-Network" finds "4D-Network-Agent").
func (r *Router) entityRoutes(ctx context.Context, entity string) []Route {
	rec, err := r.store.Lookup(ctx, knowledge.KindAgent, entity)
	if err == nil {
		return []Route{{AgentID: rec.ID, Dimension: rec.Dimension, Confidence: ExactMatchConfidence}}
	}
	if !errors.Is(err, knowledge.ErrRecordNotFound) {
		r.logger.Warn("agent lookup failed", "entity", entity, "error", err)
		return nil
	}

	lower := strings.ToLower(entity)
	if len(lower) < 3 {
		return nil
	}
	recs, err := r.store.Find(ctx, knowledge.Query{Kinds: []knowledge.Kind{knowledge.KindAgent}})
	if err != nil {
		r.logger.Warn("agent scan failed", "entity", entity, "error", err)
		return nil
	}

	var routes []Route
	for _, rec := range recs {
		name := strings.ToLower(rec.Name)
		if strings.HasPrefix(name, lower) || strings.HasPrefix(lower, name) {
			routes = append(routes, Route{AgentID: rec.ID, Dimension: rec.Dimension, Confidence: PrefixMatchConfidence})
		}
	}
	return routes
}

// dimensionRoutes returns one route per agent tagged with the dimension.
func (r *Router) dimensionRoutes(ctx context.Context, dimension string) []Route {
	recs, err := r.store.Find(ctx, knowledge.Query{
		Kinds:     []knowledge.Kind{knowledge.KindAgent},
		Dimension: dimension,
	})
	if err != nil {
		r.logger.Warn("dimension scan failed", "dimension", dimension, "error", err)
		return nil
	}

	routes := make([]Route, 0, len(recs))
	for _, rec := range recs {
		routes = append(routes, Route{AgentID: rec.ID, Dimension: rec.Dimension, Confidence: DimensionMatchConfidence})
	}
	return routes
}

// capabilityRoutes returns one route per agent advertising general-purpose
// evaluation, the pool function intents fan out to.
func (r *Router) capabilityRoutes(ctx context.Context) []Route {
	recs, err := r.store.Find(ctx, knowledge.Query{
		Kinds:      []knowledge.Kind{knowledge.KindAgent},
		Capability: knowledge.CapabilityGeneralEval,
	})
	if err != nil {
		r.logger.Warn("capability scan failed", "capability", knowledge.CapabilityGeneralEval, "error", err)
		return nil
	}

	routes := make([]Route, 0, len(recs))
	for _, rec := range recs {
		routes = append(routes, Route{AgentID: rec.ID, Dimension: rec.Dimension, Confidence: CapabilityMatchConfidence})
	}
	return routes
}

// applyAffinity boosts the route whose agent was last assigned to the
// intent's entity or topic in this conversation.
func (r *Router) applyAffinity(conversationID string, parsed *intent.ParsedIntent, routes []Route) {
	key := AffinityKey(&parsed.Intent)
	if key == "" || r.conversations == nil {
		return
	}
	agentID, ok := r.conversations.AssignedAgent(conversationID, key)
	if !ok {
		return
	}
	for i := range routes {
		if routes[i].AgentID == agentID {
			routes[i].Confidence = math.Min(1, routes[i].Confidence+AffinityBoost)
			r.logger.Debug("applied routing affinity",
				"conversation_id", conversationID,
				"key", key,
				"agent_id", agentID)
			return
		}
	}
}

// AffinityKey is the agent-assignment key for an intent: the target entity
// when present, otherwise the topic filter, lowercased. Empty when the
// intent carries neither.
func AffinityKey(in *conversation.Intent) string {
	if in == nil {
		return ""
	}
	if in.Entity != "" {
		return strings.ToLower(in.Entity)
	}
	if topic := in.Filter(conversation.FilterTopic); topic != "" {
		return strings.ToLower(topic)
	}
	return ""
}

// dedupeRoutes keeps one route per agent id, preserving first-seen order
// and the highest confidence observed for that agent.
func dedupeRoutes(routes []Route) []Route {
	index := make(map[string]int, len(routes))
	out := routes[:0]
	for _, route := range routes {
		if i, ok := index[route.AgentID]; ok {
			if route.Confidence > out[i].Confidence {
				out[i].Confidence = route.Confidence
			}
			continue
		}
		index[route.AgentID] = len(out)
		out = append(out, route)
	}
	return out
}
