// ABOUTME: Gateway composition root: builds the knowledge store, engine,
// ABOUTME: archive, and event wiring, and manages the HTTP server lifecycle.

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bthornemail/automata-converse/internal/archive"
	"github.com/bthornemail/automata-converse/internal/config"
	"github.com/bthornemail/automata-converse/internal/conversation"
	"github.com/bthornemail/automata-converse/internal/dialogue"
	"github.com/bthornemail/automata-converse/internal/engine"
	"github.com/bthornemail/automata-converse/internal/events"
	"github.com/bthornemail/automata-converse/internal/intent"
	"github.com/bthornemail/automata-converse/internal/knowledge"
	"github.com/bthornemail/automata-converse/internal/router"
)

// checkpointTimeout bounds one archive write triggered by a turn event.
const checkpointTimeout = 5 * time.Second

// Gateway composes the conversation engine and serves it over HTTP.
type Gateway struct {
	config     *config.Config
	engine     *engine.Engine
	knowledge  *knowledge.CachingStore
	archive    *archive.Archive
	hub        *events.Hub
	httpServer *http.Server
	logger     *slog.Logger
}

// loadKnowledge builds the memory store from the configured seed directory,
// or the embedded default pack when none is set.
func loadKnowledge(cfg *config.Config, logger *slog.Logger) (*knowledge.MemoryStore, error) {
	var recs []*knowledge.Record
	var err error
	if cfg.Knowledge.SeedDir != "" {
		recs, err = knowledge.LoadSeedDir(cfg.Knowledge.SeedDir)
	} else {
		recs, err = knowledge.DefaultSeeds()
	}
	if err != nil {
		return nil, fmt.Errorf("loading seeds: %w", err)
	}

	store := knowledge.NewMemoryStore(logger)
	if err := store.AddAll(recs); err != nil {
		return nil, fmt.Errorf("seeding knowledge store: %w", err)
	}
	logger.Info("knowledge store seeded", "records", store.Len(), "seed_dir", cfg.Knowledge.SeedDir)
	return store, nil
}

// New creates a Gateway: one store, one parser, one manager, one router, one
// engine, one hub, wired top to bottom with no package-level state.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	memStore, err := loadKnowledge(cfg, logger)
	if err != nil {
		return nil, err
	}
	cachedStore := knowledge.NewCachingStore(memStore, cfg.Knowledge.CacheTTL, cfg.Knowledge.CacheMaxSize, logger)

	arch, err := archive.Open(cfg.Archive.Path, logger)
	if err != nil {
		cachedStore.Close()
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	hub := events.NewHub(logger)
	conversations := conversation.NewStore(logger)
	parser := intent.NewParser(conversations, knowledge.NewClassifier(cachedStore, logger), logger)
	rt := router.NewRouter(conversations, cachedStore, logger)
	coordinator := router.NewCoordinator(
		knowledge.NewResponder(cachedStore, logger),
		cfg.Router.QueryTimeout,
		cfg.Router.AggregationPenalty,
		logger,
	)
	manager := dialogue.NewManager(conversations, parser, rt, coordinator, logger)
	eng := engine.New(conversations, manager, hub, logger)

	gw := &Gateway{
		config:    cfg,
		engine:    eng,
		knowledge: cachedStore,
		archive:   arch,
		hub:       hub,
		logger:    logger.With("component", "gateway"),
	}
	gw.subscribeEvents()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)
	gw.registerAPIRoutes(mux)
	gw.registerConsoleRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Engine exposes the composed engine, mainly for tests.
func (g *Gateway) Engine() *engine.Engine {
	return g.engine
}

// subscribeEvents wires the gateway-side subscribers: structured event
// logging and archive checkpointing after every committed turn.
func (g *Gateway) subscribeEvents() {
	logEvent := func(evt events.Event) {
		g.logger.Info("engine event",
			"event", evt.Name,
			"conversation_id", evt.ConversationID)
	}
	g.hub.Subscribe(events.ConversationCreated, logEvent)
	g.hub.Subscribe(events.ConversationCleared, logEvent)
	g.hub.Subscribe(events.TopicSwitched, func(evt events.Event) {
		g.logger.Info("engine event",
			"event", evt.Name,
			"conversation_id", evt.ConversationID,
			"topic", evt.Topic)
	})

	g.hub.Subscribe(events.TurnAnswered, g.checkpoint)
	g.hub.Subscribe(events.TurnClarification, g.checkpoint)
}

// checkpoint archives the owning conversation after a committed turn. The
// handler runs on the turn's goroutine, so the write is bounded by its own
// timeout and failures only log.
func (g *Gateway) checkpoint(evt events.Event) {
	snap, err := g.engine.ExportContext(evt.ConversationID)
	if err != nil {
		g.logger.Warn("checkpoint export failed", "conversation_id", evt.ConversationID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkpointTimeout)
	defer cancel()

	if err := g.archive.Save(ctx, snap); err != nil {
		g.logger.Warn("checkpoint save failed", "conversation_id", evt.ConversationID, "error", err)
	}
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown shuts down with a fresh context since the run context is
// already canceled by the time we get here.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and releases the archive and cache.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := g.archive.Close(); err != nil {
		errs = append(errs, fmt.Errorf("archive close: %w", err))
	}
	g.knowledge.Close()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when the knowledge store holds records and the
// archive is reachable.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	recs, err := g.knowledge.Find(r.Context(), knowledge.Query{})
	if err != nil || len(recs) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("knowledge store empty"))
		return
	}
	if err := g.archive.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("archive unreachable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d records)", len(recs))
}
