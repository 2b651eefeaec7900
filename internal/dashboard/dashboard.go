// Package dashboard is the read-only HTTP+WebSocket API the original
// exposes under api/app.py and api/routes/*.py: session status, usage,
// message/summary history, personas, memories, scheduling, and monitor
// data, plus a live message stream. Every route (except the WebSocket
// upgrade) requires a bearer token checked against the dashboard_tokens
// table.
package dashboard

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/eventbus"
	"github.com/megobari/megobari/internal/monitor"
	"github.com/megobari/megobari/internal/scheduler"
	"github.com/megobari/megobari/internal/sessionstore"
	"github.com/megobari/megobari/internal/store"
	"github.com/megobari/megobari/internal/turnengine"
)

// Store is the subset of *store.Store the dashboard reads from.
type Store interface {
	TotalUsage(ctx context.Context) (*store.UsageTotals, error)
	UsageRecords(ctx context.Context, sessionName string, limit int) ([]*store.UsageRecord, error)
	SessionUsageTotals(ctx context.Context, sessionName string) (*store.UsageTotals, error)

	RecentMessagesAll(ctx context.Context, limit int) ([]*store.Message, error)
	RecentMessages(ctx context.Context, sessionName string, limit int) ([]*store.Message, error)

	Summaries(ctx context.Context, sessionName string, limit int) ([]*store.ConversationSummary, error)

	ListPersonas(ctx context.Context) ([]*store.Persona, error)
	GetPersona(ctx context.Context, name string) (*store.Persona, error)

	ListMemories(ctx context.Context, userID int64, category string, limit int) ([]*store.Memory, error)

	ListCronJobs(ctx context.Context, enabledOnly bool) ([]*store.CronJob, error)
	ListHeartbeatChecks(ctx context.Context, enabledOnly bool) ([]*store.HeartbeatCheck, error)

	ListMonitorTopics(ctx context.Context, enabledOnly bool) ([]*store.MonitorTopic, error)
	ListMonitorEntities(ctx context.Context, topicID int64, enabledOnly bool) ([]*store.MonitorEntity, error)
	ListMonitorResources(ctx context.Context, entityID, topicID int64, enabledOnly bool) ([]*store.MonitorResource, error)
	ListMonitorDigests(ctx context.Context, topicID, entityID, resourceID int64, limit int) ([]*store.MonitorDigest, error)

	VerifyDashboardToken(ctx context.Context, token string) (*store.DashboardToken, error)

	UnsummarizedCount(ctx context.Context, sessionName string) (int, error)
}

// memoriesLimit bounds the /api/memories listing (the original has no
// limit param on that route; a generous cap avoids an unbounded scan).
const memoriesLimit = 1000

// allUsers is the ListMemories userID sentinel meaning "no user filter",
// matching the single-user system's dashboard-wide memory view.
const allUsers = 0

// Server wires the read-model dependencies the handlers need.
type Server struct {
	store     Store
	registry  *sessionstore.Registry
	engine    *turnengine.Engine
	scheduler *scheduler.Scheduler
	monitor   *monitor.Engine
	bus       *eventbus.Bus
	log       zerolog.Logger

	httpServer *http.Server
}

// New builds a Server. Call Router to obtain its http.Handler, or Start to
// run it on addr.
func New(st Store, registry *sessionstore.Registry, engine *turnengine.Engine, sched *scheduler.Scheduler, mon *monitor.Engine, bus *eventbus.Bus, log zerolog.Logger) *Server {
	return &Server{
		store:     st,
		registry:  registry,
		engine:    engine,
		scheduler: sched,
		monitor:   mon,
		bus:       bus,
		log:       log.With().Str("component", "dashboard").Logger(),
	}
}

// Router builds the chi router: every handler except the WebSocket
// upgrade sits behind bearer-token auth.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ws/messages", s.handleWS)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/health", s.handleHealth)

			r.Get("/sessions", s.handleListSessions)
			r.Get("/sessions/{name}", s.handleSessionDetail)

			r.Get("/usage", s.handleTotalUsage)
			r.Get("/usage/records", s.handleUsageRecords)
			r.Get("/usage/{session_name}", s.handleSessionUsage)

			r.Get("/messages/recent", s.handleRecentMessagesAll)
			r.Get("/messages/{session_name}", s.handleSessionMessages)

			r.Get("/summaries", s.handleSummaries)

			r.Get("/personas", s.handleListPersonas)
			r.Get("/personas/{name}", s.handleGetPersona)

			r.Get("/memories", s.handleListMemories)

			r.Get("/cron-jobs", s.handleListCronJobs)
			r.Get("/heartbeat-checks", s.handleListHeartbeatChecks)

			r.Get("/monitor/topics", s.handleMonitorTopics)
			r.Get("/monitor/entities", s.handleMonitorEntities)
			r.Get("/monitor/resources", s.handleMonitorResources)
			r.Get("/monitor/digests", s.handleMonitorDigests)
			r.Get("/monitor/report", s.handleMonitorReport)
		})
	})

	return r
}

// Start runs the dashboard server on addr. It blocks until Shutdown is
// called or the server fails to bind.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.log.Info().Str("addr", addr).Msg("dashboard listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
