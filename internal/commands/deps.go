package commands

import (
	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/actions"
	"github.com/megobari/megobari/internal/config"
	"github.com/megobari/megobari/internal/monitor"
	"github.com/megobari/megobari/internal/scheduler"
	"github.com/megobari/megobari/internal/sessionstore"
	"github.com/megobari/megobari/internal/store"
	"github.com/megobari/megobari/internal/transport"
	"github.com/megobari/megobari/internal/turnengine"
)

// Deps bundles every subsystem a command handler might need. Built once in
// main and threaded through every command file as the receiver's state.
type Deps struct {
	Store     *store.Store
	Sessions  *sessionstore.Registry
	Engine    *turnengine.Engine
	Scheduler *scheduler.Scheduler
	Monitor   *monitor.Engine
	Executor  *actions.Executor
	Config    *config.Config
	Sender    transport.Sender

	Log zerolog.Logger
}
