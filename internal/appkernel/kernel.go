// Package appkernel orchestrates the bridge's long-running subsystems as a
// single startable/stoppable unit. Grounded on modules/core/kernel.go and
// modules/runtime/kernel.go's FeatureModule/Kernel shape: the teacher uses
// it to register compile-time-selected bridge features, this bridge has a
// fixed subsystem set (transport, scheduler, monitor sweeps, dashboard), so
// the same registration pattern is adapted into a runtime Start/Stop
// lifecycle instead of a Register-only one.
package appkernel

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Module is one independently startable/stoppable subsystem: the Telegram
// transport's poll loop, the Scheduler's cron/heartbeat ticker, or the
// Dashboard's HTTP server.
type Module interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Kernel holds the set of modules that make up one running process and
// starts/stops them together.
type Kernel struct {
	modules []Module
	started []Module
	log     zerolog.Logger
}

// New returns an empty Kernel.
func New(log zerolog.Logger) *Kernel {
	return &Kernel{log: log.With().Str("component", "appkernel").Logger()}
}

// Add registers a module. Modules start in registration order and stop in
// reverse order.
func (k *Kernel) Add(m Module) {
	if m == nil {
		return
	}
	k.modules = append(k.modules, m)
}

// Start starts every registered module in order. If one fails, every
// module already started is stopped before the error is returned.
func (k *Kernel) Start(ctx context.Context) error {
	for _, m := range k.modules {
		k.log.Info().Str("module", m.Name()).Msg("starting")
		if err := m.Start(ctx); err != nil {
			k.stopStarted(context.Background())
			return fmt.Errorf("start %s: %w", m.Name(), err)
		}
		k.started = append(k.started, m)
	}
	return nil
}

// Stop stops every started module in reverse order, collecting (but not
// short-circuiting on) individual errors.
func (k *Kernel) Stop(ctx context.Context) error {
	return k.stopStarted(ctx)
}

func (k *Kernel) stopStarted(ctx context.Context) error {
	var firstErr error
	for i := len(k.started) - 1; i >= 0; i-- {
		m := k.started[i]
		k.log.Info().Str("module", m.Name()).Msg("stopping")
		if err := m.Stop(ctx); err != nil {
			k.log.Error().Err(err).Str("module", m.Name()).Msg("stop failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	k.started = nil
	return firstErr
}
