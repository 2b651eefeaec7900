// Package scheduler runs the single cooperative background loop that
// fires due cron jobs, quantized monitor sweeps, and heartbeat checks.
// Grounded 1:1 on scheduler.py's Scheduler class.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/store"
	"github.com/megobari/megobari/internal/transport"
	"github.com/megobari/megobari/internal/turnengine"
)

const (
	tickInterval            = 60 * time.Second
	defaultHeartbeatMinutes = 30
	heartbeatOKMarker       = "HEARTBEAT_OK"
	maxNotifyChars          = 4000
)

// monitorHours are the UTC hours at which a monitor sweep runs, matching
// the original's 4x-daily cadence.
var monitorHours = map[int]string{8: "Morning", 12: "Noon", 16: "Afternoon", 20: "Evening"}

// Store is the subset of *store.Store the Scheduler reads/writes.
type Store interface {
	ListCronJobs(ctx context.Context, enabledOnly bool) ([]*store.CronJob, error)
	UpdateCronLastRun(ctx context.Context, name string) error
	ListHeartbeatChecks(ctx context.Context, enabledOnly bool) ([]*store.HeartbeatCheck, error)
}

// Runner executes a one-off prompt against the agent, outside of any chat
// turn (implemented by *turnengine.Engine's RunAdHoc).
type Runner interface {
	RunAdHoc(ctx context.Context, sessionName, cwd, prompt string, opts ...turnengine.AdHocOption) (string, error)
}

// MonitorCheckFunc runs one monitor sweep and returns the message to post
// to the default chat (empty if nothing changed). Wired in once the
// Monitor Engine exists; a nil func simply skips monitor sweeps.
type MonitorCheckFunc func(ctx context.Context, hourLabel string) (string, error)

// Scheduler owns the 60-second tick loop.
type Scheduler struct {
	store             Store
	runner            Runner
	sender            transport.Sender
	cwd               string
	heartbeatInterval time.Duration
	parser            cron.Parser
	monitorCheck      MonitorCheckFunc

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}

	log zerolog.Logger
}

// New builds a Scheduler. heartbeatIntervalMin == 0 selects the 30-minute
// default; a negative value disables heartbeat checks entirely.
func New(st Store, runner Runner, sender transport.Sender, cwd string, heartbeatIntervalMin int, log zerolog.Logger) *Scheduler {
	if heartbeatIntervalMin == 0 {
		heartbeatIntervalMin = defaultHeartbeatMinutes
	}
	return &Scheduler{
		store:             st,
		runner:            runner,
		sender:            sender,
		cwd:               cwd,
		heartbeatInterval: time.Duration(heartbeatIntervalMin) * time.Minute,
		parser:            cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		log:               log.With().Str("component", "scheduler").Logger(),
	}
}

// SetMonitorCheck wires in the Monitor Engine's sweep function. Safe to
// call before Start.
func (s *Scheduler) SetMonitorCheck(fn MonitorCheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitorCheck = fn
}

// SetHeartbeatInterval changes the heartbeat cadence for the running
// Scheduler. minutes <= 0 disables heartbeat checks. Safe to call whether
// or not the loop is running; takes effect on the next tick.
func (s *Scheduler) SetHeartbeatInterval(minutes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if minutes <= 0 {
		s.heartbeatInterval = 0
		return
	}
	s.heartbeatInterval = time.Duration(minutes) * time.Minute
}

// HeartbeatIntervalMinutes reports the current heartbeat cadence, or 0 if
// heartbeat checks are disabled.
func (s *Scheduler) HeartbeatIntervalMinutes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.heartbeatInterval / time.Minute)
}

// TriggerHeartbeatNow runs one heartbeat pass in the background,
// independent of the tick cadence, for /heartbeat now.
func (s *Scheduler) TriggerHeartbeatNow() {
	go s.runHeartbeat(context.Background())
}

// Running reports whether the loop is currently active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// Start launches the loop as a background goroutine. Calling Start while
// already running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		s.log.Warn().Msg("scheduler already running")
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go s.loop(stop, done)
	s.log.Info().Dur("heartbeat_interval", s.heartbeatInterval).Msg("scheduler started")
}

// Stop halts the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) loop(stop, done chan struct{}) {
	defer close(done)

	lastHeartbeat := time.Now().UTC()
	lastMonitorHour := -1

	for {
		s.tick(&lastHeartbeat, &lastMonitorHour)

		select {
		case <-stop:
			return
		case <-time.After(tickInterval):
		}
	}
}

// tick runs one pass of due-cron, monitor-hour, and heartbeat checks. A
// panic anywhere in a single tick is recovered so the loop survives it
// (spec §7 "Scheduler task crash must not kill the loop").
func (s *Scheduler) tick(lastHeartbeat *time.Time, lastMonitorHour *int) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("scheduler tick panicked")
		}
	}()

	ctx := context.Background()
	now := time.Now().UTC()

	s.runDueCrons(ctx, now)

	hour := now.Hour()
	if label, due := monitorHours[hour]; due && hour != *lastMonitorHour {
		*lastMonitorHour = hour
		go s.runMonitorCheck(label)
	}

	s.mu.Lock()
	interval := s.heartbeatInterval
	s.mu.Unlock()
	if interval > 0 && now.Sub(*lastHeartbeat) >= interval {
		s.runHeartbeat(ctx)
		*lastHeartbeat = time.Now().UTC()
	}
}

func (s *Scheduler) runDueCrons(ctx context.Context, now time.Time) {
	jobs, err := s.store.ListCronJobs(ctx, true)
	if err != nil {
		s.log.Debug().Err(err).Msg("failed to load cron jobs")
		return
	}

	for _, job := range jobs {
		sched, err := s.parser.Parse(job.CronExpression)
		if err != nil {
			s.log.Warn().Err(err).Str("job", job.Name).Str("expr", job.CronExpression).Msg("bad cron expression")
			continue
		}
		base := job.CreatedAt
		if job.LastRunAt != nil {
			base = *job.LastRunAt
		}
		if sched.Next(base).After(now) {
			continue
		}

		s.log.Info().Str("job", job.Name).Msg("running cron job")
		go s.executeCron(job)
		if err := s.store.UpdateCronLastRun(ctx, job.Name); err != nil {
			s.log.Debug().Err(err).Msg("failed to update cron last_run")
		}
	}
}

func (s *Scheduler) executeCron(job *store.CronJob) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("job", job.Name).Msg("cron job panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	sessionName := job.SessionName
	if job.Isolated {
		sessionName = "cron:" + job.Name
	}

	resp, err := s.runner.RunAdHoc(ctx, sessionName, s.cwd, job.Prompt)
	if err != nil {
		s.log.Error().Err(err).Str("job", job.Name).Msg("cron job failed")
		s.notify(ctx, fmt.Sprintf("❌ Cron job *%s* failed. Check logs.", job.Name))
		return
	}
	if strings.TrimSpace(resp) == "" {
		return
	}
	s.notify(ctx, fmt.Sprintf("🕐 *Cron: %s*\n\n%s", job.Name, resp))
}

func (s *Scheduler) runMonitorCheck(hourLabel string) {
	s.mu.Lock()
	fn := s.monitorCheck
	s.mu.Unlock()
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("monitor check panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	msg, err := fn(ctx, hourLabel)
	if err != nil {
		s.log.Error().Err(err).Msg("monitor check failed")
		return
	}
	if msg == "" {
		return
	}
	s.notify(ctx, msg)
}

func (s *Scheduler) runHeartbeat(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("heartbeat panicked")
		}
	}()

	checks, err := s.store.ListHeartbeatChecks(ctx, true)
	if err != nil {
		s.log.Debug().Err(err).Msg("failed to load heartbeat checks")
		return
	}
	if len(checks) == 0 {
		s.log.Debug().Msg("no heartbeat checks configured, skipping")
		return
	}

	var checklist strings.Builder
	for i, c := range checks {
		if i > 0 {
			checklist.WriteString("\n")
		}
		checklist.WriteString(fmt.Sprintf("- [%s] %s", c.Name, c.Prompt))
	}

	prompt := "This is an automated heartbeat check. " +
		"Process each check below and respond:\n" +
		"- If nothing needs attention, respond with exactly: HEARTBEAT_OK\n" +
		"- If something needs the user's attention, describe it briefly.\n\n" +
		checklist.String()

	runCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	resp, err := s.runner.RunAdHoc(runCtx, "_heartbeat", s.cwd, prompt)
	if err != nil {
		s.log.Error().Err(err).Msg("heartbeat failed")
		return
	}
	if resp == "" || strings.Contains(resp, heartbeatOKMarker) {
		s.log.Debug().Msg("heartbeat OK, nothing to report")
		return
	}
	s.notify(runCtx, fmt.Sprintf("💓 *Heartbeat*\n\n%s", resp))
}

func (s *Scheduler) notify(ctx context.Context, msg string) {
	if len(msg) > maxNotifyChars {
		msg = msg[:maxNotifyChars-3] + "..."
	}
	if err := s.sender.SendToChat(ctx, s.sender.DefaultChatID(), msg, true); err != nil {
		s.log.Error().Err(err).Msg("failed to send scheduler notification")
	}
}
