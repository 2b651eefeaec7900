package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/store"
	"github.com/megobari/megobari/internal/transport"
)

// MemoryStore is the subset of *store.Store the executor needs for the
// memory_set/memory_delete/memory_list actions.
type MemoryStore interface {
	SetMemory(ctx context.Context, userID int64, category, key, content string, metadata map[string]any) (*store.Memory, error)
	DeleteMemory(ctx context.Context, userID int64, category, key string) (bool, error)
	ListMemories(ctx context.Context, userID int64, category string, limit int) ([]*store.Memory, error)
}

// memoryListLimit caps the memory_list action's reply; the agent can
// scope further with "category" if it wants fewer.
const memoryListLimit = 100

// RestartMarker is the transient file written before a restart action and
// consumed once on the next process start (spec §6 Persistent file layout).
type RestartMarker struct {
	ChatID int64 `json:"chat_id"`
}

// Executor runs parsed actions against a transport context and the Store.
// Grounded on actions.py's execute_actions/_action_send_file for send_file,
// and on claude_bridge.py's _BASE_SYSTEM_PROMPT documentation for the
// send_photo/restart/memory_* actions the distilled actions.py omitted.
type Executor struct {
	memories      MemoryStore
	restartMarker string
	log           zerolog.Logger
}

// NewExecutor builds an Executor. restartMarkerPath is the absolute path
// to restart_notify.json under the home directory.
func NewExecutor(memories MemoryStore, restartMarkerPath string, log zerolog.Logger) *Executor {
	return &Executor{
		memories:      memories,
		restartMarker: restartMarkerPath,
		log:           log.With().Str("component", "actions").Logger(),
	}
}

// Execute runs every action in order. Failure of one action never stops
// the others; every failure is collected as a user-facing error string
// (spec §4.4 "Failure of one action must not prevent others").
func (e *Executor) Execute(ctx context.Context, tc transport.Context, userID int64, acts []Action) []string {
	var errs []string
	for _, a := range acts {
		var err error
		switch a.Type {
		case "send_file":
			err = e.sendFile(ctx, tc, a, false)
		case "send_photo":
			err = e.sendFile(ctx, tc, a, true)
		case "restart":
			err = e.restart(ctx, tc)
		case "memory_set":
			err = e.memorySet(ctx, tc, userID, a)
		case "memory_delete":
			err = e.memoryDelete(ctx, userID, a)
		case "memory_list":
			err = e.memoryList(ctx, tc, userID, a)
		default:
			e.log.Warn().Str("action", a.Type).Msg("unknown action type")
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", a.Type, err))
		}
	}
	return errs
}

func resolvePath(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("missing 'path'")
	}
	if raw == "~" || len(raw) >= 2 && raw[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand ~: %w", err)
		}
		if raw == "~" {
			raw = home
		} else {
			raw = filepath.Join(home, raw[2:])
		}
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func (e *Executor) sendFile(ctx context.Context, tc transport.Context, a Action, photo bool) error {
	rawPath := stringField(a, "path")
	resolved, err := resolvePath(rawPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return fmt.Errorf("file not found: %s", resolved)
	}
	caption := stringField(a, "caption")
	if photo {
		sendPath, cleanup, err := ensurePhotoCompatible(resolved)
		if err != nil {
			return fmt.Errorf("prepare photo: %w", err)
		}
		if cleanup != "" {
			defer os.Remove(cleanup)
		}
		return tc.ReplyPhoto(ctx, sendPath, caption)
	}
	return tc.ReplyDocument(ctx, resolved, filepath.Base(resolved), caption)
}

// Restart writes the restart marker and re-execs the process in place, for
// the /restart command handler.
func (e *Executor) Restart(ctx context.Context, tc transport.Context) error {
	return e.restart(ctx, tc)
}

func (e *Executor) restart(ctx context.Context, tc transport.Context) error {
	marker := RestartMarker{ChatID: tc.ChatID()}
	data, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(e.restartMarker), 0o755); err != nil {
		return fmt.Errorf("write restart marker: %w", err)
	}
	if err := os.WriteFile(e.restartMarker, data, 0o644); err != nil {
		return fmt.Errorf("write restart marker: %w", err)
	}
	if _, err := tc.Reply(ctx, "Restarting...", false); err != nil {
		e.log.Debug().Err(err).Msg("failed to send restart notice")
	}
	go e.execSelf()
	return nil
}

// execSelf replaces the current process image with itself, matching the
// original's in-process restart (spec §9 "In-process restart"). It runs on
// its own goroutine so the caller can finish replying first; syscall.Exec
// never returns on success.
func (e *Executor) execSelf() {
	exe, err := os.Executable()
	if err != nil {
		e.log.Error().Err(err).Msg("failed to resolve own executable for restart")
		return
	}
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		e.log.Error().Err(err).Msg("failed to exec self for restart")
	}
}

// LoadRestartMarker reads and deletes the marker file, returning the chat
// id to notify (0, false if no marker is pending). Called once at startup.
func LoadRestartMarker(path string) (int64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	defer os.Remove(path)
	var marker RestartMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		return 0, false
	}
	return marker.ChatID, true
}

func (e *Executor) memorySet(ctx context.Context, tc transport.Context, userID int64, a Action) error {
	category := stringField(a, "category")
	key := stringField(a, "key")
	value := stringField(a, "value")
	if category == "" || key == "" {
		return fmt.Errorf("missing 'category' or 'key'")
	}
	_, err := e.memories.SetMemory(ctx, userID, category, key, value, nil)
	return err
}

func (e *Executor) memoryDelete(ctx context.Context, userID int64, a Action) error {
	category := stringField(a, "category")
	key := stringField(a, "key")
	if category == "" || key == "" {
		return fmt.Errorf("missing 'category' or 'key'")
	}
	ok, err := e.memories.DeleteMemory(ctx, userID, category, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no such memory %s/%s", category, key)
	}
	return nil
}

func (e *Executor) memoryList(ctx context.Context, tc transport.Context, userID int64, a Action) error {
	category := stringField(a, "category")
	mems, err := e.memories.ListMemories(ctx, userID, category, memoryListLimit)
	if err != nil {
		return err
	}
	if len(mems) == 0 {
		_, err := tc.Reply(ctx, "No memories stored.", false)
		return err
	}
	text := "Memories:\n"
	for _, m := range mems {
		text += fmt.Sprintf("- [%s] %s: %s\n", m.Category, m.Key, m.Content)
	}
	_, err = tc.Reply(ctx, text, false)
	return err
}
