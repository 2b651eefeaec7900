package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/megobari/megobari/internal/sessionstore"
	"github.com/megobari/megobari/internal/transport"
)

// registerSessionCommands wires session lifecycle commands. Grounded on
// handlers/sessions.py.
func registerSessionCommands(r *Registry, deps *Deps) {
	r.Register(Definition{
		Name:        "start",
		Description: "Start using Megobari",
		Section:     "session",
		Handler:     cmdStart(deps),
	})
	r.Register(Definition{
		Name:        "new",
		Args:        "<name>",
		Description: "Create a new session",
		Section:     "session",
		Handler:     cmdNew(deps),
	})
	r.Register(Definition{
		Name:        "sessions",
		Description: "List all sessions",
		Section:     "session",
		Handler:     cmdSessions(deps),
	})
	r.Register(Definition{
		Name:        "switch",
		Args:        "<name>",
		Description: "Switch to a session",
		Section:     "session",
		Handler:     cmdSwitch(deps),
	})
	r.Register(Definition{
		Name:        "delete",
		Args:        "<name>",
		Description: "Delete a session",
		Section:     "session",
		Handler:     cmdDelete(deps),
	})
	r.Register(Definition{
		Name:        "rename",
		Args:        "<old> <new>",
		Description: "Rename a session",
		Section:     "session",
		Handler:     cmdRename(deps),
	})
	r.Register(Definition{
		Name:        "stream",
		Args:        "on|off",
		Description: "Toggle streaming responses",
		Section:     "session",
		Handler:     cmdStream(deps),
	})
	r.Register(Definition{
		Name:        "permissions",
		Args:        "<mode>",
		Description: "Set session permission mode",
		Section:     "session",
		Handler:     cmdPermissions(deps),
	})
}

func cmdStart(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		if len(deps.Sessions.ListAll()) == 0 {
			deps.Sessions.Create("default", deps.Config.WorkingDir)
		}
		_, err := tc.Reply(ctx,
			"Megobari is ready.\n\n"+
				"Send a message to talk to the agent.\n"+
				"Use /help to see all commands.", false)
		return err
	}
}

func cmdNew(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		if len(args) == 0 {
			_, err := tc.Reply(ctx, "Usage: /new <name>", false)
			return err
		}
		name := args[0]
		if _, ok := deps.Sessions.Create(name, deps.Config.WorkingDir); !ok {
			_, err := tc.Reply(ctx, fmt.Sprintf("Session '%s' already exists.", name), false)
			return err
		}
		_, err := tc.Reply(ctx, fmt.Sprintf("Created and switched to session '%s'.", name), false)
		return err
	}
}

func cmdSessions(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		text := formatSessionList(deps.Sessions.ListAll(), deps.Sessions.ActiveName())
		_, err := tc.Reply(ctx, text, true)
		return err
	}
}

func cmdSwitch(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		if len(args) == 0 {
			_, err := tc.Reply(ctx, "Usage: /switch <name>", false)
			return err
		}
		name := args[0]
		if deps.Sessions.Switch(name) == nil {
			_, err := tc.Reply(ctx, fmt.Sprintf("Session '%s' not found.", name), false)
			return err
		}
		_, err := tc.Reply(ctx, fmt.Sprintf("Switched to session '%s'.", name), false)
		return err
	}
}

func cmdDelete(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		if len(args) == 0 {
			_, err := tc.Reply(ctx, "Usage: /delete <name>", false)
			return err
		}
		name := args[0]
		if !deps.Sessions.Delete(name) {
			_, err := tc.Reply(ctx, fmt.Sprintf("Session '%s' not found.", name), false)
			return err
		}
		if active := deps.Sessions.ActiveName(); active != "" {
			_, err := tc.Reply(ctx, fmt.Sprintf("Deleted '%s'. Active session is now '%s'.", name, active), false)
			return err
		}
		_, err := tc.Reply(ctx, fmt.Sprintf("Deleted '%s'. No sessions left. Use /new <name> to create one.", name), false)
		return err
	}
}

func cmdRename(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		if len(args) < 2 {
			_, err := tc.Reply(ctx, "Usage: /rename <old_name> <new_name>", false)
			return err
		}
		oldName, newName := args[0], args[1]
		if errMsg := deps.Sessions.Rename(oldName, newName); errMsg != "" {
			_, err := tc.Reply(ctx, errMsg, false)
			return err
		}
		_, err := tc.Reply(ctx, fmt.Sprintf("Renamed '%s' -> '%s'.", oldName, newName), false)
		return err
	}
}

func cmdStream(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		session := deps.Sessions.Current()
		if session == nil {
			_, err := tc.Reply(ctx, "No active session. Use /new <name> first.", false)
			return err
		}
		if len(args) == 0 || (args[0] != "on" && args[0] != "off") {
			state := "off"
			if session.Streaming {
				state = "on"
			}
			_, err := tc.Reply(ctx, fmt.Sprintf("Usage: /stream on|off\nCurrently: %s", state), false)
			return err
		}
		session.Streaming = args[0] == "on"
		deps.Sessions.Save()
		state := "disabled"
		if session.Streaming {
			state = "enabled"
		}
		_, err := tc.Reply(ctx, fmt.Sprintf("Streaming %s for '%s'.", state, session.Name), false)
		return err
	}
}

var validPermissionModes = []sessionstore.PermissionMode{
	sessionstore.PermissionDefault,
	sessionstore.PermissionAcceptEdits,
	sessionstore.PermissionBypassPermissions,
}

func cmdPermissions(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		session := deps.Sessions.Current()
		if session == nil {
			_, err := tc.Reply(ctx, "No active session. Use /new <name> first.", false)
			return err
		}
		if len(args) == 0 || !isValidPermissionMode(args[0]) {
			names := make([]string, len(validPermissionModes))
			for i, m := range validPermissionModes {
				names[i] = string(m)
			}
			sort.Strings(names)
			_, err := tc.Reply(ctx, fmt.Sprintf(
				"Usage: /permissions <mode>\nModes: %s\nCurrently: %s",
				strings.Join(names, ", "), session.PermissionMode), false)
			return err
		}
		session.PermissionMode = sessionstore.PermissionMode(args[0])
		deps.Sessions.Save()
		_, err := tc.Reply(ctx, fmt.Sprintf("Permission mode set to '%s' for '%s'.", session.PermissionMode, session.Name), false)
		return err
	}
}

func isValidPermissionMode(mode string) bool {
	for _, m := range validPermissionModes {
		if string(m) == mode {
			return true
		}
	}
	return false
}

// formatSessionList renders sessions with the active one marked, matching
// message_utils.py's format_session_list.
func formatSessionList(sessions []*sessionstore.Session, activeName string) string {
	if len(sessions) == 0 {
		return "No sessions. Use /new <name> to create one."
	}
	lines := make([]string, 0, len(sessions))
	for _, s := range sessions {
		var namePart string
		if s.Name == activeName {
			namePart = "▸ **" + s.Name + "**"
		} else {
			namePart = "  " + s.Name
		}
		flags := []string{}
		if s.Streaming {
			flags = append(flags, "stream")
		}
		flags = append(flags, string(s.PermissionMode))
		lines = append(lines, fmt.Sprintf("%s (%s)", namePart, strings.Join(flags, ", ")))
	}
	return strings.Join(lines, "\n")
}
