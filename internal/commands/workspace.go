package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/megobari/megobari/internal/transport"
)

// registerWorkspaceCommands wires working-directory and file transfer
// commands. Grounded on handlers/workspace.py.
func registerWorkspaceCommands(r *Registry, deps *Deps) {
	r.Register(Definition{
		Name:        "cd",
		Args:        "<path>",
		Description: "Change working directory",
		Section:     "workspace",
		Handler:     cmdCd(deps),
	})
	r.Register(Definition{
		Name:        "dirs",
		Args:        "[add|rm] <path>",
		Description: "Manage extra directories",
		Section:     "workspace",
		Handler:     cmdDirs(deps),
	})
	r.Register(Definition{
		Name:        "file",
		Args:        "<path>",
		Description: "Send a file to Telegram",
		Section:     "workspace",
		Handler:     cmdFile(deps),
	})
}

func resolvePathArg(raw, base string) (string, error) {
	expanded := raw
	if strings.HasPrefix(expanded, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
		}
	}
	if !filepath.IsAbs(expanded) && base != "" {
		expanded = filepath.Join(base, expanded)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}
	return abs, nil
}

func cmdCd(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		session := deps.Sessions.Current()
		if session == nil {
			_, err := tc.Reply(ctx, "No active session. Use /new <name> first.", false)
			return err
		}
		if len(args) == 0 {
			_, err := tc.Reply(ctx, fmt.Sprintf("Current directory: %s\n\nUsage: /cd <path>", session.Cwd), false)
			return err
		}
		resolved, err := resolvePathArg(strings.Join(args, " "), session.Cwd)
		if err != nil {
			_, replyErr := tc.Reply(ctx, "Invalid path: "+err.Error(), false)
			return replyErr
		}
		info, statErr := os.Stat(resolved)
		if statErr != nil || !info.IsDir() {
			_, replyErr := tc.Reply(ctx, "Directory not found: "+resolved, false)
			return replyErr
		}
		session.Cwd = resolved
		deps.Sessions.Save()
		_, replyErr := tc.Reply(ctx, "Working directory: "+session.Cwd, false)
		return replyErr
	}
}

func cmdDirs(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		session := deps.Sessions.Current()
		if session == nil {
			_, err := tc.Reply(ctx, "No active session. Use /new <name> first.", false)
			return err
		}

		if len(args) == 0 {
			lines := []string{"**Directories:**", ""}
			lines = append(lines, fmt.Sprintf("▸ `%s` (cwd)", session.Cwd))
			for _, d := range session.Dirs {
				lines = append(lines, fmt.Sprintf("  `%s`", d))
			}
			if len(session.Dirs) == 0 {
				lines = append(lines, "No extra directories. Use /dirs add <path>")
			}
			_, err := tc.Reply(ctx, strings.Join(lines, "\n"), true)
			return err
		}

		action := args[0]
		switch action {
		case "add":
			if len(args) < 2 {
				_, err := tc.Reply(ctx, "Usage: /dirs add <path>", false)
				return err
			}
			resolved, err := resolvePathArg(strings.Join(args[1:], " "), "")
			if err != nil {
				_, replyErr := tc.Reply(ctx, "Invalid path: "+err.Error(), false)
				return replyErr
			}
			info, statErr := os.Stat(resolved)
			if statErr != nil || !info.IsDir() {
				_, replyErr := tc.Reply(ctx, "Directory not found: "+resolved, false)
				return replyErr
			}
			if resolved == session.Cwd || containsStr(session.Dirs, resolved) {
				_, replyErr := tc.Reply(ctx, "Already added: "+resolved, false)
				return replyErr
			}
			session.Dirs = append(session.Dirs, resolved)
			deps.Sessions.Save()
			_, replyErr := tc.Reply(ctx, "Added: "+resolved, false)
			return replyErr

		case "rm":
			if len(args) < 2 {
				_, err := tc.Reply(ctx, "Usage: /dirs rm <path>", false)
				return err
			}
			resolved, err := resolvePathArg(strings.Join(args[1:], " "), "")
			if err != nil {
				_, replyErr := tc.Reply(ctx, "Invalid path: "+err.Error(), false)
				return replyErr
			}
			idx := indexOfStr(session.Dirs, resolved)
			if idx == -1 {
				_, replyErr := tc.Reply(ctx, "Not in directory list: "+resolved, false)
				return replyErr
			}
			session.Dirs = append(session.Dirs[:idx], session.Dirs[idx+1:]...)
			deps.Sessions.Save()
			_, replyErr := tc.Reply(ctx, "Removed: "+resolved, false)
			return replyErr

		default:
			_, err := tc.Reply(ctx, "Usage: /dirs [add|rm] <path>", false)
			return err
		}
	}
}

func cmdFile(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		if len(args) == 0 {
			_, err := tc.Reply(ctx, "Usage: /file <path>", false)
			return err
		}
		base := ""
		if session := deps.Sessions.Current(); session != nil {
			base = session.Cwd
		}
		resolved, err := resolvePathArg(strings.Join(args, " "), base)
		if err != nil {
			_, replyErr := tc.Reply(ctx, "Invalid path: "+err.Error(), false)
			return replyErr
		}
		info, statErr := os.Stat(resolved)
		if statErr != nil || info.IsDir() {
			_, replyErr := tc.Reply(ctx, "File not found: "+resolved, false)
			return replyErr
		}
		if sendErr := tc.ReplyDocument(ctx, resolved, filepath.Base(resolved), ""); sendErr != nil {
			_, replyErr := tc.Reply(ctx, "Failed to send file: "+sendErr.Error(), false)
			return replyErr
		}
		return nil
	}
}

func containsStr(list []string, v string) bool {
	return indexOfStr(list, v) != -1
}

func indexOfStr(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
