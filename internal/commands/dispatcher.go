package commands

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/megobari/megobari/internal/transport"
	"github.com/megobari/megobari/internal/turnengine"
	"github.com/megobari/megobari/internal/voiceplugin"
)

// Dispatcher is the telegram.Handler implementation: every inbound update
// is tracked as a user, then routed to either a registered "/command" or
// the Turn Engine as a plain conversational prompt. Grounded on
// handlers/__init__.py's CommandHandler/MessageHandler split and
// _common.py's _track_user.
type Dispatcher struct {
	deps       *Deps
	registry   *Registry
	transcribe *voiceplugin.Transcriber
}

// NewDispatcher wires deps and registers every built-in command.
func NewDispatcher(deps *Deps, transcribe *voiceplugin.Transcriber) *Dispatcher {
	d := &Dispatcher{deps: deps, registry: NewRegistry(), transcribe: transcribe}
	registerSessionCommands(d.registry, deps)
	registerWorkspaceCommands(d.registry, deps)
	registerTuningCommands(d.registry, deps)
	registerPersonaCommands(d.registry, deps)
	registerUsageCommands(d.registry, deps)
	registerOpsCommands(d.registry, deps)
	registerAdminCommands(d.registry, deps)
	return d
}

// Handle implements telegram.Handler.
func (d *Dispatcher) Handle(ctx context.Context, tc transport.Context) error {
	d.trackUser(ctx, tc)

	text := tc.Text()
	if strings.HasPrefix(text, "/") {
		return d.dispatchCommand(ctx, tc, text)
	}

	if handled, err := d.dispatchMedia(ctx, tc); handled {
		return err
	}

	if handled, err := d.dispatchVoice(ctx, tc); handled {
		return err
	}

	return d.dispatchPrompt(ctx, tc, text)
}

// dispatchVoice handles an incoming voice note: download it, transcribe it,
// echo the transcription, then process it as a prompt. Grounded on
// handle_voice's download-transcribe-echo-process flow; the "session busy"
// reaction is handled upstream by ProcessTurn/ErrSessionBusy instead of a
// pre-check, since the Go Turn Engine already owns that state.
func (d *Dispatcher) dispatchVoice(ctx context.Context, tc transport.Context) (bool, error) {
	path, err := tc.DownloadVoice(ctx)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Something went wrong with voice: "+err.Error(), false)
		return true, replyErr
	}
	if path == "" {
		return false, nil
	}
	defer os.Remove(path)

	if d.transcribe == nil || !d.transcribe.Available() {
		_, err := tc.Reply(ctx, "⚠️ "+voiceplugin.InstallHint, false)
		return true, err
	}

	_ = tc.SetReaction(ctx, "👀")
	defer func() { _ = tc.SetReaction(ctx, "") }()

	text, err := d.transcribe.Transcribe(ctx, path)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Something went wrong with voice: "+err.Error(), false)
		return true, replyErr
	}
	if strings.TrimSpace(text) == "" {
		_, replyErr := tc.Reply(ctx, "Could not transcribe voice message.", false)
		return true, replyErr
	}

	if _, err := tc.Reply(ctx, "🎤 "+text, false); err != nil {
		return true, err
	}
	return true, d.dispatchPrompt(ctx, tc, text)
}

// dispatchMedia handles an incoming photo or document: download it into the
// session's working directory and forward its path as a prompt, matching
// handle_photo/handle_document's "download, then describe" flow.
func (d *Dispatcher) dispatchMedia(ctx context.Context, tc transport.Context) (bool, error) {
	if path, err := tc.DownloadPhoto(ctx); err != nil {
		_, replyErr := tc.Reply(ctx, "Something went wrong with photo: "+err.Error(), false)
		return true, replyErr
	} else if path != "" {
		prompt := "The user sent a photo saved at: " + path
		if cap := tc.Caption(); cap != "" {
			prompt += "\nCaption: " + cap
		}
		prompt += "\nPlease look at the image and respond."
		return true, d.dispatchPrompt(ctx, tc, prompt)
	}

	path, filename, err := tc.DownloadDocument(ctx)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Something went wrong with document: "+err.Error(), false)
		return true, replyErr
	}
	if path != "" {
		prompt := "The user sent a file saved at: " + path
		if cap := tc.Caption(); cap != "" {
			prompt += "\nCaption: " + cap
		}
		prompt += "\nPlease examine the file and respond (filename: " + filename + ")."
		return true, d.dispatchPrompt(ctx, tc, prompt)
	}

	return false, nil
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, tc transport.Context, text string) error {
	fields := strings.Fields(text)
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.Index(name, "@"); i >= 0 { // strip "/cmd@botname"
		name = name[:i]
	}

	def, ok := d.registry.Get(name)
	if !ok {
		_, err := tc.Reply(ctx, "Unknown command. Use /help to see available commands.", false)
		return err
	}
	return def.Handler(ctx, tc, tc.Args())
}

func (d *Dispatcher) dispatchPrompt(ctx context.Context, tc transport.Context, text string) error {
	session := d.deps.Sessions.Current()
	if session == nil {
		_, err := tc.Reply(ctx, "No active session. Use /new <name> first.", false)
		return err
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if err := d.deps.Engine.ProcessTurn(ctx, tc, session, tc.UserID(), text); err != nil {
		if errors.Is(err, turnengine.ErrSessionBusy) {
			_, replyErr := tc.Reply(ctx, "⏳ Still working on your previous message, hang tight.", false)
			return replyErr
		}
		return err
	}
	return nil
}

func (d *Dispatcher) trackUser(ctx context.Context, tc transport.Context) {
	if tc.UserID() == 0 {
		return
	}
	if _, err := d.deps.Store.UpsertUser(ctx, tc.UserID(), tc.Username(), tc.FirstName(), tc.LastName()); err != nil {
		d.deps.Log.Debug().Err(err).Msg("failed to track user")
	}
}
