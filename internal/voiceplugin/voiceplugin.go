// Package voiceplugin transcribes voice messages to text. It is the
// optional, swappable "voice transcription" collaborator: the bridge works
// fine without it, but when configured it turns a Telegram voice note into
// a plain-text prompt the Turn Engine can process like any other message.
//
// Grounded on voice.py's lazy-loading Transcriber, with the local
// faster-whisper model swapped for OpenAI's hosted Whisper endpoint via
// github.com/openai/openai-go/v3, since there is no in-process speech model
// anywhere in the pack.
package voiceplugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// ErrNotConfigured is returned by Transcribe when no API key was supplied,
// mirroring voice.py's ImportError-with-install-hint path for a missing
// optional dependency.
var ErrNotConfigured = errors.New("voiceplugin: OPENAI_API_KEY not configured, voice transcription unavailable")

// Transcriber turns a downloaded voice-message audio file into text. The
// client is built lazily on first use, matching Transcriber._ensure_model's
// load-on-first-call behavior.
type Transcriber struct {
	apiKey string
	model  string

	client *openai.Client
}

// New returns a Transcriber. model is the Whisper model name; an empty
// string falls back to "whisper-1". apiKey empty means transcription is
// unavailable and Transcribe always returns ErrNotConfigured.
func New(apiKey, model string) *Transcriber {
	if model == "" {
		model = "whisper-1"
	}
	return &Transcriber{apiKey: apiKey, model: model}
}

// Available reports whether transcription can run, the Go analogue of
// voice.py's is_available() dependency probe.
func (t *Transcriber) Available() bool {
	return t.apiKey != ""
}

func (t *Transcriber) ensureClient() *openai.Client {
	if t.client == nil {
		c := openai.NewClient(option.WithAPIKey(t.apiKey))
		t.client = &c
	}
	return t.client
}

// Transcribe sends the audio file at path to the Whisper API and returns
// the recognized text, trimmed the way handle_voice logs/echoes it back.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (string, error) {
	if !t.Available() {
		return "", ErrNotConfigured
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	resp, err := t.ensureClient().Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(t.model),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// InstallHint is surfaced to the user in place of voice.py's INSTALL_HINT
// when the plugin is not configured.
const InstallHint = "Voice transcription requires OPENAI_API_KEY to be set."

// TempFileName builds a destination path for a downloaded voice note,
// preserving the .ogg extension Telegram voice messages arrive in.
func TempFileName(dir, id string) string {
	return filepath.Join(dir, id+".ogg")
}
