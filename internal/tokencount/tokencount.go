// Package tokencount estimates token counts for plain text, used by
// /context and /usage to surface a context-window estimate before the
// agent CLI itself reports real usage for a turn. Grounded on
// pkg/aitokens/tokenizer.go's cached-encoder pattern, trimmed to plain-text
// estimation since the Turn Engine talks to the agent CLI via raw prompts
// and transcripts rather than OpenAI chat-message unions.
package tokencount

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

var (
	mu    sync.RWMutex
	cache = make(map[string]*tiktoken.Tiktoken)
)

// encoderFor returns a cached tiktoken encoder for model, falling back to
// cl100k_base (the GPT-4 family encoding) for models tiktoken doesn't
// recognize by name — coding-agent model identifiers aren't OpenAI model
// names, so this fallback is the common path, not the exception.
func encoderFor(model string) (*tiktoken.Tiktoken, error) {
	mu.RLock()
	if enc, ok := cache[model]; ok {
		mu.RUnlock()
		return enc, nil
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if enc, ok := cache[model]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, err
		}
	}
	cache[model] = enc
	return enc, nil
}

// Estimate returns the approximate token count of text under model's
// encoding (or the cl100k_base fallback). Returns 0 on an unrecoverable
// tokenizer error rather than failing the caller — this is a display
// estimate, not billed usage.
func Estimate(text, model string) int {
	enc, err := encoderFor(model)
	if err != nil {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}
