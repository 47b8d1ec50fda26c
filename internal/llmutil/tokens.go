package llmutil

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts prompt tokens.
type TokenCounter interface {
	Count(text string) (int, error)
}

const defaultEncoding = "cl100k_base"

// modelEncodings maps model name prefixes to their tiktoken encoding.
// Longer prefixes are checked first.
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o-mini", "o200k_base"},
	{"gpt-4o", "o200k_base"},
	{"gpt-4.1", "o200k_base"},
	{"o1", "o200k_base"},
	{"o3", "o200k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5-turbo", "cl100k_base"},
}

// EncodingForModel returns the tiktoken encoding for a model, defaulting to
// cl100k_base. Non-OpenAI models are approximated with the default.
func EncodingForModel(model string) string {
	model = strings.ToLower(model)
	for _, m := range modelEncodings {
		if strings.HasPrefix(model, m.prefix) {
			return m.encoding
		}
	}
	return defaultEncoding
}

// TiktokenCounter counts tokens with a lazily loaded tiktoken encoding. The
// first Count may download BPE data.
type TiktokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

var _ TokenCounter = (*TiktokenCounter)(nil)

// NewTiktokenCounter creates a counter for the given model name.
func NewTiktokenCounter(model string) *TiktokenCounter {
	return &TiktokenCounter{encoding: EncodingForModel(model)}
}

func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Count returns the number of tokens in text.
func (t *TiktokenCounter) Count(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// Encoding returns the selected encoding name.
func (t *TiktokenCounter) Encoding() string { return t.encoding }
