// Package tokencount counts tokens the way a downstream LLM would
// tokenize them, for sources that don't already know their own chunk's
// token_count and for the orchestrator's max_tokens truncation step.
package tokencount

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the cl100k_base encoding used by GPT-3.5/4-class
// models; it is a reasonable token-count approximation for any LLM a
// deployment fronts, absent a more specific encoding.
const DefaultEncoding = "cl100k_base"

// Counter counts tokens in text. Sources and the orchestrator depend on
// this narrow interface rather than *Tiktoken directly, so tests can
// substitute a cheap fake.
type Counter interface {
	Count(text string) int
}

// TiktokenCounter wraps github.com/pkoukk/tiktoken-go's BPE tokenizer.
// Construction downloads (and then caches) the encoding's merge ranks on
// first use; NewTiktokenCounter fails fast if that lookup fails rather
// than silently degrading every Count call.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter builds a TiktokenCounter for the named encoding
// (DefaultEncoding if empty).
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count returns the number of tokens text encodes to.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// WordCounter is a dependency-free fallback that approximates token
// count as whitespace-delimited word count scaled by a constant factor
// tiktoken's BPE tends to land near for English prose. Used when no
// TiktokenCounter could be constructed (e.g. encoding data unavailable
// in an offline environment) so chunk.token_count is never left at
// zero.
type WordCounter struct{}

// Count approximates token count from word count.
func (WordCounter) Count(text string) int {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	// English BPE tokenizers average roughly 1.3 tokens per word.
	return int(float64(len(words))*1.3) + 1
}

var (
	defaultOnce    sync.Once
	defaultCounter Counter
)

// Default returns a process-wide Counter, preferring a real
// TiktokenCounter and falling back to WordCounter if the encoding
// couldn't be loaded.
func Default() Counter {
	defaultOnce.Do(func() {
		if tc, err := NewTiktokenCounter(DefaultEncoding); err == nil {
			defaultCounter = tc
			return
		}
		defaultCounter = WordCounter{}
	})
	return defaultCounter
}
