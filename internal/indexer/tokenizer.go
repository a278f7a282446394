package indexer

import (
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Window is one slice of an oversized section, carrying the byte offset of
// its text within the original section content so line numbers can be
// recovered.
type Window struct {
	Text  string
	Start int
}

// Tokenizer counts and slices text with the cl100k_base byte-pair encoding.
// When the BPE tables cannot be loaded it degrades to a whitespace
// approximation so chunking keeps working offline.
type Tokenizer struct {
	enc    *tiktoken.Tiktoken
	logger *zap.Logger
}

// TokenizerOption configures a Tokenizer.
type TokenizerOption func(*Tokenizer)

// WithTokenizerLogger attaches a logger.
func WithTokenizerLogger(logger *zap.Logger) TokenizerOption {
	return func(t *Tokenizer) { t.logger = logger }
}

// NewTokenizer creates a Tokenizer backed by cl100k_base when available.
func NewTokenizer(opts ...TokenizerOption) *Tokenizer {
	t := &Tokenizer{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		t.logger.Warn("cl100k_base unavailable, using approximate tokenizer",
			zap.Error(err))
		return t
	}
	t.enc = enc
	return t
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	return len(strings.Fields(text))
}

// Windows slices text into windows of at most maxTokens tokens with the given
// overlap between consecutive windows. Each window's text is an exact
// substring of the input except for possible boundary trimming by the BPE.
func (t *Tokenizer) Windows(text string, maxTokens, overlap int) []Window {
	if maxTokens <= 0 {
		return []Window{{Text: text, Start: 0}}
	}
	step := maxTokens - overlap
	if step <= 0 {
		step = 1
	}
	if t.enc != nil {
		return t.bpeWindows(text, maxTokens, step)
	}
	return approximateWindows(text, maxTokens, step)
}

func (t *Tokenizer) bpeWindows(text string, maxTokens, step int) []Window {
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return []Window{{Text: text, Start: 0}}
	}
	// cl100k_base decoding concatenates per-token byte sequences, so the
	// cumulative decoded length of a token prefix is the byte offset of the
	// window start in the original text.
	offsets := make([]int, len(tokens)+1)
	for i, tok := range tokens {
		offsets[i+1] = offsets[i] + len(t.enc.Decode([]int{tok}))
	}
	var windows []Window
	for i := 0; i < len(tokens); i += step {
		end := i + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		windows = append(windows, Window{
			Text:  t.enc.Decode(tokens[i:end]),
			Start: offsets[i],
		})
		if end >= len(tokens) {
			break
		}
	}
	return windows
}

// approximateWindows treats whitespace-separated words as tokens. Window text
// is the exact source substring spanning its words.
func approximateWindows(text string, maxTokens, step int) []Window {
	type word struct{ start, end int }
	var words []word
	inWord := false
	start := 0
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				words = append(words, word{start, i})
				inWord = false
			}
		} else if !inWord {
			start = i
			inWord = true
		}
	}
	if inWord {
		words = append(words, word{start, len(text)})
	}
	if len(words) <= maxTokens {
		return []Window{{Text: text, Start: 0}}
	}
	var windows []Window
	for i := 0; i < len(words); i += step {
		end := i + maxTokens
		if end > len(words) {
			end = len(words)
		}
		first, last := words[i], words[end-1]
		windows = append(windows, Window{
			Text:  text[first.start:last.end],
			Start: first.start,
		})
		if end >= len(words) {
			break
		}
	}
	return windows
}
