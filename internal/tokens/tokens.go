// Package tokens estimates token counts for providers that omit usage data.
package tokens

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens in a piece of text.
type Estimator interface {
	Count(text string) int
}

// Heuristic approximates one token per four characters.
type Heuristic struct{}

func (Heuristic) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// Tiktoken counts with a BPE encoding. The encoding is loaded lazily on
// first use (it may be downloaded); if that fails the heuristic is used.
type Tiktoken struct {
	encoding string

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktoken returns an estimator for the named encoding, e.g. "cl100k_base".
func NewTiktoken(encoding string) *Tiktoken {
	return &Tiktoken{encoding: encoding}
}

func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("tokens: loading encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Err reports why the encoding could not be loaded, if it was attempted.
func (t *Tiktoken) Err() error {
	return t.init()
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	if err := t.init(); err != nil {
		return Heuristic{}.Count(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}
