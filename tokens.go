package anima

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many tokens a piece of text consumes.
// The context weaver uses it to enforce the prompt token budget.
type TokenCounter interface {
	Count(text string) int
}

// HeuristicTokenCounter estimates tokens as ceil(len/4). This is the
// runtime's documented trimming contract; swapping in an exact counter
// changes which memories survive a trim.
type HeuristicTokenCounter struct{}

// Count returns ceil(len(text)/4).
func (HeuristicTokenCounter) Count(text string) int {
	return (len(text) + 3) / 4
}

// TiktokenCounter counts tokens with a real BPE encoding. Use it when
// the token budget must match what the provider actually bills; note
// that trimming behavior will differ from the heuristic contract.
type TiktokenCounter struct {
	encoder *tiktoken.Tiktoken
	mu      sync.Mutex
}

// NewTiktokenCounter creates a counter for the given encoding, e.g.
// "cl100k_base".
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{encoder: enc}, nil
}

// Count returns the exact token count under the configured encoding.
func (c *TiktokenCounter) Count(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.encoder.Encode(text, nil, nil))
}

var (
	_ TokenCounter = HeuristicTokenCounter{}
	_ TokenCounter = (*TiktokenCounter)(nil)
)
