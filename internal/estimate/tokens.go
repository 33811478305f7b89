package estimate

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// counter wraps tiktoken with lazy init and a chars/4 fallback when the
// encoding data is unavailable (offline environments).
type counter struct {
	enc  *tiktoken.Tiktoken
	once sync.Once
	err  error
}

var defaultCounter = &counter{}

// Tokens returns the token count for text using cl100k_base.
func Tokens(text string) int {
	return defaultCounter.count(text)
}

func (c *counter) count(text string) int {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.GetEncoding("cl100k_base")
	})
	if c.err != nil || c.enc == nil {
		return len(text) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}
