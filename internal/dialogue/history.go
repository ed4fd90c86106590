package dialogue

import (
	"sync"
	"time"
)

// Exchange is one completed user/assistant round.
type Exchange struct {
	User      string
	Assistant string
	At        time.Time
}

// History is the append-only record of a session's exchanges. It is owned by
// the turn controller and handed to the engine on every call.
type History struct {
	mu        sync.Mutex
	exchanges []Exchange
}

func NewHistory() *History {
	return &History{}
}

func (h *History) Append(user, assistant string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exchanges = append(h.exchanges, Exchange{User: user, Assistant: assistant, At: time.Now()})
}

// Recent returns up to n of the latest exchanges, oldest first. n <= 0
// returns all of them.
func (h *History) Recent(n int) []Exchange {
	h.mu.Lock()
	defer h.mu.Unlock()
	start := 0
	if n > 0 && len(h.exchanges) > n {
		start = len(h.exchanges) - n
	}
	out := make([]Exchange, len(h.exchanges)-start)
	copy(out, h.exchanges[start:])
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.exchanges)
}
