package deeplink

import (
	"sync"
	"time"
)

// DefaultHighlightWindow is how long a found thread stays highlighted.
const DefaultHighlightWindow = 10 * time.Second

// Highlighter holds at most one highlighted comment id for a fixed window.
// Highlighting a new id replaces the old one and restarts the window.
type Highlighter struct {
	window   time.Duration
	onChange func(id string)

	mu     sync.Mutex
	active string
	gen    uint64
	timer  *time.Timer
}

// NewHighlighter creates a highlighter. onChange, if set, is called with the
// new id on highlight and with "" when the window expires or is cleared.
func NewHighlighter(window time.Duration, onChange func(id string)) *Highlighter {
	if window <= 0 {
		window = DefaultHighlightWindow
	}
	return &Highlighter{window: window, onChange: onChange}
}

// Highlight makes id the active highlight for one window.
func (h *Highlighter) Highlight(id string) {
	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
	}
	h.gen++
	gen := h.gen
	h.active = id
	h.timer = time.AfterFunc(h.window, func() { h.expire(gen) })
	h.mu.Unlock()

	h.notify(id)
}

// Active returns the highlighted id, or "" when none is.
func (h *Highlighter) Active() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Clear drops the highlight immediately.
func (h *Highlighter) Clear() {
	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.gen++
	had := h.active != ""
	h.active = ""
	h.mu.Unlock()

	if had {
		h.notify("")
	}
}

func (h *Highlighter) expire(gen uint64) {
	h.mu.Lock()
	if h.gen != gen {
		h.mu.Unlock()
		return
	}
	h.active = ""
	h.timer = nil
	h.mu.Unlock()

	h.notify("")
}

func (h *Highlighter) notify(id string) {
	if h.onChange != nil {
		h.onChange(id)
	}
}
