package notify

import (
	"strings"
	"sync"
)

// Recorder keeps every message in memory. Used as a test double and by the
// dry-run wiring when no chat is configured.
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *Recorder) Notify(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// Count returns how many recorded messages contain substr.
func (r *Recorder) Count(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}
