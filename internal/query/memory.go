package query

import (
	"sync"

	"github.com/Aman-CERP/docrag/internal/llm"
)

// DefaultMemoryPairs is the number of exchanges replayed into a prompt.
const DefaultMemoryPairs = 5

// Exchange is one question and the answer given to it.
type Exchange struct {
	Question string
	Answer   string
}

// Memory keeps the most recent exchanges, evicting the oldest first.
// A Memory with a non-positive size records nothing.
type Memory struct {
	mu    sync.Mutex
	size  int
	items []Exchange
}

// NewMemory returns a window of size exchanges.
func NewMemory(size int) *Memory {
	return &Memory{size: size}
}

// Add records an exchange.
func (m *Memory) Add(question, answer string) {
	if m == nil || m.size <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = append(m.items, Exchange{Question: question, Answer: answer})
	if over := len(m.items) - m.size; over > 0 {
		m.items = append(m.items[:0:0], m.items[over:]...)
	}
}

// Exchanges returns a copy of the window, oldest first.
func (m *Memory) Exchanges() []Exchange {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Exchange(nil), m.items...)
}

// Messages returns the window as alternating user and assistant turns.
func (m *Memory) Messages() []llm.Message {
	items := m.Exchanges()
	out := make([]llm.Message, 0, 2*len(items))
	for _, ex := range items {
		out = append(out,
			llm.Message{Role: llm.RoleUser, Content: ex.Question},
			llm.Message{Role: llm.RoleAssistant, Content: ex.Answer})
	}
	return out
}

// Len returns the number of exchanges held.
func (m *Memory) Len() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Reset forgets every exchange.
func (m *Memory) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.items = nil
	m.mu.Unlock()
}
