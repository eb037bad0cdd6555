package testutils

import (
	"fmt"
	"sync"
)

// MockNotifier копит отправленные сообщения.
type MockNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *MockNotifier) Send(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *MockNotifier) Sendf(format string, args ...any) { n.Send(fmt.Sprintf(format, args...)) }

func (n *MockNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}
