package conversation

import (
	"slices"
	"sync"

	"github.com/raphaelgruber/ytchat/internal/models"
)

// Thread is one conversation's message history.
type Thread struct {
	ID       string
	Messages []models.Message
}

// ThreadStore keeps threads in memory for the process lifetime.
type ThreadStore struct {
	mu      sync.RWMutex
	threads map[string]*Thread
}

// NewThreadStore creates an empty store.
func NewThreadStore() *ThreadStore {
	return &ThreadStore{threads: make(map[string]*Thread)}
}

// Append adds messages to a thread, creating it on first use.
func (s *ThreadStore) Append(threadID string, msgs ...models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[threadID]
	if !ok {
		t = &Thread{ID: threadID}
		s.threads[threadID] = t
	}
	t.Messages = append(t.Messages, msgs...)
}

// History returns a copy of a thread's messages. Unknown threads are empty.
func (s *ThreadStore) History(threadID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	if !ok {
		return nil
	}
	return slices.Clone(t.Messages)
}

// Len returns the number of threads.
func (s *ThreadStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}
