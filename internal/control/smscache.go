package control

import (
	"sync"

	"pushbridge/internal/model"
)

// SMSCache holds the most recent thread and message listings delivered over
// the stream, already sorted for display (threads descending, messages
// ascending). It implements the classifier's SMSSink.
type SMSCache struct {
	mu       sync.Mutex
	threads  []model.SMSThread
	messages []model.SMSMessage
}

// NewSMSCache creates an empty cache.
func NewSMSCache() *SMSCache {
	return &SMSCache{}
}

func (s *SMSCache) Threads(threads []model.SMSThread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads = threads
}

func (s *SMSCache) Messages(messages []model.SMSMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = messages
}

// LatestThreads returns the last thread listing received.
func (s *SMSCache) LatestThreads() []model.SMSThread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threads
}

// LatestMessages returns the last message listing received.
func (s *SMSCache) LatestMessages() []model.SMSMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages
}
