package phone

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store keeps all handset data in memory. Lists are ordered newest first.
type Store struct {
	mu       sync.RWMutex
	contacts []Contact
	threads  []*ChatThread
	logs     []CallLog
}

func NewStore(contacts []Contact) *Store {
	return &Store{contacts: append([]Contact(nil), contacts...)}
}

// Contacts filters by case-insensitive name or literal number substring. An empty
// query returns everything.
func (s *Store) Contacts(query string) []Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query = strings.TrimSpace(query)
	lower := strings.ToLower(query)
	out := make([]Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		if query == "" || strings.Contains(strings.ToLower(c.Name), lower) || strings.Contains(c.Number, query) {
			out = append(out, c)
		}
	}
	return out
}

// RecordCall prepends an outgoing entry to the call history.
func (s *Store) RecordCall(number, name string) CallLog {
	if name == "" {
		name = "Unknown"
	}
	entry := CallLog{
		ID:        uuid.NewString(),
		Name:      name,
		Number:    number,
		Type:      CallOutgoing,
		Timestamp: time.Now().UTC(),
	}
	s.mu.Lock()
	s.logs = append([]CallLog{entry}, s.logs...)
	s.mu.Unlock()
	return entry
}

func (s *Store) CallLogs() []CallLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]CallLog(nil), s.logs...)
}

// OpenThread returns the thread for number, creating it at the top of the list when
// none exists. created reports which case happened.
func (s *Store) OpenThread(number, name string) (thread ChatThread, created bool, err error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return ChatThread{}, false, ErrNumberRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.threads {
		if t.Number == number {
			return clone(t), false, nil
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = number
	}
	t := &ChatThread{
		ID:          uuid.NewString(),
		ContactName: name,
		Number:      number,
		Timestamp:   time.Now().UTC(),
		Messages:    []Message{},
	}
	s.threads = append([]*ChatThread{t}, s.threads...)
	return clone(t), true, nil
}

func (s *Store) Threads() []ChatThread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChatThread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, clone(t))
	}
	return out
}

func (s *Store) Thread(id string) (ChatThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.find(id)
	if t == nil {
		return ChatThread{}, ErrThreadNotFound
	}
	return clone(t), nil
}

func (s *Store) DeleteThread(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.threads {
		if t.ID == id {
			s.threads = append(s.threads[:i], s.threads[i+1:]...)
			return nil
		}
	}
	return ErrThreadNotFound
}

// AppendMessage adds a message to the end of a thread and makes it the thread preview.
func (s *Store) AppendMessage(threadID string, sender Sender, text string) (Message, error) {
	now := time.Now().UTC()
	msg := Message{ID: uuid.NewString(), Sender: sender, Text: text, Timestamp: now}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.find(threadID)
	if t == nil {
		return Message{}, ErrThreadNotFound
	}
	t.Messages = append(t.Messages, msg)
	t.LastMessage = text
	t.Timestamp = now
	return msg, nil
}

func (s *Store) find(id string) *ChatThread {
	for _, t := range s.threads {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func clone(t *ChatThread) ChatThread {
	out := *t
	out.Messages = append([]Message{}, t.Messages...)
	return out
}
