package message

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store. It applies the same conditional
// update rules as the database backends and is used where no database is
// wired, such as the realtime and API tests.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[string]*Message
	order []string

	// Fail, when set, is returned by every write.
	Fail error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Message)}
}

func (s *MemoryStore) Insert(_ context.Context, m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Status == "" {
		m.Status = StatusSent
	}
	m.ID = uuid.NewString()
	cp := *m
	s.byID[m.ID] = &cp
	s.order = append(s.order, m.ID)
	return nil
}

// Get returns a copy of the stored message.
func (s *MemoryStore) Get(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// Len reports how many messages are stored.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *MemoryStore) ListByProduct(_ context.Context, productID string) ([]Message, error) {
	return s.filter(func(m *Message) bool { return m.ProductID == productID }), nil
}

func (s *MemoryStore) ListConversation(_ context.Context, productID, userA, userB string) ([]Message, error) {
	return s.filter(func(m *Message) bool {
		if m.ProductID != productID {
			return false
		}
		return (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA)
	}), nil
}

func (s *MemoryStore) MarkDelivered(_ context.Context, receiverID string, ids []string, at time.Time) ([]Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}

	var out []Transition
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		m, ok := s.byID[id]
		if !ok || m.ReceiverID != receiverID || m.Status != StatusSent {
			continue
		}
		t := at
		m.Status = StatusDelivered
		m.DeliveredAt = &t
		out = append(out, transitionOf(m))
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, productID, senderID, readerID string, at time.Time) ([]Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}

	var out []Transition
	for _, id := range s.order {
		m := s.byID[id]
		if m.ProductID != productID || m.SenderID != senderID || m.ReceiverID != readerID || m.Read {
			continue
		}
		t := at
		m.Read = true
		m.Status = StatusRead
		m.ReadAt = &t
		out = append(out, transitionOf(m))
	}
	return out, nil
}

func (s *MemoryStore) filter(keep func(*Message) bool) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, 0)
	for _, id := range s.order {
		if m := s.byID[id]; keep(m) {
			out = append(out, *m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func transitionOf(m *Message) Transition {
	return Transition{ID: m.ID, ProductID: m.ProductID, SenderID: m.SenderID, ReceiverID: m.ReceiverID}
}
