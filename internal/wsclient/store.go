package wsclient

import (
	"sort"
	"sync"

	"gopherchat/backend/internal/models"
)

// Store is the client-side optimistic message state: one ordered list per
// peer, deduplicated by upsert on tempId/id, never by position. A local
// provisional entry (tempId only, status sending) and the server-confirmed
// copy (durable id, same tempId) always collapse into one record.
type Store struct {
	mu            sync.RWMutex
	conversations map[string][]models.MessagePayload
}

func NewStore() *Store {
	return &Store{conversations: make(map[string][]models.MessagePayload)}
}

// Upsert inserts or updates a message in a peer's list. Matching is by
// tempId first, durable id as fallback; a repeated delivery of the same
// message is a pure update and never grows the list. The list is kept
// ordered by timestamp, ties broken by id.
func (s *Store) Upsert(peerID string, msg models.MessagePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.conversations[peerID]
	idx := -1
	for i := range list {
		if msg.TempID != "" && list[i].TempID == msg.TempID {
			idx = i
			break
		}
		if msg.ID != "" && list[i].ID == msg.ID {
			idx = i
			break
		}
	}

	if idx >= 0 {
		// Update in place; the confirmed copy's id and server timestamp
		// replace the provisional ones.
		list[idx] = msg
	} else {
		list = append(list, msg)
	}

	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	s.conversations[peerID] = list
}

// Merge upserts a fetched history page. Live messages received before the
// fetch completed are preserved, not duplicated.
func (s *Store) Merge(peerID string, history []models.MessagePayload) {
	for _, msg := range history {
		s.Upsert(peerID, msg)
	}
}

// SetStatus updates the delivery status of the entry with the given
// tempId. Returns false when no such entry exists.
func (s *Store) SetStatus(peerID, tempID, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.conversations[peerID]
	for i := range list {
		if list[i].TempID == tempID {
			list[i].Status = status
			return true
		}
	}
	return false
}

// Messages returns a copy of a peer's ordered list.
func (s *Store) Messages(peerID string) []models.MessagePayload {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.conversations[peerID]
	out := make([]models.MessagePayload, len(list))
	copy(out, list)
	return out
}

// Len returns the number of messages tracked for a peer.
func (s *Store) Len(peerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations[peerID])
}
