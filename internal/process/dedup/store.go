// Package dedup tracks which source messages and albums were already relayed.
//
// State lives in memory only. Each key set is bounded: once it reaches its
// capacity it is swapped for an empty one, so a relayed message may be relayed
// again after a reset.
package dedup

import "sync"

const (
	// DefaultMaxMessages bounds the message key set.
	DefaultMaxMessages = 100_000
	// DefaultMaxGroups bounds the album key set.
	DefaultMaxGroups = 50_000
)

type key struct {
	chatID int64
	id     int64
}

type keySet struct {
	capacity int
	keys     map[key]struct{}
	resets   int
}

func newKeySet(capacity int) *keySet {
	return &keySet{capacity: capacity, keys: make(map[key]struct{})}
}

func (s *keySet) has(k key) bool {
	_, ok := s.keys[k]
	return ok
}

func (s *keySet) mark(k key) {
	if s.has(k) {
		return
	}

	if len(s.keys) >= s.capacity {
		s.keys = make(map[key]struct{})
		s.resets++
	}

	s.keys[k] = struct{}{}
}

// Store is a concurrency-safe set of relayed message ids and album group ids.
type Store struct {
	mu       sync.Mutex
	messages *keySet
	groups   *keySet
}

// Stats reports the current set sizes and how often each was reset.
type Stats struct {
	Messages      int
	Groups        int
	MessageResets int
	GroupResets   int
}

// New creates a Store. Non-positive capacities fall back to the defaults.
func New(maxMessages, maxGroups int) *Store {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}

	if maxGroups <= 0 {
		maxGroups = DefaultMaxGroups
	}

	return &Store{
		messages: newKeySet(maxMessages),
		groups:   newKeySet(maxGroups),
	}
}

// SeenMessage reports whether (chatID, id) was seen before and marks it seen.
func (s *Store) SeenMessage(chatID int64, id int) bool {
	k := key{chatID: chatID, id: int64(id)}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.messages.has(k) {
		return true
	}

	s.messages.mark(k)

	return false
}

// SeenAlbum reports whether the album group or any of its message ids was
// seen before. The group and every id are marked seen either way.
func (s *Store) SeenAlbum(chatID, groupedID int64, ids []int) bool {
	gk := key{chatID: chatID, id: groupedID}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := groupedID != 0 && s.groups.has(gk)

	for _, id := range ids {
		if s.messages.has(key{chatID: chatID, id: int64(id)}) {
			seen = true
			break
		}
	}

	if groupedID != 0 {
		s.groups.mark(gk)
	}

	for _, id := range ids {
		s.messages.mark(key{chatID: chatID, id: int64(id)})
	}

	return seen
}

// Len returns the number of tracked message and group keys.
func (s *Store) Len() (messages, groups int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.messages.keys), len(s.groups.keys)
}

// Stats returns a snapshot of the store sizes.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Messages:      len(s.messages.keys),
		Groups:        len(s.groups.keys),
		MessageResets: s.messages.resets,
		GroupResets:   s.groups.resets,
	}
}
