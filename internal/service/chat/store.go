package chat

import (
	"cmp"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/zhouzirui/chatsync/internal/model/chat"
)

// MergeResult reports what a merge did to a collection.
type MergeResult struct {
	Inserted int
	Replaced int
	// Skipped counts records that failed structural validation.
	Skipped int
}

// Changed reports whether the merge touched the collection.
func (r MergeResult) Changed() bool {
	return r.Inserted > 0 || r.Replaced > 0
}

// Store is the authoritative in-memory copy of the conversation. It is the
// only writer of its collections: the sync engine and the send path hand it
// records, rendering reads snapshots.
//
// Messages are kept sorted by descending SentAt after every mutation. Equal
// SentAt values keep their relative order across merges.
type Store struct {
	mu sync.RWMutex

	messages         []chat.Message
	messageIndex     map[string]int
	participants     []chat.Participant
	participantIndex map[string]int

	marker   chat.SessionMarker
	lastSync time.Time
	version  uint64

	subMu       sync.Mutex
	subscribers map[int]chan uint64
	nextSub     int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		messageIndex:     make(map[string]int),
		participantIndex: make(map[string]int),
		subscribers:      make(map[int]chan uint64),
	}
}

// ReplaceAll discards both collections and installs the given records and
// marker. It is used after the initial load and after a session change.
// Duplicate ids in the input collapse to the last record, kept at the
// position of the first.
func (s *Store) ReplaceAll(messages []chat.Message, participants []chat.Participant, marker chat.SessionMarker) MergeResult {
	var result MergeResult

	nextMessages := make([]chat.Message, 0, len(messages))
	nextMessageIndex := make(map[string]int, len(messages))
	for _, m := range messages {
		if m.Validate() != nil {
			result.Skipped++
			continue
		}
		if i, ok := nextMessageIndex[m.ID]; ok {
			nextMessages[i] = m.Clone()
			continue
		}
		nextMessageIndex[m.ID] = len(nextMessages)
		nextMessages = append(nextMessages, m.Clone())
		result.Inserted++
	}
	sortMessages(nextMessages)

	nextParticipants := make([]chat.Participant, 0, len(participants))
	nextParticipantIndex := make(map[string]int, len(participants))
	for _, p := range participants {
		if p.Validate() != nil {
			result.Skipped++
			continue
		}
		if i, ok := nextParticipantIndex[p.ID]; ok {
			nextParticipants[i] = p
			continue
		}
		nextParticipantIndex[p.ID] = len(nextParticipants)
		nextParticipants = append(nextParticipants, p)
		result.Inserted++
	}

	s.mu.Lock()
	s.messages = nextMessages
	s.messageIndex = indexMessages(nextMessages)
	s.participants = nextParticipants
	s.participantIndex = nextParticipantIndex
	s.marker = marker
	version := s.bumpLocked()
	s.mu.Unlock()

	s.notify(version)
	return result
}

// MergeMessageUpdates applies a batch of message updates. An update whose id
// is already held replaces the stored record wholesale; the incoming record
// wins regardless of its UpdatedAt. Unknown ids are inserted ahead of the
// existing records before the collection is re-sorted.
func (s *Store) MergeMessageUpdates(updates []chat.Message) MergeResult {
	var result MergeResult
	if len(updates) == 0 {
		return result
	}

	s.mu.Lock()
	var fresh []chat.Message
	freshIndex := make(map[string]int)
	for _, update := range updates {
		if update.Validate() != nil {
			result.Skipped++
			continue
		}
		update = update.Clone()
		if i, ok := s.messageIndex[update.ID]; ok {
			s.messages[i] = update
			result.Replaced++
			continue
		}
		if i, ok := freshIndex[update.ID]; ok {
			fresh[i] = update
			continue
		}
		freshIndex[update.ID] = len(fresh)
		fresh = append(fresh, update)
		result.Inserted++
	}

	if !result.Changed() {
		s.mu.Unlock()
		return result
	}

	merged := make([]chat.Message, 0, len(fresh)+len(s.messages))
	// Each new record goes to the front, so the last one in the batch leads.
	for i := len(fresh) - 1; i >= 0; i-- {
		merged = append(merged, fresh[i])
	}
	merged = append(merged, s.messages...)
	sortMessages(merged)

	s.messages = merged
	s.messageIndex = indexMessages(merged)
	version := s.bumpLocked()
	s.mu.Unlock()

	s.notify(version)
	return result
}

// MergeParticipantUpdates replaces known participants in place and appends
// unknown ones. Participants keep insertion order.
func (s *Store) MergeParticipantUpdates(updates []chat.Participant) MergeResult {
	var result MergeResult
	if len(updates) == 0 {
		return result
	}

	s.mu.Lock()
	for _, update := range updates {
		if update.Validate() != nil {
			result.Skipped++
			continue
		}
		if i, ok := s.participantIndex[update.ID]; ok {
			s.participants[i] = update
			result.Replaced++
			continue
		}
		s.participantIndex[update.ID] = len(s.participants)
		s.participants = append(s.participants, update)
		result.Inserted++
	}

	if !result.Changed() {
		s.mu.Unlock()
		return result
	}
	version := s.bumpLocked()
	s.mu.Unlock()

	s.notify(version)
	return result
}

// InsertLocalMessage adds a server-confirmed message produced by this client.
// It is a no-op when the id is already present, which happens when a delta
// delivered the same message first. Reports whether the message was added.
func (s *Store) InsertLocalMessage(message chat.Message) bool {
	if message.Validate() != nil {
		return false
	}

	s.mu.Lock()
	if _, ok := s.messageIndex[message.ID]; ok {
		s.mu.Unlock()
		return false
	}

	merged := make([]chat.Message, 0, len(s.messages)+1)
	merged = append(merged, message.Clone())
	merged = append(merged, s.messages...)
	sortMessages(merged)

	s.messages = merged
	s.messageIndex = indexMessages(merged)
	version := s.bumpLocked()
	s.mu.Unlock()

	s.notify(version)
	return true
}

// MarkSynced records the time of the last successful sync.
func (s *Store) MarkSynced(at time.Time) {
	s.mu.Lock()
	s.lastSync = at
	s.mu.Unlock()
}

// Marker returns the session marker the current collections belong to.
func (s *Store) Marker() chat.SessionMarker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marker
}

// LastSync returns the time of the last successful sync.
func (s *Store) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// Version increases on every mutation that changes the collections.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Counts returns the number of held messages and participants.
func (s *Store) Counts() (messages, participants int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages), len(s.participants)
}

// Messages returns the timeline, newest first.
func (s *Store) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.messages)
}

// Participants returns participants in insertion order.
func (s *Store) Participants() []chat.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.participants)
}

// Message looks up a message by id.
func (s *Store) Message(id string) (chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.messageIndex[id]
	if !ok {
		return chat.Message{}, chat.ErrNotFound
	}
	return s.messages[i].Clone(), nil
}

// Participant looks up a participant by id.
func (s *Store) Participant(id string) (chat.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.participantIndex[id]
	if !ok {
		return chat.Participant{}, chat.ErrNotFound
	}
	return s.participants[i], nil
}

// Snapshot returns a consistent copy of the whole store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Version:          s.version,
		Marker:           s.marker,
		LastSync:         s.lastSync,
		Messages:         cloneMessages(s.messages),
		Participants:     slices.Clone(s.participants),
		messageIndex:     maps.Clone(s.messageIndex),
		participantIndex: maps.Clone(s.participantIndex),
	}
}

// Subscribe returns a channel that receives the store version after every
// change. Notifications coalesce: a slow reader sees the latest version, not
// every one. The returned func unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) bumpLocked() uint64 {
	s.version++
	return s.version
}

func (s *Store) notify(version uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- version:
		default:
			// Drop the stale pending version and replace it.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- version:
			default:
			}
		}
	}
}

// Snapshot is an immutable view of the store at one version.
type Snapshot struct {
	Version      uint64
	Marker       chat.SessionMarker
	LastSync     time.Time
	Messages     []chat.Message
	Participants []chat.Participant

	messageIndex     map[string]int
	participantIndex map[string]int
}

// Message looks up a message in the snapshot.
func (s Snapshot) Message(id string) (chat.Message, bool) {
	i, ok := s.messageIndex[id]
	if !ok {
		return chat.Message{}, false
	}
	return s.Messages[i], true
}

// Participant looks up a participant in the snapshot.
func (s Snapshot) Participant(id string) (chat.Participant, bool) {
	i, ok := s.participantIndex[id]
	if !ok {
		return chat.Participant{}, false
	}
	return s.Participants[i], true
}

func sortMessages(messages []chat.Message) {
	slices.SortStableFunc(messages, func(a, b chat.Message) int {
		return cmp.Compare(b.SentAt, a.SentAt)
	})
}

func indexMessages(messages []chat.Message) map[string]int {
	index := make(map[string]int, len(messages))
	for i, m := range messages {
		index[m.ID] = i
	}
	return index
}

func cloneMessages(messages []chat.Message) []chat.Message {
	out := make([]chat.Message, len(messages))
	for i, m := range messages {
		out[i] = m.Clone()
	}
	return out
}
