// Package dummy is an in-memory chat server speaking the same API as the real
// one. It backs `chatsync dummy-server` and end-to-end tests.
package dummy

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/chatsync/internal/model/chat"
)

// SelfID is the author id given to messages posted through NewMessage.
const SelfID = "you"

// ErrEmptyText is returned by NewMessage for blank text.
var ErrEmptyText = errors.New("text is required")

// Config holds optional service settings.
type Config struct {
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Now is the server clock. If nil, time.Now is used.
	Now func() time.Time
	// Empty skips seeding, leaving only the self participant.
	Empty bool
}

// Service holds one session's messages and participants.
type Service struct {
	mu           sync.RWMutex
	session      chat.SessionMarker
	messages     []chat.Message
	messageIndex map[string]int
	participants []chat.Participant
	partIndex    map[string]int
	lastStamp    int64

	logger *slog.Logger
	now    func() time.Time
	empty  bool
}

// New creates a seeded service with a fresh session.
func New(config Config) *Service {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{logger: logger, now: now, empty: config.Empty}
	s.Reset()
	return s
}

// Reset starts a new session: a new session uuid and freshly seeded data
// with new ids. Clients notice the marker change and reload everything.
func (s *Service) Reset() chat.SessionMarker {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = chat.SessionMarker(uuid.NewString())
	s.messages = nil
	s.messageIndex = make(map[string]int)
	s.participants = nil
	s.partIndex = make(map[string]int)

	s.addParticipantLocked(chat.Participant{ID: SelfID, Name: "You"})
	if !s.empty {
		s.seedLocked()
	}

	s.logger.Info("dummy session reset", "session", s.session, "messages", len(s.messages))
	return s.session
}

func (s *Service) seedLocked() {
	ids := make(map[string]string)
	for _, p := range seedParticipants() {
		id := uuid.NewString()
		ids[p.key] = id
		s.addParticipantLocked(chat.Participant{
			ID:        id,
			Name:      p.name,
			AvatarURL: p.avatar,
			Email:     p.key + "@tavern.example",
			Bio:       p.bio,
			JobTitle:  p.jobTitle,
		})
	}

	var seeded []string
	for _, m := range seedMessages() {
		message := chat.Message{ID: uuid.NewString(), Text: m.text, AuthorID: ids[m.author]}
		if m.replyTo >= 0 && m.replyTo < len(seeded) {
			message.ReplyToID = seeded[m.replyTo]
		}
		if m.image {
			message.Attachments = []chat.Attachment{{
				ID:     uuid.NewString(),
				Type:   "image",
				URL:    "https://dummyimage.com/640x480/222/fff&text=prototype",
				Width:  640,
				Height: 480,
			}}
		}
		s.addMessageLocked(message)
		seeded = append(seeded, message.ID)
	}
}

// Session returns the current session marker.
func (s *Service) Session() chat.SessionMarker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Messages returns every message in creation order.
func (s *Service) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.messages)
}

// Participants returns every participant in creation order.
func (s *Service) Participants() []chat.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.Participant(nil), s.participants...)
}

// MessagesUpdatedSince returns messages created or modified at or after since.
func (s *Service) MessagesUpdatedSince(since int64) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Message, 0)
	for _, m := range s.messages {
		if m.UpdatedAt >= since {
			out = append(out, m.Clone())
		}
	}
	return out
}

// ParticipantsUpdatedSince returns participants created or modified at or after since.
func (s *Service) ParticipantsUpdatedSince(since int64) []chat.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Participant, 0)
	for _, p := range s.participants {
		if p.UpdatedAt >= since {
			out = append(out, p)
		}
	}
	return out
}

// Message looks up one message.
func (s *Service) Message(id string) (chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.messageIndex[id]
	if !ok {
		return chat.Message{}, fmt.Errorf("message %s: %w", id, chat.ErrNotFound)
	}
	return s.messages[i].Clone(), nil
}

// NewMessage posts text as the self participant.
func (s *Service) NewMessage(text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, ErrEmptyText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	message := s.addMessageLocked(chat.Message{ID: uuid.NewString(), Text: text, AuthorID: SelfID})
	return message.Clone(), nil
}

// PostAs posts text as another participant, simulating someone else talking.
func (s *Service) PostAs(participantID, text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, ErrEmptyText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.partIndex[participantID]; !ok {
		return chat.Message{}, fmt.Errorf("participant %s: %w", participantID, chat.ErrNotFound)
	}
	message := s.addMessageLocked(chat.Message{ID: uuid.NewString(), Text: text, AuthorID: participantID})
	return message.Clone(), nil
}

// EditMessage replaces a message's text and bumps its UpdatedAt.
func (s *Service) EditMessage(id, text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, ErrEmptyText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.messageIndex[id]
	if !ok {
		return chat.Message{}, fmt.Errorf("message %s: %w", id, chat.ErrNotFound)
	}
	s.messages[i].Text = text
	s.messages[i].UpdatedAt = s.stampLocked()
	return s.messages[i].Clone(), nil
}

// AddReaction attaches a reaction to a message and bumps its UpdatedAt.
func (s *Service) AddReaction(messageID, participantID, value string) (chat.Message, error) {
	if strings.TrimSpace(value) == "" {
		return chat.Message{}, errors.New("reaction value is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.messageIndex[messageID]
	if !ok {
		return chat.Message{}, fmt.Errorf("message %s: %w", messageID, chat.ErrNotFound)
	}
	if _, ok := s.partIndex[participantID]; !ok {
		return chat.Message{}, fmt.Errorf("participant %s: %w", participantID, chat.ErrNotFound)
	}

	s.messages[i].Reactions = append(s.messages[i].Reactions, chat.Reaction{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		Value:         value,
	})
	s.messages[i].UpdatedAt = s.stampLocked()
	return s.messages[i].Clone(), nil
}

// ParticipantPatch lists the profile fields an update may change. Nil
// fields are left alone.
type ParticipantPatch struct {
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatarUrl"`
	Bio       *string `json:"bio"`
	JobTitle  *string `json:"jobTitle"`
}

// UpdateParticipant applies patch and bumps the participant's UpdatedAt.
func (s *Service) UpdateParticipant(id string, patch ParticipantPatch) (chat.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.partIndex[id]
	if !ok {
		return chat.Participant{}, fmt.Errorf("participant %s: %w", id, chat.ErrNotFound)
	}

	p := &s.participants[i]
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.AvatarURL != nil {
		p.AvatarURL = *patch.AvatarURL
	}
	if patch.Bio != nil {
		p.Bio = *patch.Bio
	}
	if patch.JobTitle != nil {
		p.JobTitle = *patch.JobTitle
	}
	p.UpdatedAt = s.stampLocked()
	return *p, nil
}

func (s *Service) addMessageLocked(message chat.Message) chat.Message {
	stamp := s.stampLocked()
	message.SentAt = stamp
	message.UpdatedAt = stamp
	s.messageIndex[message.ID] = len(s.messages)
	s.messages = append(s.messages, message)
	return message
}

func (s *Service) addParticipantLocked(participant chat.Participant) {
	stamp := s.stampLocked()
	participant.CreatedAt = stamp
	participant.UpdatedAt = stamp
	s.partIndex[participant.ID] = len(s.participants)
	s.participants = append(s.participants, participant)
}

// stampLocked returns the current time in epoch millis, strictly increasing
// across calls so every write has a distinct timestamp.
func (s *Service) stampLocked() int64 {
	stamp := s.now().UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp
	return stamp
}

func cloneAll(messages []chat.Message) []chat.Message {
	out := make([]chat.Message, len(messages))
	for i, m := range messages {
		out[i] = m.Clone()
	}
	return out
}
