package chat

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a referenced message or participant is not held locally.
var ErrNotFound = errors.New("not found")

// Message is one entry in the conversation timeline. Identity is ID; two
// messages with the same ID are the same message regardless of content.
// SentAt and UpdatedAt are epoch milliseconds as delivered by the server.
type Message struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	AuthorID    string       `json:"authorId"`
	SentAt      int64        `json:"sentAt"`
	UpdatedAt   int64        `json:"updatedAt"`
	Reactions   []Reaction   `json:"reactions,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	// ReplyToID references another message by id. It is resolved through the
	// store when rendering, never embedded.
	ReplyToID string `json:"replyToId,omitempty"`
}

// Reaction is a participant's short symbolic response to a message.
type Reaction struct {
	ID            string `json:"id"`
	ParticipantID string `json:"participantId"`
	Value         string `json:"value"`
}

// Attachment is media embedded in a message.
type Attachment struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// AspectRatio returns width/height, or 0 when the height is unknown.
func (a Attachment) AspectRatio() float64 {
	if a.Height <= 0 {
		return 0
	}
	return float64(a.Width) / float64(a.Height)
}

// SentTime converts SentAt to a time.Time.
func (m Message) SentTime() time.Time {
	return time.UnixMilli(m.SentAt)
}

// UpdatedTime converts UpdatedAt to a time.Time.
func (m Message) UpdatedTime() time.Time {
	return time.UnixMilli(m.UpdatedAt)
}

// Edited reports whether the message was modified after it was sent.
func (m Message) Edited() bool {
	return m.UpdatedAt > m.SentAt
}

// Validate checks the structural invariants of a message.
func (m Message) Validate() error {
	if m.ID == "" {
		return errors.New("message id is required")
	}
	if m.UpdatedAt < m.SentAt {
		return fmt.Errorf("message %s: updatedAt %d precedes sentAt %d", m.ID, m.UpdatedAt, m.SentAt)
	}
	for _, r := range m.Reactions {
		if r.ID == "" {
			return fmt.Errorf("message %s: reaction id is required", m.ID)
		}
	}
	for _, a := range m.Attachments {
		if a.ID == "" {
			return fmt.Errorf("message %s: attachment id is required", m.ID)
		}
	}
	return nil
}

// Clone returns a copy that shares no slice memory with m.
func (m Message) Clone() Message {
	if m.Reactions != nil {
		m.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	if m.Attachments != nil {
		m.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return m
}
