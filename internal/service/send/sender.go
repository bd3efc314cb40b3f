// Package send implements the optimistic send path: the draft is cleared as
// soon as a message is submitted and restored if the server rejects it or
// cannot be reached. The store only ever receives the server-confirmed record.
package send

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zhouzirui/chatsync/internal/metrics"
	"github.com/zhouzirui/chatsync/internal/model/chat"
	"github.com/zhouzirui/chatsync/internal/remote"
	chatservice "github.com/zhouzirui/chatsync/internal/service/chat"
)

var (
	// ErrEmptyText is returned for text that is empty after trimming whitespace.
	ErrEmptyText = errors.New("message text is empty")
	// ErrInvalidConfirmation is returned when the server accepts a message but
	// answers with a record the store cannot hold. The draft is restored.
	ErrInvalidConfirmation = errors.New("server confirmed an invalid message")
)

// Config holds optional sender settings.
type Config struct {
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Sender submits user messages and reconciles them into the store.
type Sender struct {
	submitter remote.Submitter
	store     *chatservice.Store
	draft     *Draft
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a Sender with an empty draft.
func New(submitter remote.Submitter, store *chatservice.Store, config Config) *Sender {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		submitter: submitter,
		store:     store,
		draft:     &Draft{},
		logger:    logger,
		metrics:   config.Metrics,
	}
}

// Draft returns the sender's pending input.
func (s *Sender) Draft() *Draft {
	return s.draft
}

// Submit sends text as a new message. When the draft is empty or holds the
// same text it is cleared before the remote call and text is restored into it
// on failure. A different pending draft is never touched. On success the
// confirmed message is inserted into the store unless polling already
// delivered it.
func (s *Sender) Submit(ctx context.Context, text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		s.metrics.Send("empty")
		return chat.Message{}, ErrEmptyText
	}

	owned := s.draft.takeIf(text)
	return s.submit(ctx, text, owned)
}

// SubmitDraft submits whatever the draft currently holds.
func (s *Sender) SubmitDraft(ctx context.Context) (chat.Message, error) {
	text := s.draft.take()
	if strings.TrimSpace(text) == "" {
		s.draft.restore(text)
		s.metrics.Send("empty")
		return chat.Message{}, ErrEmptyText
	}
	return s.submit(ctx, text, true)
}

func (s *Sender) submit(ctx context.Context, text string, owned bool) (chat.Message, error) {
	created, err := s.submitter.SubmitMessage(ctx, text)
	if err == nil {
		if verr := created.Validate(); verr != nil {
			err = fmt.Errorf("%w: %w", ErrInvalidConfirmation, verr)
		}
	}
	if err != nil {
		if owned {
			s.draft.restore(text)
		}
		s.metrics.Send("error")
		s.logger.Warn("failed to send message", "error", err)
		return chat.Message{}, fmt.Errorf("sending message: %w", err)
	}

	inserted := s.store.InsertLocalMessage(created)
	s.metrics.Send("ok")
	s.logger.Info("message sent", "id", created.ID, "inserted", inserted)
	return created, nil
}
