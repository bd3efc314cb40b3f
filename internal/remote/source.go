// Package remote talks to the chat server. It defines the Source contract the
// sync engine and send path depend on, and an HTTP implementation of it.
//
// Every operation is side-effect free on local state: callers merge results
// into the store themselves. Failures are reported as *Error values that match
// ErrUnavailable or ErrRejected under errors.Is. Nothing is retried here.
package remote

import (
	"context"
	"time"

	"github.com/zhouzirui/chatsync/internal/model/chat"
)

// Source is the server as seen by the sync engine.
type Source interface {
	// FetchSessionMarker returns the server's current data epoch.
	FetchSessionMarker(ctx context.Context) (chat.SessionMarker, error)

	// FetchAllMessages returns every message, in no particular order.
	FetchAllMessages(ctx context.Context) ([]chat.Message, error)

	// FetchAllParticipants returns every participant.
	FetchAllParticipants(ctx context.Context) ([]chat.Participant, error)

	// FetchMessageUpdates returns messages created or modified at or after since.
	FetchMessageUpdates(ctx context.Context, since time.Time) ([]chat.Message, error)

	// FetchParticipantUpdates returns participants created or modified at or after since.
	FetchParticipantUpdates(ctx context.Context, since time.Time) ([]chat.Participant, error)

	Submitter
}

// Submitter posts new messages. The server assigns id and timestamps.
type Submitter interface {
	SubmitMessage(ctx context.Context, text string) (chat.Message, error)
}

// Compile-time check: *Client implements Source.
var _ Source = (*Client)(nil)
