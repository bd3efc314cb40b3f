// Package timeline turns a store snapshot into the rows a chat view renders.
package timeline

import (
	"github.com/zhouzirui/chatsync/internal/model/chat"
	chatservice "github.com/zhouzirui/chatsync/internal/service/chat"
)

// DefaultSelfID is the author id the server gives messages sent by this client.
const DefaultSelfID = "you"

// ReplyPreview is the quoted message shown above a reply.
type ReplyPreview struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	AuthorName string `json:"authorName,omitempty"`
}

// Entry is one renderable row, newest first.
type Entry struct {
	Message    chat.Message     `json:"message"`
	Author     chat.Participant `json:"author"`
	Own        bool             `json:"own"`
	ShowHeader bool             `json:"showHeader"`
	Edited     bool             `json:"edited"`
	ReplyTo    *ReplyPreview    `json:"replyTo,omitempty"`
}

// View is the timeline at one store version.
type View struct {
	Version uint64  `json:"version"`
	Entries []Entry `json:"entries"`
	// Hidden counts messages left out because their author is unknown.
	Hidden int `json:"hidden"`
}

// Build resolves authors and replies for every message in snap. Messages whose
// author is missing or has no name are left out. ShowHeader is set when the
// next older message was written by someone else, so consecutive messages from
// one author are grouped under a single header.
func Build(snap chatservice.Snapshot, selfID string) View {
	if selfID == "" {
		selfID = DefaultSelfID
	}

	view := View{
		Version: snap.Version,
		Entries: make([]Entry, 0, len(snap.Messages)),
	}

	for i, message := range snap.Messages {
		author, ok := snap.Participant(message.AuthorID)
		if !ok || author.Name == "" {
			view.Hidden++
			continue
		}

		showHeader := true
		if i+1 < len(snap.Messages) {
			showHeader = snap.Messages[i+1].AuthorID != message.AuthorID
		}

		view.Entries = append(view.Entries, Entry{
			Message:    message,
			Author:     author,
			Own:        message.AuthorID == selfID,
			ShowHeader: showHeader,
			Edited:     message.Edited(),
			ReplyTo:    replyPreview(snap, message.ReplyToID),
		})
	}

	return view
}

func replyPreview(snap chatservice.Snapshot, id string) *ReplyPreview {
	if id == "" {
		return nil
	}
	target, ok := snap.Message(id)
	if !ok {
		return nil
	}
	preview := &ReplyPreview{ID: target.ID, Text: target.Text}
	if author, ok := snap.Participant(target.AuthorID); ok {
		preview.AuthorName = author.Name
	}
	return preview
}
