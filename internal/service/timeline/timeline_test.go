package timeline

import (
	"testing"

	"github.com/zhouzirui/chatsync/internal/model/chat"
	chatservice "github.com/zhouzirui/chatsync/internal/service/chat"
)

func snapshotOf(messages []chat.Message, participants []chat.Participant) chatservice.Snapshot {
	store := chatservice.NewStore()
	store.ReplaceAll(messages, participants, "s1")
	return store.Snapshot()
}

func TestBuildGroupsHeadersAndFlagsOwn(t *testing.T) {
	snap := snapshotOf(
		[]chat.Message{
			{ID: "m1", Text: "hi", AuthorID: "p1", SentAt: 100, UpdatedAt: 100},
			{ID: "m2", Text: "again", AuthorID: "p1", SentAt: 200, UpdatedAt: 200},
			{ID: "m3", Text: "mine", AuthorID: "you", SentAt: 300, UpdatedAt: 350},
		},
		[]chat.Participant{{ID: "p1", Name: "Ann"}, {ID: "you", Name: "Me"}},
	)

	view := Build(snap, "")
	if len(view.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(view.Entries))
	}

	own, second, first := view.Entries[0], view.Entries[1], view.Entries[2]
	if own.Message.ID != "m3" || !own.Own || !own.ShowHeader || !own.Edited {
		t.Fatalf("unexpected own entry: %+v", own)
	}
	if second.Message.ID != "m2" || second.ShowHeader {
		t.Fatalf("expected m2 grouped under m1's header: %+v", second)
	}
	if first.Message.ID != "m1" || !first.ShowHeader || first.Own {
		t.Fatalf("unexpected oldest entry: %+v", first)
	}
	if view.Version != snap.Version {
		t.Fatalf("expected version %d, got %d", snap.Version, view.Version)
	}
}

func TestBuildSkipsUnknownAuthors(t *testing.T) {
	snap := snapshotOf(
		[]chat.Message{
			{ID: "m1", AuthorID: "ghost", SentAt: 100, UpdatedAt: 100},
			{ID: "m2", AuthorID: "nameless", SentAt: 200, UpdatedAt: 200},
			{ID: "m3", AuthorID: "p1", SentAt: 300, UpdatedAt: 300},
		},
		[]chat.Participant{{ID: "p1", Name: "Ann"}, {ID: "nameless"}},
	)

	view := Build(snap, "you")
	if len(view.Entries) != 1 || view.Entries[0].Message.ID != "m3" {
		t.Fatalf("unexpected entries: %+v", view.Entries)
	}
	if view.Hidden != 2 {
		t.Fatalf("expected 2 hidden, got %d", view.Hidden)
	}
}

func TestBuildResolvesReplies(t *testing.T) {
	snap := snapshotOf(
		[]chat.Message{
			{ID: "m1", Text: "question", AuthorID: "p1", SentAt: 100, UpdatedAt: 100},
			{ID: "m2", Text: "answer", AuthorID: "p2", SentAt: 200, UpdatedAt: 200, ReplyToID: "m1"},
			{ID: "m3", Text: "dangling", AuthorID: "p2", SentAt: 300, UpdatedAt: 300, ReplyToID: "gone"},
		},
		[]chat.Participant{{ID: "p1", Name: "Ann"}, {ID: "p2", Name: "Bob"}},
	)

	view := Build(snap, "you")
	if view.Entries[0].ReplyTo != nil {
		t.Fatalf("unresolvable reply should have no preview: %+v", view.Entries[0].ReplyTo)
	}
	reply := view.Entries[1].ReplyTo
	if reply == nil || reply.ID != "m1" || reply.Text != "question" || reply.AuthorName != "Ann" {
		t.Fatalf("unexpected reply preview: %+v", reply)
	}
}
