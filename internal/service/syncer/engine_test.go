package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/chatsync/internal/model/chat"
	"github.com/zhouzirui/chatsync/internal/remote"
	chatservice "github.com/zhouzirui/chatsync/internal/service/chat"
)

// fakeSource is an in-memory remote.Source with switchable failures.
type fakeSource struct {
	mu sync.Mutex

	marker             chat.SessionMarker
	messages           []chat.Message
	participants       []chat.Participant
	messageUpdates     []chat.Message
	participantUpdates []chat.Participant

	markerErr  error
	allErr     error
	updatesErr error

	// block, when set, stalls FetchSessionMarker until closed.
	block chan struct{}

	markerCalls  int
	allCalls     int
	updatesSince []time.Time
}

func (f *fakeSource) FetchSessionMarker(ctx context.Context) (chat.SessionMarker, error) {
	f.mu.Lock()
	block := f.block
	f.markerCalls++
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markerErr != nil {
		return "", f.markerErr
	}
	return f.marker, nil
}

func (f *fakeSource) FetchAllMessages(context.Context) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allCalls++
	if f.allErr != nil {
		return nil, f.allErr
	}
	return append([]chat.Message(nil), f.messages...), nil
}

func (f *fakeSource) FetchAllParticipants(context.Context) ([]chat.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allErr != nil {
		return nil, f.allErr
	}
	return append([]chat.Participant(nil), f.participants...), nil
}

func (f *fakeSource) FetchMessageUpdates(_ context.Context, since time.Time) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatesSince = append(f.updatesSince, since)
	if f.updatesErr != nil {
		return nil, f.updatesErr
	}
	return append([]chat.Message(nil), f.messageUpdates...), nil
}

func (f *fakeSource) FetchParticipantUpdates(context.Context, time.Time) ([]chat.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updatesErr != nil {
		return nil, f.updatesErr
	}
	return append([]chat.Participant(nil), f.participantUpdates...), nil
}

func (f *fakeSource) SubmitMessage(context.Context, string) (chat.Message, error) {
	return chat.Message{}, errors.New("not used")
}

func (f *fakeSource) set(fn func(f *fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeSource) calls() (marker, all int, since []time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markerCalls, f.allCalls, append([]time.Time(nil), f.updatesSince...)
}

// stepClock advances one second per reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func message(id string, sentAt int64, text string) chat.Message {
	return chat.Message{ID: id, Text: text, AuthorID: "p1", SentAt: sentAt, UpdatedAt: sentAt}
}

func messageIDs(messages []chat.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

func newTestEngine(source *fakeSource, interval time.Duration) (*Engine, *chatservice.Store) {
	store := chatservice.NewStore()
	clock := &stepClock{now: time.UnixMilli(1_000_000)}
	engine := New(source, store, Config{
		Interval: interval,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      clock.Now,
	})
	return engine, store
}

func unavailable(op string) error {
	return &remote.Error{Op: op, Kind: remote.ErrUnavailable}
}

func TestLoadReplacesStoreAndBecomesReady(t *testing.T) {
	source := &fakeSource{
		marker:       "s1",
		messages:     []chat.Message{message("m1", 100, "a"), message("m2", 200, "b")},
		participants: []chat.Participant{{ID: "p1", Name: "Ann"}},
	}
	engine, store := newTestEngine(source, time.Hour)

	if engine.State() != Uninitialized {
		t.Fatalf("unexpected initial state %v", engine.State())
	}
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if engine.State() != Ready {
		t.Fatalf("expected ready, got %v", engine.State())
	}
	if got := messageIDs(store.Messages()); !reflect.DeepEqual(got, []string{"m2", "m1"}) {
		t.Fatalf("unexpected order: %v", got)
	}
	if store.Marker() != "s1" {
		t.Fatalf("unexpected marker %q", store.Marker())
	}
	if store.LastSync().IsZero() {
		t.Fatal("expected last sync to be recorded")
	}
}

func TestLoadFailureStaysLoadingWithoutRetry(t *testing.T) {
	source := &fakeSource{marker: "s1", allErr: unavailable("fetch messages")}
	engine, store := newTestEngine(source, time.Hour)

	err := engine.Load(context.Background())
	if !errors.Is(err, remote.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}

	status := engine.Status()
	if status.State != Loading {
		t.Fatalf("expected loading, got %v", status.State)
	}
	if status.LoadErr == nil {
		t.Fatal("expected load error to be recorded")
	}
	if store.Version() != 0 {
		t.Fatal("store mutated by failed load")
	}
	if _, all, _ := source.calls(); all != 1 {
		t.Fatalf("expected a single attempt, got %d", all)
	}
	if err := engine.Start(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady from Start, got %v", err)
	}
}

func TestReloadRecoversAfterFailedLoad(t *testing.T) {
	source := &fakeSource{marker: "s1", allErr: unavailable("fetch messages")}
	engine, _ := newTestEngine(source, time.Hour)
	defer engine.Stop()

	if err := engine.Load(context.Background()); err == nil {
		t.Fatal("expected failure")
	}

	source.set(func(f *fakeSource) { f.allErr = nil })
	if err := engine.Reload(context.Background()); err != nil {
		t.Fatalf("Reload err: %v", err)
	}

	status := engine.Status()
	if status.State != Ready || status.LoadErr != nil || !status.Polling {
		t.Fatalf("unexpected status after reload: %+v", status)
	}
}

func TestTickBeforeReady(t *testing.T) {
	engine, _ := newTestEngine(&fakeSource{}, time.Hour)
	if err := engine.Tick(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestTickSessionChangeReplacesEverything(t *testing.T) {
	source := &fakeSource{
		marker:   "A",
		messages: []chat.Message{message("stale", 100, "old epoch")},
	}
	engine, store := newTestEngine(source, time.Hour)
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("Load err: %v", err)
	}

	source.set(func(f *fakeSource) {
		f.marker = "B"
		f.messages = []chat.Message{message("fresh", 300, "new epoch")}
	})
	if err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("Tick err: %v", err)
	}

	if _, err := store.Message("stale"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected stale message removed, got %v", err)
	}
	if got := messageIDs(store.Messages()); !reflect.DeepEqual(got, []string{"fresh"}) {
		t.Fatalf("unexpected messages: %v", got)
	}
	if store.Marker() != "B" {
		t.Fatalf("expected marker B, got %q", store.Marker())
	}
	if _, _, since := source.calls(); len(since) != 0 {
		t.Fatal("session change must not fetch deltas")
	}
}

func TestTickMergesDeltasSinceLastSync(t *testing.T) {
	source := &fakeSource{
		marker:   "s1",
		messages: []chat.Message{message("m1", 100, "hello"), message("m2", 200, "world")},
	}
	engine, store := newTestEngine(source, time.Hour)
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("Load err: %v", err)
	}
	loadedAt := store.LastSync()

	source.set(func(f *fakeSource) {
		f.messageUpdates = []chat.Message{{ID: "m1", Text: "edited", AuthorID: "p1", SentAt: 100, UpdatedAt: 150}}
		f.participantUpdates = []chat.Participant{{ID: "p9", Name: "New"}}
	})
	if err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("Tick err: %v", err)
	}

	_, _, since := source.calls()
	if len(since) != 1 || !since[0].Equal(loadedAt) {
		t.Fatalf("expected updates since %v, got %v", loadedAt, since)
	}

	messages := store.Messages()
	if got := messageIDs(messages); !reflect.DeepEqual(got, []string{"m2", "m1"}) {
		t.Fatalf("unexpected order: %v", got)
	}
	if messages[1].Text != "edited" {
		t.Fatalf("expected edit to be merged, got %q", messages[1].Text)
	}
	if _, err := store.Participant("p9"); err != nil {
		t.Fatalf("expected merged participant: %v", err)
	}
	if !store.LastSync().After(loadedAt) {
		t.Fatal("expected last sync to advance")
	}
}

func TestTickEmptyDeltaIsNoOp(t *testing.T) {
	source := &fakeSource{marker: "s1", messages: []chat.Message{message("m1", 100, "a")}}
	engine, store := newTestEngine(source, time.Hour)
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("Load err: %v", err)
	}
	version := store.Version()

	if err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("Tick err: %v", err)
	}
	if store.Version() != version {
		t.Fatal("empty delta changed the store")
	}
}

func TestFailedTickKeepsSyncWindow(t *testing.T) {
	source := &fakeSource{marker: "s1", messages: []chat.Message{message("m1", 100, "a")}}
	engine, store := newTestEngine(source, time.Hour)
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("Load err: %v", err)
	}
	loadedAt := store.LastSync()
	before := store.Messages()

	source.set(func(f *fakeSource) { f.updatesErr = unavailable("fetch message updates") })
	if err := engine.Tick(context.Background()); !errors.Is(err, remote.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if !store.LastSync().Equal(loadedAt) {
		t.Fatal("failed tick advanced the sync timestamp")
	}
	if !reflect.DeepEqual(store.Messages(), before) {
		t.Fatal("failed tick changed the store")
	}
	if engine.State() != Ready {
		t.Fatalf("failed tick changed state to %v", engine.State())
	}

	source.set(func(f *fakeSource) { f.updatesErr = nil })
	if err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("Tick err: %v", err)
	}
	_, _, since := source.calls()
	if len(since) != 2 || !since[1].Equal(loadedAt) {
		t.Fatalf("expected retry of the same window %v, got %v", loadedAt, since)
	}
}

func TestTickSessionChangeReloadFailureRetries(t *testing.T) {
	source := &fakeSource{
		marker:       "A",
		messages:     []chat.Message{message("old", 100, "before reset")},
		participants: []chat.Participant{{ID: "p1", Name: "Ann"}},
	}
	engine, store := newTestEngine(source, time.Hour)
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("Load err: %v", err)
	}
	loadedAt := store.LastSync()

	source.set(func(f *fakeSource) {
		f.marker = "B"
		f.messages = []chat.Message{message("new", 500, "after reset")}
		f.allErr = unavailable("fetch messages")
	})
	if err := engine.Tick(context.Background()); !errors.Is(err, remote.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if store.Marker() != "A" {
		t.Fatalf("failed reload installed marker %q", store.Marker())
	}
	if got := messageIDs(store.Messages()); !reflect.DeepEqual(got, []string{"old"}) {
		t.Fatalf("failed reload changed messages: %v", got)
	}
	if !store.LastSync().Equal(loadedAt) {
		t.Fatal("failed reload advanced the sync timestamp")
	}
	if _, _, since := source.calls(); len(since) != 0 {
		t.Fatalf("deltas fetched during a session change: %v", since)
	}

	source.set(func(f *fakeSource) { f.allErr = nil })
	if err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("retry Tick err: %v", err)
	}
	if store.Marker() != "B" {
		t.Fatalf("expected marker B after retry, got %q", store.Marker())
	}
	if got := messageIDs(store.Messages()); !reflect.DeepEqual(got, []string{"new"}) {
		t.Fatalf("unexpected messages after retry: %v", got)
	}
	if !store.LastSync().After(loadedAt) {
		t.Fatal("successful reload did not advance the sync timestamp")
	}
}

func TestFailedReloadOnReadyEngineKeepsStatusClean(t *testing.T) {
	source := &fakeSource{marker: "s1", messages: []chat.Message{message("m1", 100, "a")}}
	engine, store := newTestEngine(source, time.Hour)
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("Load err: %v", err)
	}

	source.set(func(f *fakeSource) { f.allErr = unavailable("fetch messages") })
	if err := engine.Load(context.Background()); !errors.Is(err, remote.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}

	status := engine.Status()
	if status.State != Ready {
		t.Fatalf("expected engine to stay ready, got %v", status.State)
	}
	if status.LoadErr != nil {
		t.Fatalf("ready engine reports stale load error %v", status.LoadErr)
	}
	if got := messageIDs(store.Messages()); !reflect.DeepEqual(got, []string{"m1"}) {
		t.Fatalf("failed reload changed messages: %v", got)
	}
}

func TestTickDoesNotOverlap(t *testing.T) {
	source := &fakeSource{marker: "s1"}
	engine, _ := newTestEngine(source, time.Hour)
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("Load err: %v", err)
	}

	block := make(chan struct{})
	source.set(func(f *fakeSource) { f.block = block })

	firstDone := make(chan error, 1)
	go func() { firstDone <- engine.Tick(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for {
		if marker, _, _ := source.calls(); marker >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first tick never reached the marker fetch")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := engine.Tick(context.Background()); !errors.Is(err, ErrTickInFlight) {
		t.Fatalf("expected ErrTickInFlight, got %v", err)
	}

	close(block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first tick err: %v", err)
	}
}

func TestPollingSurvivesFailuresAndStops(t *testing.T) {
	source := &fakeSource{marker: "s1"}
	engine, _ := newTestEngine(source, 5*time.Millisecond)
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("Load err: %v", err)
	}

	source.set(func(f *fakeSource) { f.markerErr = unavailable("fetch session marker") })
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("second Start err: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if marker, _, _ := source.calls(); marker >= 4 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("polling stopped after failures")
		case <-time.After(5 * time.Millisecond):
		}
	}

	engine.Stop()
	engine.Stop()
	if engine.Status().Polling {
		t.Fatal("expected polling to be stopped")
	}

	stopped, _, _ := source.calls()
	time.Sleep(30 * time.Millisecond)
	if after, _, _ := source.calls(); after != stopped {
		t.Fatalf("ticks continued after Stop: %d -> %d", stopped, after)
	}
}
