// Package syncer drives the store from the remote source: an initial full
// load, then a recurring poll that either merges deltas or, when the server's
// session marker changes, reloads everything.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/chatsync/internal/metrics"
	"github.com/zhouzirui/chatsync/internal/model/chat"
	"github.com/zhouzirui/chatsync/internal/remote"
	chatservice "github.com/zhouzirui/chatsync/internal/service/chat"
)

// DefaultInterval is the poll cadence.
const DefaultInterval = 3000 * time.Millisecond

var (
	// ErrNotReady is returned by Tick and Start before a successful load.
	ErrNotReady = errors.New("sync engine is not ready")
	// ErrTickInFlight is returned when a tick is requested while another
	// tick or load is still running. The request is dropped, not queued.
	ErrTickInFlight = errors.New("sync tick already in flight")
)

// Config holds optional engine settings.
type Config struct {
	// Interval between poll ticks. Zero means DefaultInterval.
	Interval time.Duration
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// Now is the clock used for sync timestamps. If nil, time.Now is used.
	Now func() time.Time
}

// Engine owns the sync state machine for one store.
type Engine struct {
	source   remote.Source
	store    *chatservice.Store
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	// work is held for the whole of a load or tick so they never overlap.
	work sync.Mutex

	mu      sync.Mutex
	state   State
	loadErr error
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an engine in the Uninitialized state.
func New(source remote.Source, store *chatservice.Store, config Config) *Engine {
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		source:   source,
		store:    store,
		interval: interval,
		logger:   logger,
		metrics:  config.Metrics,
		now:      now,
	}
}

// Status describes the engine for the local API.
type Status struct {
	State   State
	LoadErr error
	Polling bool
}

// Status returns the current state, the last load error and whether the
// poll is running.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{State: e.state, LoadErr: e.loadErr, Polling: e.cancel != nil}
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Load fetches the session marker, all messages and all participants
// concurrently and replaces the store's contents with them. On failure
// nothing is applied; an engine that was not yet Ready stays in Loading with
// the error recorded in Status. A Ready engine stays Ready and its Status is
// left untouched. Load does not retry.
func (e *Engine) Load(ctx context.Context) error {
	e.work.Lock()
	defer e.work.Unlock()

	e.mu.Lock()
	wasReady := e.state == Ready
	if !wasReady {
		e.state = Loading
	}
	e.mu.Unlock()

	e.logger.Info("loading chat")
	started := e.now()

	var marker chat.SessionMarker
	var messages []chat.Message
	var participants []chat.Participant

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		marker, err = e.source.FetchSessionMarker(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		messages, err = e.source.FetchAllMessages(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		participants, err = e.source.FetchAllParticipants(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		err = fmt.Errorf("initial load: %w", err)
		// A Ready engine keeps serving its data; the failure goes to the caller only.
		if !wasReady {
			e.mu.Lock()
			e.loadErr = err
			e.mu.Unlock()
		}
		e.metrics.Load(false)
		e.logger.Error("failed to load chat", "error", err)
		return err
	}

	result := e.store.ReplaceAll(messages, participants, marker)
	e.store.MarkSynced(started)

	e.mu.Lock()
	e.state = Ready
	e.loadErr = nil
	e.mu.Unlock()

	e.metrics.Load(true)
	e.recordStoreSize()
	e.logger.Info("chat loaded",
		"messages", len(messages),
		"participants", len(participants),
		"skipped", result.Skipped,
		"session", marker,
	)
	return nil
}

// Tick runs one reconciliation pass. If the server's session marker differs
// from the store's, everything is reloaded; otherwise message and participant
// deltas since the last successful sync are merged. The sync timestamp only
// advances when the whole tick succeeds, so a failed tick's window is asked
// for again next time.
func (e *Engine) Tick(ctx context.Context) (err error) {
	if !e.work.TryLock() {
		e.metrics.ObserveTick("skipped", 0)
		return ErrTickInFlight
	}
	defer e.work.Unlock()

	if e.State() != Ready {
		return ErrNotReady
	}

	started := e.now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		e.metrics.ObserveTick(result, e.now().Sub(started))
	}()

	marker, err := e.source.FetchSessionMarker(ctx)
	if err != nil {
		return fmt.Errorf("fetching session marker: %w", err)
	}

	if current := e.store.Marker(); marker != current {
		e.logger.Info("session changed, reloading all data", "old", current, "new", marker)
		return e.resync(ctx, marker, started)
	}

	return e.mergeDeltas(ctx, started)
}

func (e *Engine) resync(ctx context.Context, marker chat.SessionMarker, started time.Time) error {
	var messages []chat.Message
	var participants []chat.Participant

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		messages, err = e.source.FetchAllMessages(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		participants, err = e.source.FetchAllParticipants(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("reloading after session change: %w", err)
	}

	e.store.ReplaceAll(messages, participants, marker)
	e.store.MarkSynced(started)
	e.metrics.Resync()
	e.recordStoreSize()
	e.logger.Info("data reloaded after session change",
		"messages", len(messages),
		"participants", len(participants),
	)
	return nil
}

func (e *Engine) mergeDeltas(ctx context.Context, started time.Time) error {
	since := e.store.LastSync()

	var messages []chat.Message
	var participants []chat.Participant

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		messages, err = e.source.FetchMessageUpdates(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		participants, err = e.source.FetchParticipantUpdates(gctx, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fetching updates since %d: %w", since.UnixMilli(), err)
	}

	if len(messages) > 0 {
		result := e.store.MergeMessageUpdates(messages)
		e.metrics.MergedMessages(result.Inserted, result.Replaced, result.Skipped)
		e.logger.Info("received message updates",
			"count", len(messages),
			"inserted", result.Inserted,
			"replaced", result.Replaced,
			"skipped", result.Skipped,
		)
	}
	if len(participants) > 0 {
		result := e.store.MergeParticipantUpdates(participants)
		e.metrics.MergedParticipants(result.Inserted, result.Replaced, result.Skipped)
		e.logger.Info("received participant updates",
			"count", len(participants),
			"inserted", result.Inserted,
			"replaced", result.Replaced,
		)
	}
	if len(messages) > 0 || len(participants) > 0 {
		e.recordStoreSize()
	}

	e.store.MarkSynced(started)
	return nil
}

// Start begins polling every interval until Stop is called or ctx ends. It
// requires a Ready engine and is a no-op if polling is already running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Ready {
		return ErrNotReady
	}
	if e.cancel != nil {
		return nil
	}

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done

	go e.poll(pollCtx, done)
	e.logger.Info("polling started", "interval", e.interval)
	return nil
}

// Stop cancels polling and waits for the poll goroutine to exit. In-flight
// fetches are cancelled through the poll context. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	e.logger.Info("polling stopped")
}

// Reload performs a Load and, on success, starts polling. It is the retry
// entry point after a failed initial load. Polling outlives ctx's
// cancellation and ends with Stop.
func (e *Engine) Reload(ctx context.Context) error {
	if err := e.Load(ctx); err != nil {
		return err
	}
	return e.Start(context.WithoutCancel(ctx))
}

// poll runs ticks sequentially, so ticks from the schedule never overlap.
// Failures are logged and the schedule continues.
func (e *Engine) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := e.Tick(ctx)
			switch {
			case err == nil:
			case ctx.Err() != nil:
				return
			case errors.Is(err, ErrTickInFlight):
				e.logger.Debug("skipping poll tick, previous still running")
			default:
				e.logger.Warn("failed to check for updates", "error", err)
			}
		}
	}
}

func (e *Engine) recordStoreSize() {
	if e.metrics == nil {
		return
	}
	messages, participants := e.store.Counts()
	e.metrics.StoreSize(messages, participants)
}
