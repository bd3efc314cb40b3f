package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	model "github.com/zhouzirui/chatsync/internal/model/chat"
	"github.com/zhouzirui/chatsync/internal/service/chat"
	"github.com/zhouzirui/chatsync/internal/service/syncer"
	"github.com/zhouzirui/chatsync/internal/service/timeline"
)

func tailCmd() *cobra.Command {
	var last int

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the remote chat in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := newRemoteClient(cfg.Remote, log)
			if err != nil {
				return err
			}

			store := chat.NewStore()
			engine := syncer.New(client, store, syncer.Config{Interval: cfg.Remote.PollInterval, Logger: log})

			updates, unsubscribe := store.Subscribe()
			defer unsubscribe()

			if err := engine.Load(ctx); err != nil {
				return err
			}
			if err := engine.Start(ctx); err != nil {
				return err
			}
			defer engine.Stop()

			printer := newTailPrinter(cmd.OutOrStdout(), cfg.Remote.SelfID)
			printer.print(store.Snapshot(), last)

			for {
				select {
				case <-ctx.Done():
					return nil
				case _, ok := <-updates:
					if !ok {
						return nil
					}
					printer.print(store.Snapshot(), 0)
				}
			}
		},
	}

	cmd.Flags().IntVarP(&last, "lines", "n", 20, "number of existing messages to show on start (0 shows all)")
	return cmd
}

// tailPrinter writes each message once, and again whenever it is edited.
type tailPrinter struct {
	out    io.Writer
	selfID string
	seen   map[string]int64
	marker model.SessionMarker
}

func newTailPrinter(out io.Writer, selfID string) *tailPrinter {
	return &tailPrinter{out: out, selfID: selfID, seen: make(map[string]int64)}
}

// print writes unseen or edited entries oldest first. limit caps how many
// are printed; zero means no cap.
func (p *tailPrinter) print(snap chat.Snapshot, limit int) {
	if !p.marker.IsZero() && snap.Marker != p.marker {
		fmt.Fprintf(p.out, "--- session changed (%s) ---\n", snap.Marker)
		clear(p.seen)
	}
	p.marker = snap.Marker

	view := timeline.Build(snap, p.selfID)

	var pending []timeline.Entry
	for _, entry := range view.Entries {
		if updatedAt, ok := p.seen[entry.Message.ID]; ok && updatedAt == entry.Message.UpdatedAt {
			continue
		}
		pending = append(pending, entry)
	}
	if limit > 0 && len(pending) > limit {
		for _, entry := range pending[limit:] {
			p.seen[entry.Message.ID] = entry.Message.UpdatedAt
		}
		pending = pending[:limit]
	}

	for i := len(pending) - 1; i >= 0; i-- {
		entry := pending[i]
		_, edited := p.seen[entry.Message.ID]
		p.seen[entry.Message.ID] = entry.Message.UpdatedAt

		name := entry.Author.Name
		if entry.Own {
			name += " (you)"
		}
		suffix := ""
		if edited || entry.Edited {
			suffix = fmt.Sprintf(" (edited %s)", humanize.Time(entry.Message.UpdatedTime()))
		}
		fmt.Fprintf(p.out, "[%s] %s: %s%s\n", humanize.Time(entry.Message.SentTime()), name, entry.Message.Text, suffix)
	}
}
