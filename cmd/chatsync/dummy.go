package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	dummyHandler "github.com/zhouzirui/chatsync/internal/handler/dummy"
	"github.com/zhouzirui/chatsync/internal/service/dummy"
)

func dummyServerCmd() *cobra.Command {
	var empty bool

	cmd := &cobra.Command{
		Use:   "dummy-server",
		Short: "Run an in-memory chat server for local development",
		Long: `Serves the chat server API under /api from memory, seeded with a few
participants and messages. Admin routes under /api/admin edit data and reset
the session so clients can be exercised end to end.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := dummy.New(dummy.Config{Logger: log, Empty: empty})
			log.Info("dummy chat server listening", "addr", cfg.Dummy.Addr, "session", svc.Session())
			return startServer(ctx, cfg.Dummy.Addr, dummyHandler.NewRouter(svc), log)
		},
	}

	cmd.Flags().BoolVar(&empty, "empty", false, "start without seed data")
	return cmd
}
