package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/chatsync/internal/service/chat"
	"github.com/zhouzirui/chatsync/internal/service/send"
)

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <text>",
		Short: "Post one message to the remote chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			client, err := newRemoteClient(cfg.Remote, log)
			if err != nil {
				return err
			}

			sender := send.New(client, chat.NewStore(), send.Config{Logger: log})
			message, err := sender.Submit(context.Background(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", message.ID)
			return nil
		},
	}
}
