package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/chatsync/internal/config"
	"github.com/zhouzirui/chatsync/internal/logger"
	"github.com/zhouzirui/chatsync/internal/remote"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env, using system environment", "error", err)
	}

	configPath := flag.String("config", "", "YAML config file")
	baseURL := flag.String("url", "", "chat server API root, overrides CHAT_SERVER_URL")
	since := flag.Duration("since", time.Minute, "window for the updates endpoints")
	text := flag.String("send", "", "also submit this text as a message")
	timeout := flag.Duration("timeout", 15*time.Second, "overall timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.Remote.BaseURL = *baseURL
	}
	log := logger.Init(cfg.Log.Level, cfg.Log.Format)

	client, err := remote.NewClient(remote.ClientConfig{
		BaseURL:         cfg.Remote.BaseURL,
		HTTPClient:      &http.Client{Timeout: cfg.Remote.RequestTimeout},
		Logger:          log,
		MaxResponseSize: cfg.Remote.MaxResponseSize,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Printf("probing %s (max response %s)\n", cfg.Remote.BaseURL, humanize.IBytes(uint64(cfg.Remote.MaxResponseSize)))

	failed := 0
	check := func(name string, fn func() (string, error)) {
		started := time.Now()
		detail, err := fn()
		elapsed := time.Since(started).Round(time.Millisecond)
		if err != nil {
			failed++
			fmt.Printf("  FAIL %-22s %6s  %v\n", name, elapsed, err)
			return
		}
		fmt.Printf("  ok   %-22s %6s  %s\n", name, elapsed, detail)
	}

	window := time.Now().Add(-*since)

	check("session marker", func() (string, error) {
		marker, err := client.FetchSessionMarker(ctx)
		return marker.String(), err
	})
	check("all messages", func() (string, error) {
		messages, err := client.FetchAllMessages(ctx)
		return fmt.Sprintf("%d messages", len(messages)), err
	})
	check("all participants", func() (string, error) {
		participants, err := client.FetchAllParticipants(ctx)
		return fmt.Sprintf("%d participants", len(participants)), err
	})
	check("message updates", func() (string, error) {
		messages, err := client.FetchMessageUpdates(ctx, window)
		return fmt.Sprintf("%d since %s", len(messages), humanize.Time(window)), err
	})
	check("participant updates", func() (string, error) {
		participants, err := client.FetchParticipantUpdates(ctx, window)
		return fmt.Sprintf("%d since %s", len(participants), humanize.Time(window)), err
	})
	if *text != "" {
		check("submit message", func() (string, error) {
			message, err := client.SubmitMessage(ctx, *text)
			return message.ID, err
		})
	}

	if failed > 0 {
		fmt.Printf("%d check(s) failed\n", failed)
		os.Exit(1)
	}
}
