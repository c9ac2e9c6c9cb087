package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"imagereview/internal/client/api"
	"imagereview/internal/client/mergecache"
	"imagereview/internal/model"
)

const maxReconnectDelay = 30 * time.Second

var (
	watchFile      string
	watchLimit     int
	watchMaxEvents int
)

// errEnoughEvents ends a watch that was asked to stop after N events.
var errEnoughEvents = errors.New("event limit reached")

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow new comments on a file as they are posted",
	Long: `Prints the newest page of threads, then every comment other viewers post
while the command runs. When the live stream drops, it reconnects and
reloads the first page; comments are never printed twice.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchFile, "file", "f", "", "file id")
	watchCmd.Flags().IntVarP(&watchLimit, "limit", "n", model.DefaultPageLimit, "comments in the initial page")
	watchCmd.Flags().IntVar(&watchMaxEvents, "max-events", 0, "exit after this many new comments (0 = run until interrupted)")
	_ = watchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cache := mergecache.New(watchFile, watchLimit)
	seen := 0
	delay := time.Second

	for {
		err := watchOnce(ctx, cmd, client, cache, &seen)
		switch {
		case errors.Is(err, errEnoughEvents), ctx.Err() != nil:
			return nil
		case !api.IsRetryable(err):
			return err
		}

		cmd.PrintErrf("Live stream lost (%v), reconnecting in %s\n", err, delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// watchOnce subscribes before loading page 1 so nothing posted in between is
// missed; the cache drops whatever arrives by both paths.
func watchOnce(ctx context.Context, cmd *cobra.Command, client *api.Client, cache *mergecache.Cache, seen *int) error {
	stream, err := client.Subscribe(ctx, watchFile)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer stream.Close()

	page, err := client.Paginate(ctx, watchFile, 1, watchLimit)
	if err != nil {
		return fmt.Errorf("load comments: %w", err)
	}
	first := len(cache.Pages()) == 0
	cache.ApplyPage(*page)

	if first {
		printThreads(cmd, cache.Threads(), "")
	}
	cmd.Printf("Watching %s as connection %s (%d comments)\n", watchFile, stream.ConnectionID(), cache.Total())

	for ev := range stream.Events() {
		if !cache.ApplyLive(ev.Comment, ev.SenderConnectionID, stream.ConnectionID()) {
			continue
		}
		printLive(cmd, cache, ev.Comment)

		*seen++
		if watchMaxEvents > 0 && *seen >= watchMaxEvents {
			return errEnoughEvents
		}
	}
	return stream.Err()
}

func printLive(cmd *cobra.Command, cache *mergecache.Cache, c model.Comment) {
	if c.IsTopLevel() {
		cmd.Printf("+ %s\n", formatComment(c))
		return
	}
	if _, ok := cache.Locate(c.ID); ok {
		cmd.Printf("+ reply to %s: %s\n", *c.ParentID, formatComment(c))
		return
	}
	cmd.Printf("+ reply to an older thread %s: %s (%d replies outside loaded threads)\n",
		*c.ParentID, formatComment(c), len(cache.Pending()))
}
