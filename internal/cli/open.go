package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"imagereview/internal/client/deeplink"
	"imagereview/internal/client/mergecache"
	"imagereview/internal/model"
	"imagereview/internal/thread"
)

var (
	openFile      string
	openComment   string
	openLimit     int
	openMaxPages  int
	openRate      float64
	openHighlight time.Duration
	openWait      bool
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Jump to a linked comment",
	Long: `Pages through a file's comments until the linked comment's thread is
loaded, then prints that thread highlighted. A reply resolves to the
thread of its parent.`,
	Args: cobra.NoArgs,
	RunE: runOpen,
}

func init() {
	openCmd.Flags().StringVarP(&openFile, "file", "f", "", "file id")
	openCmd.Flags().StringVarP(&openComment, "comment", "c", "", "comment id from the link")
	openCmd.Flags().IntVarP(&openLimit, "limit", "n", model.DefaultPageLimit, "comments per fetched page")
	openCmd.Flags().IntVar(&openMaxPages, "max-pages", deeplink.DefaultMaxPages, "give up after this many pages")
	openCmd.Flags().Float64Var(&openRate, "rate", deeplink.DefaultRate, "page fetches per second")
	openCmd.Flags().DurationVar(&openHighlight, "highlight", deeplink.DefaultHighlightWindow, "how long the thread stays highlighted")
	openCmd.Flags().BoolVar(&openWait, "wait", false, "stay until the highlight ends")
	_ = openCmd.MarkFlagRequired("file")
	_ = openCmd.MarkFlagRequired("comment")
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	cleared := make(chan struct{}, 1)
	highlighter := deeplink.NewHighlighter(openHighlight, func(id string) {
		if id == "" {
			select {
			case cleared <- struct{}{}:
			default:
			}
		}
	})

	cache := mergecache.New(openFile, openLimit)
	resolver := deeplink.NewResolver(client,
		deeplink.WithLimit(openLimit),
		deeplink.WithMaxPages(openMaxPages),
		deeplink.WithRateLimit(rate.NewLimiter(rate.Limit(openRate), 1)),
		deeplink.WithCache(cache),
		deeplink.WithHighlighter(highlighter),
		deeplink.WithProgress(func(page, pages int) {
			cmd.PrintErrf("Searched page %d of %d\n", page, pages)
		}),
	)

	res, err := resolver.Resolve(cmd.Context(), openFile, openComment)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", openComment, err)
	}
	if res.State != deeplink.Found {
		return fmt.Errorf("comment %s not found in file %s after %d pages", openComment, openFile, res.PagesFetched)
	}

	threads := cache.Threads()
	only := thread.Threads{RepliesByParent: threads.RepliesByParent}
	for _, top := range threads.TopLevel {
		if top.ID == res.TopLevelID {
			only.TopLevel = append(only.TopLevel, top)
		}
	}

	cmd.Printf("Found %s in thread %s (%d pages fetched)\n", openComment, res.TopLevelID, res.PagesFetched)
	printThreads(cmd, only, highlighter.Active())

	if openWait {
		select {
		case <-cleared:
			cmd.Println("Highlight ended")
		case <-cmd.Context().Done():
		}
	}
	return nil
}
