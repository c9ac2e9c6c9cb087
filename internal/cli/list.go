package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"imagereview/internal/client/api"
	"imagereview/internal/client/mergecache"
	"imagereview/internal/model"
	"imagereview/internal/thread"
)

var (
	listFile  string
	listPage  int
	listLimit int
	listJSON  bool
	listAll   bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List one page of a file's comment threads",
	Long: `Fetches one newest-first page of a file's comments and prints it as
threads. Replies whose parent is on another page are not shown.

With --all, keeps loading older pages until the file is exhausted.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listFile, "file", "f", "", "file id")
	listCmd.Flags().IntVarP(&listPage, "page", "p", 1, "page number")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", model.DefaultPageLimit, "comments per page (max 50)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output the raw page as JSON")
	listCmd.Flags().BoolVar(&listAll, "all", false, "load every page, starting at --page")
	_ = listCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	if listAll {
		return listAllPages(cmd, client)
	}

	page, err := client.Paginate(cmd.Context(), listFile, listPage, listLimit)
	if err != nil {
		return fmt.Errorf("list comments: %w", err)
	}

	if listJSON {
		data, err := json.MarshalIndent(page, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal page: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	printThreads(cmd, thread.Assemble(page.Comments), "")
	printPagination(cmd, page.Pagination)
	return nil
}

// listAllPages follows NextPage through a merge cache so a comment pushed
// onto a later page by a concurrent write is not printed twice.
func listAllPages(cmd *cobra.Command, client *api.Client) error {
	cache := mergecache.New(listFile, listLimit)

	next, more := listPage, true
	for more {
		page, err := client.Paginate(cmd.Context(), listFile, next, listLimit)
		if err != nil {
			return fmt.Errorf("list comments page %d: %w", next, err)
		}
		cache.ApplyPage(*page)
		if len(page.Comments) == 0 {
			break
		}
		next, more = cache.NextPage()
	}

	printThreads(cmd, cache.Threads(), "")
	cmd.Printf("%d comments on %d pages\n", cache.Total(), len(cache.Pages()))
	return nil
}
