package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"imagereview/internal/model"
	"imagereview/internal/thread"
)

const timeLayout = "2006-01-02 15:04"

func formatComment(c model.Comment) string {
	var b strings.Builder
	if c.IsTopLevel() {
		fmt.Fprintf(&b, "(%.1f, %.1f) ", *c.X, *c.Y)
	}
	fmt.Fprintf(&b, "%s  %s  %s", c.AuthorID, c.CreatedAt.Local().Format(timeLayout), c.Body)
	fmt.Fprintf(&b, "  [%s]", c.ID)
	return b.String()
}

// printThreads writes each top-level comment followed by its replies.
// highlighted marks one thread, if non-empty.
func printThreads(cmd *cobra.Command, threads thread.Threads, highlighted string) {
	if len(threads.TopLevel) == 0 {
		cmd.Println("No comments yet.")
		return
	}
	for _, top := range threads.TopLevel {
		marker := " "
		if top.ID == highlighted {
			marker = ">"
		}
		cmd.Printf("%s %s\n", marker, formatComment(top))
		for _, r := range threads.Replies(top.ID) {
			cmd.Printf("    ↳ %s\n", formatComment(r))
		}
	}
}

func printPagination(cmd *cobra.Command, p model.Pagination) {
	more := ""
	if p.HasMore {
		more = fmt.Sprintf(", next: --page %d", p.Page+1)
	}
	cmd.Printf("Page %d of %d (%d comments%s)\n", p.Page, p.Pages, p.Total, more)
}
