package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"imagereview/internal/model"
)

var (
	postFile       string
	postBody       string
	postX          float64
	postY          float64
	postParent     string
	postConnection string
)

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Post a pin or a reply",
	Long: `Posts a top-level comment pinned at --x/--y (percent of the image), or a
reply to an existing top-level comment with --parent.`,
	Args: cobra.NoArgs,
	RunE: runPost,
}

func init() {
	postCmd.Flags().StringVarP(&postFile, "file", "f", "", "file id")
	postCmd.Flags().StringVarP(&postBody, "body", "b", "", "comment text")
	postCmd.Flags().Float64Var(&postX, "x", 0, "horizontal position, 0-100")
	postCmd.Flags().Float64Var(&postY, "y", 0, "vertical position, 0-100")
	postCmd.Flags().StringVar(&postParent, "parent", "", "top-level comment to reply to")
	postCmd.Flags().StringVar(&postConnection, "connection", "", "live connection id to exclude from the broadcast")
	_ = postCmd.MarkFlagRequired("file")
	_ = postCmd.MarkFlagRequired("body")
	rootCmd.AddCommand(postCmd)
}

func runPost(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	req := model.CreateCommentRequest{FileID: postFile, Body: postBody}
	// Only flags the user set are sent; the server rejects a mixed shape.
	if cmd.Flags().Changed("x") {
		x := postX
		req.X = &x
	}
	if cmd.Flags().Changed("y") {
		y := postY
		req.Y = &y
	}
	if postParent != "" {
		parent := postParent
		req.ParentID = &parent
	}

	comment, err := client.Create(cmd.Context(), postConnection, req)
	if err != nil {
		return fmt.Errorf("post comment: %w", err)
	}

	cmd.Printf("Posted %s\n", comment.ID)
	cmd.Println(formatComment(*comment))
	return nil
}
