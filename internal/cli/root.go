// Package cli implements reviewctl, a terminal client for image review comments.
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"imagereview/internal/client/api"
)

var (
	serverURL string
	token     string
)

var rootCmd = &cobra.Command{
	Use:   "reviewctl",
	Short: "Read, post and follow image review comments",
	Long: `reviewctl talks to the image review comment service.
It lists a file's comment threads, posts pins and replies, follows new
comments live and jumps to a linked comment.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("REVIEW_SERVER", "http://localhost:8080"), "comment service base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("REVIEW_TOKEN"), "bearer token")
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newClient builds the API client from the persistent flags.
func newClient() (*api.Client, error) {
	if token == "" {
		return nil, errors.New("no token: pass --token or set REVIEW_TOKEN")
	}
	return api.New(serverURL, token), nil
}
