// Package cli implements the miractl commands.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aivoicefromthevoid/mira/client"
	"github.com/spf13/cobra"
)

type options struct {
	addr     string
	adminKey string
	format   string
}

// NewRootCmd builds the miractl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "miractl",
		Short:         "Operate a Mira backend",
		Long:          "miractl talks to a running mirad: chat with Mira, inspect usage, manage memories and run the legacy migration.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.addr, "addr", "a", envOr("MIRA_URL", client.DefaultAddress), "mirad address (default: $MIRA_URL or "+client.DefaultAddress+")")
	root.PersistentFlags().StringVar(&opts.adminKey, "admin-key", os.Getenv("ADMIN_API_KEY"), "Admin key for protected endpoints (default: $ADMIN_API_KEY)")
	root.PersistentFlags().StringVarP(&opts.format, "format", "f", "text", "Output format: json or text")

	root.AddCommand(
		newChatCmd(opts),
		newUsageCmd(opts),
		newMemoriesCmd(opts),
		newModelsCmd(opts),
		newMigrateCmd(opts),
		newHealthCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

func (o *options) connect() (*client.Client, error) {
	return client.Connect(o.addr, client.WithAdminKey(o.adminKey))
}

func (o *options) json() bool {
	return strings.EqualFold(o.format, "json")
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// explain adds the server's hint to an API error.
func explain(action string, err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Hint != "" {
		return fmt.Errorf("%s: %w\nhint: %s", action, err, apiErr.Hint)
	}
	return fmt.Errorf("%s: %w", action, err)
}
