package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUsageCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show today's API usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			snap, err := c.Usage(cmd.Context())
			if err != nil {
				return explain("usage", err)
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), snap)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d calls used, %d remaining (min spacing %ds)\n",
				snap.Date, snap.Count, snap.Quota, snap.Remaining, snap.RateLimitSeconds)
			return err
		},
	}
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Import the legacy memory_index.json into the memories document",
		Long:  "Runs the server-side migration of memory_index.json. Entries whose id is already stored are skipped. Requires --admin-key.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.adminKey == "" {
				return fmt.Errorf("migrate requires --admin-key or ADMIN_API_KEY")
			}
			c, err := opts.connect()
			if err != nil {
				return err
			}
			res, err := c.Migrate(cmd.Context())
			if err != nil {
				return explain("migrate", err)
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), res)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d of %d entries (%d already present)\n", res.Migrated, res.Total, res.Skipped)
			return err
		},
	}
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that mirad is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			if err := c.Health(cmd.Context()); err != nil {
				return explain("health", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	}
}
